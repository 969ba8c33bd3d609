// Package main provides the walletd daemon: a standalone wallet service
// exposing the JSON-RPC surface of internal/rpc over a configured set of
// consensus peers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/coordinator"
	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/rpc"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/submit"
	"github.com/ledgervault/walletd/internal/txbuilder"
	"github.com/ledgervault/walletd/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.walletd", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		listenAddr  = flag.String("listen", "", "JSON-RPC listen address, overrides config")
		testnet     = flag.Bool("testnet", false, "Run against testnet peers (separate data directory)")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: *logLevel, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("walletd %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	effectiveDataDir := *dataDir
	if *testnet {
		effectiveDataDir = filepath.Join(*dataDir, "testnet")
	}
	effectiveDataDir = expandPath(effectiveDataDir)

	configPath := *configFile
	if configPath == "" {
		configPath = filepath.Join(effectiveDataDir, "config.yaml")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}

	if *listenAddr != "" {
		cfg.RPC.ListenAddr = *listenAddr
	}
	if cfg.Storage.StorePath == "" {
		cfg.Storage.StorePath = filepath.Join(effectiveDataDir, "wallet.db")
	}
	if cfg.Storage.MirrorDir == "" {
		cfg.Storage.MirrorDir = filepath.Join(effectiveDataDir, "ledger")
	}
	cfg.Logging.Level = *logLevel

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)
	log.Info("Config loaded", "path", configPath)

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.StorePath), 0o700); err != nil {
		log.Fatal("Failed to create data directory", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(store.Config{Path: cfg.Storage.StorePath})
	if err != nil {
		log.Fatal("Failed to open store", "error", err)
	}
	defer st.Close()
	log.Info("Store opened", "path", cfg.Storage.StorePath)

	mirror, err := ledgermirror.New(ledgermirror.Config{Path: cfg.Storage.MirrorDir})
	if err != nil {
		log.Fatal("Failed to open ledger mirror", "error", err)
	}
	defer mirror.Close()
	log.Info("Ledger mirror opened", "path", cfg.Storage.MirrorDir)

	peers := newPeers(cfg.Peers.ConsensusURIs)
	if len(peers) == 0 {
		log.Fatal("No consensus peers configured; set peers.consensus_uris in config")
	}
	mirrorPeers := peers
	if len(cfg.Peers.MirrorSyncURIs) > 0 {
		mirrorPeers = newPeers(cfg.Peers.MirrorSyncURIs)
	}
	log.Info("Peers configured", "consensus", len(peers), "mirror_sync", len(mirrorPeers))

	reg := metrics.New()

	// The Ledger's ring-signature primitives are an external library
	// concern per internal/cryptoiface's package doc; no such library
	// ships in this corpus, so the daemon signs with FakeSigner until one
	// is wired in. Accounts holding no local spend key (RemoteSignerURL
	// set on import) never reach the signer at all.
	signer := cryptoiface.NewFakeSigner()

	builder := txbuilder.New(txbuilder.Config{
		Store:  st,
		Mirror: mirror,
		Signer: signer,
		Logger: log,
	})

	submitter := submit.New(submit.Config{
		Store:   st,
		Peers:   peers,
		Logger:  log,
		Metrics: reg,
	})

	coord, err := coordinator.New(coordinator.Config{
		Store:   st,
		Mirror:  mirror,
		Peers:   mirrorPeers,
		Logger:  log,
		Metrics: reg,
	})
	if err != nil {
		log.Fatal("Failed to construct coordinator", "error", err)
	}
	if err := coord.Start(ctx); err != nil {
		log.Fatal("Failed to start coordinator", "error", err)
	}
	log.Info("Coordinator started")

	rpcServer := rpc.NewServer(rpc.Config{
		Store:       st,
		Mirror:      mirror,
		Coordinator: coord,
		Builder:     builder,
		Submitter:   submitter,
		Peers:       peers,
		Metrics:     reg,
		Logger:      log,
	})
	if err := rpcServer.Start(cfg.RPC.ListenAddr); err != nil {
		log.Fatal("Failed to start RPC server", "error", err)
	}

	printBanner(log, cfg, effectiveDataDir)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("Status", "peers", len(peers))
			}
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("Shutting down...")

	cancel()
	if err := rpcServer.Stop(); err != nil {
		log.Error("Error stopping RPC server", "error", err)
	}
	coord.Stop()

	log.Info("Goodbye!")
}

// newPeers builds one peer.HTTPClient per URI. Order is preserved, which
// matters to internal/submit's round-robin starting point.
func newPeers(uris []string) []peer.Peer {
	peers := make([]peer.Peer, 0, len(uris))
	for _, uri := range uris {
		peers = append(peers, peer.NewHTTPClient(uri, nil))
	}
	return peers
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

func printBanner(log *logging.Logger, cfg *config.Config, dataDir string) {
	networkLabel := "mainnet"
	log.Info("")
	log.Info("=================================================")
	log.Infof("  walletd (%s)", networkLabel)
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  RPC: http://%s", cfg.RPC.ListenAddr)
	log.Infof("  WS:  ws://%s/ws", cfg.RPC.ListenAddr)
	log.Info("")
	log.Infof("  Data dir: %s", dataDir)
	log.Infof("  Peers: %d consensus", len(cfg.Peers.ConsensusURIs))
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
