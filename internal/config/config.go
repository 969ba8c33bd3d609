// Package config provides centralized configuration for the wallet service.
// Protocol-level constants (ring size, tombstone horizon, token registry)
// live here as static values; operator configuration (peer URIs, store
// paths, listen address) is loaded from YAML at startup.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// KeyDerivationVersion identifies how an account's keys were derived from
// its recovery material.
type KeyDerivationVersion uint32

const (
	// KeyDerivationV1 derives keys from 32 bytes of raw entropy. Deprecated
	// but still accepted on import.
	KeyDerivationV1 KeyDerivationVersion = 1
	// KeyDerivationV2 derives keys from a 24-word BIP39 mnemonic. The
	// normative version; new accounts are exported this way.
	KeyDerivationV2 KeyDerivationVersion = 2
)

// Protocol-level constants. These are not operator-configurable: changing
// them changes what transactions the rest of the network will accept.
const (
	// RingSize is the fixed number of members (one real input plus mixins)
	// in every transaction input ring.
	RingSize = 11

	// DefaultTombstoneOffset is added to the current tip to compute a
	// transaction's default tombstone block when the caller doesn't supply
	// one.
	DefaultTombstoneOffset = 10

	// MaxTombstoneOffset bounds how far into the future a tombstone block
	// may be set, relative to the current tip.
	MaxTombstoneOffset = 100

	// BaseTokenID is the canonical fee-and-value token of the ledger.
	BaseTokenID = 0

	// DefaultSubmissionRetries is the number of distinct peers a proposal
	// is retried against before Submission gives up and leaves the log
	// "built".
	DefaultSubmissionRetries = 3

	// DefaultFeeValue is the base-token fee the Transaction Builder charges
	// when a caller doesn't supply one explicitly, denominated in the base
	// token's smallest unit (spec.md §4.4 "Inputs... optional fee").
	DefaultFeeValue uint64 = 400_000_000
)

// DefaultSubmitTimeout bounds a single Submission attempt across all of its
// retries, so a wedged peer connection can't block a submission worker
// indefinitely.
const DefaultSubmitTimeout = 30 * time.Second

// Token describes a value type the ledger can carry.
type Token struct {
	ID       uint64
	Symbol   string
	Name     string
	Decimals uint8
}

// TokenRegistry enumerates every token id the wallet understands. Unknown
// token ids encountered on-ledger are still tracked by TXOs (the Store
// doesn't require a registry entry to persist a value+token_id pair) but
// the Builder refuses to mint fee/payload outputs in a token absent here.
var TokenRegistry = map[uint64]Token{
	BaseTokenID: {ID: BaseTokenID, Symbol: "MOB", Name: "base token", Decimals: 12},
	1:           {ID: 1, Symbol: "EUSD", Name: "electronic dollar", Decimals: 6},
}

// IsKnownToken reports whether id has a registry entry.
func IsKnownToken(id uint64) bool {
	_, ok := TokenRegistry[id]
	return ok
}

// Peers holds the remote consensus/peer RPC endpoints the wallet talks to.
type Peers struct {
	// ConsensusURIs are peers used for block-range reads and submission.
	ConsensusURIs []string `yaml:"consensus_uris"`
	// MirrorSyncURIs are optionally distinct peers used only by the Ledger
	// Mirror sync worker; defaults to ConsensusURIs when empty.
	MirrorSyncURIs []string `yaml:"mirror_sync_uris"`
}

// Storage holds filesystem locations for the Store and Ledger Mirror.
type Storage struct {
	StorePath string `yaml:"store_path"`
	MirrorDir string `yaml:"mirror_dir"`
}

// Logging holds logger configuration.
type Logging struct {
	Level string `yaml:"level"`
}

// RPC holds the JSON-RPC / websocket / metrics listen configuration.
type RPC struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level operator configuration file.
type Config struct {
	Peers           Peers   `yaml:"peers"`
	Storage         Storage `yaml:"storage"`
	Logging         Logging `yaml:"logging"`
	RPC             RPC     `yaml:"rpc"`
	RemoteSignerURL string  `yaml:"remote_signer_url,omitempty"`
}

// Default returns a Config with sane defaults for local development.
func Default() *Config {
	return &Config{
		Storage: Storage{
			StorePath: "~/.walletd/wallet.db",
			MirrorDir: "~/.walletd/ledger",
		},
		Logging: Logging{Level: "info"},
		RPC:     RPC{ListenAddr: "127.0.0.1:9090"},
	}
}

// Load reads and merges a YAML config file at path into a Default() config.
// A missing file is not an error; Load returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.Storage.StorePath = expandPath(cfg.Storage.StorePath)
	cfg.Storage.MirrorDir = expandPath(cfg.Storage.MirrorDir)

	return cfg, nil
}

func expandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
