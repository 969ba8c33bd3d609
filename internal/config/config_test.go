package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RPC.ListenAddr != Default().RPC.ListenAddr {
		t.Errorf("expected default listen addr, got %q", cfg.RPC.ListenAddr)
	}
}

func TestLoadMergesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "peers:\n  consensus_uris:\n    - https://peer1.example\nrpc:\n  listen_addr: 0.0.0.0:9999\n"
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Peers.ConsensusURIs) != 1 || cfg.Peers.ConsensusURIs[0] != "https://peer1.example" {
		t.Errorf("unexpected peers: %+v", cfg.Peers)
	}
	if cfg.RPC.ListenAddr != "0.0.0.0:9999" {
		t.Errorf("unexpected listen addr: %s", cfg.RPC.ListenAddr)
	}
}

func TestIsKnownToken(t *testing.T) {
	if !IsKnownToken(BaseTokenID) {
		t.Error("expected base token to be known")
	}
	if IsKnownToken(9999) {
		t.Error("expected unknown token id to be unknown")
	}
}
