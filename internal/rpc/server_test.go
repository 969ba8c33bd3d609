package rpc

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/submit"
	"github.com/ledgervault/walletd/internal/txbuilder"
)

// newTestServer builds a Server against fresh on-disk Store and Mirror
// instances, a fake signer, and a fake peer set — mirroring the fixtures
// internal/txbuilder and internal/submit's own tests use, so handlers here
// exercise the same code paths those packages' tests already cover.
func newTestServer(t *testing.T, peers ...peer.Peer) *Server {
	t.Helper()
	s, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "wallet.db")})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	m, err := ledgermirror.New(ledgermirror.Config{Path: filepath.Join(t.TempDir(), "mirror.db")})
	if err != nil {
		t.Fatalf("ledgermirror.New() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })

	builder := txbuilder.New(txbuilder.Config{Store: s, Mirror: m, Signer: cryptoiface.NewFakeSigner()})
	submitter := submit.New(submit.Config{Store: s, Peers: peers})

	return NewServer(Config{
		Store:     s,
		Mirror:    m,
		Builder:   builder,
		Submitter: submitter,
		Peers:     peers,
	})
}

func marshalParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return b
}

func unmarshalResult(t *testing.T, result interface{}, out interface{}) {
	t.Helper()
	b, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
}
