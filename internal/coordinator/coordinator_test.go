package coordinator

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/txbuilder"
)

func newCoordinatorTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(store.Config{Path: filepath.Join(t.TempDir(), "wallet.db")})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newCoordinatorTestMirror(t *testing.T) *ledgermirror.Mirror {
	t.Helper()
	m, err := ledgermirror.New(ledgermirror.Config{Path: filepath.Join(t.TempDir(), "mirror.db")})
	if err != nil {
		t.Fatalf("ledgermirror.New() error = %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func newCoordinatorTestAccount(t *testing.T, s *store.Store, seed byte) store.AccountID {
	t.Helper()
	entropy := sha256.Sum256([]byte{seed, 'c', 'o', 'o', 'r', 'd'})
	ak, err := keys.FromLegacyEntropy(entropy[:])
	if err != nil {
		t.Fatalf("FromLegacyEntropy() error = %v", err)
	}
	id := store.AccountID(keys.DeriveAccountID(ak))
	changeSub, err := keys.DeriveSubaddress(ak, keys.ChangeSubaddressIndex)
	if err != nil {
		t.Fatalf("DeriveSubaddress() error = %v", err)
	}
	a := store.Account{
		AccountID:             id,
		Name:                  "coordinator test account",
		DerivationVersion:     ak.DerivationVersion,
		ViewPrivateKey:        ak.ViewPrivate,
		ViewPublicKey:         ak.ViewPublic,
		SpendPrivateKey:       ak.SpendPrivate,
		SpendPublicKey:        ak.SpendPublic,
		MainSubaddressIndex:   keys.MainSubaddressIndex,
		ChangeSubaddressIndex: keys.ChangeSubaddressIndex,
		NextSubaddressIndex:   2,
	}
	main := store.Subaddress{AccountID: id, SubaddressIndex: keys.MainSubaddressIndex, PublicAddressB58: "addr-main", PublicSpendKey: ak.SpendPublic, PublicViewKey: ak.ViewPublic}
	change := store.Subaddress{AccountID: id, SubaddressIndex: keys.ChangeSubaddressIndex, PublicAddressB58: "addr-change", PublicSpendKey: changeSub.SpendPublic, PublicViewKey: changeSub.ViewPublic}
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return id
}

func builtLog(t *testing.T, s *store.Store, id store.TransactionLogID, accountID store.AccountID) {
	t.Helper()
	if err := s.Atomic(func(tx *sql.Tx) error {
		return s.CreateTransactionLog(tx, store.TransactionLog{
			ID:                  id,
			AccountID:           accountID,
			FeeValue:            config.DefaultFeeValue,
			FeeTokenID:          config.BaseTokenID,
			ValuePerToken:       map[uint64]uint64{config.BaseTokenID: 1_000_000},
			TombstoneBlockIndex: 1000,
		}, nil, nil)
	}); err != nil {
		t.Fatalf("CreateTransactionLog() error = %v", err)
	}
}

func newLogID(seed byte) store.TransactionLogID {
	h := sha256.Sum256([]byte{seed, 'l', 'o', 'g'})
	var id store.TransactionLogID
	copy(id[:], h[:])
	return id
}

func TestNewRequiresStoreMirrorAndPeers(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")

	if _, err := New(Config{Mirror: m, Peers: []peer.Peer{p}}); err == nil {
		t.Error("New() with nil Store: want error, got nil")
	}
	if _, err := New(Config{Store: s, Peers: []peer.Peer{p}}); err == nil {
		t.Error("New() with nil Mirror: want error, got nil")
	}
	if _, err := New(Config{Store: s, Mirror: m}); err == nil {
		t.Error("New() with no Peers: want error, got nil")
	}
}

func TestStartStartsScannerForEveryExistingAccount(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")

	a1 := newCoordinatorTestAccount(t, s, 1)
	a2 := newCoordinatorTestAccount(t, s, 2)

	c, err := New(Config{Store: s, Mirror: m, Peers: []peer.Peer{p}, ScanPollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	c.mu.Lock()
	count := len(c.scanners)
	_, hasA1 := c.scanners[a1]
	_, hasA2 := c.scanners[a2]
	c.mu.Unlock()

	if count != 2 || !hasA1 || !hasA2 {
		t.Errorf("scanners = %d (a1=%v a2=%v), want 2 scanners for both accounts", count, hasA1, hasA2)
	}
}

func TestAddAccountStartsANewScannerOnlyOnce(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")
	a1 := newCoordinatorTestAccount(t, s, 1)

	c, err := New(Config{Store: s, Mirror: m, Peers: []peer.Peer{p}, ScanPollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	c.mu.Lock()
	first := c.scanners[a1]
	c.mu.Unlock()

	c.AddAccount(a1)

	c.mu.Lock()
	second := c.scanners[a1]
	c.mu.Unlock()

	if first != second {
		t.Error("AddAccount() on an already-running account replaced its scanner")
	}
}

func TestRemoveAccountStopsAndForgetsScanner(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")
	a1 := newCoordinatorTestAccount(t, s, 1)

	c, err := New(Config{Store: s, Mirror: m, Peers: []peer.Peer{p}, ScanPollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	c.RemoveAccount(a1)

	c.mu.Lock()
	_, ok := c.scanners[a1]
	c.mu.Unlock()
	if ok {
		t.Error("RemoveAccount() left the scanner registered")
	}
}

func TestEnqueueSubmissionTransitionsLogToPending(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")
	p.AppendBlock(peer.Block{Index: 0})

	accountID := newCoordinatorTestAccount(t, s, 1)
	logID := newLogID(1)
	builtLog(t, s, logID, accountID)

	c, err := New(Config{Store: s, Mirror: m, Peers: []peer.Peer{p}, ScanPollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	if err := c.EnqueueSubmission(context.Background(), txbuilder.TxProposal{LogID: logID, RawTx: []byte("raw")}); err != nil {
		t.Fatalf("EnqueueSubmission() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		log, _, _, err := s.GetTransactionLog(logID)
		if err != nil {
			t.Fatalf("GetTransactionLog() error = %v", err)
		}
		if log.Status == store.LogStatusPending {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("log status = %v, want pending before deadline", log.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEnqueueSubmissionFailsAfterStop(t *testing.T) {
	s := newCoordinatorTestStore(t)
	m := newCoordinatorTestMirror(t)
	p := peer.NewFake("peer-a")

	c, err := New(Config{Store: s, Mirror: m, Peers: []peer.Peer{p}, ScanPollInterval: time.Hour})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Stop()

	if err := c.EnqueueSubmission(context.Background(), txbuilder.TxProposal{LogID: newLogID(9), RawTx: []byte("raw")}); err == nil {
		t.Error("EnqueueSubmission() after Stop(): want error, got nil")
	}
}
