package scanner

import (
	"crypto/sha256"
	"testing"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
)

// TestRecoverOrphansLinksAfterSubaddressMaterialized covers S6: an output
// owned by the account's view key at a subaddress index not yet
// materialized is recorded orphaned, then linked (with its key image
// derived) once that subaddress is assigned (spec.md §4.3 "Orphan
// recovery").
func TestRecoverOrphansLinksAfterSubaddressMaterialized(t *testing.T) {
	s := newScannerTestStore(t)
	m := newScannerTestMirror(t)
	ak := newTestAccountKeys(t, 50)
	accountID := newScannerTestAccount(t, s, ak)
	sc := newScanner(t, s, m, accountID)

	const futureIndex = 7
	orphaned := buildOwnedOutput(t, ak, futureIndex, 0, 0, 3000, config.BaseTokenID, 60)

	var zero [32]byte
	b0 := peer.Block{Index: 0, ID: sha256.Sum256([]byte("orphan-block")), ParentID: zero, Outputs: []peer.Output{orphaned}}
	if err := m.Append(b0); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if _, err := sc.ScanOneBlock(); err != nil {
		t.Fatalf("ScanOneBlock() error = %v", err)
	}

	txoID := store.DeriveTxoID(orphaned.PublicKey)
	txo, err := s.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() error = %v", err)
	}
	if txo.Status() != store.TxoStatusOrphaned {
		t.Fatalf("status before recovery = %v, want orphaned", txo.Status())
	}

	futureSub, err := keys.DeriveSubaddress(ak, futureIndex)
	if err != nil {
		t.Fatalf("DeriveSubaddress() error = %v", err)
	}
	if err := s.AssignSubaddress(store.Subaddress{
		AccountID: accountID, SubaddressIndex: futureIndex,
		PublicAddressB58: "addr-future", PublicSpendKey: futureSub.SpendPublic, PublicViewKey: futureSub.ViewPublic,
	}); err != nil {
		t.Fatalf("AssignSubaddress() error = %v", err)
	}

	if err := sc.RecoverOrphans(); err != nil {
		t.Fatalf("RecoverOrphans() error = %v", err)
	}

	txo, err = s.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() after recovery error = %v", err)
	}
	if txo.SubaddressIndex == nil || *txo.SubaddressIndex != futureIndex {
		t.Fatalf("SubaddressIndex after recovery = %v, want %d", txo.SubaddressIndex, futureIndex)
	}
	if txo.Status() != store.TxoStatusUnspent {
		t.Errorf("status after recovery = %v, want unspent", txo.Status())
	}
	if txo.KeyImage == nil {
		t.Error("key image not derived after orphan recovery (spend key is available)")
	}
}

// TestRecoverOrphansNoOpWhenNothingPending checks that RecoverOrphans on an
// account with no orphaned TXOs returns no error.
func TestRecoverOrphansNoOpWhenNothingPending(t *testing.T) {
	s := newScannerTestStore(t)
	m := newScannerTestMirror(t)
	ak := newTestAccountKeys(t, 51)
	accountID := newScannerTestAccount(t, s, ak)
	sc := newScanner(t, s, m, accountID)

	if err := sc.RecoverOrphans(); err != nil {
		t.Fatalf("RecoverOrphans() with no orphans error = %v", err)
	}
}
