package store

import (
	"crypto/sha256"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/pkg/helpers"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(Config{Path: filepath.Join(dir, "wallet.db")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func fakeAccountID(seed byte) AccountID {
	var id AccountID
	sum := sha256.Sum256([]byte{seed})
	copy(id[:], sum[:])
	return id
}

func fakePublicKey(seed byte) cryptoiface.PublicKey {
	var pk cryptoiface.PublicKey
	sum := sha256.Sum256([]byte{seed, 'p', 'k'})
	copy(pk[:], sum[:])
	return pk
}

func newTestAccount(seed byte) (Account, Subaddress, Subaddress) {
	id := fakeAccountID(seed)
	a := Account{
		AccountID:             id,
		Name:                  "test account",
		DerivationVersion:     config.KeyDerivationV2,
		ViewPrivateKey:        cryptoiface.PrivateKey(fakePublicKey(seed + 1)),
		ViewPublicKey:         fakePublicKey(seed + 2),
		SpendPrivateKey:       nil,
		SpendPublicKey:        fakePublicKey(seed + 3),
		NextSubaddressIndex:   2,
		MainSubaddressIndex:   0,
		ChangeSubaddressIndex: 1,
	}
	spendPriv := cryptoiface.PrivateKey(fakePublicKey(seed + 4))
	a.SpendPrivateKey = &spendPriv

	main := Subaddress{AccountID: id, SubaddressIndex: 0, PublicAddressB58: "addr-main", PublicSpendKey: a.SpendPublicKey, PublicViewKey: a.ViewPublicKey}
	change := Subaddress{AccountID: id, SubaddressIndex: 1, PublicAddressB58: "addr-change", PublicSpendKey: fakePublicKey(seed + 5), PublicViewKey: fakePublicKey(seed + 6)}
	return a, main, change
}

func TestCreateAndGetAccount(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(1)

	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	got, err := s.GetAccount(a.AccountID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.Name != a.Name || got.ViewPublicKey != a.ViewPublicKey {
		t.Errorf("GetAccount() = %+v, want fields matching %+v", got, a)
	}
	if got.SpendPrivateKey == nil || *got.SpendPrivateKey != *a.SpendPrivateKey {
		t.Error("GetAccount() did not round-trip spend private key")
	}

	subs, err := s.GetSubaddressesForAccount(a.AccountID)
	if err != nil {
		t.Fatalf("GetSubaddressesForAccount() error = %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("len(subs) = %d, want 2", len(subs))
	}
}

func TestCreateAccountDuplicateFails(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(2)

	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	err := s.CreateAccount(a, main, change)
	if !IsAlreadyExists(err) {
		t.Errorf("CreateAccount() second call error = %v, want AlreadyExists", err)
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetAccount(fakeAccountID(99))
	if !IsNotFound(err) {
		t.Errorf("GetAccount() error = %v, want NotFound", err)
	}
}

func TestCreateAccountRejectsBadCursorInvariant(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(3)
	a.FirstBlockIndex = 10
	a.NextBlockIndex = 5

	err := s.CreateAccount(a, main, change)
	if !IsInvariantViolation(err) {
		t.Errorf("CreateAccount() error = %v, want InvariantViolation", err)
	}
}

func TestAdvanceNextBlockIndexMonotonic(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(4)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	err := s.withTx(func(tx *sql.Tx) error {
		return s.AdvanceNextBlockIndex(tx, a.AccountID, 10)
	})
	if err != nil {
		t.Fatalf("AdvanceNextBlockIndex() error = %v", err)
	}

	err = s.withTx(func(tx *sql.Tx) error {
		return s.AdvanceNextBlockIndex(tx, a.AccountID, 3)
	})
	if err != nil {
		t.Fatalf("AdvanceNextBlockIndex() error = %v", err)
	}

	got, err := s.GetAccount(a.AccountID)
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.NextBlockIndex != 10 {
		t.Errorf("NextBlockIndex = %d, want 10 (must not regress)", got.NextBlockIndex)
	}
}

func TestAllocateSubaddressIndexIncrementsMonotonically(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(5)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	first, err := s.AllocateSubaddressIndex(a.AccountID)
	if err != nil {
		t.Fatalf("AllocateSubaddressIndex() error = %v", err)
	}
	second, err := s.AllocateSubaddressIndex(a.AccountID)
	if err != nil {
		t.Fatalf("AllocateSubaddressIndex() error = %v", err)
	}
	if first != 2 || second != 3 {
		t.Errorf("AllocateSubaddressIndex() = %d, %d, want 2, 3", first, second)
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(6)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	txoID := DeriveTxoID(fakePublicKey(50))
	err := s.Atomic(func(tx *sql.Tx) error {
		_, err := s.InsertTxoIfAbsent(tx, Txo{
			TxoID: txoID, PublicKey: fakePublicKey(50), TargetKey: fakePublicKey(51),
			Value: 1000, TokenID: config.BaseTokenID, ReceivedAccountID: &a.AccountID,
		})
		return err
	})
	if err != nil {
		t.Fatalf("InsertTxoIfAbsent() error = %v", err)
	}

	if err := s.DeleteAccount(a.AccountID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	if _, err := s.GetAccount(a.AccountID); !IsNotFound(err) {
		t.Errorf("GetAccount() after delete error = %v, want NotFound", err)
	}

	subs, err := s.GetSubaddressesForAccount(a.AccountID)
	if err != nil {
		t.Fatalf("GetSubaddressesForAccount() error = %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("len(subs) after delete = %d, want 0", len(subs))
	}

	txo, err := s.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() after account delete error = %v", err)
	}
	if txo.ReceivedAccountID != nil {
		t.Error("expected received_account_id to be cleared after account delete")
	}

	if err := s.DeleteAccount(a.AccountID); !IsNotFound(err) {
		t.Errorf("DeleteAccount() twice error = %v, want NotFound", err)
	}
}

func TestTxoLifecycleAndStatus(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(7)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	txoID := DeriveTxoID(fakePublicKey(60))
	err := s.Atomic(func(tx *sql.Tx) error {
		_, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: txoID, PublicKey: fakePublicKey(60), TargetKey: fakePublicKey(61), Value: 500, TokenID: config.BaseTokenID})
		if err != nil {
			return err
		}
		subIdx := uint64(0)
		return s.MarkReceived(tx, txoID, a.AccountID, &subIdx, 42, nil)
	})
	if err != nil {
		t.Fatalf("insert/mark received error = %v", err)
	}

	got, err := s.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() error = %v", err)
	}
	if got.Status() != TxoStatusUnspent {
		t.Errorf("Status() = %v, want unspent", got.Status())
	}

	var keyImage cryptoiface.KeyImage
	copy(keyImage[:], fakePublicKey(62)[:])
	err = s.Atomic(func(tx *sql.Tx) error {
		_, err := tx.Exec(`UPDATE txos SET key_image = ? WHERE txo_id = ?`, helpers.BytesToHex(keyImage[:]), txoID.Hex())
		return err
	})
	if err != nil {
		t.Fatalf("set key_image error = %v", err)
	}

	var matched TxoID
	var ok bool
	err = s.Atomic(func(tx *sql.Tx) error {
		var err error
		matched, ok, err = s.MarkSpentByKeyImage(tx, keyImage, 50)
		return err
	})
	if err != nil {
		t.Fatalf("MarkSpentByKeyImage() error = %v", err)
	}
	if !ok || matched != txoID {
		t.Fatalf("MarkSpentByKeyImage() matched=%v ok=%v, want %v true", matched, ok, txoID)
	}

	got, err = s.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() error = %v", err)
	}
	if got.Status() != TxoStatusSpent {
		t.Errorf("Status() after spend = %v, want spent", got.Status())
	}
}

func TestTxoInvariantSpentBeforeReceivedRejected(t *testing.T) {
	s := newTestStore(t)
	txoID := DeriveTxoID(fakePublicKey(70))
	var keyImage cryptoiface.KeyImage
	copy(keyImage[:], fakePublicKey(71)[:])

	err := s.Atomic(func(tx *sql.Tx) error {
		received := uint64(100)
		_, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: txoID, PublicKey: fakePublicKey(70), TargetKey: fakePublicKey(72), Value: 1, TokenID: config.BaseTokenID, ReceivedBlockIndex: &received})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE txos SET key_image = ? WHERE txo_id = ?`, helpers.BytesToHex(keyImage[:]), txoID.Hex()); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("setup error = %v", err)
	}

	err = s.Atomic(func(tx *sql.Tx) error {
		_, _, err := s.MarkSpentByKeyImage(tx, keyImage, 50)
		return err
	})
	if !IsInvariantViolation(err) {
		t.Errorf("MarkSpentByKeyImage() error = %v, want InvariantViolation", err)
	}
}

func TestListTxosOrderingAndPagination(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(8)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	err := s.Atomic(func(tx *sql.Tx) error {
		for i := byte(0); i < 5; i++ {
			txoID := DeriveTxoID(fakePublicKey(100 + i))
			if _, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: txoID, PublicKey: fakePublicKey(100 + i), TargetKey: fakePublicKey(120 + i), Value: 1, TokenID: config.BaseTokenID}); err != nil {
				return err
			}
			subIdx := uint64(0)
			block := uint64(5 - i)
			if err := s.MarkReceived(tx, txoID, a.AccountID, &subIdx, block, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed txos error = %v", err)
	}

	page1, err := s.ListTxos(TxoFilter{AccountID: &a.AccountID, Limit: 2})
	if err != nil {
		t.Fatalf("ListTxos() error = %v", err)
	}
	if len(page1) != 2 {
		t.Fatalf("len(page1) = %d, want 2", len(page1))
	}
	if *page1[0].ReceivedBlockIndex > *page1[1].ReceivedBlockIndex {
		t.Error("ListTxos() not ascending by received_block_index")
	}

	page2, err := s.ListTxos(TxoFilter{AccountID: &a.AccountID, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("ListTxos() page 2 error = %v", err)
	}
	if len(page2) != 2 {
		t.Fatalf("len(page2) = %d, want 2", len(page2))
	}
	if *page1[1].ReceivedBlockIndex > *page2[0].ReceivedBlockIndex {
		t.Error("pagination is not monotonic across pages")
	}
}

func TestListTxosFilterByStatus(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(9)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	unspentID := DeriveTxoID(fakePublicKey(200))
	spentID := DeriveTxoID(fakePublicKey(201))
	var keyImage cryptoiface.KeyImage
	copy(keyImage[:], fakePublicKey(202)[:])

	err := s.Atomic(func(tx *sql.Tx) error {
		subIdx := uint64(0)
		if _, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: unspentID, PublicKey: fakePublicKey(200), TargetKey: fakePublicKey(210), Value: 1, TokenID: config.BaseTokenID}); err != nil {
			return err
		}
		if err := s.MarkReceived(tx, unspentID, a.AccountID, &subIdx, 1, nil); err != nil {
			return err
		}
		if _, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: spentID, PublicKey: fakePublicKey(201), TargetKey: fakePublicKey(211), Value: 1, TokenID: config.BaseTokenID, KeyImage: &keyImage}); err != nil {
			return err
		}
		if err := s.MarkReceived(tx, spentID, a.AccountID, &subIdx, 1, nil); err != nil {
			return err
		}
		_, ok, err := s.MarkSpentByKeyImage(tx, keyImage, 2)
		if err != nil {
			return err
		}
		if !ok {
			t.Fatal("MarkSpentByKeyImage() ok = false")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed txos error = %v", err)
	}

	unspentStatus := TxoStatusUnspent
	unspent, err := s.ListTxos(TxoFilter{AccountID: &a.AccountID, Status: &unspentStatus})
	if err != nil {
		t.Fatalf("ListTxos(unspent) error = %v", err)
	}
	if len(unspent) != 1 || unspent[0].TxoID != unspentID {
		t.Fatalf("ListTxos(unspent) = %+v, want only %s", unspent, unspentID.Hex())
	}

	spentStatus := TxoStatusSpent
	spent, err := s.ListTxos(TxoFilter{AccountID: &a.AccountID, Status: &spentStatus})
	if err != nil {
		t.Fatalf("ListTxos(spent) error = %v", err)
	}
	if len(spent) != 1 || spent[0].TxoID != spentID {
		t.Fatalf("ListTxos(spent) = %+v, want only %s", spent, spentID.Hex())
	}
}

func TestTransactionLogLifecycle(t *testing.T) {
	s := newTestStore(t)
	a, main, change := newTestAccount(9)
	if err := s.CreateAccount(a, main, change); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	inputID := DeriveTxoID(fakePublicKey(200))
	outputID := DeriveTxoID(fakePublicKey(201))
	var logID TransactionLogID
	copy(logID[:], sha256sum("log-1"))

	err := s.Atomic(func(tx *sql.Tx) error {
		if _, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: inputID, PublicKey: fakePublicKey(200), TargetKey: fakePublicKey(202), Value: 100, TokenID: config.BaseTokenID}); err != nil {
			return err
		}
		if _, err := s.InsertTxoIfAbsent(tx, Txo{TxoID: outputID, PublicKey: fakePublicKey(201), TargetKey: fakePublicKey(203), Value: 90, TokenID: config.BaseTokenID, MintedAccountID: &a.AccountID}); err != nil {
			return err
		}
		log := TransactionLog{
			ID: logID, AccountID: a.AccountID, FeeValue: 10, FeeTokenID: config.BaseTokenID,
			ValuePerToken: map[uint64]uint64{config.BaseTokenID: 90}, TombstoneBlockIndex: 20,
		}
		return s.CreateTransactionLog(tx, log, []TxoID{inputID}, []TransactionLogOutput{{TxoID: outputID, Kind: OutputKindPayload, RecipientAddress: "addr-recipient"}})
	})
	if err != nil {
		t.Fatalf("create log error = %v", err)
	}

	log, inputs, outputs, err := s.GetTransactionLog(logID)
	if err != nil {
		t.Fatalf("GetTransactionLog() error = %v", err)
	}
	if log.Status != LogStatusBuilt || len(inputs) != 1 || len(outputs) != 1 {
		t.Fatalf("GetTransactionLog() = %+v inputs=%v outputs=%v", log, inputs, outputs)
	}

	err = s.Atomic(func(tx *sql.Tx) error {
		return s.TransitionToPending(tx, logID, 15)
	})
	if err != nil {
		t.Fatalf("TransitionToPending() error = %v", err)
	}

	err = s.Atomic(func(tx *sql.Tx) error {
		return s.TransitionToSucceeded(tx, logID, 16)
	})
	if err != nil {
		t.Fatalf("TransitionToSucceeded() error = %v", err)
	}

	log, _, _, err = s.GetTransactionLog(logID)
	if err != nil {
		t.Fatalf("GetTransactionLog() error = %v", err)
	}
	if log.Status != LogStatusSucceeded || log.FinalizedBlockIndex == nil || *log.FinalizedBlockIndex != 16 {
		t.Errorf("log after success = %+v", log)
	}

	err = s.Atomic(func(tx *sql.Tx) error {
		return s.TransitionToFailed(tx, logID, "TombstoneExceeded", "too late")
	})
	if !IsInvariantViolation(err) {
		t.Errorf("TransitionToFailed() on terminal log error = %v, want InvariantViolation", err)
	}
}

func sha256sum(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
