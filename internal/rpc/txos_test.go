package rpc

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"testing"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/store"
)

// depositTestTxo persists a minimal unspent TXO for accountID, the way the
// Account Scanner would after observing it on-ledger.
func depositTestTxo(t *testing.T, s *Server, accountID store.AccountID, seed byte, value uint64) store.Txo {
	t.Helper()
	var pub, target [32]byte
	copy(pub[:], sha256.Sum256([]byte{seed, 'p'})[:])
	copy(target[:], sha256.Sum256([]byte{seed, 't'})[:])
	txoID := store.DeriveTxoID(pub)
	subIndex := uint64(0)
	var sharedSecret [32]byte
	copy(sharedSecret[:], sha256.Sum256([]byte{seed, 's'})[:])

	row := store.Txo{
		TxoID:             txoID,
		PublicKey:         pub,
		TargetKey:         target,
		Value:             value,
		TokenID:           config.BaseTokenID,
		EncryptedHint:     []byte{0x42},
		OutputBlob:        []byte("blob"),
		ReceivedAccountID: &accountID,
		SharedSecret:      &sharedSecret,
	}
	err := s.store.Atomic(func(tx *sql.Tx) error {
		if _, err := s.store.InsertTxoIfAbsent(tx, row); err != nil {
			return err
		}
		return s.store.MarkReceived(tx, txoID, accountID, &subIndex, 0, &sharedSecret)
	})
	if err != nil {
		t.Fatalf("depositTestTxo() error = %v", err)
	}
	got, err := s.store.GetTxo(txoID)
	if err != nil {
		t.Fatalf("GetTxo() error = %v", err)
	}
	return got
}

func TestGetTxoAndGetTxos(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)
	txo := depositTestTxo(t, s, accountID, 1, 5_000_000)

	got, err := s.getTxo(ctx, marshalParams(t, txoIDParams{TxoID: txo.TxoID.Hex()}))
	if err != nil {
		t.Fatalf("getTxo() error = %v", err)
	}
	var txoOut struct {
		Txo TxoJSON `json:"txo"`
	}
	unmarshalResult(t, got, &txoOut)
	if txoOut.Txo.Status != string(store.TxoStatusUnspent) {
		t.Errorf("Status = %q, want unspent", txoOut.Txo.Status)
	}
	if txoOut.Txo.Value != 5_000_000 {
		t.Errorf("Value = %d, want 5000000", txoOut.Txo.Value)
	}

	listed, err := s.getTxos(ctx, marshalParams(t, getTxosParams{AccountID: accountID.Hex()}))
	if err != nil {
		t.Fatalf("getTxos() error = %v", err)
	}
	var listOut struct {
		Txos []TxoJSON `json:"txos"`
	}
	unmarshalResult(t, listed, &listOut)
	if len(listOut.Txos) != 1 {
		t.Fatalf("len(Txos) = %d, want 1", len(listOut.Txos))
	}
}

func TestGetTxosFilterByStatus(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)
	depositTestTxo(t, s, accountID, 3, 1_000_000)

	listed, err := s.getTxos(ctx, marshalParams(t, getTxosParams{AccountID: accountID.Hex(), Status: "unspent"}))
	if err != nil {
		t.Fatalf("getTxos(status=unspent) error = %v", err)
	}
	var out struct {
		Txos []TxoJSON `json:"txos"`
	}
	unmarshalResult(t, listed, &out)
	if len(out.Txos) != 1 {
		t.Fatalf("len(Txos) = %d, want 1", len(out.Txos))
	}

	none, err := s.getTxos(ctx, marshalParams(t, getTxosParams{AccountID: accountID.Hex(), Status: "spent"}))
	if err != nil {
		t.Fatalf("getTxos(status=spent) error = %v", err)
	}
	var noneOut struct {
		Txos []TxoJSON `json:"txos"`
	}
	unmarshalResult(t, none, &noneOut)
	if len(noneOut.Txos) != 0 {
		t.Fatalf("len(Txos) = %d, want 0", len(noneOut.Txos))
	}

	if _, err := s.getTxos(ctx, marshalParams(t, getTxosParams{AccountID: accountID.Hex(), Status: "bogus"})); err == nil {
		t.Error("getTxos(status=bogus) error = nil, want InvalidParams")
	}
}

func TestGetMcProtocolTxo(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)
	txo := depositTestTxo(t, s, accountID, 2, 1_000_000)

	got, err := s.getMcProtocolTxo(ctx, marshalParams(t, txoIDParams{TxoID: txo.TxoID.Hex()}))
	if err != nil {
		t.Fatalf("getMcProtocolTxo() error = %v", err)
	}
	out := got.(McProtocolTxoJSON)
	if out.PublicKey == "" || out.TargetKey == "" {
		t.Error("PublicKey/TargetKey empty, want hex-encoded wire fields")
	}
	if out.OutputBlob == "" {
		t.Error("OutputBlob empty")
	}
}
