package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// AccountID is the 32-byte content-derived account identifier (spec.md §3).
type AccountID [32]byte

// Hex returns the external hex-encoded representation (spec.md §6
// "Identifiers").
func (id AccountID) Hex() string { return hex.EncodeToString(id[:]) }

// ParseAccountID decodes a hex-encoded account id.
func ParseAccountID(s string) (AccountID, error) {
	var id AccountID
	if err := decodeFixed(s, id[:]); err != nil {
		return AccountID{}, fmt.Errorf("store: parse account id: %w", err)
	}
	return id, nil
}

// TxoID is the content-derived identifier of a TXO, a deterministic
// function of the output's public key (spec.md §3).
type TxoID [32]byte

func (id TxoID) Hex() string { return hex.EncodeToString(id[:]) }

func ParseTxoID(s string) (TxoID, error) {
	var id TxoID
	if err := decodeFixed(s, id[:]); err != nil {
		return TxoID{}, fmt.Errorf("store: parse txo id: %w", err)
	}
	return id, nil
}

// DeriveTxoID computes the content-derived txo_id for an output's public
// key, matching keys.DeriveAccountID's domain-separated-hash approach.
func DeriveTxoID(publicKey cryptoiface.PublicKey) TxoID {
	h := sha256.New()
	h.Write([]byte("walletd-txo-id"))
	h.Write(publicKey[:])
	var id TxoID
	copy(id[:], h.Sum(nil))
	return id
}

// TransactionLogID is the content-derived identifier of a TransactionLog
// (spec.md §3).
type TransactionLogID [32]byte

func (id TransactionLogID) Hex() string { return hex.EncodeToString(id[:]) }

func ParseTransactionLogID(s string) (TransactionLogID, error) {
	var id TransactionLogID
	if err := decodeFixed(s, id[:]); err != nil {
		return TransactionLogID{}, fmt.Errorf("store: parse transaction log id: %w", err)
	}
	return id, nil
}

func decodeFixed(s string, out []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(out) {
		return fmt.Errorf("wrong length: got %d, want %d", len(b), len(out))
	}
	copy(out, b)
	return nil
}
