package keys

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// Output is the minimal shape of an on-ledger output the Account Scanner
// needs for view-key matching: its transaction public key, its position in
// the owning transaction's output list, and its one-time target key.
type Output struct {
	TxPublicKey cryptoiface.PublicKey
	OutputIndex uint64
	TargetKey   cryptoiface.PublicKey
}

// SharedSecret computes the ECDH-style shared secret a view-key holder uses
// to recognize and decrypt data for an output, per spec.md §4.3 step 2a.
func SharedSecret(viewPrivate cryptoiface.PrivateKey, txPublicKey cryptoiface.PublicKey) ([32]byte, error) {
	return scalarMultPoint(viewPrivate, [32]byte(txPublicKey))
}

// RecoverSpendPublic computes the candidate subaddress spend public key for
// an output, given its shared secret. The caller looks this candidate up
// against the account's materialized subaddresses (spec.md §4.3 step 2b);
// no match means the output is orphaned until a matching subaddress is
// assigned.
func RecoverSpendPublic(sharedSecret [32]byte, o Output) (cryptoiface.PublicKey, error) {
	hs, err := outputScalar(sharedSecret, o.OutputIndex)
	if err != nil {
		return cryptoiface.PublicKey{}, err
	}
	hsG, err := publicFromPrivate(hs)
	if err != nil {
		return cryptoiface.PublicKey{}, fmt.Errorf("keys: derive Hs*G: %w", err)
	}
	candidate, err := subPoints([32]byte(o.TargetKey), [32]byte(hsG))
	if err != nil {
		return cryptoiface.PublicKey{}, fmt.Errorf("keys: recover spend key: %w", err)
	}
	return cryptoiface.PublicKey(candidate), nil
}

// DeriveOneTimeTargetKey computes the one-time target key a sender mints
// for a recipient's output: target_key = Hs(shared_secret, output_index)*G
// + recipient_spend_public. This is the forward half of the relation
// RecoverSpendPublic inverts on the receiving side (spec.md §4.4 "Output
// assembly").
func DeriveOneTimeTargetKey(sharedSecret [32]byte, outputIndex uint64, spendPublic cryptoiface.PublicKey) (cryptoiface.PublicKey, error) {
	hs, err := outputScalar(sharedSecret, outputIndex)
	if err != nil {
		return cryptoiface.PublicKey{}, err
	}
	hsG, err := publicFromPrivate(hs)
	if err != nil {
		return cryptoiface.PublicKey{}, fmt.Errorf("keys: derive Hs*G: %w", err)
	}
	targetKey, err := addPoints([32]byte(hsG), [32]byte(spendPublic))
	if err != nil {
		return cryptoiface.PublicKey{}, fmt.Errorf("keys: derive one-time target key: %w", err)
	}
	return cryptoiface.PublicKey(targetKey), nil
}

// DeriveKeyImage computes the key image for an owned output at the given
// subaddress index. Returns cryptoiface.ErrSignerUnavailable for view-only
// accounts, matching spec.md §4.3 step 2c ("for view-only accounts,
// key-image is unknown").
func DeriveKeyImage(a *AccountKeys, subaddressIndex uint64, sharedSecret [32]byte, o Output) (cryptoiface.KeyImage, error) {
	subSpendPriv, err := subaddressSpendPrivate(a, subaddressIndex)
	if err != nil {
		return cryptoiface.KeyImage{}, err
	}

	hs, err := outputScalar(sharedSecret, o.OutputIndex)
	if err != nil {
		return cryptoiface.KeyImage{}, err
	}

	oneTimePriv, err := addScalars(hs, subSpendPriv)
	if err != nil {
		return cryptoiface.KeyImage{}, fmt.Errorf("keys: derive one-time private key: %w", err)
	}

	hp, err := hashToPoint(o.TargetKey[:])
	if err != nil {
		return cryptoiface.KeyImage{}, fmt.Errorf("keys: hash target key to point: %w", err)
	}

	image, err := scalarMultPoint(oneTimePriv, hp)
	if err != nil {
		return cryptoiface.KeyImage{}, fmt.Errorf("keys: derive key image: %w", err)
	}
	return cryptoiface.KeyImage(image), nil
}

// OneTimePrivateKey recomputes the spendable private key for an owned
// output, used by the Transaction Builder when assembling ring signature
// inputs. Returns cryptoiface.ErrSignerUnavailable for view-only accounts.
func OneTimePrivateKey(a *AccountKeys, subaddressIndex uint64, sharedSecret [32]byte, outputIndex uint64) (cryptoiface.PrivateKey, error) {
	subSpendPriv, err := subaddressSpendPrivate(a, subaddressIndex)
	if err != nil {
		return cryptoiface.PrivateKey{}, err
	}
	hs, err := outputScalar(sharedSecret, outputIndex)
	if err != nil {
		return cryptoiface.PrivateKey{}, err
	}
	return addScalars(hs, subSpendPriv)
}

// ViewTag derives a single non-secret byte from a shared secret. A scanner
// carries this in the low byte of an output's encrypted-hint blob so it can
// reject the overwhelming majority of non-owned outputs without paying for
// a full RecoverSpendPublic computation — the view-tag optimization
// CryptoNote-lineage ledgers use to make per-account, per-output scanning
// practical (spec.md §4.3 step 2a, "attempt view-key matching... a match
// yields a candidate").
func ViewTag(sharedSecret [32]byte) byte {
	h := sha256.Sum256(append([]byte("walletd-view-tag"), sharedSecret[:]...))
	return h[0]
}

func outputScalar(sharedSecret [32]byte, outputIndex uint64) (cryptoiface.PrivateKey, error) {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], outputIndex)
	return hashToScalar([]byte("walletd-output-key"), sharedSecret[:], idx[:])
}
