package keys

import (
	"encoding/binary"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// MainSubaddressIndex and ChangeSubaddressIndex are reserved per spec.md §3.
const (
	MainSubaddressIndex   = 0
	ChangeSubaddressIndex = 1
)

// Subaddress holds the derived public keys for one subaddress index.
type Subaddress struct {
	Index       uint64
	SpendPublic cryptoiface.PublicKey
	ViewPublic  cryptoiface.PublicKey
}

// subaddressScalar computes m_i = Hs(view_private || index), the scalar
// that shifts the main spend key into subaddress i.
func subaddressScalar(viewPrivate cryptoiface.PrivateKey, index uint64) (cryptoiface.PrivateKey, error) {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], index)
	return hashToScalar([]byte("walletd-subaddress"), viewPrivate[:], idx[:])
}

// DeriveSubaddress derives the public spend/view keys for subaddress index
// of the given account. Index 0 returns the account's main keys unchanged.
func DeriveSubaddress(a *AccountKeys, index uint64) (Subaddress, error) {
	if index == MainSubaddressIndex {
		return Subaddress{Index: index, SpendPublic: a.SpendPublic, ViewPublic: a.ViewPublic}, nil
	}

	m, err := subaddressScalar(a.ViewPrivate, index)
	if err != nil {
		return Subaddress{}, fmt.Errorf("keys: derive subaddress scalar: %w", err)
	}

	mG, err := publicFromPrivate(m)
	if err != nil {
		return Subaddress{}, fmt.Errorf("keys: derive m*G: %w", err)
	}

	spendPublic, err := addPoints([32]byte(a.SpendPublic), [32]byte(mG))
	if err != nil {
		return Subaddress{}, fmt.Errorf("keys: derive subaddress spend key: %w", err)
	}

	// Every subaddress carries the account's main view public key, so a
	// sender's shared secret r*ViewPublic equals the receiver's
	// view_private*R for R = r*G.
	return Subaddress{
		Index:       index,
		SpendPublic: cryptoiface.PublicKey(spendPublic),
		ViewPublic:  a.ViewPublic,
	}, nil
}

// subaddressSpendPrivate computes the effective spend private key for
// subaddress index, needed to derive that subaddress's key images. Returns
// an error if the account has no spend private key (view-only).
func subaddressSpendPrivate(a *AccountKeys, index uint64) (cryptoiface.PrivateKey, error) {
	if a.SpendPrivate == nil {
		return cryptoiface.PrivateKey{}, cryptoiface.ErrSignerUnavailable
	}
	if index == MainSubaddressIndex {
		return *a.SpendPrivate, nil
	}
	m, err := subaddressScalar(a.ViewPrivate, index)
	if err != nil {
		return cryptoiface.PrivateKey{}, err
	}
	return addScalars(*a.SpendPrivate, m)
}
