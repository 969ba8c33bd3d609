package keys

import (
	cryptorand "crypto/rand"
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"
)

// AccountKeys holds the derived key material for one account. SpendPrivate
// is nil for view-only accounts.
type AccountKeys struct {
	DerivationVersion config.KeyDerivationVersion

	ViewPrivate  cryptoiface.PrivateKey
	ViewPublic   cryptoiface.PublicKey
	SpendPrivate *cryptoiface.PrivateKey
	SpendPublic  cryptoiface.PublicKey

	// entropy is retained only to support ExportMnemonic for v2 accounts.
	// It lives only in memory and is never persisted; the Store keeps the
	// derived keys only.
	entropy []byte
}

// IsViewOnly reports whether the account lacks a spend private key.
func (a *AccountKeys) IsViewOnly() bool {
	return a.SpendPrivate == nil
}

// FromMnemonic derives account keys from a 24-word BIP39 mnemonic
// (key-derivation version 2). The passphrase is optional.
func FromMnemonic(mnemonic, passphrase string) (*AccountKeys, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("keys: invalid mnemonic")
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("keys: recover entropy: %w", err)
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	ak, err := deriveFromSeed(seed)
	if err != nil {
		return nil, err
	}
	ak.DerivationVersion = config.KeyDerivationV2
	ak.entropy = entropy
	return ak, nil
}

// FromLegacyEntropy derives account keys from 32 bytes of raw entropy
// (key-derivation version 1). Deprecated: new accounts should use
// FromMnemonic, but importing legacy root entropy remains supported.
func FromLegacyEntropy(entropy []byte) (*AccountKeys, error) {
	if len(entropy) != 32 {
		return nil, fmt.Errorf("keys: legacy root entropy must be 32 bytes, got %d", len(entropy))
	}
	ak, err := deriveFromSeed(entropy)
	if err != nil {
		return nil, err
	}
	ak.DerivationVersion = config.KeyDerivationV1
	return ak, nil
}

// deriveFromSeed derives the view and spend scalars from arbitrary-length
// seed material using domain-separated, uniformly-reduced scalars so that
// the same seed always yields the same keypair.
func deriveFromSeed(seed []byte) (*AccountKeys, error) {
	viewPriv, err := scalarFromSeed(seed, "walletd-view-key")
	if err != nil {
		return nil, err
	}
	spendPriv, err := scalarFromSeed(seed, "walletd-spend-key")
	if err != nil {
		return nil, err
	}

	viewPub, err := publicFromPrivate(viewPriv)
	if err != nil {
		return nil, err
	}
	spendPub, err := publicFromPrivate(spendPriv)
	if err != nil {
		return nil, err
	}

	return &AccountKeys{
		ViewPrivate:  viewPriv,
		ViewPublic:   viewPub,
		SpendPrivate: &spendPriv,
		SpendPublic:  spendPub,
	}, nil
}

// ToViewOnly strips the spend private key, producing the keys a view-only
// account would hold.
func ToViewOnly(a *AccountKeys) *AccountKeys {
	return &AccountKeys{
		DerivationVersion: a.DerivationVersion,
		ViewPrivate:       a.ViewPrivate,
		ViewPublic:        a.ViewPublic,
		SpendPublic:       a.SpendPublic,
	}
}

// scalarFromSeed derives a canonical, uniformly-distributed scalar from
// seed material and a domain-separation label.
func scalarFromSeed(seed []byte, label string) (cryptoiface.PrivateKey, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: init hash: %w", err)
	}
	h.Write([]byte(label))
	h.Write(seed)
	wide := h.Sum(nil)

	s, err := edwards25519.NewScalar().SetUniformBytes(wide)
	if err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: reduce scalar: %w", err)
	}
	var out cryptoiface.PrivateKey
	copy(out[:], s.Bytes())
	return out, nil
}

// RandomPrivateKey generates a fresh uniformly-distributed scalar from the
// system CSPRNG. The Transaction Builder uses this for a transaction's
// per-output private key r, the CryptoNote-style ephemeral scalar whose
// public counterpart R = r*G is published as the output's transaction
// public key (spec.md §4.4 "Output assembly").
func RandomPrivateKey() (cryptoiface.PrivateKey, error) {
	var seed [64]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: read random seed: %w", err)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(seed[:])
	if err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: reduce scalar: %w", err)
	}
	var out cryptoiface.PrivateKey
	copy(out[:], s.Bytes())
	return out, nil
}

// PublicFromPrivate computes priv*G, exported for callers (the Transaction
// Builder) that need to derive a public key from a freshly generated
// private scalar outside this package.
func PublicFromPrivate(priv cryptoiface.PrivateKey) (cryptoiface.PublicKey, error) {
	return publicFromPrivate(priv)
}

// publicFromPrivate computes priv*G.
func publicFromPrivate(priv cryptoiface.PrivateKey) (cryptoiface.PublicKey, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(priv[:])
	if err != nil {
		return cryptoiface.PublicKey{}, fmt.Errorf("keys: decode scalar: %w", err)
	}
	p := edwards25519.NewIdentityPoint().ScalarBaseMult(s)
	var out cryptoiface.PublicKey
	copy(out[:], p.Bytes())
	return out, nil
}

// scalarMultPoint computes scalar*point, where point is a 32-byte encoded
// curve point (e.g. a transaction public key).
func scalarMultPoint(scalar cryptoiface.PrivateKey, point [32]byte) ([32]byte, error) {
	s, err := edwards25519.NewScalar().SetCanonicalBytes(scalar[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("keys: decode scalar: %w", err)
	}
	p, err := edwards25519.NewIdentityPoint().SetBytes(point[:])
	if err != nil {
		return [32]byte{}, fmt.Errorf("keys: decode point: %w", err)
	}
	result := edwards25519.NewIdentityPoint().ScalarMult(s, p)
	var out [32]byte
	copy(out[:], result.Bytes())
	return out, nil
}

// hashToScalar derives a deterministic scalar from arbitrary data, the
// CryptoNote "Hs" primitive used throughout subaddress and one-time-key
// derivation.
func hashToScalar(parts ...[]byte) (cryptoiface.PrivateKey, error) {
	h, err := blake2b.New512(nil)
	if err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: init hash: %w", err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	s, err := edwards25519.NewScalar().SetUniformBytes(h.Sum(nil))
	if err != nil {
		return cryptoiface.PrivateKey{}, fmt.Errorf("keys: reduce scalar: %w", err)
	}
	var out cryptoiface.PrivateKey
	copy(out[:], s.Bytes())
	return out, nil
}

// hashToPoint derives a deterministic curve point from arbitrary data, the
// CryptoNote "Hp" primitive used to derive key images. Unlike a
// cryptographically rigorous elligator-based hash-to-curve this uses
// hash-then-multiply-basepoint, which is sufficient for the wallet's own
// internal consistency (the same output always yields the same key image)
// without depending on the external ring-signature library for a function
// the wallet needs at scan time, before any signing occurs.
func hashToPoint(data []byte) ([32]byte, error) {
	sum := sha256.Sum256(data)
	scalar, err := edwards25519.NewScalar().SetUniformBytes(append(sum[:], sum[:]...))
	if err != nil {
		return [32]byte{}, fmt.Errorf("keys: reduce scalar: %w", err)
	}
	p := edwards25519.NewIdentityPoint().ScalarBaseMult(scalar)
	var out [32]byte
	copy(out[:], p.Bytes())
	return out, nil
}

func addScalars(a, b cryptoiface.PrivateKey) (cryptoiface.PrivateKey, error) {
	sa, err := edwards25519.NewScalar().SetCanonicalBytes(a[:])
	if err != nil {
		return cryptoiface.PrivateKey{}, err
	}
	sb, err := edwards25519.NewScalar().SetCanonicalBytes(b[:])
	if err != nil {
		return cryptoiface.PrivateKey{}, err
	}
	sum := edwards25519.NewScalar().Add(sa, sb)
	var out cryptoiface.PrivateKey
	copy(out[:], sum.Bytes())
	return out, nil
}

func addPoints(a, b [32]byte) ([32]byte, error) {
	pa, err := edwards25519.NewIdentityPoint().SetBytes(a[:])
	if err != nil {
		return [32]byte{}, err
	}
	pb, err := edwards25519.NewIdentityPoint().SetBytes(b[:])
	if err != nil {
		return [32]byte{}, err
	}
	sum := edwards25519.NewIdentityPoint().Add(pa, pb)
	var out [32]byte
	copy(out[:], sum.Bytes())
	return out, nil
}

func subPoints(a, b [32]byte) ([32]byte, error) {
	pa, err := edwards25519.NewIdentityPoint().SetBytes(a[:])
	if err != nil {
		return [32]byte{}, err
	}
	pb, err := edwards25519.NewIdentityPoint().SetBytes(b[:])
	if err != nil {
		return [32]byte{}, err
	}
	diff := edwards25519.NewIdentityPoint().Subtract(pa, pb)
	var out [32]byte
	copy(out[:], diff.Bytes())
	return out, nil
}
