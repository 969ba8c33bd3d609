package cryptoiface

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// FakeSigner is a deterministic, non-cryptographic RingSigner used by tests
// and by any binary not yet wired to the real Ledger crypto library. It is
// not safe against a real adversary: Sign produces an HMAC tag over the
// ring, key image, and message keyed by the real private key, and Verify
// only checks that some ring member's registered key reproduces that tag
// given the claimed key image. This is sufficient to exercise every
// wallet-core code path that depends on RingSigner without requiring the
// actual ledger cryptography to be present.
type FakeSigner struct {
	// Keys maps a ring member's PublicKey to the PrivateKey the fake
	// "knows" so Verify can recompute the expected tag for any ring
	// member without the real signer's key being passed in.
	Keys map[PublicKey]PrivateKey
}

// NewFakeSigner returns a FakeSigner with no registered keys.
func NewFakeSigner() *FakeSigner {
	return &FakeSigner{Keys: make(map[PublicKey]PrivateKey)}
}

// Register records the private key backing a public key so Verify can
// recognize signatures produced by Sign for it.
func (f *FakeSigner) Register(pub PublicKey, priv PrivateKey) {
	f.Keys[pub] = priv
}

func tag(priv PrivateKey, ring []RingMember, keyImage KeyImage, message []byte) []byte {
	mac := hmac.New(sha256.New, priv[:])
	for _, m := range ring {
		mac.Write(m.PublicKey[:])
	}
	mac.Write(keyImage[:])
	mac.Write(message)
	return mac.Sum(nil)
}

// Sign implements RingSigner.
func (f *FakeSigner) Sign(ring []RingMember, realIndex int, oneTimePriv PrivateKey, keyImage KeyImage, message []byte) (Signature, error) {
	if realIndex < 0 || realIndex >= len(ring) {
		return nil, fmt.Errorf("cryptoiface: real index %d out of range for ring of size %d", realIndex, len(ring))
	}
	return Signature(tag(oneTimePriv, ring, keyImage, message)), nil
}

// Verify implements RingSigner.
func (f *FakeSigner) Verify(ring []RingMember, keyImage KeyImage, message []byte, sig Signature) error {
	for _, m := range ring {
		priv, ok := f.Keys[m.PublicKey]
		if !ok {
			continue
		}
		if hmac.Equal(tag(priv, ring, keyImage, message), []byte(sig)) {
			return nil
		}
	}
	return fmt.Errorf("cryptoiface: signature does not match any registered ring member")
}

var _ RingSigner = (*FakeSigner)(nil)
