// Package cryptoiface declares the boundary between the wallet core and the
// Ledger's own cryptography: ring signature construction and verification.
// Per the governing specification this is an external library concern — the
// wallet core never implements CryptoNote ring-signature math itself, it
// only depends on this interface. A deterministic fake implementation is
// provided for tests; a real binary wires in the actual Ledger crypto
// library at startup.
package cryptoiface

import "fmt"

// KeySize is the width, in bytes, of every fixed-size key/image/point value
// the Ledger's crypto deals in.
const KeySize = 32

// PublicKey is a Ledger public key (a curve point).
type PublicKey [KeySize]byte

// PrivateKey is a Ledger private key (a curve scalar).
type PrivateKey [KeySize]byte

// KeyImage is the spend-unique tag derived from a one-time private key,
// used on-ledger to detect double-spends without revealing which ring
// member was the real input.
type KeyImage [KeySize]byte

// RingMember is one candidate (real input or mixin) in an input's ring.
type RingMember struct {
	PublicKey      PublicKey
	Commitment     [KeySize]byte // value commitment, opaque to the wallet
	GlobalIndex    uint64
	MembershipHash []byte // membership proof root this member was sampled against
}

// Signature is an opaque ring signature blob as produced by the Ledger
// crypto library; the wallet never inspects its internals.
type Signature []byte

// RingSigner is the declared boundary to the Ledger's ring-signature
// primitives. Implementations are expected to be safe for concurrent use.
type RingSigner interface {
	// Sign produces a ring signature proving knowledge of the private key
	// for ring[realIndex] without revealing realIndex, and binds keyImage
	// to that input.
	Sign(ring []RingMember, realIndex int, oneTimePriv PrivateKey, keyImage KeyImage, message []byte) (Signature, error)

	// Verify checks a ring signature against its ring, key image, and
	// signed message.
	Verify(ring []RingMember, keyImage KeyImage, message []byte, sig Signature) error
}

// ErrSignerUnavailable is returned by a RingSigner-consuming call when no
// spend private key is available (view-only accounts).
var ErrSignerUnavailable = fmt.Errorf("cryptoiface: signer unavailable for view-only account")
