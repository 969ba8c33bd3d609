// Package memo implements the memo framework (spec.md §9 "Memo framework"):
// a small set of typed, encrypted fields carried on a TXO, decoded opportunistically
// when the wallet already holds the output's shared secret. Decoding is a
// pure function of (sharedSecret, targetKey, ciphertext) and its absence is
// always non-fatal — a TXO with no memo, an unrecognized memo type, or a
// memo that fails to decrypt is simply a TXO without decoded memo data
// (spec.md §3's TXO attribute list: "optional decoded memo").
package memo

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
)

// Type identifies one of the four memo kinds spec.md §9 names.
type Type uint16

const (
	TypeAuthenticatedSender Type = 1
	TypeDestination         Type = 2
	TypePaymentRequest      Type = 3
	TypePaymentIntent       Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeAuthenticatedSender:
		return "authenticated_sender"
	case TypeDestination:
		return "destination"
	case TypePaymentRequest:
		return "payment_request"
	case TypePaymentIntent:
		return "payment_intent"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

const headerSize = 2 // big-endian Type code

// Memo is a decoded memo attached to a TXO.
type Memo struct {
	Type    Type
	Payload []byte
}

// AuthenticatedSender carries the sender's own subaddress, letting the
// recipient attribute a payment without an out-of-band channel.
type AuthenticatedSender struct {
	SenderAddress string
}

// Destination carries the recipient's own intended display address, used by
// the sender's change output to recall who a payment was sent to.
type Destination struct {
	RecipientAddress string
	TotalOutlay      uint64
	Fee              uint64
}

// PaymentRequest links a payment back to a request the recipient
// originated (e.g. an invoice id).
type PaymentRequest struct {
	RequestID uint64
}

// PaymentIntent is a free-form, sender-supplied note describing the purpose
// of a payment.
type PaymentIntent struct {
	IntentID uint64
	Note     string
}

// Encode encrypts payload under a key derived from sharedSecret and
// targetKey and prepends the memo type code, producing the ciphertext blob
// persisted in store.Txo.Memo. The type code is authenticated as associated
// data so a ciphertext cannot be replayed under a different type.
func Encode(memoType Type, payload []byte, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	aead, nonce, err := memoCipher(sharedSecret, targetKey)
	if err != nil {
		return nil, err
	}

	header := make([]byte, headerSize)
	binary.BigEndian.PutUint16(header, uint16(memoType))

	sealed := aead.Seal(nil, nonce, payload, header)
	return append(header, sealed...), nil
}

// Decode reverses Encode. A short or malformed blob, or a ciphertext that
// fails to authenticate under sharedSecret, returns ErrUndecodable — callers
// must treat this as "no memo", never as a fatal error.
func Decode(blob []byte, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) (*Memo, error) {
	if len(blob) < headerSize {
		return nil, ErrUndecodable
	}
	header := blob[:headerSize]
	ciphertext := blob[headerSize:]

	aead, nonce, err := memoCipher(sharedSecret, targetKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, header)
	if err != nil {
		return nil, ErrUndecodable
	}

	return &Memo{Type: Type(binary.BigEndian.Uint16(header)), Payload: plaintext}, nil
}

// memoCipher derives the AEAD and its (deterministic, per-output-unique)
// nonce from the output's shared secret and target key. Reusing the
// CryptoNote shared secret this way is safe because it is never reused
// across two distinct outputs (spec.md §4.2's one-time-key derivation gives
// every output its own r, hence its own ECDH secret).
func memoCipher(sharedSecret [32]byte, targetKey cryptoiface.PublicKey) (cipher.AEAD, []byte, error) {
	keyHash, err := blake2b.New256([]byte("walletd-memo-key"))
	if err != nil {
		return nil, nil, fmt.Errorf("memo: init key hash: %w", err)
	}
	keyHash.Write(sharedSecret[:])
	key := keyHash.Sum(nil)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, nil, fmt.Errorf("memo: init aead: %w", err)
	}

	nonceHash, err := blake2b.New(chacha20poly1305.NonceSize, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("memo: init nonce hash: %w", err)
	}
	nonceHash.Write([]byte("walletd-memo-nonce"))
	nonceHash.Write(sharedSecret[:])
	nonceHash.Write(targetKey[:])
	nonce := nonceHash.Sum(nil)

	return aead, nonce, nil
}
