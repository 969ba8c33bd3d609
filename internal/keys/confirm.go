package keys

import (
	"crypto/hmac"
	"crypto/sha256"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// ConfirmationCode is a deterministic token the sender attaches to a minted
// output. A receiver who can recompute the same shared secret can validate
// that this sender constructed the output; the relation is one-way
// (spec.md §9 "Confirmation codes and receipts").
type ConfirmationCode [32]byte

// ComputeConfirmation derives the confirmation code for a minted output
// from the sender's shared secret and the output's target key.
func ComputeConfirmation(sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ConfirmationCode {
	mac := hmac.New(sha256.New, sharedSecret[:])
	mac.Write([]byte("walletd-confirmation"))
	mac.Write(targetKey[:])
	var out ConfirmationCode
	copy(out[:], mac.Sum(nil))
	return out
}

// ValidateConfirmation reports whether code matches the output identified
// by targetKey, given the shared secret the presenting party claims to
// have used. The receiver independently derives their own shared secret
// from their view private key and the output's transaction public key and
// passes it in; a match proves the sender constructed this exact output.
func ValidateConfirmation(sharedSecret [32]byte, targetKey cryptoiface.PublicKey, code ConfirmationCode) bool {
	expected := ComputeConfirmation(sharedSecret, targetKey)
	return hmac.Equal(expected[:], code[:])
}
