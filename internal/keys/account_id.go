package keys

import "crypto/sha256"

// AccountID is the 32-byte content-derived account identifier (spec.md §3:
// "32-byte content-derived identifier, hex-encoded externally").
type AccountID [32]byte

// DeriveAccountID computes the account id for a keypair. It depends only
// on the public keys, so importing the same mnemonic twice always yields
// the same id (spec.md §8 property 1, "import idempotence").
func DeriveAccountID(a *AccountKeys) AccountID {
	h := sha256.New()
	h.Write([]byte("walletd-account-id"))
	h.Write(a.ViewPublic[:])
	h.Write(a.SpendPublic[:])
	var id AccountID
	copy(id[:], h.Sum(nil))
	return id
}
