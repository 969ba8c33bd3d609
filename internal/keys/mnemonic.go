// Package keys implements account key derivation, subaddress derivation,
// view-key output matching, key-image derivation, and confirmation codes
// for the wallet's CryptoNote-derived accounts.
package keys

import (
	"fmt"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/tyler-smith/go-bip39"
)

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic (key-derivation
// version 2).
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("keys: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("keys: generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// ValidateMnemonic reports whether mnemonic is a well-formed BIP39 phrase.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// ExportMnemonic recovers the 24-word mnemonic for keys derived with
// KeyDerivationV2. It fails for legacy (v1) accounts, which have no
// mnemonic to recover.
func ExportMnemonic(a *AccountKeys) (string, error) {
	if a.DerivationVersion != config.KeyDerivationV2 {
		return "", fmt.Errorf("keys: export mnemonic requires key-derivation-version 2, got %d", a.DerivationVersion)
	}
	if len(a.entropy) == 0 {
		return "", fmt.Errorf("keys: account has no recoverable entropy")
	}
	mnemonic, err := bip39.NewMnemonic(a.entropy)
	if err != nil {
		return "", fmt.Errorf("keys: re-encode mnemonic: %w", err)
	}
	return mnemonic, nil
}
