package keys

import (
	"crypto/sha256"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/mr-tron/base58"
)

// addressVersionByte distinguishes this ledger's public addresses from
// other base58-encoded formats. A single version is used for both mainnet
// and testnet; network separation happens at the Store/Mirror level, not
// in the address encoding.
const addressVersionByte = 0x51

// PublicAddress is a subaddress's printable form: spend public key, view
// public key, and a checksum, matching spec.md §6 ("Public addresses use
// the project's base-58 printable encoding").
type PublicAddress struct {
	SpendPublic cryptoiface.PublicKey
	ViewPublic  cryptoiface.PublicKey
}

// Encode returns the base58 string for a public address.
func (p PublicAddress) Encode() string {
	payload := make([]byte, 0, 1+64)
	payload = append(payload, addressVersionByte)
	payload = append(payload, p.SpendPublic[:]...)
	payload = append(payload, p.ViewPublic[:]...)

	checksum := addressChecksum(payload)
	payload = append(payload, checksum[:4]...)

	return base58.Encode(payload)
}

// DecodeAddress parses a base58 public address string.
func DecodeAddress(s string) (PublicAddress, error) {
	payload, err := base58.Decode(s)
	if err != nil {
		return PublicAddress{}, fmt.Errorf("keys: decode base58 address: %w", err)
	}
	if len(payload) != 1+32+32+4 {
		return PublicAddress{}, fmt.Errorf("keys: wrong address length: got %d", len(payload))
	}
	if payload[0] != addressVersionByte {
		return PublicAddress{}, fmt.Errorf("keys: unrecognized address version byte 0x%x", payload[0])
	}

	body := payload[:1+32+32]
	want := addressChecksum(body)
	if string(want[:4]) != string(payload[len(payload)-4:]) {
		return PublicAddress{}, fmt.Errorf("keys: address checksum mismatch")
	}

	var addr PublicAddress
	copy(addr.SpendPublic[:], payload[1:33])
	copy(addr.ViewPublic[:], payload[33:65])
	return addr, nil
}

func addressChecksum(payload []byte) [32]byte {
	first := sha256.Sum256(payload)
	return sha256.Sum256(first[:])
}

// SubaddressPublicAddress builds the printable address for one subaddress.
func SubaddressPublicAddress(sub Subaddress) PublicAddress {
	return PublicAddress{SpendPublic: sub.SpendPublic, ViewPublic: sub.ViewPublic}
}
