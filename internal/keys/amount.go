package keys

import "encoding/binary"

// MaskValue hides a (value, token_id) pair behind a keystream derived from
// an ECDH shared secret, the same role a confidential-amount commitment
// scheme plays on real CryptoNote ledgers without requiring the wallet to
// open or verify the on-ledger value commitment itself — per
// cryptoiface.RingMember's doc comment the commitment stays opaque to the
// wallet; the wallet recovers its own value by unmasking this pair instead.
func MaskValue(sharedSecret [32]byte, value, tokenID uint64) (maskedValue, maskedTokenID uint64) {
	ks := amountKeystream(sharedSecret)
	return value ^ ks[0], tokenID ^ ks[1]
}

// UnmaskValue reverses MaskValue.
func UnmaskValue(sharedSecret [32]byte, maskedValue, maskedTokenID uint64) (value, tokenID uint64) {
	ks := amountKeystream(sharedSecret)
	return maskedValue ^ ks[0], maskedTokenID ^ ks[1]
}

func amountKeystream(sharedSecret [32]byte) [2]uint64 {
	priv, err := hashToScalar([]byte("walletd-amount-mask"), sharedSecret[:])
	if err != nil {
		panic("keys: amount keystream: " + err.Error())
	}
	return [2]uint64{
		binary.LittleEndian.Uint64(priv[0:8]),
		binary.LittleEndian.Uint64(priv[8:16]),
	}
}
