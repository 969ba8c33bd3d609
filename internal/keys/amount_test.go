package keys

import "testing"

func TestMaskValueRoundTrip(t *testing.T) {
	var shared [32]byte
	copy(shared[:], []byte("a shared secret used for amounts"))

	value, tokenID := uint64(1_500_000_000), uint64(7)
	maskedValue, maskedTokenID := MaskValue(shared, value, tokenID)

	gotValue, gotTokenID := UnmaskValue(shared, maskedValue, maskedTokenID)
	if gotValue != value || gotTokenID != tokenID {
		t.Fatalf("UnmaskValue() = (%d, %d), want (%d, %d)", gotValue, gotTokenID, value, tokenID)
	}
}

func TestMaskValueHidesPlaintext(t *testing.T) {
	var shared [32]byte
	copy(shared[:], []byte("another shared secret for masks."))

	maskedValue, _ := MaskValue(shared, 42, 0)
	if maskedValue == 42 {
		t.Error("masked value should not equal the plaintext value")
	}
}

func TestMaskValueDiffersPerSharedSecret(t *testing.T) {
	var a, b [32]byte
	copy(a[:], []byte("shared secret one for mask test."))
	copy(b[:], []byte("shared secret two for mask test."))

	maskedA, _ := MaskValue(a, 100, 0)
	maskedB, _ := MaskValue(b, 100, 0)
	if maskedA == maskedB {
		t.Error("masking the same value under different shared secrets should differ")
	}
}
