package memo

import (
	"bytes"
	"testing"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	sharedSecret := [32]byte{1, 2, 3}
	targetKey := cryptoiface.PublicKey{9, 9, 9}

	blob, err := EncodeDestination(Destination{RecipientAddress: "addr123", TotalOutlay: 1000, Fee: 10}, sharedSecret, targetKey)
	if err != nil {
		t.Fatalf("EncodeDestination() error = %v", err)
	}

	m, typed, err := DecodeTyped(blob, sharedSecret, targetKey)
	if err != nil {
		t.Fatalf("DecodeTyped() error = %v", err)
	}
	if m.Type != TypeDestination {
		t.Fatalf("Type = %v, want TypeDestination", m.Type)
	}
	dest, ok := typed.(Destination)
	if !ok {
		t.Fatalf("typed = %T, want Destination", typed)
	}
	if dest.RecipientAddress != "addr123" || dest.TotalOutlay != 1000 || dest.Fee != 10 {
		t.Errorf("decoded = %+v, want RecipientAddress=addr123 TotalOutlay=1000 Fee=10", dest)
	}
}

func TestDecodeWrongSharedSecretIsUndecodable(t *testing.T) {
	sharedSecret := [32]byte{1, 2, 3}
	targetKey := cryptoiface.PublicKey{9, 9, 9}

	blob, err := EncodePaymentIntent(PaymentIntent{IntentID: 7, Note: "rent"}, sharedSecret, targetKey)
	if err != nil {
		t.Fatalf("EncodePaymentIntent() error = %v", err)
	}

	wrongSecret := [32]byte{9, 9, 9}
	if _, err := Decode(blob, wrongSecret, targetKey); err != ErrUndecodable {
		t.Fatalf("Decode() error = %v, want ErrUndecodable", err)
	}
}

func TestDecodeEmptyBlobIsUndecodable(t *testing.T) {
	if _, err := Decode(nil, [32]byte{}, cryptoiface.PublicKey{}); err != ErrUndecodable {
		t.Fatalf("Decode(nil) error = %v, want ErrUndecodable", err)
	}
}

func TestDecodeTamperedCiphertextIsUndecodable(t *testing.T) {
	sharedSecret := [32]byte{4, 5, 6}
	targetKey := cryptoiface.PublicKey{7, 8, 9}

	blob, err := EncodeAuthenticatedSender(AuthenticatedSender{SenderAddress: "addr-sender"}, sharedSecret, targetKey)
	if err != nil {
		t.Fatalf("EncodeAuthenticatedSender() error = %v", err)
	}
	tampered := bytes.Clone(blob)
	tampered[len(tampered)-1] ^= 0xff

	if _, err := Decode(tampered, sharedSecret, targetKey); err != ErrUndecodable {
		t.Fatalf("Decode(tampered) error = %v, want ErrUndecodable", err)
	}
}

func TestEncodeDifferentTargetKeyProducesDifferentCiphertext(t *testing.T) {
	sharedSecret := [32]byte{1}
	payload, err := EncodePaymentRequest(PaymentRequest{RequestID: 42}, sharedSecret, cryptoiface.PublicKey{1})
	if err != nil {
		t.Fatalf("EncodePaymentRequest() error = %v", err)
	}
	other, err := EncodePaymentRequest(PaymentRequest{RequestID: 42}, sharedSecret, cryptoiface.PublicKey{2})
	if err != nil {
		t.Fatalf("EncodePaymentRequest() error = %v", err)
	}
	if bytes.Equal(payload, other) {
		t.Error("ciphertexts for distinct target keys should differ")
	}
}
