package memo

import (
	"encoding/json"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// EncodeAuthenticatedSender encrypts an AuthenticatedSender memo for the
// output identified by (sharedSecret, targetKey).
func EncodeAuthenticatedSender(m AuthenticatedSender, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	return encodeTyped(TypeAuthenticatedSender, m, sharedSecret, targetKey)
}

// EncodeDestination encrypts a Destination memo, typically attached to a
// Builder's change output so the sender can later recall who a payment
// went to.
func EncodeDestination(m Destination, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	return encodeTyped(TypeDestination, m, sharedSecret, targetKey)
}

// EncodePaymentRequest encrypts a PaymentRequest memo.
func EncodePaymentRequest(m PaymentRequest, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	return encodeTyped(TypePaymentRequest, m, sharedSecret, targetKey)
}

// EncodePaymentIntent encrypts a PaymentIntent memo.
func EncodePaymentIntent(m PaymentIntent, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	return encodeTyped(TypePaymentIntent, m, sharedSecret, targetKey)
}

func encodeTyped(t Type, v any, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("memo: marshal %s payload: %w", t, err)
	}
	return Encode(t, payload, sharedSecret, targetKey)
}

// DecodeTyped decodes blob and unmarshals its payload into the struct shape
// matching its Type (AuthenticatedSender, Destination, PaymentRequest, or
// PaymentIntent). An unrecognized Type returns the raw Memo with a nil
// typed value, not an error — new memo types are forward-compatible.
func DecodeTyped(blob []byte, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) (*Memo, any, error) {
	m, err := Decode(blob, sharedSecret, targetKey)
	if err != nil {
		return nil, nil, err
	}

	var typed any
	switch m.Type {
	case TypeAuthenticatedSender:
		var v AuthenticatedSender
		if err := json.Unmarshal(m.Payload, &v); err == nil {
			typed = v
		}
	case TypeDestination:
		var v Destination
		if err := json.Unmarshal(m.Payload, &v); err == nil {
			typed = v
		}
	case TypePaymentRequest:
		var v PaymentRequest
		if err := json.Unmarshal(m.Payload, &v); err == nil {
			typed = v
		}
	case TypePaymentIntent:
		var v PaymentIntent
		if err := json.Unmarshal(m.Payload, &v); err == nil {
			typed = v
		}
	}
	return m, typed, nil
}
