package txbuilder

import (
	"errors"
	"fmt"
)

// Kind classifies a Transaction Builder error per spec.md §4.4's error
// taxonomy.
type Kind string

const (
	KindInsufficientFunds       Kind = "insufficient_funds"
	KindInsufficientMixins      Kind = "insufficient_mixins"
	KindRequiresSpendSubaddress Kind = "requires_spend_subaddress"
	KindInvalidTombstone        Kind = "invalid_tombstone"
	KindUnknownToken            Kind = "unknown_token"
	KindRingConstructionFailed  Kind = "ring_construction_failed"
	KindSignerUnavailable       Kind = "signer_unavailable"
	KindStoreError              Kind = "store_error"
)

// Error is the error type every Builder-boundary call returns on failure.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("txbuilder: %s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("txbuilder: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// InsufficientFunds builds an InsufficientFunds(detail) error.
func InsufficientFunds(detail string) error {
	return &Error{Kind: KindInsufficientFunds, Detail: detail}
}

// InsufficientMixins builds an InsufficientMixins(detail) error.
func InsufficientMixins(detail string, err error) error {
	return &Error{Kind: KindInsufficientMixins, Detail: detail, Err: err}
}

// RequiresSpendSubaddress builds a RequiresSpendSubaddress error.
func RequiresSpendSubaddress() error {
	return &Error{Kind: KindRequiresSpendSubaddress, Detail: "account requires an explicit spend subaddress"}
}

// InvalidTombstone builds an InvalidTombstone(detail) error.
func InvalidTombstone(detail string) error {
	return &Error{Kind: KindInvalidTombstone, Detail: detail}
}

// UnknownToken builds an UnknownToken(id) error.
func UnknownToken(tokenID uint64) error {
	return &Error{Kind: KindUnknownToken, Detail: fmt.Sprintf("token id %d is not in the registry", tokenID)}
}

// RingConstructionFailed builds a RingConstructionFailed(detail) error.
func RingConstructionFailed(detail string, err error) error {
	return &Error{Kind: KindRingConstructionFailed, Detail: detail, Err: err}
}

// SignerUnavailable builds a SignerUnavailable error.
func SignerUnavailable(detail string) error {
	return &Error{Kind: KindSignerUnavailable, Detail: detail}
}

// StoreErr wraps a Store error as StoreError(detail).
func StoreErr(detail string, err error) error {
	return &Error{Kind: KindStoreError, Detail: detail, Err: err}
}

// IsInsufficientFunds reports whether err is (or wraps) an InsufficientFunds error.
func IsInsufficientFunds(err error) bool { return hasKind(err, KindInsufficientFunds) }

// IsInsufficientMixins reports whether err is (or wraps) an InsufficientMixins error.
func IsInsufficientMixins(err error) bool { return hasKind(err, KindInsufficientMixins) }

// IsRequiresSpendSubaddress reports whether err is (or wraps) a RequiresSpendSubaddress error.
func IsRequiresSpendSubaddress(err error) bool { return hasKind(err, KindRequiresSpendSubaddress) }

// IsInvalidTombstone reports whether err is (or wraps) an InvalidTombstone error.
func IsInvalidTombstone(err error) bool { return hasKind(err, KindInvalidTombstone) }

// IsUnknownToken reports whether err is (or wraps) an UnknownToken error.
func IsUnknownToken(err error) bool { return hasKind(err, KindUnknownToken) }

// IsRingConstructionFailed reports whether err is (or wraps) a RingConstructionFailed error.
func IsRingConstructionFailed(err error) bool { return hasKind(err, KindRingConstructionFailed) }

// IsSignerUnavailable reports whether err is (or wraps) a SignerUnavailable error.
func IsSignerUnavailable(err error) bool { return hasKind(err, KindSignerUnavailable) }

// IsStoreError reports whether err is (or wraps) a StoreError.
func IsStoreError(err error) bool { return hasKind(err, KindStoreError) }

func hasKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
