// Package rpcerr maps the typed errors returned by internal/store,
// internal/txbuilder, and internal/submit onto stable JSON-RPC error codes,
// per spec.md §7's taxonomy (transient, stateful rejection, logical
// validation, corruption, fatal). It is the single place that decides what
// an internal Kind means to an external caller, the way
// internal/rpc/server.go's handleRPC is the single place that decides what
// shape a response takes.
package rpcerr

import (
	"errors"

	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/submit"
	"github.com/ledgervault/walletd/internal/txbuilder"
)

// Code is a stable, caller-facing error code. These sit in the JSON-RPC
// error object's "code" field alongside the standard -327xx range; none of
// them collide with it.
type Code int

const (
	CodeNotFound               Code = -40001
	CodeAlreadyExists          Code = -40002
	CodeInvariantViolation     Code = -40003
	CodeIO                     Code = -40004
	CodeInsufficientFunds      Code = -40010
	CodeInsufficientMixins     Code = -40011
	CodeRequiresSpendSubaddr   Code = -40012
	CodeInvalidTombstone       Code = -40013
	CodeUnknownToken           Code = -40014
	CodeRingConstructionFailed Code = -40015
	CodeSignerUnavailable      Code = -40016
	CodeNetworkError           Code = -40020
	CodeProtocolRejection      Code = -40021
	CodeInvalidMnemonic        Code = -40030
	CodeKeyDerivationVersion   Code = -40031
	CodeInternal               Code = -32603
)

// Mapped is the (code, message) pair that internal/rpc's handleRPC
// (server.go) turns into a JSON-RPC Error.
type Mapped struct {
	Code    Code
	Message string
}

// Map classifies err into a stable code and message. Errors it doesn't
// recognize fall back to CodeInternal — the handler's caller still sees a
// well-formed JSON-RPC error, just without a specific taxonomy code.
func Map(err error) Mapped {
	if err == nil {
		return Mapped{}
	}

	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		switch storeErr.Kind {
		case store.KindNotFound:
			return Mapped{CodeNotFound, err.Error()}
		case store.KindAlreadyExists:
			return Mapped{CodeAlreadyExists, err.Error()}
		case store.KindInvariantViolation:
			return Mapped{CodeInvariantViolation, err.Error()}
		case store.KindIO:
			return Mapped{CodeIO, err.Error()}
		}
	}

	var buildErr *txbuilder.Error
	if errors.As(err, &buildErr) {
		switch buildErr.Kind {
		case txbuilder.KindInsufficientFunds:
			return Mapped{CodeInsufficientFunds, err.Error()}
		case txbuilder.KindInsufficientMixins:
			return Mapped{CodeInsufficientMixins, err.Error()}
		case txbuilder.KindRequiresSpendSubaddress:
			return Mapped{CodeRequiresSpendSubaddr, err.Error()}
		case txbuilder.KindInvalidTombstone:
			return Mapped{CodeInvalidTombstone, err.Error()}
		case txbuilder.KindUnknownToken:
			return Mapped{CodeUnknownToken, err.Error()}
		case txbuilder.KindRingConstructionFailed:
			return Mapped{CodeRingConstructionFailed, err.Error()}
		case txbuilder.KindSignerUnavailable:
			return Mapped{CodeSignerUnavailable, err.Error()}
		case txbuilder.KindStoreError:
			return Mapped{CodeIO, err.Error()}
		}
	}

	var submitErr *submit.Error
	if errors.As(err, &submitErr) {
		switch submitErr.Kind {
		case submit.KindNetworkError:
			return Mapped{CodeNetworkError, err.Error()}
		case submit.KindProtocolRejection:
			return Mapped{CodeProtocolRejection, err.Error()}
		case submit.KindStoreError:
			return Mapped{CodeIO, err.Error()}
		}
	}

	return Mapped{CodeInternal, err.Error()}
}
