package rpc

import (
	"errors"
	"fmt"

	"github.com/ledgervault/walletd/internal/rpcerr"
)

// paramErr marks a handler error as a malformed-request problem so
// handleRPC reports InvalidParams instead of consulting rpcerr's
// store/txbuilder/submit taxonomy.
type paramErr struct{ err error }

func (e *paramErr) Error() string { return e.err.Error() }
func (e *paramErr) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramErr{err: fmt.Errorf(format, args...)}
}

func mapHandlerError(err error) rpcerr.Mapped {
	var pe *paramErr
	if errors.As(err, &pe) {
		return rpcerr.Mapped{Code: InvalidParams, Message: pe.Error()}
	}
	return rpcerr.Map(err)
}
