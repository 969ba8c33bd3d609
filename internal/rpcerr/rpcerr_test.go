package rpcerr

import (
	"errors"
	"testing"

	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/txbuilder"
)

func TestMapStoreNotFound(t *testing.T) {
	err := store.NotFound("account", "deadbeef")
	m := Map(err)
	if m.Code != CodeNotFound {
		t.Errorf("Code = %v, want %v", m.Code, CodeNotFound)
	}
}

func TestMapInsufficientFunds(t *testing.T) {
	err := txbuilder.InsufficientFunds("need more")
	m := Map(err)
	if m.Code != CodeInsufficientFunds {
		t.Errorf("Code = %v, want %v", m.Code, CodeInsufficientFunds)
	}
}

func TestMapUnrecognizedErrorFallsBackToInternal(t *testing.T) {
	m := Map(errors.New("boom"))
	if m.Code != CodeInternal {
		t.Errorf("Code = %v, want %v", m.Code, CodeInternal)
	}
}

func TestMapNilIsZeroValue(t *testing.T) {
	if m := Map(nil); m.Code != 0 {
		t.Errorf("Map(nil).Code = %v, want 0", m.Code)
	}
}
