package rpc

import (
	"context"
	"testing"
)

func TestAssignAndListAddressesForAccount(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)

	assigned, err := s.assignAddressForAccount(ctx, marshalParams(t, assignAddressParams{AccountID: accountID.Hex(), Comment: "gift"}))
	if err != nil {
		t.Fatalf("assignAddressForAccount() error = %v", err)
	}
	var assignOut struct {
		Address SubaddressJSON `json:"address"`
	}
	unmarshalResult(t, assigned, &assignOut)
	if assignOut.Address.SubaddressIndex != 2 {
		t.Errorf("SubaddressIndex = %d, want 2 (first index past main/change)", assignOut.Address.SubaddressIndex)
	}
	if assignOut.Address.Comment != "gift" {
		t.Errorf("Comment = %q, want gift", assignOut.Address.Comment)
	}
	if assignOut.Address.PublicAddress == "" {
		t.Error("PublicAddress is empty")
	}

	listed, err := s.getAddressesForAccount(ctx, marshalParams(t, accountIDParams{AccountID: accountID.Hex()}))
	if err != nil {
		t.Fatalf("getAddressesForAccount() error = %v", err)
	}
	var listOut struct {
		Addresses []SubaddressJSON `json:"addresses"`
	}
	unmarshalResult(t, listed, &listOut)
	if len(listOut.Addresses) != 3 {
		t.Fatalf("len(Addresses) = %d, want 3 (main, change, assigned)", len(listOut.Addresses))
	}
}

func TestVerifyAddress(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)

	addrs, err := s.getAddressesForAccount(ctx, marshalParams(t, accountIDParams{AccountID: accountID.Hex()}))
	if err != nil {
		t.Fatalf("getAddressesForAccount() error = %v", err)
	}
	var addrOut struct {
		Addresses []SubaddressJSON `json:"addresses"`
	}
	unmarshalResult(t, addrs, &addrOut)
	mainAddress := addrOut.Addresses[0].PublicAddress

	valid, err := s.verifyAddress(ctx, marshalParams(t, verifyAddressParams{PublicAddress: mainAddress}))
	if err != nil {
		t.Fatalf("verifyAddress() error = %v", err)
	}
	var validOut struct {
		Valid bool `json:"valid"`
	}
	unmarshalResult(t, valid, &validOut)
	if !validOut.Valid {
		t.Error("Valid = false, want true for a freshly derived address")
	}

	invalid, err := s.verifyAddress(ctx, marshalParams(t, verifyAddressParams{PublicAddress: "not-a-real-address"}))
	if err != nil {
		t.Fatalf("verifyAddress() error = %v", err)
	}
	var invalidOut struct {
		Valid bool `json:"valid"`
	}
	unmarshalResult(t, invalid, &invalidOut)
	if invalidOut.Valid {
		t.Error("Valid = true, want false for a malformed address")
	}

	status, err := s.getAddressStatus(ctx, marshalParams(t, verifyAddressParams{PublicAddress: mainAddress}))
	if err != nil {
		t.Fatalf("getAddressStatus() error = %v", err)
	}
	var statusOut struct {
		Address SubaddressJSON `json:"address"`
	}
	unmarshalResult(t, status, &statusOut)
	if statusOut.Address.AccountID != accountID.Hex() {
		t.Errorf("AccountID = %q, want %q", statusOut.Address.AccountID, accountID.Hex())
	}
}
