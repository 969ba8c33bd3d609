package rpc

import (
	"context"
	"encoding/json"

	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/scanner"
	"github.com/ledgervault/walletd/internal/store"
)

// SubaddressJSON is the wire shape of a Store Subaddress.
type SubaddressJSON struct {
	AccountID       string `json:"account_id"`
	SubaddressIndex U64    `json:"subaddress_index"`
	PublicAddress   string `json:"public_address"`
	Comment         string `json:"comment,omitempty"`
}

func subaddressToJSON(sub store.Subaddress) SubaddressJSON {
	return SubaddressJSON{
		AccountID:       sub.AccountID.Hex(),
		SubaddressIndex: U64(sub.SubaddressIndex),
		PublicAddress:   sub.PublicAddressB58,
		Comment:         sub.Comment,
	}
}

// accountKeysForDerivation rebuilds the subset of AccountKeys that
// DeriveSubaddress needs (view private key, both public keys) from the
// Store's persisted Account row. It cannot recover the original mnemonic
// entropy — see exportAccountSecrets — but subaddress derivation never
// needs it.
func accountKeysForDerivation(a store.Account) *keys.AccountKeys {
	return &keys.AccountKeys{
		DerivationVersion: a.DerivationVersion,
		ViewPrivate:       a.ViewPrivateKey,
		ViewPublic:        a.ViewPublicKey,
		SpendPublic:       a.SpendPublicKey,
	}
}

type assignAddressParams struct {
	AccountID string `json:"account_id"`
	Comment   string `json:"comment"`
}

// assignAddressForAccount implements assign_address_for_account: allocates
// the next subaddress index, derives+persists its keys, then links any
// orphaned TXOs that match the new subaddress.
func (s *Server) assignAddressForAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p assignAddressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode assign_address_for_account params: %w", err)
	}
	accountID, err := store.ParseAccountID(p.AccountID)
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}

	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	index, err := s.store.AllocateSubaddressIndex(accountID)
	if err != nil {
		return nil, err
	}

	derived, err := keys.DeriveSubaddress(accountKeysForDerivation(account), index)
	if err != nil {
		return nil, err
	}
	row := store.Subaddress{
		AccountID:        accountID,
		SubaddressIndex:  index,
		PublicAddressB58: keys.SubaddressPublicAddress(derived).Encode(),
		PublicSpendKey:   derived.SpendPublic,
		PublicViewKey:    derived.ViewPublic,
		Comment:          p.Comment,
	}
	if err := s.store.AssignSubaddress(row); err != nil {
		return nil, err
	}
	if err := scanner.New(scanner.Config{Store: s.store, Mirror: s.mirror, AccountID: accountID}).RecoverOrphans(); err != nil {
		return nil, err
	}
	return struct {
		Address SubaddressJSON `json:"address"`
	}{subaddressToJSON(row)}, nil
}

func (s *Server) getAddressesForAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_addresses_for_account params: %w", err)
	}
	accountID, err := p.parse()
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}

	subs, err := s.store.GetSubaddressesForAccount(accountID)
	if err != nil {
		return nil, err
	}
	out := make([]SubaddressJSON, len(subs))
	for i, sub := range subs {
		out[i] = subaddressToJSON(sub)
	}
	return struct {
		Addresses []SubaddressJSON `json:"addresses"`
	}{out}, nil
}

type verifyAddressParams struct {
	PublicAddress string `json:"public_address"`
}

// verifyAddress implements verify_address: decodes a base58 address,
// rejecting it without touching the Store if malformed.
func (s *Server) verifyAddress(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p verifyAddressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode verify_address params: %w", err)
	}
	_, err := keys.DecodeAddress(p.PublicAddress)
	valid := err == nil
	return struct {
		Valid bool `json:"valid"`
	}{valid}, nil
}

func (s *Server) getAddressStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p verifyAddressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_address_status params: %w", err)
	}
	sub, err := s.store.GetSubaddressByPublicAddress(p.PublicAddress)
	if err != nil {
		return nil, err
	}
	return struct {
		Address SubaddressJSON `json:"address"`
	}{subaddressToJSON(sub)}, nil
}
