package rpc

import (
	"context"
	"encoding/json"

	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// AccountJSON is the wire shape of a Store Account (spec.md §6
// "Identifiers", §8 S1).
type AccountJSON struct {
	AccountID              string `json:"account_id"`
	Name                   string `json:"name"`
	DerivationVersion      uint32 `json:"derivation_version"`
	FirstBlockIndex        U64    `json:"first_block_index"`
	NextBlockIndex         U64    `json:"next_block_index"`
	MainSubaddressIndex    U64    `json:"main_subaddress_index"`
	ChangeSubaddressIndex  U64    `json:"change_subaddress_index"`
	NextSubaddressIndex    U64    `json:"next_subaddress_index"`
	RequireSpendSubaddress bool   `json:"require_spend_subaddress"`
	ViewOnly               bool   `json:"view_only"`
	RemoteSignerURL        string `json:"remote_signer_url,omitempty"`
}

func accountToJSON(a store.Account) AccountJSON {
	return AccountJSON{
		AccountID:              a.AccountID.Hex(),
		Name:                   a.Name,
		DerivationVersion:      uint32(a.DerivationVersion),
		FirstBlockIndex:        U64(a.FirstBlockIndex),
		NextBlockIndex:         U64(a.NextBlockIndex),
		MainSubaddressIndex:    U64(a.MainSubaddressIndex),
		ChangeSubaddressIndex:  U64(a.ChangeSubaddressIndex),
		NextSubaddressIndex:    U64(a.NextSubaddressIndex),
		RequireSpendSubaddress: a.RequireSpendSubaddress,
		ViewOnly:               a.SpendPrivateKey == nil,
		RemoteSignerURL:        a.RemoteSignerURL,
	}
}

// BalanceJSON is one token's balance breakdown for an account, derived per
// spec.md §8 property 4/8 from every owned TXO's pure Status().
type BalanceJSON struct {
	Unspent    U64 `json:"unspent"`
	Pending    U64 `json:"pending"`
	Spent      U64 `json:"spent"`
	Orphaned   U64 `json:"orphaned"`
	Secreted   U64 `json:"secreted"`
	Unverified U64 `json:"unverified"`
}

// AccountStatusResult is get_account_status's result.
type AccountStatusResult struct {
	Account         AccountJSON            `json:"account"`
	BalancePerToken map[string]BalanceJSON `json:"balance_per_token"`
}

func (s *Server) computeBalance(accountID store.AccountID) (map[string]BalanceJSON, error) {
	txos, err := s.store.ListTxos(store.TxoFilter{AccountID: &accountID, Limit: 1 << 20})
	if err != nil {
		return nil, err
	}
	out := make(map[string]BalanceJSON)
	for _, t := range txos {
		key := u64TokenKey(t.TokenID)
		b := out[key]
		switch t.Status() {
		case store.TxoStatusUnspent:
			b.Unspent += U64(t.Value)
		case store.TxoStatusPending:
			b.Pending += U64(t.Value)
		case store.TxoStatusSpent:
			b.Spent += U64(t.Value)
		case store.TxoStatusOrphaned:
			b.Orphaned += U64(t.Value)
		case store.TxoStatusSecreted:
			b.Secreted += U64(t.Value)
		case store.TxoStatusUnverified:
			b.Unverified += U64(t.Value)
		}
		out[key] = b
	}
	return out, nil
}

func u64TokenKey(id uint64) string {
	return U64(id).stringValue()
}

func (u U64) stringValue() string {
	b, _ := u.MarshalJSON()
	var s string
	json.Unmarshal(b, &s)
	return s
}

type createAccountParams struct {
	Name                   string `json:"name"`
	RequireSpendSubaddress bool   `json:"require_spend_subaddress"`
}

// createAccount implements create_account (spec.md §8 S1): generates a
// fresh mnemonic, derives version-2 keys, and materializes the main and
// change subaddresses.
func (s *Server) createAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p createAccountParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode create_account params: %w", err)
	}

	mnemonic, err := keys.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	ak, err := keys.FromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}

	account, err := s.persistNewAccount(ak, p.Name, p.RequireSpendSubaddress, "")
	if err != nil {
		return nil, err
	}
	if s.coordinator != nil {
		s.coordinator.AddAccount(account.AccountID)
	}

	return struct {
		Account  AccountJSON `json:"account"`
		Mnemonic string      `json:"mnemonic"`
	}{accountToJSON(account), mnemonic}, nil
}

type importAccountParams struct {
	Mnemonic               string `json:"mnemonic"`
	Passphrase             string `json:"passphrase"`
	Name                   string `json:"name"`
	RequireSpendSubaddress bool   `json:"require_spend_subaddress"`
	RemoteSignerURL        string `json:"remote_signer_url"`
}

// importAccount implements import_account (spec.md §8 S1 "a subsequent
// import_account with the same mnemonic returns AccountAlreadyExists").
func (s *Server) importAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p importAccountParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode import_account params: %w", err)
	}
	if !keys.ValidateMnemonic(p.Mnemonic) {
		return nil, invalidParams("invalid mnemonic")
	}

	ak, err := keys.FromMnemonic(p.Mnemonic, p.Passphrase)
	if err != nil {
		return nil, err
	}
	if p.RemoteSignerURL != "" {
		ak = keys.ToViewOnly(ak)
	}

	account, err := s.persistNewAccount(ak, p.Name, p.RequireSpendSubaddress, p.RemoteSignerURL)
	if err != nil {
		return nil, err
	}
	if s.coordinator != nil {
		s.coordinator.AddAccount(account.AccountID)
	}
	return struct {
		Account AccountJSON `json:"account"`
	}{accountToJSON(account)}, nil
}

type importLegacyEntropyParams struct {
	Entropy                string `json:"entropy"`
	Name                   string `json:"name"`
	RequireSpendSubaddress bool   `json:"require_spend_subaddress"`
}

// importAccountFromLegacyRootEntropy implements
// import_account_from_legacy_root_entropy (spec.md §9 "Key derivation
// versioning": version 1 remains accepted on import, deprecated but not
// removable).
func (s *Server) importAccountFromLegacyEntropy(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p importLegacyEntropyParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode import_account_from_legacy_root_entropy params: %w", err)
	}
	entropy, err := helpers.HexToBytes(p.Entropy)
	if err != nil {
		return nil, invalidParams("decode entropy: %w", err)
	}

	ak, err := keys.FromLegacyEntropy(entropy)
	if err != nil {
		return nil, err
	}
	account, err := s.persistNewAccount(ak, p.Name, p.RequireSpendSubaddress, "")
	if err != nil {
		return nil, err
	}
	if s.coordinator != nil {
		s.coordinator.AddAccount(account.AccountID)
	}
	return struct {
		Account AccountJSON `json:"account"`
	}{accountToJSON(account)}, nil
}

// persistNewAccount derives an account's main/change subaddresses and
// writes the account row, shared by create_account and every import
// variant (spec.md §8 S1's main_subaddress_index=0, change=1 invariant).
func (s *Server) persistNewAccount(ak *keys.AccountKeys, name string, requireSpendSubaddress bool, remoteSignerURL string) (store.Account, error) {
	accountID := store.AccountID(keys.DeriveAccountID(ak))

	mainSub, err := keys.DeriveSubaddress(ak, keys.MainSubaddressIndex)
	if err != nil {
		return store.Account{}, err
	}
	changeSub, err := keys.DeriveSubaddress(ak, keys.ChangeSubaddressIndex)
	if err != nil {
		return store.Account{}, err
	}

	account := store.Account{
		AccountID:              accountID,
		Name:                   name,
		DerivationVersion:      ak.DerivationVersion,
		ViewPrivateKey:         ak.ViewPrivate,
		ViewPublicKey:          ak.ViewPublic,
		SpendPrivateKey:        ak.SpendPrivate,
		SpendPublicKey:         ak.SpendPublic,
		MainSubaddressIndex:    keys.MainSubaddressIndex,
		ChangeSubaddressIndex:  keys.ChangeSubaddressIndex,
		NextSubaddressIndex:    2,
		RequireSpendSubaddress: requireSpendSubaddress,
		RemoteSignerURL:        remoteSignerURL,
	}
	mainRow := store.Subaddress{
		AccountID: accountID, SubaddressIndex: keys.MainSubaddressIndex,
		PublicAddressB58: keys.SubaddressPublicAddress(mainSub).Encode(),
		PublicSpendKey:   mainSub.SpendPublic, PublicViewKey: mainSub.ViewPublic,
	}
	changeRow := store.Subaddress{
		AccountID: accountID, SubaddressIndex: keys.ChangeSubaddressIndex,
		PublicAddressB58: keys.SubaddressPublicAddress(changeSub).Encode(),
		PublicSpendKey:   changeSub.SpendPublic, PublicViewKey: changeSub.ViewPublic,
	}

	if err := s.store.CreateAccount(account, mainRow, changeRow); err != nil {
		return store.Account{}, err
	}
	return account, nil
}

type accountIDParams struct {
	AccountID string `json:"account_id"`
}

func (p accountIDParams) parse() (store.AccountID, error) {
	return store.ParseAccountID(p.AccountID)
}

// getAccountStatus implements get_account_status (spec.md §8 S2 "
// balance_per_token['0'].unspent").
func (s *Server) getAccountStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_account_status params: %w", err)
	}
	accountID, err := p.parse()
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}

	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	balance, err := s.computeBalance(accountID)
	if err != nil {
		return nil, err
	}
	return AccountStatusResult{Account: accountToJSON(account), BalancePerToken: balance}, nil
}

// getAccounts implements get_accounts.
func (s *Server) getAccounts(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	accounts, err := s.store.ListAccounts()
	if err != nil {
		return nil, err
	}
	out := make([]AccountJSON, len(accounts))
	for i, a := range accounts {
		out[i] = accountToJSON(a)
	}
	return struct {
		Accounts []AccountJSON `json:"accounts"`
	}{out}, nil
}

type updateAccountNameParams struct {
	AccountID string `json:"account_id"`
	Name      string `json:"name"`
}

func (s *Server) updateAccountName(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p updateAccountNameParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode update_account_name params: %w", err)
	}
	accountID, err := store.ParseAccountID(p.AccountID)
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}
	if err := s.store.RenameAccount(accountID, p.Name); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return struct {
		Account AccountJSON `json:"account"`
	}{accountToJSON(account)}, nil
}

// removeAccount implements remove_account; the Coordinator stops scanning
// the account before the Store deletes it so the Scanner never reads a
// half-deleted account mid-pass.
func (s *Server) removeAccount(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode remove_account params: %w", err)
	}
	accountID, err := p.parse()
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}
	if s.coordinator != nil {
		s.coordinator.RemoveAccount(accountID)
	}
	if err := s.store.DeleteAccount(accountID); err != nil {
		return nil, err
	}
	return struct {
		Removed bool `json:"removed"`
	}{true}, nil
}

type setRequireSpendSubaddressParams struct {
	AccountID string `json:"account_id"`
	Require   bool   `json:"require_spend_subaddress"`
}

func (s *Server) setRequireSpendSubaddress(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p setRequireSpendSubaddressParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode set_require_spend_subaddress params: %w", err)
	}
	accountID, err := store.ParseAccountID(p.AccountID)
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}
	if err := s.store.SetRequireSpendSubaddress(accountID, p.Require); err != nil {
		return nil, err
	}
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	return struct {
		Account AccountJSON `json:"account"`
	}{accountToJSON(account)}, nil
}

// exportAccountSecrets implements export_account_secrets. The Store
// persists only derived private keys, not the recovery mnemonic's entropy
// (internal/keys.AccountKeys.entropy lives only in memory for the
// duration of an import/create call), so a version-2 account's mnemonic
// cannot be recovered after the fact — this returns the raw view/spend
// private keys, which is everything the Store can actually reconstruct.
func (s *Server) exportAccountSecrets(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p accountIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode export_account_secrets params: %w", err)
	}
	accountID, err := p.parse()
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}
	account, err := s.store.GetAccount(accountID)
	if err != nil {
		return nil, err
	}

	result := struct {
		AccountID         string `json:"account_id"`
		DerivationVersion uint32 `json:"derivation_version"`
		ViewPrivateKey    string `json:"view_private_key"`
		SpendPrivateKey   string `json:"spend_private_key,omitempty"`
	}{
		AccountID:         account.AccountID.Hex(),
		DerivationVersion: uint32(account.DerivationVersion),
		ViewPrivateKey:    helpers.BytesToHex(account.ViewPrivateKey[:]),
	}
	if account.SpendPrivateKey != nil {
		result.SpendPrivateKey = helpers.BytesToHex(account.SpendPrivateKey[:])
	}
	return result, nil
}
