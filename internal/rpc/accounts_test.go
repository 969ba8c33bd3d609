package rpc

import (
	"context"
	"errors"
	"testing"

	"github.com/ledgervault/walletd/internal/store"
)

// TestCreateAccount_S1 exercises spec.md §8 S1: a freshly created account's
// main/change subaddress indices are fixed at 0/1 and next_subaddress_index
// starts at 2.
func TestCreateAccount_S1(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	res, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}

	var out struct {
		Account  AccountJSON `json:"account"`
		Mnemonic string      `json:"mnemonic"`
	}
	unmarshalResult(t, res, &out)

	if out.Account.Name != "Alice" {
		t.Errorf("Name = %q, want Alice", out.Account.Name)
	}
	if out.Account.MainSubaddressIndex != 0 {
		t.Errorf("MainSubaddressIndex = %d, want 0", out.Account.MainSubaddressIndex)
	}
	if out.Account.ChangeSubaddressIndex != 1 {
		t.Errorf("ChangeSubaddressIndex = %d, want 1", out.Account.ChangeSubaddressIndex)
	}
	if out.Account.NextSubaddressIndex != 2 {
		t.Errorf("NextSubaddressIndex = %d, want 2", out.Account.NextSubaddressIndex)
	}
	if out.Account.ViewOnly {
		t.Error("ViewOnly = true, want false for a freshly generated account")
	}
	if out.Mnemonic == "" {
		t.Error("Mnemonic is empty")
	}
}

// TestImportAccount_AlreadyExists covers spec.md §8 S1: importing the same
// mnemonic twice returns AccountAlreadyExists rather than a second account.
func TestImportAccount_AlreadyExists(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	var first struct {
		Mnemonic string `json:"mnemonic"`
	}
	unmarshalResult(t, created, &first)

	_, err = s.importAccount(ctx, marshalParams(t, importAccountParams{Mnemonic: first.Mnemonic, Name: "Alice (again)"}))
	if err == nil {
		t.Fatal("importAccount() error = nil, want AlreadyExists")
	}
	var storeErr *store.Error
	if !errors.As(err, &storeErr) || storeErr.Kind != store.KindAlreadyExists {
		t.Fatalf("importAccount() error = %v, want store.KindAlreadyExists", err)
	}
}

// TestImportAccount_ViewOnlyWithRemoteSigner covers spec.md §9's view-only
// accounts: supplying a remote_signer_url strips the spend private key.
func TestImportAccount_ViewOnlyWithRemoteSigner(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Bob"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	var first struct {
		Mnemonic string `json:"mnemonic"`
	}
	unmarshalResult(t, created, &first)

	if err := s.store.DeleteAccount(mustAccountID(t, created)); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	res, err := s.importAccount(ctx, marshalParams(t, importAccountParams{
		Mnemonic:        first.Mnemonic,
		Name:            "Bob view-only",
		RemoteSignerURL: "https://signer.example/bob",
	}))
	if err != nil {
		t.Fatalf("importAccount() error = %v", err)
	}
	var out struct {
		Account AccountJSON `json:"account"`
	}
	unmarshalResult(t, res, &out)
	if !out.Account.ViewOnly {
		t.Error("ViewOnly = false, want true for an account imported with a remote_signer_url")
	}
	if out.Account.RemoteSignerURL != "https://signer.example/bob" {
		t.Errorf("RemoteSignerURL = %q, want https://signer.example/bob", out.Account.RemoteSignerURL)
	}
}

func mustAccountID(t *testing.T, res interface{}) store.AccountID {
	t.Helper()
	var out struct {
		Account AccountJSON `json:"account"`
	}
	unmarshalResult(t, res, &out)
	id, err := store.ParseAccountID(out.Account.AccountID)
	if err != nil {
		t.Fatalf("ParseAccountID() error = %v", err)
	}
	return id
}

func TestGetAccountsAndRemoveAccount(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)

	listed, err := s.getAccounts(ctx, nil)
	if err != nil {
		t.Fatalf("getAccounts() error = %v", err)
	}
	var listOut struct {
		Accounts []AccountJSON `json:"accounts"`
	}
	unmarshalResult(t, listed, &listOut)
	if len(listOut.Accounts) != 1 {
		t.Fatalf("len(Accounts) = %d, want 1", len(listOut.Accounts))
	}

	if _, err := s.removeAccount(ctx, marshalParams(t, accountIDParams{AccountID: accountID.Hex()})); err != nil {
		t.Fatalf("removeAccount() error = %v", err)
	}

	if _, err := s.store.GetAccount(accountID); err == nil {
		t.Fatal("GetAccount() error = nil after removeAccount, want NotFound")
	}
}

func TestUpdateAccountNameAndSetRequireSpendSubaddress(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	accountID := mustAccountID(t, created)

	renamed, err := s.updateAccountName(ctx, marshalParams(t, updateAccountNameParams{AccountID: accountID.Hex(), Name: "Alice 2"}))
	if err != nil {
		t.Fatalf("updateAccountName() error = %v", err)
	}
	var renameOut struct {
		Account AccountJSON `json:"account"`
	}
	unmarshalResult(t, renamed, &renameOut)
	if renameOut.Account.Name != "Alice 2" {
		t.Errorf("Name = %q, want Alice 2", renameOut.Account.Name)
	}

	updated, err := s.setRequireSpendSubaddress(ctx, marshalParams(t, setRequireSpendSubaddressParams{AccountID: accountID.Hex(), Require: true}))
	if err != nil {
		t.Fatalf("setRequireSpendSubaddress() error = %v", err)
	}
	var reqOut struct {
		Account AccountJSON `json:"account"`
	}
	unmarshalResult(t, updated, &reqOut)
	if !reqOut.Account.RequireSpendSubaddress {
		t.Error("RequireSpendSubaddress = false, want true")
	}
}

func TestExportAccountSecretsOmitsSpendKeyForViewOnly(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	created, err := s.createAccount(ctx, marshalParams(t, createAccountParams{Name: "Alice"}))
	if err != nil {
		t.Fatalf("createAccount() error = %v", err)
	}
	var first struct {
		Mnemonic string `json:"mnemonic"`
	}
	unmarshalResult(t, created, &first)
	accountID := mustAccountID(t, created)
	if err := s.store.DeleteAccount(accountID); err != nil {
		t.Fatalf("DeleteAccount() error = %v", err)
	}

	viewOnly, err := s.importAccount(ctx, marshalParams(t, importAccountParams{
		Mnemonic:        first.Mnemonic,
		Name:            "Alice view-only",
		RemoteSignerURL: "https://signer.example/alice",
	}))
	if err != nil {
		t.Fatalf("importAccount() error = %v", err)
	}
	viewOnlyID := mustAccountID(t, viewOnly)

	secrets, err := s.exportAccountSecrets(ctx, marshalParams(t, accountIDParams{AccountID: viewOnlyID.Hex()}))
	if err != nil {
		t.Fatalf("exportAccountSecrets() error = %v", err)
	}
	var out struct {
		ViewPrivateKey  string `json:"view_private_key"`
		SpendPrivateKey string `json:"spend_private_key,omitempty"`
	}
	unmarshalResult(t, secrets, &out)
	if out.ViewPrivateKey == "" {
		t.Error("ViewPrivateKey is empty")
	}
	if out.SpendPrivateKey != "" {
		t.Error("SpendPrivateKey is set, want empty for a view-only account")
	}
}
