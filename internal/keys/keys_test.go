package keys

import (
	"testing"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

func TestFromMnemonicDeterministic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}

	a1, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}
	a2, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}

	if DeriveAccountID(a1) != DeriveAccountID(a2) {
		t.Error("same mnemonic should derive the same account id")
	}
	if a1.ViewPublic != a2.ViewPublic || a1.SpendPublic != a2.SpendPublic {
		t.Error("same mnemonic should derive the same keys")
	}
}

func TestExportMnemonicRoundTrip(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		t.Fatalf("GenerateMnemonic() error = %v", err)
	}

	a, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}

	exported, err := ExportMnemonic(a)
	if err != nil {
		t.Fatalf("ExportMnemonic() error = %v", err)
	}
	if exported != mnemonic {
		t.Errorf("ExportMnemonic() = %q, want %q", exported, mnemonic)
	}
}

func TestExportMnemonicRejectsLegacy(t *testing.T) {
	entropy := make([]byte, 32)
	a, err := FromLegacyEntropy(entropy)
	if err != nil {
		t.Fatalf("FromLegacyEntropy() error = %v", err)
	}
	if _, err := ExportMnemonic(a); err == nil {
		t.Error("expected ExportMnemonic to fail for a legacy-derived account")
	}
}

func TestDifferentMnemonicsDeriveDifferentAccountIDs(t *testing.T) {
	m1, _ := GenerateMnemonic()
	m2, _ := GenerateMnemonic()
	a1, err := FromMnemonic(m1, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}
	a2, err := FromMnemonic(m2, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}
	if DeriveAccountID(a1) == DeriveAccountID(a2) {
		t.Error("distinct mnemonics should derive distinct account ids")
	}
}

func TestDeriveSubaddressMainMatchesAccountKeys(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	a, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}

	main, err := DeriveSubaddress(a, MainSubaddressIndex)
	if err != nil {
		t.Fatalf("DeriveSubaddress(main) error = %v", err)
	}
	if main.SpendPublic != a.SpendPublic || main.ViewPublic != a.ViewPublic {
		t.Error("main subaddress should equal the account's own keys")
	}

	change, err := DeriveSubaddress(a, ChangeSubaddressIndex)
	if err != nil {
		t.Fatalf("DeriveSubaddress(change) error = %v", err)
	}
	if change.SpendPublic == main.SpendPublic {
		t.Error("change subaddress should differ from main")
	}
}

func TestViewKeyMatchRecoversSpendPublic(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	a, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}

	sub, err := DeriveSubaddress(a, 7)
	if err != nil {
		t.Fatalf("DeriveSubaddress() error = %v", err)
	}

	// Simulate the sender: pick a one-time output for sub.SpendPublic using
	// an arbitrary transaction keypair r/R.
	txPriv, err := scalarFromSeed([]byte("tx-secret"), "tx-key")
	if err != nil {
		t.Fatalf("scalarFromSeed() error = %v", err)
	}
	txPub, err := publicFromPrivate(txPriv)
	if err != nil {
		t.Fatalf("publicFromPrivate() error = %v", err)
	}

	senderShared, err := scalarMultPoint(txPriv, [32]byte(sub.ViewPublic))
	if err != nil {
		t.Fatalf("sender shared secret: %v", err)
	}
	hs, err := outputScalar(senderShared, 0)
	if err != nil {
		t.Fatalf("outputScalar() error = %v", err)
	}
	hsG, err := publicFromPrivate(hs)
	if err != nil {
		t.Fatalf("publicFromPrivate(hs) error = %v", err)
	}
	targetKey, err := addPoints([32]byte(sub.SpendPublic), [32]byte(hsG))
	if err != nil {
		t.Fatalf("addPoints() error = %v", err)
	}

	out := Output{TxPublicKey: txPub, OutputIndex: 0, TargetKey: cryptoiface.PublicKey(targetKey)}

	receiverShared, err := SharedSecret(a.ViewPrivate, out.TxPublicKey)
	if err != nil {
		t.Fatalf("SharedSecret() error = %v", err)
	}
	if receiverShared != senderShared {
		t.Fatalf("receiver shared secret does not match sender's")
	}

	candidate, err := RecoverSpendPublic(receiverShared, out)
	if err != nil {
		t.Fatalf("RecoverSpendPublic() error = %v", err)
	}
	if candidate != sub.SpendPublic {
		t.Error("recovered spend public key does not match the subaddress that was paid")
	}
}

func TestAddressEncodeDecodeRoundTrip(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	a, err := FromMnemonic(mnemonic, "")
	if err != nil {
		t.Fatalf("FromMnemonic() error = %v", err)
	}
	sub, err := DeriveSubaddress(a, MainSubaddressIndex)
	if err != nil {
		t.Fatalf("DeriveSubaddress() error = %v", err)
	}

	addr := SubaddressPublicAddress(sub)
	encoded := addr.Encode()

	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("DecodeAddress() error = %v", err)
	}
	if decoded.SpendPublic != addr.SpendPublic || decoded.ViewPublic != addr.ViewPublic {
		t.Error("decoded address does not match encoded address")
	}
}

func TestDecodeAddressRejectsBadChecksum(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	a, _ := FromMnemonic(mnemonic, "")
	sub, _ := DeriveSubaddress(a, MainSubaddressIndex)
	encoded := SubaddressPublicAddress(sub).Encode()

	tampered := []byte(encoded)
	tampered[0]++
	if _, err := DecodeAddress(string(tampered)); err == nil {
		t.Error("expected decode error for tampered address")
	}
}

func TestDeriveKeyImageViewOnlyFails(t *testing.T) {
	mnemonic, _ := GenerateMnemonic()
	a, _ := FromMnemonic(mnemonic, "")
	viewOnly := ToViewOnly(a)

	if !viewOnly.IsViewOnly() {
		t.Fatal("expected ToViewOnly() to strip the spend private key")
	}

	_, err := DeriveKeyImage(viewOnly, MainSubaddressIndex, [32]byte{}, Output{})
	if err == nil {
		t.Error("expected DeriveKeyImage to fail for a view-only account")
	}
}

func TestConfirmationCodeValidatesOneWay(t *testing.T) {
	var shared [32]byte
	copy(shared[:], []byte("a shared secret used for testing"))
	var target cryptoiface.PublicKey
	copy(target[:], []byte("a target one-time output key....."))

	code := ComputeConfirmation(shared, target)
	if !ValidateConfirmation(shared, target, code) {
		t.Error("ValidateConfirmation should accept a code from the matching shared secret")
	}

	var wrongShared [32]byte
	copy(wrongShared[:], []byte("a different shared secret......."))
	if ValidateConfirmation(wrongShared, target, code) {
		t.Error("ValidateConfirmation should reject a code from a different shared secret")
	}
}

func TestViewTagDeterministicAndDiscriminating(t *testing.T) {
	var a, b [32]byte
	copy(a[:], []byte("shared secret one................"))
	copy(b[:], []byte("shared secret two................"))

	if ViewTag(a) != ViewTag(a) {
		t.Error("ViewTag should be deterministic for the same shared secret")
	}
	if ViewTag(a) == ViewTag(b) {
		t.Error("ViewTag should differ for different shared secrets (with overwhelming probability)")
	}
}
