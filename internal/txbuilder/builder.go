// Package txbuilder implements the Transaction Builder: TXO selection,
// ring and membership-proof assembly, output minting, and ring signing for
// a single outgoing transaction, persisted atomically as a TransactionLog
// in status "built" (spec.md §4.4).
package txbuilder

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/memo"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/ring"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/pkg/logging"
)

// Recipient is one payload destination.
type Recipient struct {
	Address string
	Value   uint64
}

// Request describes a transaction to build (spec.md §4.4 "Inputs").
type Request struct {
	AccountID            store.AccountID
	TokenID              uint64
	Recipients           []Recipient
	ExplicitInputIDs     []store.TxoID
	Fee                  *uint64
	Tombstone            *uint64
	MaxSpendableValue    *uint64
	SpendSubaddressIndex *uint64
	Comment              string
}

// Config configures a Builder.
type Config struct {
	Store  *store.Store
	Mirror *ledgermirror.Mirror
	Signer cryptoiface.RingSigner
	Logger *logging.Logger
}

// Builder assembles and signs transactions for one wallet's accounts.
type Builder struct {
	store  *store.Store
	mirror *ledgermirror.Mirror
	signer cryptoiface.RingSigner
	logger *logging.Logger
}

// New constructs a Builder.
func New(cfg Config) *Builder {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	return &Builder{
		store:  cfg.Store,
		mirror: cfg.Mirror,
		signer: cfg.Signer,
		logger: logger.Component("txbuilder"),
	}
}

// RingInput is one input's assembled ring, shared between a fully signed
// TxProposal's bookkeeping and an UnsignedTxProposal, so a remote signer
// completing the latter works from the same material a local signer would
// have used (spec.md §4.4 "TxProposal vs UnsignedTxProposal for view-only").
type RingInput struct {
	TxoID           store.TxoID
	Ring            []cryptoiface.RingMember
	RealIndex       int
	Proof           ring.MembershipProof
	SubaddressIndex uint64
	OutputIndex     uint64
	SharedSecret    [32]byte
}

// SignedInput is one input's completed ring signature, as it appears in a
// RawTransaction.
type SignedInput struct {
	KeyImage  cryptoiface.KeyImage
	Ring      []cryptoiface.RingMember
	Signature cryptoiface.Signature
}

// RawOutput is one minted output's wire shape.
type RawOutput struct {
	TxPublicKey   cryptoiface.PublicKey
	TargetKey     cryptoiface.PublicKey
	Commitment    [32]byte
	MaskedValue   uint64
	MaskedTokenID uint64
	EncryptedHint []byte
	OutputIndex   uint64
}

// RawTransaction is the opaque blob TxProposal.RawTx encodes for
// Submission to hand a peer, JSON-encoded the same way internal/ledgermirror
// encodes on-ledger structures for its own storage.
type RawTransaction struct {
	Inputs              []SignedInput
	Outputs             []RawOutput
	Fee                 uint64
	FeeTokenID          uint64
	TombstoneBlockIndex uint64
}

// TxProposal is a fully signed transaction ready for Submission.
type TxProposal struct {
	LogID          store.TransactionLogID
	RawTx          []byte
	KeyImagesSpent []cryptoiface.KeyImage
}

// UnsignedTxProposal is produced for view-only accounts: every ring is
// assembled and every output minted, but each input still needs its
// one-time private key and key image derived by whoever holds the spend
// key (spec.md §4.4).
type UnsignedTxProposal struct {
	LogID               store.TransactionLogID
	Inputs              []RingInput
	Outputs             []RawOutput
	Fee                 uint64
	FeeTokenID          uint64
	TombstoneBlockIndex uint64
}

// BuildResult is Build's return value: exactly one of Signed or Unsigned is
// set, depending on whether the account holds a spend private key.
type BuildResult struct {
	Signed   *TxProposal
	Unsigned *UnsignedTxProposal
}

type recipientTarget struct {
	address keys.PublicAddress
	value   uint64
}

type mintedOutput struct {
	raw          RawOutput
	txo          store.Txo
	logOutput    store.TransactionLogOutput
	sharedSecret [32]byte
}

// Build assembles, and — for accounts holding a spend private key — signs,
// a transaction satisfying req, persisting it as a TransactionLog in
// status "built" (spec.md §4.4 "Transaction log is written atomically").
func (b *Builder) Build(req Request) (*BuildResult, error) {
	if len(req.Recipients) == 0 {
		return nil, fmt.Errorf("txbuilder: at least one recipient is required")
	}
	if !config.IsKnownToken(req.TokenID) {
		return nil, UnknownToken(req.TokenID)
	}

	account, err := b.store.GetAccount(req.AccountID)
	if err != nil {
		return nil, StoreErr("read account", err)
	}
	if account.RequireSpendSubaddress && req.SpendSubaddressIndex == nil {
		return nil, RequiresSpendSubaddress()
	}

	tombstone, err := b.resolveTombstone(req.Tombstone)
	if err != nil {
		return nil, err
	}

	fee := config.DefaultFeeValue
	if req.Fee != nil {
		fee = *req.Fee
	}

	recipients, payloadSum, err := decodeRecipients(req.Recipients)
	if err != nil {
		return nil, err
	}

	tokenTargets := map[uint64]uint64{req.TokenID: payloadSum}
	tokenTargets[config.BaseTokenID] += fee

	inputs, err := b.collectInputs(req.AccountID, tokenTargets, req.SpendSubaddressIndex, req.ExplicitInputIDs, req.MaxSpendableValue)
	if err != nil {
		return nil, err
	}
	changeByToken := changeAmounts(inputs, tokenTargets)

	ak := accountKeysFromAccount(account)

	ringInputs, err := b.assembleRings(inputs)
	if err != nil {
		return nil, err
	}

	changeSub, err := b.store.GetSubaddressesForAccount(req.AccountID)
	if err != nil {
		return nil, StoreErr("list subaddresses", err)
	}
	changeAddress, err := changeSubaddress(changeSub, account.ChangeSubaddressIndex)
	if err != nil {
		return nil, err
	}

	minted, err := b.assembleOutputs(account, recipients, req.TokenID, changeByToken, changeAddress, req.Comment)
	if err != nil {
		return nil, err
	}

	outputs := make([]RawOutput, len(minted))
	for i, m := range minted {
		outputs[i] = m.raw
	}

	message := signingMessage(ringInputs, outputs, fee, tombstone)
	logID := deriveTransactionLogID(message)

	if ak.IsViewOnly() {
		if err := b.persist(account, logID, inputs, minted, fee, tombstone, req.Comment); err != nil {
			return nil, err
		}
		return &BuildResult{Unsigned: &UnsignedTxProposal{
			LogID: logID, Inputs: ringInputs, Outputs: outputs,
			Fee: fee, FeeTokenID: config.BaseTokenID, TombstoneBlockIndex: tombstone,
		}}, nil
	}

	signedInputs, keyImages, err := b.signInputs(ak, inputs, ringInputs, message)
	if err != nil {
		return nil, err
	}

	if err := b.persist(account, logID, inputs, minted, fee, tombstone, req.Comment); err != nil {
		return nil, err
	}

	raw := RawTransaction{Inputs: signedInputs, Outputs: outputs, Fee: fee, FeeTokenID: config.BaseTokenID, TombstoneBlockIndex: tombstone}
	rawBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("txbuilder: marshal raw transaction: %w", err)
	}

	return &BuildResult{Signed: &TxProposal{LogID: logID, RawTx: rawBytes, KeyImagesSpent: keyImages}}, nil
}

func (b *Builder) resolveTombstone(requested *uint64) (uint64, error) {
	tip, has, err := b.mirror.Tip()
	if err != nil {
		return 0, StoreErr("read mirror tip", err)
	}
	var currentTip uint64
	if has {
		currentTip = tip
	}
	if requested == nil {
		return currentTip + config.DefaultTombstoneOffset, nil
	}
	if *requested <= currentTip {
		return 0, InvalidTombstone(fmt.Sprintf("tombstone block %d must exceed current tip %d", *requested, currentTip))
	}
	if *requested > currentTip+config.MaxTombstoneOffset {
		return 0, InvalidTombstone(fmt.Sprintf("tombstone block %d exceeds max offset %d from tip %d", *requested, config.MaxTombstoneOffset, currentTip))
	}
	return *requested, nil
}

func decodeRecipients(recipients []Recipient) ([]recipientTarget, uint64, error) {
	out := make([]recipientTarget, 0, len(recipients))
	var sum uint64
	for _, r := range recipients {
		if r.Value == 0 {
			return nil, 0, fmt.Errorf("txbuilder: recipient value must be positive")
		}
		addr, err := keys.DecodeAddress(r.Address)
		if err != nil {
			return nil, 0, fmt.Errorf("txbuilder: decode recipient address: %w", err)
		}
		sum += r.Value
		out = append(out, recipientTarget{address: addr, value: r.Value})
	}
	return out, sum, nil
}

// collectInputs selects inputs covering every token in tokenTargets. When
// the caller supplies an explicit TXO list, that list is used verbatim
// (grouped by token) instead of running greedy selection.
func (b *Builder) collectInputs(accountID store.AccountID, tokenTargets map[uint64]uint64, subaddressIndex *uint64, explicitIDs []store.TxoID, maxSpendableValue *uint64) ([]store.Txo, error) {
	if len(explicitIDs) > 0 {
		return b.resolveExplicitInputs(accountID, tokenTargets, explicitIDs)
	}

	var all []store.Txo
	for tokenID, target := range tokenTargets {
		if target == 0 {
			continue
		}
		sel, err := SelectInputs(b.store, accountID, tokenID, target, subaddressIndex, nil, maxSpendableValue)
		if err != nil {
			return nil, err
		}
		all = append(all, sel...)
	}
	return all, nil
}

func (b *Builder) resolveExplicitInputs(accountID store.AccountID, tokenTargets map[uint64]uint64, explicitIDs []store.TxoID) ([]store.Txo, error) {
	sums := make(map[uint64]uint64, len(tokenTargets))
	out := make([]store.Txo, 0, len(explicitIDs))
	for _, id := range explicitIDs {
		txo, err := b.store.GetTxo(id)
		if err != nil {
			return nil, StoreErr(fmt.Sprintf("read explicit input %s", id.Hex()), err)
		}
		if txo.ReceivedAccountID == nil || *txo.ReceivedAccountID != accountID {
			return nil, InsufficientFunds(fmt.Sprintf("txo %s is not owned by this account", id.Hex()))
		}
		if txo.Status() != store.TxoStatusUnspent {
			return nil, InsufficientFunds(fmt.Sprintf("txo %s is not spendable (status %s)", id.Hex(), txo.Status()))
		}
		sums[txo.TokenID] += txo.Value
		out = append(out, txo)
	}
	for tokenID, target := range tokenTargets {
		if sums[tokenID] < target {
			return nil, InsufficientFunds(fmt.Sprintf("explicit inputs cover %d of token %d, need %d", sums[tokenID], tokenID, target))
		}
	}
	return out, nil
}

func changeAmounts(inputs []store.Txo, tokenTargets map[uint64]uint64) map[uint64]uint64 {
	sums := make(map[uint64]uint64)
	for _, in := range inputs {
		sums[in.TokenID] += in.Value
	}
	change := make(map[uint64]uint64, len(sums))
	for tokenID, sum := range sums {
		change[tokenID] = sum - tokenTargets[tokenID]
	}
	return change
}

func changeSubaddress(subs []store.Subaddress, changeIndex uint64) (store.Subaddress, error) {
	for _, s := range subs {
		if s.SubaddressIndex == changeIndex {
			return s, nil
		}
	}
	return store.Subaddress{}, StoreErr("resolve change subaddress", fmt.Errorf("change subaddress %d not materialized", changeIndex))
}

// assembleRings builds one ring (real input plus sampled mixins) and
// membership proof per selected input (spec.md §4.4 "Ring assembly").
func (b *Builder) assembleRings(inputs []store.Txo) ([]RingInput, error) {
	if len(inputs) == 0 {
		return nil, InsufficientFunds("no inputs selected")
	}

	excluded := make(map[cryptoiface.PublicKey]bool, len(inputs))
	for _, in := range inputs {
		excluded[in.PublicKey] = true
	}

	count, err := b.mirror.OutputCount()
	if err != nil {
		return nil, RingConstructionFailed("read output count", err)
	}
	root, err := ring.Root(b.mirror, count)
	if err != nil {
		return nil, RingConstructionFailed("compute membership root", err)
	}

	result := make([]RingInput, 0, len(inputs))
	for _, in := range inputs {
		var po peer.Output
		if err := json.Unmarshal(in.OutputBlob, &po); err != nil {
			return nil, RingConstructionFailed(fmt.Sprintf("decode output blob for %s", in.TxoID.Hex()), err)
		}

		mixins, err := ring.SampleMixins(b.mirror, config.RingSize-1, excluded)
		if err != nil {
			return nil, InsufficientMixins(fmt.Sprintf("txo %s", in.TxoID.Hex()), err)
		}

		proof, err := ring.BuildMembershipProof(b.mirror, po.GlobalIndex, count)
		if err != nil {
			return nil, RingConstructionFailed("build membership proof", err)
		}

		realIdx, err := randomRingPosition(len(mixins) + 1)
		if err != nil {
			return nil, RingConstructionFailed("choose ring position", err)
		}

		members := make([]cryptoiface.RingMember, len(mixins)+1)
		j := 0
		for i := range members {
			if i == realIdx {
				members[i] = cryptoiface.RingMember{PublicKey: in.PublicKey, Commitment: po.Commitment, GlobalIndex: po.GlobalIndex, MembershipHash: root[:]}
				continue
			}
			mx := mixins[j]
			members[i] = cryptoiface.RingMember{PublicKey: mx.PublicKey, Commitment: mx.Commitment, GlobalIndex: mx.GlobalIndex, MembershipHash: root[:]}
			j++
		}

		subIdx := uint64(0)
		if in.SubaddressIndex != nil {
			subIdx = *in.SubaddressIndex
		}
		var sharedSecret [32]byte
		if in.SharedSecret != nil {
			sharedSecret = *in.SharedSecret
		}

		result = append(result, RingInput{
			TxoID: in.TxoID, Ring: members, RealIndex: realIdx, Proof: proof,
			SubaddressIndex: subIdx, OutputIndex: po.OutputIndex, SharedSecret: sharedSecret,
		})
	}
	return result, nil
}

// assembleOutputs mints one output per recipient plus, for each token with
// a positive remainder, a single change output to the account's change
// subaddress (spec.md §4.4 "Output assembly").
func (b *Builder) assembleOutputs(account store.Account, recipients []recipientTarget, payloadTokenID uint64, changeByToken map[uint64]uint64, changeSub store.Subaddress, comment string) ([]mintedOutput, error) {
	var minted []mintedOutput
	var outputIndex uint64

	mint := func(dest keys.PublicAddress, value, tokenID uint64, kind store.OutputKind, recipientAddress string, attach memoAttachment) error {
		m, err := b.mintOutput(dest, value, tokenID, outputIndex, kind, recipientAddress, account.AccountID, attach)
		if err != nil {
			return err
		}
		minted = append(minted, m)
		outputIndex++
		return nil
	}

	for i, r := range recipients {
		var attach memoAttachment
		// A non-empty Request.Comment rides along as a payment-intent memo
		// on the first payload output only; a multi-recipient transaction
		// has no single output that "is" the payment.
		if i == 0 && comment != "" {
			attach = memoAttachment{kind: memo.TypePaymentIntent, value: memo.PaymentIntent{Note: comment}}
		}
		if err := mint(r.address, r.value, payloadTokenID, store.OutputKindPayload, r.address.Encode(), attach); err != nil {
			return nil, err
		}
	}

	changeAddr := keys.SubaddressPublicAddress(keys.Subaddress{SpendPublic: changeSub.PublicSpendKey, ViewPublic: changeSub.PublicViewKey})
	for tokenID, remainder := range changeByToken {
		if remainder == 0 {
			continue
		}
		// The change output carries a destination memo naming the (first)
		// recipient, so the sender's own history can recall who a payment
		// went to purely from the TXO it got back as change (spec.md §9).
		var dest string
		if len(recipients) > 0 {
			dest = recipients[0].address.Encode()
		}
		attach := memoAttachment{kind: memo.TypeDestination, value: memo.Destination{RecipientAddress: dest, TotalOutlay: remainder}}
		if err := mint(changeAddr, remainder, tokenID, store.OutputKindChange, changeAddr.Encode(), attach); err != nil {
			return nil, err
		}
	}

	return minted, nil
}

// memoAttachment carries an as-yet-unencrypted memo payload through to
// mintOutput, which encrypts it under the output's own shared secret and
// target key once both are known.
type memoAttachment struct {
	kind  memo.Type
	value any
}

func (b *Builder) mintOutput(dest keys.PublicAddress, value, tokenID, outputIndex uint64, kind store.OutputKind, recipientAddress string, minterAccountID store.AccountID, attach memoAttachment) (mintedOutput, error) {
	r, err := keys.RandomPrivateKey()
	if err != nil {
		return mintedOutput{}, fmt.Errorf("txbuilder: generate output private key: %w", err)
	}
	txPublic, err := keys.PublicFromPrivate(r)
	if err != nil {
		return mintedOutput{}, fmt.Errorf("txbuilder: derive output public key: %w", err)
	}

	sharedSecret, err := keys.SharedSecret(r, cryptoiface.PublicKey(dest.ViewPublic))
	if err != nil {
		return mintedOutput{}, fmt.Errorf("txbuilder: derive shared secret: %w", err)
	}

	targetKey, err := keys.DeriveOneTimeTargetKey(sharedSecret, outputIndex, dest.SpendPublic)
	if err != nil {
		return mintedOutput{}, fmt.Errorf("txbuilder: derive target key: %w", err)
	}

	maskedValue, maskedTokenID := keys.MaskValue(sharedSecret, value, tokenID)
	hint := []byte{keys.ViewTag(sharedSecret)}
	commitment := placeholderCommitment(targetKey, maskedValue, maskedTokenID)

	raw := RawOutput{
		TxPublicKey: txPublic, TargetKey: targetKey, Commitment: commitment,
		MaskedValue: maskedValue, MaskedTokenID: maskedTokenID, EncryptedHint: hint, OutputIndex: outputIndex,
	}

	po := peer.Output{
		PublicKey: txPublic, TargetKey: targetKey, Commitment: commitment,
		MaskedValue: maskedValue, MaskedTokenID: maskedTokenID, EncryptedHint: hint, OutputIndex: outputIndex,
	}
	blob, err := json.Marshal(po)
	if err != nil {
		return mintedOutput{}, fmt.Errorf("txbuilder: marshal output blob: %w", err)
	}

	txoID := store.DeriveTxoID(txPublic)
	confirmation := keys.ComputeConfirmation(sharedSecret, targetKey)

	var memoBlob []byte
	if attach.value != nil {
		var err error
		memoBlob, err = memoEncode(attach, sharedSecret, targetKey)
		if err != nil {
			// A memo the wallet itself constructed failing to encode is a
			// bug, not a reason to fail the whole transaction build.
			b.logger.Warn("failed to encode output memo", "type", attach.kind, "error", err)
		}
	}

	txo := store.Txo{
		TxoID: txoID, PublicKey: txPublic, TargetKey: targetKey, Value: value, TokenID: tokenID,
		EncryptedHint: hint, OutputBlob: blob, MintedAccountID: &minterAccountID, Memo: memoBlob,
	}

	return mintedOutput{
		raw: raw, txo: txo, sharedSecret: sharedSecret,
		logOutput: store.TransactionLogOutput{
			TxoID: txoID, Kind: kind, RecipientAddress: recipientAddress,
			ConfirmationCode: fmt.Sprintf("%x", confirmation),
		},
	}, nil
}

// memoEncode dispatches attach.value to the matching internal/memo typed
// encoder. attach.kind and the Go type of attach.value must agree; this is
// only ever constructed within this package, in assembleOutputs.
func memoEncode(attach memoAttachment, sharedSecret [32]byte, targetKey cryptoiface.PublicKey) ([]byte, error) {
	switch v := attach.value.(type) {
	case memo.PaymentIntent:
		return memo.EncodePaymentIntent(v, sharedSecret, targetKey)
	case memo.Destination:
		return memo.EncodeDestination(v, sharedSecret, targetKey)
	case memo.AuthenticatedSender:
		return memo.EncodeAuthenticatedSender(v, sharedSecret, targetKey)
	case memo.PaymentRequest:
		return memo.EncodePaymentRequest(v, sharedSecret, targetKey)
	default:
		return nil, fmt.Errorf("txbuilder: unhandled memo attachment type %T", v)
	}
}

// placeholderCommitment stands in for the Pedersen value commitment the
// Ledger's own crypto library computes; the wallet core never implements
// amount-commitment math itself, only the ring-signature boundary
// (internal/cryptoiface). It is deterministic so repeated builds from the
// same output are self-consistent, not because it is a real commitment.
func placeholderCommitment(targetKey cryptoiface.PublicKey, maskedValue, maskedTokenID uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte("walletd-placeholder-commitment"))
	h.Write(targetKey[:])
	fmt.Fprintf(h, "%d:%d", maskedValue, maskedTokenID)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func signingMessage(rings []RingInput, outputs []RawOutput, fee, tombstone uint64) []byte {
	h := sha256.New()
	h.Write([]byte("walletd-tx-proposal"))
	for _, ri := range rings {
		for _, m := range ri.Ring {
			h.Write(m.PublicKey[:])
			h.Write(m.Commitment[:])
		}
	}
	for _, o := range outputs {
		h.Write(o.TxPublicKey[:])
		h.Write(o.TargetKey[:])
		fmt.Fprintf(h, "%d:%d", o.MaskedValue, o.MaskedTokenID)
	}
	fmt.Fprintf(h, "%d:%d", fee, tombstone)
	return h.Sum(nil)
}

func deriveTransactionLogID(message []byte) store.TransactionLogID {
	h := sha256.New()
	h.Write([]byte("walletd-transaction-log-id"))
	h.Write(message)
	var id store.TransactionLogID
	copy(id[:], h.Sum(nil))
	return id
}

func (b *Builder) signInputs(ak *keys.AccountKeys, inputs []store.Txo, rings []RingInput, message []byte) ([]SignedInput, []cryptoiface.KeyImage, error) {
	if b.signer == nil {
		return nil, nil, SignerUnavailable("no ring signer configured")
	}

	signed := make([]SignedInput, len(rings))
	keyImages := make([]cryptoiface.KeyImage, len(rings))
	for i, ri := range rings {
		in := inputs[i]

		keyImage := cryptoiface.KeyImage{}
		if in.KeyImage != nil {
			keyImage = *in.KeyImage
		} else {
			ki, err := keys.DeriveKeyImage(ak, ri.SubaddressIndex, ri.SharedSecret, keys.Output{TxPublicKey: in.PublicKey, OutputIndex: ri.OutputIndex, TargetKey: in.TargetKey})
			if err != nil {
				return nil, nil, SignerUnavailable(fmt.Sprintf("derive key image for %s: %v", in.TxoID.Hex(), err))
			}
			keyImage = ki
		}

		oneTimePriv, err := keys.OneTimePrivateKey(ak, ri.SubaddressIndex, ri.SharedSecret, ri.OutputIndex)
		if err != nil {
			return nil, nil, SignerUnavailable(fmt.Sprintf("derive one-time key for %s: %v", in.TxoID.Hex(), err))
		}

		sig, err := b.signer.Sign(ri.Ring, ri.RealIndex, oneTimePriv, keyImage, message)
		if err != nil {
			return nil, nil, RingConstructionFailed(fmt.Sprintf("sign ring for %s", in.TxoID.Hex()), err)
		}

		signed[i] = SignedInput{KeyImage: keyImage, Ring: ri.Ring, Signature: sig}
		keyImages[i] = keyImage
	}
	return signed, keyImages, nil
}

// persist writes the minted output TXOs and the owning TransactionLog in
// one transaction, mirroring the shape the Account Scanner's reconciliation
// pass expects to find already in place (spec.md §4.5).
func (b *Builder) persist(account store.Account, logID store.TransactionLogID, inputs []store.Txo, minted []mintedOutput, fee, tombstone uint64, comment string) error {
	valuePerToken := make(map[uint64]uint64)
	for _, m := range minted {
		if m.logOutput.Kind == store.OutputKindPayload {
			valuePerToken[m.txo.TokenID] += m.txo.Value
		}
	}

	inputIDs := make([]store.TxoID, len(inputs))
	for i, in := range inputs {
		inputIDs[i] = in.TxoID
	}
	outputEntries := make([]store.TransactionLogOutput, len(minted))
	for i, m := range minted {
		outputEntries[i] = m.logOutput
	}

	log := store.TransactionLog{
		ID: logID, AccountID: account.AccountID, FeeValue: fee, FeeTokenID: config.BaseTokenID,
		ValuePerToken: valuePerToken, TombstoneBlockIndex: tombstone, Comment: comment,
	}

	err := b.store.Atomic(func(tx *sql.Tx) error {
		for _, m := range minted {
			if _, err := b.store.InsertTxoIfAbsent(tx, m.txo); err != nil {
				return err
			}
		}
		return b.store.CreateTransactionLog(tx, log, inputIDs, outputEntries)
	})
	if err != nil {
		return StoreErr("persist transaction log", err)
	}
	return nil
}

func randomRingPosition(n int) (int, error) {
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}

func accountKeysFromAccount(a store.Account) *keys.AccountKeys {
	return &keys.AccountKeys{
		DerivationVersion: a.DerivationVersion,
		ViewPrivate:       a.ViewPrivateKey,
		ViewPublic:        a.ViewPublicKey,
		SpendPrivate:      a.SpendPrivateKey,
		SpendPublic:       a.SpendPublicKey,
	}
}
