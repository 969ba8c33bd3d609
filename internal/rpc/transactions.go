package rpc

import (
	"context"
	"encoding/json"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/txbuilder"
	"github.com/ledgervault/walletd/pkg/helpers"
)

type recipientParam struct {
	Address string `json:"address"`
	Value   U64    `json:"value"`
}

type buildTxParams struct {
	AccountID            string           `json:"account_id"`
	TokenID              U64              `json:"token_id"`
	Recipients           []recipientParam `json:"recipients"`
	ExplicitInputTxoIDs  []string         `json:"explicit_input_txo_ids"`
	Fee                  *U64             `json:"fee"`
	Tombstone            *U64             `json:"tombstone_block_index"`
	MaxSpendableValue    *U64             `json:"max_spendable_value"`
	SpendSubaddressIndex *U64             `json:"spend_subaddress_index"`
	Comment              string           `json:"comment"`
}

func (p buildTxParams) toRequest() (txbuilder.Request, error) {
	accountID, err := store.ParseAccountID(p.AccountID)
	if err != nil {
		return txbuilder.Request{}, invalidParams("parse account_id: %w", err)
	}
	if len(p.Recipients) == 0 {
		return txbuilder.Request{}, invalidParams("at least one recipient is required")
	}

	recipients := make([]txbuilder.Recipient, len(p.Recipients))
	for i, r := range p.Recipients {
		recipients[i] = txbuilder.Recipient{Address: r.Address, Value: uint64(r.Value)}
	}

	req := txbuilder.Request{
		AccountID:  accountID,
		TokenID:    uint64(p.TokenID),
		Recipients: recipients,
		Comment:    p.Comment,
	}
	for _, s := range p.ExplicitInputTxoIDs {
		id, err := store.ParseTxoID(s)
		if err != nil {
			return txbuilder.Request{}, invalidParams("parse explicit_input_txo_ids: %w", err)
		}
		req.ExplicitInputIDs = append(req.ExplicitInputIDs, id)
	}
	if p.Fee != nil {
		v := uint64(*p.Fee)
		req.Fee = &v
	}
	if p.Tombstone != nil {
		v := uint64(*p.Tombstone)
		req.Tombstone = &v
	}
	if p.MaxSpendableValue != nil {
		v := uint64(*p.MaxSpendableValue)
		req.MaxSpendableValue = &v
	}
	if p.SpendSubaddressIndex != nil {
		v := uint64(*p.SpendSubaddressIndex)
		req.SpendSubaddressIndex = &v
	}
	return req, nil
}

// TxProposalJSON is a fully signed proposal ready for submit_transaction.
type TxProposalJSON struct {
	TransactionLogID string `json:"transaction_log_id"`
	RawTx            string `json:"raw_tx"`
}

// UnsignedTxProposalJSON is an assembled-but-unsigned proposal for an
// external signer to complete (spec.md §9 "View-only accounts").
type UnsignedTxProposalJSON struct {
	TransactionLogID    string `json:"transaction_log_id"`
	Fee                 U64    `json:"fee"`
	FeeTokenID          U64    `json:"fee_token_id"`
	TombstoneBlockIndex U64    `json:"tombstone_block_index"`
	InputCount          int    `json:"input_count"`
	OutputCount         int    `json:"output_count"`
}

// buildTransaction implements build_transaction: requires the account to
// hold a spend private key, per spec.md §9's view-only/unsigned split.
func (s *Server) buildTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p buildTxParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode build_transaction params: %w", err)
	}
	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}

	result, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	if result.Signed == nil {
		return nil, txbuilder.SignerUnavailable("account has no spend private key")
	}
	return struct {
		TxProposal TxProposalJSON `json:"tx_proposal"`
	}{TxProposalJSON{
		TransactionLogID: result.Signed.LogID.Hex(),
		RawTx:            helpers.BytesToHex(result.Signed.RawTx),
	}}, nil
}

// buildUnsignedTransaction implements build_unsigned_transaction, serving
// view-only accounts whose spend key lives with an external signer.
func (s *Server) buildUnsignedTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p buildTxParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode build_unsigned_transaction params: %w", err)
	}
	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}

	result, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	if result.Unsigned == nil {
		return nil, invalidParams("account holds a spend private key; use build_transaction")
	}
	u := result.Unsigned
	return struct {
		UnsignedTxProposal UnsignedTxProposalJSON `json:"unsigned_tx_proposal"`
	}{UnsignedTxProposalJSON{
		TransactionLogID:    u.LogID.Hex(),
		Fee:                 U64(u.Fee),
		FeeTokenID:          U64(u.FeeTokenID),
		TombstoneBlockIndex: U64(u.TombstoneBlockIndex),
		InputCount:          len(u.Inputs),
		OutputCount:         len(u.Outputs),
	}}, nil
}

// burnRecipientAddress is the conventional, unspendable all-zero public
// address build_unsigned_burn_transaction mints its payload output to:
// nobody holds the corresponding private keys, so the value is provably
// destroyed rather than transferred.
var burnRecipientAddress = keys.PublicAddress{}.Encode()

type buildBurnTxParams struct {
	AccountID            string `json:"account_id"`
	TokenID              U64    `json:"token_id"`
	Amount               U64    `json:"amount"`
	ExplicitInputTxoIDs  []string `json:"explicit_input_txo_ids"`
	Fee                  *U64   `json:"fee"`
	Tombstone            *U64   `json:"tombstone_block_index"`
	SpendSubaddressIndex *U64   `json:"spend_subaddress_index"`
	Comment              string `json:"comment"`
}

// buildUnsignedBurnTransaction implements build_unsigned_burn_transaction:
// a transaction whose sole payload output pays the burn address, for
// provable destruction of value rather than transfer to a recipient.
func (s *Server) buildUnsignedBurnTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p buildBurnTxParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode build_unsigned_burn_transaction params: %w", err)
	}
	full := buildTxParams{
		AccountID:            p.AccountID,
		TokenID:              p.TokenID,
		Recipients:           []recipientParam{{Address: burnRecipientAddress, Value: p.Amount}},
		ExplicitInputTxoIDs:  p.ExplicitInputTxoIDs,
		Fee:                  p.Fee,
		Tombstone:            p.Tombstone,
		SpendSubaddressIndex: p.SpendSubaddressIndex,
		Comment:              p.Comment,
	}
	return s.buildUnsignedTransaction(ctx, mustMarshal(full))
}

func mustMarshal(v interface{}) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

type submitTxParams struct {
	RawTx            string   `json:"raw_tx"`
	TransactionLogID string   `json:"transaction_log_id"`
	KeyImagesSpent   []string `json:"key_images_spent"`
}

func (p submitTxParams) toProposal() (txbuilder.TxProposal, error) {
	logID, err := store.ParseTransactionLogID(p.TransactionLogID)
	if err != nil {
		return txbuilder.TxProposal{}, invalidParams("parse transaction_log_id: %w", err)
	}
	rawTx, err := helpers.HexToBytes(p.RawTx)
	if err != nil {
		return txbuilder.TxProposal{}, invalidParams("decode raw_tx: %w", err)
	}
	images := make([]cryptoiface.KeyImage, len(p.KeyImagesSpent))
	for i, hexKey := range p.KeyImagesSpent {
		b, err := helpers.FixedHexToBytes(hexKey, cryptoiface.KeySize)
		if err != nil {
			return txbuilder.TxProposal{}, invalidParams("decode key_images_spent: %w", err)
		}
		images[i] = cryptoiface.KeyImage(b)
	}
	return txbuilder.TxProposal{LogID: logID, RawTx: rawTx, KeyImagesSpent: images}, nil
}

// SubmitResultJSON is submit_transaction's and build_and_submit_transaction's
// result.
type SubmitResultJSON struct {
	TransactionLogID    string `json:"transaction_log_id"`
	SubmittedBlockIndex U64    `json:"submitted_block_index"`
	PeerURI             string `json:"peer_uri"`
}

// submitTransaction implements submit_transaction: hands an already-signed
// proposal to the Submitter synchronously, so the caller sees the
// built->pending or built->failed(ProtocolRejection) transition before the
// RPC returns (spec.md §8 S3).
func (s *Server) submitTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p submitTxParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode submit_transaction params: %w", err)
	}
	proposal, err := p.toProposal()
	if err != nil {
		return nil, err
	}

	result, err := s.submitter.Submit(ctx, proposal)
	if err != nil {
		return nil, err
	}
	return SubmitResultJSON{
		TransactionLogID:    proposal.LogID.Hex(),
		SubmittedBlockIndex: U64(result.SubmittedBlockIndex),
		PeerURI:             result.PeerURI,
	}, nil
}

// buildAndSubmitTransaction implements build_and_submit_transaction
// (spec.md §8 S3): builds a signed proposal and submits it in one call.
func (s *Server) buildAndSubmitTransaction(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p buildTxParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode build_and_submit_transaction params: %w", err)
	}
	req, err := p.toRequest()
	if err != nil {
		return nil, err
	}

	result, err := s.builder.Build(req)
	if err != nil {
		return nil, err
	}
	if result.Signed == nil {
		return nil, txbuilder.SignerUnavailable("account has no spend private key")
	}

	submitResult, err := s.submitter.Submit(ctx, *result.Signed)
	if err != nil {
		return nil, err
	}
	return SubmitResultJSON{
		TransactionLogID:    result.Signed.LogID.Hex(),
		SubmittedBlockIndex: U64(submitResult.SubmittedBlockIndex),
		PeerURI:             submitResult.PeerURI,
	}, nil
}

// TransactionLogJSON is the wire shape of a Store TransactionLog.
type TransactionLogJSON struct {
	TransactionLogID    string                       `json:"transaction_log_id"`
	AccountID           string                       `json:"account_id"`
	Status              string                       `json:"status"`
	FeeValue            U64                          `json:"fee_value"`
	FeeTokenID          U64                          `json:"fee_token_id"`
	TombstoneBlockIndex U64                          `json:"tombstone_block_index"`
	SubmittedBlockIndex *U64                         `json:"submitted_block_index,omitempty"`
	FinalizedBlockIndex *U64                         `json:"finalized_block_index,omitempty"`
	FailureCode         string                       `json:"failure_code,omitempty"`
	FailureMessage      string                       `json:"failure_message,omitempty"`
	Comment             string                       `json:"comment,omitempty"`
	InputTxoIDs         []string                     `json:"input_txo_ids"`
	Outputs             []TransactionLogOutputJSON   `json:"outputs"`
}

// TransactionLogOutputJSON is one output row of a TransactionLogJSON.
type TransactionLogOutputJSON struct {
	TxoID            string `json:"txo_id"`
	Kind             string `json:"kind"`
	RecipientAddress string `json:"recipient_address"`
	ConfirmationCode string `json:"confirmation_code"`
}

func transactionLogToJSON(log store.TransactionLog, inputs []store.TxoID, outputs []store.TransactionLogOutput) TransactionLogJSON {
	out := TransactionLogJSON{
		TransactionLogID:    log.ID.Hex(),
		AccountID:           log.AccountID.Hex(),
		Status:              string(log.Status),
		FeeValue:            U64(log.FeeValue),
		FeeTokenID:          U64(log.FeeTokenID),
		TombstoneBlockIndex: U64(log.TombstoneBlockIndex),
		FailureCode:         log.FailureCode,
		FailureMessage:      log.FailureMessage,
		Comment:             log.Comment,
		InputTxoIDs:         make([]string, len(inputs)),
		Outputs:             make([]TransactionLogOutputJSON, len(outputs)),
	}
	if log.SubmittedBlockIndex != nil {
		out.SubmittedBlockIndex = u64Ptr(*log.SubmittedBlockIndex)
	}
	if log.FinalizedBlockIndex != nil {
		out.FinalizedBlockIndex = u64Ptr(*log.FinalizedBlockIndex)
	}
	for i, id := range inputs {
		out.InputTxoIDs[i] = id.Hex()
	}
	for i, o := range outputs {
		out.Outputs[i] = TransactionLogOutputJSON{
			TxoID:            o.TxoID.Hex(),
			Kind:             string(o.Kind),
			RecipientAddress: o.RecipientAddress,
			ConfirmationCode: o.ConfirmationCode,
		}
	}
	return out
}

type transactionLogIDParams struct {
	TransactionLogID string `json:"transaction_log_id"`
}

func (s *Server) getTransactionLog(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p transactionLogIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_transaction_log params: %w", err)
	}
	id, err := store.ParseTransactionLogID(p.TransactionLogID)
	if err != nil {
		return nil, invalidParams("parse transaction_log_id: %w", err)
	}
	log, inputs, outputs, err := s.store.GetTransactionLog(id)
	if err != nil {
		return nil, err
	}
	return struct {
		TransactionLog TransactionLogJSON `json:"transaction_log"`
	}{transactionLogToJSON(log, inputs, outputs)}, nil
}

type getTransactionLogsParams struct {
	AccountID string  `json:"account_id"`
	Status    *string `json:"status"`
}

func (s *Server) getTransactionLogs(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p getTransactionLogsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_transaction_logs params: %w", err)
	}
	accountID, err := store.ParseAccountID(p.AccountID)
	if err != nil {
		return nil, invalidParams("parse account_id: %w", err)
	}
	var status *store.LogStatus
	if p.Status != nil {
		v := store.LogStatus(*p.Status)
		status = &v
	}

	logs, err := s.store.ListTransactionLogsForAccount(accountID, status)
	if err != nil {
		return nil, err
	}
	out := make([]TransactionLogJSON, len(logs))
	for i, log := range logs {
		_, inputs, outputs, err := s.store.GetTransactionLog(log.ID)
		if err != nil {
			return nil, err
		}
		out[i] = transactionLogToJSON(log, inputs, outputs)
	}
	return struct {
		TransactionLogs []TransactionLogJSON `json:"transaction_logs"`
	}{out}, nil
}

// getConfirmations implements get_confirmations: returns every output's
// confirmation code for a built transaction log (spec.md §9 "Confirmation
// codes and receipts").
func (s *Server) getConfirmations(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p transactionLogIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_confirmations params: %w", err)
	}
	id, err := store.ParseTransactionLogID(p.TransactionLogID)
	if err != nil {
		return nil, invalidParams("parse transaction_log_id: %w", err)
	}
	_, _, outputs, err := s.store.GetTransactionLog(id)
	if err != nil {
		return nil, err
	}

	confirmations := make([]struct {
		TxoID            string `json:"txo_id"`
		ConfirmationCode string `json:"confirmation_code"`
	}, 0, len(outputs))
	for _, o := range outputs {
		if o.Kind != store.OutputKindPayload {
			continue
		}
		confirmations = append(confirmations, struct {
			TxoID            string `json:"txo_id"`
			ConfirmationCode string `json:"confirmation_code"`
		}{o.TxoID.Hex(), o.ConfirmationCode})
	}
	return struct {
		Confirmations []struct {
			TxoID            string `json:"txo_id"`
			ConfirmationCode string `json:"confirmation_code"`
		} `json:"confirmations"`
	}{confirmations}, nil
}

type validateConfirmationParams struct {
	TxoID            string `json:"txo_id"`
	ConfirmationCode string `json:"confirmation_code"`
}

// validateConfirmation implements validate_confirmation (spec.md §9
// "Confirmation codes and receipts": a matching code proves the sender
// constructed this exact output; it is a one-way relation).
func (s *Server) validateConfirmation(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p validateConfirmationParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode validate_confirmation params: %w", err)
	}
	id, err := store.ParseTxoID(p.TxoID)
	if err != nil {
		return nil, invalidParams("parse txo_id: %w", err)
	}
	codeBytes, err := helpers.FixedHexToBytes(p.ConfirmationCode, 32)
	if err != nil {
		return nil, invalidParams("decode confirmation_code: %w", err)
	}
	var code keys.ConfirmationCode
	copy(code[:], codeBytes)

	t, err := s.store.GetTxo(id)
	if err != nil {
		return nil, err
	}
	valid := t.SharedSecret != nil && keys.ValidateConfirmation(*t.SharedSecret, t.TargetKey, code)
	return struct {
		Valid bool `json:"valid"`
	}{valid}, nil
}

type checkReceiptParams struct {
	PublicAddress    string `json:"public_address"`
	TxoID            string `json:"txo_id"`
	ConfirmationCode string `json:"confirmation_code"`
}

// checkReceiverReceiptStatus implements check_receiver_receipt_status: a
// receiver-side check combining validate_confirmation with the TXO's
// actual receipt state, so a caller doesn't need two round trips to learn
// both "is this confirmation genuine" and "was it actually received".
func (s *Server) checkReceiverReceiptStatus(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p checkReceiptParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode check_receiver_receipt_status params: %w", err)
	}
	if _, err := keys.DecodeAddress(p.PublicAddress); err != nil {
		return nil, invalidParams("decode public_address: %w", err)
	}
	id, err := store.ParseTxoID(p.TxoID)
	if err != nil {
		return nil, invalidParams("parse txo_id: %w", err)
	}
	codeBytes, err := helpers.FixedHexToBytes(p.ConfirmationCode, 32)
	if err != nil {
		return nil, invalidParams("decode confirmation_code: %w", err)
	}
	var code keys.ConfirmationCode
	copy(code[:], codeBytes)

	t, err := s.store.GetTxo(id)
	if err != nil {
		return nil, err
	}

	confirmed := t.SharedSecret != nil && keys.ValidateConfirmation(*t.SharedSecret, t.TargetKey, code)
	return struct {
		Status    string `json:"status"`
		Confirmed bool   `json:"confirmed"`
	}{string(t.Status()), confirmed}, nil
}
