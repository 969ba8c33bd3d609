package rpc

import (
	"context"
	"encoding/json"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/ring"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/pkg/helpers"
)

// TxoJSON is the wire shape of a Store Txo, with its status derived via
// Txo.Status() rather than re-implemented here (spec.md §8 property 8).
type TxoJSON struct {
	TxoID              string `json:"txo_id"`
	Value              U64    `json:"value"`
	TokenID            U64    `json:"token_id"`
	SubaddressIndex    *U64   `json:"subaddress_index,omitempty"`
	ReceivedBlockIndex *U64   `json:"received_block_index,omitempty"`
	SpentBlockIndex    *U64   `json:"spent_block_index,omitempty"`
	ReceivedAccountID  string `json:"received_account_id,omitempty"`
	Status             string `json:"status"`
}

func txoToJSON(t store.Txo) TxoJSON {
	out := TxoJSON{
		TxoID:   t.TxoID.Hex(),
		Value:   U64(t.Value),
		TokenID: U64(t.TokenID),
		Status:  string(t.Status()),
	}
	if t.SubaddressIndex != nil {
		out.SubaddressIndex = u64Ptr(*t.SubaddressIndex)
	}
	if t.ReceivedBlockIndex != nil {
		out.ReceivedBlockIndex = u64Ptr(*t.ReceivedBlockIndex)
	}
	if t.SpentBlockIndex != nil {
		out.SpentBlockIndex = u64Ptr(*t.SpentBlockIndex)
	}
	if t.ReceivedAccountID != nil {
		out.ReceivedAccountID = t.ReceivedAccountID.Hex()
	}
	return out
}

type txoIDParams struct {
	TxoID string `json:"txo_id"`
}

// McProtocolTxoJSON is a TXO's protocol-level (wire) shape, as opposed to
// TxoJSON's wallet-level view — the raw public/target keys, encrypted
// hint, and output blob an external verifier would check against the
// ledger directly.
type McProtocolTxoJSON struct {
	TxoID         string `json:"txo_id"`
	PublicKey     string `json:"public_key"`
	TargetKey     string `json:"target_key"`
	EncryptedHint string `json:"encrypted_hint"`
	OutputBlob    string `json:"output_blob"`
}

// getMcProtocolTxo implements get_mc_protocol_txo, returning the TXO's
// on-ledger wire representation rather than its derived wallet status.
func (s *Server) getMcProtocolTxo(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p txoIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_mc_protocol_txo params: %w", err)
	}
	id, err := store.ParseTxoID(p.TxoID)
	if err != nil {
		return nil, invalidParams("parse txo_id: %w", err)
	}
	t, err := s.store.GetTxo(id)
	if err != nil {
		return nil, err
	}
	return McProtocolTxoJSON{
		TxoID:         t.TxoID.Hex(),
		PublicKey:     helpers.BytesToHex(t.PublicKey[:]),
		TargetKey:     helpers.BytesToHex(t.TargetKey[:]),
		EncryptedHint: helpers.BytesToHex(t.EncryptedHint),
		OutputBlob:    helpers.BytesToHex(t.OutputBlob),
	}, nil
}

func (s *Server) getTxo(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p txoIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_txo params: %w", err)
	}
	id, err := store.ParseTxoID(p.TxoID)
	if err != nil {
		return nil, invalidParams("parse txo_id: %w", err)
	}
	t, err := s.store.GetTxo(id)
	if err != nil {
		return nil, err
	}
	return struct {
		Txo TxoJSON `json:"txo"`
	}{txoToJSON(t)}, nil
}

type getTxosParams struct {
	AccountID        string `json:"account_id"`
	SubaddressIndex  *U64   `json:"subaddress_index"`
	Status           string `json:"status"`
	MinReceivedBlock *U64   `json:"min_received_block"`
	MaxReceivedBlock *U64   `json:"max_received_block"`
	Limit            int    `json:"limit"`
	Offset           int    `json:"offset"`
}

// validTxoStatuses are the only strings getTxos accepts for its status
// filter, matching the TxoStatus values Txo.Status() can derive.
var validTxoStatuses = map[string]store.TxoStatus{
	string(store.TxoStatusUnverified): store.TxoStatusUnverified,
	string(store.TxoStatusUnspent):    store.TxoStatusUnspent,
	string(store.TxoStatusPending):    store.TxoStatusPending,
	string(store.TxoStatusSpent):      store.TxoStatusSpent,
	string(store.TxoStatusSecreted):   store.TxoStatusSecreted,
	string(store.TxoStatusOrphaned):   store.TxoStatusOrphaned,
}

// getTxos implements get_txos, paginated deterministically per spec.md
// §9 "Pagination" design note.
func (s *Server) getTxos(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p getTxosParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_txos params: %w", err)
	}

	filter := store.TxoFilter{Limit: p.Limit, Offset: p.Offset}
	if p.AccountID != "" {
		accountID, err := store.ParseAccountID(p.AccountID)
		if err != nil {
			return nil, invalidParams("parse account_id: %w", err)
		}
		filter.AccountID = &accountID
	}
	if p.SubaddressIndex != nil {
		v := uint64(*p.SubaddressIndex)
		filter.SubaddressIndex = &v
	}
	if p.Status != "" {
		status, ok := validTxoStatuses[p.Status]
		if !ok {
			return nil, invalidParams("unknown status %q", p.Status)
		}
		filter.Status = &status
	}
	if p.MinReceivedBlock != nil {
		v := uint64(*p.MinReceivedBlock)
		filter.MinReceivedBlock = &v
	}
	if p.MaxReceivedBlock != nil {
		v := uint64(*p.MaxReceivedBlock)
		filter.MaxReceivedBlock = &v
	}

	txos, err := s.store.ListTxos(filter)
	if err != nil {
		return nil, err
	}
	out := make([]TxoJSON, len(txos))
	for i, t := range txos {
		out[i] = txoToJSON(t)
	}
	return struct {
		Txos []TxoJSON `json:"txos"`
	}{out}, nil
}

// getTxoBlockIndex implements get_txo_block_index.
func (s *Server) getTxoBlockIndex(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p txoIDParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_txo_block_index params: %w", err)
	}
	id, err := store.ParseTxoID(p.TxoID)
	if err != nil {
		return nil, invalidParams("parse txo_id: %w", err)
	}
	t, err := s.store.GetTxo(id)
	if err != nil {
		return nil, err
	}

	result := struct {
		ReceivedBlockIndex *U64 `json:"received_block_index,omitempty"`
		SpentBlockIndex    *U64 `json:"spent_block_index,omitempty"`
	}{}
	if t.ReceivedBlockIndex != nil {
		result.ReceivedBlockIndex = u64Ptr(*t.ReceivedBlockIndex)
	}
	if t.SpentBlockIndex != nil {
		result.SpentBlockIndex = u64Ptr(*t.SpentBlockIndex)
	}
	return result, nil
}

// GlobalOutputJSON is one ring member as returned to an RPC caller.
type GlobalOutputJSON struct {
	GlobalIndex U64    `json:"global_index"`
	PublicKey   string `json:"public_key"`
	Commitment  string `json:"commitment"`
}

func globalOutputToJSON(o ring.GlobalOutput) GlobalOutputJSON {
	return GlobalOutputJSON{
		GlobalIndex: U64(o.GlobalIndex),
		PublicKey:   helpers.BytesToHex(o.PublicKey[:]),
		Commitment:  helpers.BytesToHex(o.Commitment[:]),
	}
}

type sampleMixinsParams struct {
	Num      int      `json:"num"`
	Excluded []string `json:"excluded_public_keys"`
}

// sampleMixins implements sample_mixins (spec.md §4.2, §8 property 6
// "mixin sampling exactness": the returned set is distinct and excludes
// every caller-supplied key).
func (s *Server) sampleMixins(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p sampleMixinsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode sample_mixins params: %w", err)
	}

	excluded := make(map[cryptoiface.PublicKey]bool, len(p.Excluded))
	for _, hexKey := range p.Excluded {
		b, err := helpers.FixedHexToBytes(hexKey, cryptoiface.KeySize)
		if err != nil {
			return nil, invalidParams("decode excluded public key: %w", err)
		}
		excluded[cryptoiface.PublicKey(b)] = true
	}

	outputs, err := ring.SampleMixins(s.mirror, p.Num, excluded)
	if err != nil {
		return nil, err
	}
	out := make([]GlobalOutputJSON, len(outputs))
	for i, o := range outputs {
		out[i] = globalOutputToJSON(o)
	}
	return struct {
		Mixins []GlobalOutputJSON `json:"mixins"`
	}{out}, nil
}

// ProofElementJSON is one sibling hash in a membership proof.
type ProofElementJSON struct {
	RangeStart U64    `json:"range_start"`
	RangeEnd   U64    `json:"range_end"`
	Hash       string `json:"hash"`
}

// MembershipProofJSON is a txo membership proof as returned to a caller.
type MembershipProofJSON struct {
	GlobalIndex U64                `json:"global_index"`
	Count       U64                `json:"count"`
	Root        string             `json:"root"`
	Elements    []ProofElementJSON `json:"elements"`
}

type membershipProofsParams struct {
	GlobalIndices []U64 `json:"global_indices"`
}

// getTxoMembershipProofs implements get_txo_membership_proofs, proving
// inclusion of each requested output against the Mirror's current local
// tip (spec.md §4.2).
func (s *Server) getTxoMembershipProofs(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var p membershipProofsParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, invalidParams("decode get_txo_membership_proofs params: %w", err)
	}

	count, err := s.mirror.OutputCount()
	if err != nil {
		return nil, err
	}
	root, err := ring.Root(s.mirror, count)
	if err != nil {
		return nil, err
	}

	proofs := make([]MembershipProofJSON, len(p.GlobalIndices))
	for i, idx := range p.GlobalIndices {
		proof, err := ring.BuildMembershipProof(s.mirror, uint64(idx), count)
		if err != nil {
			return nil, err
		}
		elements := make([]ProofElementJSON, len(proof.Elements))
		for j, el := range proof.Elements {
			elements[j] = ProofElementJSON{RangeStart: U64(el.RangeStart), RangeEnd: U64(el.RangeEnd), Hash: helpers.BytesToHex(el.Hash[:])}
		}
		proofs[i] = MembershipProofJSON{
			GlobalIndex: U64(proof.GlobalIndex),
			Count:       U64(proof.Count),
			Root:        helpers.BytesToHex(root[:]),
			Elements:    elements,
		}
	}
	return struct {
		Proofs []MembershipProofJSON `json:"proofs"`
	}{proofs}, nil
}
