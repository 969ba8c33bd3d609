package txbuilder

import (
	"fmt"
	"sort"

	"github.com/ledgervault/walletd/internal/store"
)

// candidateSweepLimit bounds how many of an account's TXOs SelectInputs
// considers in one call. An account holding more unspent TXOs than this in
// a single token would need cursor-based selection across several Build
// calls; out of scope here (spec.md §4.4 names TXO selection as a
// replaceable policy, not a fixed algorithm).
const candidateSweepLimit = 100_000

// SelectInputs implements spec.md §4.4's TXO selection algorithm: it
// gathers unspent TXOs in tokenID (optionally restricted to explicitIDs,
// a subaddress, or a per-input value ceiling) and greedily selects them in
// descending value order, breaking ties by ascending txo_id, until the
// running sum reaches target. A TXO referenced by a pending TransactionLog
// has derived status "pending", not "unspent", so the status check below
// skips it.
func SelectInputs(s *store.Store, accountID store.AccountID, tokenID, target uint64, subaddressIndex *uint64, explicitIDs []store.TxoID, maxSpendableValue *uint64) ([]store.Txo, error) {
	candidates, err := s.ListTxos(store.TxoFilter{AccountID: &accountID, SubaddressIndex: subaddressIndex, Limit: candidateSweepLimit})
	if err != nil {
		return nil, StoreErr("list candidate txos", err)
	}

	var explicit map[store.TxoID]bool
	if len(explicitIDs) > 0 {
		explicit = make(map[store.TxoID]bool, len(explicitIDs))
		for _, id := range explicitIDs {
			explicit[id] = true
		}
	}

	eligible := make([]store.Txo, 0, len(candidates))
	for _, c := range candidates {
		if c.TokenID != tokenID || c.Status() != store.TxoStatusUnspent {
			continue
		}
		if explicit != nil && !explicit[c.TxoID] {
			continue
		}
		if maxSpendableValue != nil && c.Value > *maxSpendableValue {
			continue
		}
		eligible = append(eligible, c)
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Value != eligible[j].Value {
			return eligible[i].Value > eligible[j].Value
		}
		return eligible[i].TxoID.Hex() < eligible[j].TxoID.Hex()
	})

	selected := make([]store.Txo, 0, len(eligible))
	var sum uint64
	for _, c := range eligible {
		if sum >= target {
			break
		}
		selected = append(selected, c)
		sum += c.Value
	}
	if sum < target {
		return nil, InsufficientFunds(fmt.Sprintf("token %d: need %d, have %d", tokenID, target, sum))
	}
	return selected, nil
}
