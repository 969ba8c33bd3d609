package scanner

import (
	"database/sql"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
)

// reconcilePending re-evaluates an account's pending transaction logs
// against the block just scanned, per spec.md §4.5's state machine. A log
// transitions to succeeded only if all of its input key-images and all of
// its output public keys are observed in this same block, avoiding
// mis-attribution across separate blocks.
func (sc *Scanner) reconcilePending(tx *sql.Tx, pendingLogs []store.TransactionLog, block peer.Block) error {
	if len(pendingLogs) == 0 {
		return nil
	}

	spent := make(map[cryptoiface.KeyImage]bool, len(block.KeyImagesSpent))
	for _, ki := range block.KeyImagesSpent {
		spent[ki] = true
	}
	present := make(map[store.TxoID]bool, len(block.Outputs))
	for _, o := range block.Outputs {
		present[store.DeriveTxoID(o.PublicKey)] = true
	}

	for _, log := range pendingLogs {
		inputs, err := sc.store.ListTransactionLogInputs(tx, log.ID)
		if err != nil {
			return err
		}
		outputs, err := sc.store.ListTransactionLogOutputs(tx, log.ID)
		if err != nil {
			return err
		}

		allSpent := true
		for _, txoID := range inputs {
			ki, err := sc.store.GetTxoKeyImage(tx, txoID)
			if err != nil {
				return err
			}
			if ki == nil || !spent[*ki] {
				allSpent = false
				break
			}
		}

		allPresent := true
		for _, out := range outputs {
			if !present[out.TxoID] {
				allPresent = false
				break
			}
		}

		switch {
		case allSpent && allPresent && block.Index <= log.TombstoneBlockIndex:
			if err := sc.store.TransitionToSucceeded(tx, log.ID, block.Index); err != nil {
				return err
			}
		case block.Index > log.TombstoneBlockIndex:
			if err := sc.store.TransitionToFailed(tx, log.ID, "TombstoneExceeded", "tombstone block index exceeded without observing the transaction"); err != nil {
				return err
			}
		}
	}

	return nil
}
