package scanner

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
)

// RecoverOrphans re-examines an account's orphaned TXOs against its
// currently materialized subaddresses and links any whose recovered spend
// key now matches a known subaddress (spec.md §4.3 "Orphan recovery"; see
// S6). Callers invoke this after assigning a new subaddress.
func (sc *Scanner) RecoverOrphans() error {
	account, err := sc.store.GetAccount(sc.accountID)
	if err != nil {
		return fmt.Errorf("scanner: read account: %w", err)
	}
	orphans, err := sc.store.ListOrphanedTxos(sc.accountID)
	if err != nil {
		return fmt.Errorf("scanner: list orphans: %w", err)
	}
	if len(orphans) == 0 {
		return nil
	}
	subs, err := sc.store.GetSubaddressesForAccount(sc.accountID)
	if err != nil {
		return fmt.Errorf("scanner: list subaddresses: %w", err)
	}

	ak := accountKeysFromRow(account)

	return sc.store.Atomic(func(tx *sql.Tx) error {
		for _, orphan := range orphans {
			if orphan.SharedSecret == nil {
				continue
			}
			var po peer.Output
			if err := json.Unmarshal(orphan.OutputBlob, &po); err != nil {
				continue
			}
			keysOutput := keys.Output{TxPublicKey: orphan.PublicKey, OutputIndex: po.OutputIndex, TargetKey: orphan.TargetKey}

			candidate, err := keys.RecoverSpendPublic(*orphan.SharedSecret, keysOutput)
			if err != nil {
				continue
			}

			for _, sub := range subs {
				if sub.PublicSpendKey != candidate {
					continue
				}
				if err := sc.store.LinkOrphanToSubaddress(tx, orphan.TxoID, sub.SubaddressIndex); err != nil {
					return err
				}
				if !ak.IsViewOnly() {
					ki, err := keys.DeriveKeyImage(ak, sub.SubaddressIndex, *orphan.SharedSecret, keysOutput)
					if err != nil && err != cryptoiface.ErrSignerUnavailable {
						return err
					}
					if err == nil {
						if err := sc.store.SetKeyImage(tx, orphan.TxoID, ki); err != nil {
							return err
						}
					}
				}
				break
			}
		}
		return nil
	})
}
