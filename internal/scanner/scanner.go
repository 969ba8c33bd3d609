// Package scanner implements the Account Scanner: a per-account worker that
// advances an account's scan cursor through the Ledger Mirror, recovers
// owned TXOs via view-key matching, detects spends via key-image matching,
// and reconciles pending transaction logs (spec.md §4.3, §4.5).
package scanner

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ledgervault/walletd/internal/cryptoiface"
	"github.com/ledgervault/walletd/internal/keys"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/pkg/logging"
)

// defaultPollInterval bounds how long the scanner sleeps between checks for
// newly-mirrored blocks when it has caught up to the local tip (spec.md §5
// "Scanner block-waits have no wall-clock timeout... but poll at bounded
// intervals").
const defaultPollInterval = 2 * time.Second

// Scanner advances one account's scan cursor through the Ledger Mirror.
type Scanner struct {
	store     *store.Store
	mirror    *ledgermirror.Mirror
	accountID store.AccountID
	logger    *logging.Logger
	metrics   *metrics.Registry

	pollInterval time.Duration

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Config configures a Scanner.
type Config struct {
	Store        *store.Store
	Mirror       *ledgermirror.Mirror
	AccountID    store.AccountID
	Logger       *logging.Logger
	Metrics      *metrics.Registry // nil disables metric recording
	PollInterval time.Duration
}

// New constructs a Scanner for one account. Call Start to begin scanning.
func New(cfg Config) *Scanner {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Scanner{
		store:        cfg.Store,
		mirror:       cfg.Mirror,
		accountID:    cfg.AccountID,
		logger:       logger.Component(fmt.Sprintf("scanner[%s]", cfg.AccountID.Hex()[:8])),
		metrics:      cfg.Metrics,
		pollInterval: interval,
		wakeCh:       make(chan struct{}, 1),
		stopCh:       make(chan struct{}),
	}
}

// Start launches the scanner's background loop.
func (sc *Scanner) Start() {
	sc.wg.Add(1)
	go sc.run()
}

// Stop signals the background loop to exit and waits for it to drain.
func (sc *Scanner) Stop() {
	close(sc.stopCh)
	sc.wg.Wait()
}

// Wake nudges the scanner to check for newly-mirrored blocks immediately,
// instead of waiting out the poll interval.
func (sc *Scanner) Wake() {
	select {
	case sc.wakeCh <- struct{}{}:
	default:
	}
}

func (sc *Scanner) run() {
	defer sc.wg.Done()

	sc.scanAvailable()

	ticker := time.NewTicker(sc.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sc.stopCh:
			return
		case <-ticker.C:
			sc.scanAvailable()
		case <-sc.wakeCh:
			sc.scanAvailable()
		}
	}
}

// scanAvailable scans every locally-mirrored block not yet reflected in the
// account's cursor. Store errors abort the current block and are logged;
// the cursor is only advanced on a successful commit (spec.md §4.3
// "Failure").
func (sc *Scanner) scanAvailable() {
	for {
		select {
		case <-sc.stopCh:
			return
		default:
		}

		advanced, err := sc.ScanOneBlock()
		if err != nil {
			sc.logger.Errorf("scan block failed: %v", err)
			return
		}
		if !advanced {
			return
		}
	}
}

// match is an output recognized (view-key matched) for the scanned block,
// carrying everything the write phase needs.
type match struct {
	output          peer.Output
	subaddressIndex *uint64
	keyImage        *cryptoiface.KeyImage
	sharedSecret    [32]byte
	value           uint64
	tokenID         uint64
}

// ScanOneBlock scans the single block at the account's current cursor, if
// it is locally available, returning whether it advanced the cursor.
//
// It follows the Store's mutex-composition rule: every read that takes its
// own lock (GetAccount, FindSubaddressBySpendKey, ListTransactionLogsForAccount)
// happens in phase 1, before any write enters the single Atomic transaction
// of phase 2 — so the whole block's effect commits, or aborts, as one unit
// (spec.md §4.3 "Ordering guarantee": "Results of a block are written in
// one Store transaction; an incomplete block scan is never observable").
func (sc *Scanner) ScanOneBlock() (advanced bool, err error) {
	account, err := sc.store.GetAccount(sc.accountID)
	if err != nil {
		return false, fmt.Errorf("scanner: read account: %w", err)
	}

	tip, has, err := sc.mirror.Tip()
	if err != nil {
		return false, fmt.Errorf("scanner: read mirror tip: %w", err)
	}
	if !has || account.NextBlockIndex > tip {
		if sc.metrics != nil && has {
			sc.metrics.SetScanLag(sc.accountID.Hex(), 0)
		}
		return false, nil
	}
	if sc.metrics != nil {
		sc.metrics.SetScanLag(sc.accountID.Hex(), tip-account.NextBlockIndex)
	}

	block, err := sc.mirror.BlockAt(account.NextBlockIndex)
	if err != nil {
		return false, fmt.Errorf("scanner: read block %d: %w", account.NextBlockIndex, err)
	}

	ak := accountKeysFromRow(account)

	matches, err := sc.matchOutputs(ak, block.Outputs)
	if err != nil {
		return false, fmt.Errorf("scanner: match outputs: %w", err)
	}

	pendingLogs, err := sc.store.ListTransactionLogsForAccount(sc.accountID, logStatusPtr(store.LogStatusPending))
	if err != nil {
		return false, fmt.Errorf("scanner: list pending logs: %w", err)
	}

	err = sc.store.Atomic(func(tx *sql.Tx) error {
		for _, m := range matches {
			t := store.Txo{
				TxoID:             store.DeriveTxoID(m.output.PublicKey),
				PublicKey:         m.output.PublicKey,
				TargetKey:         m.output.TargetKey,
				Value:             m.value,
				TokenID:           m.tokenID,
				EncryptedHint:     m.output.EncryptedHint,
				SubaddressIndex:   m.subaddressIndex,
				KeyImage:          m.keyImage,
				ReceivedAccountID: &account.AccountID,
				SharedSecret:      &m.sharedSecret,
			}
			if blob, err := json.Marshal(m.output); err == nil {
				t.OutputBlob = blob
			}

			if _, err := sc.store.InsertTxoIfAbsent(tx, t); err != nil {
				return fmt.Errorf("insert txo: %w", err)
			}
			secret := m.sharedSecret
			if err := sc.store.MarkReceived(tx, t.TxoID, account.AccountID, m.subaddressIndex, block.Index, &secret); err != nil {
				return fmt.Errorf("mark received: %w", err)
			}
		}

		for _, ki := range block.KeyImagesSpent {
			if _, _, err := sc.store.MarkSpentByKeyImage(tx, ki, block.Index); err != nil {
				return fmt.Errorf("mark spent: %w", err)
			}
		}

		if err := sc.reconcilePending(tx, pendingLogs, block); err != nil {
			return fmt.Errorf("reconcile pending logs: %w", err)
		}

		return sc.store.AdvanceNextBlockIndex(tx, account.AccountID, block.Index+1)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// matchOutputs attempts view-key matching for every output in a block,
// gating the expensive RecoverSpendPublic computation on the cheap view-tag
// check first (spec.md §4.3 step 2a-2c; see DESIGN.md for why the gate
// exists).
func (sc *Scanner) matchOutputs(ak *keys.AccountKeys, outputs []peer.Output) ([]match, error) {
	var matches []match

	for _, o := range outputs {
		sharedSecret, err := keys.SharedSecret(ak.ViewPrivate, o.PublicKey)
		if err != nil {
			// Malformed output key; skip rather than fail the whole block
			// (spec.md §4.3 "Malformed outputs are skipped (not fatal)").
			sc.logger.Warnf("skip output %d: shared secret: %v", o.GlobalIndex, err)
			continue
		}

		if len(o.EncryptedHint) > 0 && o.EncryptedHint[0] != keys.ViewTag(sharedSecret) {
			continue
		}

		keysOutput := keys.Output{TxPublicKey: o.PublicKey, OutputIndex: o.OutputIndex, TargetKey: o.TargetKey}
		candidate, err := keys.RecoverSpendPublic(sharedSecret, keysOutput)
		if err != nil {
			sc.logger.Warnf("skip output %d: recover spend public: %v", o.GlobalIndex, err)
			continue
		}

		sub, found, err := sc.store.FindSubaddressBySpendKey(sc.accountID, candidate)
		if err != nil {
			return nil, err
		}

		m := match{output: o, sharedSecret: sharedSecret}
		m.value, m.tokenID = keys.UnmaskValue(sharedSecret, o.MaskedValue, o.MaskedTokenID)

		if found {
			idx := sub.SubaddressIndex
			m.subaddressIndex = &idx
			if !ak.IsViewOnly() {
				ki, err := keys.DeriveKeyImage(ak, idx, sharedSecret, keysOutput)
				if err != nil && err != cryptoiface.ErrSignerUnavailable {
					return nil, err
				}
				if err == nil {
					m.keyImage = &ki
				}
			}
		}
		matches = append(matches, m)
	}

	return matches, nil
}

func accountKeysFromRow(a store.Account) *keys.AccountKeys {
	return &keys.AccountKeys{
		DerivationVersion: a.DerivationVersion,
		ViewPrivate:       a.ViewPrivateKey,
		ViewPublic:        a.ViewPublicKey,
		SpendPrivate:      a.SpendPrivateKey,
		SpendPublic:       a.SpendPublicKey,
	}
}

func logStatusPtr(s store.LogStatus) *store.LogStatus { return &s }
