// Package submit implements Submission: it hands a signed TxProposal to a
// healthy peer, applies the retry policy of spec.md §4.5 against the
// configured peer set, and transitions the associated TransactionLog
// accordingly. Reconciliation (pending -> succeeded/failed(TombstoneExceeded))
// is the Account Scanner's responsibility (internal/scanner.reconcilePending);
// this package owns only the built -> pending / built -> failed edges.
package submit

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/txbuilder"
	"github.com/ledgervault/walletd/pkg/logging"
)

// Config configures a Submitter.
type Config struct {
	Store   *store.Store
	Peers   []peer.Peer
	Logger  *logging.Logger
	Metrics *metrics.Registry // nil disables metric recording
	Retries int               // 0 selects config.DefaultSubmissionRetries
}

// Submitter submits built TxProposals to the peer network, round-robining
// across peers on failure the same way ledgermirror.Syncer round-robins
// across peers when polling for blocks.
type Submitter struct {
	store   *store.Store
	logger  *logging.Logger
	metrics *metrics.Registry
	retries int

	mu    sync.Mutex
	peers []peer.Peer
	next  int
}

// New constructs a Submitter. At least one peer must be configured.
func New(cfg Config) *Submitter {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = config.DefaultSubmissionRetries
	}
	return &Submitter{
		store:   cfg.Store,
		logger:  logger.Component("submit"),
		metrics: cfg.Metrics,
		retries: retries,
		peers:   append([]peer.Peer(nil), cfg.Peers...),
	}
}

// Result reports what happened to an accepted proposal.
type Result struct {
	SubmittedBlockIndex uint64
	PeerURI             string
}

// Submit sends proposal.RawTx to a peer, retrying against the next peer in
// round-robin order on a network-level failure, up to the configured retry
// budget. On acceptance it transitions the log built -> pending and records
// the reporting peer's network tip as submitted_block_index, returning a
// Result. On a protocol rejection it transitions the log built -> failed
// with the peer's rejection code and message and returns a
// ProtocolRejection error; the caller must not resubmit. On exhausting the
// retry budget without any peer accepting or rejecting, the log is left in
// status "built" and a NetworkError is returned so the caller can retry
// Submit later (spec.md §4.5).
func (s *Submitter) Submit(ctx context.Context, proposal txbuilder.TxProposal) (Result, error) {
	if len(s.peers) == 0 {
		return Result{}, NetworkErr("no peers configured", nil)
	}

	attempts := s.retries
	if attempts > len(s.peers) {
		attempts = len(s.peers)
	}
	if attempts == 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		p := s.nextPeer()
		res, err := p.Submit(ctx, proposal.RawTx)
		if err != nil {
			s.logger.Warn("submit attempt failed", "peer", p.URI(), "error", err)
			if s.metrics != nil {
				s.metrics.ObserveSubmissionNetworkError()
				if i < attempts-1 {
					s.metrics.ObserveSubmissionRetry()
				}
			}
			lastErr = err
			continue
		}

		if !res.Accepted {
			if err := s.store.Atomic(func(tx *sql.Tx) error {
				return s.store.TransitionToFailed(tx, proposal.LogID, res.RejectionCode, res.RejectionMessage)
			}); err != nil {
				return Result{}, StoreErr("transition to failed", err)
			}
			s.logger.Warn("proposal rejected", "peer", p.URI(), "code", res.RejectionCode, "message", res.RejectionMessage)
			if s.metrics != nil {
				s.metrics.ObserveSubmissionRejected()
			}
			return Result{}, ProtocolRejection(res.RejectionCode, res.RejectionMessage)
		}

		if err := s.store.Atomic(func(tx *sql.Tx) error {
			return s.store.TransitionToPending(tx, proposal.LogID, res.NetworkTip)
		}); err != nil {
			return Result{}, StoreErr("transition to pending", err)
		}
		s.logger.Info("proposal accepted", "peer", p.URI(), "network_tip", res.NetworkTip)
		if s.metrics != nil {
			s.metrics.ObserveSubmissionAccepted()
		}
		return Result{SubmittedBlockIndex: res.NetworkTip, PeerURI: p.URI()}, nil
	}

	return Result{}, NetworkErr(fmt.Sprintf("all %d attempt(s) against %d peer(s) failed", attempts, len(s.peers)), lastErr)
}

func (s *Submitter) nextPeer() peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.peers[s.next%len(s.peers)]
	s.next++
	return p
}
