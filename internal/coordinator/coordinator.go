// Package coordinator owns the wallet service's process-lifetime state: it
// starts and stops the Ledger Mirror sync worker, runs one Account Scanner
// goroutine per tracked account, and drains a bounded submission queue
// through a semaphore-gated pool of workers calling internal/submit. It
// does not build transactions or serve RPCs itself — those are the
// internal/txbuilder and internal/rpc packages' jobs; the Coordinator is
// the thing that wires their goroutines together and shuts them down
// cleanly, the way internal/node.Node owns a libp2p host's lifecycle and
// internal/wallet.UTXOSyncService owns its stopCh/wg background loop.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ledgervault/walletd/internal/config"
	"github.com/ledgervault/walletd/internal/ledgermirror"
	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/internal/scanner"
	"github.com/ledgervault/walletd/internal/store"
	"github.com/ledgervault/walletd/internal/submit"
	"github.com/ledgervault/walletd/internal/txbuilder"
	"github.com/ledgervault/walletd/pkg/logging"
)

const (
	defaultMaxConcurrentSubmissions = 4
	defaultSubmissionQueueCapacity  = 64
)

// Config configures a Coordinator.
type Config struct {
	Store  *store.Store
	Mirror *ledgermirror.Mirror
	Peers  []peer.Peer
	Logger *logging.Logger
	Metrics *metrics.Registry // nil disables metric recording

	SubmissionRetries        int   // 0 selects config.DefaultSubmissionRetries
	MaxConcurrentSubmissions int64 // 0 selects defaultMaxConcurrentSubmissions
	SubmissionQueueCapacity  int   // 0 selects defaultSubmissionQueueCapacity
	ScanPollInterval         time.Duration
}

// Coordinator is the top-level lifecycle owner described in the package doc.
type Coordinator struct {
	store   *store.Store
	mirror  *ledgermirror.Mirror
	logger  *logging.Logger
	metrics *metrics.Registry

	syncer    *ledgermirror.Syncer
	submitter *submit.Submitter

	scanPollInterval time.Duration

	mu       sync.Mutex
	scanners map[store.AccountID]*scanner.Scanner

	submitCh chan txbuilder.TxProposal
	sem      *semaphore.Weighted

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startTime time.Time
}

// New constructs a Coordinator. Call Start to launch its background work.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("coordinator: Store is required")
	}
	if cfg.Mirror == nil {
		return nil, fmt.Errorf("coordinator: Mirror is required")
	}
	if len(cfg.Peers) == 0 {
		return nil, fmt.Errorf("coordinator: at least one Peer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetDefault()
	}
	logger = logger.Component("coordinator")

	maxConcurrent := cfg.MaxConcurrentSubmissions
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrentSubmissions
	}
	queueCap := cfg.SubmissionQueueCapacity
	if queueCap <= 0 {
		queueCap = defaultSubmissionQueueCapacity
	}

	submitter := submit.New(submit.Config{
		Store:   cfg.Store,
		Peers:   cfg.Peers,
		Logger:  logger,
		Metrics: cfg.Metrics,
		Retries: cfg.SubmissionRetries,
	})
	syncer := ledgermirror.NewSyncerWithMetrics(cfg.Mirror, cfg.Peers, logger, cfg.Metrics)

	return &Coordinator{
		store:            cfg.Store,
		mirror:           cfg.Mirror,
		logger:           logger,
		metrics:          cfg.Metrics,
		syncer:           syncer,
		submitter:        submitter,
		scanPollInterval: cfg.ScanPollInterval,
		scanners:         make(map[store.AccountID]*scanner.Scanner),
		submitCh:         make(chan txbuilder.TxProposal, queueCap),
		sem:              semaphore.NewWeighted(maxConcurrent),
	}, nil
}

// Start launches the mirror-sync worker, one scanner per existing account,
// and the submission dispatcher. It returns once every account's scanner
// has been started.
func (c *Coordinator) Start(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.startTime = time.Now()

	c.syncer.Start()

	accounts, err := c.store.ListAccounts()
	if err != nil {
		c.cancel()
		return fmt.Errorf("coordinator: list accounts: %w", err)
	}
	c.mu.Lock()
	for _, a := range accounts {
		c.startScannerLocked(a.AccountID)
	}
	c.mu.Unlock()

	c.wg.Add(1)
	go c.dispatchSubmissions()

	c.logger.Info("coordinator started", "accounts", len(accounts))
	return nil
}

// Stop cancels the dispatcher, stops every scanner and the mirror-sync
// worker, and waits for all in-flight submission workers to drain.
func (c *Coordinator) Stop() {
	c.cancel()
	c.syncer.Stop()

	c.mu.Lock()
	for _, sc := range c.scanners {
		sc.Stop()
	}
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("coordinator stopped", "uptime", time.Since(c.startTime))
}

// AddAccount starts a scanner for a newly created account. It is a no-op if
// a scanner for accountID is already running.
func (c *Coordinator) AddAccount(accountID store.AccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startScannerLocked(accountID)
}

// RemoveAccount stops and forgets an account's scanner.
func (c *Coordinator) RemoveAccount(accountID store.AccountID) {
	c.mu.Lock()
	sc, ok := c.scanners[accountID]
	delete(c.scanners, accountID)
	c.mu.Unlock()

	if ok {
		sc.Stop()
	}
}

// WakeAccount nudges an account's scanner to check for newly-mirrored
// blocks immediately instead of waiting out the poll interval. It does
// nothing if no scanner is running for accountID.
func (c *Coordinator) WakeAccount(accountID store.AccountID) {
	c.mu.Lock()
	sc, ok := c.scanners[accountID]
	c.mu.Unlock()
	if ok {
		sc.Wake()
	}
}

// startScannerLocked must be called with c.mu held.
func (c *Coordinator) startScannerLocked(accountID store.AccountID) {
	if _, ok := c.scanners[accountID]; ok {
		return
	}
	sc := scanner.New(scanner.Config{
		Store:        c.store,
		Mirror:       c.mirror,
		AccountID:    accountID,
		Logger:       c.logger,
		Metrics:      c.metrics,
		PollInterval: c.scanPollInterval,
	})
	c.scanners[accountID] = sc
	sc.Start()
}

// EnqueueSubmission hands a built TxProposal to the submission dispatcher.
// It blocks until either a queue slot frees up or ctx is canceled; the
// caller's ctx should usually be the RPC request's context, not the
// Coordinator's own.
func (c *Coordinator) EnqueueSubmission(ctx context.Context, proposal txbuilder.TxProposal) error {
	if err := c.ctx.Err(); err != nil {
		return fmt.Errorf("coordinator: shutting down")
	}
	select {
	case c.submitCh <- proposal:
		if c.metrics != nil {
			c.metrics.SetSubmissionQueueDepth(len(c.submitCh))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return fmt.Errorf("coordinator: shutting down")
	}
}

// dispatchSubmissions reads proposals off submitCh and runs each through
// the Submitter, bounding concurrency with sem the way the teacher bounds
// concurrent work in internal/swap's worker pools.
func (c *Coordinator) dispatchSubmissions() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case proposal, ok := <-c.submitCh:
			if !ok {
				return
			}
			if c.metrics != nil {
				c.metrics.SetSubmissionQueueDepth(len(c.submitCh))
			}
			if err := c.sem.Acquire(c.ctx, 1); err != nil {
				return
			}
			c.wg.Add(1)
			go func(p txbuilder.TxProposal) {
				defer c.wg.Done()
				defer c.sem.Release(1)
				c.submitOne(p)
			}(proposal)
		}
	}
}

func (c *Coordinator) submitOne(proposal txbuilder.TxProposal) {
	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultSubmitTimeout)
	defer cancel()

	result, err := c.submitter.Submit(ctx, proposal)
	if err != nil {
		if submit.IsNetworkError(err) {
			c.logger.Warn("submission left built for retry", "log_id", proposal.LogID.Hex(), "error", err)
		} else {
			c.logger.Warn("submission failed", "log_id", proposal.LogID.Hex(), "error", err)
		}
		return
	}
	c.logger.Info("submission accepted", "log_id", proposal.LogID.Hex(), "peer", result.PeerURI, "network_tip", result.SubmittedBlockIndex)
}
