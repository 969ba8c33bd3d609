package ledgermirror

import (
	"context"
	"sync"
	"time"

	"github.com/ledgervault/walletd/internal/metrics"
	"github.com/ledgervault/walletd/internal/peer"
	"github.com/ledgervault/walletd/pkg/logging"
)

// maxPollInterval bounds how long the sync worker waits between poll
// attempts when the Mirror is already caught up, per spec.md §4.2 ("polls
// at an interval no longer than 5 seconds").
const maxPollInterval = 5 * time.Second

// blocksPerFetch bounds how many blocks a single FetchBlocks call requests,
// so one slow peer response can't stall the worker's ability to notice a
// shutdown signal for an unbounded amount of time.
const blocksPerFetch = 500

// Syncer keeps a Mirror caught up with the network tip by polling a set of
// peers on a round-robin basis, retrying against the next peer on failure.
type Syncer struct {
	mirror  *Mirror
	peers   []peer.Peer
	logger  *logging.Logger
	metrics *metrics.Registry

	wakeCh chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu   sync.Mutex
	next int // round-robin cursor into peers
}

// NewSyncer constructs a Syncer. peers must be non-empty.
func NewSyncer(mirror *Mirror, peers []peer.Peer, logger *logging.Logger) *Syncer {
	return NewSyncerWithMetrics(mirror, peers, logger, nil)
}

// NewSyncerWithMetrics constructs a Syncer that also reports the local
// Mirror tip to reg after every successful sync round. reg may be nil.
func NewSyncerWithMetrics(mirror *Mirror, peers []peer.Peer, logger *logging.Logger, reg *metrics.Registry) *Syncer {
	if logger == nil {
		logger = logging.GetDefault()
	}
	return &Syncer{
		mirror:  mirror,
		peers:   peers,
		logger:  logger.Component("ledgermirror-sync"),
		metrics: reg,
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the background sync loop. It returns immediately; call
// Stop to shut it down.
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop signals the sync loop to exit and waits for it to finish.
func (s *Syncer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// Wake nudges the sync loop to poll immediately instead of waiting for the
// next tick, e.g. right after a caller observes a gap.
func (s *Syncer) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Syncer) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(maxPollInterval)
	defer ticker.Stop()

	s.pollOnce()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.pollOnce()
		case <-s.wakeCh:
			s.pollOnce()
		}
	}
}

// pollOnce fetches and appends every block currently available from the
// network, retrying against successive peers on transient failure, until
// the Mirror's tip catches up with the best tip observed or every peer has
// failed once.
func (s *Syncer) pollOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		advanced, err := s.syncOneRound(ctx)
		if err != nil {
			s.logger.Warn("sync round failed", "error", err)
			return
		}
		if !advanced {
			return
		}
	}
}

// syncOneRound fetches at most blocksPerFetch blocks starting at the local
// tip+1 and appends them. It returns advanced=true if it made progress, so
// the caller can loop until caught up.
func (s *Syncer) syncOneRound(ctx context.Context) (bool, error) {
	localTip, hasAny, err := s.mirror.Tip()
	if err != nil {
		return false, err
	}
	from := uint64(0)
	if hasAny {
		from = localTip + 1
	}

	p, networkTip, err := s.bestPeer(ctx)
	if err != nil {
		return false, err
	}
	if hasAny && networkTip <= localTip {
		return false, nil
	}

	to := networkTip
	if to-from+1 > blocksPerFetch {
		to = from + blocksPerFetch - 1
	}

	blocks, err := s.fetchFromAnyPeer(ctx, p, from, to)
	if err != nil {
		return false, err
	}
	for _, b := range blocks {
		if err := s.mirror.Append(b); err != nil {
			return false, err
		}
	}
	if s.metrics != nil {
		if tip, has, err := s.mirror.Tip(); err == nil && has {
			s.metrics.SetMirrorTip(tip)
		}
	}
	return len(blocks) > 0, nil
}

// bestPeer returns the next peer in round-robin order along with its
// reported tip, advancing past any peer that fails to respond.
func (s *Syncer) bestPeer(ctx context.Context) (peer.Peer, uint64, error) {
	for i := 0; i < len(s.peers); i++ {
		p := s.nextPeer()
		tip, err := p.TipOfNetwork(ctx)
		if err != nil {
			s.logger.Warn("peer unreachable", "peer", p.URI(), "error", err)
			continue
		}
		return p, tip, nil
	}
	return nil, 0, peer.ErrUnreachable
}

// fetchFromAnyPeer tries preferred first, then every other peer in
// round-robin order, returning the first successful block range.
func (s *Syncer) fetchFromAnyPeer(ctx context.Context, preferred peer.Peer, from, to uint64) ([]peer.Block, error) {
	blocks, err := preferred.FetchBlocks(ctx, from, to)
	if err == nil {
		return blocks, nil
	}
	s.logger.Warn("peer fetch failed", "peer", preferred.URI(), "error", err)

	for i := 0; i < len(s.peers); i++ {
		p := s.nextPeer()
		if p == preferred {
			continue
		}
		blocks, err := p.FetchBlocks(ctx, from, to)
		if err == nil {
			return blocks, nil
		}
		s.logger.Warn("peer fetch failed", "peer", p.URI(), "error", err)
	}
	return nil, peer.ErrUnreachable
}

func (s *Syncer) nextPeer() peer.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.peers[s.next%len(s.peers)]
	s.next++
	return p
}
