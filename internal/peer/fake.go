package peer

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Fake is a deterministic in-memory Peer for tests and local development.
// It holds an append-only block list and records submitted transactions so
// tests can assert on what internal/submit and internal/ledgermirror did.
type Fake struct {
	uri string

	mu          sync.Mutex
	blocks      []Block
	unreachable bool
	submitFn    func(rawTx []byte) SubmitResult
	submitted   [][]byte
}

// NewFake returns a Fake peer identified by uri with no blocks yet.
func NewFake(uri string) *Fake {
	return &Fake{uri: uri}
}

func (f *Fake) URI() string { return f.uri }

// SetUnreachable makes every subsequent call fail with ErrUnreachable,
// simulating a dead or partitioned peer for retry/failover tests.
func (f *Fake) SetUnreachable(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable = v
}

// AppendBlock adds b to the peer's chain. Blocks must be appended in
// increasing, contiguous Index order; it panics otherwise since this is a
// test fixture bug, not a runtime condition.
func (f *Fake) AppendBlock(b Block) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.blocks) > 0 {
		want := f.blocks[len(f.blocks)-1].Index + 1
		if b.Index != want {
			panic(fmt.Sprintf("peer.Fake: non-contiguous append, want index %d got %d", want, b.Index))
		}
	}
	f.blocks = append(f.blocks, b)
}

// SetSubmitFunc overrides how Submit evaluates a raw transaction. Tests use
// this to inject rejections (stale key image, tombstone exceeded, …). The
// default accepts everything at the current tip.
func (f *Fake) SetSubmitFunc(fn func(rawTx []byte) SubmitResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitFn = fn
}

// Submitted returns the raw transactions passed to Submit while the fake
// was reachable, accepted or rejected, in call order.
func (f *Fake) Submitted() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.submitted))
	copy(out, f.submitted)
	return out
}

func (f *Fake) TipOfNetwork(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return 0, ErrUnreachable
	}
	if len(f.blocks) == 0 {
		return 0, nil
	}
	return f.blocks[len(f.blocks)-1].Index, nil
}

func (f *Fake) FetchBlocks(ctx context.Context, from, to uint64) ([]Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return nil, ErrUnreachable
	}
	if from > to {
		return nil, fmt.Errorf("peer: invalid range [%d, %d]", from, to)
	}
	out := make([]Block, 0, to-from+1)
	// f.blocks is index-contiguous from 0, so block N lives at f.blocks[N]
	// as long as it was appended; tolerate gaps defensively via search.
	idx := sort.Search(len(f.blocks), func(i int) bool { return f.blocks[i].Index >= from })
	for i := idx; i < len(f.blocks) && f.blocks[i].Index <= to; i++ {
		out = append(out, f.blocks[i])
	}
	return out, nil
}

func (f *Fake) Submit(ctx context.Context, rawTx []byte) (SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unreachable {
		return SubmitResult{}, ErrUnreachable
	}
	f.submitted = append(f.submitted, rawTx)

	tip := uint64(0)
	if len(f.blocks) > 0 {
		tip = f.blocks[len(f.blocks)-1].Index
	}
	if f.submitFn != nil {
		res := f.submitFn(rawTx)
		if res.NetworkTip == 0 {
			res.NetworkTip = tip
		}
		return res, nil
	}
	return SubmitResult{Accepted: true, NetworkTip: tip}, nil
}
