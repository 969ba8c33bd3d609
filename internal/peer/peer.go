// Package peer declares the boundary between the wallet core and the
// remote consensus/peer RPC surface: fetching block ranges, querying the
// network tip, and submitting signed transactions. Per the governing
// specification this is an external dependency — the wallet never
// implements ledger consensus itself, it only depends on this interface. A
// deterministic in-memory fake is provided for tests; a real binary wires
// in an HTTP/gRPC client at startup.
package peer

import (
	"context"
	"errors"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// Output is one output carried by a Block, in the shape a peer reports it
// over the wire — enough for view-key matching and mixin sampling.
//
// PublicKey is the output's unique per-output key (serves as both its
// content identity and the ECDH value a view key combines with to derive
// a shared secret). TargetKey is the recoverable one-time spendable key a
// matching account's candidate spend key must equal.
//
// Commitment is a value commitment, opaque to the wallet (see
// cryptoiface.RingMember). MaskedValue and MaskedTokenID carry the same
// amount hidden behind a keystream only the output's shared secret can
// remove (internal/keys.UnmaskValue) — the wallet never opens Commitment
// itself, it recovers its own value this way instead.
type Output struct {
	GlobalIndex   uint64
	PublicKey     cryptoiface.PublicKey
	TargetKey     cryptoiface.PublicKey
	Commitment    [32]byte
	MaskedValue   uint64
	MaskedTokenID uint64
	EncryptedHint []byte
	OutputIndex   uint64
}

// Block is one ledger block as reported by a peer (spec.md §3 BlockRecord).
type Block struct {
	Index          uint64
	ID             [32]byte
	ParentID       [32]byte
	ContentsHash   [32]byte
	Outputs        []Output
	KeyImagesSpent []cryptoiface.KeyImage
}

// SubmitResult reports the outcome of submitting a signed transaction to a
// peer (spec.md §4.5).
type SubmitResult struct {
	Accepted         bool
	RejectionCode    string // e.g. ContainsSpentKeyImage, TombstoneExceeded, InvalidSignature, FeeTooLow
	RejectionMessage string
	NetworkTip       uint64
}

// ErrUnreachable is returned by a Peer method on a transient network
// failure — the caller retries against another peer (spec.md §7
// "Transient").
var ErrUnreachable = errors.New("peer: unreachable")

// Peer is the declared boundary to one remote consensus/peer RPC endpoint.
type Peer interface {
	// URI identifies the peer, for logging and round-robin bookkeeping.
	URI() string

	// TipOfNetwork returns the peer's reported current block index.
	TipOfNetwork(ctx context.Context) (uint64, error)

	// FetchBlocks returns blocks [from, to] inclusive, in order.
	FetchBlocks(ctx context.Context, from, to uint64) ([]Block, error)

	// Submit broadcasts a signed, serialized transaction.
	Submit(ctx context.Context, rawTx []byte) (SubmitResult, error)
}
