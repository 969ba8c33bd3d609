// Package ring implements mixin sampling and membership-proof construction
// over the Ledger Mirror's global output sequence, the two Mirror
// responsibilities spec.md §4.2 names (sample_mixins, membership_proofs).
// It depends only on a small GlobalOutputSource interface so the Mirror's
// storage choice stays its own concern.
package ring

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

// GlobalOutput is one entry in the Mirror's append-only global output
// sequence — every output ever observed on-ledger, in the order it first
// appeared, independent of which account (if any) owns it.
type GlobalOutput struct {
	GlobalIndex uint64
	PublicKey   cryptoiface.PublicKey
	Commitment  [32]byte
}

// LeafHash returns the deterministic hash of this output used as a Merkle
// tree leaf.
func (o GlobalOutput) LeafHash() [32]byte {
	var idx [8]byte
	binary.LittleEndian.PutUint64(idx[:], o.GlobalIndex)
	h := sha256.New()
	h.Write([]byte("walletd-output-leaf"))
	h.Write(idx[:])
	h.Write(o.PublicKey[:])
	h.Write(o.Commitment[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// GlobalOutputSource exposes read access to the Mirror's global output
// sequence as of the current local tip.
type GlobalOutputSource interface {
	OutputCount() (uint64, error)
	OutputAt(globalIndex uint64) (GlobalOutput, error)
}

// ErrInsufficientOutputs is returned by SampleMixins when the source does
// not have enough eligible outputs to satisfy the request (spec.md §4.2).
var ErrInsufficientOutputs = fmt.Errorf("ring: insufficient outputs available")

// SampleMixins uniformly samples num distinct outputs from src, excluding
// any public key present in excluded. Sampling is without replacement and
// uses a cryptographic RNG, per spec.md §4.2.
func SampleMixins(src GlobalOutputSource, num int, excluded map[cryptoiface.PublicKey]bool) ([]GlobalOutput, error) {
	if num <= 0 {
		return nil, nil
	}

	count, err := src.OutputCount()
	if err != nil {
		return nil, fmt.Errorf("ring: output count: %w", err)
	}

	available := count - uint64(len(excluded))
	if int64(available) < int64(num) {
		return nil, ErrInsufficientOutputs
	}

	chosen := make(map[uint64]bool, num)
	result := make([]GlobalOutput, 0, num)

	for len(result) < num {
		idx, err := randomIndex(count)
		if err != nil {
			return nil, fmt.Errorf("ring: sample index: %w", err)
		}
		if chosen[idx] {
			continue
		}

		out, err := src.OutputAt(idx)
		if err != nil {
			return nil, fmt.Errorf("ring: fetch output %d: %w", idx, err)
		}
		if excluded[out.PublicKey] {
			continue
		}

		chosen[idx] = true
		result = append(result, out)
	}

	return result, nil
}

func randomIndex(count uint64) (uint64, error) {
	n, err := rand.Int(rand.Reader, new(big.Int).SetUint64(count))
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}
