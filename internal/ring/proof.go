package ring

import (
	"crypto/sha256"
	"fmt"
)

// ProofElement is one sibling hash on the path from a leaf to the
// committed root, together with the leaf-index range it covers.
type ProofElement struct {
	RangeStart uint64
	RangeEnd   uint64 // exclusive
	Hash       [32]byte
}

// MembershipProof reconstructs the path from one output's leaf hash to the
// Mirror's committed root over a snapshot of size Count.
type MembershipProof struct {
	GlobalIndex uint64
	Count       uint64
	Elements    []ProofElement
}

// BuildMembershipProof constructs the membership proof for the output at
// globalIndex against the first count outputs of src (spec.md §4.2
// membership_proofs).
func BuildMembershipProof(src GlobalOutputSource, globalIndex, count uint64) (MembershipProof, error) {
	if globalIndex >= count {
		return MembershipProof{}, fmt.Errorf("ring: index %d out of range for count %d", globalIndex, count)
	}

	elements, err := auditPath(src, 0, count, globalIndex)
	if err != nil {
		return MembershipProof{}, err
	}

	return MembershipProof{GlobalIndex: globalIndex, Count: count, Elements: elements}, nil
}

// emptyRoot is the committed root of a zero-output Mirror: a fixed
// sentinel distinct from any hashPair/leaf hash, since there is no output
// to hash.
var emptyRoot = sha256.Sum256([]byte("walletd-empty-root"))

// Root recomputes the committed root hash over the first count outputs.
func Root(src GlobalOutputSource, count uint64) ([32]byte, error) {
	if count == 0 {
		return emptyRoot, nil
	}
	return rangeHash(src, 0, count)
}

// Verify checks that p reconstructs to root using leafHash as the proven
// output's leaf hash.
func Verify(p MembershipProof, leafHash [32]byte, root [32]byte) bool {
	cur := leafHash
	start, end := p.GlobalIndex, p.GlobalIndex+1

	for _, el := range p.Elements {
		if el.RangeStart == end {
			cur = hashPair(cur, el.Hash)
			end = el.RangeEnd
		} else if el.RangeEnd == start {
			cur = hashPair(el.Hash, cur)
			start = el.RangeStart
		} else {
			return false
		}
	}

	return start == 0 && end == p.Count && cur == root
}

// rangeHash recursively hashes the leaves in [start, end) into a single
// root, splitting at the midpoint each level — a simple, unbalanced Merkle
// tree over however many leaves currently exist.
func rangeHash(src GlobalOutputSource, start, end uint64) ([32]byte, error) {
	if end == start {
		return emptyRoot, nil
	}
	if end-start == 1 {
		out, err := src.OutputAt(start)
		if err != nil {
			return [32]byte{}, fmt.Errorf("ring: fetch output %d: %w", start, err)
		}
		return out.LeafHash(), nil
	}

	mid := start + (end-start)/2
	left, err := rangeHash(src, start, mid)
	if err != nil {
		return [32]byte{}, err
	}
	right, err := rangeHash(src, mid, end)
	if err != nil {
		return [32]byte{}, err
	}
	return hashPair(left, right), nil
}

// auditPath walks the same recursive split as rangeHash, collecting the
// sibling hash at each level that covers leafIndex.
func auditPath(src GlobalOutputSource, start, end, leafIndex uint64) ([]ProofElement, error) {
	if end-start == 1 {
		return nil, nil
	}

	mid := start + (end-start)/2
	if leafIndex < mid {
		siblingHash, err := rangeHash(src, mid, end)
		if err != nil {
			return nil, err
		}
		rest, err := auditPath(src, start, mid, leafIndex)
		if err != nil {
			return nil, err
		}
		return append(rest, ProofElement{RangeStart: mid, RangeEnd: end, Hash: siblingHash}), nil
	}

	siblingHash, err := rangeHash(src, start, mid)
	if err != nil {
		return nil, err
	}
	rest, err := auditPath(src, mid, end, leafIndex)
	if err != nil {
		return nil, err
	}
	return append(rest, ProofElement{RangeStart: start, RangeEnd: mid, Hash: siblingHash}), nil
}

func hashPair(left, right [32]byte) [32]byte {
	h := sha256.New()
	h.Write([]byte("walletd-output-node"))
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
