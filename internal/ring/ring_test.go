package ring

import (
	"testing"

	"github.com/ledgervault/walletd/internal/cryptoiface"
)

type memSource struct {
	outputs []GlobalOutput
}

func newMemSource(n int) *memSource {
	s := &memSource{outputs: make([]GlobalOutput, n)}
	for i := 0; i < n; i++ {
		var pk cryptoiface.PublicKey
		pk[0] = byte(i)
		pk[1] = byte(i >> 8)
		var commitment [32]byte
		commitment[0] = byte(i)
		s.outputs[i] = GlobalOutput{GlobalIndex: uint64(i), PublicKey: pk, Commitment: commitment}
	}
	return s
}

func (s *memSource) OutputCount() (uint64, error) {
	return uint64(len(s.outputs)), nil
}

func (s *memSource) OutputAt(globalIndex uint64) (GlobalOutput, error) {
	return s.outputs[globalIndex], nil
}

func TestSampleMixinsExactCountAndDistinct(t *testing.T) {
	src := newMemSource(50)

	mixins, err := SampleMixins(src, 11, nil)
	if err != nil {
		t.Fatalf("SampleMixins() error = %v", err)
	}
	if len(mixins) != 11 {
		t.Fatalf("len(mixins) = %d, want 11", len(mixins))
	}

	seen := make(map[uint64]bool)
	for _, m := range mixins {
		if seen[m.GlobalIndex] {
			t.Errorf("duplicate global index %d in sample", m.GlobalIndex)
		}
		seen[m.GlobalIndex] = true
	}
}

func TestSampleMixinsRespectsExclusion(t *testing.T) {
	src := newMemSource(12)

	excluded := make(map[cryptoiface.PublicKey]bool)
	for _, idx := range []int{0, 1} {
		out, _ := src.OutputAt(uint64(idx))
		excluded[out.PublicKey] = true
	}

	mixins, err := SampleMixins(src, 10, excluded)
	if err != nil {
		t.Fatalf("SampleMixins() error = %v", err)
	}
	if len(mixins) != 10 {
		t.Fatalf("len(mixins) = %d, want 10", len(mixins))
	}
	for _, m := range mixins {
		if excluded[m.PublicKey] {
			t.Errorf("sample included an excluded public key at index %d", m.GlobalIndex)
		}
	}
}

func TestSampleMixinsInsufficientOutputs(t *testing.T) {
	src := newMemSource(5)

	_, err := SampleMixins(src, 11, nil)
	if err != ErrInsufficientOutputs {
		t.Fatalf("SampleMixins() error = %v, want ErrInsufficientOutputs", err)
	}
}

func TestSampleMixinsInsufficientAfterExclusion(t *testing.T) {
	src := newMemSource(11)

	excluded := make(map[cryptoiface.PublicKey]bool)
	out, _ := src.OutputAt(0)
	excluded[out.PublicKey] = true

	_, err := SampleMixins(src, 11, excluded)
	if err != ErrInsufficientOutputs {
		t.Fatalf("SampleMixins() error = %v, want ErrInsufficientOutputs", err)
	}
}

func TestMembershipProofVerifiesAgainstRoot(t *testing.T) {
	src := newMemSource(17)

	count, err := src.OutputCount()
	if err != nil {
		t.Fatalf("OutputCount() error = %v", err)
	}
	root, err := Root(src, count)
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}

	for _, idx := range []uint64{0, 1, 8, 16} {
		proof, err := BuildMembershipProof(src, idx, count)
		if err != nil {
			t.Fatalf("BuildMembershipProof(%d) error = %v", idx, err)
		}
		out, err := src.OutputAt(idx)
		if err != nil {
			t.Fatalf("OutputAt(%d) error = %v", idx, err)
		}
		if !Verify(proof, out.LeafHash(), root) {
			t.Errorf("Verify() returned false for index %d", idx)
		}
	}
}

func TestMembershipProofRejectsWrongLeaf(t *testing.T) {
	src := newMemSource(9)
	count, _ := src.OutputCount()
	root, err := Root(src, count)
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}

	proof, err := BuildMembershipProof(src, 3, count)
	if err != nil {
		t.Fatalf("BuildMembershipProof() error = %v", err)
	}

	other, _ := src.OutputAt(4)
	if Verify(proof, other.LeafHash(), root) {
		t.Error("Verify() accepted a proof for the wrong leaf")
	}
}

func TestBuildMembershipProofRejectsOutOfRange(t *testing.T) {
	src := newMemSource(4)
	if _, err := BuildMembershipProof(src, 4, 4); err == nil {
		t.Error("expected error for out-of-range global index")
	}
}

func TestRootOfEmptyMirrorDoesNotPanic(t *testing.T) {
	src := newMemSource(0)
	root, err := Root(src, 0)
	if err != nil {
		t.Fatalf("Root() error = %v", err)
	}
	if root != emptyRoot {
		t.Errorf("Root(count=0) = %x, want the empty-root sentinel", root)
	}
}
