package peer

import (
	"context"
	"errors"
	"testing"
)

func TestFakeTipOfNetworkEmpty(t *testing.T) {
	f := NewFake("peer-a")
	tip, err := f.TipOfNetwork(context.Background())
	if err != nil {
		t.Fatalf("TipOfNetwork: %v", err)
	}
	if tip != 0 {
		t.Fatalf("tip = %d, want 0", tip)
	}
}

func TestFakeAppendAndFetchBlocks(t *testing.T) {
	f := NewFake("peer-a")
	for i := uint64(0); i < 5; i++ {
		f.AppendBlock(Block{Index: i, ID: [32]byte{byte(i)}})
	}

	tip, err := f.TipOfNetwork(context.Background())
	if err != nil {
		t.Fatalf("TipOfNetwork: %v", err)
	}
	if tip != 4 {
		t.Fatalf("tip = %d, want 4", tip)
	}

	blocks, err := f.FetchBlocks(context.Background(), 1, 3)
	if err != nil {
		t.Fatalf("FetchBlocks: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}
	for i, b := range blocks {
		if b.Index != uint64(1+i) {
			t.Fatalf("blocks[%d].Index = %d, want %d", i, b.Index, 1+i)
		}
	}
}

func TestFakeAppendRejectsNonContiguous(t *testing.T) {
	f := NewFake("peer-a")
	f.AppendBlock(Block{Index: 0})

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on non-contiguous append")
		}
	}()
	f.AppendBlock(Block{Index: 2})
}

func TestFakeUnreachablePropagatesToAllMethods(t *testing.T) {
	f := NewFake("peer-a")
	f.AppendBlock(Block{Index: 0})
	f.SetUnreachable(true)

	if _, err := f.TipOfNetwork(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("TipOfNetwork error = %v, want ErrUnreachable", err)
	}
	if _, err := f.FetchBlocks(context.Background(), 0, 0); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("FetchBlocks error = %v, want ErrUnreachable", err)
	}
	if _, err := f.Submit(context.Background(), []byte("tx")); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Submit error = %v, want ErrUnreachable", err)
	}
}

func TestFakeSubmitDefaultAccepts(t *testing.T) {
	f := NewFake("peer-a")
	f.AppendBlock(Block{Index: 7})

	res, err := f.Submit(context.Background(), []byte("tx-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !res.Accepted {
		t.Fatal("expected acceptance")
	}
	if res.NetworkTip != 7 {
		t.Fatalf("NetworkTip = %d, want 7", res.NetworkTip)
	}
	if len(f.Submitted()) != 1 {
		t.Fatalf("Submitted() len = %d, want 1", len(f.Submitted()))
	}
}

func TestFakeSubmitInjectedRejection(t *testing.T) {
	f := NewFake("peer-a")
	f.SetSubmitFunc(func(rawTx []byte) SubmitResult {
		return SubmitResult{Accepted: false, RejectionCode: "ContainsSpentKeyImage"}
	})

	res, err := f.Submit(context.Background(), []byte("tx-1"))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Accepted {
		t.Fatal("expected rejection")
	}
	if res.RejectionCode != "ContainsSpentKeyImage" {
		t.Fatalf("RejectionCode = %q", res.RejectionCode)
	}
}

func TestFakeFetchBlocksInvalidRange(t *testing.T) {
	f := NewFake("peer-a")
	if _, err := f.FetchBlocks(context.Background(), 5, 1); err == nil {
		t.Fatal("expected error for from > to")
	}
}
