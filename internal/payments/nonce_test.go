package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

type fakeNonceSource struct {
	nonce uint64
	err   error
	calls int
}

func (f *fakeNonceSource) PendingNonce(ctx context.Context, wallet common.Address) (uint64, error) {
	f.calls++
	return f.nonce, f.err
}

func TestNonceSequencer(t *testing.T) {
	src := &fakeNonceSource{nonce: 41}
	seq, err := StartSequence(context.Background(), src, common.Address{})
	if err != nil {
		t.Fatalf("StartSequence failed: %v", err)
	}

	for i := uint64(0); i < 3; i++ {
		if got := seq.Next(); got != 41+i {
			t.Errorf("Expected nonce %d, got %d", 41+i, got)
		}
	}
	if src.calls != 1 {
		t.Errorf("Expected a single nonce fetch, got %d", src.calls)
	}
}

func TestStartSequence_Error(t *testing.T) {
	src := &fakeNonceSource{err: errors.New("rpc down")}
	if _, err := StartSequence(context.Background(), src, common.Address{}); err == nil {
		t.Error("Expected error")
	}
}
