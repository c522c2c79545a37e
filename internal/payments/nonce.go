package payments

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reads the pending nonce of a wallet.
type NonceSource interface {
	PendingNonce(ctx context.Context, wallet common.Address) (uint64, error)
}

// NonceSequencer hands out strictly increasing nonces from a
// starting value fetched exactly once. Transactions inside one
// settlement share the sequence instead of each paying a network
// round-trip for nonce assignment.
//
// Not safe for concurrent use: the orchestrator wallet must not run
// concurrent settlements.
type NonceSequencer struct {
	next uint64
}

// StartSequence fetches the wallet's pending nonce once and seeds
// the sequence with it.
func StartSequence(ctx context.Context, src NonceSource, wallet common.Address) (*NonceSequencer, error) {
	start, err := src.PendingNonce(ctx, wallet)
	if err != nil {
		return nil, err
	}
	return &NonceSequencer{next: start}, nil
}

// Next reserves and returns the next nonce. This is the sequencer's
// sole mutation.
func (s *NonceSequencer) Next() uint64 {
	n := s.next
	s.next++
	return n
}
