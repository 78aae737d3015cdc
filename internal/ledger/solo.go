package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Solo is an in-memory chain satisfying the Client contract. It backs local
// development (LEDGER_URL=solo) and the engine's tests: submissions confirm
// after a configurable number of status polls, and individual behaviors can
// be scripted per destination or per call.
type Solo struct {
	mu sync.Mutex

	// ConfirmAfterPolls is how many Status calls a transaction stays pending
	// before confirming. Zero confirms on the first poll.
	ConfirmAfterPolls int

	// SubmitFailures makes the next n Submit calls fail with ErrUnavailable.
	SubmitFailures int

	// RevertDestinations marks destinations whose transactions always revert.
	RevertDestinations map[string]bool

	height uint64
	polls  map[string]int
	txs    map[string]*SignedTx
	revert map[string]bool
}

var _ Client = (*Solo)(nil)

// NewSolo creates an empty solo chain.
func NewSolo() *Solo {
	return &Solo{
		polls:  make(map[string]int),
		txs:    make(map[string]*SignedTx),
		revert: make(map[string]bool),
	}
}

// BestBlock advances and returns the solo chain head.
func (s *Solo) BestBlock(ctx context.Context) (BlockRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height++
	return BlockRef{ID: fmt.Sprintf("0x%016x", s.height), Number: s.height}, nil
}

// Submit accepts a signed transaction into the solo mempool.
func (s *Solo) Submit(ctx context.Context, tx *SignedTx) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.SubmitFailures > 0 {
		s.SubmitFailures--
		return "", fmt.Errorf("%w: solo submit failure injected", ErrUnavailable)
	}

	s.txs[tx.ID] = tx
	s.polls[tx.ID] = 0
	if dest := firstClauseTo(tx); dest != "" && s.RevertDestinations[dest] {
		s.revert[tx.ID] = true
	}
	return tx.ID, nil
}

// Status reports pending until the configured poll count elapses, then
// confirmed (or reverted for scripted destinations).
func (s *Solo) Status(ctx context.Context, txID string) (TxStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.txs[txID]; !ok {
		return TxPending, nil
	}
	s.polls[txID]++
	if s.polls[txID] <= s.ConfirmAfterPolls {
		return TxPending, nil
	}
	if s.revert[txID] {
		return TxReverted, nil
	}
	return TxConfirmed, nil
}

// Submitted reports how many transactions reached the solo mempool for the
// given destination. Test helper.
func (s *Solo) Submitted(destination string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, tx := range s.txs {
		if firstClauseTo(tx) == destination {
			n++
		}
	}
	return n
}

func firstClauseTo(tx *SignedTx) string {
	// Raw is the canonical JSON body; decode just enough to find the clause.
	var body txBody
	if err := json.Unmarshal(tx.Raw, &body); err != nil || len(body.Clauses) == 0 {
		return ""
	}
	return body.Clauses[0].To
}
