// Package ledger isolates the settlement engine from the chain's wire format.
// It provides the transaction submission and query primitives plus the
// distributor's wallet signer. Nothing in this package knows about rewards.
package ledger

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable signals a transient network or node failure. Submissions
	// and status queries may be retried with a fresh block reference.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrReverted signals a transaction the ledger executed and rejected
	// on-chain. Retrying with the same parameters reverts identically, so it
	// is never retried automatically.
	ErrReverted = errors.New("transaction reverted")

	// ErrBadKey signals missing or invalid distributor key material. Fatal.
	ErrBadKey = errors.New("invalid key material")
)

// BlockRef identifies the chain head a transaction is anchored to.
type BlockRef struct {
	ID     string
	Number uint64
}

// TxStatus is the ledger-reported state of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxReverted  TxStatus = "reverted"
)

// Client is the narrow seam every ledger backend implements identically:
// a real node over HTTP, or the in-memory solo chain used for development
// and tests.
type Client interface {
	// BestBlock returns the current chain head for use as a block reference.
	BestBlock(ctx context.Context) (BlockRef, error)

	// Submit sends a signed transaction and returns its ledger transaction ID.
	// Returns ErrUnavailable on transient failure; safe to retry with a fresh
	// transaction (new nonce and block reference).
	Submit(ctx context.Context, tx *SignedTx) (string, error)

	// Status reports the current state of a submitted transaction.
	// Returns ErrUnavailable on transient failure.
	Status(ctx context.Context, txID string) (TxStatus, error)
}
