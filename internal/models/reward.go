package models

import "math/big"

// RewardContext carries receipt metadata attached to the on-chain proof
// annotations. It never affects control flow.
type RewardContext struct {
	// StoreName is the merchant name extracted from the receipt.
	StoreName string `json:"store_name,omitempty"`

	// Category is the sustainability category (e.g. "public_transport").
	Category string `json:"category,omitempty"`

	// Confidence is the validation confidence score in [0, 1].
	Confidence float64 `json:"confidence,omitempty"`
}

// RewardRequest is the input to the settlement engine: an approved receipt
// reward ready to be distributed on the ledger.
//
// A request is immutable once created and is consumed exactly once per
// receipt; the audit log enforces the exactly-once property.
type RewardRequest struct {
	// ReceiptID is the opaque stable identifier of the approved receipt.
	// It doubles as the idempotency key for the whole settlement.
	ReceiptID string

	// Recipient is the ledger address receiving the user share.
	Recipient string

	// TotalAmount is the full reward in minor units (wei). Always positive.
	TotalAmount *big.Int

	// Context is free-form receipt metadata recorded as proof annotations.
	Context RewardContext
}
