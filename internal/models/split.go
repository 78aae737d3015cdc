package models

import "math/big"

// RoleUser is the role of the leg that pays the receipt's submitter.
// All other roles name platform funds ("app", "creator", ...).
const RoleUser = "user"

// Leg is one transfer within a split: a destination and an exact amount in
// minor units.
type Leg struct {
	// Role identifies the share this leg pays out (RoleUser or a fund role).
	Role string

	// Destination is the ledger address receiving this leg.
	Destination string

	// Amount is the leg's exact amount in minor units.
	Amount *big.Int
}

// SplitPlan is the ordered set of legs a reward decomposes into.
// The user leg always comes first; the sum of leg amounts equals the
// reward's total exactly.
type SplitPlan struct {
	ReceiptID string
	Legs      []Leg
}

// Total returns the exact sum of all leg amounts.
func (p *SplitPlan) Total() *big.Int {
	sum := new(big.Int)
	for _, leg := range p.Legs {
		sum.Add(sum, leg.Amount)
	}
	return sum
}

// UserLeg returns the user leg, or nil if the plan has none.
func (p *SplitPlan) UserLeg() *Leg {
	for i := range p.Legs {
		if p.Legs[i].Role == RoleUser {
			return &p.Legs[i]
		}
	}
	return nil
}
