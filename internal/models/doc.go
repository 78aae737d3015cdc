// Package models defines the core domain models for the reward settlement core.
//
// # Models
//
//   - RewardRequest: an approved receipt reward to be settled on the ledger
//   - SplitPlan / Leg: the computed division of a reward between the user
//     and the platform funds
//   - SettlementAttempt: one durable audit row per (receipt, leg)
//   - SettlementResult: the aggregate outcome returned to callers
//
// # Design Principles
//
//  1. **Integer money**: all token amounts are *big.Int minor units (wei).
//     Display decimals exist only at the system boundary.
//  2. **Append-only audit**: SettlementAttempt rows are created and updated,
//     never deleted. They are the source of truth for "was this receipt paid".
//  3. **Avoid circular references**: models reference each other by ID strings,
//     not pointers.
package models
