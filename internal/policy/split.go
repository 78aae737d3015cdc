// Package policy computes reward split plans. It is pure: no I/O, no
// randomness, deterministic given its inputs.
package policy

import (
	"fmt"
	"math/big"

	"github.com/recircle/rewards/internal/models"
)

// Share is one (role, percentage) entry in a split configuration.
type Share struct {
	// Role names the share ("user", "app", "creator", ...).
	Role string

	// Percent is the integer percentage of the total assigned to this role.
	Percent int
}

// Config is an ordered list of shares. Percentages must sum to exactly 100
// and exactly one share must carry the user role.
type Config []Share

// Validate checks the configuration invariants. Called once at startup;
// a malformed split config is fatal, never a per-request error.
func (c Config) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("split config must have at least one share")
	}

	sum := 0
	users := 0
	seen := make(map[string]bool, len(c))
	for _, share := range c {
		if share.Role == "" {
			return fmt.Errorf("split share role cannot be empty")
		}
		if seen[share.Role] {
			return fmt.Errorf("duplicate split role %q", share.Role)
		}
		seen[share.Role] = true
		// A zero share is a config mistake, not a degenerate split: a zero
		// user share would drop the user leg from every plan.
		if share.Percent < 1 || share.Percent > 100 {
			return fmt.Errorf("split share %q percent %d out of range [1, 100]", share.Role, share.Percent)
		}
		if share.Role == models.RoleUser {
			users++
		}
		sum += share.Percent
	}
	if users != 1 {
		return fmt.Errorf("split config must have exactly one %q share", models.RoleUser)
	}
	if sum != 100 {
		return fmt.Errorf("split percentages must sum to 100, got %d", sum)
	}
	return nil
}

// ComputeSplit divides total (minor units) across the configured shares.
//
// Each non-user leg is floored: floor(total * percent / 100). The user leg
// receives total minus the sum of the other legs, so the plan sums exactly
// to total and any truncation remainder goes to the user. Legs keep the
// configured order except that the user leg is always moved first, since
// the engine submits legs in plan order and the user must never wait behind
// a fund transfer.
func ComputeSplit(total *big.Int, cfg Config) (*models.SplitPlan, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, fmt.Errorf("total amount must be positive")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid split config: %w", err)
	}

	hundred := big.NewInt(100)
	userAmount := new(big.Int).Set(total)
	fundLegs := make([]models.Leg, 0, len(cfg)-1)

	for _, share := range cfg {
		if share.Role == models.RoleUser {
			continue
		}
		amount := new(big.Int).Mul(total, big.NewInt(int64(share.Percent)))
		amount.Quo(amount, hundred)
		userAmount.Sub(userAmount, amount)
		fundLegs = append(fundLegs, models.Leg{Role: share.Role, Amount: amount})
	}

	legs := make([]models.Leg, 0, len(cfg))
	legs = append(legs, models.Leg{Role: models.RoleUser, Amount: userAmount})
	legs = append(legs, fundLegs...)

	return &models.SplitPlan{Legs: legs}, nil
}
