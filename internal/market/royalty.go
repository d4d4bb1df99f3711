package market

import (
	"fmt"

	"github.com/holiman/uint256"

	"LineageMarket/internal/ids"
)

const (
	// MaxRoyaltyGenerations is the number of nearest ancestors paid on a sale.
	MaxRoyaltyGenerations = 10

	royaltyShare = 100
	royaltyScale = 1_000_000
)

// ancestors walks the parent chain of id and returns the nearest
// MaxRoyaltyGenerations ancestors, direct parent first.
func (tx *txn) ancestors(id AssetID) ([]*Asset, error) {
	a, err := tx.mustAsset(id)
	if err != nil {
		return nil, err
	}

	var chain []*Asset

	// The decay split only defines shares for MaxRoyaltyGenerations payees.
	for a.Parent != RootAsset && len(chain) < MaxRoyaltyGenerations {
		if a.Parent >= a.ID {
			return nil, fmt.Errorf("asset %d has parent %d: %w", a.ID, a.Parent, ErrCorruptLineage)
		}

		parent, err := tx.asset(a.Parent)
		if err != nil {
			return nil, err
		}

		if parent == nil {
			return nil, fmt.Errorf("asset %d names missing parent %d: %w", a.ID, a.Parent, ErrCorruptLineage)
		}

		chain = append(chain, parent)
		a = parent
	}

	return chain, nil
}

// SplitRoyalties divides amount between the creators of the paid ancestors
// (nearest first) and seller. Walking from the most distant ancestor, the
// i-th payee receives remaining*(share*(i+1))*((11-L)*share/2)/1e6 of what is
// left; the seller receives the rest. Payouts are returned most distant first,
// seller last, and always sum to amount.
func SplitRoyalties(amount uint64, seller ids.Address, ancestors []ids.Address) []Payout {
	n := min(len(ancestors), MaxRoyaltyGenerations)
	payouts := make([]Payout, 0, n+1)

	remaining := uint256.NewInt(amount)
	scale := uint256.NewInt(royaltyScale)
	generationFactor := uint64((MaxRoyaltyGenerations + 1 - n) * royaltyShare / 2)

	for i := 0; i < n; i++ {
		factor := uint256.NewInt(royaltyShare * uint64(i+1) * generationFactor)

		payment := new(uint256.Int).Mul(remaining, factor)
		payment.Div(payment, scale)
		remaining.Sub(remaining, payment)

		payouts = append(payouts, Payout{
			To:     ancestors[n-1-i],
			Amount: payment.Uint64(),
		})
	}

	return append(payouts, Payout{To: seller, Amount: remaining.Uint64()})
}
