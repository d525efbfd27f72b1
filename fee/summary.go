// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fee

import (
	"github.com/holiman/uint256"
)

// Summary is the closed book of a finalized fee reserve.
type Summary struct {
	// ExecutionCost is the token value of all consumed cost units.
	ExecutionCost *uint256.Int
	// RoyaltyCost is the token value of all accrued royalties.
	RoyaltyCost *uint256.Int
	// BadDebt is the worst-case unrecoverable shortfall.
	BadDebt *uint256.Int

	CostUnitsConsumed uint64
	CostUnitLimit     uint64
	EffectivePrice    *uint256.Int

	// Breakdown maps charge reasons to consumed cost units.
	Breakdown map[string]uint64

	// LockedFees lists escrowed vault payments in lock order.
	LockedFees []LockedFee
	// Royalties lists accrued royalty payments in accrual order.
	Royalties []Royalty
}

// TotalCost returns execution plus royalty cost.
func (s *Summary) TotalCost() *uint256.Int {
	return new(uint256.Int).Add(s.ExecutionCost, s.RoyaltyCost)
}
