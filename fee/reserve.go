// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fee

import (
	"math"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

var (
	// ErrCostUnitLimitExceeded is returned when cumulative consumption
	// would exceed the transaction's cost unit budget.
	ErrCostUnitLimitExceeded = errors.New("cost unit limit exceeded")

	// ErrLoanNotRepaid is returned when consumption crosses the system
	// loan threshold while no sufficient non-contingent fee has been
	// locked, or at finalize when the loan was never repaid.
	ErrLoanNotRepaid = errors.New("system loan not repaid")

	// ErrInsufficientBalance is returned by LockFee when the supplied
	// escrow amount is zero.
	ErrInsufficientBalance = errors.New("insufficient balance to lock fee")
)

// AbortError signals a non-deterministic or unrecoverable condition.
// Execution unwinds immediately and the transaction is aborted rather
// than committed or rejected.
type AbortError struct {
	Reason string
}

func (e *AbortError) Error() string {
	return "execution aborted: " + e.Reason
}

// AbortReason returns the reason carried by the abortion.
func (e *AbortError) AbortReason() string { return e.Reason }

// LockedFee records one escrowed vault payment.
type LockedFee struct {
	Vault      kestrel.NodeID
	Amount     *uint256.Int
	Contingent bool
}

// Royalty records one accrued royalty payment.
type Royalty struct {
	Recipient kestrel.NodeID // recipient royalty vault
	Amount    *uint256.Int
}

// Reserve is the transaction-scoped metering ledger. Execution starts
// against a pre-funded system loan of cost units; once consumption
// crosses the loan threshold, enough non-contingent fee must have been
// locked to cover it, otherwise metering fails.
type Reserve struct {
	effectivePrice *uint256.Int // token price per cost unit, tip included
	costUnitLimit  uint64
	loan           uint64
	noFee          bool

	abortWhenLoanRepaid bool

	consumed  uint64
	breakdown map[string]uint64

	lockedFees    []LockedFee
	nonContingent *uint256.Int // sum of non-contingent locked amounts

	royalties    []Royalty
	royaltyTotal *uint256.Int

	finalized bool
}

// NewReserve creates a fee reserve for a user-paid transaction.
// tipPercentage raises the effective cost unit price proportionally.
func NewReserve(costUnitPrice *uint256.Int, tipPercentage uint16, costUnitLimit, systemLoan uint64, abortWhenLoanRepaid bool) *Reserve {
	price := new(uint256.Int).Mul(costUnitPrice, uint256.NewInt(uint64(tipPercentage)+100))
	price.Div(price, uint256.NewInt(100))
	return &Reserve{
		effectivePrice:      price,
		costUnitLimit:       costUnitLimit,
		loan:                systemLoan,
		abortWhenLoanRepaid: abortWhenLoanRepaid,
		breakdown:           make(map[string]uint64),
		nonContingent:       new(uint256.Int),
		royaltyTotal:        new(uint256.Int),
	}
}

// NewNoFeeReserve creates a reserve for system transactions: work is
// still metered for limits and reporting, but nothing is owed.
func NewNoFeeReserve(costUnitLimit uint64) *Reserve {
	return &Reserve{
		effectivePrice: new(uint256.Int),
		costUnitLimit:  costUnitLimit,
		noFee:          true,
		breakdown:      make(map[string]uint64),
		nonContingent:  new(uint256.Int),
		royaltyTotal:   new(uint256.Int),
	}
}

// Consumed returns cumulative cost unit consumption.
func (r *Reserve) Consumed() uint64 { return r.consumed }

// CostUnitLimit returns the transaction's cost unit budget.
func (r *Reserve) CostUnitLimit() uint64 { return r.costUnitLimit }

// EffectivePrice returns the tip-inclusive token price per cost unit.
func (r *Reserve) EffectivePrice() *uint256.Int {
	return new(uint256.Int).Set(r.effectivePrice)
}

// loanValue is the token value of the system loan.
func (r *Reserve) loanValue() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(r.loan), r.effectivePrice)
}

// FullyRepaid reports whether locked non-contingent fees cover the
// system loan.
func (r *Reserve) FullyRepaid() bool {
	if r.noFee {
		return true
	}
	return r.nonContingent.Cmp(r.loanValue()) >= 0
}

// ConsumeExecution charges cost units for the named reason. It fails
// once the budget is exhausted, or when consumption crosses the system
// loan threshold before the loan has been repaid.
func (r *Reserve) ConsumeExecution(units uint64, reason string) error {
	r.assertNotFinalized()
	if units == 0 {
		return nil
	}
	// subtraction form, r.consumed+units could wrap
	if units > r.costUnitLimit-r.consumed {
		return errors.WithMessage(ErrCostUnitLimitExceeded, reason)
	}
	r.consumed += units
	r.breakdown[reason] += units

	if !r.noFee && r.consumed > r.loan && !r.FullyRepaid() {
		return errors.WithMessage(ErrLoanNotRepaid, reason)
	}
	return nil
}

// ConsumeMultiplied charges unitsPerItem * items cost units. A product
// that would not fit in uint64 is over any budget, so it fails the
// same way an exhausted budget does.
func (r *Reserve) ConsumeMultiplied(unitsPerItem uint64, items int, reason string) error {
	if unitsPerItem != 0 && uint64(items) > math.MaxUint64/unitsPerItem {
		return errors.WithMessage(ErrCostUnitLimitExceeded, reason)
	}
	return r.ConsumeExecution(unitsPerItem*uint64(items), reason)
}

// LockFee escrows an amount taken from a vault. Contingent locks are
// only charged if the transaction ultimately succeeds.
func (r *Reserve) LockFee(vault kestrel.NodeID, amount *uint256.Int, contingent bool) error {
	r.assertNotFinalized()
	if amount.IsZero() {
		return ErrInsufficientBalance
	}
	r.lockedFees = append(r.lockedFees, LockedFee{
		Vault:      vault,
		Amount:     new(uint256.Int).Set(amount),
		Contingent: contingent,
	})
	if !contingent {
		r.nonContingent.Add(r.nonContingent, amount)
	}

	if r.abortWhenLoanRepaid && r.FullyRepaid() {
		return &AbortError{Reason: "loan repayment triggered configured abort"}
	}
	return nil
}

// AddRoyalty accrues a royalty payment to the recipient vault.
func (r *Reserve) AddRoyalty(recipient kestrel.NodeID, amount *uint256.Int) error {
	r.assertNotFinalized()
	if r.noFee {
		return nil
	}
	r.royalties = append(r.royalties, Royalty{
		Recipient: recipient,
		Amount:    new(uint256.Int).Set(amount),
	})
	r.royaltyTotal.Add(r.royaltyTotal, amount)
	return nil
}

// RevertRoyalty discards all accrued royalties. Called when the
// transaction commits as a failure.
func (r *Reserve) RevertRoyalty() {
	r.assertNotFinalized()
	r.royalties = nil
	r.royaltyTotal.Clear()
}

// Royalties returns accrued royalties in accrual order.
func (r *Reserve) Royalties() []Royalty {
	return r.royalties
}

// RepayAll performs the final loan repayment check.
func (r *Reserve) RepayAll() error {
	if !r.FullyRepaid() {
		return ErrLoanNotRepaid
	}
	return nil
}

// Finalize closes the reserve and totals the books. Contingent locks
// count toward coverage only when the transaction succeeded. The
// reserve is single use; finalizing twice panics.
func (r *Reserve) Finalize(success bool) *Summary {
	r.assertNotFinalized()
	r.finalized = true

	execution := new(uint256.Int).Mul(uint256.NewInt(r.consumed), r.effectivePrice)
	owed := new(uint256.Int).Add(execution, r.royaltyTotal)

	available := new(uint256.Int).Set(r.nonContingent)
	if success {
		for _, lf := range r.lockedFees {
			if lf.Contingent {
				available.Add(available, lf.Amount)
			}
		}
	}

	badDebt := new(uint256.Int)
	if owed.Cmp(available) > 0 && !r.noFee {
		badDebt.Sub(owed, available)
	}

	return &Summary{
		ExecutionCost:     execution,
		RoyaltyCost:       new(uint256.Int).Set(r.royaltyTotal),
		BadDebt:           badDebt,
		CostUnitsConsumed: r.consumed,
		CostUnitLimit:     r.costUnitLimit,
		EffectivePrice:    new(uint256.Int).Set(r.effectivePrice),
		Breakdown:         r.breakdown,
		LockedFees:        r.lockedFees,
		Royalties:         r.royalties,
	}
}

func (r *Reserve) assertNotFinalized() {
	if r.finalized {
		panic("fee reserve already finalized")
	}
}
