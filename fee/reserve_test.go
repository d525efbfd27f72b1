// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fee

import (
	"errors"
	"math"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"

	"github.com/kestrel-lab/kestrel/kestrel"
)

func testVault(seed string) kestrel.NodeID {
	return kestrel.NewNodeID(kestrel.EntityInternalVault, kestrel.Blake2b([]byte(seed)), 0)
}

func TestReserveLoan(t *testing.T) {
	// price 2, no tip, limit 1000, loan 100
	r := NewReserve(uint256.NewInt(2), 0, 1000, 100, false)
	assert.False(t, r.FullyRepaid())

	// within the loan, no fee locked yet
	assert.Nil(t, r.ConsumeExecution(100, "warmup"))
	assert.Equal(t, uint64(100), r.Consumed())

	// crossing the loan threshold unpaid fails
	err := r.ConsumeExecution(1, "over")
	assert.True(t, errors.Is(err, ErrLoanNotRepaid))

	// locking the loan value unblocks consumption
	assert.Nil(t, r.LockFee(testVault("v"), uint256.NewInt(200), false))
	assert.True(t, r.FullyRepaid())
	assert.Nil(t, r.ConsumeExecution(1, "over"))
	assert.Nil(t, r.RepayAll())
}

func TestReserveContingentDoesNotRepay(t *testing.T) {
	r := NewReserve(uint256.NewInt(2), 0, 1000, 100, false)

	// a contingent lock covers nothing until success
	assert.Nil(t, r.LockFee(testVault("v"), uint256.NewInt(10_000), true))
	assert.False(t, r.FullyRepaid())
	assert.True(t, errors.Is(r.RepayAll(), ErrLoanNotRepaid))
}

func TestReserveLimit(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 50, 100, false)
	err := r.ConsumeExecution(51, "big")
	assert.True(t, errors.Is(err, ErrCostUnitLimitExceeded))
	// failed consumption does not count
	assert.Equal(t, uint64(0), r.Consumed())
}

func TestReserveLimitOverflow(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 1000, 1000, false)
	assert.Nil(t, r.ConsumeExecution(100, "warmup"))

	// a charge that wraps uint64 must not slip under the limit
	err := r.ConsumeExecution(math.MaxUint64, "hostile")
	assert.True(t, errors.Is(err, ErrCostUnitLimitExceeded))
	assert.Equal(t, uint64(100), r.Consumed())

	// consumption stays monotonic afterwards
	assert.Nil(t, r.ConsumeExecution(1, "more"))
	assert.Equal(t, uint64(101), r.Consumed())
}

func TestReserveMultiplied(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 1000, 1000, false)
	assert.Nil(t, r.ConsumeMultiplied(3, 5, "batch"))
	assert.Equal(t, uint64(15), r.Consumed())

	// an overflowing product exceeds any budget
	err := r.ConsumeMultiplied(math.MaxUint64/2, 3, "hostile")
	assert.True(t, errors.Is(err, ErrCostUnitLimitExceeded))
	assert.Equal(t, uint64(15), r.Consumed())
}

func TestReserveTip(t *testing.T) {
	r := NewReserve(uint256.NewInt(100), 25, 1000, 100, false)
	assert.Equal(t, uint256.NewInt(125), r.EffectivePrice())
}

func TestReserveZeroLockRejected(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 1000, 100, false)
	assert.True(t, errors.Is(r.LockFee(testVault("v"), new(uint256.Int), false), ErrInsufficientBalance))
}

func TestReserveAbortWhenLoanRepaid(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 1000, 100, true)

	err := r.LockFee(testVault("v"), uint256.NewInt(100), false)
	var abortion *AbortError
	assert.True(t, errors.As(err, &abortion))
	assert.NotEmpty(t, abortion.AbortReason())
}

func TestReserveFinalize(t *testing.T) {
	r := NewReserve(uint256.NewInt(2), 0, 10_000, 100, false)
	v := testVault("v")

	assert.Nil(t, r.LockFee(v, uint256.NewInt(700), false))
	assert.Nil(t, r.LockFee(v, uint256.NewInt(300), true))
	assert.Nil(t, r.ConsumeExecution(400, "run"))
	assert.Nil(t, r.AddRoyalty(testVault("r"), uint256.NewInt(50)))

	sum := r.Finalize(true)
	assert.Equal(t, uint256.NewInt(800), sum.ExecutionCost)
	assert.Equal(t, uint256.NewInt(50), sum.RoyaltyCost)
	assert.Equal(t, uint256.NewInt(850), sum.TotalCost())
	assert.True(t, sum.BadDebt.IsZero())
	assert.Equal(t, uint64(400), sum.CostUnitsConsumed)
	assert.Len(t, sum.LockedFees, 2)

	assert.Panics(t, func() { r.Finalize(true) })
}

func TestReserveFinalizeBadDebt(t *testing.T) {
	r := NewReserve(uint256.NewInt(2), 0, 10_000, 1000, false)
	v := testVault("v")

	assert.Nil(t, r.ConsumeExecution(500, "run"))
	assert.Nil(t, r.LockFee(v, uint256.NewInt(600), false))
	assert.Nil(t, r.LockFee(v, uint256.NewInt(600), true))

	// on failure the contingent lock cannot be charged
	sum := r.Finalize(false)
	assert.Equal(t, uint256.NewInt(1000), sum.ExecutionCost)
	assert.Equal(t, uint256.NewInt(400), sum.BadDebt)
}

func TestReserveRevertRoyalty(t *testing.T) {
	r := NewReserve(uint256.NewInt(1), 0, 1000, 100, false)
	assert.Nil(t, r.AddRoyalty(testVault("r"), uint256.NewInt(77)))
	assert.Len(t, r.Royalties(), 1)

	r.RevertRoyalty()
	assert.Empty(t, r.Royalties())
	assert.True(t, r.Finalize(false).RoyaltyCost.IsZero())
}

func TestNoFeeReserve(t *testing.T) {
	r := NewNoFeeReserve(1000)
	assert.True(t, r.FullyRepaid())
	assert.Nil(t, r.ConsumeExecution(900, "run"))
	assert.Nil(t, r.RepayAll())

	sum := r.Finalize(true)
	assert.True(t, sum.ExecutionCost.IsZero())
	assert.True(t, sum.BadDebt.IsZero())
}
