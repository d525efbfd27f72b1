// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kestrel

// Protocol wide limits and policy defaults. The cost related values are
// policy, tuned off-chain, and may be overridden through configuration.
const (
	// MaxCallDepth is the default limit of nested invocations.
	MaxCallDepth = 16

	// DefaultCostUnitLimit is the default per-transaction cost unit budget.
	DefaultCostUnitLimit = 100_000_000

	// DefaultSystemLoan is the number of cost units pre-funded before any
	// fee vault has been locked.
	DefaultSystemLoan = 1_000_000

	// DefaultCostUnitPrice is the token price of one cost unit, expressed
	// in the smallest token denomination (attos, 1e-18).
	DefaultCostUnitPrice = 100_000_000_000

	// MaxSubstateSize is the max encoded size of a single substate value.
	MaxSubstateSize = 1024 * 1024

	// MaxInvokeInputSize is the max encoded size of invocation input.
	MaxInvokeInputSize = 1024 * 1024

	// MaxSubstateReadsPerTransaction caps tracked substate reads.
	MaxSubstateReadsPerTransaction = 50_000

	// MaxSubstateWritesPerTransaction caps tracked substate writes.
	MaxSubstateWritesPerTransaction = 10_000
)
