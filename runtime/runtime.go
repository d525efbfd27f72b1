// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package runtime executes transactions: it wires a substate tracker, a
// fee reserve and a kernel together, drives the manifest through the
// transaction processor, classifies the outcome and settles fees into a
// receipt.
package runtime

import (
	"github.com/holiman/uint256"
	"github.com/inconshreveable/log15"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/fee"
	"github.com/kestrel-lab/kestrel/kernel"
	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/metrics"
	"github.com/kestrel-lab/kestrel/substate"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/track"
	"github.com/kestrel-lab/kestrel/tx"
	"github.com/kestrel-lab/kestrel/vm"
)

var (
	logger = log15.New("pkg", "runtime")

	metricTxOutcomes = metrics.LazyLoadCounterVec("transactions_total", []string{"outcome"})
	metricCostUnits  = metrics.LazyLoadHistogram("transaction_cost_kilounits", metrics.BucketCostUnits)
)

// FeeConfig sets the economic parameters shared by all transactions.
type FeeConfig struct {
	// CostUnitPrice is the token price of one cost unit, before tip.
	CostUnitPrice *uint256.Int
	// SystemLoan is the number of cost units pre-funded before a fee
	// must be locked.
	SystemLoan uint64
}

// DefaultFeeConfig returns the standard economic parameters.
func DefaultFeeConfig() FeeConfig {
	return FeeConfig{
		CostUnitPrice: uint256.NewInt(kestrel.DefaultCostUnitPrice),
		SystemLoan:    kestrel.DefaultSystemLoan,
	}
}

// Config tunes execution behavior.
type Config struct {
	MaxCallDepth int
	// AbortWhenLoanRepaid stops execution as soon as the system loan is
	// covered; used for fee estimation.
	AbortWhenLoanRepaid bool

	FeeTable fee.Table
	Limits   track.Limits
	Kernel   kernel.Options
}

// DefaultConfig returns the standard execution configuration.
func DefaultConfig() Config {
	return Config{
		MaxCallDepth: kestrel.MaxCallDepth,
		FeeTable:     fee.DefaultTable(),
		Limits:       track.DefaultLimits(),
		Kernel:       kernel.DefaultOptions(),
	}
}

// MemoryMeter is implemented by engines that track peak guest memory.
type MemoryMeter interface {
	PeakMemoryUsage() uint64
}

// Runtime is to support transaction execution.
type Runtime struct {
	store        substate.Store
	engine       vm.Engine
	currentEpoch uint64
	feeConfig    FeeConfig
	config       Config
}

// New creates a Runtime object.
func New(
	store substate.Store,
	engine vm.Engine,
	currentEpoch uint64,
	feeConfig FeeConfig,
	config Config,
) *Runtime {
	return &Runtime{
		store:        store,
		engine:       engine,
		currentEpoch: currentEpoch,
		feeConfig:    feeConfig,
		config:       config,
	}
}

func (rt *Runtime) Store() substate.Store { return rt.store }
func (rt *Runtime) CurrentEpoch() uint64  { return rt.currentEpoch }

// ExecuteTransaction runs one transaction against the store and
// produces its receipt. The store itself is never written; committed
// changes are reported as the receipt's diff.
func (rt *Runtime) ExecuteTransaction(trans *tx.Transaction) *tx.Receipt {
	fp := trans.FeePayment()
	var reserve *fee.Reserve
	if fp.NoFee {
		reserve = fee.NewNoFeeReserve(fp.CostUnitLimit)
	} else {
		reserve = fee.NewReserve(
			rt.feeConfig.CostUnitPrice,
			fp.TipPercentage,
			fp.CostUnitLimit,
			rt.feeConfig.SystemLoan,
			rt.config.AbortWhenLoanRepaid,
		)
	}

	trk := track.New(rt.store, rt.config.Limits)
	costing := fee.NewCosting(rt.config.FeeTable, reserve, rt.config.MaxCallDepth)
	proc := newProcessor(rt.engine, trans, rt.currentEpoch)
	kern := kernel.New(trk, proc, costing, trans.Hash(), trans.PreAllocatedIDs(), trans.Blobs(), rt.config.Kernel)

	execErr := costing.OnTxBase()
	if execErr == nil {
		var input *sval.Value
		input, execErr = sval.New(nil, nil, trans.References())
		if execErr == nil {
			_, execErr = kern.Invoke(vm.Actor{
				Package:   TransactionProcessorPackage,
				Blueprint: processorBlueprint,
				Function:  processorFunction,
			}, input)
		}
	}

	receipt := rt.settle(trk, kern, reserve, proc.outputs, execErr)

	outcome := "commit_failure"
	switch {
	case receipt.Abort != nil:
		outcome = "abort"
	case receipt.Reject != nil:
		outcome = "reject"
	case receipt.Succeeded():
		outcome = "commit_success"
	}
	metricTxOutcomes().AddWithLabel(1, map[string]string{"outcome": outcome})
	metricCostUnits().Observe(int64(reserve.Consumed() / 1000))
	logger.Debug("transaction executed",
		"tx", trans.Hash(),
		"outcome", outcome,
		"costUnits", reserve.Consumed(),
	)
	return receipt
}

// ExecuteAndCommit executes the transaction and, if it committed,
// applies the diff to the store. The store must support committing.
func (rt *Runtime) ExecuteAndCommit(trans *tx.Transaction) (*tx.Receipt, error) {
	receipt := rt.ExecuteTransaction(trans)
	if receipt.Commit == nil {
		return receipt, nil
	}
	committer, ok := rt.store.(substate.Committer)
	if !ok {
		return nil, errors.New("store does not support commit")
	}
	if err := committer.Commit(receipt.Commit.Diff); err != nil {
		return nil, errors.Wrap(err, "commit transaction")
	}
	return receipt, nil
}

// settle classifies the execution result and, for committed outcomes,
// reverts failed state, settles fees and produces the final diff.
func (rt *Runtime) settle(
	trk *track.Track,
	kern *kernel.Kernel,
	reserve *fee.Reserve,
	outputs [][]byte,
	execErr error,
) *tx.Receipt {
	m := rt.collectMetrics(trk, kern)

	var abortion interface{ AbortReason() string }
	if errors.As(execErr, &abortion) {
		return &tx.Receipt{
			Abort:   &tx.AbortResult{Reason: abortion.AbortReason()},
			Metrics: m,
		}
	}

	var notYet *EpochNotYetValidError
	var noLonger *EpochNoLongerValidError
	if errors.As(execErr, &notYet) || errors.As(execErr, &noLonger) {
		return &tx.Receipt{
			Reject:  &tx.RejectResult{Reason: execErr.Error()},
			Metrics: m,
		}
	}

	if err := reserve.RepayAll(); err != nil {
		reason := err.Error()
		if execErr != nil {
			reason += ": " + execErr.Error()
		}
		return &tx.Receipt{
			Reject:  &tx.RejectResult{Reason: reason},
			Metrics: m,
		}
	}

	success := execErr == nil
	if !success {
		reserve.RevertRoyalty()
		trk.RevertNonForced()
	}

	summary := reserve.Finalize(success)
	payments, err := settleFees(trk, summary, success)
	if err != nil {
		// locked fee vaults were live during execution; failing to pay
		// into them means the substate store itself is broken
		panic(errors.Wrap(err, "fee settlement"))
	}

	commit := &tx.CommitResult{
		Success:     success,
		Diff:        trk.Finalize(),
		FeeSummary:  summary,
		FeePayments: payments,
		Logs:        kern.Logs(),
	}
	if success {
		commit.Outputs = outputs
		commit.Events = kern.Events()
	} else {
		commit.FailureReason = execErr.Error()
	}
	return &tx.Receipt{Commit: commit, Metrics: m}
}

func (rt *Runtime) collectMetrics(trk *track.Track, kern *kernel.Kernel) tx.Metrics {
	tm := trk.Metrics()
	m := tx.Metrics{
		SubstateReadCount:  tm.ReadCount,
		SubstateReadBytes:  tm.ReadBytes,
		SubstateWriteCount: tm.WriteCount,
		SubstateWriteBytes: tm.WriteBytes,
		MaxInvokePayload:   kern.MaxInvokePayload(),
	}
	if mm, ok := rt.engine.(MemoryMeter); ok {
		m.PeakGuestMemory = mm.PeakMemoryUsage()
	}
	return m
}
