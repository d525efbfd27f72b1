// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx

import (
	"github.com/holiman/uint256"

	"github.com/kestrel-lab/kestrel/fee"
	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/substate"
)

// Event is an application event emitted during execution.
type Event struct {
	Emitter kestrel.NodeID
	Name    string
	Data    []byte
}

// Events slice of events.
type Events []*Event

// LogEntry is an application log line. Unlike events, logs survive a
// commit-with-failure.
type LogEntry struct {
	Level   string
	Message string
}

// Logs slice of log entries.
type Logs []*LogEntry

// Metrics reports execution resource usage.
type Metrics struct {
	SubstateReadCount  int
	SubstateReadBytes  int
	SubstateWriteCount int
	SubstateWriteBytes int
	PeakGuestMemory    uint64
	MaxInvokePayload   int
}

// CommitResult is the committed side of a receipt. Success keeps all
// state changes; failure keeps only force-written substates, yet fees
// consumed up to the failure are still charged.
type CommitResult struct {
	Success       bool
	FailureReason string

	// Outputs holds each top-level instruction's encoded output value.
	Outputs [][]byte

	Diff        *substate.Diff
	FeeSummary  *fee.Summary
	FeePayments map[kestrel.NodeID]*uint256.Int

	Events Events
	Logs   Logs
}

// RejectResult marks a transaction that never became economically
// valid. No state was touched, no fee is charged; it may be
// resubmitted.
type RejectResult struct {
	Reason string
}

// AbortResult marks a non-deterministic or unrecoverable stop.
type AbortResult struct {
	Reason string
}

// Receipt is the sole externally observable artifact of running a
// transaction. Exactly one of Commit, Reject, Abort is set.
type Receipt struct {
	Commit *CommitResult
	Reject *RejectResult
	Abort  *AbortResult

	Metrics Metrics
}

// Committed reports whether the transaction committed.
func (r *Receipt) Committed() bool { return r.Commit != nil }

// Succeeded reports whether the transaction committed successfully.
func (r *Receipt) Succeeded() bool { return r.Commit != nil && r.Commit.Success }
