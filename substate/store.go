// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package substate defines the logical substate store the execution
// kernel runs against: point reads keyed by (node, partition, key) and
// atomic batch commit of a diff.
package substate

import (
	"github.com/kestrel-lab/kestrel/kestrel"
)

// Location addresses a single substate.
type Location struct {
	Node      kestrel.NodeID
	Partition kestrel.PartitionNumber
	Key       kestrel.SubstateKey
}

// String implements the stringer interface.
func (l Location) String() string {
	return l.Node.AbbrevString() + "/" + l.Key.String()
}

// Store provides point reads of persisted substates.
type Store interface {
	// Get reads the raw encoded value of a substate.
	// The second return value reports whether the substate exists.
	Get(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey) ([]byte, bool, error)
}

// Committer atomically applies a diff to the store.
type Committer interface {
	Commit(diff *Diff) error
}

// CommitStore is a store that also accepts commits.
type CommitStore interface {
	Store
	Committer
}
