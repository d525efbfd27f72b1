// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kernel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

var (
	// ErrNodeNotVisible is returned when addressing a node outside the
	// current frame's visibility set.
	ErrNodeNotVisible = errors.New("node not visible")

	// ErrNodeNotOwned is returned when taking an owned reference the
	// current frame does not own; this covers both moving a node twice
	// and using a node that was already moved elsewhere.
	ErrNodeNotOwned = errors.New("node not owned by current frame")

	// ErrCantDropNodeInStore is returned when dropping a node that has
	// already been persisted.
	ErrCantDropNodeInStore = errors.New("cannot drop a persisted node")

	// ErrNodeLocked is returned when dropping or persisting a node that
	// is the target of an open substate lock.
	ErrNodeLocked = errors.New("node is target of an open lock")

	// ErrNonGlobalRef is returned when a non-global node id is passed
	// as a plain reference instead of being moved.
	ErrNonGlobalRef = errors.New("non-global reference not allowed")

	// ErrOrphanedOwned is returned when a write would remove an owned
	// reference from a persisted substate without moving it anywhere.
	ErrOrphanedOwned = errors.New("owned reference dropped from persisted substate")

	// ErrLocksNotReleased is returned when a frame completes while
	// still holding substate locks.
	ErrLocksNotReleased = errors.New("locks not released at frame end")

	// ErrNodeIDNotAllocated is returned when creating a node under an
	// id that was never allocated, or was already used.
	ErrNodeIDNotAllocated = errors.New("node id not allocated")

	// ErrNotGlobal is returned when globalizing a node whose entity
	// type is internal.
	ErrNotGlobal = errors.New("entity type is not global")

	// ErrSubstateSize is returned when a substate value exceeds the
	// configured size limit.
	ErrSubstateSize = errors.New("substate size limit exceeded")

	// ErrInvokeInputSize is returned when invocation input exceeds the
	// configured size limit.
	ErrInvokeInputSize = errors.New("invoke input size limit exceeded")

	// ErrBlobNotFound is returned when reading a blob the transaction
	// does not carry.
	ErrBlobNotFound = errors.New("blob not found")
)

// LeakError is the drop-failure raised when a frame completes while
// nodes it owns were neither moved out, persisted nor destroyed.
type LeakError struct {
	Nodes []kestrel.NodeID
}

func (e *LeakError) Error() string {
	return fmt.Sprintf("dangling nodes at frame end: %v", e.Nodes)
}
