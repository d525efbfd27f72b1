// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package vm defines the guest invocation boundary: the Engine contract
// consumed by the kernel to run blueprint code, and the HostAPI surface
// the kernel exposes back to that code. The guest bytecode format and
// its host-call wire encoding are out of scope; an in-process
// dispatcher implements Engine for built-ins and tests.
package vm

import (
	"github.com/holiman/uint256"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/track"
)

// LockHandle identifies a substate lock held through the HostAPI.
type LockHandle uint32

// NodeSubstates is the full content of a node, partition by partition.
type NodeSubstates map[kestrel.PartitionNumber]map[kestrel.SubstateKey]*sval.Value

// Actor identifies the callee of an invocation.
type Actor struct {
	// Package is the global node publishing the blueprint.
	Package kestrel.NodeID
	// Blueprint names the blueprint within the package.
	Blueprint string
	// Function names the function or method.
	Function string
	// Receiver is the node a method is called on; nil for functions.
	Receiver *kestrel.NodeID
}

// IsMethod reports whether the actor is a method call.
func (a *Actor) IsMethod() bool { return a.Receiver != nil }

// String implements the stringer interface.
func (a *Actor) String() string {
	s := a.Blueprint + "." + a.Function
	if a.Receiver != nil {
		s += "@" + a.Receiver.AbbrevString()
	}
	return s
}

// Context carries the per-invocation environment into the engine.
type Context struct {
	Actor Actor
	Input *sval.Value
	Depth int
}

// Engine executes guest code for a resolved actor.
type Engine interface {
	Invoke(ctx *Context, api HostAPI) (*sval.Value, error)
}

// HostAPI is the system API the kernel provides to guest code across
// the host-call boundary. All operations are metered; any returned
// error ends the invocation.
type HostAPI interface {
	// TransactionHash returns the hash of the running transaction.
	TransactionHash() kestrel.Bytes32

	// AllocateNodeID derives a fresh node id of the given entity type.
	AllocateNodeID(et kestrel.EntityType) (kestrel.NodeID, error)
	// CreateNode inserts a new node into the current frame's heap.
	CreateNode(id kestrel.NodeID, substates NodeSubstates) error
	// DropNode destroys a heap node and returns its contents. Owned
	// references embedded in the returned values re-enter the current
	// frame's ownership.
	DropNode(id kestrel.NodeID) (NodeSubstates, error)
	// GlobalizeNode moves a frame-owned global node, and every node it
	// transitively owns, out of the heap into persisted state.
	GlobalizeNode(id kestrel.NodeID) error

	// LockSubstate locks a substate of a visible node.
	LockSubstate(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey, flags track.Flags) (LockHandle, error)
	// ReadSubstate returns the value under the lock, nil if absent.
	ReadSubstate(handle LockHandle) (*sval.Value, error)
	// WriteSubstate replaces the value under an exclusive lock.
	WriteSubstate(handle LockHandle, value *sval.Value) error
	// DropLock releases the lock.
	DropLock(handle LockHandle) error

	// Invoke runs a nested invocation. Owned references in input move
	// to the callee; owned references in the result move back.
	Invoke(actor Actor, input *sval.Value) (*sval.Value, error)

	// LockFee escrows a fee payment taken from a vault.
	LockFee(vault kestrel.NodeID, amount *uint256.Int, contingent bool) error
	// AddRoyalty accrues a royalty to the recipient vault.
	AddRoyalty(recipient kestrel.NodeID, amount *uint256.Int) error
	// ConsumeExecution charges metered guest execution units.
	ConsumeExecution(units uint64) error
	// ConsumeInstantiation charges guest module instantiation.
	ConsumeInstantiation(codeSize int) error

	// EmitEvent records an application event.
	EmitEvent(name string, data []byte) error
	// EmitLog records an application log line.
	EmitLog(level, msg string)
	// ReadBlob returns a blob carried by the transaction.
	ReadBlob(hash kestrel.Bytes32) ([]byte, error)
}
