// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package fee

import (
	"github.com/pkg/errors"
)

// ErrMaxCallDepth is returned when an invocation would exceed the
// configured call depth limit.
var ErrMaxCallDepth = errors.New("max call depth limit reached")

// Costing charges the fee reserve for kernel operations, using a
// static fee table. Every operation is charged before its effect is
// applied.
type Costing struct {
	table        Table
	reserve      *Reserve
	maxCallDepth int
}

// NewCosting creates a costing module.
func NewCosting(table Table, reserve *Reserve, maxCallDepth int) *Costing {
	return &Costing{
		table:        table,
		reserve:      reserve,
		maxCallDepth: maxCallDepth,
	}
}

// Reserve returns the underlying fee reserve.
func (c *Costing) Reserve() *Reserve { return c.reserve }

// Table returns the fee table in use.
func (c *Costing) Table() Table { return c.table }

// OnTxBase charges the flat per-transaction base cost.
func (c *Costing) OnTxBase() error {
	return c.reserve.ConsumeExecution(c.table.TxBase, "tx_base")
}

// OnInvoke charges an invocation at the given depth. The root
// invocation is free; depth at the limit is rejected outright.
func (c *Costing) OnInvoke(depth, inputSize int) error {
	if depth == c.maxCallDepth {
		return ErrMaxCallDepth
	}
	if depth > 0 {
		return c.reserve.ConsumeExecution(c.table.InvokeCost(inputSize), "invoke")
	}
	return nil
}

// OnCreateNode charges node creation.
func (c *Costing) OnCreateNode() error {
	return c.reserve.ConsumeExecution(c.table.CreateNode, "create_node")
}

// OnDropNode charges node destruction.
func (c *Costing) OnDropNode() error {
	return c.reserve.ConsumeExecution(c.table.DropNode, "drop_node")
}

// OnLockSubstate charges a lock acquisition.
func (c *Costing) OnLockSubstate() error {
	return c.reserve.ConsumeExecution(c.table.LockSubstate, "lock_substate")
}

// OnReadSubstate charges a substate read of the given size.
func (c *Costing) OnReadSubstate(size int) error {
	return c.reserve.ConsumeExecution(c.table.ReadCost(size), "read_substate")
}

// OnWriteSubstate charges a substate write of the given size.
func (c *Costing) OnWriteSubstate(size int) error {
	return c.reserve.ConsumeExecution(c.table.WriteCost(size), "write_substate")
}

// OnDropLock charges a lock release.
func (c *Costing) OnDropLock() error {
	return c.reserve.ConsumeExecution(c.table.DropLock, "drop_lock")
}

// OnReadBlob charges reading a transaction blob per byte.
func (c *Costing) OnReadBlob(size int) error {
	return c.reserve.ConsumeMultiplied(c.table.ReadPerByte, size, "read_blob")
}

// OnGuestInstantiate charges guest module instantiation per code byte.
func (c *Costing) OnGuestInstantiate(codeSize int) error {
	return c.reserve.ConsumeExecution(c.table.InstantiateCost(codeSize), "instantiate_guest")
}

// OnGuestExecution charges metered guest execution units.
func (c *Costing) OnGuestExecution(units uint64) error {
	return c.reserve.ConsumeExecution(units, "run_guest")
}
