// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kernel

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

// IDAllocator derives fresh node ids from the transaction hash and a
// monotonic counter, so ids never collide within or across
// transactions. Every allocated id must be consumed by exactly one
// node creation.
type IDAllocator struct {
	txHash  kestrel.Bytes32
	counter uint32
	pending map[kestrel.NodeID]struct{}
}

// NewIDAllocator creates an allocator seeded with the transaction's
// pre-allocated ids.
func NewIDAllocator(txHash kestrel.Bytes32, preAllocated []kestrel.NodeID) *IDAllocator {
	pending := make(map[kestrel.NodeID]struct{}, len(preAllocated))
	for _, id := range preAllocated {
		pending[id] = struct{}{}
	}
	return &IDAllocator{
		txHash:  txHash,
		pending: pending,
	}
}

// Allocate derives a fresh id of the given entity type.
func (a *IDAllocator) Allocate(et kestrel.EntityType) kestrel.NodeID {
	id := kestrel.NewNodeID(et, a.txHash, a.counter)
	a.counter++
	a.pending[id] = struct{}{}
	return id
}

// Take consumes an allocated id for node creation.
func (a *IDAllocator) Take(id kestrel.NodeID) error {
	if _, ok := a.pending[id]; !ok {
		return errors.WithMessage(ErrNodeIDNotAllocated, id.AbbrevString())
	}
	delete(a.pending, id)
	return nil
}
