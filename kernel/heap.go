// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kernel

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/vm"
)

// Heap is the transient, never-persisted store of nodes created during
// the current transaction. A node lives here from creation until it is
// persisted or destroyed; ownership of heap nodes is tracked by the
// call frames, not the heap itself.
type Heap struct {
	nodes map[kestrel.NodeID]vm.NodeSubstates
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{nodes: make(map[kestrel.NodeID]vm.NodeSubstates)}
}

// Contains reports whether the node lives in the heap.
func (h *Heap) Contains(id kestrel.NodeID) bool {
	_, ok := h.nodes[id]
	return ok
}

// Create inserts a new node. The id must not be present yet.
func (h *Heap) Create(id kestrel.NodeID, substates vm.NodeSubstates) error {
	if _, ok := h.nodes[id]; ok {
		return errors.Errorf("heap: node %v already exists", id.AbbrevString())
	}
	if substates == nil {
		substates = make(vm.NodeSubstates)
	}
	h.nodes[id] = substates
	return nil
}

// Remove takes a node out of the heap, returning its contents.
func (h *Heap) Remove(id kestrel.NodeID) (vm.NodeSubstates, error) {
	subs, ok := h.nodes[id]
	if !ok {
		return nil, errors.Errorf("heap: node %v not found", id.AbbrevString())
	}
	delete(h.nodes, id)
	return subs, nil
}

// Get reads a substate of a heap node.
func (h *Heap) Get(id kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey) (*sval.Value, bool) {
	subs, ok := h.nodes[id]
	if !ok {
		return nil, false
	}
	kvs, ok := subs[partition]
	if !ok {
		return nil, false
	}
	v, ok := kvs[key]
	return v, ok
}

// Put writes a substate of a heap node.
func (h *Heap) Put(id kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey, v *sval.Value) {
	subs, ok := h.nodes[id]
	if !ok {
		// locking discipline keeps writes on live heap nodes only
		panic("heap: put on non-existent node")
	}
	kvs, ok := subs[partition]
	if !ok {
		kvs = make(map[kestrel.SubstateKey]*sval.Value)
		subs[partition] = kvs
	}
	kvs[key] = v
}

// Delete removes a substate of a heap node.
func (h *Heap) Delete(id kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey) {
	if subs, ok := h.nodes[id]; ok {
		if kvs, ok := subs[partition]; ok {
			delete(kvs, key)
		}
	}
}

// Len returns the number of nodes in the heap.
func (h *Heap) Len() int {
	return len(h.nodes)
}

// NodeIDs returns the ids of all nodes in the heap.
func (h *Heap) NodeIDs() []kestrel.NodeID {
	out := make([]kestrel.NodeID, 0, len(h.nodes))
	for id := range h.nodes {
		out = append(out, id)
	}
	return out
}
