// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kernel

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/vm"
)

// frame is one nested invocation's ownership, visibility and lock
// scope. Nodes move between frames only through invocation arguments
// and results; a frame must end with no owned nodes and no open locks.
type frame struct {
	depth int
	actor vm.Actor

	// owned holds nodes this frame exclusively owns; they all live in
	// the heap.
	owned map[kestrel.NodeID]struct{}

	// refs holds nodes visible to this frame without ownership: global
	// references copied in, plus a method call's receiver.
	refs map[kestrel.NodeID]struct{}

	// locks holds the substate locks this frame has open.
	locks map[vm.LockHandle]struct{}
}

func newFrame(depth int, actor vm.Actor) *frame {
	return &frame{
		depth: depth,
		actor: actor,
		owned: make(map[kestrel.NodeID]struct{}),
		refs:  make(map[kestrel.NodeID]struct{}),
		locks: make(map[vm.LockHandle]struct{}),
	}
}

// visible reports whether the frame may address the node at all.
func (f *frame) visible(id kestrel.NodeID) bool {
	if _, ok := f.owned[id]; ok {
		return true
	}
	_, ok := f.refs[id]
	return ok
}

// owns reports exclusive ownership.
func (f *frame) owns(id kestrel.NodeID) bool {
	_, ok := f.owned[id]
	return ok
}

// own grants ownership of a node.
func (f *frame) own(id kestrel.NodeID) {
	f.owned[id] = struct{}{}
}

// take removes a node from the frame's ownership, failing if the frame
// does not own it; this is the single point enforcing exactly-once
// moves.
func (f *frame) take(id kestrel.NodeID) error {
	if _, ok := f.owned[id]; !ok {
		return errors.WithMessage(ErrNodeNotOwned, id.AbbrevString())
	}
	delete(f.owned, id)
	return nil
}

// addRef grants reference visibility of a node.
func (f *frame) addRef(id kestrel.NodeID) {
	f.refs[id] = struct{}{}
}

// ownedIDs returns the ids still owned by the frame.
func (f *frame) ownedIDs() []kestrel.NodeID {
	out := make([]kestrel.NodeID, 0, len(f.owned))
	for id := range f.owned {
		out = append(out, id)
	}
	return out
}
