// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package kernel implements the call frame stack: per-invocation
// visibility and ownership of nodes, the substate lock table over heap
// and tracked state, and move-only transfer of owned nodes between
// frames. Every operation is charged to the fee reserve before its
// effect is applied.
package kernel

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/fee"
	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/substate"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/track"
	"github.com/kestrel-lab/kestrel/tx"
	"github.com/kestrel-lab/kestrel/vm"
)

// Options bound kernel payload sizes.
type Options struct {
	MaxSubstateSize    int
	MaxInvokeInputSize int
}

// DefaultOptions returns the default kernel limits.
func DefaultOptions() Options {
	return Options{
		MaxSubstateSize:    kestrel.MaxSubstateSize,
		MaxInvokeInputSize: kestrel.MaxInvokeInputSize,
	}
}

type heapLockState struct {
	readers int
	writer  bool
}

type lockInfo struct {
	depth  int
	loc    substate.Location
	inHeap bool
	flags  track.Flags
	th     track.Handle

	// owned caches the owned references embedded in the value under
	// this lock, for diffing on writes.
	owned       []kestrel.NodeID
	ownedLoaded bool
}

// Kernel drives a single transaction's call frame stack. It implements
// vm.HostAPI; guest code reaches it through the host-call boundary.
// A kernel instance is single threaded and single use.
type Kernel struct {
	track   *track.Track
	heap    *Heap
	alloc   *IDAllocator
	costing *fee.Costing
	engine  vm.Engine
	opts    Options

	txHash kestrel.Bytes32
	blobs  map[kestrel.Bytes32][]byte

	frames    []*frame
	locks     map[vm.LockHandle]*lockInfo
	heapLocks map[substate.Location]*heapLockState
	next      vm.LockHandle

	events           tx.Events
	logs             tx.Logs
	maxInvokePayload int
}

var _ vm.HostAPI = (*Kernel)(nil)

// New creates a kernel over the given tracker, guest engine and
// costing module.
func New(
	trk *track.Track,
	engine vm.Engine,
	costing *fee.Costing,
	txHash kestrel.Bytes32,
	preAllocatedIDs []kestrel.NodeID,
	blobs map[kestrel.Bytes32][]byte,
	opts Options,
) *Kernel {
	if opts.MaxSubstateSize == 0 {
		opts.MaxSubstateSize = kestrel.MaxSubstateSize
	}
	if opts.MaxInvokeInputSize == 0 {
		opts.MaxInvokeInputSize = kestrel.MaxInvokeInputSize
	}
	if blobs == nil {
		blobs = make(map[kestrel.Bytes32][]byte)
	}
	return &Kernel{
		track:     trk,
		heap:      NewHeap(),
		alloc:     NewIDAllocator(txHash, preAllocatedIDs),
		costing:   costing,
		engine:    engine,
		opts:      opts,
		txHash:    txHash,
		blobs:     blobs,
		locks:     make(map[vm.LockHandle]*lockInfo),
		heapLocks: make(map[substate.Location]*heapLockState),
	}
}

// TransactionHash implements vm.HostAPI.
func (k *Kernel) TransactionHash() kestrel.Bytes32 { return k.txHash }

// Depth returns the current call depth.
func (k *Kernel) Depth() int { return len(k.frames) }

// Heap exposes the transient node store.
func (k *Kernel) Heap() *Heap { return k.heap }

// Events returns application events emitted so far.
func (k *Kernel) Events() tx.Events { return k.events }

// Logs returns application logs emitted so far.
func (k *Kernel) Logs() tx.Logs { return k.logs }

// MaxInvokePayload returns the largest invocation input seen.
func (k *Kernel) MaxInvokePayload() int { return k.maxInvokePayload }

func (k *Kernel) currentFrame() *frame {
	if len(k.frames) == 0 {
		return nil
	}
	return k.frames[len(k.frames)-1]
}

func (k *Kernel) requireFrame() (*frame, error) {
	if cf := k.currentFrame(); cf != nil {
		return cf, nil
	}
	return nil, errors.New("no active call frame")
}

func emptyValue() *sval.Value {
	v, _ := sval.New(nil, nil, nil)
	return v
}

// Invoke runs an invocation against the current frame stack: the root
// one when the stack is empty, a nested one otherwise. Owned
// references named in input move from the caller into the callee;
// owned references in the result move back. The whole invocation fails
// before the callee runs if any transfer is not exactly-once.
func (k *Kernel) Invoke(actor vm.Actor, input *sval.Value) (*sval.Value, error) {
	if input == nil {
		input = emptyValue()
	}
	inputSize := input.Size()
	if inputSize > k.opts.MaxInvokeInputSize {
		return nil, errors.WithMessage(ErrInvokeInputSize, actor.String())
	}
	if err := k.costing.OnInvoke(len(k.frames), inputSize); err != nil {
		return nil, err
	}
	if inputSize > k.maxInvokePayload {
		k.maxInvokePayload = inputSize
	}

	caller := k.currentFrame()

	// validate the transfer before committing any of it
	movedIn := input.Owned()
	if caller == nil && len(movedIn) > 0 {
		return nil, errors.WithMessage(ErrNodeNotOwned, "root invocation cannot move nodes in")
	}
	for _, id := range movedIn {
		if !caller.owns(id) {
			return nil, errors.WithMessage(ErrNodeNotOwned, id.AbbrevString())
		}
	}
	for _, ref := range input.References() {
		if !ref.IsGlobal() {
			return nil, errors.WithMessage(ErrNonGlobalRef, ref.AbbrevString())
		}
		if caller != nil && !caller.visible(ref) {
			return nil, errors.WithMessage(ErrNodeNotVisible, ref.AbbrevString())
		}
	}
	if actor.Receiver != nil && caller != nil && !caller.visible(*actor.Receiver) {
		return nil, errors.WithMessage(ErrNodeNotVisible, actor.Receiver.AbbrevString())
	}

	callee := newFrame(len(k.frames), actor)
	for _, id := range movedIn {
		caller.take(id) // nolint:errcheck // validated above
		callee.own(id)
	}
	for _, ref := range input.References() {
		callee.addRef(ref)
	}
	if actor.Receiver != nil {
		callee.addRef(*actor.Receiver)
	}

	k.frames = append(k.frames, callee)

	out, err := k.engine.Invoke(&vm.Context{Actor: actor, Input: input, Depth: callee.depth}, k)
	if err != nil {
		k.unwindFrame(callee)
		return nil, err
	}
	if out == nil {
		out = emptyValue()
	}

	// move the result back
	movedOut := out.Owned()
	for _, id := range movedOut {
		if !callee.owns(id) {
			k.unwindFrame(callee)
			return nil, errors.WithMessage(ErrNodeNotOwned, id.AbbrevString())
		}
	}
	for _, ref := range out.References() {
		if !ref.IsGlobal() {
			k.unwindFrame(callee)
			return nil, errors.WithMessage(ErrNonGlobalRef, ref.AbbrevString())
		}
		if !callee.visible(ref) {
			k.unwindFrame(callee)
			return nil, errors.WithMessage(ErrNodeNotVisible, ref.AbbrevString())
		}
	}
	if caller != nil {
		for _, id := range movedOut {
			callee.take(id) // nolint:errcheck // validated above
			caller.own(id)
		}
		for _, ref := range out.References() {
			caller.addRef(ref)
		}
	}

	// end-of-frame checks close the dangling resource hole
	if len(callee.locks) > 0 {
		k.unwindFrame(callee)
		return nil, errors.WithMessage(ErrLocksNotReleased, actor.String())
	}
	if len(callee.owned) > 0 {
		leak := &LeakError{Nodes: callee.ownedIDs()}
		k.frames = k.frames[:len(k.frames)-1]
		return nil, leak
	}

	k.frames = k.frames[:len(k.frames)-1]

	// Nodes abandoned by an unwound nested frame belong to no frame, so
	// the per-frame check above cannot see them. Any node still in the
	// heap once the stack is empty is a leak, even if every caller on
	// the way up reported success.
	if len(k.frames) == 0 && k.heap.Len() > 0 {
		return nil, &LeakError{Nodes: k.heap.NodeIDs()}
	}
	return out, nil
}

// unwindFrame releases a failed frame's locks and pops it.
func (k *Kernel) unwindFrame(f *frame) {
	for h := range f.locks {
		k.releaseLock(h) // nolint:errcheck
	}
	k.frames = k.frames[:len(k.frames)-1]
}

// AllocateNodeID implements vm.HostAPI.
func (k *Kernel) AllocateNodeID(et kestrel.EntityType) (kestrel.NodeID, error) {
	if _, err := k.requireFrame(); err != nil {
		return kestrel.NodeID{}, err
	}
	return k.alloc.Allocate(et), nil
}

// CreateNode implements vm.HostAPI. Owned references embedded in the
// initial substates must be owned by the current frame; they move into
// the new node.
func (k *Kernel) CreateNode(id kestrel.NodeID, substates vm.NodeSubstates) error {
	cf, err := k.requireFrame()
	if err != nil {
		return err
	}
	if err := k.costing.OnCreateNode(); err != nil {
		return err
	}

	// validate everything before any ownership changes
	embedded := make(map[kestrel.NodeID]struct{})
	for _, kvs := range substates {
		for _, v := range kvs {
			if v.Size() > k.opts.MaxSubstateSize {
				return ErrSubstateSize
			}
			for _, child := range v.Owned() {
				if _, dup := embedded[child]; dup {
					return errors.WithMessage(sval.ErrDuplicateOwned, child.AbbrevString())
				}
				embedded[child] = struct{}{}
				if !cf.owns(child) {
					return errors.WithMessage(ErrNodeNotOwned, child.AbbrevString())
				}
			}
			for _, ref := range v.References() {
				if !ref.IsGlobal() {
					return errors.WithMessage(ErrNonGlobalRef, ref.AbbrevString())
				}
				if !cf.visible(ref) {
					return errors.WithMessage(ErrNodeNotVisible, ref.AbbrevString())
				}
			}
		}
	}
	if err := k.alloc.Take(id); err != nil {
		return err
	}

	for child := range embedded {
		cf.take(child) // nolint:errcheck // validated above
	}
	if err := k.heap.Create(id, substates); err != nil {
		return err
	}
	cf.own(id)
	return nil
}

// DropNode implements vm.HostAPI.
func (k *Kernel) DropNode(id kestrel.NodeID) (vm.NodeSubstates, error) {
	cf, err := k.requireFrame()
	if err != nil {
		return nil, err
	}
	if err := k.costing.OnDropNode(); err != nil {
		return nil, err
	}

	if !cf.owns(id) {
		switch {
		case cf.visible(id):
			return nil, errors.WithMessage(ErrCantDropNodeInStore, id.AbbrevString())
		default:
			return nil, errors.WithMessage(ErrNodeNotVisible, id.AbbrevString())
		}
	}
	if k.nodeHasOpenLock(id) {
		return nil, errors.WithMessage(ErrNodeLocked, id.AbbrevString())
	}

	cf.take(id) // nolint:errcheck // owned, checked above
	subs, err := k.heap.Remove(id)
	if err != nil {
		return nil, err
	}
	// embedded owned nodes re-enter the frame's ownership
	for _, kvs := range subs {
		for _, v := range kvs {
			for _, child := range v.Owned() {
				cf.own(child)
			}
		}
	}
	return subs, nil
}

// GlobalizeNode implements vm.HostAPI.
func (k *Kernel) GlobalizeNode(id kestrel.NodeID) error {
	cf, err := k.requireFrame()
	if err != nil {
		return err
	}
	if !id.IsGlobal() {
		return errors.WithMessage(ErrNotGlobal, id.AbbrevString())
	}
	if !cf.owns(id) {
		if cf.visible(id) {
			return errors.WithMessage(ErrNodeNotOwned, id.AbbrevString())
		}
		return errors.WithMessage(ErrNodeNotVisible, id.AbbrevString())
	}

	cf.take(id) // nolint:errcheck // owned, checked above
	if err := k.persistNode(id); err != nil {
		return err
	}
	// the node is now part of persisted state; keep it addressable
	cf.addRef(id)
	return nil
}

// persistNode moves a heap node and all nodes it transitively owns
// into the tracker's write set.
func (k *Kernel) persistNode(id kestrel.NodeID) error {
	if k.nodeHasOpenLock(id) {
		return errors.WithMessage(ErrNodeLocked, id.AbbrevString())
	}
	subs, err := k.heap.Remove(id)
	if err != nil {
		return err
	}
	for partition, kvs := range subs {
		for key, v := range kvs {
			for _, child := range v.Owned() {
				if err := k.persistNode(child); err != nil {
					return err
				}
			}
			if err := k.costing.OnWriteSubstate(v.Size()); err != nil {
				return err
			}
			if err := k.track.Insert(id, partition, key, v.Encode()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (k *Kernel) nodeHasOpenLock(id kestrel.NodeID) bool {
	for _, li := range k.locks {
		if li.loc.Node == id {
			return true
		}
	}
	return false
}

// LockSubstate implements vm.HostAPI. The visibility check runs first;
// lock state is then kept either in the frame-local heap path or the
// tracker, depending on where the node lives.
func (k *Kernel) LockSubstate(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey, flags track.Flags) (vm.LockHandle, error) {
	cf, err := k.requireFrame()
	if err != nil {
		return 0, err
	}
	if err := k.costing.OnLockSubstate(); err != nil {
		return 0, err
	}
	if !cf.visible(node) {
		return 0, errors.WithMessage(ErrNodeNotVisible, node.AbbrevString())
	}

	loc := substate.Location{Node: node, Partition: partition, Key: key}
	li := &lockInfo{depth: cf.depth, loc: loc, flags: flags}

	if k.heap.Contains(node) {
		if flags&track.FlagForceWrite != 0 {
			return 0, errors.New("force write not applicable to heap substates")
		}
		hl := k.heapLocks[loc]
		if hl == nil {
			hl = &heapLockState{}
			k.heapLocks[loc] = hl
		}
		if flags&track.FlagMutable != 0 {
			if hl.writer || hl.readers > 0 {
				return 0, errors.WithMessage(track.ErrLockConflict, loc.String())
			}
		} else if hl.writer {
			return 0, errors.WithMessage(track.ErrLockConflict, loc.String())
		}
		if _, ok := k.heap.Get(node, partition, key); !ok && flags&track.FlagCreate == 0 {
			return 0, errors.WithMessage(track.ErrNotFound, loc.String())
		}
		if flags&track.FlagMutable != 0 {
			hl.writer = true
		} else {
			hl.readers++
		}
		li.inHeap = true
	} else {
		th, err := k.track.AcquireLock(node, partition, key, flags)
		if err != nil {
			return 0, err
		}
		li.th = th
	}

	k.next++
	handle := vm.LockHandle(k.next)
	k.locks[handle] = li
	cf.locks[handle] = struct{}{}
	return handle, nil
}

func (k *Kernel) lookupLock(handle vm.LockHandle) (*frame, *lockInfo, error) {
	cf, err := k.requireFrame()
	if err != nil {
		return nil, nil, err
	}
	if _, ok := cf.locks[handle]; !ok {
		return nil, nil, errors.WithMessage(track.ErrInvalidHandle, "not held by current frame")
	}
	return cf, k.locks[handle], nil
}

// ReadSubstate implements vm.HostAPI. References embedded in the read
// value become addressable by the current frame; this is how a method
// reaches the nodes its receiver owns.
func (k *Kernel) ReadSubstate(handle vm.LockHandle) (*sval.Value, error) {
	cf, li, err := k.lookupLock(handle)
	if err != nil {
		return nil, err
	}
	if li.inHeap {
		v, ok := k.heap.Get(li.loc.Node, li.loc.Partition, li.loc.Key)
		size := 0
		if ok {
			size = v.Size()
		}
		if err := k.costing.OnReadSubstate(size); err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		k.grantValueVisibility(cf, v)
		return v, nil
	}

	b, err := k.track.Read(li.th)
	if err != nil {
		return nil, err
	}
	if err := k.costing.OnReadSubstate(len(b)); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	v, err := sval.Decode(b)
	if err != nil {
		return nil, err
	}
	k.grantValueVisibility(cf, v)
	return v, nil
}

// grantValueVisibility makes the nodes referenced by a read value
// addressable by the frame, without granting ownership.
func (k *Kernel) grantValueVisibility(cf *frame, v *sval.Value) {
	for _, id := range v.Owned() {
		if !cf.owns(id) {
			cf.addRef(id)
		}
	}
	for _, ref := range v.References() {
		cf.addRef(ref)
	}
}

// WriteSubstate implements vm.HostAPI. Owned references newly embedded
// in the value move out of the current frame (and, for persisted
// substates, out of the heap); owned references removed from a heap
// substate re-enter the frame, while removing one from a persisted
// substate is an error.
func (k *Kernel) WriteSubstate(handle vm.LockHandle, value *sval.Value) error {
	cf, li, err := k.lookupLock(handle)
	if err != nil {
		return err
	}
	if li.flags&track.FlagMutable == 0 {
		return errors.WithMessage(track.ErrNotMutable, li.loc.String())
	}

	size := 0
	if value != nil {
		size = value.Size()
		if size > k.opts.MaxSubstateSize {
			return ErrSubstateSize
		}
	}
	if err := k.costing.OnWriteSubstate(size); err != nil {
		return err
	}

	if err := k.loadLockOwned(li); err != nil {
		return err
	}
	oldOwned := make(map[kestrel.NodeID]struct{}, len(li.owned))
	for _, id := range li.owned {
		oldOwned[id] = struct{}{}
	}

	var newOwned []kestrel.NodeID
	if value != nil {
		newOwned = value.Owned()
	}
	newSet := make(map[kestrel.NodeID]struct{}, len(newOwned))

	// validate the ownership delta before applying anything
	for _, id := range newOwned {
		newSet[id] = struct{}{}
		if _, had := oldOwned[id]; had {
			continue
		}
		if !cf.owns(id) {
			return errors.WithMessage(ErrNodeNotOwned, id.AbbrevString())
		}
	}
	for _, id := range li.owned {
		if _, kept := newSet[id]; !kept && !li.inHeap {
			return errors.WithMessage(ErrOrphanedOwned, id.AbbrevString())
		}
	}
	if value != nil {
		for _, ref := range value.References() {
			if !ref.IsGlobal() {
				return errors.WithMessage(ErrNonGlobalRef, ref.AbbrevString())
			}
			if !cf.visible(ref) {
				return errors.WithMessage(ErrNodeNotVisible, ref.AbbrevString())
			}
		}
	}

	for _, id := range newOwned {
		if _, had := oldOwned[id]; had {
			continue
		}
		cf.take(id) // nolint:errcheck // validated above
		if !li.inHeap {
			if err := k.persistNode(id); err != nil {
				return err
			}
		}
	}
	for _, id := range li.owned {
		if _, kept := newSet[id]; !kept && li.inHeap {
			cf.own(id)
		}
	}

	if li.inHeap {
		if value == nil {
			k.heap.Delete(li.loc.Node, li.loc.Partition, li.loc.Key)
		} else {
			k.heap.Put(li.loc.Node, li.loc.Partition, li.loc.Key, value)
		}
	} else {
		var raw []byte
		if value != nil {
			raw = value.Encode()
		}
		if err := k.track.Write(li.th, raw); err != nil {
			return err
		}
	}

	li.owned = newOwned
	li.ownedLoaded = true
	return nil
}

// loadLockOwned lazily loads the owned references embedded in the
// value currently under the lock.
func (k *Kernel) loadLockOwned(li *lockInfo) error {
	if li.ownedLoaded {
		return nil
	}
	li.ownedLoaded = true
	if li.inHeap {
		if v, ok := k.heap.Get(li.loc.Node, li.loc.Partition, li.loc.Key); ok {
			li.owned = v.Owned()
		}
		return nil
	}
	b, err := k.track.Current(li.th)
	if err != nil {
		return err
	}
	if b == nil {
		return nil
	}
	v, err := sval.Decode(b)
	if err != nil {
		return err
	}
	li.owned = v.Owned()
	return nil
}

// DropLock implements vm.HostAPI.
func (k *Kernel) DropLock(handle vm.LockHandle) error {
	if _, _, err := k.lookupLock(handle); err != nil {
		return err
	}
	if err := k.costing.OnDropLock(); err != nil {
		return err
	}
	return k.releaseLock(handle)
}

func (k *Kernel) releaseLock(handle vm.LockHandle) error {
	li, ok := k.locks[handle]
	if !ok {
		return track.ErrInvalidHandle
	}
	if li.inHeap {
		hl := k.heapLocks[li.loc]
		if li.flags&track.FlagMutable != 0 {
			hl.writer = false
		} else {
			hl.readers--
		}
	} else {
		if err := k.track.Release(li.th); err != nil {
			return err
		}
	}
	delete(k.locks, handle)
	if li.depth < len(k.frames) {
		delete(k.frames[li.depth].locks, handle)
	}
	return nil
}

// LockFee implements vm.HostAPI.
func (k *Kernel) LockFee(vault kestrel.NodeID, amount *uint256.Int, contingent bool) error {
	if _, err := k.requireFrame(); err != nil {
		return err
	}
	return k.costing.Reserve().LockFee(vault, amount, contingent)
}

// AddRoyalty implements vm.HostAPI.
func (k *Kernel) AddRoyalty(recipient kestrel.NodeID, amount *uint256.Int) error {
	if _, err := k.requireFrame(); err != nil {
		return err
	}
	return k.costing.Reserve().AddRoyalty(recipient, amount)
}

// ConsumeExecution implements vm.HostAPI.
func (k *Kernel) ConsumeExecution(units uint64) error {
	return k.costing.OnGuestExecution(units)
}

// ConsumeInstantiation implements vm.HostAPI.
func (k *Kernel) ConsumeInstantiation(codeSize int) error {
	return k.costing.OnGuestInstantiate(codeSize)
}

// EmitEvent implements vm.HostAPI.
func (k *Kernel) EmitEvent(name string, data []byte) error {
	cf, err := k.requireFrame()
	if err != nil {
		return err
	}
	emitter := cf.actor.Package
	if cf.actor.Receiver != nil {
		emitter = *cf.actor.Receiver
	}
	k.events = append(k.events, &tx.Event{
		Emitter: emitter,
		Name:    name,
		Data:    data,
	})
	return nil
}

// EmitLog implements vm.HostAPI.
func (k *Kernel) EmitLog(level, msg string) {
	k.logs = append(k.logs, &tx.LogEntry{Level: level, Message: msg})
}

// ReadBlob implements vm.HostAPI.
func (k *Kernel) ReadBlob(hash kestrel.Bytes32) ([]byte, error) {
	b, ok := k.blobs[hash]
	if !ok {
		return nil, errors.WithMessage(ErrBlobNotFound, hash.AbbrevString())
	}
	if err := k.costing.OnReadBlob(len(b)); err != nil {
		return nil, err
	}
	return b, nil
}
