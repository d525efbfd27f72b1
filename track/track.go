// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package track presents a transactional view of the substate store.
// Reads fault through to the underlying store once and are then served
// from an in-memory overlay; writes are buffered and only leave the
// tracker as a diff at finalize. A lock table enforces the shared
// read / exclusive write discipline over tracked substates.
package track

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/stackedmap"
	"github.com/kestrel-lab/kestrel/substate"
)

var (
	// ErrNotFound is returned when a required substate does not exist.
	ErrNotFound = errors.New("substate not found")
	// ErrLockConflict is returned when a substate is already locked in
	// an incompatible mode.
	ErrLockConflict = errors.New("substate lock conflict")
	// ErrInvalidHandle is returned for unknown or released lock handles.
	ErrInvalidHandle = errors.New("invalid lock handle")
	// ErrNotMutable is returned when writing under a read-only lock.
	ErrNotMutable = errors.New("lock not mutable")
	// ErrReadLimit is returned when the per-transaction substate read
	// budget is exhausted.
	ErrReadLimit = errors.New("substate read limit exceeded")
	// ErrWriteLimit is returned when the per-transaction substate write
	// budget is exhausted.
	ErrWriteLimit = errors.New("substate write limit exceeded")
)

// Flags control lock acquisition.
type Flags uint8

const (
	// FlagMutable acquires the lock exclusively and permits writes.
	FlagMutable Flags = 1 << iota
	// FlagForceWrite marks writes under this lock as surviving
	// RevertNonForced. Only valid together with FlagMutable.
	FlagForceWrite
	// FlagCreate permits locking a substate that does not exist yet.
	FlagCreate
)

// Handle identifies an acquired substate lock.
type Handle uint32

type entry struct {
	value  []byte // nil marks deletion / absence
	exists bool
}

type lockState struct {
	readers int
	writer  bool
}

type lockEntry struct {
	loc   substate.Location
	flags Flags
}

// Limits bound tracked substate traffic per transaction.
type Limits struct {
	MaxReads  int
	MaxWrites int
}

// DefaultLimits returns the default traffic limits.
func DefaultLimits() Limits {
	return Limits{
		MaxReads:  kestrel.MaxSubstateReadsPerTransaction,
		MaxWrites: kestrel.MaxSubstateWritesPerTransaction,
	}
}

// Metrics counts tracked substate traffic.
type Metrics struct {
	ReadCount  int
	ReadBytes  int
	WriteCount int
	WriteBytes int
}

// Track is the transactional overlay. It is single use: one instance
// serves exactly one transaction.
type Track struct {
	store  substate.Store
	sm     *stackedmap.StackedMap[substate.Location, entry]
	cache  map[substate.Location]entry
	locks  map[substate.Location]*lockState
	opened map[Handle]*lockEntry
	next   Handle

	forced map[substate.Location][]byte

	limits    Limits
	metrics   Metrics
	finalized bool
}

// New creates a tracker over the given store.
func New(store substate.Store, limits Limits) *Track {
	t := &Track{
		store:  store,
		cache:  make(map[substate.Location]entry),
		locks:  make(map[substate.Location]*lockState),
		opened: make(map[Handle]*lockEntry),
		forced: make(map[substate.Location][]byte),
		limits: limits,
	}
	t.sm = stackedmap.New(t.readThrough)
	t.sm.Push()
	return t
}

// readThrough implements stackedmap.MapGetter, faulting substates in
// from the underlying store on first access.
func (t *Track) readThrough(loc substate.Location) (entry, bool, error) {
	if e, ok := t.cache[loc]; ok {
		return e, true, nil
	}
	val, exists, err := t.store.Get(loc.Node, loc.Partition, loc.Key)
	if err != nil {
		return entry{}, false, err
	}
	e := entry{value: val, exists: exists}
	t.cache[loc] = e
	return e, true, nil
}

// AcquireLock locks a substate. Unless FlagCreate is set, the substate
// must exist. Incompatible lock modes fail with ErrLockConflict.
func (t *Track) AcquireLock(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey, flags Flags) (Handle, error) {
	t.assertLive()
	if flags&FlagForceWrite != 0 && flags&FlagMutable == 0 {
		return 0, errors.New("force write requires mutable lock")
	}
	loc := substate.Location{Node: node, Partition: partition, Key: key}

	ls := t.locks[loc]
	if ls == nil {
		ls = &lockState{}
		t.locks[loc] = ls
	}
	if flags&FlagMutable != 0 {
		if ls.writer || ls.readers > 0 {
			return 0, errors.WithMessage(ErrLockConflict, loc.String())
		}
	} else if ls.writer {
		return 0, errors.WithMessage(ErrLockConflict, loc.String())
	}

	e, _, err := t.sm.Get(loc)
	if err != nil {
		return 0, errors.Wrap(err, "acquire lock")
	}
	if !e.exists && flags&FlagCreate == 0 {
		return 0, errors.WithMessage(ErrNotFound, loc.String())
	}

	if flags&FlagMutable != 0 {
		ls.writer = true
	} else {
		ls.readers++
	}

	t.next++
	handle := t.next
	t.opened[handle] = &lockEntry{loc: loc, flags: flags}
	return handle, nil
}

// Read returns the current value under the lock. A nil value with nil
// error means the substate does not exist (possible under FlagCreate).
func (t *Track) Read(handle Handle) ([]byte, error) {
	t.assertLive()
	le, ok := t.opened[handle]
	if !ok {
		return nil, ErrInvalidHandle
	}
	if t.limits.MaxReads > 0 && t.metrics.ReadCount >= t.limits.MaxReads {
		return nil, ErrReadLimit
	}
	e, _, err := t.sm.Get(le.loc)
	if err != nil {
		return nil, errors.Wrap(err, "read substate")
	}
	t.metrics.ReadCount++
	t.metrics.ReadBytes += len(e.value)
	if !e.exists {
		return nil, nil
	}
	return e.value, nil
}

// Current returns the value under the lock without touching the read
// counters; used by the kernel to diff embedded ownership on writes.
func (t *Track) Current(handle Handle) ([]byte, error) {
	t.assertLive()
	le, ok := t.opened[handle]
	if !ok {
		return nil, ErrInvalidHandle
	}
	e, _, err := t.sm.Get(le.loc)
	if err != nil {
		return nil, errors.Wrap(err, "read substate")
	}
	if !e.exists {
		return nil, nil
	}
	return e.value, nil
}

// Write buffers a new value under an exclusive lock. A nil value marks
// the substate deleted.
func (t *Track) Write(handle Handle, value []byte) error {
	t.assertLive()
	le, ok := t.opened[handle]
	if !ok {
		return ErrInvalidHandle
	}
	if le.flags&FlagMutable == 0 {
		return errors.WithMessage(ErrNotMutable, le.loc.String())
	}
	return t.put(le.loc, value, le.flags&FlagForceWrite != 0)
}

// WriteUnmetered buffers a value under an exclusive lock without
// touching the traffic counters or write limits. Fee settlement runs
// after execution accounting has closed.
func (t *Track) WriteUnmetered(handle Handle, value []byte) error {
	t.assertLive()
	le, ok := t.opened[handle]
	if !ok {
		return ErrInvalidHandle
	}
	if le.flags&FlagMutable == 0 {
		return errors.WithMessage(ErrNotMutable, le.loc.String())
	}
	t.sm.Put(le.loc, entry{value: value, exists: value != nil})
	if le.flags&FlagForceWrite != 0 {
		t.forced[le.loc] = value
	}
	return nil
}

// Insert buffers a write for a substate that is not locked; used when
// persisting freshly created nodes into the store's key space.
func (t *Track) Insert(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey, value []byte) error {
	t.assertLive()
	return t.put(substate.Location{Node: node, Partition: partition, Key: key}, value, false)
}

func (t *Track) put(loc substate.Location, value []byte, force bool) error {
	if t.limits.MaxWrites > 0 && t.metrics.WriteCount >= t.limits.MaxWrites {
		return ErrWriteLimit
	}
	t.sm.Put(loc, entry{value: value, exists: value != nil})
	if force {
		t.forced[loc] = value
	}
	t.metrics.WriteCount++
	t.metrics.WriteBytes += len(value)
	return nil
}

// Release drops the lock. Buffered writes stay.
func (t *Track) Release(handle Handle) error {
	t.assertLive()
	le, ok := t.opened[handle]
	if !ok {
		return ErrInvalidHandle
	}
	delete(t.opened, handle)

	ls := t.locks[le.loc]
	if le.flags&FlagMutable != 0 {
		ls.writer = false
	} else {
		ls.readers--
	}
	return nil
}

// OpenLockCount returns the number of currently open locks.
func (t *Track) OpenLockCount() int {
	return len(t.opened)
}

// RevertNonForced discards all buffered writes except those made under
// FlagForceWrite. Lock and traffic accounting stays.
func (t *Track) RevertNonForced() {
	t.assertLive()
	t.sm.PopTo(0)
	t.sm.Push()
	for loc, val := range t.forced {
		t.sm.Put(loc, entry{value: val, exists: val != nil})
	}
}

// Metrics returns the substate traffic counters.
func (t *Track) Metrics() Metrics {
	return t.metrics
}

// Finalize converts the buffered write set into an ordered diff.
// The tracker is single use; finalizing twice panics.
func (t *Track) Finalize() *substate.Diff {
	t.assertLive()
	t.finalized = true

	var changes []substate.Change
	t.sm.Journal(func(loc substate.Location, e entry) bool {
		changes = append(changes, substate.Change{Location: loc, Value: e.value})
		return true
	})
	return substate.NewDiff(changes)
}

func (t *Track) assertLive() {
	if t.finalized {
		panic("track already finalized")
	}
}
