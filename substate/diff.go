// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package substate

import (
	"bytes"
	"sort"
)

// Change is a single upsert or delete within a diff.
// A nil Value marks deletion.
type Change struct {
	Location Location
	Value    []byte
}

// Diff is the ordered set of substate changes produced by one committed
// transaction. Changes are ordered by their flat db key, which makes a
// diff deterministic and directly streamable into a kv batch.
type Diff struct {
	changes []Change
}

// NewDiff builds a diff from unordered changes. The last change for a
// location wins; changes are then ordered by db key.
func NewDiff(changes []Change) *Diff {
	dedup := make(map[Location]int, len(changes))
	out := make([]Change, 0, len(changes))
	for _, c := range changes {
		if i, ok := dedup[c.Location]; ok {
			out[i] = c
			continue
		}
		dedup[c.Location] = len(out)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(EncodeKey(out[i].Location), EncodeKey(out[j].Location)) < 0
	})
	return &Diff{changes: out}
}

// Changes returns the ordered changes.
func (d *Diff) Changes() []Change {
	return d.changes
}

// Len returns the number of changes.
func (d *Diff) Len() int {
	return len(d.changes)
}

// Get looks up the change for a location, if present.
func (d *Diff) Get(loc Location) ([]byte, bool) {
	for i := range d.changes {
		if d.changes[i].Location == loc {
			return d.changes[i].Value, true
		}
	}
	return nil, false
}
