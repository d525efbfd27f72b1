// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package substate

import (
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/kv"
)

// LevelStore is a CommitStore over a kv store, with an LRU read cache.
type LevelStore struct {
	db    kv.GetPutter
	cache *lru.Cache
}

// cached entry; value is nil for cached absence.
type cacheEntry struct {
	value  []byte
	exists bool
}

// NewLevelStore creates a store over the given kv store.
// cacheSize is the number of cached substates; 0 disables the cache.
func NewLevelStore(db kv.GetPutter, cacheSize int) (*LevelStore, error) {
	var cache *lru.Cache
	if cacheSize > 0 {
		var err error
		if cache, err = lru.New(cacheSize); err != nil {
			return nil, err
		}
	}
	return &LevelStore{db: db, cache: cache}, nil
}

// Get implements Store.
func (s *LevelStore) Get(node kestrel.NodeID, partition kestrel.PartitionNumber, key kestrel.SubstateKey) ([]byte, bool, error) {
	loc := Location{node, partition, key}
	if s.cache != nil {
		if ent, ok := s.cache.Get(loc); ok {
			e := ent.(cacheEntry)
			return e.value, e.exists, nil
		}
	}

	val, err := s.db.Get(EncodeKey(loc))
	if err != nil {
		if s.db.IsNotFound(err) {
			if s.cache != nil {
				s.cache.Add(loc, cacheEntry{})
			}
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "substate get")
	}
	if s.cache != nil {
		s.cache.Add(loc, cacheEntry{val, true})
	}
	return val, true, nil
}

// Commit implements Committer. The diff is applied atomically via a
// kv batch; the read cache is updated in place afterwards.
func (s *LevelStore) Commit(diff *Diff) error {
	batch := s.db.NewBatch()
	for _, c := range diff.Changes() {
		if c.Value == nil {
			if err := batch.Delete(EncodeKey(c.Location)); err != nil {
				return err
			}
		} else {
			if err := batch.Put(EncodeKey(c.Location), c.Value); err != nil {
				return err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return errors.Wrap(err, "substate commit")
	}

	if s.cache != nil {
		for _, c := range diff.Changes() {
			s.cache.Add(c.Location, cacheEntry{c.Value, c.Value != nil})
		}
	}
	return nil
}
