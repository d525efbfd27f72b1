// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package sval_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/sval"
)

func nid(et kestrel.EntityType, seed string) kestrel.NodeID {
	return kestrel.NewNodeID(et, kestrel.Blake2b([]byte(seed)), 0)
}

func TestValueRoundTrip(t *testing.T) {
	owned := []kestrel.NodeID{nid(kestrel.EntityInternalVault, "a"), nid(kestrel.EntityInternalBucket, "b")}
	refs := []kestrel.NodeID{nid(kestrel.EntityGlobalComponent, "c")}

	v, err := sval.New([]byte("payload"), owned, refs)
	assert.Nil(t, err)

	decoded, err := sval.Decode(v.Encode())
	assert.Nil(t, err)
	assert.Equal(t, []byte("payload"), decoded.Body())
	assert.Equal(t, owned, decoded.Owned())
	assert.Equal(t, refs, decoded.References())
	assert.Equal(t, v.Size(), decoded.Size())
}

func TestValueDuplicateOwned(t *testing.T) {
	id := nid(kestrel.EntityInternalVault, "a")
	_, err := sval.New(nil, []kestrel.NodeID{id, id}, nil)
	assert.True(t, errors.Is(err, sval.ErrDuplicateOwned))
}

func TestValueTyped(t *testing.T) {
	type point struct{ X, Y uint64 }

	v := sval.FromTyped(&point{3, 4})
	assert.Empty(t, v.Owned())

	var p point
	assert.Nil(t, v.DecodeBody(&p))
	assert.Equal(t, point{3, 4}, p)
}

func TestValueDecodeJunk(t *testing.T) {
	_, err := sval.Decode([]byte{0xff, 0x01, 0x02})
	assert.Error(t, err)
}
