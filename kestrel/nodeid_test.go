// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kestrel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-lab/kestrel/kestrel"
)

func TestNewNodeID(t *testing.T) {
	txHash := kestrel.Blake2b([]byte("tx"))

	id := kestrel.NewNodeID(kestrel.EntityGlobalComponent, txHash, 0)
	assert.Equal(t, kestrel.EntityGlobalComponent, id.EntityType())
	assert.True(t, id.IsGlobal())

	// deterministic per (hash, counter)
	assert.Equal(t, id, kestrel.NewNodeID(kestrel.EntityGlobalComponent, txHash, 0))
	assert.NotEqual(t, id, kestrel.NewNodeID(kestrel.EntityGlobalComponent, txHash, 1))
	assert.NotEqual(t, id, kestrel.NewNodeID(kestrel.EntityGlobalComponent, kestrel.Blake2b([]byte("tx2")), 0))

	// same derivation, different entity type differs only in the tag byte
	vault := kestrel.NewNodeID(kestrel.EntityInternalVault, txHash, 0)
	assert.Equal(t, id[1:], vault[1:])
	assert.False(t, vault.IsGlobal())
	assert.True(t, vault.EntityType().IsInternal())
}

func TestParseNodeID(t *testing.T) {
	id := kestrel.NewNodeID(kestrel.EntityGlobalPackage, kestrel.Blake2b([]byte("pkg")), 7)

	parsed, err := kestrel.ParseNodeID(id.String())
	assert.Nil(t, err)
	assert.Equal(t, id, parsed)

	_, err = kestrel.ParseNodeID("0x1234")
	assert.Error(t, err)
	_, err = kestrel.ParseNodeID("zz" + id.String()[2:])
	assert.Error(t, err)
}

func TestBytesToNodeID(t *testing.T) {
	id := kestrel.BytesToNodeID([]byte{byte(kestrel.EntityInternalBucket), 1, 2, 3})
	assert.Equal(t, kestrel.EntityInternalBucket, id.EntityType())
	assert.Equal(t, byte(3), id[3])
	assert.Equal(t, byte(0), id[4])
}
