// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kestrel_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-lab/kestrel/kestrel"
)

func TestSubstateKey(t *testing.T) {
	f := kestrel.FieldKey(3)
	assert.Equal(t, kestrel.KeyKindField, f.Kind())
	assert.Equal(t, []byte{3}, f.Bytes())

	m, err := kestrel.MapKey([]byte("entry"))
	assert.Nil(t, err)
	assert.Equal(t, kestrel.KeyKindMap, m.Kind())

	// comparable, usable as a map key
	set := map[kestrel.SubstateKey]bool{f: true, m: true}
	assert.True(t, set[kestrel.FieldKey(3)])
	assert.True(t, set[kestrel.MustMapKey([]byte("entry"))])
	assert.False(t, set[kestrel.FieldKey(4)])

	_, err = kestrel.MapKey(nil)
	assert.Error(t, err)
	_, err = kestrel.MapKey(bytes.Repeat([]byte{0}, kestrel.MaxMapKeyLength+1))
	assert.Error(t, err)
}

func TestSubstateKeyEncode(t *testing.T) {
	for _, k := range []kestrel.SubstateKey{
		kestrel.FieldKey(0),
		kestrel.FieldKey(255),
		kestrel.MustMapKey([]byte{1}),
		kestrel.MustMapKey(bytes.Repeat([]byte{0xab}, kestrel.MaxMapKeyLength)),
	} {
		decoded, err := kestrel.DecodeSubstateKey(k.Encode())
		assert.Nil(t, err)
		assert.Equal(t, k, decoded)
	}

	_, err := kestrel.DecodeSubstateKey(nil)
	assert.Error(t, err)
	_, err = kestrel.DecodeSubstateKey([]byte{0, 1, 2})
	assert.Error(t, err)
	_, err = kestrel.DecodeSubstateKey([]byte{9, 1})
	assert.Error(t, err)
}
