// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kestrel

import (
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
)

// PartitionNumber addresses a logical subdivision of a node's state,
// relative to the node.
type PartitionNumber uint8

const (
	// PartitionTypeInfo holds the node's type descriptor substate.
	PartitionTypeInfo PartitionNumber = 0
	// PartitionField holds an object's field substates.
	PartitionField PartitionNumber = 64
	// PartitionKVEntries holds a key-value store's entry substates.
	PartitionKVEntries PartitionNumber = 65
	// PartitionIndex holds index substates.
	PartitionIndex PartitionNumber = 66
	// PartitionSortedIndex holds sorted index substates.
	PartitionSortedIndex PartitionNumber = 67
)

const (
	// MaxMapKeyLength is the max length of a map substate key in bytes.
	MaxMapKeyLength = 128
)

// SubstateKeyKind discriminates substate key flavors.
type SubstateKeyKind byte

const (
	// KeyKindField marks a fixed single-byte field key.
	KeyKindField SubstateKeyKind = 0
	// KeyKindMap marks a variable-length opaque key.
	KeyKindMap SubstateKeyKind = 1
)

// SubstateKey locates a substate within a partition. It is comparable
// and safe for use as a map key.
type SubstateKey struct {
	kind SubstateKeyKind
	body string
}

// FieldKey creates a fixed field key.
func FieldKey(n byte) SubstateKey {
	return SubstateKey{KeyKindField, string([]byte{n})}
}

// MapKey creates a variable-length opaque key. Key length is limited
// to 1..MaxMapKeyLength bytes.
func MapKey(b []byte) (SubstateKey, error) {
	if len(b) == 0 || len(b) > MaxMapKeyLength {
		return SubstateKey{}, errors.Errorf("map key length %d out of range [1, %d]", len(b), MaxMapKeyLength)
	}
	return SubstateKey{KeyKindMap, string(b)}, nil
}

// MustMapKey creates a map key, panics on invalid length.
func MustMapKey(b []byte) SubstateKey {
	k, err := MapKey(b)
	if err != nil {
		panic(err)
	}
	return k
}

// Kind returns the key kind.
func (k SubstateKey) Kind() SubstateKeyKind { return k.kind }

// Bytes returns the raw key body.
func (k SubstateKey) Bytes() []byte { return []byte(k.body) }

// Encode renders the key with its kind discriminator prepended,
// suitable for embedding into a flat db key.
func (k SubstateKey) Encode() []byte {
	out := make([]byte, 0, len(k.body)+1)
	out = append(out, byte(k.kind))
	return append(out, k.body...)
}

// DecodeSubstateKey is the inverse of Encode.
func DecodeSubstateKey(b []byte) (SubstateKey, error) {
	if len(b) < 2 {
		return SubstateKey{}, errors.New("substate key too short")
	}
	switch SubstateKeyKind(b[0]) {
	case KeyKindField:
		if len(b) != 2 {
			return SubstateKey{}, errors.New("field key must be a single byte")
		}
		return FieldKey(b[1]), nil
	case KeyKindMap:
		return MapKey(b[1:])
	default:
		return SubstateKey{}, errors.Errorf("unknown substate key kind %d", b[0])
	}
}

// String implements the stringer interface.
func (k SubstateKey) String() string {
	if k.kind == KeyKindField {
		return fmt.Sprintf("field(%d)", k.body[0])
	}
	return "map(0x" + hex.EncodeToString([]byte(k.body)) + ")"
}
