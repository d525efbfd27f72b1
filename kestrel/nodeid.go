// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kestrel

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// NodeIDLength length of a node id in bytes.
	// The leading byte encodes the entity type, the remaining bytes are
	// derived from the originating transaction hash.
	NodeIDLength = 27
)

// EntityType is the leading byte of a node id. Values with the high bit
// set denote internal (owned, non-addressable-from-outside) entities.
type EntityType byte

const (
	EntityGlobalPackage   EntityType = 0x0d
	EntityGlobalComponent EntityType = 0x0c
	EntityGlobalResource  EntityType = 0x5d

	EntityInternalComponent EntityType = 0xf8
	EntityInternalKVStore   EntityType = 0xb0
	EntityInternalVault     EntityType = 0x58 | 0x80
	EntityInternalBucket    EntityType = 0xf1
	EntityInternalProof     EntityType = 0xf2
)

// IsGlobal returns whether entities of this type are globally addressable.
func (et EntityType) IsGlobal() bool {
	return et&0x80 == 0
}

// IsInternal returns whether entities of this type must always be owned
// by another node or a call frame.
func (et EntityType) IsInternal() bool {
	return !et.IsGlobal()
}

// NodeID identifies an addressable unit of ledger state.
type NodeID [NodeIDLength]byte

// NewNodeID derives a node id of the given entity type from a transaction
// hash and a per-transaction counter. Derivation is deterministic yet
// collision resistant across transactions.
func NewNodeID(et EntityType, txHash Bytes32, counter uint32) NodeID {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], counter)
	h := Blake2b(txHash.Bytes(), buf[:])

	var id NodeID
	id[0] = byte(et)
	copy(id[1:], h[:NodeIDLength-1])
	return id
}

// BytesToNodeID converts a byte slice into a node id.
// Short input is zero extended from the right.
func BytesToNodeID(b []byte) NodeID {
	var id NodeID
	copy(id[:], b)
	return id
}

// EntityType returns the entity type encoded in the leading byte.
func (id NodeID) EntityType() EntityType {
	return EntityType(id[0])
}

// IsGlobal returns whether the node is globally addressable.
func (id NodeID) IsGlobal() bool {
	return id.EntityType().IsGlobal()
}

// Bytes returns the byte slice form of the node id.
func (id NodeID) Bytes() []byte {
	return id[:]
}

// String implements the stringer interface.
func (id NodeID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// AbbrevString returns abbrev string presentation.
func (id NodeID) AbbrevString() string {
	return fmt.Sprintf("0x%x…%x", id[:4], id[NodeIDLength-4:])
}

// ParseNodeID converts a string presented node id into NodeID type.
func ParseNodeID(s string) (NodeID, error) {
	if len(s) == NodeIDLength*2 {
	} else if len(s) == NodeIDLength*2+2 {
		if strings.ToLower(s[:2]) != "0x" {
			return NodeID{}, errors.New("invalid prefix")
		}
		s = s[2:]
	} else {
		return NodeID{}, errors.New("invalid length")
	}

	var id NodeID
	if _, err := hex.Decode(id[:], []byte(s)); err != nil {
		return NodeID{}, err
	}
	return id, nil
}
