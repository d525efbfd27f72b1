// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package sval implements the self-describing encoded value carried by
// substates and invocation payloads. A value is an opaque body plus the
// indexed-out sets of node references embedded in it: owned references,
// which assert exclusive ownership of another node, and global
// references, which are copyable read-only pointers.
package sval

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

// ErrDuplicateOwned is returned when a node id appears as an owned
// reference in more than one position of the same value.
var ErrDuplicateOwned = errors.New("duplicate owned reference")

// Value is an encoded value with its embedded references indexed.
// The zero value is not usable; construct through New/Decode/FromTyped.
type Value struct {
	body  []byte
	owned []kestrel.NodeID
	refs  []kestrel.NodeID
}

// envelope is the wire form of a value.
type envelope struct {
	Body  []byte
	Owned []kestrel.NodeID
	Refs  []kestrel.NodeID
}

// New creates a value from a raw body and its reference index.
// Owned references must be pairwise distinct.
func New(body []byte, owned, refs []kestrel.NodeID) (*Value, error) {
	seen := make(map[kestrel.NodeID]struct{}, len(owned))
	for _, id := range owned {
		if _, ok := seen[id]; ok {
			return nil, errors.WithMessage(ErrDuplicateOwned, id.AbbrevString())
		}
		seen[id] = struct{}{}
	}
	return &Value{
		body:  body,
		owned: append([]kestrel.NodeID(nil), owned...),
		refs:  append([]kestrel.NodeID(nil), refs...),
	}, nil
}

// FromTyped encodes a plain Go value carrying no references.
func FromTyped(v interface{}) *Value {
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		panic(errors.WithMessage(err, "encode typed value"))
	}
	return &Value{body: body}
}

// FromTypedWithRefs encodes a plain Go value together with a reference index.
func FromTypedWithRefs(v interface{}, owned, refs []kestrel.NodeID) (*Value, error) {
	body, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, errors.WithMessage(err, "encode typed value")
	}
	return New(body, owned, refs)
}

// Decode parses the wire form of a value.
func Decode(data []byte) (*Value, error) {
	var env envelope
	if err := rlp.DecodeBytes(data, &env); err != nil {
		return nil, errors.WithMessage(err, "decode value")
	}
	return New(env.Body, env.Owned, env.Refs)
}

// Encode renders the wire form of the value.
func (v *Value) Encode() []byte {
	data, err := rlp.EncodeToBytes(&envelope{v.body, v.owned, v.refs})
	if err != nil {
		panic(errors.WithMessage(err, "encode value"))
	}
	return data
}

// DecodeBody decodes the body into a plain Go value.
func (v *Value) DecodeBody(into interface{}) error {
	return rlp.DecodeBytes(v.body, into)
}

// Body returns the raw body.
func (v *Value) Body() []byte { return v.body }

// Owned returns the owned references in order of appearance.
func (v *Value) Owned() []kestrel.NodeID {
	return append([]kestrel.NodeID(nil), v.owned...)
}

// References returns the global references.
func (v *Value) References() []kestrel.NodeID {
	return append([]kestrel.NodeID(nil), v.refs...)
}

// Size returns the encoded size of the value.
func (v *Value) Size() int {
	return len(v.Encode())
}

// String implements the stringer interface.
func (v *Value) String() string {
	return fmt.Sprintf("value(%d bytes, %d owned, %d refs)", len(v.body), len(v.owned), len(v.refs))
}
