// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package substate

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

// EncodeKey renders the flat db key of a substate location:
// node id || partition || key kind || key body.
// The prefix is fixed length, so the encoding is unambiguous and
// preserves (node, partition) grouping under bytewise ordering.
func EncodeKey(loc Location) []byte {
	key := loc.Key.Encode()
	out := make([]byte, 0, kestrel.NodeIDLength+1+len(key))
	out = append(out, loc.Node.Bytes()...)
	out = append(out, byte(loc.Partition))
	return append(out, key...)
}

// DecodeKey is the inverse of EncodeKey.
func DecodeKey(b []byte) (Location, error) {
	if len(b) < kestrel.NodeIDLength+1+2 {
		return Location{}, errors.New("substate db key too short")
	}
	key, err := kestrel.DecodeSubstateKey(b[kestrel.NodeIDLength+1:])
	if err != nil {
		return Location{}, err
	}
	return Location{
		Node:      kestrel.BytesToNodeID(b[:kestrel.NodeIDLength]),
		Partition: kestrel.PartitionNumber(b[kestrel.NodeIDLength]),
		Key:       key,
	}, nil
}
