// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package tx models the executable transaction fed into the runtime
// and the receipt coming out of it.
package tx

import (
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
)

// InstructionKind discriminates manifest instructions.
type InstructionKind uint8

const (
	// InstrCallFunction invokes a blueprint function.
	InstrCallFunction InstructionKind = iota
	// InstrCallMethod invokes a method on a node.
	InstrCallMethod
	// InstrTakeFromWorktop moves all worktop resources into the next
	// call's arguments.
	InstrTakeFromWorktop
	// InstrPutOnWorktop parks the previous call's returned resources
	// on the worktop.
	InstrPutOnWorktop
	// InstrAllocateAddress reserves one of the transaction's
	// pre-allocated node ids for use by a later instruction.
	InstrAllocateAddress
	// InstrAssertEpoch asserts the executing epoch window.
	InstrAssertEpoch
)

// Instruction is one step of the transaction manifest.
type Instruction struct {
	Kind InstructionKind

	// Call target, for InstrCallFunction/InstrCallMethod.
	Package   kestrel.NodeID
	Blueprint string
	Function  string
	Receiver  *kestrel.NodeID `rlp:"nil"`

	// Args is the encoded argument value of a call, wire form.
	Args []byte

	// Epoch window, for InstrAssertEpoch.
	ValidFrom  uint64
	ValidUntil uint64
}

// FeePayment declares how the transaction pays for execution.
type FeePayment struct {
	// NoFee marks a system transaction: metered but nothing owed.
	NoFee bool
	// CostUnitLimit is the cost unit budget.
	CostUnitLimit uint64
	// TipPercentage raises the effective cost unit price.
	TipPercentage uint16
}

// Transaction is a fully formed executable transaction.
type Transaction struct {
	body body

	cache struct {
		hash *kestrel.Bytes32
	}
}

type body struct {
	Instructions    []Instruction
	Blobs           [][]byte
	PreAllocatedIDs []kestrel.NodeID
	References      []kestrel.NodeID
	Nonce           uint64
	NoFee           bool
	CostUnitLimit   uint64
	TipPercentage   uint16
}

// Builder to make it easy to build a transaction.
type Builder struct {
	body body
}

// NewBuilder creates a builder with default fee payment.
func NewBuilder() *Builder {
	return &Builder{body: body{
		CostUnitLimit: kestrel.DefaultCostUnitLimit,
	}}
}

// Instruction appends an instruction.
func (b *Builder) Instruction(in Instruction) *Builder {
	b.body.Instructions = append(b.body.Instructions, in)
	return b
}

// CallFunction appends a function call instruction.
func (b *Builder) CallFunction(pkg kestrel.NodeID, blueprint, function string, args []byte) *Builder {
	return b.Instruction(Instruction{
		Kind:      InstrCallFunction,
		Package:   pkg,
		Blueprint: blueprint,
		Function:  function,
		Args:      args,
	})
}

// CallMethod appends a method call instruction.
func (b *Builder) CallMethod(receiver kestrel.NodeID, blueprint, function string, args []byte) *Builder {
	return b.Instruction(Instruction{
		Kind:      InstrCallMethod,
		Blueprint: blueprint,
		Function:  function,
		Receiver:  &receiver,
		Args:      args,
	})
}

// AssertEpoch appends an epoch window assertion.
func (b *Builder) AssertEpoch(validFrom, validUntil uint64) *Builder {
	return b.Instruction(Instruction{
		Kind:       InstrAssertEpoch,
		ValidFrom:  validFrom,
		ValidUntil: validUntil,
	})
}

// Blob appends a blob.
func (b *Builder) Blob(blob []byte) *Builder {
	b.body.Blobs = append(b.body.Blobs, blob)
	return b
}

// PreAllocatedID adds a pre-allocated node id.
func (b *Builder) PreAllocatedID(id kestrel.NodeID) *Builder {
	b.body.PreAllocatedIDs = append(b.body.PreAllocatedIDs, id)
	return b
}

// Reference pre-declares a global node the transaction may address.
func (b *Builder) Reference(id kestrel.NodeID) *Builder {
	b.body.References = append(b.body.References, id)
	return b
}

// Nonce sets the nonce.
func (b *Builder) Nonce(nonce uint64) *Builder {
	b.body.Nonce = nonce
	return b
}

// CostUnitLimit sets the cost unit budget.
func (b *Builder) CostUnitLimit(limit uint64) *Builder {
	b.body.CostUnitLimit = limit
	return b
}

// TipPercentage sets the tip.
func (b *Builder) TipPercentage(tip uint16) *Builder {
	b.body.TipPercentage = tip
	return b
}

// NoFee marks the transaction as a system transaction.
func (b *Builder) NoFee() *Builder {
	b.body.NoFee = true
	return b
}

// Build builds the transaction.
func (b *Builder) Build() *Transaction {
	return &Transaction{body: b.body}
}

// Hash returns the transaction hash, computed over the rlp encoded body.
func (t *Transaction) Hash() (hash kestrel.Bytes32) {
	if cached := t.cache.hash; cached != nil {
		return *cached
	}
	defer func() { t.cache.hash = &hash }()

	data, err := rlp.EncodeToBytes(&t.body)
	if err != nil {
		panic(errors.Wrap(err, "encode tx body"))
	}
	return kestrel.Blake2b(data)
}

// Instructions returns the manifest instructions.
func (t *Transaction) Instructions() []Instruction { return t.body.Instructions }

// Blobs returns the blob list keyed by blob hash.
func (t *Transaction) Blobs() map[kestrel.Bytes32][]byte {
	out := make(map[kestrel.Bytes32][]byte, len(t.body.Blobs))
	for _, b := range t.body.Blobs {
		out[kestrel.Blake2b(b)] = b
	}
	return out
}

// PreAllocatedIDs returns the pre-allocated node ids.
func (t *Transaction) PreAllocatedIDs() []kestrel.NodeID { return t.body.PreAllocatedIDs }

// References returns the pre-declared global references.
func (t *Transaction) References() []kestrel.NodeID { return t.body.References }

// FeePayment returns the fee payment declaration.
func (t *Transaction) FeePayment() FeePayment {
	return FeePayment{
		NoFee:         t.body.NoFee,
		CostUnitLimit: t.body.CostUnitLimit,
		TipPercentage: t.body.TipPercentage,
	}
}

// Balance is the rlp-encodable token amount stored in vault substates.
type Balance struct {
	Amount *uint256.Int
}
