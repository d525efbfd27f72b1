// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/tx"
	"github.com/kestrel-lab/kestrel/vm"
)

const (
	processorBlueprint = "TransactionProcessor"
	processorFunction  = "run"
)

// TransactionProcessorPackage is the well-known package publishing the
// transaction processor blueprint. Its root invocation drives the
// manifest instructions.
var TransactionProcessorPackage = wellKnownNode(kestrel.EntityGlobalPackage, 1)

func wellKnownNode(et kestrel.EntityType, n byte) kestrel.NodeID {
	var id kestrel.NodeID
	id[0] = byte(et)
	id[len(id)-1] = n
	return id
}

// EpochNotYetValidError rejects a transaction executed before its
// validity window opens.
type EpochNotYetValidError struct {
	ValidFrom    uint64
	CurrentEpoch uint64
}

func (e *EpochNotYetValidError) Error() string {
	return fmt.Sprintf("transaction not yet valid: valid from epoch %d, current epoch %d", e.ValidFrom, e.CurrentEpoch)
}

// EpochNoLongerValidError rejects a transaction executed after its
// validity window closed.
type EpochNoLongerValidError struct {
	ValidUntil   uint64
	CurrentEpoch uint64
}

func (e *EpochNoLongerValidError) Error() string {
	return fmt.Sprintf("transaction no longer valid: valid until epoch %d, current epoch %d", e.ValidUntil, e.CurrentEpoch)
}

// processor interprets the transaction manifest at call depth 0 and
// forwards every nested invocation to the real guest engine.
type processor struct {
	inner        vm.Engine
	trans        *tx.Transaction
	currentEpoch uint64

	outputs [][]byte
}

func newProcessor(inner vm.Engine, trans *tx.Transaction, currentEpoch uint64) *processor {
	return &processor{
		inner:        inner,
		trans:        trans,
		currentEpoch: currentEpoch,
	}
}

// Invoke implements vm.Engine.
func (p *processor) Invoke(ctx *vm.Context, api vm.HostAPI) (*sval.Value, error) {
	if ctx.Depth == 0 && ctx.Actor.Package == TransactionProcessorPackage {
		return p.run(api)
	}
	return p.inner.Invoke(ctx, api)
}

func (p *processor) run(api vm.HostAPI) (*sval.Value, error) {
	// Resources returned by calls are parked on the worktop and later
	// folded into a call's arguments. The worktop holds plain node ids;
	// every node on it stays owned by this frame, so anything left at
	// the end of the manifest trips the frame's leak check.
	var (
		worktop   []kestrel.NodeID
		pending   []kestrel.NodeID
		lastOwned []kestrel.NodeID
	)

	for i, instr := range p.trans.Instructions() {
		switch instr.Kind {
		case tx.InstrAssertEpoch:
			if p.currentEpoch < instr.ValidFrom {
				return nil, &EpochNotYetValidError{ValidFrom: instr.ValidFrom, CurrentEpoch: p.currentEpoch}
			}
			if p.currentEpoch > instr.ValidUntil {
				return nil, &EpochNoLongerValidError{ValidUntil: instr.ValidUntil, CurrentEpoch: p.currentEpoch}
			}
			p.outputs = append(p.outputs, nil)

		case tx.InstrCallFunction, tx.InstrCallMethod:
			args, err := decodeArgs(instr.Args)
			if err != nil {
				return nil, errors.WithMessagef(err, "instruction %d", i)
			}
			if len(pending) > 0 {
				owned := append(append([]kestrel.NodeID(nil), args.Owned()...), pending...)
				args, err = sval.New(args.Body(), owned, args.References())
				if err != nil {
					return nil, errors.WithMessagef(err, "instruction %d", i)
				}
				pending = nil
			}
			out, err := api.Invoke(vm.Actor{
				Package:   instr.Package,
				Blueprint: instr.Blueprint,
				Function:  instr.Function,
				Receiver:  instr.Receiver,
			}, args)
			if err != nil {
				return nil, errors.WithMessagef(err, "instruction %d", i)
			}
			lastOwned = out.Owned()
			p.outputs = append(p.outputs, out.Encode())

		case tx.InstrPutOnWorktop:
			worktop = append(worktop, lastOwned...)
			lastOwned = nil
			p.outputs = append(p.outputs, nil)

		case tx.InstrTakeFromWorktop:
			pending = append(pending, worktop...)
			worktop = nil
			p.outputs = append(p.outputs, nil)

		case tx.InstrAllocateAddress:
			// pre-allocated ids are claimed lazily when a guest creates
			// the node, nothing to do here
			p.outputs = append(p.outputs, nil)

		default:
			return nil, errors.Errorf("instruction %d: unknown kind %d", i, instr.Kind)
		}
	}
	return nil, nil
}

func decodeArgs(raw []byte) (*sval.Value, error) {
	if len(raw) == 0 {
		return sval.New(nil, nil, nil)
	}
	return sval.Decode(raw)
}
