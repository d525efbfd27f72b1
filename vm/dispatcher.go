// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package vm

import (
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/sval"
)

// ErrBlueprintFunctionNotFound is returned when the dispatcher has no
// registration for the invoked actor.
var ErrBlueprintFunctionNotFound = errors.New("blueprint function not found")

// Func is an in-process blueprint function.
type Func func(ctx *Context, api HostAPI) (*sval.Value, error)

// Dispatcher is an Engine routing invocations to registered in-process
// functions, keyed by blueprint and function name. It serves built-in
// blueprints and tests; real guest code runs behind the same Engine
// contract.
type Dispatcher struct {
	funcs map[string]Func
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{funcs: make(map[string]Func)}
}

// Register binds a blueprint function.
func (d *Dispatcher) Register(blueprint, function string, fn Func) *Dispatcher {
	d.funcs[blueprint+"/"+function] = fn
	return d
}

// Invoke implements Engine.
func (d *Dispatcher) Invoke(ctx *Context, api HostAPI) (*sval.Value, error) {
	fn, ok := d.funcs[ctx.Actor.Blueprint+"/"+ctx.Actor.Function]
	if !ok {
		return nil, errors.WithMessage(ErrBlueprintFunctionNotFound, ctx.Actor.String())
	}
	return fn(ctx, api)
}
