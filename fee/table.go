// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package fee implements deterministic execution metering: a static
// fee table, and a system-loan based fee reserve that escrows locked
// vault payments and royalties.
package fee

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Table prices kernel operations in cost units. The values are policy,
// tuned empirically; they are configuration, not protocol constants.
type Table struct {
	TxBase uint64 `yaml:"txBase"`

	Invoke        uint64 `yaml:"invoke"`
	InvokePerByte uint64 `yaml:"invokePerByte"`

	CreateNode uint64 `yaml:"createNode"`
	DropNode   uint64 `yaml:"dropNode"`

	LockSubstate uint64 `yaml:"lockSubstate"`
	ReadSubstate uint64 `yaml:"readSubstate"`
	ReadPerByte  uint64 `yaml:"readPerByte"`

	WriteSubstate uint64 `yaml:"writeSubstate"`
	WritePerByte  uint64 `yaml:"writePerByte"`

	DropLock uint64 `yaml:"dropLock"`

	InstantiatePerByte uint64 `yaml:"instantiatePerByte"`
}

// DefaultTable returns the default fee table.
func DefaultTable() Table {
	return Table{
		TxBase:             50_000,
		Invoke:             5_000,
		InvokePerByte:      10,
		CreateNode:         10_000,
		DropNode:           10_000,
		LockSubstate:       1_000,
		ReadSubstate:       1_000,
		ReadPerByte:        10,
		WriteSubstate:      1_000,
		WritePerByte:       30,
		DropLock:           1_000,
		InstantiatePerByte: 500,
	}
}

// LoadTable reads a fee table from YAML. Fields absent from the input
// keep their default values.
func LoadTable(r io.Reader) (Table, error) {
	tab := DefaultTable()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tab); err != nil {
		return Table{}, errors.Wrap(err, "load fee table")
	}
	return tab, nil
}

// LoadTableFile reads a fee table from a YAML file.
func LoadTableFile(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, errors.Wrap(err, "load fee table")
	}
	defer f.Close()
	return LoadTable(f)
}

// InvokeCost prices a nested invocation with the given input size.
func (t *Table) InvokeCost(inputSize int) uint64 {
	return t.Invoke + t.InvokePerByte*uint64(inputSize)
}

// ReadCost prices a substate read of the given size.
func (t *Table) ReadCost(size int) uint64 {
	return t.ReadSubstate + t.ReadPerByte*uint64(size)
}

// WriteCost prices a substate write of the given size.
func (t *Table) WriteCost(size int) uint64 {
	return t.WriteSubstate + t.WritePerByte*uint64(size)
}

// InstantiateCost prices guest module instantiation.
func (t *Table) InstantiateCost(codeSize int) uint64 {
	return t.InstantiatePerByte * uint64(codeSize)
}
