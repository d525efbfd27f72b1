// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package tx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/tx"
)

func TestBuilder(t *testing.T) {
	pkg := kestrel.NewNodeID(kestrel.EntityGlobalPackage, kestrel.Blake2b([]byte("pkg")), 0)
	comp := kestrel.NewNodeID(kestrel.EntityGlobalComponent, kestrel.Blake2b([]byte("comp")), 0)

	trans := tx.NewBuilder().
		AssertEpoch(10, 20).
		CallFunction(pkg, "Faucet", "new", nil).
		CallMethod(comp, "Faucet", "drip", []byte("args")).
		Reference(comp).
		Blob([]byte("code")).
		Nonce(7).
		CostUnitLimit(1_000_000).
		TipPercentage(5).
		Build()

	instrs := trans.Instructions()
	assert.Len(t, instrs, 3)
	assert.Equal(t, tx.InstrAssertEpoch, instrs[0].Kind)
	assert.Equal(t, uint64(10), instrs[0].ValidFrom)
	assert.Equal(t, pkg, instrs[1].Package)
	assert.Nil(t, instrs[1].Receiver)
	assert.Equal(t, comp, *instrs[2].Receiver)

	assert.Equal(t, []kestrel.NodeID{comp}, trans.References())

	fp := trans.FeePayment()
	assert.False(t, fp.NoFee)
	assert.Equal(t, uint64(1_000_000), fp.CostUnitLimit)
	assert.Equal(t, uint16(5), fp.TipPercentage)

	blobs := trans.Blobs()
	assert.Len(t, blobs, 1)
	assert.Equal(t, []byte("code"), blobs[kestrel.Blake2b([]byte("code"))])
}

func TestTransactionHash(t *testing.T) {
	build := func(nonce uint64) *tx.Transaction {
		return tx.NewBuilder().Nonce(nonce).Build()
	}

	t1, t2 := build(1), build(1)
	assert.Equal(t, t1.Hash(), t2.Hash())
	// cached hash is stable
	assert.Equal(t, t1.Hash(), t1.Hash())
	assert.NotEqual(t, t1.Hash(), build(2).Hash())
}

func TestDefaultCostUnitLimit(t *testing.T) {
	trans := tx.NewBuilder().Build()
	assert.Equal(t, uint64(kestrel.DefaultCostUnitLimit), trans.FeePayment().CostUnitLimit)
}
