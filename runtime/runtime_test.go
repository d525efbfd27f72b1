// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/kv"
	"github.com/kestrel-lab/kestrel/runtime"
	"github.com/kestrel-lab/kestrel/substate"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/track"
	"github.com/kestrel-lab/kestrel/tx"
	"github.com/kestrel-lab/kestrel/vm"
)

var (
	faucetPkg = kestrel.NewNodeID(kestrel.EntityGlobalPackage, kestrel.Blake2b([]byte("faucet pkg")), 0)
	faucetID  = kestrel.NewNodeID(kestrel.EntityGlobalComponent, kestrel.Blake2b([]byte("faucet comp")), 0)

	faucetSupply = uint256.NewInt(1_000_000_000_000_000_000)
)

func testFeeConfig() runtime.FeeConfig {
	return runtime.FeeConfig{
		CostUnitPrice: uint256.NewInt(10),
		SystemLoan:    1_000_000,
	}
}

// faucetVault resolves the vault owned by a faucet component.
func faucetVault(api vm.HostAPI, comp kestrel.NodeID) (kestrel.NodeID, error) {
	h, err := api.LockSubstate(comp, kestrel.PartitionField, kestrel.FieldKey(0), 0)
	if err != nil {
		return kestrel.NodeID{}, err
	}
	defer api.DropLock(h) // nolint:errcheck
	v, err := api.ReadSubstate(h)
	if err != nil {
		return kestrel.NodeID{}, err
	}
	return v.Owned()[0], nil
}

func testEngine() vm.Engine {
	d := vm.NewDispatcher()

	d.Register("Faucet", "new", func(ctx *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		var compID kestrel.NodeID
		if err := ctx.Input.DecodeBody(&compID); err != nil {
			return nil, err
		}
		vaultID, err := api.AllocateNodeID(kestrel.EntityInternalVault)
		if err != nil {
			return nil, err
		}
		if err := api.CreateNode(vaultID, vm.NodeSubstates{
			kestrel.PartitionField: {
				kestrel.FieldKey(0): sval.FromTyped(&tx.Balance{Amount: faucetSupply}),
			},
		}); err != nil {
			return nil, err
		}
		state, err := sval.New(nil, []kestrel.NodeID{vaultID}, nil)
		if err != nil {
			return nil, err
		}
		if err := api.CreateNode(compID, vm.NodeSubstates{
			kestrel.PartitionField: {kestrel.FieldKey(0): state},
		}); err != nil {
			return nil, err
		}
		return nil, api.GlobalizeNode(compID)
	})

	d.Register("Faucet", "lock_fee", func(ctx *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		var amt tx.Balance
		if err := ctx.Input.DecodeBody(&amt); err != nil {
			return nil, err
		}
		vault, err := faucetVault(api, *ctx.Actor.Receiver)
		if err != nil {
			return nil, err
		}

		// the balance deduction must survive a later revert
		vh, err := api.LockSubstate(vault, kestrel.PartitionField, kestrel.FieldKey(0), track.FlagMutable|track.FlagForceWrite)
		if err != nil {
			return nil, err
		}
		v, err := api.ReadSubstate(vh)
		if err != nil {
			return nil, err
		}
		var bal tx.Balance
		if err := v.DecodeBody(&bal); err != nil {
			return nil, err
		}
		if bal.Amount.Cmp(amt.Amount) < 0 {
			api.DropLock(vh) // nolint:errcheck
			return nil, errors.New("insufficient vault balance")
		}
		bal.Amount = new(uint256.Int).Sub(bal.Amount, amt.Amount)
		if err := api.WriteSubstate(vh, sval.FromTyped(&bal)); err != nil {
			return nil, err
		}
		if err := api.DropLock(vh); err != nil {
			return nil, err
		}
		return nil, api.LockFee(vault, amt.Amount, false)
	})

	d.Register("Faucet", "ping", func(_ *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		api.EmitLog("info", "ping")
		return nil, api.EmitEvent("Pinged", nil)
	})

	d.Register("Faucet", "vandalize", func(ctx *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		h, err := api.LockSubstate(*ctx.Actor.Receiver, kestrel.PartitionField, kestrel.FieldKey(1), track.FlagMutable|track.FlagCreate)
		if err != nil {
			return nil, err
		}
		if err := api.WriteSubstate(h, sval.FromTyped([]byte("graffiti"))); err != nil {
			return nil, err
		}
		if err := api.DropLock(h); err != nil {
			return nil, err
		}
		api.EmitLog("warn", "about to fail")
		return nil, errors.New("deliberate failure")
	})

	d.Register("Mint", "bucket", func(_ *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		id, err := api.AllocateNodeID(kestrel.EntityInternalBucket)
		if err != nil {
			return nil, err
		}
		if err := api.CreateNode(id, nil); err != nil {
			return nil, err
		}
		return sval.New(nil, []kestrel.NodeID{id}, nil)
	})

	d.Register("Sink", "burn", func(ctx *vm.Context, api vm.HostAPI) (*sval.Value, error) {
		for _, id := range ctx.Input.Owned() {
			if _, err := api.DropNode(id); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})

	return d
}

// newWorld creates a store seeded with a faucet through a no-fee
// genesis transaction.
func newWorld(t *testing.T, epoch uint64, config runtime.Config) (*substate.LevelStore, *runtime.Runtime) {
	db, err := kv.NewMem()
	require.Nil(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := substate.NewLevelStore(db, 1024)
	require.Nil(t, err)

	rt := runtime.New(store, testEngine(), epoch, testFeeConfig(), config)

	genesis := tx.NewBuilder().
		NoFee().
		PreAllocatedID(faucetID).
		CallFunction(faucetPkg, "Faucet", "new", sval.FromTyped(faucetID).Encode()).
		Build()

	receipt, err := rt.ExecuteAndCommit(genesis)
	require.Nil(t, err)
	require.True(t, receipt.Succeeded(), "genesis: %+v", receipt)
	return store, rt
}

func readBalance(t *testing.T, store substate.Store, vault kestrel.NodeID) *uint256.Int {
	raw, ok, err := store.Get(vault, kestrel.PartitionField, kestrel.FieldKey(0))
	require.Nil(t, err)
	require.True(t, ok)
	v, err := sval.Decode(raw)
	require.Nil(t, err)
	var bal tx.Balance
	require.Nil(t, v.DecodeBody(&bal))
	return bal.Amount
}

func storedVault(t *testing.T, store substate.Store) kestrel.NodeID {
	raw, ok, err := store.Get(faucetID, kestrel.PartitionField, kestrel.FieldKey(0))
	require.Nil(t, err)
	require.True(t, ok)
	v, err := sval.Decode(raw)
	require.Nil(t, err)
	return v.Owned()[0]
}

func lockFeeArgs(amount uint64) []byte {
	return sval.FromTyped(&tx.Balance{Amount: uint256.NewInt(amount)}).Encode()
}

func TestGenesis(t *testing.T) {
	store, _ := newWorld(t, 1, runtime.DefaultConfig())

	vault := storedVault(t, store)
	assert.Equal(t, faucetSupply, readBalance(t, store, vault))
}

func TestCommitSuccess(t *testing.T) {
	store, rt := newWorld(t, 1, runtime.DefaultConfig())
	vault := storedVault(t, store)

	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000)).
		CallMethod(faucetID, "Faucet", "ping", nil).
		Build()

	receipt, err := rt.ExecuteAndCommit(trans)
	require.Nil(t, err)
	require.True(t, receipt.Succeeded(), "receipt: %+v", receipt)

	commit := receipt.Commit
	assert.Len(t, commit.Outputs, 2)
	assert.Len(t, commit.Events, 1)
	assert.Equal(t, "Pinged", commit.Events[0].Name)
	assert.Len(t, commit.Logs, 1)

	cost := commit.FeeSummary.TotalCost()
	assert.False(t, cost.IsZero())
	assert.True(t, commit.FeeSummary.BadDebt.IsZero())
	assert.Equal(t, cost, commit.FeePayments[vault])

	// unused escrow was refunded: the vault paid exactly the cost
	want := new(uint256.Int).Sub(faucetSupply, cost)
	assert.Equal(t, want, readBalance(t, store, vault))

	assert.Greater(t, receipt.Metrics.SubstateReadCount, 0)
	assert.Greater(t, receipt.Metrics.SubstateWriteCount, 0)
	assert.Greater(t, receipt.Metrics.MaxInvokePayload, 0)
}

func TestRejectWithoutFee(t *testing.T) {
	store, rt := newWorld(t, 1, runtime.DefaultConfig())
	vault := storedVault(t, store)

	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "ping", nil).
		Build()

	receipt, err := rt.ExecuteAndCommit(trans)
	require.Nil(t, err)
	require.NotNil(t, receipt.Reject)
	assert.Contains(t, receipt.Reject.Reason, "loan not repaid")

	// rejection leaves no trace
	assert.Equal(t, faucetSupply, readBalance(t, store, vault))
}

func TestCommitFailure(t *testing.T) {
	store, rt := newWorld(t, 1, runtime.DefaultConfig())
	vault := storedVault(t, store)

	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000)).
		CallMethod(faucetID, "Faucet", "vandalize", nil).
		Build()

	receipt, err := rt.ExecuteAndCommit(trans)
	require.Nil(t, err)
	require.True(t, receipt.Committed())
	require.False(t, receipt.Succeeded())

	commit := receipt.Commit
	assert.Contains(t, commit.FailureReason, "deliberate failure")
	assert.Empty(t, commit.Events)
	assert.Empty(t, commit.Outputs)
	// logs survive a failed commit
	assert.Len(t, commit.Logs, 1)

	// the vandalized substate was reverted
	_, ok, err := store.Get(faucetID, kestrel.PartitionField, kestrel.FieldKey(1))
	require.Nil(t, err)
	assert.False(t, ok)

	// consumed fees are still charged
	cost := commit.FeeSummary.TotalCost()
	assert.False(t, cost.IsZero())
	want := new(uint256.Int).Sub(faucetSupply, cost)
	assert.Equal(t, want, readBalance(t, store, vault))
}

func TestEpochValidity(t *testing.T) {
	manifest := func() *tx.Builder {
		return tx.NewBuilder().
			Reference(faucetID).
			AssertEpoch(100, 200).
			CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000))
	}

	_, rt := newWorld(t, 50, runtime.DefaultConfig())
	receipt := rt.ExecuteTransaction(manifest().Build())
	require.NotNil(t, receipt.Reject)
	assert.Contains(t, receipt.Reject.Reason, "not yet valid")

	_, rt = newWorld(t, 300, runtime.DefaultConfig())
	receipt = rt.ExecuteTransaction(manifest().Build())
	require.NotNil(t, receipt.Reject)
	assert.Contains(t, receipt.Reject.Reason, "no longer valid")

	_, rt = newWorld(t, 150, runtime.DefaultConfig())
	receipt = rt.ExecuteTransaction(manifest().Build())
	assert.True(t, receipt.Succeeded(), "receipt: %+v", receipt)
}

func TestAbortWhenLoanRepaid(t *testing.T) {
	config := runtime.DefaultConfig()
	config.AbortWhenLoanRepaid = true

	_, rt := newWorld(t, 1, config)
	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000)).
		CallMethod(faucetID, "Faucet", "ping", nil).
		Build()

	receipt := rt.ExecuteTransaction(trans)
	require.NotNil(t, receipt.Abort)
	assert.NotEmpty(t, receipt.Abort.Reason)
}

func TestWorktop(t *testing.T) {
	_, rt := newWorld(t, 1, runtime.DefaultConfig())

	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000)).
		CallFunction(faucetPkg, "Mint", "bucket", nil).
		Instruction(tx.Instruction{Kind: tx.InstrPutOnWorktop}).
		Instruction(tx.Instruction{Kind: tx.InstrTakeFromWorktop}).
		CallFunction(faucetPkg, "Sink", "burn", nil).
		Build()

	receipt := rt.ExecuteTransaction(trans)
	assert.True(t, receipt.Succeeded(), "receipt: %+v", receipt)
}

func TestWorktopLeak(t *testing.T) {
	_, rt := newWorld(t, 1, runtime.DefaultConfig())

	// the minted bucket is left on the worktop
	trans := tx.NewBuilder().
		Reference(faucetID).
		CallMethod(faucetID, "Faucet", "lock_fee", lockFeeArgs(1_000_000_000)).
		CallFunction(faucetPkg, "Mint", "bucket", nil).
		Instruction(tx.Instruction{Kind: tx.InstrPutOnWorktop}).
		Build()

	receipt := rt.ExecuteTransaction(trans)
	require.True(t, receipt.Committed())
	assert.False(t, receipt.Succeeded())
	assert.Contains(t, receipt.Commit.FailureReason, "dangling")
}
