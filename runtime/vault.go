// Copyright (c) 2026 The Kestrel developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package runtime

import (
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/kestrel-lab/kestrel/fee"
	"github.com/kestrel-lab/kestrel/kestrel"
	"github.com/kestrel-lab/kestrel/sval"
	"github.com/kestrel-lab/kestrel/track"
	"github.com/kestrel-lab/kestrel/tx"
)

// balanceFieldKey locates a vault's balance substate.
var balanceFieldKey = kestrel.FieldKey(0)

// creditVault adds amount to a vault's balance substate, creating the
// substate if the vault has never held funds.
func creditVault(trk *track.Track, vault kestrel.NodeID, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	h, err := trk.AcquireLock(vault, kestrel.PartitionField, balanceFieldKey, track.FlagMutable|track.FlagCreate)
	if err != nil {
		return errors.WithMessagef(err, "credit vault %v", vault.AbbrevString())
	}
	defer trk.Release(h) // nolint:errcheck

	raw, err := trk.Current(h)
	if err != nil {
		return err
	}
	var bal tx.Balance
	if raw != nil {
		v, err := sval.Decode(raw)
		if err != nil {
			return errors.WithMessagef(err, "vault %v balance", vault.AbbrevString())
		}
		if err := v.DecodeBody(&bal); err != nil {
			return errors.WithMessagef(err, "vault %v balance", vault.AbbrevString())
		}
	}
	if bal.Amount == nil {
		bal.Amount = new(uint256.Int)
	}
	bal.Amount = new(uint256.Int).Add(bal.Amount, amount)
	return trk.WriteUnmetered(h, sval.FromTyped(&bal).Encode())
}

// settleFees pays accrued royalties, then distributes the total cost
// over the locked fees, newest lock first. Contingent locks are charged
// only on success. Escrow not needed for payment is refunded to its
// vault. The returned map holds the net payment taken from each vault.
func settleFees(trk *track.Track, summary *fee.Summary, success bool) (map[kestrel.NodeID]*uint256.Int, error) {
	for _, r := range summary.Royalties {
		if err := creditVault(trk, r.Recipient, r.Amount); err != nil {
			return nil, err
		}
	}

	required := new(uint256.Int).Add(summary.ExecutionCost, summary.RoyaltyCost)
	payments := make(map[kestrel.NodeID]*uint256.Int)
	for i := len(summary.LockedFees) - 1; i >= 0; i-- {
		lf := summary.LockedFees[i]

		taken := new(uint256.Int)
		if !lf.Contingent || success {
			if required.Cmp(lf.Amount) >= 0 {
				taken.Set(lf.Amount)
			} else {
				taken.Set(required)
			}
			required.Sub(required, taken)
		}
		if !taken.IsZero() {
			if p, ok := payments[lf.Vault]; ok {
				p.Add(p, taken)
			} else {
				payments[lf.Vault] = taken
			}
		}

		refund := new(uint256.Int).Sub(lf.Amount, taken)
		if err := creditVault(trk, lf.Vault, refund); err != nil {
			return nil, err
		}
	}
	return payments, nil
}
