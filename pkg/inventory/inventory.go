// Package inventory tracks which token contracts a holder has items of, and which item ids of each
// token the holder keeps. Balances and share accounting live elsewhere.
package inventory

import (
	"context"
	"slices"

	"github.com/argus-labs/denseset/pkg/denseset"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type Inventory struct {
	buf    *storage.Buffer
	tokens *denseset.Store[common.Address]
	items  *denseset.Store[*uint256.Int]
}

// New returns an inventory whose sets live in buf. opts apply to both underlying stores.
func New(buf *storage.Buffer, opts ...denseset.Option) *Inventory {
	return &Inventory{
		buf:    buf,
		tokens: denseset.NewVariable(buf, denseset.AddressCodec{}, append(slices.Clip(opts), denseset.WithNamespace("inventory.token"))...),
		items:  denseset.NewVariable(buf, denseset.Uint256Codec{}, append(slices.Clip(opts), denseset.WithNamespace("inventory.item"))...),
	}
}

func tokenSet(holder common.Address) setid.SetID {
	return setid.Derive("inventory.tokens", holder)
}

func itemSet(holder, token common.Address) setid.SetID {
	return setid.Derive("inventory.items", holder, token)
}

// Deposit records items of token as held by holder and returns one change per item.
func (inv *Inventory) Deposit(
	ctx context.Context, holder, token common.Address, items ...*uint256.Int,
) ([]denseset.Change[*uint256.Int], error) {
	var changes []denseset.Change[*uint256.Int]
	err := inv.buf.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if changes, err = inv.items.AddBatch(ctx, itemSet(holder, token), items); err != nil || len(items) == 0 {
			return err
		}
		_, err = inv.tokens.Add(ctx, tokenSet(holder), token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Withdraw removes items of token from holder. Once the holder keeps no item of token, the token is
// dropped from the holder's token set.
func (inv *Inventory) Withdraw(
	ctx context.Context, holder, token common.Address, items ...*uint256.Int,
) ([]denseset.Change[*uint256.Int], error) {
	owner, err := setid.CallerFrom(ctx)
	if err != nil {
		return nil, err
	}

	var changes []denseset.Change[*uint256.Int]
	err = inv.buf.Atomic(ctx, func(ctx context.Context) error {
		var err error
		if changes, err = inv.items.RemoveBatch(ctx, itemSet(holder, token), items); err != nil {
			return err
		}
		left, err := inv.items.Len(ctx, owner, itemSet(holder, token))
		if err != nil || left > 0 {
			return err
		}
		_, err = inv.tokens.Remove(ctx, tokenSet(holder), token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Tokens returns the token contracts holder keeps items of.
func (inv *Inventory) Tokens(ctx context.Context, owner setid.Owner, holder common.Address) ([]common.Address, error) {
	return inv.tokens.GetAll(ctx, owner, tokenSet(holder))
}

// Items returns the item ids of token kept by holder.
func (inv *Inventory) Items(
	ctx context.Context, owner setid.Owner, holder, token common.Address,
) ([]*uint256.Int, error) {
	return inv.items.GetAll(ctx, owner, itemSet(holder, token))
}

func (inv *Inventory) ItemCount(ctx context.Context, owner setid.Owner, holder, token common.Address) (uint64, error) {
	return inv.items.Len(ctx, owner, itemSet(holder, token))
}

// Holds reports whether holder keeps item of token.
func (inv *Inventory) Holds(
	ctx context.Context, owner setid.Owner, holder, token common.Address, item *uint256.Int,
) (bool, error) {
	return inv.items.Contains(ctx, owner, itemSet(holder, token), item)
}
