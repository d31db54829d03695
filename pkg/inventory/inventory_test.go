package inventory_test

import (
	"context"
	"testing"

	"github.com/argus-labs/denseset/pkg/inventory"
	"github.com/argus-labs/denseset/pkg/setid"
	"github.com/argus-labs/denseset/pkg/storage"
	"github.com/argus-labs/denseset/pkg/testutils"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	system = setid.Owner{0x1e}
	player = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	sword  = common.HexToAddress("0x00000000000000000000000000000000000005d0")
	potion = common.HexToAddress("0x000000000000000000000000000000000000090f")
)

func newInventory(t *testing.T) (*inventory.Inventory, context.Context) {
	t.Helper()
	buf := storage.NewBuffer(storage.NewTMDBStorage(testutils.NewMemDB(t)))
	return inventory.New(buf), setid.WithCaller(context.Background(), system)
}

func TestInventory_DepositAndWithdraw(t *testing.T) {
	t.Parallel()
	inv, ctx := newInventory(t)

	changes, err := inv.Deposit(ctx, player, sword, uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(1))
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.False(t, changes[2].Applied)

	_, err = inv.Deposit(ctx, player, potion, uint256.NewInt(0))
	require.NoError(t, err)

	tokens, err := inv.Tokens(ctx, system, player)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{sword, potion}, tokens)

	ok, err := inv.Holds(ctx, system, player, potion, uint256.NewInt(0))
	require.NoError(t, err)
	assert.True(t, ok, "item id zero is legal")

	_, err = inv.Withdraw(ctx, player, sword, uint256.NewInt(1))
	require.NoError(t, err)
	items, err := inv.Items(ctx, system, player, sword)
	require.NoError(t, err)
	assert.Equal(t, []*uint256.Int{uint256.NewInt(2)}, items)

	// Withdrawing the last item drops the token.
	_, err = inv.Withdraw(ctx, player, sword, uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	tokens, err = inv.Tokens(ctx, system, player)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{potion}, tokens)

	n, err := inv.ItemCount(ctx, system, player, sword)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestInventory_EmptyDepositDoesNotAddToken(t *testing.T) {
	t.Parallel()
	inv, ctx := newInventory(t)

	_, err := inv.Deposit(ctx, player, sword)
	require.NoError(t, err)

	tokens, err := inv.Tokens(ctx, system, player)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestInventory_RequiresCaller(t *testing.T) {
	t.Parallel()
	inv, _ := newInventory(t)

	_, err := inv.Deposit(context.Background(), player, sword, uint256.NewInt(1))
	require.ErrorIs(t, err, setid.ErrNoCaller)
	_, err = inv.Withdraw(context.Background(), player, sword, uint256.NewInt(1))
	require.ErrorIs(t, err, setid.ErrNoCaller)
}
