package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePurchase(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()

	t.Run("with inviter", func(t *testing.T) {
		params := CreatePurchaseParams{
			TxHash:       "0xabc",
			Network:      "ETH",
			ChainID:      "0x1",
			FromAddress:  "0xbuyer",
			ToAddress:    "0xrecipient",
			NativeAmount: "0.25",
			TokenAmount:  5_000_000,
			Inviter:      "0xinviter",
		}

		p, err := store.CreatePurchase(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, "0xabc", p.TxHash)
		assert.Equal(t, "0.25", p.NativeAmount)
		assert.Equal(t, int64(5_000_000), p.TokenAmount)
		assert.Equal(t, "0xinviter", p.Inviter)
		assert.WithinDuration(t, time.Now(), p.CreatedAt, 5*time.Second)
	})

	t.Run("without inviter", func(t *testing.T) {
		p, err := store.CreatePurchase(ctx, CreatePurchaseParams{
			TxHash:       "sig1",
			Network:      "SOL",
			ChainID:      "SOL",
			FromAddress:  "buyer",
			ToAddress:    "recipient",
			NativeAmount: "0.7",
			TokenAmount:  1_000_000,
		})
		require.NoError(t, err)
		assert.Empty(t, p.Inviter)
	})

	t.Run("duplicate returns existing row", func(t *testing.T) {
		p, err := store.CreatePurchase(ctx, CreatePurchaseParams{
			TxHash:       "0xabc",
			Network:      "ETH",
			ChainID:      "0x1",
			FromAddress:  "0xbuyer",
			ToAddress:    "0xrecipient",
			NativeAmount: "0.25",
			TokenAmount:  5_000_000,
		})
		require.NoError(t, err)
		assert.Equal(t, "0xinviter", p.Inviter)
	})
}

func TestGetPurchase_NotFound(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	_, err := store.GetPurchase(context.Background(), "missing", "ETH")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPurchasesByAddress(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for i, hash := range []string{"0x1", "0x2", "0x3"} {
		_, err := store.CreatePurchase(ctx, CreatePurchaseParams{
			TxHash:       hash,
			Network:      "BSC",
			ChainID:      "0x38",
			FromAddress:  "0xbuyer",
			ToAddress:    "0xrecipient",
			NativeAmount: "1.6",
			TokenAmount:  int64(1000 * (i + 1)),
		})
		require.NoError(t, err)
	}
	_, err := store.CreatePurchase(ctx, CreatePurchaseParams{
		TxHash: "0x4", Network: "BSC", ChainID: "0x38",
		FromAddress: "0xother", ToAddress: "0xrecipient", NativeAmount: "1", TokenAmount: 1,
	})
	require.NoError(t, err)

	purchases, err := store.ListPurchasesByAddress(ctx, "0xbuyer", 2)
	require.NoError(t, err)
	assert.Len(t, purchases, 2)

	recent, err := store.ListRecentPurchases(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 4)

	sold, err := store.TokensSold(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6001), sold)
}

func TestListRecentPurchases_NewestFirst(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	for _, hash := range []string{"0xold", "0xnew"} {
		_, err := store.CreatePurchase(ctx, CreatePurchaseParams{
			TxHash: hash, Network: "ETH", ChainID: "0x1",
			FromAddress: "0xbuyer", ToAddress: "0xrecipient", NativeAmount: "0.05", TokenAmount: 10,
		})
		require.NoError(t, err)
	}
	store.MustExec(t, `UPDATE purchases SET created_at = now() - interval '1 day' WHERE tx_hash = $1`, "0xold")

	recent, err := store.ListRecentPurchases(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "0xnew", recent[0].TxHash)
	assert.Equal(t, "0xold", recent[1].TxHash)

	byAddress, err := store.ListPurchasesByAddress(ctx, "0xbuyer", 1)
	require.NoError(t, err)
	require.Len(t, byAddress, 1)
	assert.Equal(t, "0xnew", byAddress[0].TxHash)
}

func TestRaisedSnapshots(t *testing.T) {
	SkipIfNoTestDB(t)

	store := NewTestStore(t)
	defer store.Close()
	defer store.Cleanup(t)

	ctx := context.Background()
	first := time.Now().UTC().Add(-2 * time.Minute).Truncate(time.Microsecond)
	second := first.Add(2 * time.Minute)
	old, latest := "1.5", "2.25"

	require.NoError(t, store.CreateRaisedSnapshots(ctx, []*RaisedSnapshot{
		{Asset: "ETH", Network: "ETH", Address: "0xr", Balance: &old, PolledAt: first},
		{Asset: "SOL", Network: "SOL", Address: "So1", Balance: nil, PolledAt: first},
	}))
	require.NoError(t, store.CreateRaisedSnapshots(ctx, []*RaisedSnapshot{
		{Asset: "ETH", Network: "ETH", Address: "0xr", Balance: &latest, PolledAt: second},
	}))

	snaps, err := store.LatestRaisedSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	byNetwork := map[string]*RaisedSnapshot{}
	for _, s := range snaps {
		byNetwork[s.Network] = s
	}
	require.NotNil(t, byNetwork["ETH"].Balance)
	assert.Equal(t, "2.25", *byNetwork["ETH"].Balance)
	assert.WithinDuration(t, second, byNetwork["ETH"].PolledAt, time.Microsecond)
	assert.Nil(t, byNetwork["SOL"].Balance)

	require.NoError(t, store.DeleteRaisedSnapshotsOlderThan(ctx, second))
	snaps, err = store.LatestRaisedSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestCreateRaisedSnapshots_Empty(t *testing.T) {
	store := &Store{}
	assert.NoError(t, store.CreateRaisedSnapshots(context.Background(), nil))
}
