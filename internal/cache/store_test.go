package cache_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/cart"
)

func sampleSnapshot(t *testing.T) cart.Snapshot {
	t.Helper()
	item, err := cart.NewLineItem("sku-1", "Mug", decimal.NewFromInt(2), decimal.RequireFromString("10.50"),
		map[string]string{"color": "red"}, cart.TaxRule{ID: "vat", Rate: decimal.NewFromInt(21)})
	require.NoError(t, err)
	return cart.Snapshot{
		Instance:       "default",
		Items:          []cart.LineItem{item},
		HasShipping:    true,
		ShippingAmount: decimal.NewFromInt(5),
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client, "shop", time.Hour)
	ctx := context.Background()

	_, ok, err := store.Load(ctx, "default")
	require.NoError(t, err)
	require.False(t, ok)

	snapshot := sampleSnapshot(t)
	require.NoError(t, store.Save(ctx, snapshot))
	require.True(t, mr.Exists("shop:cart:default"))
	require.Equal(t, time.Hour, mr.TTL("shop:cart:default"))

	loaded, ok, err := store.Load(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Items, 1)
	require.Equal(t, snapshot.Items[0].RowID, loaded.Items[0].RowID)
	require.True(t, loaded.Items[0].UnitPrice.Equal(decimal.RequireFromString("10.5")))
	require.True(t, loaded.ShippingAmount.Equal(decimal.NewFromInt(5)))
	require.Equal(t, "red", loaded.Items[0].Options["color"])

	require.NoError(t, store.Delete(ctx, "default"))
	require.False(t, mr.Exists("shop:cart:default"))
	require.NoError(t, store.Delete(ctx, "default"))
}

func TestRedisStoreExpires(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := cache.NewRedisStore(client, "", time.Minute)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, sampleSnapshot(t)))

	mr.FastForward(2 * time.Minute)
	_, ok, err := store.Load(ctx, "default")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreCorruptPayload(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, mr.Set(cache.KeyCart("", "broken"), "{not json"))
	store := cache.NewRedisStore(client, "", 0)
	_, _, err = store.Load(context.Background(), "broken")
	require.Error(t, err)
}

func TestMemoryStoreIsolation(t *testing.T) {
	store := cache.NewMemoryStore()
	ctx := context.Background()

	snapshot := sampleSnapshot(t)
	require.NoError(t, store.Save(ctx, snapshot))
	snapshot.Items[0].Options["color"] = "blue"

	loaded, ok, err := store.Load(ctx, "default")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "red", loaded.Items[0].Options["color"])
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "default"))
	require.Equal(t, 0, store.Len())
}

func TestKeys(t *testing.T) {
	require.Equal(t, "toko:cart:abc", cache.KeyCart("", "abc"))
	require.Equal(t, "shop:cart:abc", cache.KeyCart("shop:", "abc"))
	require.Equal(t, "shop:cart:abc:lock", cache.KeyCartLock("shop", "abc"))
}
