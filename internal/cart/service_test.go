package cart_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-cart/internal/cache"
	"github.com/noah-isme/toko-cart/internal/cart"
	"github.com/noah-isme/toko-cart/internal/lock"
)

func newTestService(t *testing.T) (*cart.Service, *cache.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := cache.NewRedisStore(rdb, cache.DefaultPrefix, time.Hour)
	svc := &cart.Service{
		Store:   store,
		Locker:  lock.Locker{R: rdb, RetryBackoff: 5 * time.Millisecond, MaxWait: 2 * time.Second},
		Logger:  zerolog.Nop(),
		LockKey: func(instance string) string { return cache.KeyCartLock(cache.DefaultPrefix, instance) },
	}
	return svc, store, mr
}

func item(t *testing.T, id string, qty, price int64) cart.LineItem {
	t.Helper()
	it, err := cart.NewLineItem(id, id, decimal.NewFromInt(qty), decimal.NewFromInt(price), nil)
	require.NoError(t, err)
	return it
}

func TestServicePersistsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	added, err := svc.Add(ctx, "c1", item(t, "sku-1", 2, 10))
	require.NoError(t, err)
	require.Len(t, added, 1)

	rule, err := svc.AddPriceRule(ctx, "c1", cart.PriceRule{
		ID:           "ten",
		DiscountType: cart.DiscountSubtotalPercentage,
		Discount:     cart.Discount{Percentage: decimal.NewFromInt(10)},
		Combinable:   true,
	})
	require.NoError(t, err)
	require.True(t, decimal.NewFromInt(2).Equal(rule.DiscountAmount))

	c, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "18", c.Total().String())

	_, err = svc.AddPriceRule(ctx, "c1", cart.PriceRule{ID: "t", DiscountType: cart.DiscountTotalPercentage, Combinable: true})
	require.ErrorIs(t, err, cart.ErrMutuallyExclusiveDiscount)

	snapshot, ok, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, snapshot.PriceRules, 1)
}

func TestServiceRemoveLastRowDeletesCart(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := newTestService(t)

	added, err := svc.Add(ctx, "c1", item(t, "sku-1", 1, 5))
	require.NoError(t, err)
	require.True(t, mr.Exists(cache.KeyCart(cache.DefaultPrefix, "c1")))

	c, err := svc.Remove(ctx, "c1", added[0].RowID)
	require.NoError(t, err)
	require.True(t, c.IsEmpty())
	require.False(t, mr.Exists(cache.KeyCart(cache.DefaultPrefix, "c1")))

	empty, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, empty.IsEmpty())

	_, err = svc.Remove(ctx, "c1", added[0].RowID)
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestServiceBatchKeepsElementsBeforeFailure(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	bad := cart.LineItem{ID: "bad", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(1)}
	added, err := svc.Add(ctx, "c1", item(t, "a", 1, 1), item(t, "b", 1, 1), bad, item(t, "c", 1, 1))
	require.ErrorIs(t, err, cart.ErrInvalidQuantity)
	require.Len(t, added, 2)

	c, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, c.Count())
}

func TestServiceSerialisesConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	const writers = 8
	one := item(t, "sku-1", 1, 3)
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Add(ctx, "c1", one)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	c, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, c.Count())
	require.Equal(t, "8", c.Quantity().String())
}

func TestServiceShippingAndTaxSummary(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	taxed, err := cart.NewLineItem("a", "A", decimal.NewFromInt(1), decimal.NewFromInt(100), nil,
		cart.TaxRule{ID: "vat", Rate: decimal.NewFromInt(21)})
	require.NoError(t, err)
	_, err = svc.Add(ctx, "c1", taxed)
	require.NoError(t, err)

	c, err := svc.SetShipping(ctx, "c1", true, decimal.NewFromInt(7))
	require.NoError(t, err)
	require.True(t, c.HasShipping())

	reloaded, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, reloaded.HasShipping())
	require.Equal(t, "7", reloaded.ShippingAmount().String())

	summary, err := svc.TaxSummary(ctx, "c1")
	require.NoError(t, err)
	vat, ok := summary.Get("vat")
	require.True(t, ok)
	require.Equal(t, "21", vat.Amount.String())
}

func TestServiceDestroy(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := newTestService(t)

	_, err := svc.Add(ctx, "c1", item(t, "a", 1, 1))
	require.NoError(t, err)
	require.NoError(t, svc.Destroy(ctx, "c1"))
	require.False(t, mr.Exists(cache.KeyCart(cache.DefaultPrefix, "c1")))
	require.NoError(t, svc.Destroy(ctx, "c1"))
}

func TestServiceNotConfigured(t *testing.T) {
	var svc *cart.Service
	_, err := svc.Get(context.Background(), "c1")
	require.Error(t, err)
	_, err = (&cart.Service{}).SetShipping(context.Background(), "c1", true, decimal.Zero)
	require.Error(t, err)
}

func TestServiceRuleBeforeItems(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	_, err := svc.AddPriceRule(ctx, "c1", cart.PriceRule{
		ID:           "ten",
		DiscountType: cart.DiscountSubtotalPercentage,
		Discount:     cart.Discount{Percentage: decimal.NewFromInt(10)},
		Combinable:   true,
	})
	require.NoError(t, err)

	snapshot, ok, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, snapshot.Items)
	require.Len(t, snapshot.PriceRules, 1)

	_, err = svc.Add(ctx, "c1", item(t, "sku-1", 2, 10))
	require.NoError(t, err)

	c, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 1, c.PriceRules().Len())
	require.Equal(t, "18", c.SubtotalWithDiscounts().String())
	rule, _ := c.PriceRules().Get("ten")
	require.Equal(t, "2", rule.DiscountAmount.String())
}

func TestServiceShippingBeforeItems(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.SetShipping(ctx, "c1", true, decimal.NewFromInt(5))
	require.NoError(t, err)
	_, err = svc.AddPriceRule(ctx, "c1", cart.PriceRule{
		ID:           "ten",
		DiscountType: cart.DiscountSubtotalPercentage,
		Discount:     cart.Discount{Percentage: decimal.NewFromInt(10), ApplyShippingAmount: true},
		Combinable:   true,
	})
	require.NoError(t, err)
	_, err = svc.Add(ctx, "c1", item(t, "sku-1", 2, 10))
	require.NoError(t, err)

	c, err := svc.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, c.HasShipping())
	require.Equal(t, "5", c.ShippingAmount().String())
	rule, _ := c.PriceRules().Get("ten")
	require.Equal(t, "2.5", rule.DiscountAmount.String())
}

func TestServiceRejectedOperationOnNewCartStoresNothing(t *testing.T) {
	ctx := context.Background()
	svc, _, mr := newTestService(t)

	_, err := svc.AddPriceRule(ctx, "c1", cart.PriceRule{ID: "x", DiscountType: "bogus"})
	require.ErrorIs(t, err, cart.ErrInvalidPriceRule)
	_, err = svc.Remove(ctx, "c1", "missing")
	require.ErrorIs(t, err, cart.ErrNotFound)
	require.False(t, mr.Exists(cache.KeyCart(cache.DefaultPrefix, "c1")))
}
