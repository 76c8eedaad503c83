package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-engine/internal/domain"
	"sales-engine/internal/testutil"
	"sales-engine/pkg/logger"
)

var fixedNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newBidService(t *testing.T, h *testutil.Harness) *BidService {
	t.Helper()
	svc := NewBidService(newCoordinator(t, h), testutil.FakeIdentity{}, h.Publisher, testutil.NopMetrics{}, logger.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func startScenarioSale(t *testing.T, h *testutil.Harness, svc *BidService) *domain.BidSale {
	t.Helper()
	h.Inventory.AddProduct("store-1", "product-1", 5)
	sale, err := svc.Start(context.Background(), "store-1", "product-1", decimal.NewFromInt(100), decimal.NewFromInt(10), 60)
	require.NoError(t, err)
	return sale
}

func openIDs(svc *BidService) []string {
	var ids []string
	for _, s := range svc.Open() {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestBidService_Start(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)

	sale := startScenarioSale(t, h, svc)
	assert.Equal(t, domain.BidSaleOpen, sale.Status)
	assert.Equal(t, fixedNow.Add(60*time.Minute), sale.ExpiresAt)
	assert.True(t, sale.HighestAmount.Equal(decimal.NewFromInt(100)))
	assert.Empty(t, sale.HighestBidderID)
	assert.Contains(t, openIDs(svc), sale.ID)
	assert.Equal(t, []domain.SaleEventType{domain.EventBidSaleStarted}, h.Publisher.Types())

	_, err := svc.Start(context.Background(), "store-1", "product-1", decimal.NewFromInt(100), decimal.NewFromInt(10), 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBidService_ScenarioA_SuccessfulPayment(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))

	order, err := svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	require.NoError(t, err)

	assert.Equal(t, 4, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.NotContains(t, openIDs(svc), sale.ID)
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(150)))
	assert.Equal(t, sale.ID, order.SaleID)

	closed, err := svc.Get(sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BidSaleClosed, closed.Status)

	_, err = svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrInvalidState, "second payment must be rejected")
	assert.Equal(t, 4, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.Len(t, h.Orders.Orders(), 1)
}

func TestBidService_ScenarioB_PaymentFailureIsRetryable(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))

	h.Payment.Err = domain.NewExternalError("payment", errors.New("card declined"))
	_, err := svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrExternal)

	assert.Equal(t, []string{"reserve product-1 1", "pay alice 150.00", "unreserve product-1 1"}, h.Log.Calls())
	assert.Equal(t, 5, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.Contains(t, openIDs(svc), sale.ID)

	current, err := svc.Get(sale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BidSaleAwaitingPayment, current.Status)

	h.Payment.Err = nil
	_, err = svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	require.NoError(t, err)
	assert.Equal(t, 4, h.Inventory.Product("store-1", "product-1").Quantity)
}

func TestBidService_RecordFailureAfterSaleClosesBid(t *testing.T) {
	tests := []struct {
		name      string
		breakStep func(h *testutil.Harness)
	}{
		{name: "order save fails", breakStep: func(h *testutil.Harness) { h.Orders.Err = errors.New("db down") }},
		{name: "store update fails", breakStep: func(h *testutil.Harness) { h.Inventory.UpdateErr = errors.New("db down") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness()
			svc := newBidService(t, h)
			ctx := context.Background()
			sale := startScenarioSale(t, h, svc)
			require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
			require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))

			tt.breakStep(h)
			order, err := svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
			assert.ErrorIs(t, err, domain.ErrPersistence)
			require.NotNil(t, order)
			assert.Equal(t, "alice", order.BuyerID)

			current, err := svc.Get(sale.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.BidSaleClosed, current.Status)
			assert.NotContains(t, openIDs(svc), sale.ID)

			h.Orders.Err = nil
			h.Inventory.UpdateErr = nil
			_, err = svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
			assert.ErrorIs(t, err, domain.ErrInvalidState)

			assert.Equal(t, 1, h.Log.Count("pay"), "winner is charged once")
			assert.Equal(t, 1, h.Log.Count("sell"))
			assert.Equal(t, 4, h.Inventory.Product("store-1", "product-1").Quantity)
		})
	}
}

func TestBidService_ScenarioE_OutOfStock(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))

	h.Inventory.RefuseReserve = true
	_, err := svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	assert.Equal(t, 0, h.Log.Count("pay"))
	assert.Equal(t, 0, h.Log.Count("ship"))
	assert.Equal(t, 0, h.Log.Count("sell"))
	assert.Empty(t, h.Orders.Orders())
	assert.Contains(t, openIDs(svc), sale.ID)
}

func TestBidService_PayGuards(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	_, err := svc.Pay(ctx, "bid-missing", testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
	_, err = svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrInvalidState, "still open")

	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))
	_, err = svc.Pay(ctx, sale.ID, testutil.Token("bob"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.EqualError(t, err, "not your bid")

	_, err = svc.Pay(ctx, sale.ID, "garbage", testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	assert.Empty(t, h.Log.Calls(), "no collaborator is touched before authorization")
}

func TestBidService_PlaceGuards(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	assert.ErrorIs(t, svc.Place(ctx, "bid-missing", "alice", decimal.NewFromInt(150)), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(105)), domain.ErrValidation)
	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(110)))
	assert.ErrorIs(t, svc.Place(ctx, sale.ID, "bob", decimal.NewFromInt(119)), domain.ErrValidation)
	require.NoError(t, svc.Place(ctx, sale.ID, "bob", decimal.NewFromInt(120)))

	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))
	assert.ErrorIs(t, svc.Place(ctx, sale.ID, "carol", decimal.NewFromInt(500)), domain.ErrInvalidState)
	assert.ErrorIs(t, svc.MarkAwaitingPayment(ctx, sale.ID), domain.ErrInvalidState)

	current, err := svc.Get(sale.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", current.HighestBidderID)
}

func TestBidService_ConcurrentBidsOnlyOneWinsEachLevel(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Place(ctx, sale.ID, "bidder", decimal.NewFromInt(110)) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), accepted.Load())
}

func TestBidService_ConcurrentPayOnlyOneSucceeds(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()
	sale := startScenarioSale(t, h, svc)
	require.NoError(t, svc.Place(ctx, sale.ID, "alice", decimal.NewFromInt(150)))
	require.NoError(t, svc.MarkAwaitingPayment(ctx, sale.ID))
	h.Payment.Delay = 5 * time.Millisecond

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Pay(ctx, sale.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping()); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, 4, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.Len(t, h.Orders.Orders(), 1)
}

func TestBidService_ExpireDue(t *testing.T) {
	h := testutil.NewHarness()
	svc := newBidService(t, h)
	ctx := context.Background()

	withBid := startScenarioSale(t, h, svc)
	require.NoError(t, svc.Place(ctx, withBid.ID, "alice", decimal.NewFromInt(150)))
	noBids, err := svc.Start(ctx, "store-1", "product-1", decimal.NewFromInt(50), decimal.NewFromInt(5), 60)
	require.NoError(t, err)
	later, err := svc.Start(ctx, "store-1", "product-1", decimal.NewFromInt(50), decimal.NewFromInt(5), 120)
	require.NoError(t, err)

	assert.Equal(t, 0, svc.ExpireDue(ctx, fixedNow.Add(30*time.Minute)))
	assert.Equal(t, 0, svc.ExpireDue(ctx, fixedNow.Add(60*time.Minute)), "expiry instant is still open")
	assert.Equal(t, 2, svc.ExpireDue(ctx, fixedNow.Add(60*time.Minute+time.Second)))

	locked, err := svc.Get(withBid.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BidSaleAwaitingPayment, locked.Status)

	cancelled, err := svc.Get(noBids.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BidSaleClosed, cancelled.Status)

	assert.ElementsMatch(t, []string{withBid.ID, later.ID}, openIDs(svc))
	assert.Equal(t, 0, svc.ExpireDue(ctx, fixedNow.Add(61*time.Minute)))
}

func TestBidService_PublishFailureDoesNotFailOperation(t *testing.T) {
	h := testutil.NewHarness()
	h.Publisher.Err = errors.New("redis unavailable")
	svc := newBidService(t, h)
	sale := startScenarioSale(t, h, svc)

	assert.NoError(t, svc.Place(context.Background(), sale.ID, "alice", decimal.NewFromInt(150)))
}
