package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sales-engine/internal/domain"
	"sales-engine/internal/testutil"
	"sales-engine/pkg/logger"
)

func newAuctionService(t *testing.T, h *testutil.Harness) *AuctionService {
	t.Helper()
	svc := NewAuctionService(newCoordinator(t, h), testutil.FakeIdentity{}, h.Publisher, testutil.NopMetrics{}, logger.NewNop())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func createScenarioAuction(t *testing.T, h *testutil.Harness, svc *AuctionService) *domain.Auction {
	t.Helper()
	h.Inventory.AddProduct("store-1", "product-1", 3)
	auction, err := svc.Create(context.Background(), "store-1", "product-1", "seller", decimal.NewFromInt(200))
	require.NoError(t, err)
	return auction
}

func auctionIDs(svc *AuctionService) []string {
	var ids []string
	for _, a := range svc.List() {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestAuctionService_Create(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)

	auction := createScenarioAuction(t, h, svc)
	assert.Equal(t, domain.AuctionNegotiating, auction.Status)
	assert.Equal(t, "seller", auction.LastParty)
	assert.Contains(t, auctionIDs(svc), auction.ID)
	assert.Equal(t, []domain.SaleEventType{domain.EventAuctionCreated}, h.Publisher.Types())

	_, err := svc.Create(context.Background(), "store-1", "product-1", "seller", decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestAuctionService_ScenarioC_LowOfferRejected(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	h.Inventory.AddProduct("store-1", "product-1", 3)
	auction, err := svc.Create(context.Background(), "store-1", "product-1", "mgr", decimal.NewFromInt(100))
	require.NoError(t, err)

	err = svc.Offer(context.Background(), auction.ID, "alice", decimal.NewFromInt(90))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, "price too low")

	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.True(t, current.CurrentPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "mgr", current.LastParty)
	assert.Equal(t, domain.AuctionNegotiating, current.Status)
}

func TestAuctionService_ScenarioD_ConsentThenPay(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	h.Inventory.AddProduct("store-1", "product-1", 3)
	auction, err := svc.Create(ctx, "store-1", "product-1", "mgr", decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, svc.Offer(ctx, auction.ID, "alice", decimal.NewFromInt(120)))
	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionWaitingConsent, current.Status)

	err = svc.Offer(ctx, auction.ID, "bob", decimal.NewFromInt(130))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.EqualError(t, err, "pending consent")

	require.NoError(t, svc.Accept(ctx, auction.ID, "mgr"))
	current, err = svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionAwaitingPayment, current.Status)
	assert.Equal(t, "alice", current.Winner)
	assert.True(t, current.AgreedPrice.Equal(decimal.NewFromInt(120)))

	_, err = svc.Pay(ctx, auction.ID, testutil.Token("bob"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.EqualError(t, err, "not your auction")

	order, err := svc.Pay(ctx, auction.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	require.NoError(t, err)
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(120)))
	assert.Equal(t, domain.SaleKindAuction, order.SaleKind)
	assert.Equal(t, 2, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.NotContains(t, auctionIDs(svc), auction.ID)

	_, err = svc.Pay(ctx, auction.ID, testutil.Token("alice"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAuctionService_OfferPriceMustRise(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)

	require.NoError(t, svc.Offer(ctx, auction.ID, "seller", decimal.NewFromInt(220)))
	err := svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(220))
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.EqualError(t, err, "price too low")

	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(221)))
}

func TestAuctionService_DeclineRemoves(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)

	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(250)))
	require.NoError(t, svc.Decline(ctx, auction.ID, "seller"))

	assert.NotContains(t, auctionIDs(svc), auction.ID)
	_, err := svc.Get(auction.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(300)), domain.ErrNotFound)
	assert.ErrorIs(t, svc.Accept(ctx, auction.ID, "seller"), domain.ErrNotFound)

	assert.Equal(t, []domain.SaleEventType{
		domain.EventAuctionCreated,
		domain.EventOfferMade,
		domain.EventOfferDeclined,
	}, h.Publisher.Types())
}

func TestAuctionService_ConsentGuards(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)

	assert.ErrorIs(t, svc.Accept(ctx, auction.ID, "seller"), domain.ErrInvalidState, "nothing to accept yet")
	assert.ErrorIs(t, svc.Decline(ctx, auction.ID, "seller"), domain.ErrInvalidState)

	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(250)))
	assert.ErrorIs(t, svc.Accept(ctx, auction.ID, "carol"), domain.ErrUnauthorized)
	assert.ErrorIs(t, svc.Decline(ctx, auction.ID, "mallory"), domain.ErrUnauthorized)
	assert.Contains(t, auctionIDs(svc), auction.ID)
}

func TestAuctionService_GuestCannotOffer(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	auction := createScenarioAuction(t, h, svc)

	err := svc.Offer(context.Background(), auction.ID, "guest-42", decimal.NewFromInt(300))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.EqualError(t, err, "must be logged-in")

	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionNegotiating, current.Status)

	assert.ErrorIs(t, svc.Offer(context.Background(), "auction-missing", "guest-42", decimal.NewFromInt(300)), domain.ErrNotFound)
}

func TestAuctionService_PaymentFailureKeepsAwaitingPayment(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)
	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(250)))
	require.NoError(t, svc.Accept(ctx, auction.ID, "seller"))

	h.Shipping.Err = domain.NewExternalError("shipping", errors.New("no courier"))
	_, err := svc.Pay(ctx, auction.ID, testutil.Token("carol"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrExternal)

	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionAwaitingPayment, current.Status)
	assert.Equal(t, 3, h.Inventory.Product("store-1", "product-1").Quantity)
	assert.Equal(t, 0, h.Inventory.Product("store-1", "product-1").Reserved)
}

func TestAuctionService_RecordFailureAfterSaleCompletes(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)
	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(250)))
	require.NoError(t, svc.Accept(ctx, auction.ID, "seller"))

	h.Inventory.UpdateErr = errors.New("db down")
	order, err := svc.Pay(ctx, auction.ID, testutil.Token("carol"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrPersistence)
	require.NotNil(t, order)
	assert.True(t, order.Amount.Equal(decimal.NewFromInt(250)))

	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionCompleted, current.Status)

	h.Inventory.UpdateErr = nil
	_, err = svc.Pay(ctx, auction.ID, testutil.Token("carol"), testutil.ValidPayment(), testutil.ValidShipping())
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, h.Log.Count("pay"))
	assert.Equal(t, 2, h.Inventory.Product("store-1", "product-1").Quantity)
}

func TestAuctionService_ConcurrentOfferAndAccept(t *testing.T) {
	h := testutil.NewHarness()
	svc := newAuctionService(t, h)
	ctx := context.Background()
	auction := createScenarioAuction(t, h, svc)
	require.NoError(t, svc.Offer(ctx, auction.ID, "carol", decimal.NewFromInt(250)))

	var wg sync.WaitGroup
	var acceptErr, offerErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		acceptErr = svc.Accept(ctx, auction.ID, "seller")
	}()
	go func() {
		defer wg.Done()
		offerErr = svc.Offer(ctx, auction.ID, "dave", decimal.NewFromInt(400))
	}()
	wg.Wait()

	require.NoError(t, acceptErr)
	assert.ErrorIs(t, offerErr, domain.ErrInvalidState)

	current, err := svc.Get(auction.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol", current.Winner)
	assert.True(t, current.AgreedPrice.Equal(decimal.NewFromInt(250)))
}
