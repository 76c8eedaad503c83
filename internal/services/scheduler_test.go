package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"sales-engine/internal/domain"
	"sales-engine/internal/testutil"
	"sales-engine/pkg/logger"
)

func newScheduler(t *testing.T, h *testutil.Harness, bids *BidService, leader *testutil.FakeLeader) *CronScheduler {
	t.Helper()
	log := logger.FromZap(zaptest.NewLogger(t))
	return NewCronScheduler("@every 1h", "@every 1h", bids, NewStockReconciler(h.Inventory, h.Inventory, log),
		leader, "instance-1", log)
}

func TestCronScheduler_SweepRunsOnEveryInstance(t *testing.T) {
	tests := []struct {
		name   string
		leader *testutil.FakeLeader
	}{
		{name: "leader", leader: &testutil.FakeLeader{Leader: true}},
		{name: "follower", leader: &testutil.FakeLeader{Leader: false}},
		{name: "leadership check fails", leader: &testutil.FakeLeader{Err: errors.New("redis down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness()
			bids := newBidService(t, h)
			sale := startScenarioSale(t, h, bids)
			require.NoError(t, bids.Place(context.Background(), sale.ID, "alice", decimal.NewFromInt(150)))

			s := newScheduler(t, h, bids, tt.leader)
			s.now = func() time.Time { return sale.ExpiresAt.Add(time.Second) }

			assert.Equal(t, 1, s.Sweep(context.Background()))

			current, err := bids.Get(sale.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.BidSaleAwaitingPayment, current.Status)
		})
	}
}

func TestCronScheduler_ReconcileOnlyOnLeader(t *testing.T) {
	tests := []struct {
		name          string
		leader        *testutil.FakeLeader
		wantCorrected int
		wantPersisted int
	}{
		{name: "leader corrects stale rows", leader: &testutil.FakeLeader{Leader: true}, wantCorrected: 1, wantPersisted: 3},
		{name: "follower leaves rows alone", leader: &testutil.FakeLeader{Leader: false}, wantCorrected: 0, wantPersisted: 5},
		{name: "leadership check fails", leader: &testutil.FakeLeader{Err: errors.New("redis down")}, wantCorrected: 0, wantPersisted: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testutil.NewHarness()
			h.Inventory.AddProduct("store-1", "product-1", 5)
			product := h.Inventory.Product("store-1", "product-1")
			require.NoError(t, h.Inventory.UpdateStore(context.Background(), &domain.Store{ID: "store-1", Products: []domain.Product{product}}))
			h.Inventory.SetQuantity("store-1", "product-1", 3)

			s := newScheduler(t, h, newBidService(t, h), tt.leader)
			assert.Equal(t, tt.wantCorrected, s.Reconcile(context.Background()))

			store, ok := h.Inventory.PersistedStore("store-1")
			require.True(t, ok)
			require.Len(t, store.Products, 1)
			assert.Equal(t, tt.wantPersisted, store.Products[0].Quantity)
		})
	}
}

func TestCronScheduler_StartRejectsBadSpec(t *testing.T) {
	h := testutil.NewHarness()
	log := logger.NewNop()
	reconciler := NewStockReconciler(h.Inventory, h.Inventory, log)

	s := NewCronScheduler("not a spec", "@every 1m", newBidService(t, h), reconciler, &testutil.FakeLeader{Leader: true}, "instance-1", log)
	assert.Error(t, s.Start(context.Background()))

	s = NewCronScheduler("@every 1m", "not a spec", newBidService(t, h), reconciler, &testutil.FakeLeader{Leader: true}, "instance-1", log)
	assert.Error(t, s.Start(context.Background()))
}

func TestCronScheduler_StartStop(t *testing.T) {
	h := testutil.NewHarness()
	s := newScheduler(t, h, newBidService(t, h), &testutil.FakeLeader{Leader: true})

	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop())
}
