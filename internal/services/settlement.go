package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
	"sales-engine/pkg/utils"
)

const (
	outcomeSuccess        = "success"
	outcomeOutOfStock     = "out_of_stock"
	outcomePaymentFailed  = "payment_failed"
	outcomeShippingFailed = "shipping_failed"
	outcomePersistFailed  = "persist_failed"
	outcomeError          = "error"
)

type SettlementRequest struct {
	SaleKind  domain.SaleKind
	SaleID    string
	StoreID   string
	ProductID string
	Quantity  int
	PayerID   string
	Amount    decimal.Decimal
	Payment   domain.PaymentDetails
	Shipping  domain.ShippingDetails
}

// SettlementCoordinator runs reserve -> pay -> ship -> commit. The
// reservation is the only effect it ever undoes. Settle returns a nil order
// on every failure before the commit; a non-nil order means the stock is
// sold, even when the error reports that recording it failed.
type SettlementCoordinator struct {
	inventory domain.Inventory
	stores    domain.StoreRepository
	orders    domain.OrderRepository
	payments  domain.PaymentGateway
	shipping  domain.ShippingGateway
	metrics   domain.MetricsRecorder
	log       logger.Logger
	now       func() time.Time
}

func NewSettlementCoordinator(
	inventory domain.Inventory,
	stores domain.StoreRepository,
	orders domain.OrderRepository,
	payments domain.PaymentGateway,
	shipping domain.ShippingGateway,
	metrics domain.MetricsRecorder,
	log logger.Logger,
) *SettlementCoordinator {
	return &SettlementCoordinator{
		inventory: inventory,
		stores:    stores,
		orders:    orders,
		payments:  payments,
		shipping:  shipping,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
	}
}

func (c *SettlementCoordinator) Settle(ctx context.Context, req SettlementRequest) (*domain.OrderRecord, error) {
	if req.Quantity <= 0 {
		req.Quantity = 1
	}

	started := c.now()
	order, outcome, err := c.settle(ctx, req)
	c.metrics.RecordSettlement(req.SaleKind, outcome, c.now().Sub(started))
	return order, err
}

func (c *SettlementCoordinator) settle(ctx context.Context, req SettlementRequest) (*domain.OrderRecord, string, error) {
	fields := []interface{}{"sale_kind", req.SaleKind, "sale_id", req.SaleID, "store_id", req.StoreID, "product_id", req.ProductID}

	reserved, err := c.inventory.Reserve(ctx, req.StoreID, req.ProductID, req.Quantity)
	if err != nil {
		c.log.Error("Failed to reserve stock", append(fields, "error", err)...)
		return nil, outcomeError, fmt.Errorf("reserve stock: %w", err)
	}
	if !reserved {
		c.log.Warn("Reservation refused", fields...)
		return nil, outcomeOutOfStock, domain.NewOutOfStockError(fmt.Sprintf("product %s is out of stock", req.ProductID))
	}

	receipt, err := c.payments.ProcessPayment(ctx, req.PayerID, req.Amount, req.Payment)
	if err != nil {
		c.log.Error("Payment failed", append(fields, "payer_id", req.PayerID, "error", err)...)
		c.compensate(ctx, req)
		return nil, outcomePaymentFailed, err
	}

	manifest := []domain.ManifestItem{{ProductID: req.ProductID, Quantity: req.Quantity}}
	confirmation, err := c.shipping.ProcessShipment(ctx, req.PayerID, req.Shipping, manifest)
	if err != nil {
		c.log.Error("Shipping failed", append(fields, "payer_id", req.PayerID, "payment_ref", receipt.TransactionID, "error", err)...)
		c.compensate(ctx, req)
		return nil, outcomeShippingFailed, err
	}

	if err := c.inventory.Sell(ctx, req.StoreID, req.ProductID, req.Quantity); err != nil {
		c.log.Error("Failed to commit sale", append(fields, "error", err)...)
		c.compensate(ctx, req)
		return nil, outcomeError, fmt.Errorf("sell stock: %w", err)
	}

	// Stock and payment are committed from here on. Failures below return the
	// order together with a persistence error so the sale is still closed.
	order := &domain.OrderRecord{
		ID:          utils.GenerateID("order"),
		StoreID:     req.StoreID,
		ProductID:   req.ProductID,
		BuyerID:     req.PayerID,
		Quantity:    req.Quantity,
		Amount:      req.Amount,
		SaleKind:    req.SaleKind,
		SaleID:      req.SaleID,
		PaymentRef:  receipt.TransactionID,
		ShippingRef: confirmation.TrackingID,
		CreatedAt:   c.now(),
	}
	fields = append(fields, "order_id", order.ID, "payment_ref", receipt.TransactionID)

	var persistErrs []error
	if err := c.persistStore(ctx, req); err != nil {
		c.log.Error("Failed to persist store", append(fields, "error", err)...)
		persistErrs = append(persistErrs, err)
	}

	saved, err := c.orders.SaveOrder(ctx, order)
	if err != nil {
		c.log.Error("Failed to save order", append(fields, "error", err)...)
		persistErrs = append(persistErrs, fmt.Errorf("save order: %w", err))
	} else {
		order = saved
	}

	if len(persistErrs) > 0 {
		return order, outcomePersistFailed, domain.NewPersistenceError(errors.Join(persistErrs...))
	}

	c.log.Info("Sale settled", append(fields, "buyer_id", order.BuyerID)...)
	return order, outcomeSuccess, nil
}

// persistStore writes the product's post-sale stock to the store repository.
func (c *SettlementCoordinator) persistStore(ctx context.Context, req SettlementRequest) error {
	product, err := c.inventory.GetProduct(ctx, req.StoreID, req.ProductID)
	if err != nil {
		return fmt.Errorf("load product: %w", err)
	}
	if err := c.stores.UpdateStore(ctx, &domain.Store{ID: req.StoreID, Products: []domain.Product{*product}}); err != nil {
		return fmt.Errorf("update store: %w", err)
	}
	return nil
}

// compensate releases the reservation taken at the start of settle. Its own
// failure is logged; the caller still returns the original error.
func (c *SettlementCoordinator) compensate(ctx context.Context, req SettlementRequest) {
	// Release even when the request context is already done.
	releaseCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		releaseCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}

	if err := c.inventory.Unreserve(releaseCtx, req.StoreID, req.ProductID, req.Quantity); err != nil {
		c.log.Error("Failed to release reservation", "sale_id", req.SaleID, "store_id", req.StoreID,
			"product_id", req.ProductID, "quantity", req.Quantity, "error", err)
		return
	}
	c.log.Info("Reservation released", "sale_id", req.SaleID, "product_id", req.ProductID, "quantity", req.Quantity)
}
