package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
	"sales-engine/pkg/utils"
)

// Settler is the settlement step shared by both sale types.
type Settler interface {
	Settle(ctx context.Context, req SettlementRequest) (*domain.OrderRecord, error)
}

type BidService struct {
	sales      *registry[domain.BidSale]
	settlement Settler
	identity   domain.IdentityResolver
	eventPub   domain.EventPublisher
	metrics    domain.MetricsRecorder
	log        logger.Logger
	now        func() time.Time
}

func NewBidService(
	settlement Settler,
	identity domain.IdentityResolver,
	eventPub domain.EventPublisher,
	metrics domain.MetricsRecorder,
	log logger.Logger,
) *BidService {
	return &BidService{
		sales:      newRegistry[domain.BidSale](),
		settlement: settlement,
		identity:   identity,
		eventPub:   eventPub,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

func errBidNotFound() error {
	return domain.NewNotFoundError("bid not found")
}

func (s *BidService) Start(ctx context.Context, storeID, productID string, startPrice, minIncrease decimal.Decimal, durationMinutes int) (*domain.BidSale, error) {
	if durationMinutes <= 0 {
		return nil, domain.NewValidationError("duration must be positive")
	}

	now := s.now()
	sale, err := domain.NewBidSale(utils.GenerateID("bid"), storeID, productID, startPrice, minIncrease,
		now.Add(time.Duration(durationMinutes)*time.Minute), now)
	if err != nil {
		return nil, err
	}

	s.sales.add(sale.ID, sale)
	s.log.Info("Bid sale started", "bid_id", sale.ID, "store_id", storeID, "product_id", productID,
		"start_price", startPrice.String(), "expires_at", sale.ExpiresAt)

	snapshot := *sale
	s.publish(ctx, domain.EventBidSaleStarted, sale.ID, "", startPrice)
	return &snapshot, nil
}

func (s *BidService) Place(ctx context.Context, bidID, bidderID string, amount decimal.Decimal) error {
	s.log.Info("Placing bid", "bid_id", bidID, "bidder_id", bidderID, "amount", amount.String())

	found, err := s.sales.with(bidID, func(sale *domain.BidSale) error {
		return sale.Place(bidderID, amount, s.now())
	})
	if !found {
		return errBidNotFound()
	}
	s.metrics.RecordBid(err == nil)
	if err != nil {
		s.log.Warn("Bid rejected", "bid_id", bidID, "bidder_id", bidderID, "error", err)
		return err
	}

	s.publish(ctx, domain.EventBidPlaced, bidID, bidderID, amount)
	return nil
}

// MarkAwaitingPayment fixes the highest bid once the sale window has closed.
func (s *BidService) MarkAwaitingPayment(ctx context.Context, bidID string) error {
	var winner string
	var amount decimal.Decimal

	found, err := s.sales.with(bidID, func(sale *domain.BidSale) error {
		if err := sale.LockIn(s.now()); err != nil {
			return err
		}
		winner, amount = sale.HighestBidderID, sale.HighestAmount
		return nil
	})
	if !found {
		return errBidNotFound()
	}
	if err != nil {
		return err
	}

	s.log.Info("Bid sale awaiting payment", "bid_id", bidID, "winner", winner, "amount", amount.String())
	s.publish(ctx, domain.EventBidSaleLocked, bidID, winner, amount)
	return nil
}

func (s *BidService) Cancel(ctx context.Context, bidID string) error {
	found, err := s.sales.with(bidID, func(sale *domain.BidSale) error {
		return sale.Cancel(s.now())
	})
	if !found {
		return errBidNotFound()
	}
	if err != nil {
		return err
	}

	s.log.Info("Bid sale cancelled", "bid_id", bidID)
	s.publish(ctx, domain.EventBidSaleClosed, bidID, "", decimal.Zero)
	return nil
}

func (s *BidService) Pay(ctx context.Context, bidID, payerToken string, payment domain.PaymentDetails, shipping domain.ShippingDetails) (*domain.OrderRecord, error) {
	var order *domain.OrderRecord

	found, err := s.sales.with(bidID, func(sale *domain.BidSale) error {
		if sale.Status != domain.BidSaleAwaitingPayment {
			return domain.NewInvalidStateError("not payable")
		}

		payerID, err := s.identity.ResolveIdentity(ctx, payerToken)
		if err != nil {
			return err
		}
		if err := sale.CheckPayable(payerID); err != nil {
			return err
		}

		order, err = s.settlement.Settle(ctx, SettlementRequest{
			SaleKind:  domain.SaleKindBid,
			SaleID:    sale.ID,
			StoreID:   sale.StoreID,
			ProductID: sale.ProductID,
			Quantity:  1,
			PayerID:   payerID,
			Amount:    sale.HighestAmount,
			Payment:   payment,
			Shipping:  shipping,
		})
		if order == nil {
			// Nothing was sold; the sale stays awaiting payment so the winner can retry.
			return err
		}
		if closeErr := sale.Close(s.now()); closeErr != nil {
			return closeErr
		}
		return err
	})
	if !found {
		return nil, errBidNotFound()
	}
	if err != nil && order == nil {
		s.log.Warn("Bid payment failed", "bid_id", bidID, "error", err)
		return nil, err
	}
	if err != nil {
		s.log.Error("Bid sale closed but not fully recorded", "bid_id", bidID, "order_id", order.ID, "error", err)
	}

	s.log.Info("Bid sale closed", "bid_id", bidID, "order_id", order.ID, "buyer_id", order.BuyerID)
	s.publish(ctx, domain.EventBidSaleClosed, bidID, order.BuyerID, order.Amount)
	return order, err
}

func (s *BidService) Get(bidID string) (*domain.BidSale, error) {
	var snapshot domain.BidSale
	found, _ := s.sales.with(bidID, func(sale *domain.BidSale) error {
		snapshot = *sale
		return nil
	})
	if !found {
		return nil, errBidNotFound()
	}
	return &snapshot, nil
}

// Open lists every sale that is not closed.
func (s *BidService) Open() []domain.BidSale {
	return s.sales.snapshot(func(sale *domain.BidSale) bool {
		return sale.Active()
	})
}

// ExpireDue locks in every open sale whose window has passed and cancels
// those that never received a bid. It returns the number of sales changed.
func (s *BidService) ExpireDue(ctx context.Context, now time.Time) int {
	type expiry struct {
		id     string
		winner string
		amount decimal.Decimal
		locked bool
	}

	var expired []expiry
	s.sales.each(func(sale *domain.BidSale) {
		if sale.Status != domain.BidSaleOpen || !sale.Expired(now) {
			return
		}

		if !sale.HasBids() {
			if err := sale.Cancel(now); err != nil {
				s.log.Error("Failed to cancel expired bid sale", "bid_id", sale.ID, "error", err)
				return
			}
			expired = append(expired, expiry{id: sale.ID})
			return
		}

		if err := sale.LockIn(now); err != nil {
			s.log.Error("Failed to lock in expired bid sale", "bid_id", sale.ID, "error", err)
			return
		}
		expired = append(expired, expiry{id: sale.ID, winner: sale.HighestBidderID, amount: sale.HighestAmount, locked: true})
	})

	for _, e := range expired {
		if e.locked {
			s.log.Info("Bid sale awaiting payment", "bid_id", e.id, "winner", e.winner, "amount", e.amount.String())
			s.publish(ctx, domain.EventBidSaleLocked, e.id, e.winner, e.amount)
			continue
		}
		s.log.Info("Bid sale cancelled", "bid_id", e.id)
		s.publish(ctx, domain.EventBidSaleClosed, e.id, "", decimal.Zero)
	}
	return len(expired)
}

func (s *BidService) publish(ctx context.Context, eventType domain.SaleEventType, saleID, userID string, amount decimal.Decimal) {
	event := &domain.SaleEvent{
		Type:      eventType,
		SaleKind:  domain.SaleKindBid,
		SaleID:    saleID,
		UserID:    userID,
		Amount:    amount,
		Timestamp: s.now(),
	}
	if err := s.eventPub.PublishSaleEvent(ctx, event); err != nil {
		s.log.Error("Failed to publish sale event", "type", eventType, "bid_id", saleID, "error", err)
	}
}
