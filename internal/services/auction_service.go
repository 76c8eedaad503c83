package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
	"sales-engine/pkg/utils"
)

type AuctionService struct {
	auctions   *registry[domain.Auction]
	settlement Settler
	identity   domain.IdentityResolver
	eventPub   domain.EventPublisher
	metrics    domain.MetricsRecorder
	log        logger.Logger
	now        func() time.Time
}

func NewAuctionService(
	settlement Settler,
	identity domain.IdentityResolver,
	eventPub domain.EventPublisher,
	metrics domain.MetricsRecorder,
	log logger.Logger,
) *AuctionService {
	return &AuctionService{
		auctions:   newRegistry[domain.Auction](),
		settlement: settlement,
		identity:   identity,
		eventPub:   eventPub,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

func errAuctionNotFound() error {
	return domain.NewNotFoundError("auction not found")
}

func (s *AuctionService) Create(ctx context.Context, storeID, productID, sellerID string, startPrice decimal.Decimal) (*domain.Auction, error) {
	auction, err := domain.NewAuction(utils.GenerateID("auction"), storeID, productID, sellerID, startPrice, s.now())
	if err != nil {
		return nil, err
	}

	s.auctions.add(auction.ID, auction)
	s.log.Info("Auction created", "auction_id", auction.ID, "store_id", storeID, "product_id", productID,
		"seller_id", sellerID, "start_price", startPrice.String())

	snapshot := *auction
	s.publish(ctx, domain.EventAuctionCreated, auction.ID, sellerID, startPrice)
	return &snapshot, nil
}

func (s *AuctionService) Offer(ctx context.Context, auctionID, partyID string, amount decimal.Decimal) error {
	s.log.Info("Offer received", "auction_id", auctionID, "party_id", partyID, "amount", amount.String())

	found, err := s.auctions.with(auctionID, func(auction *domain.Auction) error {
		if s.identity.IsGuest(partyID) {
			return domain.NewUnauthorizedError("must be logged-in")
		}
		return auction.Offer(partyID, amount, s.now())
	})
	if !found {
		return errAuctionNotFound()
	}
	s.metrics.RecordOffer(err == nil)
	if err != nil {
		s.log.Warn("Offer rejected", "auction_id", auctionID, "party_id", partyID, "error", err)
		return err
	}

	s.publish(ctx, domain.EventOfferMade, auctionID, partyID, amount)
	return nil
}

func (s *AuctionService) Accept(ctx context.Context, auctionID, sellerID string) error {
	var winner string
	var price decimal.Decimal

	found, err := s.auctions.with(auctionID, func(auction *domain.Auction) error {
		if err := auction.Accept(sellerID, s.now()); err != nil {
			return err
		}
		winner, price = auction.Winner, auction.AgreedPrice
		return nil
	})
	if !found {
		return errAuctionNotFound()
	}
	if err != nil {
		s.log.Warn("Accept rejected", "auction_id", auctionID, "seller_id", sellerID, "error", err)
		return err
	}

	s.log.Info("Offer accepted", "auction_id", auctionID, "winner", winner, "agreed_price", price.String())
	s.publish(ctx, domain.EventOfferAccepted, auctionID, winner, price)
	return nil
}

// Decline ends the auction; negotiation continues only in a new auction.
func (s *AuctionService) Decline(ctx context.Context, auctionID, sellerID string) error {
	var challenger string
	var price decimal.Decimal

	found, err := s.auctions.with(auctionID, func(auction *domain.Auction) error {
		if err := auction.Decline(sellerID, s.now()); err != nil {
			return err
		}
		challenger, price = auction.LastParty, auction.CurrentPrice
		s.auctions.remove(auctionID)
		return nil
	})
	if !found {
		return errAuctionNotFound()
	}
	if err != nil {
		s.log.Warn("Decline rejected", "auction_id", auctionID, "seller_id", sellerID, "error", err)
		return err
	}

	s.log.Info("Offer declined", "auction_id", auctionID, "party_id", challenger, "price", price.String())
	s.publish(ctx, domain.EventOfferDeclined, auctionID, challenger, price)
	return nil
}

func (s *AuctionService) Pay(ctx context.Context, auctionID, payerToken string, payment domain.PaymentDetails, shipping domain.ShippingDetails) (*domain.OrderRecord, error) {
	var order *domain.OrderRecord

	found, err := s.auctions.with(auctionID, func(auction *domain.Auction) error {
		if auction.Status != domain.AuctionAwaitingPayment {
			return domain.NewInvalidStateError("not payable")
		}

		payerID, err := s.identity.ResolveIdentity(ctx, payerToken)
		if err != nil {
			return err
		}
		if err := auction.CheckPayable(payerID); err != nil {
			return err
		}

		order, err = s.settlement.Settle(ctx, SettlementRequest{
			SaleKind:  domain.SaleKindAuction,
			SaleID:    auction.ID,
			StoreID:   auction.StoreID,
			ProductID: auction.ProductID,
			Quantity:  1,
			PayerID:   payerID,
			Amount:    auction.AgreedPrice,
			Payment:   payment,
			Shipping:  shipping,
		})
		if order == nil {
			return err
		}
		if completeErr := auction.Complete(s.now()); completeErr != nil {
			return completeErr
		}
		return err
	})
	if !found {
		return nil, errAuctionNotFound()
	}
	if err != nil && order == nil {
		s.log.Warn("Auction payment failed", "auction_id", auctionID, "error", err)
		return nil, err
	}
	if err != nil {
		s.log.Error("Auction completed but not fully recorded", "auction_id", auctionID, "order_id", order.ID, "error", err)
	}

	s.log.Info("Auction completed", "auction_id", auctionID, "order_id", order.ID, "buyer_id", order.BuyerID)
	s.publish(ctx, domain.EventAuctionCompleted, auctionID, order.BuyerID, order.Amount)
	return order, err
}

func (s *AuctionService) Get(auctionID string) (*domain.Auction, error) {
	var snapshot domain.Auction
	found, _ := s.auctions.with(auctionID, func(auction *domain.Auction) error {
		snapshot = *auction
		return nil
	})
	if !found {
		return nil, errAuctionNotFound()
	}
	return &snapshot, nil
}

// List returns negotiating, waiting-consent and awaiting-payment auctions.
func (s *AuctionService) List() []domain.Auction {
	return s.auctions.snapshot(func(auction *domain.Auction) bool {
		return auction.Active()
	})
}

func (s *AuctionService) publish(ctx context.Context, eventType domain.SaleEventType, auctionID, userID string, amount decimal.Decimal) {
	event := &domain.SaleEvent{
		Type:      eventType,
		SaleKind:  domain.SaleKindAuction,
		SaleID:    auctionID,
		UserID:    userID,
		Amount:    amount,
		Timestamp: s.now(),
	}
	if err := s.eventPub.PublishSaleEvent(ctx, event); err != nil {
		s.log.Error("Failed to publish sale event", "type", eventType, "auction_id", auctionID, "error", err)
	}
}
