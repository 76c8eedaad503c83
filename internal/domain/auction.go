package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus int

// Transition table:
//
//	Negotiating    --offer(seller)-->     Negotiating
//	Negotiating    --offer(challenger)--> WaitingConsent
//	WaitingConsent --accept-->            AwaitingPayment
//	WaitingConsent --decline-->           Declined
//	AwaitingPayment --pay-->              Completed
const (
	AuctionNegotiating AuctionStatus = iota
	AuctionWaitingConsent
	AuctionAwaitingPayment
	AuctionCompleted
	AuctionDeclined
)

func (s AuctionStatus) String() string {
	switch s {
	case AuctionNegotiating:
		return "negotiating"
	case AuctionWaitingConsent:
		return "waiting_consent"
	case AuctionAwaitingPayment:
		return "awaiting_payment"
	case AuctionCompleted:
		return "completed"
	case AuctionDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

func (s AuctionStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Auction struct {
	ID           string          `json:"id"`
	StoreID      string          `json:"store_id"`
	ProductID    string          `json:"product_id"`
	SellerID     string          `json:"seller_id"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	LastParty    string          `json:"last_party"`
	Status       AuctionStatus   `json:"status"`
	Winner       string          `json:"winner,omitempty"`
	AgreedPrice  decimal.Decimal `json:"agreed_price"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func NewAuction(id, storeID, productID, sellerID string, startPrice decimal.Decimal, now time.Time) (*Auction, error) {
	if storeID == "" || productID == "" {
		return nil, NewValidationError("store and product are required")
	}
	if sellerID == "" {
		return nil, NewValidationError("seller is required")
	}
	if !startPrice.IsPositive() {
		return nil, NewValidationError("start price must be positive")
	}

	return &Auction{
		ID:           id,
		StoreID:      storeID,
		ProductID:    productID,
		SellerID:     sellerID,
		CurrentPrice: startPrice,
		LastParty:    sellerID,
		Status:       AuctionNegotiating,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Active reports whether the auction is still listed.
func (a *Auction) Active() bool {
	switch a.Status {
	case AuctionNegotiating, AuctionWaitingConsent, AuctionAwaitingPayment:
		return true
	default:
		return false
	}
}

func (a *Auction) Offer(partyID string, amount decimal.Decimal, now time.Time) error {
	if a.Status == AuctionWaitingConsent {
		return NewInvalidStateError("pending consent")
	}
	if a.Status != AuctionNegotiating {
		return NewInvalidStateError(fmt.Sprintf("auction is %s", a.Status))
	}
	if !amount.GreaterThan(a.CurrentPrice) {
		return NewValidationError("price too low")
	}

	a.CurrentPrice = amount
	a.LastParty = partyID
	if partyID != a.SellerID {
		a.Status = AuctionWaitingConsent
	}
	a.UpdatedAt = now
	return nil
}

func (a *Auction) checkConsent(sellerID string) error {
	if a.Status != AuctionWaitingConsent {
		return NewInvalidStateError("no offer awaiting consent")
	}
	if sellerID != a.SellerID {
		return NewUnauthorizedError("only the seller can respond to an offer")
	}
	return nil
}

func (a *Auction) Accept(sellerID string, now time.Time) error {
	if err := a.checkConsent(sellerID); err != nil {
		return err
	}

	a.Status = AuctionAwaitingPayment
	a.Winner = a.LastParty
	a.AgreedPrice = a.CurrentPrice
	a.UpdatedAt = now
	return nil
}

func (a *Auction) Decline(sellerID string, now time.Time) error {
	if err := a.checkConsent(sellerID); err != nil {
		return err
	}

	a.Status = AuctionDeclined
	a.UpdatedAt = now
	return nil
}

func (a *Auction) CheckPayable(payerID string) error {
	if a.Status != AuctionAwaitingPayment {
		return NewInvalidStateError("not payable")
	}
	if payerID != a.Winner {
		return NewUnauthorizedError("not your auction")
	}
	return nil
}

func (a *Auction) Complete(now time.Time) error {
	if a.Status != AuctionAwaitingPayment {
		return NewInvalidStateError("not payable")
	}
	a.Status = AuctionCompleted
	a.UpdatedAt = now
	return nil
}
