package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type BidSaleStatus int

// Transitions: Open -> AwaitingPayment -> Closed, or Open -> Closed on cancel.
const (
	BidSaleOpen BidSaleStatus = iota
	BidSaleAwaitingPayment
	BidSaleClosed
)

func (s BidSaleStatus) String() string {
	switch s {
	case BidSaleOpen:
		return "open"
	case BidSaleAwaitingPayment:
		return "awaiting_payment"
	case BidSaleClosed:
		return "closed"
	default:
		return "unknown"
	}
}

func (s BidSaleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type BidSale struct {
	ID              string          `json:"id"`
	StoreID         string          `json:"store_id"`
	ProductID       string          `json:"product_id"`
	StartPrice      decimal.Decimal `json:"start_price"`
	MinIncrease     decimal.Decimal `json:"min_increase"`
	ExpiresAt       time.Time       `json:"expires_at"`
	Status          BidSaleStatus   `json:"status"`
	HighestBidderID string          `json:"highest_bidder_id,omitempty"`
	HighestAmount   decimal.Decimal `json:"highest_amount"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func NewBidSale(id, storeID, productID string, startPrice, minIncrease decimal.Decimal, expiresAt, now time.Time) (*BidSale, error) {
	if storeID == "" || productID == "" {
		return nil, NewValidationError("store and product are required")
	}
	if !startPrice.IsPositive() {
		return nil, NewValidationError("start price must be positive")
	}
	if minIncrease.IsNegative() {
		return nil, NewValidationError("minimum increase must not be negative")
	}
	if !expiresAt.After(now) {
		return nil, NewValidationError("expiry must be in the future")
	}

	return &BidSale{
		ID:            id,
		StoreID:       storeID,
		ProductID:     productID,
		StartPrice:    startPrice,
		MinIncrease:   minIncrease,
		ExpiresAt:     expiresAt,
		Status:        BidSaleOpen,
		HighestAmount: startPrice,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// MinimumBid is the smallest amount the next bid may carry.
func (b *BidSale) MinimumBid() decimal.Decimal {
	return b.HighestAmount.Add(b.MinIncrease)
}

func (b *BidSale) HasBids() bool {
	return b.HighestBidderID != ""
}

func (b *BidSale) Active() bool {
	return b.Status != BidSaleClosed
}

func (b *BidSale) Expired(now time.Time) bool {
	return now.After(b.ExpiresAt)
}

func (b *BidSale) Place(bidderID string, amount decimal.Decimal, now time.Time) error {
	if b.Status != BidSaleOpen {
		return NewInvalidStateError(fmt.Sprintf("bid sale is %s", b.Status))
	}
	if b.Expired(now) {
		return NewInvalidStateError("bid sale expired")
	}
	if bidderID == "" {
		return NewValidationError("bidder is required")
	}
	if amount.LessThan(b.MinimumBid()) {
		return NewValidationError(fmt.Sprintf("bid must be at least %s", b.MinimumBid().StringFixed(2)))
	}

	b.HighestAmount = amount
	b.HighestBidderID = bidderID
	b.UpdatedAt = now
	return nil
}

// LockIn closes bidding and fixes the highest bid as the price to pay.
func (b *BidSale) LockIn(now time.Time) error {
	if b.Status != BidSaleOpen {
		return NewInvalidStateError(fmt.Sprintf("bid sale is %s", b.Status))
	}
	if !b.HasBids() {
		return NewInvalidStateError("no bids placed")
	}

	b.Status = BidSaleAwaitingPayment
	b.UpdatedAt = now
	return nil
}

// CheckPayable reports whether payerID may settle the sale now.
func (b *BidSale) CheckPayable(payerID string) error {
	if b.Status != BidSaleAwaitingPayment {
		return NewInvalidStateError("not payable")
	}
	if payerID != b.HighestBidderID {
		return NewUnauthorizedError("not your bid")
	}
	return nil
}

func (b *BidSale) Close(now time.Time) error {
	if b.Status != BidSaleAwaitingPayment {
		return NewInvalidStateError("not payable")
	}
	b.Status = BidSaleClosed
	b.UpdatedAt = now
	return nil
}

// Cancel ends an open sale without a winner.
func (b *BidSale) Cancel(now time.Time) error {
	if b.Status != BidSaleOpen {
		return NewInvalidStateError(fmt.Sprintf("bid sale is %s", b.Status))
	}
	b.Status = BidSaleClosed
	b.UpdatedAt = now
	return nil
}
