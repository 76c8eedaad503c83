package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string `json:"id"`
	StoreID  string `json:"store_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Reserved int    `json:"reserved"`
}

// Available is the number of units that can still be reserved.
func (p Product) Available() int {
	return p.Quantity - p.Reserved
}

type Store struct {
	ID       string    `json:"id"`
	Products []Product `json:"products"`
}

type SaleKind string

const (
	SaleKindBid     SaleKind = "bid"
	SaleKindAuction SaleKind = "auction"
)

type PaymentDetails struct {
	CardNumber  string `json:"card_number" validate:"required,min=12,max=19,numeric"`
	CardHolder  string `json:"card_holder" validate:"required"`
	ExpiryMonth int    `json:"expiry_month" validate:"required,min=1,max=12"`
	ExpiryYear  int    `json:"expiry_year" validate:"required,min=2000"`
	CVV         string `json:"cvv" validate:"required,len=3|len=4,numeric"`
}

type ShippingDetails struct {
	Name    string `json:"name" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
	Country string `json:"country" validate:"required"`
	Zip     string `json:"zip" validate:"required"`
}

type ManifestItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type PaymentReceipt struct {
	TransactionID string `json:"transaction_id"`
}

type ShippingConfirmation struct {
	TrackingID string `json:"tracking_id"`
}

type OrderRecord struct {
	ID          string          `json:"id"`
	StoreID     string          `json:"store_id"`
	ProductID   string          `json:"product_id"`
	BuyerID     string          `json:"buyer_id"`
	Quantity    int             `json:"quantity"`
	Amount      decimal.Decimal `json:"amount"`
	SaleKind    SaleKind        `json:"sale_kind"`
	SaleID      string          `json:"sale_id"`
	PaymentRef  string          `json:"payment_ref"`
	ShippingRef string          `json:"shipping_ref"`
	CreatedAt   time.Time       `json:"created_at"`
}

type SaleEvent struct {
	Type      SaleEventType   `json:"type"`
	SaleKind  SaleKind        `json:"sale_kind"`
	SaleID    string          `json:"sale_id"`
	UserID    string          `json:"user_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

type SaleEventType string

const (
	EventBidSaleStarted   SaleEventType = "bid_sale_started"
	EventBidPlaced        SaleEventType = "bid_placed"
	EventBidSaleLocked    SaleEventType = "bid_sale_locked"
	EventBidSaleClosed    SaleEventType = "bid_sale_closed"
	EventAuctionCreated   SaleEventType = "auction_created"
	EventOfferMade        SaleEventType = "offer_made"
	EventOfferAccepted    SaleEventType = "offer_accepted"
	EventOfferDeclined    SaleEventType = "offer_declined"
	EventAuctionCompleted SaleEventType = "auction_completed"
)
