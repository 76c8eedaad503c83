package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Inventory interfaces
type Inventory interface {
	// Reserve returns false when fewer than qty units are available.
	Reserve(ctx context.Context, storeID, productID string, qty int) (bool, error)
	Unreserve(ctx context.Context, storeID, productID string, qty int) error
	// Sell permanently removes qty previously reserved units.
	Sell(ctx context.Context, storeID, productID string, qty int) error
	GetProduct(ctx context.Context, storeID, productID string) (*Product, error)
}

// Repository interfaces
type StoreRepository interface {
	UpdateStore(ctx context.Context, store *Store) error
}

// StoreCatalog is a StoreRepository that can also enumerate and read back
// the persisted stores.
type StoreCatalog interface {
	StoreRepository
	StoreIDs(ctx context.Context) ([]string, error)
	GetStore(ctx context.Context, storeID string) (*Store, error)
}

type OrderRepository interface {
	SaveOrder(ctx context.Context, order *OrderRecord) (*OrderRecord, error)
}

// Gateway interfaces
type PaymentGateway interface {
	ProcessPayment(ctx context.Context, payerID string, amount decimal.Decimal, details PaymentDetails) (*PaymentReceipt, error)
}

type ShippingGateway interface {
	ProcessShipment(ctx context.Context, recipientID string, details ShippingDetails, manifest []ManifestItem) (*ShippingConfirmation, error)
}

// Identity interface
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (string, error)
	IsGuest(userID string) bool
}

// Event interfaces
type EventPublisher interface {
	PublishSaleEvent(ctx context.Context, event *SaleEvent) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Metrics interface
type MetricsRecorder interface {
	RecordBid(accepted bool)
	RecordOffer(accepted bool)
	RecordSettlement(kind SaleKind, outcome string, elapsed time.Duration)
}
