package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
)

// CallLog records collaborator calls in order across fakes.
type CallLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *CallLog) Add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// Count returns how many recorded calls start with prefix.
func (l *CallLog) Count(prefix string) int {
	n := 0
	for _, c := range l.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// FakeInventory implements domain.Inventory and domain.StoreCatalog.
type FakeInventory struct {
	mu       sync.Mutex
	products map[string]*domain.Product
	stores   map[string]domain.Store
	log      *CallLog

	RefuseReserve bool
	ReserveErr    error
	SellErr       error
	UpdateErr     error
	StoreIDsErr   error
}

func NewFakeInventory(log *CallLog) *FakeInventory {
	return &FakeInventory{
		products: make(map[string]*domain.Product),
		stores:   make(map[string]domain.Store),
		log:      log,
	}
}

func key(storeID, productID string) string {
	return storeID + "/" + productID
}

func (f *FakeInventory) AddProduct(storeID, productID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.products[key(storeID, productID)] = &domain.Product{ID: productID, StoreID: storeID, Name: productID, Quantity: quantity}
}

func (f *FakeInventory) SeedProduct(ctx context.Context, product domain.Product) error {
	f.log.Add("seed %s %d", product.ID, product.Quantity)

	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(product.StoreID, product.ID)
	if p, ok := f.products[k]; ok {
		p.Name, p.Quantity = product.Name, product.Quantity
		return nil
	}
	cp := product
	cp.Reserved = 0
	f.products[k] = &cp
	return nil
}

func (f *FakeInventory) Product(storeID, productID string) domain.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[key(storeID, productID)]; ok {
		return *p
	}
	return domain.Product{}
}

func (f *FakeInventory) PersistedStore(storeID string) (domain.Store, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[storeID]
	return s, ok
}

func (f *FakeInventory) Reserve(ctx context.Context, storeID, productID string, qty int) (bool, error) {
	f.log.Add("reserve %s %d", productID, qty)
	if f.ReserveErr != nil {
		return false, f.ReserveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[key(storeID, productID)]
	if f.RefuseReserve || !ok || p.Available() < qty {
		return false, nil
	}
	p.Reserved += qty
	return true, nil
}

func (f *FakeInventory) Unreserve(ctx context.Context, storeID, productID string, qty int) error {
	f.log.Add("unreserve %s %d", productID, qty)

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[key(storeID, productID)]; ok {
		p.Reserved -= qty
		if p.Reserved < 0 {
			p.Reserved = 0
		}
	}
	return nil
}

func (f *FakeInventory) Sell(ctx context.Context, storeID, productID string, qty int) error {
	f.log.Add("sell %s %d", productID, qty)
	if f.SellErr != nil {
		return f.SellErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[key(storeID, productID)]
	if !ok || p.Reserved < qty {
		return errors.New("nothing reserved")
	}
	p.Quantity -= qty
	p.Reserved -= qty
	return nil
}

func (f *FakeInventory) GetProduct(ctx context.Context, storeID, productID string) (*domain.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[key(storeID, productID)]
	if !ok {
		return nil, domain.NewNotFoundError("product not found")
	}
	cp := *p
	return &cp, nil
}

func (f *FakeInventory) UpdateStore(ctx context.Context, store *domain.Store) error {
	f.log.Add("update_store %s", store.ID)
	if f.UpdateErr != nil {
		return f.UpdateErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Upsert by product id, keeping products the update does not mention.
	merged := domain.Store{ID: store.ID, Products: append([]domain.Product(nil), f.stores[store.ID].Products...)}
	for _, p := range store.Products {
		replaced := false
		for i := range merged.Products {
			if merged.Products[i].ID == p.ID {
				merged.Products[i] = p
				replaced = true
			}
		}
		if !replaced {
			merged.Products = append(merged.Products, p)
		}
	}
	sort.Slice(merged.Products, func(i, j int) bool { return merged.Products[i].ID < merged.Products[j].ID })
	f.stores[store.ID] = merged
	return nil
}

func (f *FakeInventory) GetStore(ctx context.Context, storeID string) (*domain.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[storeID]
	if !ok {
		return nil, domain.NewNotFoundError("store not found")
	}
	s.Products = append([]domain.Product(nil), s.Products...)
	return &s, nil
}

func (f *FakeInventory) StoreIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StoreIDsErr != nil {
		return nil, f.StoreIDsErr
	}
	ids := make([]string, 0, len(f.stores))
	for id := range f.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetQuantity changes live stock without touching the persisted store, as a
// sale on another instance would.
func (f *FakeInventory) SetQuantity(storeID, productID string, quantity int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.products[key(storeID, productID)]; ok {
		p.Quantity = quantity
	}
}

type FakeOrders struct {
	mu     sync.Mutex
	orders []domain.OrderRecord
	log    *CallLog

	Err error
}

func NewFakeOrders(log *CallLog) *FakeOrders {
	return &FakeOrders{log: log}
}

func (f *FakeOrders) SaveOrder(ctx context.Context, order *domain.OrderRecord) (*domain.OrderRecord, error) {
	f.log.Add("save_order %s", order.ProductID)
	if f.Err != nil {
		return nil, f.Err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, *order)
	saved := *order
	return &saved, nil
}

func (f *FakeOrders) OrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var orders []*domain.OrderRecord
	for i := range f.orders {
		if f.orders[i].BuyerID == buyerID {
			o := f.orders[i]
			orders = append(orders, &o)
		}
	}
	return orders, nil
}

func (f *FakeOrders) Orders() []domain.OrderRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrderRecord(nil), f.orders...)
}

type FakePayment struct {
	log *CallLog

	Err   error
	Delay time.Duration
}

func NewFakePayment(log *CallLog) *FakePayment {
	return &FakePayment{log: log}
}

func (f *FakePayment) ProcessPayment(ctx context.Context, payerID string, amount decimal.Decimal, details domain.PaymentDetails) (*domain.PaymentReceipt, error) {
	f.log.Add("pay %s %s", payerID, amount.StringFixed(2))
	if f.Delay > 0 {
		time.Sleep(f.Delay)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &domain.PaymentReceipt{TransactionID: "txn-" + payerID}, nil
}

type FakeShipping struct {
	log *CallLog

	Err error
}

func NewFakeShipping(log *CallLog) *FakeShipping {
	return &FakeShipping{log: log}
}

func (f *FakeShipping) ProcessShipment(ctx context.Context, recipientID string, details domain.ShippingDetails, manifest []domain.ManifestItem) (*domain.ShippingConfirmation, error) {
	f.log.Add("ship %s %d", recipientID, len(manifest))
	if f.Err != nil {
		return nil, f.Err
	}
	return &domain.ShippingConfirmation{TrackingID: "trk-" + recipientID}, nil
}

// FakeIdentity resolves "token-<user>" to "<user>". Users prefixed with
// "guest-" are guests.
type FakeIdentity struct{}

func Token(userID string) string {
	return "token-" + userID
}

func (FakeIdentity) ResolveIdentity(ctx context.Context, token string) (string, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok || userID == "" {
		return "", domain.NewUnauthorizedError("invalid token")
	}
	return userID, nil
}

func (FakeIdentity) IsGuest(userID string) bool {
	return userID == "" || strings.HasPrefix(userID, "guest-")
}

type FakePublisher struct {
	mu     sync.Mutex
	events []domain.SaleEvent

	Err error
}

func (f *FakePublisher) PublishSaleEvent(ctx context.Context, event *domain.SaleEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return f.Err
}

func (f *FakePublisher) Types() []domain.SaleEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]domain.SaleEventType, 0, len(f.events))
	for _, e := range f.events {
		types = append(types, e.Type)
	}
	return types
}

type FakeLeader struct {
	Leader bool
	Err    error
}

func (f *FakeLeader) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return f.Leader, f.Err
}

func (f *FakeLeader) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return f.Leader, f.Err
}

func (f *FakeLeader) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}

type NopMetrics struct{}

func (NopMetrics) RecordBid(accepted bool)                                               {}
func (NopMetrics) RecordOffer(accepted bool)                                             {}
func (NopMetrics) RecordSettlement(kind domain.SaleKind, outcome string, d time.Duration) {}

// Harness wires every fake into one place for service tests.
type Harness struct {
	Log       *CallLog
	Inventory *FakeInventory
	Orders    *FakeOrders
	Payment   *FakePayment
	Shipping  *FakeShipping
	Publisher *FakePublisher
}

func NewHarness() *Harness {
	log := &CallLog{}
	return &Harness{
		Log:       log,
		Inventory: NewFakeInventory(log),
		Orders:    NewFakeOrders(log),
		Payment:   NewFakePayment(log),
		Shipping:  NewFakeShipping(log),
		Publisher: &FakePublisher{},
	}
}

func ValidPayment() domain.PaymentDetails {
	return domain.PaymentDetails{
		CardNumber:  "4111111111111111",
		CardHolder:  "Alice Example",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		CVV:         "123",
	}
}

func ValidShipping() domain.ShippingDetails {
	return domain.ShippingDetails{
		Name:    "Alice Example",
		Address: "1 Main St",
		City:    "Springfield",
		Country: "US",
		Zip:     "12345",
	}
}
