package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

type StockSeeder interface {
	SeedProduct(ctx context.Context, product domain.Product) error
	GetProduct(ctx context.Context, storeID, productID string) (*domain.Product, error)
}

type StoreCatalog interface {
	UpdateStore(ctx context.Context, store *domain.Store) error
	GetStore(ctx context.Context, storeID string) (*domain.Store, error)
}

type OrderHistory interface {
	OrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.OrderRecord, error)
}

type SeedProductRequest struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

type StoreHandler struct {
	stock    StockSeeder
	stores   StoreCatalog
	orders   OrderHistory
	identity domain.IdentityResolver
	log      logger.Logger
}

func NewStoreHandler(stock StockSeeder, stores StoreCatalog, orders OrderHistory, identity domain.IdentityResolver, log logger.Logger) *StoreHandler {
	return &StoreHandler{
		stock:    stock,
		stores:   stores,
		orders:   orders,
		identity: identity,
		log:      log,
	}
}

func (h *StoreHandler) Register(g *echo.Group) {
	g.PUT("/stores/:storeId/products/:productId", h.SeedProduct)
	g.GET("/stores/:storeId", h.GetStore)
	g.GET("/orders", h.ListOrders)
}

// SeedProduct sets the sellable stock of a product and persists the store.
func (h *StoreHandler) SeedProduct(c echo.Context) error {
	managerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if h.identity.IsGuest(managerID) {
		return respondError(c, h.log, domain.NewUnauthorizedError("must be logged-in"))
	}

	var req SeedProductRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	ctx := c.Request().Context()
	storeID, productID := c.Param("storeId"), c.Param("productId")
	if err := h.stock.SeedProduct(ctx, domain.Product{ID: productID, StoreID: storeID, Name: req.Name, Quantity: req.Quantity}); err != nil {
		return respondError(c, h.log, err)
	}

	product, err := h.stock.GetProduct(ctx, storeID, productID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if err := h.stores.UpdateStore(ctx, &domain.Store{ID: storeID, Products: []domain.Product{*product}}); err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("Product stock set", "store_id", storeID, "product_id", productID,
		"quantity", product.Quantity, "manager_id", managerID)
	return c.JSON(http.StatusOK, product)
}

func (h *StoreHandler) GetStore(c echo.Context) error {
	store, err := h.stores.GetStore(c.Request().Context(), c.Param("storeId"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, store)
}

func (h *StoreHandler) ListOrders(c echo.Context) error {
	buyerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	orders, err := h.orders.OrdersByBuyer(c.Request().Context(), buyerID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	if orders == nil {
		orders = []*domain.OrderRecord{}
	}
	return c.JSON(http.StatusOK, orders)
}
