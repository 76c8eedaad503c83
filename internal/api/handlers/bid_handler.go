package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

// BidWorkflow is the bid sale surface the handler drives.
type BidWorkflow interface {
	Start(ctx context.Context, storeID, productID string, startPrice, minIncrease decimal.Decimal, durationMinutes int) (*domain.BidSale, error)
	Place(ctx context.Context, bidID, bidderID string, amount decimal.Decimal) error
	MarkAwaitingPayment(ctx context.Context, bidID string) error
	Cancel(ctx context.Context, bidID string) error
	Pay(ctx context.Context, bidID, payerToken string, payment domain.PaymentDetails, shipping domain.ShippingDetails) (*domain.OrderRecord, error)
	Get(bidID string) (*domain.BidSale, error)
	Open() []domain.BidSale
}

type StartBidRequest struct {
	StoreID         string          `json:"store_id" validate:"required"`
	ProductID       string          `json:"product_id" validate:"required"`
	StartPrice      decimal.Decimal `json:"start_price"`
	MinIncrease     decimal.Decimal `json:"min_increase"`
	DurationMinutes int             `json:"duration_minutes" validate:"required,gt=0"`
}

type PlaceBidRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type PayRequest struct {
	Payment  domain.PaymentDetails  `json:"payment"`
	Shipping domain.ShippingDetails `json:"shipping"`
}

type BidHandler struct {
	bids     BidWorkflow
	identity domain.IdentityResolver
	log      logger.Logger
}

func NewBidHandler(bids BidWorkflow, identity domain.IdentityResolver, log logger.Logger) *BidHandler {
	return &BidHandler{
		bids:     bids,
		identity: identity,
		log:      log,
	}
}

func (h *BidHandler) Register(g *echo.Group) {
	g.POST("/bids", h.StartBid)
	g.GET("/bids", h.ListBids)
	g.GET("/bids/:id", h.GetBid)
	g.POST("/bids/:id/place", h.PlaceBid)
	g.POST("/bids/:id/close", h.CloseBid)
	g.POST("/bids/:id/cancel", h.CancelBid)
	g.POST("/bids/:id/pay", h.PayBid)
}

func (h *BidHandler) StartBid(c echo.Context) error {
	managerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req StartBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	sale, err := h.bids.Start(c.Request().Context(), req.StoreID, req.ProductID, req.StartPrice, req.MinIncrease, req.DurationMinutes)
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("Bid sale created", "bid_id", sale.ID, "manager_id", managerID)
	return c.JSON(http.StatusCreated, sale)
}

func (h *BidHandler) ListBids(c echo.Context) error {
	return c.JSON(http.StatusOK, h.bids.Open())
}

func (h *BidHandler) GetBid(c echo.Context) error {
	sale, err := h.bids.Get(c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sale)
}

func (h *BidHandler) PlaceBid(c echo.Context) error {
	bidderID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req PlaceBidRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	bidID := c.Param("id")
	if err := h.bids.Place(c.Request().Context(), bidID, bidderID, req.Amount); err != nil {
		return respondError(c, h.log, err)
	}

	sale, err := h.bids.Get(bidID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sale)
}

func (h *BidHandler) CloseBid(c echo.Context) error {
	return h.transition(c, h.bids.MarkAwaitingPayment)
}

func (h *BidHandler) CancelBid(c echo.Context) error {
	return h.transition(c, h.bids.Cancel)
}

func (h *BidHandler) transition(c echo.Context, apply func(ctx context.Context, bidID string) error) error {
	if _, err := callerID(c, h.identity); err != nil {
		return respondError(c, h.log, err)
	}

	bidID := c.Param("id")
	if err := apply(c.Request().Context(), bidID); err != nil {
		return respondError(c, h.log, err)
	}

	sale, err := h.bids.Get(bidID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, sale)
}

func (h *BidHandler) PayBid(c echo.Context) error {
	var req PayRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	order, err := h.bids.Pay(c.Request().Context(), c.Param("id"), bearerToken(c), req.Payment, req.Shipping)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, order)
}
