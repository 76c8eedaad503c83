package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

// AuctionWorkflow is the negotiation surface the handler drives.
type AuctionWorkflow interface {
	Create(ctx context.Context, storeID, productID, sellerID string, startPrice decimal.Decimal) (*domain.Auction, error)
	Offer(ctx context.Context, auctionID, partyID string, amount decimal.Decimal) error
	Accept(ctx context.Context, auctionID, sellerID string) error
	Decline(ctx context.Context, auctionID, sellerID string) error
	Pay(ctx context.Context, auctionID, payerToken string, payment domain.PaymentDetails, shipping domain.ShippingDetails) (*domain.OrderRecord, error)
	Get(auctionID string) (*domain.Auction, error)
	List() []domain.Auction
}

type CreateAuctionRequest struct {
	StoreID    string          `json:"store_id" validate:"required"`
	ProductID  string          `json:"product_id" validate:"required"`
	StartPrice decimal.Decimal `json:"start_price"`
}

type OfferRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type AuctionHandler struct {
	auctions AuctionWorkflow
	identity domain.IdentityResolver
	log      logger.Logger
}

func NewAuctionHandler(auctions AuctionWorkflow, identity domain.IdentityResolver, log logger.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		identity: identity,
		log:      log,
	}
}

func (h *AuctionHandler) Register(g *echo.Group) {
	g.POST("/auctions", h.CreateAuction)
	g.GET("/auctions", h.ListAuctions)
	g.GET("/auctions/:id", h.GetAuction)
	g.POST("/auctions/:id/offer", h.Offer)
	g.POST("/auctions/:id/accept", h.Accept)
	g.POST("/auctions/:id/decline", h.Decline)
	g.POST("/auctions/:id/pay", h.PayAuction)
}

func (h *AuctionHandler) CreateAuction(c echo.Context) error {
	sellerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req CreateAuctionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	auction, err := h.auctions.Create(c.Request().Context(), req.StoreID, req.ProductID, sellerID, req.StartPrice)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, auction)
}

func (h *AuctionHandler) ListAuctions(c echo.Context) error {
	return c.JSON(http.StatusOK, h.auctions.List())
}

func (h *AuctionHandler) GetAuction(c echo.Context) error {
	auction, err := h.auctions.Get(c.Param("id"))
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, auction)
}

// Offer is reachable without a token so that guests get the
// "must be logged-in" rejection from the workflow.
func (h *AuctionHandler) Offer(c echo.Context) error {
	partyID, err := optionalCallerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	var req OfferRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	auctionID := c.Param("id")
	if err := h.auctions.Offer(c.Request().Context(), auctionID, partyID, req.Amount); err != nil {
		return respondError(c, h.log, err)
	}
	return h.respondAuction(c, auctionID)
}

func (h *AuctionHandler) Accept(c echo.Context) error {
	sellerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	auctionID := c.Param("id")
	if err := h.auctions.Accept(c.Request().Context(), auctionID, sellerID); err != nil {
		return respondError(c, h.log, err)
	}
	return h.respondAuction(c, auctionID)
}

func (h *AuctionHandler) Decline(c echo.Context) error {
	sellerID, err := callerID(c, h.identity)
	if err != nil {
		return respondError(c, h.log, err)
	}

	if err := h.auctions.Decline(c.Request().Context(), c.Param("id"), sellerID); err != nil {
		return respondError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *AuctionHandler) PayAuction(c echo.Context) error {
	var req PayRequest
	if err := bindAndValidate(c, &req); err != nil {
		return respondError(c, h.log, err)
	}

	order, err := h.auctions.Pay(c.Request().Context(), c.Param("id"), bearerToken(c), req.Payment, req.Shipping)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *AuctionHandler) respondAuction(c echo.Context, auctionID string) error {
	auction, err := h.auctions.Get(auctionID)
	if err != nil {
		return respondError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, auction)
}
