package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"sales-engine/pkg/logger"
)

// GuestTokenIssuer mints bearer tokens for anonymous visitors.
type GuestTokenIssuer interface {
	IssueGuestToken(ttl time.Duration) (guestID, token string, err error)
}

type GuestSessionResponse struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionHandler struct {
	issuer GuestTokenIssuer
	ttl    time.Duration
	log    logger.Logger
	now    func() time.Time
}

func NewSessionHandler(issuer GuestTokenIssuer, ttl time.Duration, log logger.Logger) *SessionHandler {
	return &SessionHandler{
		issuer: issuer,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}
}

func (h *SessionHandler) Register(g *echo.Group) {
	g.POST("/sessions/guest", h.CreateGuestSession)
}

// CreateGuestSession issues a guest token. Guests may browse and bid but
// have their auction offers refused.
func (h *SessionHandler) CreateGuestSession(c echo.Context) error {
	issuedAt := h.now()
	guestID, token, err := h.issuer.IssueGuestToken(h.ttl)
	if err != nil {
		return respondError(c, h.log, err)
	}

	h.log.Info("Guest session issued", "user_id", guestID)
	return c.JSON(http.StatusCreated, GuestSessionResponse{
		UserID:    guestID,
		Token:     token,
		ExpiresAt: issuedAt.Add(h.ttl),
	})
}
