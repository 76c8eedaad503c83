package handlers

import (
	"strings"

	"github.com/labstack/echo/v4"

	"sales-engine/internal/domain"
)

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// callerID resolves the bearer token on the request to a user id.
func callerID(c echo.Context, identity domain.IdentityResolver) (string, error) {
	return identity.ResolveIdentity(c.Request().Context(), bearerToken(c))
}

// optionalCallerID is callerID for endpoints guests may reach. A missing
// token yields the anonymous id "".
func optionalCallerID(c echo.Context, identity domain.IdentityResolver) (string, error) {
	if bearerToken(c) == "" {
		return "", nil
	}
	return callerID(c, identity)
}
