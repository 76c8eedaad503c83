package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"sales-engine/internal/domain"
	"sales-engine/pkg/logger"
)

type ErrorResponse struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// requestError is a malformed or invalid request body.
type requestError struct {
	status int
	body   ErrorResponse
}

func (e *requestError) Error() string {
	return e.body.Error
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUnauthorized:
		return http.StatusUnauthorized
	case domain.KindInvalidState, domain.KindOutOfStock:
		return http.StatusConflict
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as JSON. Unclassified errors are logged and hidden
// from the caller.
func respondError(c echo.Context, log logger.Logger, err error) error {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return c.JSON(reqErr.status, reqErr.body)
	}

	if domain.KindOf(err) == domain.KindPersistence {
		// Paid and sold; only the record is missing, so a retry must not be suggested.
		log.Error("Sale committed but not recorded", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "sale committed but not recorded",
			Kind:  string(domain.KindPersistence),
		})
	}

	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(status, ErrorResponse{Error: "internal error"})
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), Kind: string(domain.KindOf(err))})
}

// bindAndValidate decodes the body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return &requestError{status: http.StatusBadRequest, body: ErrorResponse{Error: "Invalid request body"}}
	}

	if err := c.Validate(req); err != nil {
		fields := map[string]string{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Namespace()] = fe.Tag()
			}
		}
		return &requestError{status: http.StatusUnprocessableEntity, body: ErrorResponse{
			Error:  "validation failed",
			Kind:   string(domain.KindValidation),
			Fields: fields,
		}}
	}
	return nil
}
