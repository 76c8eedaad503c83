package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNotFound     ErrorKind = "not_found"
	KindUnauthorized ErrorKind = "unauthorized"
	KindInvalidState ErrorKind = "invalid_state"
	KindValidation   ErrorKind = "validation"
	KindOutOfStock   ErrorKind = "out_of_stock"
	KindExternal     ErrorKind = "external"
	KindPersistence  ErrorKind = "persistence"
)

// SaleError is the error type surfaced by sale workflows. Two SaleErrors
// match under errors.Is when their kinds are equal, so callers can test
// against the Err* sentinels below.
type SaleError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *SaleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SaleError) Unwrap() error {
	return e.Cause
}

func (e *SaleError) Is(target error) bool {
	t, ok := target.(*SaleError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound     = &SaleError{Kind: KindNotFound, Message: "not found"}
	ErrUnauthorized = &SaleError{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrInvalidState = &SaleError{Kind: KindInvalidState, Message: "invalid state"}
	ErrValidation   = &SaleError{Kind: KindValidation, Message: "validation failed"}
	ErrOutOfStock   = &SaleError{Kind: KindOutOfStock, Message: "out of stock"}
	ErrExternal     = &SaleError{Kind: KindExternal, Message: "external failure"}
	ErrPersistence  = &SaleError{Kind: KindPersistence, Message: "sale not recorded"}
)

func NewNotFoundError(message string) *SaleError {
	return &SaleError{Kind: KindNotFound, Message: message}
}

func NewUnauthorizedError(message string) *SaleError {
	return &SaleError{Kind: KindUnauthorized, Message: message}
}

func NewInvalidStateError(message string) *SaleError {
	return &SaleError{Kind: KindInvalidState, Message: message}
}

func NewValidationError(message string) *SaleError {
	return &SaleError{Kind: KindValidation, Message: message}
}

func NewOutOfStockError(message string) *SaleError {
	return &SaleError{Kind: KindOutOfStock, Message: message}
}

// NewExternalError wraps a failure reported by the payment or shipping gateway.
func NewExternalError(service string, cause error) *SaleError {
	return &SaleError{
		Kind:    KindExternal,
		Message: fmt.Sprintf("%s gateway failed", service),
		Cause:   cause,
	}
}

// NewPersistenceError reports a sale whose stock and payment are committed
// but whose store or order record could not be written.
func NewPersistenceError(cause error) *SaleError {
	return &SaleError{Kind: KindPersistence, Message: "sale committed but not recorded", Cause: cause}
}

// KindOf returns the kind of the first SaleError in err's chain, or "" when
// err is not a sale error.
func KindOf(err error) ErrorKind {
	var saleErr *SaleError
	if errors.As(err, &saleErr) {
		return saleErr.Kind
	}
	return ""
}
