package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"sales-engine/internal/domain"
)

type paymentRequest struct {
	PayerID     string          `json:"payer_id"`
	Amount      decimal.Decimal `json:"amount"`
	CardNumber  string          `json:"card_number"`
	CardHolder  string          `json:"card_holder"`
	ExpiryMonth int             `json:"expiry_month"`
	ExpiryYear  int             `json:"expiry_year"`
	CVV         string          `json:"cvv"`
}

// HTTPPaymentGateway charges the payer through the external payment service.
type HTTPPaymentGateway struct {
	client
}

func NewHTTPPaymentGateway(baseURL string, timeout time.Duration) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{client: newClient(baseURL, timeout)}
}

func (g *HTTPPaymentGateway) ProcessPayment(ctx context.Context, payerID string, amount decimal.Decimal, details domain.PaymentDetails) (*domain.PaymentReceipt, error) {
	var receipt domain.PaymentReceipt
	err := g.postJSON(ctx, "/payments", paymentRequest{
		PayerID:     payerID,
		Amount:      amount,
		CardNumber:  details.CardNumber,
		CardHolder:  details.CardHolder,
		ExpiryMonth: details.ExpiryMonth,
		ExpiryYear:  details.ExpiryYear,
		CVV:         details.CVV,
	}, &receipt)
	if err != nil {
		return nil, domain.NewExternalError("payment", err)
	}
	if receipt.TransactionID == "" {
		return nil, domain.NewExternalError("payment", errors.New("missing transaction id"))
	}
	return &receipt, nil
}
