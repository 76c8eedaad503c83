package gateway

import (
	"context"
	"errors"
	"time"

	"sales-engine/internal/domain"
)

type shipmentRequest struct {
	RecipientID string                `json:"recipient_id"`
	Name        string                `json:"name"`
	Address     string                `json:"address"`
	City        string                `json:"city"`
	Country     string                `json:"country"`
	Zip         string                `json:"zip"`
	Items       []domain.ManifestItem `json:"items"`
}

// HTTPShippingGateway books delivery through the external shipping service.
type HTTPShippingGateway struct {
	client
}

func NewHTTPShippingGateway(baseURL string, timeout time.Duration) *HTTPShippingGateway {
	return &HTTPShippingGateway{client: newClient(baseURL, timeout)}
}

func (g *HTTPShippingGateway) ProcessShipment(ctx context.Context, recipientID string, details domain.ShippingDetails, manifest []domain.ManifestItem) (*domain.ShippingConfirmation, error) {
	var confirmation domain.ShippingConfirmation
	err := g.postJSON(ctx, "/shipments", shipmentRequest{
		RecipientID: recipientID,
		Name:        details.Name,
		Address:     details.Address,
		City:        details.City,
		Country:     details.Country,
		Zip:         details.Zip,
		Items:       manifest,
	}, &confirmation)
	if err != nil {
		return nil, domain.NewExternalError("shipping", err)
	}
	if confirmation.TrackingID == "" {
		return nil, domain.NewExternalError("shipping", errors.New("missing tracking id"))
	}
	return &confirmation, nil
}
