package provider

import (
	"context"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// Transport is the outbound delivery port. Implementations reach one
// recipient per call and report either a receipt or a delivery error.
type Transport interface {
	Lifecycle
	Mechanism() domain.Mechanism
	Deliver(ctx context.Context, recipient domain.Recipient, content Content) (*DeliveryInfo, error)
}

// Lifecycle is called once before the first delivery and once after the
// last one of a run.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Deinitialize(ctx context.Context) error
}

// Stateless supplies no-op lifecycle methods for transports that hold no
// session between deliveries.
type Stateless struct{}

func (Stateless) Initialize(context.Context) error   { return nil }
func (Stateless) Deinitialize(context.Context) error { return nil }

// Content is the rendered message for a single recipient.
type Content struct {
	Title string
	Body  string
}

// DeliveryInfo is the receipt returned by a successful delivery. It is
// stored as the notes of the delivery attempt.
type DeliveryInfo struct {
	Mechanism  domain.Mechanism `json:"mechanism"`
	MessageID  string           `json:"messageId,omitempty"`
	StatusCode int              `json:"statusCode,omitempty"`
	Detail     string           `json:"detail,omitempty"`
}
