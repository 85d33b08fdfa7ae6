package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// Options carries the settings every transport may need.
type Options struct {
	Email      EmailConfig
	WebhookURL string
	Logger     *zap.Logger
}

// New builds the transport registered for mechanism.
func New(mechanism domain.Mechanism, opts Options) (Transport, error) {
	switch mechanism {
	case domain.MechanismMock:
		return NewMockTransport(), nil
	case domain.MechanismEmail:
		transport, err := NewEmailTransport(opts.Email, opts.Logger)
		if err != nil {
			return nil, err
		}
		return transport, nil
	case domain.MechanismWebhook:
		transport, err := NewWebhookTransport(opts.WebhookURL)
		if err != nil {
			return nil, err
		}
		return transport, nil
	}
	return nil, fmt.Errorf("%w: no transport registered for mechanism %q", domain.ErrValidation, mechanism)
}
