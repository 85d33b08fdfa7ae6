package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/identifier"
	"github.com/kursadbilgin/survey-engine/internal/service"
)

// StatusProvider exposes the progress of the run in flight.
type StatusProvider interface {
	Status() service.RunStatus
}

type RecipientLookup interface {
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Recipient, error)
}

type AttemptHistory interface {
	GetByRecipient(ctx context.Context, recipientIdentifier string) ([]domain.DeliveryAttempt, error)
}

type StatusHandler struct {
	status     StatusProvider
	recipients RecipientLookup
	attempts   AttemptHistory
}

func NewStatusHandler(status StatusProvider, recipients RecipientLookup, attempts AttemptHistory) (*StatusHandler, error) {
	if status == nil {
		return nil, fmt.Errorf("status provider is required")
	}
	if recipients == nil || attempts == nil {
		return nil, fmt.Errorf("recipient and attempt stores are required")
	}
	return &StatusHandler{status: status, recipients: recipients, attempts: attempts}, nil
}

func RegisterStatusRoutes(router fiber.Router, status StatusProvider, recipients RecipientLookup, attempts AttemptHistory) error {
	h, err := NewStatusHandler(status, recipients, attempts)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/status", h.GetStatus)
	v1.Get("/recipients/:identifier", h.GetRecipient)

	return nil
}

func (h *StatusHandler) GetStatus(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.status.Status())
}

type attemptResponse struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Mechanism     string    `json:"mechanism"`
	WasSuccessful bool      `json:"wasSuccessful"`
	Notes         string    `json:"notes,omitempty"`
}

// recipientResponse leaves contact details out; only their presence is
// reported.
type recipientResponse struct {
	Identifier string            `json:"identifier"`
	Kind       string            `json:"kind"`
	HasEmail   bool              `json:"hasEmail"`
	HasPhone   bool              `json:"hasPhone"`
	CreatedAt  time.Time         `json:"createdAt"`
	Attempts   []attemptResponse `json:"attempts"`
}

func (h *StatusHandler) GetRecipient(c *fiber.Ctx) error {
	id := strings.ToUpper(strings.TrimSpace(c.Params("identifier")))
	if !identifier.IsValid(id) {
		return toHTTPError(fmt.Errorf("%w: malformed identifier %q", domain.ErrValidation, id))
	}

	recipient, err := h.recipients.GetByIdentifier(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	attempts, err := h.attempts.GetByRecipient(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	resp := recipientResponse{
		Identifier: recipient.Identifier,
		Kind:       recipient.Kind.String(),
		HasEmail:   recipient.EmailAddress() != "",
		HasPhone:   recipient.PhoneNumber() != "",
		CreatedAt:  recipient.CreatedAt,
		Attempts:   make([]attemptResponse, 0, len(attempts)),
	}
	for _, a := range attempts {
		resp.Attempts = append(resp.Attempts, attemptResponse{
			ID:            a.ID,
			Timestamp:     a.Timestamp,
			Mechanism:     a.Mechanism.String(),
			WasSuccessful: a.WasSuccessful,
			Notes:         a.Notes,
		})
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	default:
		return err
	}
}
