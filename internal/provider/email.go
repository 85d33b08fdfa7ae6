package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// EmailConfig holds the SMTP session settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (c EmailConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("smtp host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.Port)
	}
	if strings.TrimSpace(c.From) == "" {
		return fmt.Errorf("smtp from address is required")
	}
	return nil
}

// smtpIdleTimeout bounds how long a session may sit unused before it is
// replaced by a fresh dial.
const smtpIdleTimeout = 30 * time.Second

type smtpDialer interface {
	Dial() (gomail.SendCloser, error)
}

// EmailTransport keeps an authenticated SMTP session for the whole run. A
// session that failed a send or sat idle past smtpIdleTimeout is closed and
// dialed again on the next delivery.
type EmailTransport struct {
	dialer      smtpDialer
	from        string
	domain      string
	idleTimeout time.Duration
	now         func() time.Time
	logger      *zap.Logger

	mu       sync.Mutex
	open     bool
	session  gomail.SendCloser
	lastUsed time.Time
}

func NewEmailTransport(cfg EmailConfig, logger *zap.Logger) (*EmailTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid email config: %w", err)
	}

	return newEmailTransportWithDialer(cfg, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), logger)
}

func newEmailTransportWithDialer(cfg EmailConfig, dialer smtpDialer, logger *zap.Logger) (*EmailTransport, error) {
	if dialer == nil {
		return nil, fmt.Errorf("smtp dialer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EmailTransport{
		dialer:      dialer,
		from:        strings.TrimSpace(cfg.From),
		domain:      messageIDDomain(cfg),
		idleTimeout: smtpIdleTimeout,
		now:         time.Now,
		logger:      logger,
	}, nil
}

func (t *EmailTransport) Mechanism() domain.Mechanism { return domain.MechanismEmail }

// Initialize opens and authenticates the SMTP session.
func (t *EmailTransport) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session != nil {
		return nil
	}

	session, err := t.dialer.Dial()
	if err != nil {
		return fmt.Errorf("failed to open smtp session: %w", err)
	}
	t.session = session
	t.lastUsed = t.now()
	t.open = true

	t.logger.Info("smtp session opened")
	return nil
}

// Deinitialize closes the SMTP session. It is safe to call without a
// preceding Initialize.
func (t *EmailTransport) Deinitialize(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.open = false
	if t.session == nil {
		return nil
	}

	err := t.session.Close()
	t.session = nil
	if err != nil {
		return fmt.Errorf("failed to close smtp session: %w", err)
	}

	t.logger.Info("smtp session closed")
	return nil
}

func (t *EmailTransport) Deliver(ctx context.Context, recipient domain.Recipient, content Content) (*DeliveryInfo, error) {
	address := recipient.EmailAddress()
	if address == "" {
		return nil, &ValidationError{Field: "email", Message: fmt.Sprintf("recipient %s has no email address", recipient.Identifier)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.open {
		return nil, &ProviderError{Message: "smtp session is not initialized"}
	}
	if t.session != nil && t.now().Sub(t.lastUsed) > t.idleTimeout {
		t.dropSession("idle")
	}
	if t.session == nil {
		session, err := t.dialer.Dial()
		if err != nil {
			return nil, &ProviderError{Message: "failed to reopen smtp session", Transient: true, Cause: err}
		}
		t.session = session
		t.logger.Info("smtp session reopened")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.domain)

	msg := gomail.NewMessage()
	msg.SetHeader("From", t.from)
	msg.SetHeader("To", address)
	msg.SetHeader("Subject", content.Title)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", content.Body)

	if err := gomail.Send(t.session, msg); err != nil {
		t.dropSession("send failed")
		return nil, &ProviderError{
			Message:   "smtp send failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	t.lastUsed = t.now()

	return &DeliveryInfo{
		Mechanism: domain.MechanismEmail,
		MessageID: messageID,
		Detail:    address,
	}, nil
}

// dropSession closes the current session so the next delivery dials a fresh
// one. The caller holds t.mu.
func (t *EmailTransport) dropSession(reason string) {
	if err := t.session.Close(); err != nil {
		t.logger.Debug("failed to close smtp session", zap.String("reason", reason), zap.Error(err))
	}
	t.session = nil
	t.logger.Info("smtp session dropped", zap.String("reason", reason))
}

func messageIDDomain(cfg EmailConfig) string {
	if at := strings.LastIndex(cfg.From, "@"); at >= 0 && at < len(cfg.From)-1 {
		return strings.Trim(cfg.From[at+1:], "> ")
	}
	return cfg.Host
}
