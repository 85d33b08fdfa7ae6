package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// MockTransport delivers nothing. Calls alternate between success and
// failure, starting with success, so runs can be exercised end to end.
type MockTransport struct {
	Stateless

	mu    sync.Mutex
	calls int
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (t *MockTransport) Mechanism() domain.Mechanism { return domain.MechanismMock }

func (t *MockTransport) Deliver(ctx context.Context, recipient domain.Recipient, content Content) (*DeliveryInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.calls++
	call := t.calls
	t.mu.Unlock()

	if call%2 == 0 {
		return nil, &ProviderError{
			Message: fmt.Sprintf("mock delivery %d to %s failed", call, recipient.Identifier),
		}
	}

	return &DeliveryInfo{
		Mechanism: domain.MechanismMock,
		MessageID: fmt.Sprintf("mock-%d", call),
		Detail:    fmt.Sprintf("delivered %q to %s", content.Title, recipient.Identifier),
	}, nil
}
