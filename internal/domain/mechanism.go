package domain

import (
	"fmt"
	"strings"
)

// Mechanism identifies the transport used for a delivery attempt.
type Mechanism string

const (
	MechanismMock    Mechanism = "mock"
	MechanismEmail   Mechanism = "email"
	MechanismWebhook Mechanism = "webhook"
)

func (m Mechanism) String() string { return string(m) }

func (m Mechanism) IsValid() bool {
	switch m {
	case MechanismMock, MechanismEmail, MechanismWebhook:
		return true
	}
	return false
}

func ParseMechanismFromString(s string) (Mechanism, error) {
	m := Mechanism(strings.ToLower(strings.TrimSpace(s)))
	if !m.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery mechanism %q", ErrValidation, s)
	}
	return m, nil
}
