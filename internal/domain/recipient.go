package domain

import (
	"fmt"
	"strings"
	"time"
)

// RecipientKind is the category of a recipient. Every kind answers its own survey.
type RecipientKind string

const (
	RecipientKindStudent      RecipientKind = "student"
	RecipientKindTeacher      RecipientKind = "teacher"
	RecipientKindFamilyMember RecipientKind = "familyMember"
)

func (k RecipientKind) String() string { return string(k) }

func (k RecipientKind) IsValid() bool {
	switch k {
	case RecipientKindStudent, RecipientKindTeacher, RecipientKindFamilyMember:
		return true
	}
	return false
}

// RecipientKinds returns every supported kind in a stable order.
func RecipientKinds() []RecipientKind {
	return []RecipientKind{RecipientKindStudent, RecipientKindTeacher, RecipientKindFamilyMember}
}

func ParseRecipientKind(s string) (RecipientKind, error) {
	trimmed := strings.TrimSpace(s)
	for _, kind := range RecipientKinds() {
		if strings.EqualFold(trimmed, kind.String()) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, s)
}

// RecipientKindFromCode maps the single letter codes used by roster exports
// (A = student, P = teacher, F = family member).
func RecipientKindFromCode(code string) (RecipientKind, error) {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "A":
		return RecipientKindStudent, nil
	case "P":
		return RecipientKindTeacher, nil
	case "F":
		return RecipientKindFamilyMember, nil
	}
	return "", fmt.Errorf("%w: invalid recipient kind code %q", ErrValidation, code)
}

// Recipient is someone who should take part in the survey. Recipients are
// created once during import and never mutated by the delivery engine.
type Recipient struct {
	Identifier string
	Kind       RecipientKind
	Email      *string
	Phone      *string
	CreatedAt  time.Time
}

func (r *Recipient) Validate() error {
	if strings.TrimSpace(r.Identifier) == "" {
		return fmt.Errorf("%w: identifier is required", ErrValidation)
	}
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: invalid recipient kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// EmailAddress returns the trimmed email or an empty string.
func (r Recipient) EmailAddress() string {
	if r.Email == nil {
		return ""
	}
	return strings.TrimSpace(*r.Email)
}

// PhoneNumber returns the trimmed phone number or an empty string.
func (r Recipient) PhoneNumber() string {
	if r.Phone == nil {
		return ""
	}
	return strings.TrimSpace(*r.Phone)
}
