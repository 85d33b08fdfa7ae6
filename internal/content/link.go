package content

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// IdentifierToken is replaced by the recipient identifier in survey URLs.
const IdentifierToken = "PERSON_IDENTIFIER_TOKEN"

// LinkGenerator builds the personalized survey URL for a recipient from the
// URL template configured for the recipient's kind.
type LinkGenerator struct {
	templates map[domain.RecipientKind]string
}

func NewLinkGenerator(templates map[domain.RecipientKind]string) (*LinkGenerator, error) {
	cleaned := make(map[domain.RecipientKind]string, len(templates))
	for kind, raw := range templates {
		if !kind.IsValid() {
			return nil, fmt.Errorf("%w: invalid recipient kind %q", domain.ErrValidation, kind)
		}

		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		if !strings.Contains(trimmed, IdentifierToken) {
			return nil, fmt.Errorf("%w: survey link for %s lacks %s", domain.ErrValidation, kind, IdentifierToken)
		}
		if _, err := url.ParseRequestURI(strings.ReplaceAll(trimmed, IdentifierToken, "x")); err != nil {
			return nil, fmt.Errorf("invalid survey link for %s: %w", kind, err)
		}
		cleaned[kind] = trimmed
	}

	return &LinkGenerator{templates: cleaned}, nil
}

func (g *LinkGenerator) Link(recipient domain.Recipient) (string, error) {
	tmpl, ok := g.templates[recipient.Kind]
	if !ok {
		return "", fmt.Errorf("%w: no survey link configured for kind %q", domain.ErrNotFound, recipient.Kind)
	}
	if strings.TrimSpace(recipient.Identifier) == "" {
		return "", fmt.Errorf("%w: recipient identifier is required", domain.ErrValidation)
	}

	return strings.ReplaceAll(tmpl, IdentifierToken, url.QueryEscape(recipient.Identifier)), nil
}
