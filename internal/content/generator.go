package content

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

// legacyLinkToken is accepted in template files written for the previous
// tooling and rewritten to the template action before parsing.
const legacyLinkToken = "{{ PERSONALIZED_SURVEY_LINK }}"

const linkAction = "{{ .SurveyLink }}"

// TemplateData is what a template file can reference.
type TemplateData struct {
	SurveyLink string
	Kind       string
	Mechanism  string
}

type renderer interface {
	Execute(w *bytes.Buffer, data TemplateData) error
}

type textRenderer struct{ tmpl *texttemplate.Template }

func (r textRenderer) Execute(w *bytes.Buffer, data TemplateData) error { return r.tmpl.Execute(w, data) }

type htmlRenderer struct{ tmpl *htmltemplate.Template }

func (r htmlRenderer) Execute(w *bytes.Buffer, data TemplateData) error { return r.tmpl.Execute(w, data) }

// Generator renders the message body for a recipient from a template file
// named <template>-<kind>-<mechanism>.<ext> under its directory. Parsed
// templates are cached per instance.
type Generator struct {
	dir string

	mu    sync.Mutex
	cache map[string]renderer
}

func NewGenerator(dir string) (*Generator, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("template directory is required")
	}

	return &Generator{
		dir:   trimmed,
		cache: make(map[string]renderer),
	}, nil
}

// Extension returns the template file extension used for mechanism.
func Extension(mechanism domain.Mechanism) string {
	if mechanism == domain.MechanismEmail {
		return "html"
	}
	return "txt"
}

// TemplatePath returns the file a template is read from.
func (g *Generator) TemplatePath(templateName string, kind domain.RecipientKind, mechanism domain.Mechanism) string {
	fileName := fmt.Sprintf("%s-%s-%s.%s", templateName, kind, mechanism, Extension(mechanism))
	return filepath.Join(g.dir, fileName)
}

// Render personalizes the template with the recipient's survey link.
func (g *Generator) Render(templateName string, kind domain.RecipientKind, mechanism domain.Mechanism, surveyLink string) (string, error) {
	if strings.TrimSpace(templateName) == "" {
		return "", fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: invalid recipient kind %q", domain.ErrValidation, kind)
	}
	if !mechanism.IsValid() {
		return "", fmt.Errorf("%w: invalid delivery mechanism %q", domain.ErrValidation, mechanism)
	}

	tmpl, err := g.load(g.TemplatePath(templateName, kind, mechanism), mechanism)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, TemplateData{
		SurveyLink: surveyLink,
		Kind:       kind.String(),
		Mechanism:  mechanism.String(),
	}); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

func (g *Generator) load(path string, mechanism domain.Mechanism) (renderer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cached, ok := g.cache[path]; ok {
		return cached, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	text := strings.ReplaceAll(string(raw), legacyLinkToken, linkAction)
	name := filepath.Base(path)

	var parsed renderer
	if Extension(mechanism) == "html" {
		tmpl, err := htmltemplate.New(name).Funcs(sprig.HtmlFuncMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
		}
		parsed = htmlRenderer{tmpl: tmpl}
	} else {
		tmpl, err := texttemplate.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", path, err)
		}
		parsed = textRenderer{tmpl: tmpl}
	}

	g.cache[path] = parsed
	return parsed, nil
}
