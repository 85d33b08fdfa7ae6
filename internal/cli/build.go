package cli

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/config"
	"github.com/kursadbilgin/survey-engine/internal/content"
	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/provider"
	"github.com/kursadbilgin/survey-engine/internal/ratelimit"
	"github.com/kursadbilgin/survey-engine/internal/service"
)

// resolveMechanism applies a --mechanism override and revalidates, since
// each mechanism carries its own required settings.
func resolveMechanism(cfg *config.Config, override string) (domain.Mechanism, error) {
	if strings.TrimSpace(override) != "" {
		cfg.DeliveryMechanism = override
		if err := cfg.Validate(); err != nil {
			return "", fmt.Errorf("invalid config: %w", err)
		}
	}
	return cfg.Mechanism()
}

// newScheduler assembles a scheduler for one run. Every run gets its own
// transport and throttle, so the warmup restarts with each run.
func newScheduler(
	cfg *config.Config,
	mechanism domain.Mechanism,
	st *store,
	confirmer service.Confirmer,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*service.DeliveryScheduler, error) {
	transport, err := provider.New(mechanism, provider.Options{
		Email:      cfg.Email(),
		WebhookURL: cfg.WebhookURL,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	throttle, err := ratelimit.NewThrottle(cfg.Throttle())
	if err != nil {
		return nil, err
	}

	generator, err := content.NewGenerator(cfg.TemplateDir)
	if err != nil {
		return nil, err
	}

	links, err := content.NewLinkGenerator(cfg.SurveyLinks())
	if err != nil {
		return nil, err
	}

	return service.NewDeliveryScheduler(service.SchedulerDeps{
		Recipients: st.recipients,
		Attempts:   st.attempts,
		Responses:  st.responses,
		Transport:  transport,
		Pacer:      throttle,
		Content:    generator,
		Links:      links,
		Confirmer:  confirmer,
		Logger:     logger,
		Metrics:    metrics,
	}, service.SchedulerOptions{
		TemplateName: cfg.TemplateName,
		Title:        cfg.DeliveryTitle,
	})
}

func printRunReport(out io.Writer, report *service.RunReport) {
	fmt.Fprintf(out, "Run %s (%s): %d eligible, %d attempted, %d succeeded, %d failed\n",
		report.RunID, report.Mechanism, report.Eligible, report.Attempted, report.Succeeded, report.Failed)
}

func printImportReport(out io.Writer, report *service.ImportReport) {
	fmt.Fprintf(out, "%s: %d rows, %d inserted, %d duplicates, %d skipped, %d invalid\n",
		report.Source, report.Rows, report.Inserted, report.Duplicates, report.Skipped, report.Invalid)
}
