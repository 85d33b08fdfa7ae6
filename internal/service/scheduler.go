package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/provider"
	"github.com/kursadbilgin/survey-engine/internal/repository"
)

const (
	persistAttempts     = 3
	persistRetryDelay   = 500 * time.Millisecond
	deinitializeTimeout = 30 * time.Second
)

// RunState is the phase a delivery run is in.
type RunState string

const (
	StateIdle                 RunState = "idle"
	StateInitializing         RunState = "initializing"
	StateFetching             RunState = "fetching"
	StateAwaitingConfirmation RunState = "awaitingConfirmation"
	StateDelivering           RunState = "delivering"
	StateDeinitializing       RunState = "deinitializing"
	StateDone                 RunState = "done"
	StateAborted              RunState = "aborted"
)

// ContentRenderer renders the personalized body for one recipient.
type ContentRenderer interface {
	Render(templateName string, kind domain.RecipientKind, mechanism domain.Mechanism, surveyLink string) (string, error)
}

// LinkBuilder builds the personalized survey link for one recipient.
type LinkBuilder interface {
	Link(recipient domain.Recipient) (string, error)
}

// Pacer hands out the pause to observe after each delivery attempt.
type Pacer interface {
	NextSleep() time.Duration
}

// Confirmer is asked once, after the eligible set is known, whether the
// run may start delivering.
type Confirmer interface {
	Confirm(ctx context.Context, summary RunSummary) (bool, error)
}

// RunSummary is what the operator sees before confirming a run.
type RunSummary struct {
	Mechanism    domain.Mechanism
	TemplateName string
	Eligible     int
}

// RunReport describes a finished run.
type RunReport struct {
	RunID      string           `json:"runId"`
	Mechanism  domain.Mechanism `json:"mechanism"`
	Eligible   int              `json:"eligible"`
	Attempted  int              `json:"attempted"`
	Succeeded  int              `json:"succeeded"`
	Failed     int              `json:"failed"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// RunStatus is a point-in-time view of a run for the status endpoint.
type RunStatus struct {
	RunID            string           `json:"runId,omitempty"`
	State            RunState         `json:"state"`
	Mechanism        domain.Mechanism `json:"mechanism"`
	Eligible         int              `json:"eligible"`
	Attempted        int              `json:"attempted"`
	Succeeded        int              `json:"succeeded"`
	Failed           int              `json:"failed"`
	CurrentRecipient string           `json:"currentRecipient,omitempty"`
	NextDeliveryAt   *time.Time       `json:"nextDeliveryAt,omitempty"`
	StartedAt        *time.Time       `json:"startedAt,omitempty"`
	FinishedAt       *time.Time       `json:"finishedAt,omitempty"`
	LastError        string           `json:"lastError,omitempty"`
}

type SchedulerDeps struct {
	Recipients repository.RecipientRepository
	Attempts   repository.AttemptRepository
	Responses  repository.ResponseRepository
	Transport  provider.Transport
	Pacer      Pacer
	Content    ContentRenderer
	Links      LinkBuilder
	Confirmer  Confirmer
	Clock      clockwork.Clock
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

type SchedulerOptions struct {
	TemplateName string
	Title        string
}

// DeliveryScheduler runs one mechanism's deliveries strictly one recipient
// at a time. A scheduler serves a single Run.
type DeliveryScheduler struct {
	recipients repository.RecipientRepository
	attempts   repository.AttemptRepository
	responses  repository.ResponseRepository
	transport  provider.Transport
	pacer      Pacer
	content    ContentRenderer
	links      LinkBuilder
	confirmer  Confirmer
	clock      clockwork.Clock
	logger     *zap.Logger
	metrics    *observability.Metrics

	mechanism    domain.Mechanism
	templateName string
	title        string

	sleep    func(ctx context.Context, d time.Duration) error
	newID    func() string
	retryGap time.Duration

	mu     sync.RWMutex
	status RunStatus
}

func NewDeliveryScheduler(deps SchedulerDeps, opts SchedulerOptions) (*DeliveryScheduler, error) {
	if deps.Recipients == nil || deps.Attempts == nil || deps.Responses == nil {
		return nil, fmt.Errorf("recipient, attempt and response repositories are required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("transport is required")
	}
	if deps.Pacer == nil {
		return nil, fmt.Errorf("pacer is required")
	}
	if deps.Content == nil || deps.Links == nil {
		return nil, fmt.Errorf("content and link generators are required")
	}
	if strings.TrimSpace(opts.TemplateName) == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrValidation)
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Confirmer == nil {
		deps.Confirmer = AutoConfirm{}
	}

	mechanism := deps.Transport.Mechanism()
	if !mechanism.IsValid() {
		return nil, fmt.Errorf("%w: transport reports invalid mechanism %q", domain.ErrValidation, mechanism)
	}

	s := &DeliveryScheduler{
		recipients:   deps.Recipients,
		attempts:     deps.Attempts,
		responses:    deps.Responses,
		transport:    deps.Transport,
		pacer:        deps.Pacer,
		content:      deps.Content,
		links:        deps.Links,
		confirmer:    deps.Confirmer,
		clock:        deps.Clock,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		mechanism:    mechanism,
		templateName: strings.TrimSpace(opts.TemplateName),
		title:        opts.Title,
		newID:        uuid.NewString,
		retryGap:     persistRetryDelay,
		status:       RunStatus{State: StateIdle, Mechanism: mechanism},
	}
	s.sleep = s.clockSleep

	return s, nil
}

func (s *DeliveryScheduler) Mechanism() domain.Mechanism {
	return s.mechanism
}

// RemainingRecipients returns every recipient that has neither a successful
// attempt through this mechanism nor a valid response, ordered by
// identifier. Recipients with failed attempts only stay eligible.
func (s *DeliveryScheduler) RemainingRecipients(ctx context.Context) ([]domain.Recipient, error) {
	delivered, err := s.attempts.SuccessfulIdentifiers(ctx, s.mechanism)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch delivered identifiers: %w", err)
	}

	responded, err := s.responses.ValidIdentifiers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch responded identifiers: %w", err)
	}

	excluded := make(map[string]struct{}, len(delivered)+len(responded))
	for _, id := range delivered {
		excluded[id] = struct{}{}
	}
	for _, id := range responded {
		excluded[id] = struct{}{}
	}

	s.loggerFor(ctx).Info("computed identifiers to skip",
		zap.Int("deliveredCount", len(delivered)),
		zap.Int("respondedCount", len(responded)),
		zap.Int("skippedCount", len(excluded)),
	)

	remaining, err := s.recipients.FindExcluding(ctx, excluded)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remaining recipients: %w", err)
	}

	return remaining, nil
}

// Status returns a snapshot of the current run.
func (s *DeliveryScheduler) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.status
}

// loggerFor tags s.logger with the run carried by ctx, or with the
// mechanism alone outside a run.
func (s *DeliveryScheduler) loggerFor(ctx context.Context) *zap.Logger {
	if _, ok := observability.RunFromContext(ctx); ok {
		return observability.WithContextLogger(s.logger, ctx)
	}
	return s.logger.With(zap.String("mechanism", s.mechanism.String()))
}

// Run performs one full delivery run.
func (s *DeliveryScheduler) Run(ctx context.Context) (*RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	runID := s.newID()
	ctx = observability.WithRun(ctx, observability.Run{
		ID:        runID,
		Mechanism: s.mechanism.String(),
		Template:  s.templateName,
	})
	logger := s.loggerFor(ctx)

	report := &RunReport{
		RunID:     runID,
		Mechanism: s.mechanism,
		StartedAt: s.clock.Now().UTC(),
	}

	s.update(func(st *RunStatus) {
		*st = RunStatus{RunID: runID, State: StateInitializing, Mechanism: s.mechanism, StartedAt: timePtr(report.StartedAt)}
	})

	logger.Info("initializing transport")
	if err := s.transport.Initialize(ctx); err != nil {
		logger.Error("transport initialization failed", zap.Error(err))
		return s.abort(report, fmt.Errorf("%w: %v", domain.ErrInitialization, err))
	}

	err := s.runInitialized(ctx, logger, report)

	s.setState(StateDeinitializing)
	s.deinitialize(ctx, logger)

	if err != nil {
		return s.abort(report, err)
	}

	report.FinishedAt = s.clock.Now().UTC()
	s.update(func(st *RunStatus) {
		st.State = StateDone
		st.CurrentRecipient = ""
		st.NextDeliveryAt = nil
		st.FinishedAt = timePtr(report.FinishedAt)
	})
	s.metrics.IncRun(s.mechanism.String(), string(StateDone))

	logger.Info("delivery run finished",
		zap.Int("eligible", report.Eligible),
		zap.Int("attempted", report.Attempted),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)

	return report, nil
}

func (s *DeliveryScheduler) runInitialized(ctx context.Context, logger *zap.Logger, report *RunReport) error {
	s.setState(StateFetching)

	remaining, err := s.RemainingRecipients(ctx)
	if err != nil {
		logger.Error("failed to compute eligible recipients", zap.Error(err))
		return err
	}

	report.Eligible = len(remaining)
	s.update(func(st *RunStatus) { st.Eligible = len(remaining) })
	s.metrics.SetEligibleRecipients(s.mechanism.String(), len(remaining))

	logger.Info("fetched remaining recipients", zap.Int("count", len(remaining)))

	s.setState(StateAwaitingConfirmation)
	confirmed, err := s.confirmer.Confirm(ctx, RunSummary{
		Mechanism:    s.mechanism,
		TemplateName: s.templateName,
		Eligible:     len(remaining),
	})
	if err != nil {
		return fmt.Errorf("failed to confirm delivery run: %w", err)
	}
	if !confirmed {
		logger.Info("delivery run declined by operator")
		return domain.ErrRunDeclined
	}

	s.setState(StateDelivering)

	for i := range remaining {
		// The operator cannot cancel past confirmation. ctx only ends here on a
		// shutdown signal or when the run lock lease is lost.
		if err := ctx.Err(); err != nil {
			logger.Warn("delivery run interrupted",
				zap.Int("attempted", report.Attempted),
				zap.Int("remaining", len(remaining)-i),
			)
			return err
		}

		recipient := remaining[i]
		s.update(func(st *RunStatus) {
			st.CurrentRecipient = recipient.Identifier
			st.NextDeliveryAt = nil
		})

		attempt := s.deliverOne(ctx, logger, recipient)

		if err := s.persistAttempt(ctx, logger, attempt); err != nil {
			return err
		}

		report.Attempted++
		if attempt.WasSuccessful {
			report.Succeeded++
		} else {
			report.Failed++
		}
		s.update(func(st *RunStatus) {
			st.Attempted = report.Attempted
			st.Succeeded = report.Succeeded
			st.Failed = report.Failed
		})
		s.metrics.IncDelivery(s.mechanism.String(), attempt.WasSuccessful)
		s.metrics.SetEligibleRecipients(s.mechanism.String(), len(remaining)-i-1)

		pause := s.pacer.NextSleep()
		if i == len(remaining)-1 {
			break
		}

		next := s.clock.Now().Add(pause).UTC()
		s.update(func(st *RunStatus) {
			st.CurrentRecipient = ""
			st.NextDeliveryAt = &next
		})
		s.metrics.ObserveThrottleSleep(s.mechanism.String(), pause)

		logger.Debug("sleeping before next delivery", zap.Duration("sleep", pause))
		if err := s.sleep(ctx, pause); err != nil {
			logger.Warn("delivery run interrupted while sleeping", zap.Int("attempted", report.Attempted))
			return err
		}
	}

	return nil
}

// deliverOne never fails: every error becomes a failed attempt.
func (s *DeliveryScheduler) deliverOne(ctx context.Context, logger *zap.Logger, recipient domain.Recipient) domain.DeliveryAttempt {
	info, err := s.attemptDelivery(ctx, recipient)

	attempt := domain.DeliveryAttempt{
		ID:                  s.newID(),
		Timestamp:           s.clock.Now().UTC(),
		Mechanism:           s.mechanism,
		RecipientIdentifier: recipient.Identifier,
		WasSuccessful:       err == nil,
	}

	if err != nil {
		attempt.Notes = marshalNotes(provider.DescribeFailure(err))
		logger.Error("delivery failed",
			zap.String("recipientIdentifier", recipient.Identifier),
			zap.Bool("transient", provider.IsTransient(err)),
			zap.Error(err),
		)
		return attempt
	}

	attempt.Notes = marshalNotes(info)
	logger.Info("delivery was successful", zap.String("recipientIdentifier", recipient.Identifier))
	return attempt
}

func (s *DeliveryScheduler) attemptDelivery(ctx context.Context, recipient domain.Recipient) (*provider.DeliveryInfo, error) {
	link, err := s.links.Link(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to build survey link: %w", err)
	}

	body, err := s.content.Render(s.templateName, recipient.Kind, s.mechanism, link)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	start := s.clock.Now()
	info, err := s.transport.Deliver(ctx, recipient, provider.Content{Title: s.title, Body: body})
	s.metrics.ObserveDeliveryDuration(s.mechanism.String(), s.clock.Since(start))
	if err != nil {
		return nil, err
	}
	if info == nil {
		info = &provider.DeliveryInfo{Mechanism: s.mechanism}
	}

	return info, nil
}

// persistAttempt writes the attempt with a few retries. The write ignores
// cancellation of ctx so an interrupted run still records what it sent.
func (s *DeliveryScheduler) persistAttempt(ctx context.Context, logger *zap.Logger, attempt domain.DeliveryAttempt) error {
	writeCtx := context.WithoutCancel(ctx)

	var lastErr error
	for try := 1; try <= persistAttempts; try++ {
		record := attempt
		if lastErr = s.attempts.Create(writeCtx, &record); lastErr == nil {
			return nil
		}

		logger.Warn("failed to record delivery attempt",
			zap.String("attemptId", attempt.ID),
			zap.Int("try", try),
			zap.Error(lastErr),
		)
		if try < persistAttempts {
			_ = s.sleep(writeCtx, time.Duration(try)*s.retryGap)
		}
	}

	s.metrics.IncPersistenceFailure(s.mechanism.String())
	logger.Error("delivery attempt record lost",
		zap.String("attemptId", attempt.ID),
		zap.Time("timestamp", attempt.Timestamp),
		zap.String("deliveryMechanism", attempt.Mechanism.String()),
		zap.String("recipientIdentifier", attempt.RecipientIdentifier),
		zap.Bool("wasSuccessful", attempt.WasSuccessful),
		zap.String("notes", attempt.Notes),
		zap.Error(lastErr),
	)

	return fmt.Errorf("%w: attempt %s for %s: %v", domain.ErrPersistence, attempt.ID, attempt.RecipientIdentifier, lastErr)
}

func (s *DeliveryScheduler) deinitialize(ctx context.Context, logger *zap.Logger) {
	deinitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deinitializeTimeout)
	defer cancel()

	if err := s.transport.Deinitialize(deinitCtx); err != nil {
		logger.Warn("transport deinitialization failed", zap.Error(err))
		return
	}
	logger.Info("transport deinitialized")
}

func (s *DeliveryScheduler) abort(report *RunReport, err error) (*RunReport, error) {
	report.FinishedAt = s.clock.Now().UTC()
	s.update(func(st *RunStatus) {
		st.State = StateAborted
		st.CurrentRecipient = ""
		st.NextDeliveryAt = nil
		st.FinishedAt = timePtr(report.FinishedAt)
		st.LastError = err.Error()
	})

	result := string(StateAborted)
	if errors.Is(err, domain.ErrRunDeclined) {
		result = "declined"
	}
	s.metrics.IncRun(s.mechanism.String(), result)

	return report, err
}

func (s *DeliveryScheduler) setState(state RunState) {
	s.update(func(st *RunStatus) { st.State = state })
}

func (s *DeliveryScheduler) update(fn func(st *RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.status)
}

func (s *DeliveryScheduler) clockSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func marshalNotes(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error":%q}`, err.Error())
	}
	return string(raw)
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// AutoConfirm approves every run. It backs unattended and scheduled runs.
type AutoConfirm struct{}

func (AutoConfirm) Confirm(context.Context, RunSummary) (bool, error) { return true, nil }
