package service

import (
	"context"
	"time"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/provider"
)

type fakeRecipientRepo struct {
	findExcludingFn   func(ctx context.Context, excluded map[string]struct{}) ([]domain.Recipient, error)
	getByIdentifierFn func(ctx context.Context, identifier string) (*domain.Recipient, error)
	createBatchFn     func(ctx context.Context, recipients []domain.Recipient) (int64, error)
	countFn           func(ctx context.Context) (int64, error)
}

func (f *fakeRecipientRepo) FindExcluding(ctx context.Context, excluded map[string]struct{}) ([]domain.Recipient, error) {
	if f.findExcludingFn != nil {
		return f.findExcludingFn(ctx, excluded)
	}
	return nil, nil
}

func (f *fakeRecipientRepo) GetByIdentifier(ctx context.Context, identifier string) (*domain.Recipient, error) {
	if f.getByIdentifierFn != nil {
		return f.getByIdentifierFn(ctx, identifier)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeRecipientRepo) CreateBatchIgnoringConflicts(ctx context.Context, recipients []domain.Recipient) (int64, error) {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, recipients)
	}
	return int64(len(recipients)), nil
}

func (f *fakeRecipientRepo) Count(ctx context.Context) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return 0, nil
}

type fakeAttemptRepo struct {
	createFn                func(ctx context.Context, a *domain.DeliveryAttempt) error
	successfulIdentifiersFn func(ctx context.Context, mechanism domain.Mechanism) ([]string, error)
	getByRecipientFn        func(ctx context.Context, recipientIdentifier string) ([]domain.DeliveryAttempt, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) SuccessfulIdentifiers(ctx context.Context, mechanism domain.Mechanism) ([]string, error) {
	if f.successfulIdentifiersFn != nil {
		return f.successfulIdentifiersFn(ctx, mechanism)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) GetByRecipient(ctx context.Context, recipientIdentifier string) ([]domain.DeliveryAttempt, error) {
	if f.getByRecipientFn != nil {
		return f.getByRecipientFn(ctx, recipientIdentifier)
	}
	return nil, nil
}

type fakeResponseRepo struct {
	validIdentifiersFn func(ctx context.Context) ([]string, error)
	createFn           func(ctx context.Context, responses []domain.SurveyResponse) (int64, error)
	countFn            func(ctx context.Context) (int64, error)
}

func (f *fakeResponseRepo) ValidIdentifiers(ctx context.Context) ([]string, error) {
	if f.validIdentifiersFn != nil {
		return f.validIdentifiersFn(ctx)
	}
	return nil, nil
}

func (f *fakeResponseRepo) CreateIgnoringConflicts(ctx context.Context, responses []domain.SurveyResponse) (int64, error) {
	if f.createFn != nil {
		return f.createFn(ctx, responses)
	}
	return int64(len(responses)), nil
}

func (f *fakeResponseRepo) Count(ctx context.Context) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return 0, nil
}

type fakeTransport struct {
	mechanism      domain.Mechanism
	initializeFn   func(ctx context.Context) error
	deinitializeFn func(ctx context.Context) error
	deliverFn      func(ctx context.Context, recipient domain.Recipient, content provider.Content) (*provider.DeliveryInfo, error)

	initialized   int
	deinitialized int
}

func (f *fakeTransport) Mechanism() domain.Mechanism {
	if f.mechanism == "" {
		return domain.MechanismMock
	}
	return f.mechanism
}

func (f *fakeTransport) Initialize(ctx context.Context) error {
	f.initialized++
	if f.initializeFn != nil {
		return f.initializeFn(ctx)
	}
	return nil
}

func (f *fakeTransport) Deinitialize(ctx context.Context) error {
	f.deinitialized++
	if f.deinitializeFn != nil {
		return f.deinitializeFn(ctx)
	}
	return nil
}

func (f *fakeTransport) Deliver(ctx context.Context, recipient domain.Recipient, content provider.Content) (*provider.DeliveryInfo, error) {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, recipient, content)
	}
	return &provider.DeliveryInfo{Mechanism: f.Mechanism()}, nil
}

type fakePacer struct {
	nextFn func() time.Duration
	calls  int
}

func (f *fakePacer) NextSleep() time.Duration {
	f.calls++
	if f.nextFn != nil {
		return f.nextFn()
	}
	return time.Second
}

type fakeContent struct {
	renderFn func(templateName string, kind domain.RecipientKind, mechanism domain.Mechanism, surveyLink string) (string, error)
}

func (f *fakeContent) Render(templateName string, kind domain.RecipientKind, mechanism domain.Mechanism, surveyLink string) (string, error) {
	if f.renderFn != nil {
		return f.renderFn(templateName, kind, mechanism, surveyLink)
	}
	return "body " + surveyLink, nil
}

type fakeLinks struct {
	linkFn func(recipient domain.Recipient) (string, error)
}

func (f *fakeLinks) Link(recipient domain.Recipient) (string, error) {
	if f.linkFn != nil {
		return f.linkFn(recipient)
	}
	return "https://survey.example/?id=" + recipient.Identifier, nil
}

type fakeConfirmer struct {
	confirmFn func(ctx context.Context, summary RunSummary) (bool, error)
}

func (f *fakeConfirmer) Confirm(ctx context.Context, summary RunSummary) (bool, error) {
	if f.confirmFn != nil {
		return f.confirmFn(ctx, summary)
	}
	return true, nil
}
