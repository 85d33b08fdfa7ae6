package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_LevelMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		level        string
		debugEnabled bool
	}{
		{name: "debug level", level: "debug", debugEnabled: true},
		{name: "info level", level: "info", debugEnabled: false},
		{name: "empty level defaults to info", level: "", debugEnabled: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			logger, err := NewLogger(tc.level)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("logger should not be nil")
			}

			if got := logger.Core().Enabled(zapcore.DebugLevel); got != tc.debugEnabled {
				t.Fatalf("debug enabled=%v, want=%v", got, tc.debugEnabled)
			}
		})
	}
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	t.Parallel()

	logger, err := NewLogger("not-a-level")
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
	if logger != nil {
		t.Fatal("expected nil logger for invalid level")
	}
}

func TestRun_ContextHelpers(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		ctx    context.Context
		run    Run
		wantOK bool
	}{
		{name: "background", ctx: context.Background(), run: Run{ID: "run-123", Mechanism: "email"}, wantOK: true},
		{name: "todo", ctx: context.TODO(), run: Run{ID: "run-456"}, wantOK: true},
		{name: "missing id", ctx: context.Background(), run: Run{Mechanism: "webhook"}, wantOK: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, ok := RunFromContext(WithRun(tc.ctx, tc.run))
			if ok != tc.wantOK {
				t.Fatalf("ok=%v, want=%v", ok, tc.wantOK)
			}
			if ok && got != tc.run {
				t.Fatalf("run=%+v, want=%+v", got, tc.run)
			}
		})
	}
}

func TestRun_MissingValue(t *testing.T) {
	t.Parallel()

	if _, ok := RunFromContext(context.Background()); ok {
		t.Fatal("expected run to be missing")
	}
}

func TestWithContextLogger(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	ctx := WithRun(context.Background(), Run{ID: "run-789", Mechanism: "email", Template: "invitation-1"})
	loggerWithContext := WithContextLogger(baseLogger, ctx)
	loggerWithContext.Info("message with run")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	fields := entries[0].ContextMap()
	if got := fields["runId"]; got != "run-789" {
		t.Fatalf("runId=%v, want=%q", got, "run-789")
	}
	if got := fields["mechanism"]; got != "email" {
		t.Fatalf("mechanism=%v, want=%q", got, "email")
	}
	if got := fields["template"]; got != "invitation-1" {
		t.Fatalf("template=%v, want=%q", got, "invitation-1")
	}
}

func TestWithContextLogger_OmitsEmptyRunFields(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	loggerWithContext := WithContextLogger(zap.New(core), WithRun(context.Background(), Run{ID: "run-1"}))
	loggerWithContext.Info("bare run")

	fields := recorded.All()[0].ContextMap()
	if _, ok := fields["mechanism"]; ok {
		t.Fatal("expected mechanism field to be absent")
	}
	if _, ok := fields["template"]; ok {
		t.Fatal("expected template field to be absent")
	}
}

func TestWithContextLogger_NoRunID(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	baseLogger := zap.New(core)

	loggerWithContext := WithContextLogger(baseLogger, context.Background())
	loggerWithContext.Info("message without run")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("entries=%d, want=1", len(entries))
	}

	if _, ok := entries[0].ContextMap()["runId"]; ok {
		t.Fatal("expected runId field to be absent")
	}
}

func TestWithContextLogger_NilLogger(t *testing.T) {
	t.Parallel()

	if got := WithContextLogger(nil, context.Background()); got != nil {
		t.Fatal("expected nil logger")
	}
}
