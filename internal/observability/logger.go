package observability

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type runKey struct{}

func NewLogger(level string) (*zap.Logger, error) {
	parsedLevel, err := parseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parsedLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger, nil
}

func parseLevel(level string) (zapcore.Level, error) {
	var parsed zapcore.Level
	normalized := strings.ToLower(strings.TrimSpace(level))
	if normalized == "" {
		normalized = "info"
	}

	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	return parsed, nil
}

// Run identifies one delivery run in log output.
type Run struct {
	ID        string
	Mechanism string
	Template  string
}

func (r Run) fields() []zap.Field {
	fields := []zap.Field{zap.String("runId", r.ID)}
	if r.Mechanism != "" {
		fields = append(fields, zap.String("mechanism", r.Mechanism))
	}
	if r.Template != "" {
		fields = append(fields, zap.String("template", r.Template))
	}
	return fields
}

// WithRun tags ctx with the delivery run it belongs to. A run without an ID
// leaves ctx untouched.
func WithRun(ctx context.Context, run Run) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if run.ID == "" {
		return ctx
	}

	return context.WithValue(ctx, runKey{}, run)
}

func RunFromContext(ctx context.Context) (Run, bool) {
	if ctx == nil {
		return Run{}, false
	}

	run, ok := ctx.Value(runKey{}).(Run)
	return run, ok
}

// WithContextLogger annotates logger with the run carried by ctx.
func WithContextLogger(logger *zap.Logger, ctx context.Context) *zap.Logger {
	if logger == nil {
		return nil
	}

	run, ok := RunFromContext(ctx)
	if !ok {
		return logger
	}

	return logger.With(run.fields()...)
}
