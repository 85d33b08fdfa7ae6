package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/identifier"
	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/repository"
)

// DefaultIdentifierColumns are the header names the response sheet export
// may use for the identifier a respondent was sent.
var DefaultIdentifierColumns = []string{
	"Campo de Controle (não alterar)",
	"identifier",
	"recipient_identifier",
}

// ResponseImporter ingests a CSV export of the response sheet. Every row with
// an identifier becomes a SurveyResponse; IsValid tells whether the
// identifier passed the checksum.
type ResponseImporter struct {
	responses repository.ResponseRepository
	columns   []string
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	newID     func() string
}

func NewResponseImporter(
	responses repository.ResponseRepository,
	columns []string,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*ResponseImporter, error) {
	if responses == nil {
		return nil, fmt.Errorf("response repository is required")
	}
	if len(columns) == 0 {
		columns = DefaultIdentifierColumns
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ResponseImporter{
		responses: responses,
		columns:   columns,
		logger:    logger.With(zap.String("component", "responseImporter")),
		metrics:   metrics,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func (i *ResponseImporter) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open response file: %w", err)
	}
	defer file.Close()

	return i.Import(ctx, file, path)
}

func (i *ResponseImporter) Import(ctx context.Context, r io.Reader, source string) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	report := &ImportReport{Source: source}

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return report, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}

	indexes := i.identifierIndexes(header)
	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: %s has none of the identifier columns %v", domain.ErrValidation, source, i.columns)
	}

	var responses []domain.SurveyResponse
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s line %d: %w", source, line, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		report.Rows++

		id := firstValue(row, indexes)
		if id == "" {
			i.logger.Warn("skipping response without identifier", zap.String("source", source), zap.Int("line", line))
			report.Skipped++
			continue
		}

		valid := identifier.IsValid(id)
		if !valid {
			report.Invalid++
		}

		responses = append(responses, domain.SurveyResponse{
			ID:                  i.newID(),
			RecipientIdentifier: strings.ToUpper(id),
			IsValid:             valid,
			Source:              source,
			SourceLine:          line,
			CreatedAt:           i.now().UTC(),
		})
	}

	inserted, err := i.responses.CreateIgnoringConflicts(ctx, responses)
	if err != nil {
		return nil, fmt.Errorf("failed to insert responses from %s: %w", source, err)
	}
	report.Inserted = inserted
	report.Duplicates = int64(len(responses)) - inserted

	i.metrics.AddImported("responses", "inserted", int(report.Inserted))
	i.metrics.AddImported("responses", "duplicate", int(report.Duplicates))
	i.metrics.AddImported("responses", "skipped", report.Skipped)

	i.logger.Info("finished response import",
		zap.String("source", source),
		zap.Int("rows", report.Rows),
		zap.Int64("inserted", report.Inserted),
		zap.Int("invalid", report.Invalid),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

func (i *ResponseImporter) identifierIndexes(header []string) []int {
	var indexes []int
	for _, candidate := range i.columns {
		for idx, name := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")), strings.TrimSpace(candidate)) {
				indexes = append(indexes, idx)
			}
		}
	}
	return indexes
}

func firstValue(row []string, indexes []int) string {
	for _, idx := range indexes {
		if idx < len(row) {
			if value := strings.TrimSpace(row[idx]); value != "" {
				return value
			}
		}
	}
	return ""
}
