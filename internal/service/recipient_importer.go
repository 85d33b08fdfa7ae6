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

	"go.uber.org/zap"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/identifier"
	"github.com/kursadbilgin/survey-engine/internal/observability"
	"github.com/kursadbilgin/survey-engine/internal/repository"
)

const defaultImportBatchSize = 300

// ImportReport counts what an importer did with each row of a source.
type ImportReport struct {
	Source     string `json:"source"`
	Rows       int    `json:"rows"`
	Inserted   int64  `json:"inserted"`
	Duplicates int64  `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Invalid    int    `json:"invalid"`
}

type RecipientImporterOptions struct {
	// AllowedDomains restricts accepted email domains. Empty accepts all.
	AllowedDomains []string
	// SkipEmails lists addresses known to bounce.
	SkipEmails map[string]struct{}
	BatchSize  int
}

// RecipientImporter loads roster CSVs with the columns digest, kind, email,
// phone. The digest is an MD5 hex string computed upstream; it is turned
// into the recipient identifier here. Collisions are tracked per importer,
// so one importer should be used for all files of a single import.
type RecipientImporter struct {
	recipients repository.RecipientRepository
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time

	allowedDomains  map[string]struct{}
	skipEmails      map[string]struct{}
	batchSize       int
	seenIdentifiers map[string]string
	seenEmails      map[string]struct{}
}

func NewRecipientImporter(
	recipients repository.RecipientRepository,
	opts RecipientImporterOptions,
	logger *zap.Logger,
	metrics *observability.Metrics,
) (*RecipientImporter, error) {
	if recipients == nil {
		return nil, fmt.Errorf("recipient repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultImportBatchSize
	}

	allowed := make(map[string]struct{}, len(opts.AllowedDomains))
	for _, d := range opts.AllowedDomains {
		if trimmed := strings.ToLower(strings.TrimSpace(d)); trimmed != "" {
			allowed[trimmed] = struct{}{}
		}
	}

	skip := make(map[string]struct{}, len(opts.SkipEmails))
	for email := range opts.SkipEmails {
		skip[normalizeEmail(email)] = struct{}{}
	}

	return &RecipientImporter{
		recipients:      recipients,
		logger:          logger.With(zap.String("component", "recipientImporter")),
		metrics:         metrics,
		now:             time.Now,
		allowedDomains:  allowed,
		skipEmails:      skip,
		batchSize:       opts.BatchSize,
		seenIdentifiers: make(map[string]string),
		seenEmails:      make(map[string]struct{}),
	}, nil
}

func (i *RecipientImporter) ImportFile(ctx context.Context, path string) (*ImportReport, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient file: %w", err)
	}
	defer file.Close()

	return i.Import(ctx, file, path)
}

// Import reads one CSV source. The first row is a header and is skipped.
func (i *RecipientImporter) Import(ctx context.Context, r io.Reader, source string) (*ImportReport, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	report := &ImportReport{Source: source}
	i.logger.Info("starting recipient import", zap.String("source", source))

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return report, nil
		}
		return nil, fmt.Errorf("failed to read header of %s: %w", source, err)
	}

	pending := make([]domain.Recipient, 0, i.batchSize)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		inserted, err := i.recipients.CreateBatchIgnoringConflicts(ctx, pending)
		if err != nil {
			return fmt.Errorf("failed to insert recipients from %s: %w", source, err)
		}
		report.Inserted += inserted
		report.Duplicates += int64(len(pending)) - inserted
		pending = pending[:0]
		return nil
	}

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

		recipient, ok := i.parseRow(row, source, line)
		if !ok {
			report.Skipped++
			continue
		}

		pending = append(pending, recipient)
		if len(pending) >= i.batchSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}

	if err := flush(); err != nil {
		return nil, err
	}

	i.metrics.AddImported("recipients", "inserted", int(report.Inserted))
	i.metrics.AddImported("recipients", "duplicate", int(report.Duplicates))
	i.metrics.AddImported("recipients", "skipped", report.Skipped)

	i.logger.Info("finished recipient import",
		zap.String("source", source),
		zap.Int("rows", report.Rows),
		zap.Int64("inserted", report.Inserted),
		zap.Int64("duplicates", report.Duplicates),
		zap.Int("skipped", report.Skipped),
	)

	return report, nil
}

func (i *RecipientImporter) parseRow(row []string, source string, line int) (domain.Recipient, bool) {
	field := func(idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	digest := field(0)
	if digest == "" {
		i.logger.Warn("dropping row without digest", zap.String("source", source), zap.Int("line", line))
		return domain.Recipient{}, false
	}

	kind, err := parseKind(field(1))
	if err != nil {
		i.logger.Warn("dropping row with unknown kind",
			zap.String("source", source),
			zap.Int("line", line),
			zap.String("kind", field(1)),
		)
		return domain.Recipient{}, false
	}

	id := identifier.Derive(digest, true)
	if !identifier.IsValid(id) {
		i.logger.Warn("derived an identifier that does not verify",
			zap.String("source", source),
			zap.Int("line", line),
			zap.String("identifier", id),
		)
	}

	email := normalizeEmail(field(2))
	phone := field(3)

	if email != "" {
		if !i.emailAllowed(email) {
			i.logger.Debug("dropping email from non-allowed domain", zap.String("email", email))
			return domain.Recipient{}, false
		}
		if _, skip := i.skipEmails[email]; skip {
			i.logger.Debug("dropping email from skip list", zap.String("email", email))
			return domain.Recipient{}, false
		}
	}
	if email == "" && phone == "" {
		i.logger.Debug("dropping row without contact fields", zap.String("source", source), zap.Int("line", line))
		return domain.Recipient{}, false
	}

	if previous, seen := i.seenIdentifiers[id]; seen {
		i.logger.Warn("collision found",
			zap.String("identifier", id),
			zap.String("email", email),
			zap.String("duplicateEmail", previous),
		)
		return domain.Recipient{}, false
	}
	i.seenIdentifiers[id] = email

	if email != "" {
		if _, seen := i.seenEmails[email]; seen {
			i.logger.Warn("collision found", zap.String("identifier", id), zap.String("email", email))
			return domain.Recipient{}, false
		}
		i.seenEmails[email] = struct{}{}
	}

	recipient := domain.Recipient{
		Identifier: id,
		Kind:       kind,
		CreatedAt:  i.now().UTC(),
	}
	if email != "" {
		recipient.Email = &email
	}
	if phone != "" {
		recipient.Phone = &phone
	}

	return recipient, true
}

func (i *RecipientImporter) emailAllowed(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return false
	}
	if len(i.allowedDomains) == 0 {
		return true
	}
	_, ok := i.allowedDomains[parts[1]]
	return ok
}

func parseKind(raw string) (domain.RecipientKind, error) {
	if kind, err := domain.RecipientKindFromCode(raw); err == nil {
		return kind, nil
	}
	return domain.ParseRecipientKind(raw)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ReadEmailList reads the first column of a CSV with a header row.
func ReadEmailList(r io.Reader) (map[string]struct{}, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	emails := make(map[string]struct{})
	headerSkipped := false
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read email list: %w", err)
		}
		if !headerSkipped {
			headerSkipped = true
			continue
		}
		if len(row) == 0 {
			continue
		}
		if email := normalizeEmail(row[0]); email != "" {
			emails[email] = struct{}{}
		}
	}

	return emails, nil
}

func ReadEmailListFile(path string) (map[string]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open email list: %w", err)
	}
	defer file.Close()

	return ReadEmailList(file)
}
