package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/survey-engine/internal/domain"
	"github.com/kursadbilgin/survey-engine/internal/identifier"
)

type recordingRecipientRepo struct {
	fakeRecipientRepo
	batches [][]domain.Recipient
	known   map[string]struct{}
}

func newRecordingRecipientRepo() *recordingRecipientRepo {
	repo := &recordingRecipientRepo{known: make(map[string]struct{})}
	repo.createBatchFn = func(ctx context.Context, recipients []domain.Recipient) (int64, error) {
		batch := append([]domain.Recipient(nil), recipients...)
		repo.batches = append(repo.batches, batch)

		var inserted int64
		for _, r := range batch {
			if _, ok := repo.known[r.Identifier]; ok {
				continue
			}
			repo.known[r.Identifier] = struct{}{}
			inserted++
		}
		return inserted, nil
	}
	return repo
}

func (r *recordingRecipientRepo) all() []domain.Recipient {
	var out []domain.Recipient
	for _, batch := range r.batches {
		out = append(out, batch...)
	}
	return out
}

func newTestRecipientImporter(t *testing.T, repo *recordingRecipientRepo, opts RecipientImporterOptions) *RecipientImporter {
	t.Helper()

	importer, err := NewRecipientImporter(repo, opts, nil, nil)
	if err != nil {
		t.Fatalf("NewRecipientImporter() error = %v", err)
	}
	importer.now = func() time.Time { return testNow }
	return importer
}

func TestRecipientImporterImport(t *testing.T) {
	t.Parallel()

	csvData := strings.Join([]string{
		"digest,kind,email,phone",
		"digest-1,A,Student.One@School.example,",
		"digest-2,P,teacher@school.example,+5511999990000",
		"digest-3,F,,+5511988880000",
		"digest-4,X,unknown@school.example,",
		"digest-5,A,,",
		"digest-6,A,outsider@gmail.com,",
		"digest-7,A,bounced@school.example,",
		"digest-8,A,broken@@school.example,",
		"digest-1,A,again@school.example,",
		"digest-9,A,student.one@school.example,",
		",A,nodigest@school.example,",
		"digest-10,teacher,named.kind@school.example,",
	}, "\n")

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{
		AllowedDomains: []string{"School.example"},
		SkipEmails:     map[string]struct{}{"Bounced@school.example": {}},
	})

	report, err := importer.Import(context.Background(), strings.NewReader(csvData), "roster.csv")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if report.Rows != 12 || report.Skipped != 8 || report.Inserted != 4 || report.Duplicates != 0 {
		t.Fatalf("report = %+v, want 12 rows, 8 skipped, 4 inserted", report)
	}

	got := repo.all()
	if len(got) != 4 {
		t.Fatalf("recipients = %d, want 4", len(got))
	}

	tests := []struct {
		digest string
		kind   domain.RecipientKind
		email  string
		phone  string
	}{
		{digest: "digest-1", kind: domain.RecipientKindStudent, email: "student.one@school.example"},
		{digest: "digest-2", kind: domain.RecipientKindTeacher, email: "teacher@school.example", phone: "+5511999990000"},
		{digest: "digest-3", kind: domain.RecipientKindFamilyMember, phone: "+5511988880000"},
		{digest: "digest-10", kind: domain.RecipientKindTeacher, email: "named.kind@school.example"},
	}
	for i, tt := range tests {
		r := got[i]
		if want := identifier.Derive(tt.digest, true); r.Identifier != want {
			t.Fatalf("recipient %d identifier = %q, want %q", i, r.Identifier, want)
		}
		if r.Kind != tt.kind {
			t.Fatalf("recipient %d kind = %q, want %q", i, r.Kind, tt.kind)
		}
		if r.EmailAddress() != tt.email {
			t.Fatalf("recipient %d email = %q, want %q", i, r.EmailAddress(), tt.email)
		}
		if r.PhoneNumber() != tt.phone {
			t.Fatalf("recipient %d phone = %q, want %q", i, r.PhoneNumber(), tt.phone)
		}
		if tt.email == "" && r.Email != nil {
			t.Fatalf("recipient %d email should be nil", i)
		}
		if !r.CreatedAt.Equal(testNow) {
			t.Fatalf("recipient %d createdAt = %v", i, r.CreatedAt)
		}
	}
}

func TestRecipientImporterFlushesInBatches(t *testing.T) {
	t.Parallel()

	csvData := "digest,kind,email,phone\n" +
		"d-1,A,a@x.example,\n" +
		"d-2,A,b@x.example,\n" +
		"d-3,A,c@x.example,\n" +
		"d-4,A,d@x.example,\n" +
		"d-5,A,e@x.example,\n"

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{BatchSize: 2})

	report, err := importer.Import(context.Background(), strings.NewReader(csvData), "roster.csv")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if len(repo.batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(repo.batches))
	}
	sizes := []int{len(repo.batches[0]), len(repo.batches[1]), len(repo.batches[2])}
	if sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("batch sizes = %v, want [2 2 1]", sizes)
	}
	if report.Inserted != 5 {
		t.Fatalf("report.Inserted = %d, want 5", report.Inserted)
	}
}

func TestRecipientImporterTracksCollisionsAcrossFiles(t *testing.T) {
	t.Parallel()

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{})

	first := "digest,kind,email,phone\nd-1,A,a@x.example,\n"
	second := "digest,kind,email,phone\nd-1,P,other@x.example,\nd-2,P,a@x.example,\nd-3,P,c@x.example,\n"

	if _, err := importer.Import(context.Background(), strings.NewReader(first), "students.csv"); err != nil {
		t.Fatalf("Import(first) error = %v", err)
	}
	report, err := importer.Import(context.Background(), strings.NewReader(second), "teachers.csv")
	if err != nil {
		t.Fatalf("Import(second) error = %v", err)
	}

	if report.Skipped != 2 || report.Inserted != 1 {
		t.Fatalf("second report = %+v, want 2 skipped and 1 inserted", report)
	}
}

func TestRecipientImporterCountsStoreDuplicates(t *testing.T) {
	t.Parallel()

	repo := newRecordingRecipientRepo()
	repo.known[identifier.Derive("d-1", true)] = struct{}{}
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{})

	report, err := importer.Import(context.Background(), strings.NewReader("h\nd-1,A,a@x.example,\nd-2,A,b@x.example,\n"), "roster.csv")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Inserted != 1 || report.Duplicates != 1 {
		t.Fatalf("report = %+v, want 1 inserted and 1 duplicate", report)
	}
}

func TestRecipientImporterKeepsDigestCase(t *testing.T) {
	t.Parallel()

	const raw = "5D41402ABC4B2A76B9719D911017C592"

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{AllowedDomains: []string{"gmail.com"}})

	input := "digest,kind,email,phone\n  " + raw + "  ,A,a@gmail.com,\n"
	if _, err := importer.Import(context.Background(), strings.NewReader(input), "roster.csv"); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	got := repo.all()
	if len(got) != 1 {
		t.Fatalf("recipients = %d, want 1", len(got))
	}
	if want := identifier.Derive(raw, true); got[0].Identifier != want {
		t.Fatalf("identifier = %q, want %q", got[0].Identifier, want)
	}
	if lowered := identifier.Derive(strings.ToLower(raw), true); got[0].Identifier == lowered {
		t.Fatalf("identifier %q was derived from the lowercased digest", got[0].Identifier)
	}
}

func TestRecipientImporterPropagatesStoreError(t *testing.T) {
	t.Parallel()

	repo := &fakeRecipientRepo{
		createBatchFn: func(ctx context.Context, recipients []domain.Recipient) (int64, error) {
			return 0, errors.New("disk full")
		},
	}
	importer, err := NewRecipientImporter(repo, RecipientImporterOptions{}, nil, nil)
	if err != nil {
		t.Fatalf("NewRecipientImporter() error = %v", err)
	}

	if _, err := importer.Import(context.Background(), strings.NewReader("h\nd-1,A,a@x.example,\n"), "roster.csv"); err == nil {
		t.Fatal("Import() expected error")
	}
}

func TestRecipientImporterEmptySource(t *testing.T) {
	t.Parallel()

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{})

	report, err := importer.Import(context.Background(), strings.NewReader(""), "empty.csv")
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if report.Rows != 0 || len(repo.batches) != 0 {
		t.Fatalf("report = %+v, batches = %d", report, len(repo.batches))
	}
}

func TestRecipientImporterImportFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "roster.csv")
	if err := os.WriteFile(path, []byte("h\nd-1,A,a@x.example,\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	repo := newRecordingRecipientRepo()
	importer := newTestRecipientImporter(t, repo, RecipientImporterOptions{})

	report, err := importer.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile() error = %v", err)
	}
	if report.Source != path || report.Inserted != 1 {
		t.Fatalf("report = %+v", report)
	}

	if _, err := importer.ImportFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("ImportFile() on a missing file expected error")
	}
}

func TestReadEmailList(t *testing.T) {
	t.Parallel()

	list, err := ReadEmailList(strings.NewReader("email,reason\nBounce@X.example,hard\n\n  soft@x.example ,soft\n,blank\n"))
	if err != nil {
		t.Fatalf("ReadEmailList() error = %v", err)
	}

	if len(list) != 2 {
		t.Fatalf("ReadEmailList() = %v, want 2 entries", list)
	}
	for _, email := range []string{"bounce@x.example", "soft@x.example"} {
		if _, ok := list[email]; !ok {
			t.Fatalf("ReadEmailList() missing %s", email)
		}
	}
}
