package content

import (
	"errors"
	"testing"

	"github.com/kursadbilgin/survey-engine/internal/domain"
)

func TestLinkGeneratorLink(t *testing.T) {
	t.Parallel()

	generator, err := NewLinkGenerator(map[domain.RecipientKind]string{
		domain.RecipientKindStudent: "https://survey.example/student?id=PERSON_IDENTIFIER_TOKEN",
		domain.RecipientKindTeacher: "https://survey.example/teacher/PERSON_IDENTIFIER_TOKEN/start",
	})
	if err != nil {
		t.Fatalf("NewLinkGenerator() error = %v", err)
	}

	tests := []struct {
		name      string
		recipient domain.Recipient
		want      string
		wantErr   error
	}{
		{
			name:      "student",
			recipient: domain.Recipient{Identifier: "024D0127-0", Kind: domain.RecipientKindStudent},
			want:      "https://survey.example/student?id=024D0127-0",
		},
		{
			name:      "teacher",
			recipient: domain.Recipient{Identifier: "11E60398-N", Kind: domain.RecipientKindTeacher},
			want:      "https://survey.example/teacher/11E60398-N/start",
		},
		{
			name:      "unconfigured kind",
			recipient: domain.Recipient{Identifier: "11E60398-N", Kind: domain.RecipientKindFamilyMember},
			wantErr:   domain.ErrNotFound,
		},
		{
			name:      "missing identifier",
			recipient: domain.Recipient{Kind: domain.RecipientKindStudent},
			wantErr:   domain.ErrValidation,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := generator.Link(tt.recipient)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Link() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Link() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Link() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewLinkGeneratorValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewLinkGenerator(map[domain.RecipientKind]string{
		domain.RecipientKindStudent: "https://survey.example/student",
	}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("NewLinkGenerator() without token error = %v, want ErrValidation", err)
	}

	if _, err := NewLinkGenerator(map[domain.RecipientKind]string{
		domain.RecipientKindStudent: "not a url PERSON_IDENTIFIER_TOKEN",
	}); err == nil {
		t.Fatal("NewLinkGenerator() with invalid url expected error")
	}

	generator, err := NewLinkGenerator(map[domain.RecipientKind]string{
		domain.RecipientKindStudent: "   ",
	})
	if err != nil {
		t.Fatalf("NewLinkGenerator() with blank entry error = %v", err)
	}
	if _, err := generator.Link(domain.Recipient{Identifier: "024D0127-0", Kind: domain.RecipientKindStudent}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Link() for blank entry error = %v, want ErrNotFound", err)
	}
}
