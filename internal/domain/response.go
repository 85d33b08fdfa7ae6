package domain

import "time"

// SurveyResponse is a response ingested from the survey sheet export. The
// scheduler only reads valid responses to exclude responders.
type SurveyResponse struct {
	ID                  string
	RecipientIdentifier string
	IsValid             bool
	Source              string
	SourceLine          int
	CreatedAt           time.Time
}
