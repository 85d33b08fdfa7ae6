package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kursadbilgin/survey-engine/internal/service"
)

// PromptConfirmer asks the operator on a terminal before a run starts.
type PromptConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptConfirmer(in io.Reader, out io.Writer) *PromptConfirmer {
	return &PromptConfirmer{in: bufio.NewReader(in), out: out}
}

type promptAnswer struct {
	line string
	err  error
}

// Confirm accepts "y" or "yes" in any case. Anything else, including end of
// input, declines.
func (p *PromptConfirmer) Confirm(ctx context.Context, summary service.RunSummary) (bool, error) {
	fmt.Fprintf(p.out, "%d recipients are eligible for %s delivery with template %s.\n",
		summary.Eligible, summary.Mechanism, summary.TemplateName)
	fmt.Fprint(p.out, "Continue? Y/N ")

	answers := make(chan promptAnswer, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		answers <- promptAnswer{line: line, err: err}
	}()

	var answer promptAnswer
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case answer = <-answers:
	}

	if answer.err != nil && !errors.Is(answer.err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", answer.err)
	}

	switch strings.ToLower(strings.TrimSpace(answer.line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
