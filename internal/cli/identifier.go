package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kursadbilgin/survey-engine/internal/identifier"
)

func newIdentifierCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identifier",
		Short: "Derive and verify recipient identifiers",
	}

	cmd.AddCommand(
		newIdentifierDeriveCommand(rt),
		newIdentifierVerifyCommand(rt),
	)

	return cmd
}

func newIdentifierDeriveCommand(rt *runtime) *cobra.Command {
	var digested bool

	cmd := &cobra.Command{
		Use:   "derive [VALUE...]",
		Short: "Print the identifier for each value, read from stdin when no value is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := argsOrLines(args, rt.in)
			if err != nil {
				return err
			}

			for _, value := range values {
				fmt.Fprintln(rt.out, identifier.Derive(value, digested))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&digested, "digested", false, "values are already lowercase hex MD5 digests")

	return cmd
}

func newIdentifierVerifyCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [IDENTIFIER...]",
		Short: "Check the verifier character of each identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := argsOrLines(args, rt.in)
			if err != nil {
				return err
			}

			invalid := 0
			for _, value := range values {
				verdict := "valid"
				if !identifier.IsValid(value) {
					verdict = "invalid"
					invalid++
				}
				fmt.Fprintf(rt.out, "%s\t%s\n", value, verdict)
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d identifiers are invalid", invalid, len(values))
			}
			return nil
		},
	}
}

func argsOrLines(args []string, in io.Reader) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}

	var lines []string
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	return lines, nil
}
