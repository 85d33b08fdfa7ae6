package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kursadbilgin/survey-engine/internal/service"
)

func newImportCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load recipient rosters and survey responses",
	}

	cmd.AddCommand(
		newImportRecipientsCommand(rt),
		newImportResponsesCommand(rt),
	)

	return cmd
}

func newImportRecipientsCommand(rt *runtime) *cobra.Command {
	var (
		skipList  string
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "recipients FILE...",
		Short: "Import roster CSVs with the columns digest, kind, email, phone",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rt.load()
			if err != nil {
				return err
			}

			var skip map[string]struct{}
			if skipList != "" {
				skip, err = service.ReadEmailListFile(skipList)
				if err != nil {
					return err
				}
			}

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			importer, err := service.NewRecipientImporter(st.recipients, service.RecipientImporterOptions{
				AllowedDomains: cfg.EmailDomains(),
				SkipEmails:     skip,
				BatchSize:      batchSize,
			}, logger, nil)
			if err != nil {
				return err
			}

			for _, path := range args {
				report, err := importer.ImportFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				printImportReport(rt.out, report)
			}

			total, err := st.recipients.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "%d recipients stored\n", total)
			return nil
		},
	}

	cmd.Flags().StringVar(&skipList, "skip-list", "", "CSV of email addresses to leave out, first column, with header")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per insert batch")

	return cmd
}

func newImportResponsesCommand(rt *runtime) *cobra.Command {
	var columns []string

	cmd := &cobra.Command{
		Use:   "responses FILE...",
		Short: "Import CSV exports of the response sheet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rt.load()
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			importer, err := service.NewResponseImporter(st.responses, columns, logger, nil)
			if err != nil {
				return err
			}

			for _, path := range args {
				report, err := importer.ImportFile(cmd.Context(), path)
				if err != nil {
					return err
				}
				printImportReport(rt.out, report)
			}

			total, err := st.responses.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(rt.out, "%d responses stored\n", total)
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&columns, "column", nil, "header names that may hold the identifier (default: known export headers)")

	return cmd
}
