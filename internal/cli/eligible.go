package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kursadbilgin/survey-engine/internal/service"
)

func newEligibleCommand(rt *runtime) *cobra.Command {
	var (
		mechanism string
		list      bool
	)

	cmd := &cobra.Command{
		Use:   "eligible",
		Short: "Show the recipients the next run would deliver to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := rt.load()
			if err != nil {
				return err
			}

			resolved, err := resolveMechanism(cfg, mechanism)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			scheduler, err := newScheduler(cfg, resolved, st, service.AutoConfirm{}, logger, nil)
			if err != nil {
				return err
			}

			remaining, err := scheduler.RemainingRecipients(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(rt.out, "%d recipients eligible for %s delivery\n", len(remaining), resolved)
			if list {
				for _, r := range remaining {
					fmt.Fprintf(rt.out, "%s\t%s\n", r.Identifier, r.Kind)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mechanism, "mechanism", "", "delivery mechanism; overrides DELIVERY_MECHANISM")
	cmd.Flags().BoolVar(&list, "list", false, "print each eligible identifier and kind")

	return cmd
}
