package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"NewsDigest/internal/domain"
)

// NewRunCommand performs a single state machine step.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Advance today's task by one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if date != "" {
				if _, err := time.Parse(domain.DateLayout, date); err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
			}

			application, _, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			result, err := application.Run(cmd.Context(), date)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s  %s -> %s", result.Date, result.From, result.To)
			if p := result.Progress; p.Processed > 0 || p.Total() > 0 {
				fmt.Fprintf(out, "  processed=%d pending=%d processing=%d done=%d failed=%d",
					p.Processed, p.Pending, p.Processing, p.Done, p.Failed)
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "work-date to advance (YYYY-MM-DD, default today in scheduler.timezone)")
	return cmd
}

// NewServeCommand runs steps on the cron schedule until interrupted.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run steps on scheduler.cronExpression until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, logger, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			err = application.Serve(cmd.Context())
			logger.Info("scheduler stopped")
			return err
		},
	}
}
