package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"NewsDigest/internal/config"
)

// NewStatusCommand prints task progress.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	var (
		date  string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show task status and item counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, _, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			statuses, err := application.Status(cmd.Context(), date, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DATE\tSTATUS\tTOTAL\tPENDING\tPROCESSING\tDONE\tFAILED\tUPDATED")
			for _, s := range statuses {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					s.Task.Date, s.Task.Status, s.Task.TotalItems,
					s.Counts.Pending, s.Counts.InProgress, s.Counts.Done, s.Counts.Failed,
					s.Task.UpdatedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "show a single work-date")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent tasks to list")
	return cmd
}

// NewArchiveCommand archives published tasks.
func NewArchiveCommand(opts *RootOptions) *cobra.Command {
	var olderThan string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Move published tasks older than --older-than to ARCHIVED",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			age := cfg.Maintenance.ArchiveAfter
			if olderThan != "" {
				if age, err = config.ParseAge(olderThan); err != nil {
					return err
				}
			}

			n, err := application.Archive(cmd.Context(), age)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archived %d task(s)\n", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&olderThan, "older-than", "", "age such as 7d or 36h (default maintenance.archiveAfter)")
	return cmd
}

// NewMigrateCommand applies database migrations and exits.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			application, cfg, _, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", cfg.Database.Driver)
			return nil
		},
	}
}
