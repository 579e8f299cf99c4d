package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"NewsDigest/internal/app"
	"NewsDigest/internal/config"
	"NewsDigest/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the newsdigest command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "newsdigest",
		Short:         "Resumable daily news digest pipeline",
		Long:          "Fetches the daily story list, translates and summarizes it with a language model and publishes the digest, one bounded step per invocation.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to the YAML config (default $NEWS_DIGEST_CONFIG)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "override logging.level (debug|info|warn|error)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewArchiveCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// open loads configuration and builds the application for one command.
func (o *RootOptions) open(cmd *cobra.Command) (*app.Application, config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, config.Config{}, nil, err
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}

	logger := logging.New(cfg.Logging)
	application, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, config.Config{}, nil, fmt.Errorf("start application: %w", err)
	}
	return application, cfg, logger, nil
}
