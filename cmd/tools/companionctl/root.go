package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/helpyourself/companion/backend/internal/config"
	"github.com/helpyourself/companion/backend/pkg/logging"
)

// GlobalFlags apply to every subcommand.
type GlobalFlags struct {
	LogLevel string
}

func NewGlobalFlags() *GlobalFlags {
	return &GlobalFlags{LogLevel: "warn"}
}

func (f *GlobalFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.LogLevel, "log-level", f.LogLevel, "Log level (debug,info,warn,error)")
}

// env is resolved once per invocation before a subcommand runs.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
}

func NewRootCommand() *cobra.Command {
	f := NewGlobalFlags()
	e := &env{}

	cmd := &cobra.Command{
		Use:   "companionctl",
		Short: "Exercise the companion backend from the command line",
		Long: `companionctl runs single chat turns, scripted questionnaires,
resource searches and therapist lookups using the same configuration
as the API server (environment, .env or CONFIG_FILE).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(logging.Config{Level: f.LogLevel, Development: true})
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if e.logger != nil {
				_ = e.logger.Sync()
			}
		},
	}
	f.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		NewChatCommand(e),
		NewAssessCommand(e),
		NewResourcesCommand(e),
		NewPlacesCommand(e),
	)
	return cmd
}

var errNotConfigured = errors.New("collaborator not configured")
