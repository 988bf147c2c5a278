package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helpyourself/companion/backend/internal/app"
	model "github.com/helpyourself/companion/backend/internal/model/assessment"
	"github.com/helpyourself/companion/backend/internal/service/assessment"
	"github.com/helpyourself/companion/backend/internal/service/cloud"
)

type AssessFlags struct {
	UserID string
	JSON   bool
}

func NewAssessFlags() *AssessFlags {
	return &AssessFlags{}
}

func (f *AssessFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.UserID, "user", f.UserID, "User id for the cloud sync; empty skips syncing")
	fs.BoolVar(&f.JSON, "json", f.JSON, "Print the final run state as JSON")
}

func NewAssessCommand(e *env) *cobra.Command {
	f := NewAssessFlags()

	cmd := &cobra.Command{
		Use:   "assess KIND OPTION...",
		Short: "Answer a questionnaire non-interactively and store the result",
		Long: `assess runs the anxiety, stress or depression questionnaire with the
given answers, in order. Each answer is an option label ("Several days")
or its zero-based index.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := model.ParseKind(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			store, err := app.OpenStorage(e.cfg.Storage, e.logger)
			if err != nil {
				return err
			}
			defer store.Close()

			var cloudStore cloud.Store
			if f.UserID != "" {
				if cloudStore, err = app.OpenCloud(ctx, e.cfg.Cloud, e.logger); err != nil {
					return err
				}
				if cloudStore != nil {
					defer cloudStore.Close()
				}
			}

			runner := assessment.NewRunner(store, assessment.Options{Cloud: cloudStore}, e.logger)
			state, err := runner.Complete(ctx, kind, f.UserID, args[1:])
			if err != nil {
				return err
			}
			return printState(cmd, state, f.JSON)
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func printState(cmd *cobra.Command, state assessment.RunState, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(state)
	}
	if state.Outcome == nil {
		return nil
	}
	fmt.Fprintf(out, "%s score: %d\n", state.Kind, state.Outcome.Score)
	fmt.Fprintln(out, state.Outcome.Interpretation)
	if state.Outcome.Recommendation != "" {
		fmt.Fprintln(out, state.Outcome.Recommendation)
	}
	return nil
}
