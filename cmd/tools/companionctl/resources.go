package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helpyourself/companion/backend/internal/app"
	"github.com/helpyourself/companion/backend/internal/service/resources"
)

type ResourcesFlags struct {
	Curated    bool
	Advanced   bool
	MaxResults int
}

func NewResourcesFlags() *ResourcesFlags {
	return &ResourcesFlags{MaxResults: 10}
}

func (f *ResourcesFlags) BindFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&f.Curated, "curated", f.Curated, "Run the curated books and papers query instead of QUERY")
	fs.BoolVar(&f.Advanced, "advanced", f.Advanced, "Use the advanced search depth")
	fs.IntVar(&f.MaxResults, "max-results", f.MaxResults, "Maximum number of results")
}

func NewResourcesCommand(e *env) *cobra.Command {
	f := NewResourcesFlags()

	cmd := &cobra.Command{
		Use:   "resources [QUERY...]",
		Short: "Search mental-health reading material",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !f.Curated && len(args) == 0 {
				return errors.New("a query is required unless --curated is set")
			}
			client, err := app.NewSearch(e.cfg.Search, e.logger)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("search: %w (set TAVILY_API_KEY)", errNotConfigured)
			}

			var results []resources.Result
			if f.Curated {
				results, err = client.Curated(cmd.Context(), f.MaxResults)
			} else {
				req := resources.SearchRequest{
					Query:      strings.Join(args, " "),
					MaxResults: f.MaxResults,
				}
				if f.Advanced {
					req.SearchDepth = resources.DepthAdvanced
				}
				results, err = client.Search(cmd.Context(), req)
			}
			if err != nil {
				return errors.New(resources.Describe(err))
			}

			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Type != "" {
					fmt.Fprintf(out, "[%s] ", r.Type)
				}
				fmt.Fprintf(out, "%s\n  %s\n", r.Title, r.URL)
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}
