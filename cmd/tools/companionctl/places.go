package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/helpyourself/companion/backend/internal/app"
	"github.com/helpyourself/companion/backend/internal/service/places"
)

type PlacesFlags struct {
	Lat float64
	Lng float64
}

func NewPlacesFlags() *PlacesFlags {
	return &PlacesFlags{}
}

func (f *PlacesFlags) BindFlags(fs *pflag.FlagSet) {
	fs.Float64Var(&f.Lat, "lat", f.Lat, "Latitude of the search center")
	fs.Float64Var(&f.Lng, "lng", f.Lng, "Longitude of the search center")
}

func NewPlacesCommand(e *env) *cobra.Command {
	f := NewPlacesFlags()

	cmd := &cobra.Command{
		Use:   "places",
		Short: "List therapists near a coordinate, best rated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.NewPlaces(e.cfg.Places, e.logger)
			if err != nil {
				return err
			}
			if client == nil {
				return fmt.Errorf("places: %w (set PLACES_API_KEY)", errNotConfigured)
			}

			found, err := client.NearbyTherapists(cmd.Context(), f.Lat, f.Lng)
			if errors.Is(err, places.ErrNoneFound) {
				fmt.Fprintln(cmd.OutOrStdout(), err.Error())
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range found {
				fmt.Fprintf(out, "%.1f  %s\n     %s\n", p.Rating, p.Name, p.Address)
			}
			return nil
		},
	}

	f.BindFlags(cmd.Flags())
	if err := cmd.MarkFlagRequired("lat"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("lng"); err != nil {
		panic(err)
	}
	return cmd
}
