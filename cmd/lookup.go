package cmd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/zjrosen/boardwalk/internal/geocode"
	"github.com/zjrosen/boardwalk/internal/weather"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Look up the coordinates of a place",
	Example: `  boardwalk geocode --place "San Francisco"`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := geocode.New(geocode.Config{
			BaseURL:           cfg.Geocode.BaseURL,
			APIKey:            cfg.Geocode.APIKey,
			RequestsPerSecond: cfg.Geocode.RequestsPerSecond,
			CacheTTL:          cfg.Geocode.CacheTTL,
		})
		res, err := client.Coordinates(cmd.Context(), geocodePlace)
		if err != nil && res.Status == "" {
			return fmt.Errorf("looking up %q: %w", geocodePlace, err)
		}
		w := cmd.OutOrStdout()
		printField(w, "place", geocodePlace)
		printField(w, "latitude", formatFloat(res.Latitude))
		printField(w, "longitude", formatFloat(res.Longitude))
		printField(w, "status", res.Status)
		return nil
	},
}

var weatherCmd = &cobra.Command{
	Use:     "weather",
	Short:   "Show the current weather at a coordinate pair",
	Example: `  boardwalk weather --lat 52.52 --lon 13.405`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := weather.New(weather.Config{
			BaseURL:  cfg.Weather.BaseURL,
			CacheTTL: cfg.Weather.CacheTTL,
		})

		var lat, lon *float64
		if cmd.Flags().Changed("lat") {
			lat = &weatherLat
		}
		if cmd.Flags().Changed("lon") {
			lon = &weatherLon
		}

		sum, err := client.Current(cmd.Context(), lat, lon)
		if err != nil && sum.Status == "" {
			return fmt.Errorf("fetching weather: %w", err)
		}
		w := cmd.OutOrStdout()
		printField(w, "temperature", formatFloat(sum.Temperature))
		printField(w, "wind_speed", formatFloat(sum.WindSpeed))
		direction := "-"
		if sum.WindDirection != nil {
			direction = *sum.WindDirection
		}
		printField(w, "wind_direction", direction)
		printField(w, "status", sum.Status)
		return nil
	},
}

var (
	geocodePlace string
	weatherLat   float64
	weatherLon   float64
)

func init() {
	rootCmd.AddCommand(geocodeCmd, weatherCmd)

	geocodeCmd.Flags().StringVarP(&geocodePlace, "place", "p", "", "place name to look up")
	_ = geocodeCmd.MarkFlagRequired("place")

	weatherCmd.Flags().Float64Var(&weatherLat, "lat", 0, "latitude in degrees")
	weatherCmd.Flags().Float64Var(&weatherLon, "lon", 0, "longitude in degrees")
}

func printField(w io.Writer, key, value string) {
	_, _ = fmt.Fprintf(w, "%s: %s\n", key, value)
}

func formatFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
