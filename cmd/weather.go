package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/action"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/service"
	"github.com/BridgeDigitalHealth/MobilePassiveData-SDK/internal/weather"
)

var weatherCmd = &cobra.Command{
	Use:   "weather [recorder-id]",
	Short: "Fetch the current weather once",
	Long: `Run the weather recorder of the active profile once and print its
result. The position comes from --lat/--lon, the configured location or
the first gpsd fix.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := weatherConfiguration(args)
		if err != nil {
			return err
		}

		sources := service.NewSources(cfg.Sources)
		if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			sources.WeatherLocation = weather.StaticLocation{Latitude: lat, Longitude: lon}
		}

		dir, err := os.MkdirTemp("", "mpd-weather-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)

		ctrl, err := service.DefaultFactory(conf, service.Environment{
			OutputDirectory: dir,
			Permissions:     hostPermissions(),
			Logger:          slog.Default(),
			Sources:         sources,
		})
		if err != nil {
			return err
		}

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		if err := ctrl.RequestPermissions(ctx); err != nil {
			return err
		}
		if err := ctrl.Start(ctx); err != nil {
			return fmt.Errorf("weather fetch failed: %w", err)
		}
		res, err := ctrl.Stop(ctx)
		if err != nil {
			return fmt.Errorf("weather fetch failed: %w", err)
		}

		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

// weatherConfiguration picks the named weather recorder, or the only one
// of the profile.
func weatherConfiguration(args []string) (action.WeatherConfiguration, error) {
	var found []action.WeatherConfiguration
	for _, c := range cfg.Configurations {
		w, ok := c.(action.WeatherConfiguration)
		if !ok {
			continue
		}
		if len(args) == 1 && w.Identifier() == args[0] {
			return w, nil
		}
		found = append(found, w)
	}
	switch {
	case len(args) == 1:
		return action.WeatherConfiguration{}, fmt.Errorf("profile '%s' has no weather recorder '%s'", cfg.Name, args[0])
	case len(found) == 0:
		return action.WeatherConfiguration{}, fmt.Errorf("profile '%s' has no weather recorder", cfg.Name)
	case len(found) > 1:
		return action.WeatherConfiguration{}, fmt.Errorf("profile '%s' has %d weather recorders, name one", cfg.Name, len(found))
	}
	return found[0], nil
}

func init() {
	weatherCmd.Flags().Float64("lat", 0, "latitude in degrees")
	weatherCmd.Flags().Float64("lon", 0, "longitude in degrees")
	weatherCmd.Flags().Duration("timeout", time.Minute, "time limit for location and requests")
}
