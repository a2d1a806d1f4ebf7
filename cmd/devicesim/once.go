package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/samirrijal/discoverymap/internal/core/domain"
)

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Publish a single fix",
	RunE: func(cmd *cobra.Command, _ []string) error {
		id, _ := cmd.Flags().GetString("device")
		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		accuracy, _ := cmd.Flags().GetFloat64("accuracy")

		c := domain.Coordinate{Lat: lat, Lng: lng}
		if !c.Valid() {
			return eris.New("devicesim: coordinate out of range")
		}

		pub, _, err := connect("discoverymap-devicesim-" + id)
		if err != nil {
			return err
		}
		defer pub.Close()

		fix := domain.Fix{Coordinate: c, Accuracy: accuracy, Time: time.Now().UTC()}
		if err := pub.ReportFix(cmd.Context(), id, fix); err != nil {
			return eris.Wrap(err, "devicesim: publish fix")
		}
		if err := pub.Flush(cmd.Context()); err != nil {
			return eris.Wrap(err, "devicesim: flush")
		}
		fmt.Printf("published fix %.6f,%.6f for %s\n", lat, lng, id)
		return nil
	},
}

var failCmd = &cobra.Command{
	Use:       "fail <permission_denied|timeout|unavailable>",
	Short:     "Publish a location failure",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{domain.LocationCodePermissionDenied, domain.LocationCodeTimeout, domain.LocationCodeUnavailable},
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("device")

		cause := domain.ParseLocationCode(args[0])
		if domain.LocationCode(cause) != args[0] {
			return eris.Errorf("devicesim: unknown failure %q", args[0])
		}

		pub, _, err := connect("discoverymap-devicesim-" + id)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := pub.ReportError(cmd.Context(), id, cause); err != nil {
			return eris.Wrap(err, "devicesim: publish status")
		}
		if err := pub.Flush(cmd.Context()); err != nil {
			return eris.Wrap(err, "devicesim: flush")
		}
		fmt.Printf("published %s for %s\n", args[0], id)
		return nil
	},
}

func init() {
	fixCmd.Flags().Float64("lat", 43.068, "latitude")
	fixCmd.Flags().Float64("lng", 141.35, "longitude")
	fixCmd.Flags().Float64("accuracy", 8, "reported accuracy radius in meters")
	rootCmd.AddCommand(fixCmd, failCmd)
}
