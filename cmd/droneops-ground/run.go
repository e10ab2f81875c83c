package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"droneops-ground/internal/link"
)

var runEndpoints []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the ground station against a MAVLink vehicle",
	Long:  "run opens the configured MAVLink endpoints and starts the telemetry, heartbeat and command workers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(runEndpoints) > 0 {
			cfg.Link.Endpoints = runEndpoints
		}
		endpoints := make([]link.Endpoint, 0, len(cfg.Link.Endpoints))
		for _, s := range cfg.Link.Endpoints {
			e, err := link.ParseEndpoint(s)
			if err != nil {
				return err
			}
			endpoints = append(endpoints, e)
		}
		t, err := link.DialMAVLink(link.MAVLinkConfig{
			Endpoints:   endpoints,
			SystemID:    cfg.Link.SystemID,
			ComponentID: cfg.Link.ComponentID,
			Buffer:      cfg.Link.Buffer,
		})
		if err != nil {
			return err
		}
		return runStation(context.Background(), cfg, t, strings.Join(cfg.Link.Endpoints, ","))
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runEndpoints, "endpoint", nil, "MAVLink endpoint, e.g. udpin:0.0.0.0:14550 or serial:/dev/ttyUSB0:57600 (repeatable)")
}
