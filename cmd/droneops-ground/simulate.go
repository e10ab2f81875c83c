package main

import (
	"context"
	"math"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"droneops-ground/internal/config"
	"droneops-ground/internal/link"
	"droneops-ground/internal/logging"
	"droneops-ground/internal/vehicle"
)

var (
	simDropout float64
	simCruise  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the ground station against the built-in vehicle",
	Long:  "simulate connects the ground station to a simulated vehicle over an in-memory link.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("dropout") {
			cfg.Simulator.DropoutRate = simDropout
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		stationEnd, vehicleEnd := link.NewPipe(cfg.Link.Buffer)
		sim, err := vehicle.New(vehicleEnd, vehicleOptions(cfg, simCruise))
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		logger, closer, err := logging.NewFileOnly(vehicleLogging(cfg))
		if err != nil {
			return err
		}
		defer closer.Close()
		go sim.Run(logging.NewContext(ctx, logger))

		return runStation(ctx, cfg, stationEnd, "simulator")
	},
}

// vehicleLogging sends simulator records to a file next to the station log
// so the two rotators never share a file.
func vehicleLogging(cfg *config.Config) logging.Options {
	opts := loggingOptions(cfg)
	if opts.File != "" {
		ext := filepath.Ext(opts.File)
		opts.File = strings.TrimSuffix(opts.File, ext) + "-vehicle" + ext
	}
	return opts
}

func vehicleOptions(cfg *config.Config, cruise float64) vehicle.Options {
	s := cfg.Simulator
	return vehicle.Options{
		Tick:        s.Tick,
		DropoutRate: s.DropoutRate,
		Cruise:      cruise,
		Seed:        s.Seed,
		Start: vehicle.State{
			X:   s.Start.X,
			Y:   s.Start.Y,
			Z:   s.Start.Z,
			Yaw: s.Yaw * math.Pi / 180,
		},
	}
}

func init() {
	simulateCmd.Flags().Float64Var(&simDropout, "dropout", 0, "Probability that a simulated heartbeat is skipped")
	simulateCmd.Flags().Float64Var(&simCruise, "cruise", 0, "Forward speed of the simulated vehicle in m/s")
}
