package main

import (
	"github.com/spf13/cobra"

	"droneops-ground/internal/config"
	"droneops-ground/internal/dashboard"
	"droneops-ground/internal/sink"
	"droneops-ground/internal/telemetry"
)

var dashboardOut string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render Grafana dashboards for the GreptimeDB tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return dashboard.Render(dashboardOut, dashboardTables(cfg))
	},
}

func dashboardTables(cfg *config.Config) dashboard.Tables {
	snapshots := telemetry.SnapshotTableName
	if cfg.Sinks.GreptimeDB.Table != "" {
		snapshots = cfg.Sinks.GreptimeDB.Table
	}
	return dashboard.Tables{
		Database:  cfg.Sinks.GreptimeDB.Database,
		Snapshots: snapshots,
		Commands:  sink.CommandTableName,
		Links:     sink.LinkTableName,
	}
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOut, "out", "build", "Directory for rendered dashboards")
}
