package main

import (
	"context"
	"log/slog"

	"droneops-ground/internal/config"
	"droneops-ground/internal/sink"
	"droneops-ground/internal/telemetry"
)

// newWriters builds the recorder chain from the sink configuration. The
// console writer is returned separately so the caller can update its admin
// indicator; it is nil when the console is off. With no sink configured,
// rows go to STDOUT as JSON.
func newWriters(ctx context.Context, cfg *config.Config, header sink.Header, tui bool, logger *slog.Logger) (*sink.MultiWriter, *sink.TUIWriter, func(), error) {
	var (
		writers []sink.Writer
		console *sink.TUIWriter
	)
	fail := func(err error) (*sink.MultiWriter, *sink.TUIWriter, func(), error) {
		_ = sink.NewMultiWriter(writers...).Close()
		return nil, nil, nil, err
	}

	s := cfg.Sinks
	if s.File != "" {
		fw, err := sink.NewFileWriter(s.File, s.File+".commands", s.File+".link")
		if err != nil {
			return fail(err)
		}
		writers = append(writers, fw)
	}
	if s.GreptimeDB.Endpoint != "" {
		if s.GreptimeDB.Table != "" {
			telemetry.SnapshotTableName = s.GreptimeDB.Table
		}
		gw, err := sink.NewGreptimeDBWriter(s.GreptimeDB.Endpoint, s.GreptimeDB.Database, logger.With("sink", "greptimedb"))
		if err != nil {
			return fail(err)
		}
		writers = append(writers, gw)
	}
	if s.SQLite.Path != "" {
		writers = append(writers, sink.NewSQLiteWriter(s.SQLite.Path))
	}
	if s.MQTT.Broker != "" {
		mp, err := sink.DialMQTT(ctx, s.MQTT.Broker, s.MQTT.ClientID, s.MQTT.TopicPrefix, logger.With("sink", "mqtt"))
		if err != nil {
			return fail(err)
		}
		writers = append(writers, mp)
	}
	if tui {
		console = sink.NewTUIWriter(header)
		writers = append(writers, console)
	} else if s.Stdout || len(writers) == 0 {
		writers = append(writers, sink.NewJSONStdoutWriter())
	}

	mw := sink.NewMultiWriter(writers...)
	cleanup := func() {
		if err := mw.Close(); err != nil {
			logger.Warn("closing writers", "err", err)
		}
	}
	return mw, console, cleanup, nil
}
