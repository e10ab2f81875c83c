// YAML config loader with CUE validation integration
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Position is a point in the vehicle's local frame, in meters.
type Position struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
	Z float64 `yaml:"z"`
}

// LinkConfig selects the MAVLink endpoints and this station's identity.
type LinkConfig struct {
	Endpoints   []string `yaml:"endpoints"`
	SystemID    uint8    `yaml:"system_id"`
	ComponentID uint8    `yaml:"component_id"`
	Buffer      int      `yaml:"buffer"`
}

type TelemetryConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type HeartbeatConfig struct {
	Period    time.Duration `yaml:"period"`
	Threshold int           `yaml:"threshold"`
}

// CommandConfig holds correction tolerances and rates.
type CommandConfig struct {
	QueueTimeout    time.Duration `yaml:"queue_timeout"`
	HeightTolerance float64       `yaml:"height_tolerance"`
	AngleTolerance  float64       `yaml:"angle_tolerance"`
	ZSpeed          float64       `yaml:"z_speed"`
	TurningSpeed    float64       `yaml:"turning_speed"`
	TargetSystem    uint8         `yaml:"target_system"`
	TargetComponent uint8         `yaml:"target_component"`
}

type QueueConfig struct {
	Capacity int `yaml:"capacity"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AdminConfig struct {
	Addr string `yaml:"addr"`
}

type GreptimeConfig struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
}

// SinkConfig enables the recorders that receive snapshots and statuses.
// Empty endpoints disable the matching sink.
type SinkConfig struct {
	File       string         `yaml:"file"`
	Stdout     bool           `yaml:"stdout"`
	TUI        bool           `yaml:"tui"`
	GreptimeDB GreptimeConfig `yaml:"greptimedb"`
	SQLite     SQLiteConfig   `yaml:"sqlite"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
}

// SimulatorConfig drives the built-in vehicle used by the simulate command.
type SimulatorConfig struct {
	Tick        time.Duration `yaml:"tick"`
	DropoutRate float64       `yaml:"dropout_rate"`
	Seed        int64         `yaml:"seed"`
	Start       Position      `yaml:"start"`
	Yaw         float64       `yaml:"yaw"`
}

// Config is the root ground-station configuration.
type Config struct {
	Target    Position        `yaml:"target"`
	Link      LinkConfig      `yaml:"link"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Command   CommandConfig   `yaml:"command"`
	Queues    QueueConfig     `yaml:"queues"`
	Logging   LoggingConfig   `yaml:"logging"`
	Admin     AdminConfig     `yaml:"admin"`
	Sinks     SinkConfig      `yaml:"sinks"`
	Simulator SimulatorConfig `yaml:"simulator"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Target: Position{X: 0, Y: 0, Z: 10},
		Link: LinkConfig{
			Endpoints:   []string{"udpin:0.0.0.0:14550"},
			SystemID:    255,
			ComponentID: 190,
			Buffer:      64,
		},
		Telemetry: TelemetryConfig{Timeout: time.Second},
		Heartbeat: HeartbeatConfig{Period: time.Second, Threshold: 5},
		Command: CommandConfig{
			QueueTimeout:    500 * time.Millisecond,
			HeightTolerance: 0.5,
			AngleTolerance:  5.0,
			ZSpeed:          1.0,
			TurningSpeed:    5.0,
			TargetSystem:    1,
			TargetComponent: 0,
		},
		Logging: LoggingConfig{Level: "info", Format: "text", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
		Sinks: SinkConfig{
			GreptimeDB: GreptimeConfig{Database: "public"},
			MQTT:       MQTTConfig{TopicPrefix: "droneops/ground"},
		},
		Simulator: SimulatorConfig{Tick: 100 * time.Millisecond, Seed: 1},
	}
}

// Load reads a YAML config, validates it against the embedded CUE schema,
// layers it over Default and applies environment overrides. An empty path
// yields defaults plus overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
		if err := ValidateWithCue(data); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("cannot unmarshal YAML config: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	float := func(key string, dst *float64) {
		if v := os.Getenv(key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	float("GROUND_TARGET_X", &c.Target.X)
	float("GROUND_TARGET_Y", &c.Target.Y)
	float("GROUND_TARGET_Z", &c.Target.Z)
	if v := os.Getenv("MAVLINK_ENDPOINT"); v != "" {
		c.Link.Endpoints = strings.Split(v, ",")
	}
	str("GREPTIMEDB_ENDPOINT", &c.Sinks.GreptimeDB.Endpoint)
	str("GREPTIMEDB_DATABASE", &c.Sinks.GreptimeDB.Database)
	str("MQTT_BROKER", &c.Sinks.MQTT.Broker)
	str("SQLITE_PATH", &c.Sinks.SQLite.Path)
	str("LOG_LEVEL", &c.Logging.Level)
	return errors.Join(errs...)
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Link.Endpoints) == 0 {
		errs = append(errs, errors.New("link.endpoints must not be empty"))
	}
	if c.Telemetry.Timeout <= 0 {
		errs = append(errs, errors.New("telemetry.timeout must be positive"))
	}
	if c.Heartbeat.Period <= 0 {
		errs = append(errs, errors.New("heartbeat.period must be positive"))
	}
	if c.Heartbeat.Threshold <= 0 {
		errs = append(errs, errors.New("heartbeat.threshold must be positive"))
	}
	if c.Command.QueueTimeout <= 0 {
		errs = append(errs, errors.New("command.queue_timeout must be positive"))
	}
	if c.Simulator.DropoutRate < 0 || c.Simulator.DropoutRate > 1 {
		errs = append(errs, errors.New("simulator.dropout_rate must be within [0,1]"))
	}
	return errors.Join(errs...)
}
