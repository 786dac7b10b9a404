package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultAddr is the default TCP address for the HTTP and WebSocket listener.
	DefaultAddr = ":43127"
	// DefaultHealthAddr is where the gRPC health service listens.
	DefaultHealthAddr = ":43128"
	// DefaultTickRateHz is the fixed simulation frequency.
	DefaultTickRateHz = 60.0

	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 16
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 64
	// DefaultStreamCodec compresses outbound snapshots.
	DefaultStreamCodec = "none"
	// DefaultControlRate is the sustained control frames per second accepted per client.
	DefaultControlRate = 120.0
	// DefaultControlBurst is the token bucket depth for control frames.
	DefaultControlBurst = 30

	// DefaultInputMaxAge drops control frames older than this.
	DefaultInputMaxAge = 250 * time.Millisecond
	// DefaultInputMinInterval is the shortest spacing between accepted frames.
	DefaultInputMinInterval = time.Second / 240

	// DefaultReloadWindow bounds how frequently level reloads may be requested.
	DefaultReloadWindow = time.Minute
	// DefaultReloadBurst sets how many reloads may be made per window.
	DefaultReloadBurst = 3

	// DefaultLogLevel controls verbosity.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "portalsim.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// EnvPrefix namespaces environment overrides, e.g. PORTALSIM_STREAM_CODEC.
	EnvPrefix = "PORTALSIM"
)

// Config captures all runtime tunables for the simulation daemon.
type Config struct {
	Address    string
	HealthAddr string
	TickRateHz float64
	LevelPath  string
	AdminToken string
	Stream     StreamConfig
	Input      InputConfig
	Reload     ReloadConfig
	Logging    LoggingConfig
	Tuning     TuningConfig
}

// StreamConfig tunes the WebSocket snapshot stream.
type StreamConfig struct {
	Codec           string
	MaxClients      int
	PingInterval    time.Duration
	MaxPayloadBytes int64
	ControlRate     float64
	ControlBurst    int
	// AuthSecret enables HS256 token checks on /ws when set.
	AuthSecret      string
}

// InputConfig feeds the control frame gate.
type InputConfig struct {
	MaxAge      time.Duration
	MinInterval time.Duration
}

// ReloadConfig rate limits admin level reloads.
type ReloadConfig struct {
	Window time.Duration
	Burst  int
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// TuningConfig holds the movement and portal editing rates.
type TuningConfig struct {
	MoveSpeed            float64
	SprintMultiplier     float64
	RollSpeedDeg         float64
	PortalRotateSpeedDeg float64
	PortalResizeSpeed    float64
	TextureRadiusRatio   float64
}

// DefaultTuning matches the interactive application.
var DefaultTuning = TuningConfig{
	MoveSpeed:            5,
	SprintMultiplier:     3,
	RollSpeedDeg:         60,
	PortalRotateSpeedDeg: 60,
	PortalResizeSpeed:    1.5,
	TextureRadiusRatio:   1.22,
}

var codecs = map[string]bool{"none": true, "gzip": true, "zstd": true, "snappy": true}

// NewViper returns a viper instance with every default registered and environment
// overrides enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("address", DefaultAddr)
	v.SetDefault("health_address", DefaultHealthAddr)
	v.SetDefault("tick_rate_hz", DefaultTickRateHz)
	v.SetDefault("level_path", "")
	v.SetDefault("admin_token", "")

	v.SetDefault("stream.codec", DefaultStreamCodec)
	v.SetDefault("stream.max_clients", DefaultMaxClients)
	v.SetDefault("stream.ping_interval", DefaultPingInterval)
	v.SetDefault("stream.max_payload_bytes", DefaultMaxPayloadBytes)
	v.SetDefault("stream.control_rate", DefaultControlRate)
	v.SetDefault("stream.control_burst", DefaultControlBurst)
	v.SetDefault("stream.auth_secret", "")

	v.SetDefault("input.max_age", DefaultInputMaxAge)
	v.SetDefault("input.min_interval", DefaultInputMinInterval)

	v.SetDefault("reload.window", DefaultReloadWindow)
	v.SetDefault("reload.burst", DefaultReloadBurst)

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.path", DefaultLogPath)
	v.SetDefault("logging.max_size_mb", DefaultLogMaxSizeMB)
	v.SetDefault("logging.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.max_age_days", DefaultLogMaxAgeDays)
	v.SetDefault("logging.compress", DefaultLogCompress)

	v.SetDefault("tuning.move_speed", DefaultTuning.MoveSpeed)
	v.SetDefault("tuning.sprint_multiplier", DefaultTuning.SprintMultiplier)
	v.SetDefault("tuning.roll_speed_deg", DefaultTuning.RollSpeedDeg)
	v.SetDefault("tuning.portal_rotate_speed_deg", DefaultTuning.PortalRotateSpeedDeg)
	v.SetDefault("tuning.portal_resize_speed", DefaultTuning.PortalResizeSpeed)
	v.SetDefault("tuning.texture_radius_ratio", DefaultTuning.TextureRadiusRatio)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file at path, applies environment overrides and
// validates the result, reporting every problem at once.
func Load(path string) (*Config, error) {
	v := NewViper()
	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates a populated viper instance. Command-line flags bound
// to v take part like any other source.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Address:    strings.TrimSpace(v.GetString("address")),
		HealthAddr: strings.TrimSpace(v.GetString("health_address")),
		TickRateHz: v.GetFloat64("tick_rate_hz"),
		LevelPath:  strings.TrimSpace(v.GetString("level_path")),
		AdminToken: strings.TrimSpace(v.GetString("admin_token")),
		Stream: StreamConfig{
			Codec:           strings.ToLower(strings.TrimSpace(v.GetString("stream.codec"))),
			MaxClients:      v.GetInt("stream.max_clients"),
			PingInterval:    v.GetDuration("stream.ping_interval"),
			MaxPayloadBytes: v.GetInt64("stream.max_payload_bytes"),
			ControlRate:     v.GetFloat64("stream.control_rate"),
			ControlBurst:    v.GetInt("stream.control_burst"),
			AuthSecret:      strings.TrimSpace(v.GetString("stream.auth_secret")),
		},
		Input: InputConfig{
			MaxAge:      v.GetDuration("input.max_age"),
			MinInterval: v.GetDuration("input.min_interval"),
		},
		Reload: ReloadConfig{
			Window: v.GetDuration("reload.window"),
			Burst:  v.GetInt("reload.burst"),
		},
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(v.GetString("logging.level")),
			Path:       strings.TrimSpace(v.GetString("logging.path")),
			MaxSizeMB:  v.GetInt("logging.max_size_mb"),
			MaxBackups: v.GetInt("logging.max_backups"),
			MaxAgeDays: v.GetInt("logging.max_age_days"),
			Compress:   v.GetBool("logging.compress"),
		},
		Tuning: TuningConfig{
			MoveSpeed:            v.GetFloat64("tuning.move_speed"),
			SprintMultiplier:     v.GetFloat64("tuning.sprint_multiplier"),
			RollSpeedDeg:         v.GetFloat64("tuning.roll_speed_deg"),
			PortalRotateSpeedDeg: v.GetFloat64("tuning.portal_rotate_speed_deg"),
			PortalResizeSpeed:    v.GetFloat64("tuning.portal_resize_speed"),
			TextureRadiusRatio:   v.GetFloat64("tuning.texture_radius_ratio"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate collects every invalid setting into one error.
func (c *Config) Validate() error {
	var problems []string

	if c.Address == "" {
		problems = append(problems, "address must not be empty")
	}
	if c.TickRateHz <= 0 {
		problems = append(problems, fmt.Sprintf("tick_rate_hz must be positive, got %v", c.TickRateHz))
	}
	if !codecs[c.Stream.Codec] {
		problems = append(problems, fmt.Sprintf("stream.codec must be one of none, gzip, zstd, snappy, got %q", c.Stream.Codec))
	}
	if c.Stream.MaxClients < 0 {
		problems = append(problems, fmt.Sprintf("stream.max_clients must be non-negative, got %d", c.Stream.MaxClients))
	}
	if c.Stream.PingInterval <= 0 {
		problems = append(problems, "stream.ping_interval must be a positive duration")
	}
	if c.Stream.MaxPayloadBytes <= 0 {
		problems = append(problems, fmt.Sprintf("stream.max_payload_bytes must be positive, got %d", c.Stream.MaxPayloadBytes))
	}
	if c.Stream.ControlRate <= 0 || c.Stream.ControlBurst <= 0 {
		problems = append(problems, "stream.control_rate and stream.control_burst must be positive")
	}
	if c.Input.MaxAge < 0 || c.Input.MinInterval < 0 {
		problems = append(problems, "input.max_age and input.min_interval must be non-negative")
	}
	if c.Reload.Window <= 0 || c.Reload.Burst <= 0 {
		problems = append(problems, "reload.window and reload.burst must be positive")
	}
	if c.Logging.MaxSizeMB <= 0 {
		problems = append(problems, fmt.Sprintf("logging.max_size_mb must be positive, got %d", c.Logging.MaxSizeMB))
	}
	if c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		problems = append(problems, "logging.max_backups and logging.max_age_days must be non-negative")
	}
	if c.Tuning.MoveSpeed <= 0 || c.Tuning.SprintMultiplier <= 0 {
		problems = append(problems, "tuning.move_speed and tuning.sprint_multiplier must be positive")
	}
	if c.Tuning.TextureRadiusRatio <= 0 {
		problems = append(problems, "tuning.texture_radius_ratio must be positive")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
