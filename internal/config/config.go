// Package config provides Viper-based configuration loading for the session server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP/WebSocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the HTTP listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP listener.
	Port int `mapstructure:"port"`
	// WriteTimeout is the per-message write deadline for WebSocket connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the per-connection outbound message buffer size.
	SendBuffer int `mapstructure:"send_buffer"`
	// MessageRate is the per-connection inbound message rate limit (messages/second).
	MessageRate float64 `mapstructure:"message_rate"`
	// MessageBurst is the per-connection inbound message burst allowance.
	MessageBurst int `mapstructure:"message_burst"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds the authoritative gameplay rules applied to every room.
type GameConfig struct {
	// FieldWidth and FieldHeight bound the play field in pixels.
	FieldWidth  float64 `mapstructure:"field_width"`
	FieldHeight float64 `mapstructure:"field_height"`
	// BoundaryMargin is the minimum distance from the field edge for movement targets.
	BoundaryMargin float64 `mapstructure:"boundary_margin"`
	// MaxSpeed is the maximum player speed in pixels/second.
	MaxSpeed float64 `mapstructure:"max_speed"`
	// SpeedTolerance is the slack multiplier applied to speed and range checks
	// to absorb network jitter. Expected range 1.2-1.5.
	SpeedTolerance float64 `mapstructure:"speed_tolerance"`
	// MaxAttackRate is the maximum attacks/second per player.
	MaxAttackRate float64 `mapstructure:"max_attack_rate"`
	// AttackRange is the maximum attacker-to-target distance in pixels.
	AttackRange float64 `mapstructure:"attack_range"`
	// InteractRadius is the maximum player-to-object interaction distance in pixels.
	InteractRadius float64 `mapstructure:"interact_radius"`
	// DashCooldown is the minimum time between accepted dashes.
	DashCooldown time.Duration `mapstructure:"dash_cooldown"`
	// MaxDashDistance is the maximum dash travel in pixels.
	MaxDashDistance float64 `mapstructure:"max_dash_distance"`
	// CountdownDelay is the pause between all players readying up and the game starting.
	CountdownDelay time.Duration `mapstructure:"countdown_delay"`
	// EvictionTimeout is how long a disconnected player may rejoin before removal.
	EvictionTimeout time.Duration `mapstructure:"eviction_timeout"`
	// InputBufferSize is the per-player capacity of the accepted-input ring.
	InputBufferSize int `mapstructure:"input_buffer_size"`
}

// SyncConfig holds the state broadcast schedule.
type SyncConfig struct {
	// DeltaInterval is the period of the lightweight snapshot broadcast.
	DeltaInterval time.Duration `mapstructure:"delta_interval"`
	// FullInterval is the period of the complete snapshot broadcast.
	FullInterval time.Duration `mapstructure:"full_interval"`
}

// ViolationsConfig holds the anti-cheat escalation policy.
type ViolationsConfig struct {
	// Window is the sliding window over which rejections are counted.
	Window time.Duration `mapstructure:"window"`
	// KickThreshold is the rejection count within Window that triggers a kick recommendation.
	KickThreshold int `mapstructure:"kick_threshold"`
}

// Config is the top-level application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Game       GameConfig       `mapstructure:"game"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Violations ViolationsConfig `mapstructure:"violations"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSync(c.Sync); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateViolations(c.Violations); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("server.send_buffer must be >= 1, got %d", s.SendBuffer))
	}
	if s.MessageRate <= 0 {
		errs = append(errs, fmt.Sprintf("server.message_rate must be > 0, got %g", s.MessageRate))
	}
	if s.MessageBurst < 1 {
		errs = append(errs, fmt.Sprintf("server.message_burst must be >= 1, got %d", s.MessageBurst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.FieldWidth <= 0 || g.FieldHeight <= 0 {
		errs = append(errs, fmt.Sprintf("game.field_width and game.field_height must be > 0, got %gx%g", g.FieldWidth, g.FieldHeight))
	}
	if g.BoundaryMargin < 0 {
		errs = append(errs, "game.boundary_margin must not be negative")
	}
	if g.MaxSpeed <= 0 {
		errs = append(errs, fmt.Sprintf("game.max_speed must be > 0, got %g", g.MaxSpeed))
	}
	if g.SpeedTolerance < 1.0 {
		errs = append(errs, fmt.Sprintf("game.speed_tolerance must be >= 1.0, got %g", g.SpeedTolerance))
	}
	if g.MaxAttackRate <= 0 {
		errs = append(errs, fmt.Sprintf("game.max_attack_rate must be > 0, got %g", g.MaxAttackRate))
	}
	if g.AttackRange <= 0 {
		errs = append(errs, fmt.Sprintf("game.attack_range must be > 0, got %g", g.AttackRange))
	}
	if g.InteractRadius <= 0 {
		errs = append(errs, fmt.Sprintf("game.interact_radius must be > 0, got %g", g.InteractRadius))
	}
	if g.DashCooldown < 0 {
		errs = append(errs, "game.dash_cooldown must not be negative")
	}
	if g.MaxDashDistance <= 0 {
		errs = append(errs, fmt.Sprintf("game.max_dash_distance must be > 0, got %g", g.MaxDashDistance))
	}
	if g.CountdownDelay < 0 {
		errs = append(errs, "game.countdown_delay must not be negative")
	}
	if g.EvictionTimeout <= 0 {
		errs = append(errs, "game.eviction_timeout must be > 0")
	}
	if g.InputBufferSize < 1 {
		errs = append(errs, fmt.Sprintf("game.input_buffer_size must be >= 1, got %d", g.InputBufferSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSync(s SyncConfig) error {
	var errs []string
	if s.DeltaInterval <= 0 {
		errs = append(errs, "sync.delta_interval must be > 0")
	}
	if s.FullInterval <= 0 {
		errs = append(errs, "sync.full_interval must be > 0")
	}
	if s.FullInterval > 0 && s.DeltaInterval > 0 && s.FullInterval < s.DeltaInterval {
		errs = append(errs, "sync.full_interval must not be shorter than sync.delta_interval")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateViolations(v ViolationsConfig) error {
	var errs []string
	if v.Window <= 0 {
		errs = append(errs, "violations.window must be > 0")
	}
	if v.KickThreshold < 1 {
		errs = append(errs, fmt.Sprintf("violations.kick_threshold must be >= 1, got %d", v.KickThreshold))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with TRIAD_ prefix
	v.SetEnvPrefix("TRIAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no config file is supplied.
//
// Postcondition: Returns a Config that passes Validate.
func Default() Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static and always unmarshal.
		panic(fmt.Sprintf("unmarshalling default config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("server.message_rate", 30.0)
	v.SetDefault("server.message_burst", 20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.field_width", 1920.0)
	v.SetDefault("game.field_height", 1080.0)
	v.SetDefault("game.boundary_margin", 10.0)
	v.SetDefault("game.max_speed", 300.0)
	v.SetDefault("game.speed_tolerance", 1.3)
	v.SetDefault("game.max_attack_rate", 2.0)
	v.SetDefault("game.attack_range", 120.0)
	v.SetDefault("game.interact_radius", 80.0)
	v.SetDefault("game.dash_cooldown", "2s")
	v.SetDefault("game.max_dash_distance", 200.0)
	v.SetDefault("game.countdown_delay", "3s")
	v.SetDefault("game.eviction_timeout", "5m")
	v.SetDefault("game.input_buffer_size", 60)

	v.SetDefault("sync.delta_interval", "200ms")
	v.SetDefault("sync.full_interval", "2s")

	v.SetDefault("violations.window", "60s")
	v.SetDefault("violations.kick_threshold", 5)
}
