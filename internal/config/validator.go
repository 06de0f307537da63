package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Media.Pipeline) == "" {
		return fmt.Errorf("media.pipeline must not be empty")
	}
	if strings.Count(cfg.Media.Pipeline, "%s") > 1 {
		return fmt.Errorf("media.pipeline may contain at most one %%s placeholder")
	}
	if strings.Contains(cfg.Media.Pipeline, "%s") && cfg.Media.ContainerPath == "" {
		return fmt.Errorf("media.container_path is required")
	}
	if strings.ContainsAny(cfg.Media.ContainerPath, "\"\n") {
		return fmt.Errorf("media.container_path must not contain quotes or newlines")
	}

	if cfg.HTTP.ListenAddress == "" {
		return fmt.Errorf("http.listen_address is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q: must be debug, info, warn or error", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format %q: must be text or json", cfg.Log.Format)
	}

	if cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}
	if cfg.MQTTEnabled() && strings.ContainsAny(cfg.MQTT.Topic, "+#") {
		return fmt.Errorf("mqtt.topic must not contain wildcards")
	}

	if cfg.Recorder.Buffer < 0 {
		return fmt.Errorf("recorder.buffer must be > 0")
	}
	if cfg.ShutdownTimeoutS < 0 {
		return fmt.Errorf("shutdown_timeout_s must be > 0")
	}

	return nil
}

// LogLevel returns the configured slog level. Call Validate first.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}
