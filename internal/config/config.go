// Package config defines the stream-playout configuration.
// It uses strict YAML decoding and explicit defaults.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPipeline decodes a container file and re-encodes it to H.264
// byte-stream (appsink "video") and Opus (appsink "audio"). %s is replaced by
// the container path.
const DefaultPipeline = `filesrc location="%s" ! decodebin name=demux ! queue ! x264enc bframes=0 speed-preset=veryfast key-int-max=60 ! video/x-h264,stream-format=byte-stream ! appsink name=video demux. ! queue ! audioconvert ! audioresample ! opusenc ! appsink name=audio`

// Config holds the complete stream-playout configuration.
type Config struct {
	Media            MediaConfig    `yaml:"media"`
	HTTP             HTTPConfig     `yaml:"http"`
	Log              LogConfig      `yaml:"log"`
	MQTT             MQTTConfig     `yaml:"mqtt"`
	Recorder         RecorderConfig `yaml:"recorder"`
	ShutdownTimeoutS int            `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
}

// MediaConfig selects what is played.
type MediaConfig struct {
	ContainerPath string `yaml:"container_path"` // Media file to play back
	Pipeline      string `yaml:"pipeline"`       // Launch description, %s = container path
}

// HTTPConfig contains the viewer/signaling server settings.
type HTTPConfig struct {
	ListenAddress string `yaml:"listen_address"` // default :8080
	Metrics       *bool  `yaml:"metrics"`        // Serve /metrics (default: true)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MQTTConfig contains the optional MQTT control plane settings.
// The control plane is disabled when Broker is empty.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`    // host:port
	ClientID string `yaml:"client_id"` // default stream-playout
	Topic    string `yaml:"topic"`     // control topic, acks go to <topic>/ack
	QoS      byte   `yaml:"qos"`
}

// RecorderConfig contains the optional recorder tap settings.
// Recording is disabled when Dir is empty.
type RecorderConfig struct {
	Dir    string `yaml:"dir"`
	Buffer int    `yaml:"buffer"` // subscriber channel capacity (default: 64)
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads configuration from a YAML file and applies defaults.
// Unknown fields are rejected. Validate is not called, so flag overrides can
// be applied first.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields

	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.setDefaults()

	return &cfg, nil
}

// setDefaults applies explicit default values to unset fields.
func (c *Config) setDefaults() {
	if c.Media.Pipeline == "" {
		c.Media.Pipeline = DefaultPipeline
	}
	if c.HTTP.ListenAddress == "" {
		c.HTTP.ListenAddress = ":8080"
	}
	if c.HTTP.Metrics == nil {
		enabled := true
		c.HTTP.Metrics = &enabled
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "stream-playout"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = fmt.Sprintf("playout/control/%s", c.MQTT.ClientID)
	}
	if c.Recorder.Buffer == 0 {
		c.Recorder.Buffer = 64
	}
	if c.ShutdownTimeoutS == 0 {
		c.ShutdownTimeoutS = 5
	}
}

// Description returns the launch description with the first %s replaced by
// the container path. Other % sequences are left untouched.
func (c *Config) Description() string {
	return strings.Replace(c.Media.Pipeline, "%s", c.Media.ContainerPath, 1)
}

// MetricsEnabled reports whether /metrics is served.
func (c *Config) MetricsEnabled() bool {
	return c.HTTP.Metrics == nil || *c.HTTP.Metrics
}

// MQTTEnabled reports whether the MQTT control plane is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// RecorderEnabled reports whether buffers are recorded to disk.
func (c *Config) RecorderEnabled() bool {
	return c.Recorder.Dir != ""
}
