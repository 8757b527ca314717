package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the UDP meter.
type Config struct {
	Listen      ListenConfig      `yaml:"listen"      mapstructure:"listen"`
	Measurement MeasurementConfig `yaml:"measurement" mapstructure:"measurement"`
	RTT         RTTConfig         `yaml:"rtt"         mapstructure:"rtt"`
	Timing      TimingConfig      `yaml:"timing"      mapstructure:"timing"`
	Logging     LoggingConfig     `yaml:"logging"     mapstructure:"logging"`
	Stats       StatsConfig       `yaml:"stats"       mapstructure:"stats"`
	Capture     CaptureConfig     `yaml:"capture"     mapstructure:"capture"`
}

type ListenConfig struct {
	Address string `yaml:"address" mapstructure:"address"`
	Port    int    `yaml:"port"    mapstructure:"port"`
}

type MeasurementConfig struct {
	DurationSec int  `yaml:"duration_sec" mapstructure:"duration_sec"`
	Jitter      bool `yaml:"jitter"       mapstructure:"jitter"`
	RTT         bool `yaml:"rtt"          mapstructure:"rtt"`
}

type RTTConfig struct {
	TOS         int    `yaml:"tos"         mapstructure:"tos"`
	Transmitter string `yaml:"transmitter" mapstructure:"transmitter"`
}

type TimingConfig struct {
	PollIntervalMs int     `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	SendIntervalMs float64 `yaml:"send_interval_ms" mapstructure:"send_interval_ms"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file"  mapstructure:"file"`
}

type StatsConfig struct {
	Enabled           bool   `yaml:"enabled"             mapstructure:"enabled"`
	ReportIntervalSec int    `yaml:"report_interval_sec" mapstructure:"report_interval_sec"`
	ExportFile        string `yaml:"export_file"         mapstructure:"export_file"`
}

type CaptureConfig struct {
	PcapFile string `yaml:"pcap_file" mapstructure:"pcap_file"`
}

// SetDefaults configures default values for the configuration.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("listen.address", "0.0.0.0")
	v.SetDefault("measurement.jitter", false)
	v.SetDefault("measurement.rtt", false)
	v.SetDefault("rtt.tos", 0)
	v.SetDefault("rtt.transmitter", "auto")
	v.SetDefault("timing.poll_interval_ms", 100)
	v.SetDefault("timing.send_interval_ms", 0)
	v.SetDefault("logging.level", "info")
	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.report_interval_sec", 0)
}

// Load reads configuration from a YAML file and returns a Config.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper reads configuration using an existing viper instance (for CLI flag binding).
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Duration returns the measurement window.
func (c *Config) Duration() time.Duration {
	return time.Duration(c.Measurement.DurationSec) * time.Second
}

// PollInterval returns the receive loop read deadline.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalMs) * time.Millisecond
}

// SendInterval returns the sender's packet spacing, zero when unknown.
func (c *Config) SendInterval() time.Duration {
	return time.Duration(c.Timing.SendIntervalMs * float64(time.Millisecond))
}

// Summary returns a human-readable summary of the configuration.
func (c *Config) Summary() string {
	var sb strings.Builder
	sb.WriteString("Configuration:\n")
	sb.WriteString(fmt.Sprintf("  Listen:        %s:%d\n", c.Listen.Address, c.Listen.Port))
	sb.WriteString(fmt.Sprintf("  Duration:      %ds\n", c.Measurement.DurationSec))
	sb.WriteString(fmt.Sprintf("  Jitter:        %v\n", c.Measurement.Jitter))
	sb.WriteString(fmt.Sprintf("  RTT:           %v", c.Measurement.RTT))
	if c.Measurement.RTT {
		sb.WriteString(fmt.Sprintf(" (tos=%#x, transmitter=%s)", c.RTT.TOS, c.RTT.Transmitter))
	}
	sb.WriteString("\n")
	if c.Timing.SendIntervalMs > 0 {
		sb.WriteString(fmt.Sprintf("  Send Interval: %gms\n", c.Timing.SendIntervalMs))
	}
	if c.Capture.PcapFile != "" {
		sb.WriteString(fmt.Sprintf("  Capture:       %s\n", c.Capture.PcapFile))
	}
	return sb.String()
}
