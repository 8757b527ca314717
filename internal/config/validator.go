package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	// Listen address must be a valid IPv4 address
	if ip := net.ParseIP(c.Listen.Address); ip == nil || ip.To4() == nil {
		errs = append(errs, fmt.Sprintf("listen.address must be a valid IPv4 address, got %q", c.Listen.Address))
	}

	// Listen port is required
	if c.Listen.Port <= 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be between 1 and 65535, got %d", c.Listen.Port))
	}

	if c.Measurement.DurationSec <= 0 {
		errs = append(errs, "measurement.duration_sec must be > 0")
	}

	// Pongs carry the delay measured by the jitter tracker
	if c.Measurement.RTT && !c.Measurement.Jitter {
		errs = append(errs, "measurement.rtt requires measurement.jitter")
	}

	if c.RTT.TOS < 0 || c.RTT.TOS > 255 {
		errs = append(errs, fmt.Sprintf("rtt.tos must be between 0 and 255, got %d", c.RTT.TOS))
	}

	switch c.RTT.Transmitter {
	case "auto", "plain", "native":
	default:
		errs = append(errs, fmt.Sprintf("rtt.transmitter must be one of auto/plain/native, got %q", c.RTT.Transmitter))
	}

	if c.Timing.PollIntervalMs <= 0 {
		errs = append(errs, "timing.poll_interval_ms must be > 0")
	}

	if c.Timing.SendIntervalMs < 0 {
		errs = append(errs, "timing.send_interval_ms must be >= 0")
	}

	if c.Stats.ReportIntervalSec < 0 {
		errs = append(errs, "stats.report_interval_sec must be >= 0")
	}

	errs = append(errs, c.loggingErrors()...)
	return joinErrors(errs)
}

// ValidateAnalyze checks the keys used by offline analysis of a capture.
func (c *Config) ValidateAnalyze() error {
	var errs []string

	if c.Capture.PcapFile == "" {
		errs = append(errs, "capture.pcap_file must be specified")
	}

	// Zero keeps datagrams to every port
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be between 0 and 65535, got %d", c.Listen.Port))
	}

	// Zero uses the capture span
	if c.Measurement.DurationSec < 0 {
		errs = append(errs, "measurement.duration_sec must be >= 0")
	}

	if c.Timing.SendIntervalMs < 0 {
		errs = append(errs, "timing.send_interval_ms must be >= 0")
	}

	errs = append(errs, c.loggingErrors()...)
	return joinErrors(errs)
}

func (c *Config) loggingErrors() []string {
	// Log level must be valid
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return []string{fmt.Sprintf("logging.level must be one of trace/debug/info/warn/error, got %q", c.Logging.Level)}
	}
	return nil
}

func joinErrors(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
