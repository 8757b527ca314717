package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"udp-meter/internal/capture"
	"udp-meter/internal/config"
	"udp-meter/internal/logging"
	"udp-meter/internal/session"
	"udp-meter/internal/stats"
)

var (
	version = "1.0.0"
	cfgFile string
)

// flag name -> config key
var runFlags = map[string]string{
	"address":         "listen.address",
	"port":            "listen.port",
	"duration":        "measurement.duration_sec",
	"jitter":          "measurement.jitter",
	"rtt":             "measurement.rtt",
	"tos":             "rtt.tos",
	"transmitter":     "rtt.transmitter",
	"poll-interval":   "timing.poll_interval_ms",
	"send-interval":   "timing.send_interval_ms",
	"report-interval": "stats.report_interval_sec",
	"export":          "stats.export_file",
	"stats":           "stats.enabled",
	"capture":         "capture.pcap_file",
}

var analyzeFlags = map[string]string{
	"pcap":          "capture.pcap_file",
	"port":          "listen.port",
	"duration":      "measurement.duration_sec",
	"send-interval": "timing.send_interval_ms",
	"export":        "stats.export_file",
}

var globalFlags = map[string]string{
	"log-level": "logging.level",
	"log-file":  "logging.file",
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "udp-meter",
		Short: "UDP Meter - receive-side throughput, delay and jitter measurement",
		Long: `A receive endpoint for timed UDP probe bursts. It counts received bytes,
tracks fragmented probe packets, measures one-way delay and jitter, and can
reply with pongs so the sender can compute round-trip time.`,
		Version:      version,
		SilenceUsage: true,
		RunE:         run,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Configuration file path (default: config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-file", "", "Log file path")

	rootCmd.Flags().String("address", "", "Local IPv4 address to listen on")
	rootCmd.Flags().Int("port", 0, "Local UDP port to listen on")
	rootCmd.Flags().Int("duration", 0, "Measurement duration in seconds")
	rootCmd.Flags().Bool("jitter", false, "Track per-packet delay and jitter")
	rootCmd.Flags().Bool("rtt", false, "Reply with pongs carrying the measured delay")
	rootCmd.Flags().Int("tos", 0, "IPv4 TOS byte for pong replies")
	rootCmd.Flags().String("transmitter", "", "Pong transmitter (auto|plain|native)")
	rootCmd.Flags().Int("poll-interval", 0, "Receive poll interval in ms")
	rootCmd.Flags().Float64("send-interval", 0, "Sender packet interval in ms, enables excess jitter")
	rootCmd.Flags().Int("report-interval", 0, "Progress report interval in seconds (0 disables)")
	rootCmd.Flags().String("export", "", "Export final statistics to a JSON file")
	rootCmd.Flags().Bool("stats", true, "Print the final report")
	rootCmd.Flags().String("capture", "", "Write received datagrams to a pcap file")

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "Compute statistics offline from a pcap capture",
		Args:  cobra.NoArgs,
		RunE:  analyze,
	}
	analyzeCmd.Flags().String("pcap", "", "Input pcap file")
	analyzeCmd.Flags().Int("port", 0, "Only use datagrams sent to this UDP port (0 keeps all)")
	analyzeCmd.Flags().Int("duration", 0, "Measurement window in seconds (0 uses the capture span)")
	analyzeCmd.Flags().Bool("no-delay", false, "Only count bytes, skip delay and jitter")
	analyzeCmd.Flags().Float64("send-interval", 0, "Sender packet interval in ms")
	analyzeCmd.Flags().String("export", "", "Export statistics to a JSON file")
	rootCmd.AddCommand(analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, flagName, configKey string) {
	if f := cmd.Flags().Lookup(flagName); f != nil {
		_ = v.BindPFlag(configKey, f)
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, flags map[string]string) {
	for name, key := range flags {
		bindFlag(v, cmd, name, key)
	}
}

// loadConfig layers defaults, the config file and the command's flags.
func loadConfig(cmd *cobra.Command, flags map[string]string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		fileFound = false
	}

	bindFlags(v, cmd, globalFlags)
	bindFlags(v, cmd, flags)

	cfg, err := config.LoadWithViper(v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.File)
	if !fileFound {
		// Config file not found is OK if using CLI flags
		log.Debug("No config file found, using defaults and CLI flags")
	}
	return cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, runFlags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Printf("UDP Meter v%s\n", version)
	fmt.Println("==============================")
	fmt.Print(cfg.Summary())
	fmt.Println()

	// Setup context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	ctrl := session.NewController(cfg)
	if err := ctrl.Open(); err != nil {
		if errors.Is(err, session.ErrBind) {
			log.WithError(err).Error("Cannot listen for measurement traffic")
		}
		return err
	}

	reporter := stats.NewReporter(ctrl.Collector(), cfg.Stats.ReportIntervalSec, cfg.Stats.ExportFile)
	reportCtx, stopReports := context.WithCancel(ctx)
	reporter.StartPeriodicReport(reportCtx)

	res, err := ctrl.Run(ctx)
	stopReports()
	if res == nil {
		return err
	}
	if err != nil {
		log.WithError(err).Warn("Measurement ended with errors")
	}

	if cfg.Stats.Enabled {
		reporter.PrintFinalReport(res)
	}
	if err := reporter.ExportJSON(res); err != nil {
		log.WithError(err).Warn("Failed to export statistics")
	}
	return nil
}

func analyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, analyzeFlags)
	if err != nil {
		return err
	}
	if err := cfg.ValidateAnalyze(); err != nil {
		return err
	}

	datagrams, err := capture.NewParser(cfg.Listen.Port).Parse(cfg.Capture.PcapFile)
	if err != nil {
		return fmt.Errorf("failed to parse pcap: %w", err)
	}
	if len(datagrams) == 0 {
		return fmt.Errorf("no UDP datagrams found in pcap file")
	}

	fmt.Printf("Found %d datagrams\n\n", len(datagrams))

	noDelay, _ := cmd.Flags().GetBool("no-delay")
	res := session.Analyze(datagrams, cfg.Duration(), !noDelay, stats.ReduceOptions{
		SendInterval: cfg.SendInterval(),
	})

	reporter := stats.NewReporter(nil, 0, cfg.Stats.ExportFile)
	reporter.PrintFinalReport(res)
	if err := reporter.ExportJSON(res); err != nil {
		log.WithError(err).Warn("Failed to export statistics")
	}
	return nil
}
