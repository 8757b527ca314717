package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Reporter outputs statistics to console and/or file.
type Reporter struct {
	collector   *Collector
	intervalSec int
	exportFile  string
}

// NewReporter creates a new statistics reporter.
func NewReporter(collector *Collector, intervalSec int, exportFile string) *Reporter {
	return &Reporter{
		collector:   collector,
		intervalSec: intervalSec,
		exportFile:  exportFile,
	}
}

// StartPeriodicReport logs receive progress every interval until ctx is done.
// It only reads the collector's counters.
func (r *Reporter) StartPeriodicReport(ctx context.Context) {
	if r.intervalSec <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Duration(r.intervalSec) * time.Second)
		defer ticker.Stop()

		var lastBytes uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				bytes := r.collector.TotalBytes()
				log.WithFields(log.Fields{
					"datagrams":     r.collector.Datagrams(),
					"bytes":         bytes,
					"completed":     r.collector.CompletedCount(),
					"interval_mbps": fmt.Sprintf("%.3f", Throughput(bytes-lastBytes, time.Duration(r.intervalSec)*time.Second)),
				}).Info("Receive progress")
				lastBytes = bytes
			}
		}
	}()
}

// PrintFinalReport prints the final statistics summary.
func (r *Reporter) PrintFinalReport(res *Result) {
	fmt.Print(FormatReport(res))
}

// FormatReport renders the console report of a session.
func FormatReport(res *Result) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Received Bytes: %.3f MB\n", res.ReceivedMB()))
	sb.WriteString(fmt.Sprintf("Average Throughput: %.3f Mbps\n", res.ThroughputMbps))

	if !res.DelayTracked {
		return sb.String()
	}

	if res.DelaySamples > 0 {
		sb.WriteString(fmt.Sprintf("Average Delay: %.3f ms\n", res.MeanDelayMs))
	}
	if res.JitterDefined() {
		sb.WriteString(fmt.Sprintf("Average Jitter: %.6f ms\n", res.JitterMs))
		if !math.IsNaN(res.ExcessJitterMs) {
			sb.WriteString(fmt.Sprintf("Excess Jitter: %.6f ms\n", res.ExcessJitterMs))
		}
	} else {
		sb.WriteString(fmt.Sprintf("Average Jitter: undefined (%d delay samples)\n", res.DelaySamples))
	}
	if !math.IsNaN(res.LossRate) {
		sb.WriteString(fmt.Sprintf("Packet loss rate: %.5f\n", res.LossRate))
	}
	if !math.IsNaN(res.StutterRate) {
		sb.WriteString(fmt.Sprintf("Stuttering rate: %.5f\n", res.StutterRate))
	}
	return sb.String()
}

// ExportJSON exports the session result to a JSON file.
func (r *Reporter) ExportJSON(res *Result) error {
	if r.exportFile == "" {
		return nil
	}

	export := map[string]interface{}{
		"duration_sec":    res.Duration.Seconds(),
		"received_bytes":  res.TotalBytes,
		"datagrams":       res.Datagrams,
		"malformed":       res.Malformed,
		"throughput_mbps": finite(res.ThroughputMbps),
	}

	if r.collector != nil {
		export["start_time"] = r.collector.StartTime.Format(time.RFC3339Nano)
		export["end_time"] = r.collector.EndTime.Format(time.RFC3339Nano)
	}

	if res.DelayTracked {
		export["delay"] = map[string]interface{}{
			"sequences":        res.Sequences,
			"completed":        res.Completed,
			"duplicates":       res.Duplicates,
			"samples":          res.DelaySamples,
			"mean_ms":          finite(res.MeanDelayMs),
			"jitter_ms":        finite(res.JitterMs),
			"excess_jitter_ms": finite(res.ExcessJitterMs),
			"loss_rate":        finite(res.LossRate),
			"stutter_rate":     finite(res.StutterRate),
		}
		export["pongs"] = map[string]interface{}{
			"sent":   res.PongsSent,
			"failed": res.PongsFailed,
		}
	}

	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stats JSON: %w", err)
	}

	if err := os.WriteFile(r.exportFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write stats file %s: %w", r.exportFile, err)
	}

	log.WithField("file", r.exportFile).Info("Statistics exported to JSON")
	return nil
}

// finite maps NaN and Inf to nil so they encode as JSON null.
func finite(v float64) interface{} {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
