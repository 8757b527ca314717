package session

import (
	"time"

	log "github.com/sirupsen/logrus"

	"udp-meter/internal/stats"
	"udp-meter/pkg/types"
)

// Analyze replays captured datagrams through a fresh collector and reduces
// them. Capture timestamps stand in for arrival times. A zero duration uses
// the span between the first and last datagram.
func Analyze(datagrams []types.Datagram, duration time.Duration, trackDelay bool, opts stats.ReduceOptions) *stats.Result {
	collector := stats.NewCollector(trackDelay)

	for i, d := range datagrams {
		if i == 0 {
			collector.MarkStart(d.Timestamp)
		}
		if _, err := collector.Record(d.Data, d.Timestamp); err != nil {
			log.WithError(err).WithField("index", i).Debug("Skipping malformed datagram")
		}
	}

	if n := len(datagrams); n > 0 {
		collector.Finish(datagrams[n-1].Timestamp)
	}

	if duration <= 0 {
		duration = collector.EndTime.Sub(collector.StartTime)
	}

	log.WithFields(log.Fields{
		"datagrams": len(datagrams),
		"window":    duration,
	}).Debug("Offline analysis complete")

	return stats.Reduce(collector.Snapshot(), duration, opts)
}
