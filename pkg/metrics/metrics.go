// Package metrics records per-run counters for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ticketsync"

// Recorder holds the counters for one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	TicketsSeen        prometheus.Counter
	TicketsDownloaded  prometheus.Counter
	ScrollCycles       prometheus.Counter
	TicketsConverted   prometheus.Counter
	ConversionFailures prometheus.Counter
	TicketsLoaded      prometheus.Counter
	LinesLoaded        prometheus.Counter
	LineErrors         prometheus.Counter

	StageDuration *prometheus.GaugeVec
	LastSuccess   prometheus.Gauge
}

func NewRecorder() *Recorder {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}

	r := &Recorder{
		registry:           prometheus.NewRegistry(),
		TicketsSeen:        counter("tickets_seen_total", "Tickets observed in the portal list."),
		TicketsDownloaded:  counter("tickets_downloaded_total", "New tickets stored and downloaded."),
		ScrollCycles:       counter("scroll_cycles_total", "Scroll actions performed on the ticket list."),
		TicketsConverted:   counter("tickets_converted_total", "Ticket documents converted to text."),
		ConversionFailures: counter("conversion_failures_total", "Ticket documents that failed to convert."),
		TicketsLoaded:      counter("tickets_loaded_total", "Tickets with at least one product line stored."),
		LinesLoaded:        counter("product_lines_loaded_total", "Product lines stored."),
		LineErrors:         counter("line_errors_total", "Product lines or tickets that failed to load."),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of the last run's stages.",
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without a fatal error.",
		}),
	}

	r.registry.MustRegister(
		r.TicketsSeen,
		r.TicketsDownloaded,
		r.ScrollCycles,
		r.TicketsConverted,
		r.ConversionFailures,
		r.TicketsLoaded,
		r.LinesLoaded,
		r.LineErrors,
		r.StageDuration,
		r.LastSuccess,
	)
	return r
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// MarkSuccess stamps the run as successful at t.
func (r *Recorder) MarkSuccess(t time.Time) {
	r.LastSuccess.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The write is atomic, so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
