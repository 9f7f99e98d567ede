// Package observability exports line statistics as Prometheus metrics.
package observability

import (
	"net/http"

	"github.com/kabili207/sdlink/core/line"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sdlink"

// CountersSource is anything that exposes line counters. Counters may
// return nil while the source is not running.
type CountersSource interface {
	Counters() *line.Counters
}

// LineCollector reports the counters of one or more named lines.
type LineCollector struct {
	sources map[string]CountersSource

	framesSent     *prometheus.Desc
	bytesSent      *prometheus.Desc
	sendFailures   *prometheus.Desc
	framesReceived *prometheus.Desc
	bytesReceived  *prometheus.Desc
	rejected       *prometheus.Desc
}

var _ prometheus.Collector = (*LineCollector)(nil)

// NewLineCollector returns a collector for sources keyed by link name.
func NewLineCollector(sources map[string]CountersSource) *LineCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "line", name),
			help,
			append([]string{"link"}, labels...),
			nil,
		)
	}
	return &LineCollector{
		sources:        sources,
		framesSent:     desc("frames_sent_total", "Frames fully written to the transport."),
		bytesSent:      desc("bytes_sent_total", "Wire bytes accepted by the transport."),
		sendFailures:   desc("send_failures_total", "Sends aborted by a refused byte."),
		framesReceived: desc("frames_received_total", "Valid payloads received."),
		bytesReceived:  desc("bytes_received_total", "Wire bytes read from the transport."),
		rejected:       desc("rejected_total", "Discarded frame candidates.", "reason"),
	}
}

// Describe implements prometheus.Collector.
func (c *LineCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.framesSent
	ch <- c.bytesSent
	ch <- c.sendFailures
	ch <- c.framesReceived
	ch <- c.bytesReceived
	ch <- c.rejected
}

// Collect implements prometheus.Collector.
func (c *LineCollector) Collect(ch chan<- prometheus.Metric) {
	for link, src := range c.sources {
		counters := src.Counters()
		if counters == nil {
			continue
		}
		s := counters.Snapshot()

		counter := func(d *prometheus.Desc, v uint64, labels ...string) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), append([]string{link}, labels...)...)
		}
		counter(c.framesSent, s.FramesSent)
		counter(c.bytesSent, s.BytesSent)
		counter(c.sendFailures, s.SendFailures)
		counter(c.framesReceived, s.FramesReceived)
		counter(c.bytesReceived, s.BytesReceived)
		counter(c.rejected, s.RejectedFraming, "framing")
		counter(c.rejected, s.RejectedIntegrity, "integrity")
		counter(c.rejected, s.RejectedOversize, "oversize")
		counter(c.rejected, s.RejectedShortOutput, "short_output")
	}
}

// Handler returns an HTTP handler serving the given collectors from a
// dedicated registry.
func Handler(collectors ...prometheus.Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
