package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kabili207/sdlink/core/line"
	"github.com/prometheus/client_golang/prometheus"
)

type stubSource struct {
	counters *line.Counters
}

func (s stubSource) Counters() *line.Counters { return s.counters }

func TestLineCollector_Gather(t *testing.T) {
	var c line.Counters
	c.FramesSent.Add(3)
	c.BytesReceived.Add(42)
	c.RejectedIntegrity.Add(2)

	reg := prometheus.NewPedanticRegistry()
	err := reg.Register(NewLineCollector(map[string]CountersSource{
		"a":       stubSource{&c},
		"stopped": stubSource{},
	}))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) != 6 {
		t.Errorf("got %d metric families, want 6", len(families))
	}

	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == "stopped" {
					t.Errorf("%s reported for a source with nil counters", mf.GetName())
				}
				if lp.GetName() == "reason" {
					key += "/" + lp.GetValue()
				}
			}
			values[key] = m.GetCounter().GetValue()
		}
	}

	want := map[string]float64{
		"sdlink_line_frames_sent_total":        3,
		"sdlink_line_bytes_received_total":     42,
		"sdlink_line_rejected_total/integrity": 2,
		"sdlink_line_rejected_total/framing":   0,
	}
	for k, v := range want {
		if got, ok := values[k]; !ok || got != v {
			t.Errorf("%s = %v (present %v), want %v", k, got, ok, v)
		}
	}
}

func TestHandler(t *testing.T) {
	var c line.Counters
	c.FramesReceived.Add(7)

	h, err := Handler(NewLineCollector(map[string]CountersSource{"serial": stubSource{&c}}))
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if want := `sdlink_line_frames_received_total{link="serial"} 7`; !strings.Contains(string(body), want) {
		t.Errorf("body does not contain %q:\n%s", want, body)
	}
}

func TestHandler_DuplicateCollector(t *testing.T) {
	col := NewLineCollector(nil)
	if _, err := Handler(col, col); err == nil {
		t.Error("expected error registering a collector twice")
	}
}
