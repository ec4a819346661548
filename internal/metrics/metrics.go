package metrics

import (
	"bufio"
	"fmt"
	"net/http"
	"strings"

	"github.com/doridoridoriand/connwatch/internal/scheduler"
	"github.com/doridoridoriand/connwatch/internal/state"
)

// StatusSource provides the status to expose.
type StatusSource interface {
	State() scheduler.Status
}

// Server exposes Prometheus-style metrics based on current status.
type Server struct {
	source StatusSource
}

// NewServer constructs a metrics server.
func NewServer(source StatusSource) *Server {
	return &Server{source: source}
}

// Handler returns an http handler that serves metrics.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		bw := bufio.NewWriter(w)
		defer bw.Flush()
		writeStatus(bw, s.source.State())
	})
}

var healthStates = []state.Health{
	state.HealthUnknown,
	state.HealthGood,
	state.HealthQuestionable,
	state.HealthBad,
}

func writeStatus(w *bufio.Writer, st scheduler.Status) {
	target := `target="` + escapeLabel(st.Target) + `"`

	writeHeader(w, "connwatch_up", "1 when the connection is classified good.")
	fmt.Fprintf(w, "connwatch_up{%s} %d\n", target, boolValue(st.Health == state.HealthGood))

	writeHeader(w, "connwatch_health", "Current health tier, one series per state.")
	for _, h := range healthStates {
		fmt.Fprintf(w, "connwatch_health{%s,state=%q} %d\n", target, strings.ToLower(string(h)), boolValue(st.Health == h))
	}

	if st.Summary.HasAverage {
		writeHeader(w, "connwatch_latency_avg_ms", "Average latency of returned probes in the history.")
		fmt.Fprintf(w, "connwatch_latency_avg_ms{%s} %d\n", target, st.Summary.AverageMs)
	}

	writeHeader(w, "connwatch_drop_rate_percent", "Percentage of probes in the history that did not return.")
	fmt.Fprintf(w, "connwatch_drop_rate_percent{%s} %d\n", target, st.Summary.DropRatePercent)

	if last, ok := st.Last(); ok {
		if ms, returned := last.Latency(); returned {
			writeHeader(w, "connwatch_last_latency_ms", "Latency of the most recent probe.")
			fmt.Fprintf(w, "connwatch_last_latency_ms{%s} %d\n", target, ms)
		}
	}

	writeHeader(w, "connwatch_paused", "1 while polling is paused.")
	fmt.Fprintf(w, "connwatch_paused{%s} %d\n", target, boolValue(st.RunState == scheduler.Paused))

	writeHeader(w, "connwatch_history_len", "Number of outcomes in the history.")
	fmt.Fprintf(w, "connwatch_history_len{%s} %d\n", target, len(st.History))
}

func writeHeader(w *bufio.Writer, name, help string) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
}

func boolValue(b bool) int {
	if b {
		return 1
	}
	return 0
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}
