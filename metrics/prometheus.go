package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const namespace = "webxr_signal"

// StatsFunc reports the current room and client counts.
type StatsFunc func() (rooms, clients int)

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes the counters as a single metric with an `event`
// label, plus room/client gauges when stats is non-nil.
func PrometheusHandler(m *Metrics, stats StatsFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = fmt.Fprintf(w, "# HELP %s_events_total Signaling event counters.\n", namespace)
		_, _ = fmt.Fprintf(w, "# TYPE %s_events_total counter\n", namespace)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s_events_total{event=\"%s\"} %d\n", namespace, labelEscaper.Replace(k), snap[k])
		}

		if stats == nil {
			return
		}
		rooms, clients := stats()
		_, _ = fmt.Fprintf(w, "# HELP %s_rooms Rooms currently live.\n", namespace)
		_, _ = fmt.Fprintf(w, "# TYPE %s_rooms gauge\n", namespace)
		_, _ = fmt.Fprintf(w, "%s_rooms %d\n", namespace, rooms)
		_, _ = fmt.Fprintf(w, "# HELP %s_clients Joined connections currently live.\n", namespace)
		_, _ = fmt.Fprintf(w, "# TYPE %s_clients gauge\n", namespace)
		_, _ = fmt.Fprintf(w, "%s_clients %d\n", namespace, clients)
	})
}
