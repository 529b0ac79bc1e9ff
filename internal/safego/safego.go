// Package safego runs fire-and-forget work without letting a panic take the
// goroutine down silently. Audit persistence and shipping happen off the
// request path; a panic there must land in the logs and the panic counter,
// not vanish.
package safego

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var panicsRecovered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_panics_recovered_total",
		Help: "Panics recovered in background goroutines, labelled by task.",
	},
	[]string{"task"},
)

// Go runs fn on a new goroutine, recovering and logging any panic. task names
// the work in the log line and the recovery counter.
func Go(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicsRecovered.WithLabelValues(task).Inc()
				slog.Error("recovered panic in background goroutine", "task", task, "panic", r)
			}
		}()
		fn()
	}()
}
