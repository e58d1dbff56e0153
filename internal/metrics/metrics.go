// Package metrics exposes relay measurements as Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"assistant-relay/internal/domain"
)

const namespace = "assistant_relay"

// Recorder implements usecase.Recorder.
type Recorder struct {
	threads  prometheus.Counter
	polls    *prometheus.CounterVec
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

// New registers the relay collectors on reg.
func New(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		threads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threads_created_total",
			Help:      "Conversation threads created on the assistant provider.",
		}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_polls_total",
			Help:      "Run status polls by observed status.",
		}, []string{"status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_requests_total",
			Help:      "Relay requests by outcome code.",
		}, []string{"code"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_duration_seconds",
			Help:      "Wall time of a relay request including run polling.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}),
	}
	for _, c := range []prometheus.Collector{r.threads, r.polls, r.requests, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ThreadCreated() {
	r.threads.Inc()
}

func (r *Recorder) RunPolled(status domain.RunStatus) {
	r.polls.WithLabelValues(string(status)).Inc()
}

func (r *Recorder) RelayFinished(code string, elapsed time.Duration) {
	r.requests.WithLabelValues(code).Inc()
	r.duration.Observe(elapsed.Seconds())
}
