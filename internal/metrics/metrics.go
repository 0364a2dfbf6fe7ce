// Package metrics exposes release progress as prometheus collectors.
//
// A Recorder owns its own registry so that every release run starts from
// zero. It is fed exclusively from the event bus and can dump its state in
// the node-exporter textfile format at the end of a run.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Iron-Ham/releasetrain/internal/errors"
	"github.com/Iron-Ham/releasetrain/internal/event"
)

const namespace = "releasetrain"

// Recorder collects step, project and group metrics.
type Recorder struct {
	registry *prometheus.Registry

	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	stepsRunning  prometheus.Gauge
	projectsTotal *prometheus.CounterVec
	groupDuration *prometheus.HistogramVec
	groupTimeouts prometheus.Counter
	timedOutTotal prometheus.Counter

	mu            sync.Mutex
	running       map[string]struct{} // "project/step" of started steps
	bus           *event.Bus
	subscriptions []string
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		running:  make(map[string]struct{}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "finished_total",
			Help:      "Release steps that reached a terminal state",
		}, []string{"step", "state"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Wall time of executed release steps",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"step"}),
		stepsRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "running",
			Help:      "Release steps currently executing",
		}),
		projectsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "project",
			Name:      "finished_total",
			Help:      "Projects whose release flow finished, by verdict status",
		}, []string{"status"}),
		groupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "duration_seconds",
			Help:      "Wall time of release groups",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 10),
		}, []string{"status"}),
		groupTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "group",
			Name:      "timeouts_total",
			Help:      "Release groups whose timeout expired",
		}),
		timedOutTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "project",
			Name:      "timed_out_total",
			Help:      "Projects still running when their group timed out",
		}),
	}
}

// Attach subscribes the recorder to bus. Calling Attach again moves the
// subscriptions to the new bus.
func (r *Recorder) Attach(bus *event.Bus) {
	r.Detach()
	r.bus = bus
	r.subscriptions = []string{
		bus.Subscribe(event.TypeStepStarted, r.onStepStarted),
		bus.Subscribe(event.TypeStepFinished, r.onStepFinished),
		bus.Subscribe(event.TypeProjectFinished, func(e event.Event) {
			r.projectsTotal.WithLabelValues(e.(event.ProjectFinishedEvent).Status).Inc()
		}),
		bus.Subscribe(event.TypeGroupFinished, func(e event.Event) {
			g := e.(event.GroupFinishedEvent)
			r.groupDuration.WithLabelValues(g.Status).Observe(g.Duration.Seconds())
		}),
		bus.Subscribe(event.TypeGroupTimedOut, func(e event.Event) {
			r.groupTimeouts.Inc()
			r.timedOutTotal.Add(float64(len(e.(event.GroupTimedOutEvent).Outstanding)))
		}),
	}
}

// Detach removes the recorder's subscriptions.
func (r *Recorder) Detach() {
	if r.bus == nil {
		return
	}
	for _, id := range r.subscriptions {
		r.bus.Unsubscribe(id)
	}
	r.bus = nil
	r.subscriptions = nil
}

func (r *Recorder) onStepStarted(e event.Event) {
	st := e.(event.StepStartedEvent)
	r.mu.Lock()
	r.running[st.Project+"/"+st.Step] = struct{}{}
	r.mu.Unlock()
	r.stepsRunning.Inc()
}

func (r *Recorder) onStepFinished(e event.Event) {
	f := e.(event.StepFinishedEvent)
	r.stepsTotal.WithLabelValues(f.Step, f.State).Inc()

	key := f.Project + "/" + f.Step
	r.mu.Lock()
	_, started := r.running[key]
	delete(r.running, key)
	r.mu.Unlock()
	if started {
		r.stepsRunning.Dec()
		r.stepDuration.WithLabelValues(f.Step).Observe(f.Duration.Seconds())
	}
}

// Gatherer returns the registry holding the recorder's collectors.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the current metric values to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}
