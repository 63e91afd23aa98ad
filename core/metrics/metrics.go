// Package metrics exposes Prometheus instrumentation for conversation turns,
// bookings and knowledge-base lookups.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "roombot"

// Label values used across the bot.
const (
	DialogBooking = "booking"
	DialogFAQ     = "faq"
	DialogCommand = "command"

	BookingBooked    = "booked"
	BookingCancelled = "cancelled"

	LookupAnswered = "answered"
	LookupFollowUp = "follow_up"
	LookupNoMatch  = "no_match"
	LookupError    = "error"

	UpdateOK      = "ok"
	UpdateFailed  = "fail"
	UpdateLimited = "limited"
)

// Metrics holds the collectors registered on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg   *prometheus.Registry
	start time.Time

	UpdatesTotal   *prometheus.CounterVec
	TurnsTotal     *prometheus.CounterVec
	TurnDuration   *prometheus.HistogramVec
	RepromptsTotal *prometheus.CounterVec
	BookingsTotal  *prometheus.CounterVec
	LookupsTotal   *prometheus.CounterVec
	SendFailures   prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg:   reg,
		start: time.Now(),
		UpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates received, by kind and handling status.",
		}, []string{"kind", "status"}),
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, by dialog and outcome.",
		}, []string{"dialog", "outcome"}),
		TurnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Time from inbound message to queued replies.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"dialog"}),
		RepromptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reprompts_total",
			Help:      "Invalid answers that caused a question to be asked again, by slot.",
		}, []string{"slot"}),
		BookingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Finished booking dialogs, by result.",
		}, []string{"result"}),
		LookupsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kb_lookups_total",
			Help:      "Knowledge-base lookups, by result.",
		}, []string{"result"}),
		SendFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Outbound message batches that could not be delivered.",
		}),
	}
}

// Update records an inbound update.
func (m *Metrics) Update(kind, status string) {
	if m == nil {
		return
	}
	m.UpdatesTotal.WithLabelValues(kind, status).Inc()
}

// ObserveTurn records a handled turn.
func (m *Metrics) ObserveTurn(dialog, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(dialog, outcome).Inc()
	m.TurnDuration.WithLabelValues(dialog).Observe(took.Seconds())
}

// Reprompt records an invalid answer at slot.
func (m *Metrics) Reprompt(slot string) {
	if m == nil {
		return
	}
	m.RepromptsTotal.WithLabelValues(slot).Inc()
}

// Booking records a finished booking dialog.
func (m *Metrics) Booking(result string) {
	if m == nil {
		return
	}
	m.BookingsTotal.WithLabelValues(result).Inc()
}

// Lookup records a knowledge-base lookup result.
func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(result).Inc()
}

// SendFailed records an undeliverable reply batch.
func (m *Metrics) SendFailed() {
	if m == nil {
		return
	}
	m.SendFailures.Inc()
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Snapshot is a compact view of the counters for the admin /stats command.
type Snapshot struct {
	Uptime    time.Duration
	Updates   map[string]int
	Turns     int
	Bookings  map[string]int
	Reprompts int
	Lookups   map[string]int
	SendFails int
}

// Snapshot gathers the current counter values.
func (m *Metrics) Snapshot() (Snapshot, error) {
	snap := Snapshot{Updates: map[string]int{}, Bookings: map[string]int{}, Lookups: map[string]int{}}
	if m == nil {
		return snap, nil
	}
	snap.Uptime = time.Since(m.start)

	families, err := m.reg.Gather()
	if err != nil {
		return snap, err
	}
	for _, fam := range families {
		switch fam.GetName() {
		case namespace + "_updates_total":
			sumCounters(fam, "status", snap.Updates)
		case namespace + "_turns_total":
			snap.Turns = sumCounters(fam, "", nil)
		case namespace + "_reprompts_total":
			snap.Reprompts = sumCounters(fam, "", nil)
		case namespace + "_bookings_total":
			sumCounters(fam, "result", snap.Bookings)
		case namespace + "_kb_lookups_total":
			sumCounters(fam, "result", snap.Lookups)
		case namespace + "_send_failures_total":
			snap.SendFails = sumCounters(fam, "", nil)
		}
	}
	return snap, nil
}

// sumCounters totals a counter family and, when by is set, splits the
// total by that label into out.
func sumCounters(fam *dto.MetricFamily, by string, out map[string]int) int {
	total := 0
	for _, metric := range fam.GetMetric() {
		v := int(metric.GetCounter().GetValue())
		total += v
		if by == "" || out == nil {
			continue
		}
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == by {
				out[lp.GetValue()] += v
			}
		}
	}
	return total
}
