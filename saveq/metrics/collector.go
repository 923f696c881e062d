// Package metrics exposes the save queue's operational counters to
// prometheus/client_golang, in the NewXVec+Registerer style used by
// the wider example corpus's Prometheus wrapper.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes queue depth, worker occupancy, append payload sizes
// and error/deletion counters for one save queue instance.
type Collector struct {
	memberID string

	queueDepth   *prometheus.GaugeVec
	workerBusy   *prometheus.GaugeVec
	savedIndex   *prometheus.GaugeVec
	appendBytes  *prometheus.HistogramVec
	appendsTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	deletesTotal *prometheus.CounterVec
}

// NewCollector registers the save queue's metric families with reg (or
// prometheus.DefaultRegisterer if nil) and returns a Collector scoped
// to memberID.
func NewCollector(reg prometheus.Registerer, memberID string) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collector{
		memberID: memberID,
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "saveq",
				Name:      "work_queue_depth",
				Help:      "Number of append requests currently queued for a save queue member.",
			},
			[]string{"member_id"},
		),
		workerBusy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "saveq",
				Name:      "worker_busy",
				Help:      "1 if the worker is currently processing a request, otherwise 0.",
			},
			[]string{"member_id", "worker"},
		),
		savedIndex: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "saveq",
				Name:      "saved_index",
				Help:      "Highest contiguous log index durably saved for a member.",
			},
			[]string{"member_id"},
		),
		appendBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "saveq",
				Name:      "append_payload_bytes",
				Help:      "Size in bytes of payloads passed to storage.Append.",
				Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
			},
			[]string{"member_id"},
		),
		appendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "saveq",
				Name:      "appends_total",
				Help:      "Total number of successful storage.Append calls.",
			},
			[]string{"member_id"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "saveq",
				Name:      "errors_total",
				Help:      "Total number of worker errors reported via the notifier.",
			},
			[]string{"member_id"},
		),
		deletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "saveq",
				Name:      "deletes_total",
				Help:      "Total number of entries deleted by deleteRange (overwrite and reconciliation paths).",
			},
			[]string{"member_id"},
		),
	}

	if err := c.register(reg); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Collector) register(reg prometheus.Registerer) error {
	if err := registerOrReuseGaugeVec(reg, &c.queueDepth); err != nil {
		return fmt.Errorf("register queue depth gauge: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &c.workerBusy); err != nil {
		return fmt.Errorf("register worker busy gauge: %w", err)
	}
	if err := registerOrReuseGaugeVec(reg, &c.savedIndex); err != nil {
		return fmt.Errorf("register saved index gauge: %w", err)
	}
	if err := registerOrReuseHistogramVec(reg, &c.appendBytes); err != nil {
		return fmt.Errorf("register append bytes histogram: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &c.appendsTotal); err != nil {
		return fmt.Errorf("register appends counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &c.errorsTotal); err != nil {
		return fmt.Errorf("register errors counter: %w", err)
	}
	if err := registerOrReuseCounterVec(reg, &c.deletesTotal); err != nil {
		return fmt.Errorf("register deletes counter: %w", err)
	}
	return nil
}

func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.WithLabelValues(c.memberID).Set(float64(depth))
}

func (c *Collector) SetWorkerBusy(worker int, busy bool) {
	v := 0.0
	if busy {
		v = 1.0
	}
	c.workerBusy.WithLabelValues(c.memberID, fmt.Sprintf("%d", worker)).Set(v)
}

func (c *Collector) SetSavedIndex(index uint64) {
	c.savedIndex.WithLabelValues(c.memberID).Set(float64(index))
}

func (c *Collector) ObserveAppend(payloadBytes int) {
	c.appendBytes.WithLabelValues(c.memberID).Observe(float64(payloadBytes))
	c.appendsTotal.WithLabelValues(c.memberID).Inc()
}

func (c *Collector) IncError() {
	c.errorsTotal.WithLabelValues(c.memberID).Inc()
}

func (c *Collector) AddDeletes(n int) {
	if n <= 0 {
		return
	}
	c.deletesTotal.WithLabelValues(c.memberID).Add(float64(n))
}

func registerOrReuseGaugeVec(reg prometheus.Registerer, v **prometheus.GaugeVec) error {
	if err := reg.Register(*v); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.GaugeVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *v)
		}
		*v = existing
	}
	return nil
}

func registerOrReuseCounterVec(reg prometheus.Registerer, v **prometheus.CounterVec) error {
	if err := reg.Register(*v); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *v)
		}
		*v = existing
	}
	return nil
}

func registerOrReuseHistogramVec(reg prometheus.Registerer, v **prometheus.HistogramVec) error {
	if err := reg.Register(*v); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return err
		}
		existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
		if !ok {
			return fmt.Errorf("collector type mismatch for %T", *v)
		}
		*v = existing
	}
	return nil
}
