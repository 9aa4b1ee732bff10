package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/rating-enricher/internal/progress"
)

// PrometheusSink exports enrichment progress as Prometheus collectors.
type PrometheusSink struct {
	items          *prometheus.CounterVec
	itemDuration   *prometheus.HistogramVec
	attempts       prometheus.Histogram
	sessions       *prometheus.CounterVec
	chunkDuration  prometheus.Histogram
	itemsRemaining prometheus.Gauge
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_items_total",
			Help: "Items that reached a terminal state, by outcome and lookup path.",
		}, []string{"outcome", "via"}),
		itemDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enricher_item_duration_seconds",
			Help:    "Wall time per item lookup.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_item_attempts",
			Help:    "Navigation attempts spent per item.",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_sessions_total",
			Help: "Browser sessions by result.",
		}, []string{"result"}),
		chunkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_chunk_duration_seconds",
			Help:    "Wall time per chunk including session setup.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
		}),
		itemsRemaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enricher_items_remaining",
			Help: "Items in the worker range not yet processed.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.items,
		s.itemDuration,
		s.attempts,
		s.sessions,
		s.chunkDuration,
		s.itemsRemaining,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.itemsRemaining.Set(float64(evt.Items))
		case progress.StageChunkStart:
			s.sessions.WithLabelValues("started").Inc()
		case progress.StageSessionError:
			s.sessions.WithLabelValues("failed").Inc()
			s.itemsRemaining.Sub(float64(evt.Items))
		case progress.StageChunkDone:
			if evt.Dur > 0 {
				s.chunkDuration.Observe(evt.Dur.Seconds())
			}
		case progress.StageItemDone:
			via := evt.Via
			if via == "" {
				via = "none"
			}
			s.items.WithLabelValues(evt.Outcome, via).Inc()
			s.attempts.Observe(float64(evt.Attempts))
			if evt.Dur > 0 {
				s.itemDuration.WithLabelValues(evt.Outcome).Observe(evt.Dur.Seconds())
			}
			s.itemsRemaining.Dec()
		case progress.StageRunDone:
			s.itemsRemaining.Set(0)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
