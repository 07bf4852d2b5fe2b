// Package metrics exposes Prometheus counters for pipeline results.
package metrics

import (
	"context"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/roach88/aiguard/internal/pipeline"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "aiguard"

// Metrics holds the pipeline collectors.
type Metrics struct {
	Validations    *prometheus.CounterVec
	Violations     *prometheus.CounterVec
	Repairs        *prometheus.CounterVec
	Defaults       *prometheus.CounterVec
	RecordDefaults *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
// An empty namespace uses DefaultNamespace.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)
	return &Metrics{
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Total number of pipeline runs by outcome",
		}, []string{"contract", "strictness", "outcome"}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Field violations found on the first validation pass",
		}, []string{"contract", "field", "kind"}),
		Repairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Fields fixed by repair",
		}, []string{"contract", "field"}),
		Defaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "defaults_total",
			Help:      "Fields replaced by their default",
		}, []string{"contract", "field"}),
		RecordDefaults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_defaults_total",
			Help:      "Records replaced by the full-record default",
		}, []string{"contract", "reason"}),
	}
}

// Observe implements pipeline.Observer.
func (m *Metrics) Observe(_ context.Context, res pipeline.Result) {
	id := res.ContractID
	tr := res.Trace

	m.Validations.WithLabelValues(id, string(tr.Strictness), string(tr.Outcome())).Inc()
	for _, v := range tr.Violations {
		m.Violations.WithLabelValues(id, v.Field, string(v.Kind)).Inc()
	}
	for _, f := range tr.Repaired {
		m.Repairs.WithLabelValues(id, f).Inc()
	}
	for _, f := range tr.Defaulted {
		m.Defaults.WithLabelValues(id, f).Inc()
	}
	if tr.RecordDefault {
		m.RecordDefaults.WithLabelValues(id, string(tr.RecordDefaultReason)).Inc()
	}
}

// WriteText writes every family gathered from g in the Prometheus text
// exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
