package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/conftree/ports"
)

// InstrumentedStore wraps a DocumentStore and records per-document load,
// save and conflict metrics. A nil collector passes calls through
// unrecorded.
type InstrumentedStore struct {
	inner   ports.DocumentStore
	metrics *Collector
}

// Ensure interface compliance.
var _ ports.DocumentStore = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps inner with metric recording.
func NewInstrumentedStore(inner ports.DocumentStore, m *Collector) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, metrics: m}
}

func (s *InstrumentedStore) Load(ctx context.Context, name string) (ports.Stored, error) {
	start := time.Now()
	doc, err := s.inner.Load(ctx, name)
	if s.metrics != nil && err == nil {
		s.metrics.DocumentLoads.WithLabelValues(name).Inc()
		s.metrics.LoadDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return doc, err
}

func (s *InstrumentedStore) LoadVersion(ctx context.Context, name string, version int64) (ports.Stored, error) {
	start := time.Now()
	doc, err := s.inner.LoadVersion(ctx, name, version)
	if s.metrics != nil && err == nil {
		s.metrics.DocumentLoads.WithLabelValues(name).Inc()
		s.metrics.LoadDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}
	return doc, err
}

func (s *InstrumentedStore) Save(ctx context.Context, doc ports.Stored, expected int64) (ports.Stored, error) {
	saved, err := s.inner.Save(ctx, doc, expected)
	if s.metrics != nil {
		var pre *ports.PreconditionError
		switch {
		case err == nil:
			s.metrics.DocumentSaves.WithLabelValues(doc.Name).Inc()
		case errors.As(err, &pre):
			s.metrics.SaveConflicts.WithLabelValues(doc.Name).Inc()
		}
	}
	return saved, err
}

func (s *InstrumentedStore) History(ctx context.Context, name string, limit int) ([]ports.Stored, error) {
	return s.inner.History(ctx, name, limit)
}

// InstrumentedSealer wraps a Sealer and counts sealed secrets.
type InstrumentedSealer struct {
	inner   ports.Sealer
	metrics *Collector
}

// Ensure interface compliance.
var _ ports.Sealer = (*InstrumentedSealer)(nil)

// NewInstrumentedSealer wraps inner with metric recording.
func NewInstrumentedSealer(inner ports.Sealer, m *Collector) *InstrumentedSealer {
	return &InstrumentedSealer{inner: inner, metrics: m}
}

func (s *InstrumentedSealer) Seal(plaintext []byte) ([]byte, error) {
	sealed, err := s.inner.Seal(plaintext)
	if s.metrics != nil && err == nil {
		s.metrics.SecretsSealed.Inc()
	}
	return sealed, err
}

func (s *InstrumentedSealer) Open(sealed []byte) ([]byte, error) {
	return s.inner.Open(sealed)
}
