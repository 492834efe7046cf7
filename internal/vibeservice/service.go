// Package vibeservice implements the operations the outer layers (HTTP, MCP,
// CLI) invoke on the core: read the current view, override the stored
// classification, and classify-and-store free text.
package vibeservice

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/bones/internal/classifier"
	"github.com/starford/bones/internal/metrics"
	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/vibestore"
)

// Notifier receives the fresh view after every store write.
type Notifier func(view queryview.Result)

// ClassifyResult is returned by ClassifyAndSet.
type ClassifyResult struct {
	Classification models.Classification `json:"classification"`
	Label          string                `json:"label"`
}

// Service coordinates the store, classifier and query view.
type Service struct {
	store      *vibestore.Store
	classifier *classifier.Classifier
	zone       *time.Location
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	notify     Notifier
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithNotifier registers a callback fired after every write.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// NewService creates a Service. A nil zone means UTC.
func NewService(store *vibestore.Store, cls *classifier.Classifier, zone *time.Location, opts ...Option) *Service {
	if zone == nil {
		zone = time.UTC
	}
	s := &Service{
		store:      store,
		classifier: cls,
		zone:       zone,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCurrentView returns the view of the stored record at the current time.
// It never fails, whatever state the ingester is in.
func (s *Service) GetCurrentView(_ context.Context) queryview.Result {
	return queryview.CurrentView(s.store.Read(), s.clock.Now(), s.zone)
}

// SetClassification stores c with the current time. A cancelled ctx means
// the write is not attempted.
func (s *Service) SetClassification(ctx context.Context, c models.Classification) (queryview.Result, error) {
	if err := ctx.Err(); err != nil {
		return queryview.Result{}, err
	}
	now := s.clock.Now()
	if err := s.store.Write(c, now); err != nil {
		return queryview.Result{}, fmt.Errorf("set classification: %w", err)
	}
	s.metrics.StoreWrite("manual", c.String())
	view := queryview.CurrentView(models.Record{Classification: c, ObservedAt: now}, now, s.zone)
	s.publish(view)
	return view, nil
}

// ClassifyAndSet classifies text, stores the result with the current time
// and returns the short label.
func (s *Service) ClassifyAndSet(ctx context.Context, text string) (ClassifyResult, error) {
	if err := ctx.Err(); err != nil {
		return ClassifyResult{}, err
	}
	c := s.classifier.Classify(text)
	now := s.clock.Now()
	if err := s.store.Write(c, now); err != nil {
		return ClassifyResult{}, fmt.Errorf("classify and set: %w", err)
	}
	s.metrics.StoreWrite("classify", c.String())
	s.publish(queryview.CurrentView(models.Record{Classification: c, ObservedAt: now}, now, s.zone))
	return ClassifyResult{Classification: c, Label: c.Presentation().Label}, nil
}

// Classify runs the classifier without touching the store.
func (s *Service) Classify(text string) models.Classification {
	return s.classifier.Classify(text)
}

// RecordWritten publishes the view for a record written by another party
// (the stream ingester). It has the ingest.RecordCallback signature.
func (s *Service) RecordWritten(rec models.Record) {
	s.publish(queryview.CurrentView(rec, s.clock.Now(), s.zone))
}

func (s *Service) publish(view queryview.Result) {
	if s.notify != nil {
		s.notify(view)
	}
}
