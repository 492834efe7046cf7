// Package ingest consumes the live post stream, classifies original posts and
// writes the result into the vibe store.
//
// The ingester runs for the lifetime of the process:
//
//	Connecting -> Streaming -> Disconnected -> Connecting ...
//	                        \-> Terminated (shutdown) / Failed (auth)
//
// Transport errors, disconnect notices and watchdog expiry all lead back to
// Connecting after a bounded, doubling backoff. Authentication failures stop
// the ingester and are returned to the caller; the serving path keeps
// answering from the last stored record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/starford/bones/internal/apperr"
	"github.com/starford/bones/internal/classifier"
	"github.com/starford/bones/internal/metrics"
	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/vibestore"
)

// State is the ingester's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateDisconnected
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds reconnect and watchdog timings.
type Config struct {
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration
	MaxBackoff       time.Duration
	HeartbeatTimeout time.Duration
}

// DefaultConfig matches the upstream keep-alive cadence of roughly 20s.
func DefaultConfig() Config {
	return Config{
		InitialBackoff:   time.Second,
		RateLimitBackoff: time.Minute,
		MaxBackoff:       5 * time.Minute,
		HeartbeatTimeout: 30 * time.Second,
	}
}

// RecordCallback is called after each successful store write.
type RecordCallback func(rec models.Record)

// Option configures an Ingester.
type Option func(*Ingester)

// WithClock replaces the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(i *Ingester) { i.clock = c }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Ingester) { i.metrics = m }
}

// WithCallback registers a callback fired after each store write.
func WithCallback(cb RecordCallback) Option {
	return func(i *Ingester) { i.cb = cb }
}

// Ingester is the long-running stream consumer.
type Ingester struct {
	src        Source
	classifier *classifier.Classifier
	store      vibestore.Writer
	cfg        Config
	logger     *slog.Logger
	clock      clockwork.Clock
	metrics    *metrics.Metrics
	cb         RecordCallback

	state atomic.Int32
}

// New creates an Ingester. Zero durations in cfg fall back to DefaultConfig.
func New(src Source, cls *classifier.Classifier, store vibestore.Writer, cfg Config, logger *slog.Logger, opts ...Option) *Ingester {
	def := DefaultConfig()
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = def.RateLimitBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	i := &Ingester{
		src:        src,
		classifier: cls,
		store:      store,
		cfg:        cfg,
		logger:     logger,
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.setState(StateConnecting)
	return i
}

// State returns the current lifecycle state.
func (i *Ingester) State() State {
	return State(i.state.Load())
}

func (i *Ingester) setState(s State) {
	i.state.Store(int32(s))
	i.metrics.SetIngestState(int(s))
}

// Run consumes the stream until ctx is cancelled (returns nil) or the source
// rejects the credentials (returns an error wrapping
// apperr.ErrStreamUnauthorized).
func (i *Ingester) Run(ctx context.Context) error {
	backoff := i.cfg.InitialBackoff

	for {
		i.setState(StateConnecting)
		connID := uuid.NewString()
		log := i.logger.With(slog.String("conn_id", connID))

		delivered, err := i.session(ctx, log)
		if ctx.Err() != nil {
			i.setState(StateTerminated)
			log.Info("ingest: stopped")
			return nil
		}
		if errors.Is(err, apperr.ErrStreamUnauthorized) {
			i.setState(StateFailed)
			log.Error("ingest: authentication rejected, giving up", slog.String("error", err.Error()))
			return fmt.Errorf("ingest: %w", err)
		}

		i.setState(StateDisconnected)
		if delivered {
			backoff = i.cfg.InitialBackoff
		}
		wait := backoff
		reason := "error"
		switch {
		case errors.Is(err, apperr.ErrStreamRateLimited):
			reason = "rate_limited"
			if wait < i.cfg.RateLimitBackoff {
				wait = i.cfg.RateLimitBackoff
			}
		case errors.Is(err, apperr.ErrWatchdogExpired):
			reason = "watchdog"
		case errors.Is(err, apperr.ErrStreamClosed):
			reason = "closed"
		}
		i.metrics.Reconnect(reason)
		log.Warn("ingest: disconnected, will reconnect",
			slog.String("reason", reason),
			slog.String("error", errString(err)),
			slog.Duration("backoff", wait))

		select {
		case <-ctx.Done():
			i.setState(StateTerminated)
			log.Info("ingest: stopped")
			return nil
		case <-i.clock.After(wait):
		}
		backoff = nextBackoff(wait, i.cfg.MaxBackoff)
	}
}

// nextBackoff doubles cur, capped at limit.
func nextBackoff(cur, limit time.Duration) time.Duration {
	next := cur * 2
	if next > limit || next <= 0 {
		return limit
	}
	return next
}

type item struct {
	msg Message
	err error
}

// session runs one connection. delivered reports whether at least one
// content or heartbeat message arrived, which resets the backoff.
func (i *Ingester) session(ctx context.Context, log *slog.Logger) (delivered bool, err error) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := i.src.Connect(connCtx)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Debug("ingest: close stream", slog.String("error", cerr.Error()))
		}
	}()

	i.setState(StateStreaming)
	log.Info("ingest: connected")

	items := make(chan item)
	go func() {
		for {
			msg, err := stream.Next(connCtx)
			select {
			case items <- item{msg: msg, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil && !errors.Is(err, apperr.ErrMalformedMessage) {
				return
			}
		}
	}()

	watchdog := i.clock.NewTimer(i.cfg.HeartbeatTimeout)
	defer watchdog.Stop()

	for {
		select {
		case <-ctx.Done():
			return delivered, ctx.Err()

		case <-watchdog.Chan():
			return delivered, apperr.ErrWatchdogExpired

		case it := <-items:
			if it.err != nil {
				if errors.Is(it.err, apperr.ErrMalformedMessage) {
					i.metrics.Message("unknown", "malformed")
					log.Warn("ingest: skipping malformed message", slog.String("error", it.err.Error()))
					continue
				}
				return delivered, it.err
			}

			watchdog.Reset(i.cfg.HeartbeatTimeout)

			// Only content and heartbeats make a session productive; a
			// notice-only session must not reset the backoff.
			switch it.msg.Kind {
			case KindHeartbeat:
				delivered = true
				i.metrics.Message("heartbeat", "ok")
			case KindContent:
				delivered = true
				i.handleContent(it.msg, log)
			case KindDisconnected:
				i.metrics.Message("disconnected", "ok")
				cause := apperr.ErrStreamClosed
				if it.msg.Code == http.StatusTooManyRequests {
					cause = apperr.ErrStreamRateLimited
				}
				return delivered, fmt.Errorf("%w: code %d: %s", cause, it.msg.Code, it.msg.Reason)
			default:
				i.metrics.Message("unknown", "skipped")
				log.Warn("ingest: skipping unrecognized message", slog.Int("kind", int(it.msg.Kind)))
			}
		}
	}
}

func (i *Ingester) handleContent(msg Message, log *slog.Logger) {
	if !msg.Eligible() {
		i.metrics.Message("content", "excluded")
		log.Debug("ingest: excluded post",
			slog.String("post_id", msg.ID),
			slog.Bool("reshare", msg.IsReshare),
			slog.Bool("quote", msg.IsQuote),
			slog.Bool("reply", msg.IsReplyToOther))
		return
	}

	class := i.classifier.Classify(msg.Text)
	observedAt := msg.CreatedAt
	if observedAt.IsZero() {
		observedAt = i.clock.Now()
	}

	if err := i.store.Write(class, observedAt); err != nil {
		i.metrics.Message("content", "write_failed")
		log.Error("ingest: store write failed", slog.String("post_id", msg.ID), slog.String("error", err.Error()))
		return
	}
	i.metrics.Message("content", "classified")
	i.metrics.StoreWrite("stream", class.String())
	log.Info("ingest: classified post",
		slog.String("post_id", msg.ID),
		slog.String("classification", class.String()),
		slog.Time("observed_at", observedAt))

	if i.cb != nil {
		i.cb(models.Record{Classification: class, ObservedAt: observedAt})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
