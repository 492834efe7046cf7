package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/bones/internal/apperr"
	"github.com/starford/bones/internal/classifier"
	"github.com/starford/bones/internal/ingest"
	"github.com/starford/bones/internal/metrics"
	"github.com/starford/bones/internal/vibeservice"
	"github.com/starford/bones/internal/vibestore"
)

var errConfigRequired = errors.New("config is required")

// core is the process-wide state shared by the serve and mcp commands.
type core struct {
	store    *vibestore.Store
	svc      *vibeservice.Service
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ingester *ingest.Ingester // nil when the stream is disabled
	token    *ingest.BearerToken
}

func newCore(cfg *Config, logger *slog.Logger, svcOpts ...vibeservice.Option) (*core, error) {
	zone, err := cfg.Zone.Location()
	if err != nil {
		return nil, err
	}
	overrides, err := cfg.Classifier.Overrides()
	if err != nil {
		return nil, err
	}
	cls, err := classifier.New(overrides)
	if err != nil {
		return nil, fmt.Errorf("init classifier: %w", err)
	}

	c := &core{store: vibestore.New(), registry: metrics.NewRegistry()}
	c.metrics = metrics.New(c.registry)

	svcOpts = append([]vibeservice.Option{vibeservice.WithMetrics(c.metrics)}, svcOpts...)
	c.svc = vibeservice.NewService(c.store, cls, zone, svcOpts...)

	if !cfg.Stream.Enabled {
		logger.Info("stream ingestion disabled; readings come from manual writes only")
		return c, nil
	}

	c.token = ingest.NewBearerToken(cfg.Stream.BearerToken)
	if cfg.Stream.BearerTokenFile != "" {
		if err := ingest.LoadBearerFile(cfg.Stream.BearerTokenFile, c.token); err != nil {
			return nil, err
		}
	}
	src := ingest.NewHTTPSource(ingest.NewBearerClient(c.token), cfg.Stream.SourceConfig(), logger)
	c.ingester = ingest.New(src, cls, c.store, cfg.Stream.IngestConfig(), logger,
		ingest.WithMetrics(c.metrics),
		ingest.WithCallback(c.svc.RecordWritten),
	)
	return c, nil
}

// ingestState reports the ingester state for the readiness probe.
func (c *core) ingestState() string {
	if c.ingester == nil {
		return "disabled"
	}
	return c.ingester.State().String()
}

// runIngest runs the ingester and the credential watcher until ctx ends.
// An authorization failure stops ingestion but not the process: readers keep
// getting the last stored value. When the token comes from a watched file,
// the ingester starts again as soon as the file yields a new token.
func (c *core) runIngest(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	if c.ingester == nil {
		return nil
	}
	watching := cfg.Stream.BearerTokenFile != ""
	if watching {
		go func() {
			if err := ingest.WatchCredentials(ctx, cfg.Stream.BearerTokenFile, c.token, logger); err != nil {
				logger.Error("credential watcher stopped", slog.String("error", err.Error()))
			}
		}()
	}

	for {
		// Taken before Run so a reload during a failing session is not missed.
		changed := c.token.Changed()

		err := c.ingester.Run(ctx)
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, apperr.ErrStreamUnauthorized):
			return fmt.Errorf("ingest: %w", err)
		case !watching:
			logger.Error("ingest: stopped on authorization failure; serving last stored reading",
				slog.String("error", err.Error()))
			return nil
		}

		logger.Error("ingest: authorization failed; waiting for new credentials",
			slog.String("error", err.Error()),
			slog.String("path", cfg.Stream.BearerTokenFile))
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			logger.Info("ingest: credentials changed, restarting")
		}
	}
}
