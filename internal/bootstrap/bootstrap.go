package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/smnthegr/cali-ai/internal/config"
	"github.com/smnthegr/cali-ai/internal/core/ports"
	"github.com/smnthegr/cali-ai/internal/core/usecase"
	"github.com/smnthegr/cali-ai/internal/encyclopedia"
	"github.com/smnthegr/cali-ai/internal/infrastructure/inference/roboflow"
	"github.com/smnthegr/cali-ai/internal/infrastructure/queue/nats"
	"github.com/smnthegr/cali-ai/internal/infrastructure/ratelimit"
	"github.com/smnthegr/cali-ai/internal/infrastructure/repository/postgres"
	"github.com/smnthegr/cali-ai/internal/infrastructure/resilience"
	"github.com/smnthegr/cali-ai/internal/observability/metrics"
)

type App struct {
	Config config.Config

	DetectUC *usecase.DetectUseCase
	Metrics  *metrics.HTTPServerMetrics

	closeFn func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	var quota ports.QuotaStore = ratelimit.NewMemoryStore(cfg.RateLimitQuota, cfg.RateLimitWindow)
	if cfg.RateLimitDisabled {
		quota = ratelimit.Unlimited{}
	}

	serverMetrics := metrics.NewHTTPServerMetrics("cali-ai-api")

	executor := resilience.NewExecutor(resilience.DefaultPolicy())
	inference := roboflow.New(cfg.InferenceAPIKey, cfg.InferenceTimeout, executor)
	inference.ObserveDurations(func(modelURL string, elapsed time.Duration) {
		serverMetrics.RecordInference("cali-ai-api", modelURL, elapsed)
	})

	diseases, err := encyclopedia.Load()
	if err != nil {
		return nil, fmt.Errorf("load encyclopedia: %w", err)
	}

	var sinks []ports.AuditSink
	var closers []func()

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewAuditRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		sinks = append(sinks, repo)
		closers = append(closers, func() { _ = db.Close() })
	}

	if cfg.NATSURL != "" {
		publisher, err := nats.New(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		sinks = append(sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	detectUC := usecase.NewDetectUseCase(
		quota,
		inference,
		diseases,
		sinks,
		cfg.VerifierModelURL,
		cfg.DiseaseModelURL,
		cfg.ExpectedSubject,
	)

	return &App{
		Config:   cfg,
		DetectUC: detectUC,
		Metrics:  serverMetrics,

		closeFn: func() {
			for _, closeFn := range closers {
				closeFn()
			}
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
