package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/doubtflow"
	"github.com/aretw0/doubtflow/internal/config"
	"github.com/aretw0/doubtflow/pkg/adapters/file"
	httpAdapter "github.com/aretw0/doubtflow/pkg/adapters/http"
	"github.com/aretw0/doubtflow/pkg/adapters/openai"
	redisAdapter "github.com/aretw0/doubtflow/pkg/adapters/redis"
	"github.com/aretw0/doubtflow/pkg/domain"
	"github.com/aretw0/doubtflow/pkg/observability"
	"github.com/aretw0/doubtflow/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

// App is a fully wired doubtflow stack built from configuration.
type App struct {
	Engine  *doubtflow.Engine
	Bus     ports.EventBus
	Metrics *observability.Metrics
	Config  *config.Config
	Logger  *slog.Logger

	redis goredis.UniversalClient
}

// BuildOptions tunes Build beyond what the configuration file covers.
type BuildOptions struct {
	// Registry receives the Prometheus collectors. Nil disables metrics.
	Registry prometheus.Registerer
	// Escalator overrides the OpenAI client built from configuration.
	Escalator ports.Escalator
	// Debug adds lifecycle logging hooks.
	Debug bool
}

// Build wires the engine, the event bus and the optional Redis and metrics
// backends described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts BuildOptions) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	engineOpts := []doubtflow.Option{doubtflow.WithLogger(logger)}

	if cfg.Flows.Defaults {
		engineOpts = append(engineOpts, doubtflow.WithDefaultFlows())
	}
	if len(cfg.Flows.Paths) > 0 {
		engineOpts = append(engineOpts, doubtflow.WithLoader(file.NewLoader(cfg.Flows.Paths...)))
	}
	if cfg.Flows.Strict {
		engineOpts = append(engineOpts, doubtflow.WithStrictReferences())
	}

	esc := opts.Escalator
	if esc == nil {
		esc = createEscalator(cfg.OpenAI, logger)
	}
	engineOpts = append(engineOpts, doubtflow.WithEscalator(esc))

	var hooks []domain.LifecycleHooks
	if opts.Debug {
		hooks = append(hooks, observability.LoggingHooks(logger))
	}
	if opts.Registry != nil {
		m, err := observability.NewMetrics(opts.Registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		app.Metrics = m
		hooks = append(hooks, m.Hooks())
	}
	if len(hooks) > 0 {
		engineOpts = append(engineOpts, doubtflow.WithLifecycleHooks(observability.Chain(hooks...)))
	}

	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		app.redis = client
		app.Bus = redisAdapter.NewBus(client, cfg.Redis.Prefix, redisAdapter.WithBusLogger(logger))
		engineOpts = append(engineOpts, doubtflow.WithLocker(redisAdapter.NewLocker(client, cfg.Redis.Prefix)))
		logger.Info("Redis backend enabled", "addr", cfg.Redis.Addr)
	} else {
		app.Bus = httpAdapter.NewStreamManager(logger)
	}
	engineOpts = append(engineOpts, doubtflow.WithEventBus(app.Bus))

	eng, err := doubtflow.New(ctx, engineOpts...)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Engine = eng
	return app, nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	return errors.Join(errs...)
}

func createEscalator(cfg config.OpenAIConfig, logger *slog.Logger) ports.Escalator {
	if cfg.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; AI questions will get the unavailable notice")
		return openai.Unavailable()
	}
	return openai.New(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
	}, openai.WithLogger(logger))
}
