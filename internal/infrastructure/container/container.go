// Package container provides dependency injection using Uber FX.
package container

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	chatapp "github.com/pantrychat/v1/internal/application/chat"
	"github.com/pantrychat/v1/internal/application/classifier"
	"github.com/pantrychat/v1/internal/application/extractor"
	"github.com/pantrychat/v1/internal/application/generalchat"
	"github.com/pantrychat/v1/internal/application/search"
	"github.com/pantrychat/v1/internal/infrastructure/ai/openai"
	"github.com/pantrychat/v1/internal/infrastructure/cache"
	"github.com/pantrychat/v1/internal/infrastructure/config"
	"github.com/pantrychat/v1/internal/infrastructure/http/server"
	gormrepo "github.com/pantrychat/v1/internal/infrastructure/persistence/gorm"
	"github.com/pantrychat/v1/internal/infrastructure/webhook"
	"github.com/pantrychat/v1/internal/ports/outbound"
	"github.com/pantrychat/v1/pkg/logger"
)

// Module wires the whole application.
var Module = fx.Options(
	ConfigModule,
	LoggerModule,
	DatabaseModule,
	CacheModule,
	AIModule,
	RepositoryModule,
	ServiceModule,
	HTTPModule,
	LifecycleModule,
)

// ConfigModule provides configuration.
var ConfigModule = fx.Provide(
	func() (*config.Config, error) {
		return config.Load("")
	},
)

// LoggerModule provides logging.
var LoggerModule = fx.Provide(
	func(cfg *config.Config) (*zap.Logger, error) {
		return logger.New(logger.Config{
			Level:       cfg.App.LogLevel,
			Format:      cfg.App.LogFormat,
			Development: cfg.App.Debug,
		})
	},
)

// DatabaseModule provides the GORM connection.
var DatabaseModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
		return gormrepo.Open(cfg, log)
	},
)

// CacheModule provides the optional embedding cache. A nil redis client
// means caching is disabled and embeddings are computed on every call.
var CacheModule = fx.Provide(
	func(cfg *config.Config, log *zap.Logger) *redis.Client {
		return cache.NewRedisClient(cfg.Redis, log)
	},
	func(cfg *config.Config, client *redis.Client, log *zap.Logger) outbound.EmbeddingCache {
		if client == nil {
			return nil
		}
		return cache.NewEmbeddingCache(client, cfg.AI.EmbeddingModel, log)
	},
)

// AIModule provides the chat-completion and embedding clients.
var AIModule = fx.Provide(
	fx.Annotate(
		func(cfg *config.Config, log *zap.Logger) *openai.Client {
			return openai.NewClient(cfg.AI, log)
		},
		fx.As(new(outbound.ChatCompletionService)),
	),
	fx.Annotate(
		func(cfg *config.Config, embCache outbound.EmbeddingCache, log *zap.Logger) *openai.EmbeddingClient {
			return openai.NewEmbeddingClient(cfg.AI, embCache, cfg.Redis.CacheTTL, log)
		},
		fx.As(new(outbound.EmbeddingService)),
	),
)

// RepositoryModule provides repository implementations.
var RepositoryModule = fx.Provide(
	gormrepo.NewChatRepository,
	gormrepo.NewSearchRepository,
	fx.Annotate(
		func(cfg *config.Config, log *zap.Logger) *webhook.Gateway {
			return webhook.NewGateway(cfg.Webhook, log)
		},
		fx.As(new(outbound.WorkflowGateway)),
	),
)

// ServiceModule provides the application services.
var ServiceModule = fx.Provide(
	classifier.NewClassifier,
	extractor.NewExtractor,
	generalchat.NewHandler,
	func(embedder outbound.EmbeddingService, repo outbound.RecipeSearchRepository, cfg *config.Config, log *zap.Logger) *search.Engine {
		return search.NewEngine(embedder, repo, cfg.Retrieval, log)
	},
	chatapp.NewService,
)

// HTTPModule provides the HTTP server.
var HTTPModule = fx.Provide(
	server.NewServer,
)

// LifecycleModule starts and stops the HTTP server with the fx lifecycle.
var LifecycleModule = fx.Invoke(
	func(lc fx.Lifecycle, srv *server.Server, cfg *config.Config, log *zap.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				go func() {
					if err := srv.Start(); err != nil {
						log.Error("HTTP server stopped", zap.Error(err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			},
		})
	},
)
