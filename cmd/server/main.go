package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/castmind/castmind/config"
	"github.com/castmind/castmind/handlers"
	"github.com/castmind/castmind/internal/auth"
	"github.com/castmind/castmind/internal/gateway"
	"github.com/castmind/castmind/internal/memory"
	"github.com/castmind/castmind/internal/persona"
	"github.com/castmind/castmind/internal/pipeline"
	"github.com/castmind/castmind/internal/store"
	"github.com/castmind/castmind/internal/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging).Sugar()
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	var gw gateway.Client
	if cfg.Gateway.Mock {
		logger.Infow("using mock gateway (MOCK_LLM=true)")
		gw = gateway.Mock{}
	} else {
		gw = gateway.NewOpenAIClient(cfg.Gateway, logger)
	}

	roster, postgres := loadRoster(ctx, cfg, logger)
	if postgres != nil {
		defer postgres.Close()
	}

	orchestrator, err := pipeline.Assemble(roster, gw, logger)
	if err != nil {
		logger.Fatalw("failed to assemble pipeline", "error", err)
	}

	history := buildHistoryStore(ctx, cfg, logger)
	transcripts := buildTranscriptStore(ctx, cfg, logger)
	if transcripts != nil {
		defer func() {
			if err := transcripts.Close(context.Background()); err != nil {
				logger.Warnw("mongo close failed", "error", err)
			}
		}()
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		logger.Fatalw("failed to initialise auth service", "error", err)
	}

	router := setupRouter(cfg, orchestrator, roster, history, transcripts, authService, logger)

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Infow("server listening", "addr", server.Addr, "personas", len(roster))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("graceful shutdown failed", "error", err)
	}

	logger.Infow("server stopped cleanly")
}

// loadRoster prefers the Postgres persona registry and falls back to the
// built-in roster when the registry is unavailable or empty.
func loadRoster(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) ([]persona.Descriptor, *store.Postgres) {
	fallback := persona.DefaultRoster(cfg.CorpusDir)

	if cfg.DBURL == "" {
		return fallback, nil
	}

	postgres, err := store.NewPostgres(ctx, cfg.DBURL)
	if err != nil {
		logger.Warnw("persona registry unavailable, using built-in roster", "error", err)
		return fallback, nil
	}

	if err := postgres.EnsureSchema(ctx); err != nil {
		logger.Warnw("persona registry schema check failed, using built-in roster", "error", err)
		return fallback, postgres
	}

	roster, err := postgres.ListPersonas(ctx)
	if err != nil || len(roster) == 0 {
		if err != nil {
			logger.Warnw("persona registry read failed, using built-in roster", "error", err)
		}
		return fallback, postgres
	}

	logger.Infow("loaded persona roster from registry", "personas", len(roster))
	return roster, postgres
}

func buildHistoryStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) memory.Store {
	if cfg.RedisAddr == "" {
		return memory.NewInMemoryStore()
	}

	redisStore, err := memory.NewRedisStore(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warnw("redis unavailable, keeping collaboration history in memory", "error", err)
		return memory.NewInMemoryStore()
	}

	return redisStore
}

func buildTranscriptStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *store.Mongo {
	if cfg.MongoURI == "" {
		return nil
	}

	mongoStore, err := store.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Warnw("mongo unavailable, transcripts will not be archived", "error", err)
		return nil
	}

	if err := mongoStore.EnsureIndexes(ctx); err != nil {
		logger.Warnw("mongo index check failed", "error", err)
	}

	return mongoStore
}

func setupRouter(
	cfg *config.Config,
	orchestrator *pipeline.Orchestrator,
	roster []persona.Descriptor,
	history memory.Store,
	transcripts *store.Mongo,
	authService *auth.Service,
	logger *zap.SugaredLogger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	chatHandler := handlers.NewChatHandler(orchestrator, roster, history, transcripts, logger)
	streamHandler := handlers.NewStreamHandler(chatHandler, logger)
	infoHandler := handlers.NewInfoHandler(roster, orchestrator.Stages())
	authHandler := handlers.NewAuthHandler(authService)

	router.GET("/health", infoHandler.HandleHealth)

	apiGroup := router.Group("/api")
	apiGroup.GET("/agents", infoHandler.HandleAgents)
	apiGroup.GET("/scenarios", infoHandler.HandleScenarios)
	apiGroup.GET("/stats", infoHandler.HandleStats)
	apiGroup.POST("/auth/register", authHandler.HandleRegister)
	apiGroup.POST("/auth/login", authHandler.HandleLogin)

	guard := auth.Middleware(authService, cfg.AuthRequired)
	apiGroup.POST("/chat", guard, chatHandler.HandleChat)
	router.GET("/ws/chat", guard, streamHandler.HandleStream)

	return router
}
