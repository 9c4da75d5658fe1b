package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/fabfab/querry/api"
	"github.com/fabfab/querry/auth"
	"github.com/fabfab/querry/chat"
	"github.com/fabfab/querry/config"
	"github.com/fabfab/querry/database"
	"github.com/fabfab/querry/ingestion"
	"github.com/fabfab/querry/knowledge"
	"github.com/fabfab/querry/llm"
)

// app holds the connections and services shared by the commands.
type app struct {
	logger   *slog.Logger
	pool     *pgxpool.Pool
	driver   neo4j.DriverWithContext
	redis    *redis.Client
	graph    *knowledge.Graph
	registry *prometheus.Registry

	auth      *auth.Service
	documents *ingestion.Service
	chat      *chat.Service
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{logger: logger}

	pool, err := database.NewPostgresPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	if err := database.EnsureSchema(ctx, pool); err != nil {
		a.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	driver, err := database.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPass)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.driver = driver

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.redis = redisClient

	llmClient, err := llm.NewClient(cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm setup: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	documentStore := ingestion.NewPostgresStore(pool)
	a.documents = ingestion.NewService(documentStore, logger, cfg.UploadMaxBytes)

	a.chat = chat.NewService(documentStore, chat.NewPostgresSessionStore(pool), llmClient, logger, chat.Config{
		HistoryWindow: cfg.Chat.HistoryWindow,
		ContextBudget: cfg.Chat.ContextBudget,
		TitleLength:   cfg.Chat.TitleLength,
		Model:         cfg.LLM.Model,
	})
	a.chat.SetMetrics(chat.NewMetrics(a.registry))

	if counter, err := chat.NewTiktokenCounter(); err != nil {
		logger.Warn("token counting disabled", slog.Any("error", err))
	} else {
		a.chat.SetTokenCounter(counter)
	}

	if a.redis != nil {
		a.chat.SetLocker(chat.NewRedisLocker(a.redis, 0))
		logger.Info("session commits serialized through redis", slog.String("addr", cfg.RedisAddr))
	}

	if a.driver != nil {
		a.graph = knowledge.NewGraph(a.driver)
		a.documents.SetGraph(a.graph)
		a.chat.SetCitationRecorder(a.graph)
		logger.Info("citation graph enabled", slog.String("uri", cfg.Neo4jURI))
	}

	a.auth = auth.NewService(auth.NewPostgresUserStore(pool), cfg.JWTSecret, cfg.JWTExpiresIn, logger)
	return a, nil
}

func (a *app) insights() api.CitationInsights {
	if a.graph == nil {
		return nil
	}
	return a.graph
}

// clear removes every document and session, and the mirrored graph.
func (a *app) clear(ctx context.Context) error {
	if _, err := a.pool.Exec(ctx, "TRUNCATE chat_sessions, documents"); err != nil {
		return fmt.Errorf("truncate postgres tables: %w", err)
	}
	a.logger.Info("cleared postgres documents and chat_sessions")

	if a.driver == nil {
		return nil
	}
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	for _, query := range []string{
		"MATCH (s:Session) DETACH DELETE s",
		"MATCH (d:Document) DETACH DELETE d",
	} {
		result, err := session.Run(ctx, query, nil)
		if err != nil {
			return fmt.Errorf("clear neo4j: %w", err)
		}
		if _, err := result.Consume(ctx); err != nil {
			return fmt.Errorf("clear neo4j: %w", err)
		}
	}
	a.logger.Info("cleared neo4j documents and sessions")
	return nil
}

func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.driver != nil {
		_ = a.driver.Close(context.Background())
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
