// Package container wires every repository, service, and handler this
// application needs into one dependency-injection graph, and is the single
// place that knows how configuration turns into concrete implementations.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/dig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/deepresearch-go/pipeline/internal/application/repository"
	retrieverRepo "github.com/deepresearch-go/pipeline/internal/application/repository/retriever"
	"github.com/deepresearch-go/pipeline/internal/application/service"
	chatpipline "github.com/deepresearch-go/pipeline/internal/application/service/chat_pipline"
	"github.com/deepresearch-go/pipeline/internal/application/service/extract"
	"github.com/deepresearch-go/pipeline/internal/application/service/fetch"
	"github.com/deepresearch-go/pipeline/internal/application/service/file"
	"github.com/deepresearch-go/pipeline/internal/application/service/graph"
	"github.com/deepresearch-go/pipeline/internal/application/service/orchestrator"
	"github.com/deepresearch-go/pipeline/internal/application/service/retriever"
	"github.com/deepresearch-go/pipeline/internal/application/service/search"
	"github.com/deepresearch-go/pipeline/internal/config"
	"github.com/deepresearch-go/pipeline/internal/handler"
	"github.com/deepresearch-go/pipeline/internal/jobs"
	"github.com/deepresearch-go/pipeline/internal/logger"
	"github.com/deepresearch-go/pipeline/internal/models/chat"
	"github.com/deepresearch-go/pipeline/internal/models/embedding"
	"github.com/deepresearch-go/pipeline/internal/models/utils/ollama"
	"github.com/deepresearch-go/pipeline/internal/router"
	"github.com/deepresearch-go/pipeline/internal/stream"
	"github.com/deepresearch-go/pipeline/internal/tracing"
	"github.com/deepresearch-go/pipeline/internal/types"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// BuildContainer registers every repository, service, and handler this
// application needs onto container, and returns it configured and ready
// for cmd/server to Invoke its router out of.
func BuildContainer(container *dig.Container) *dig.Container {
	must(container.Provide(NewResourceCleaner))

	// Core infrastructure.
	must(container.Provide(config.LoadConfig))
	must(container.Provide(initTracer))
	must(container.Provide(initDatabase))
	must(container.Provide(initFileService))
	must(container.Provide(initAntsPool))
	must(container.Invoke(registerPoolCleanup))

	// Retrieval backends (C8) and the composite fan-out over them.
	must(container.Provide(initRetrieveEngineRegistry))
	must(container.Provide(retriever.NewCompositeRetriever))

	// External clients the research pipeline drives.
	must(container.Provide(initSearchClient))
	must(container.Provide(initFetcher))
	must(container.Provide(initRenderer))
	must(container.Provide(extract.NewExtractor))
	must(container.Provide(initOllamaService))
	must(container.Provide(embedding.NewBatchEmbedder))
	must(container.Provide(initChatModel))
	must(container.Provide(initEmbedder))
	must(container.Provide(initStreamManager))

	// Repositories.
	must(container.Provide(repository.NewTenantRepository))
	must(container.Provide(repository.NewUserRepository))
	must(container.Provide(repository.NewAuthTokenRepository))
	must(container.Provide(repository.NewModelRepository))
	must(container.Provide(repository.NewResearchTaskRepository))
	must(container.Provide(repository.NewResearchResultRepository))
	must(container.Provide(repository.NewResearchArtifactRepository))
	must(container.Provide(repository.NewResearchShareRepository))
	must(container.Provide(repository.NewGraphRepository))
	must(container.Provide(repository.NewChatSessionRepository))
	must(container.Provide(repository.NewChatMessageRepository))

	// Business services.
	must(container.Provide(service.NewTenantService))
	must(container.Provide(service.NewUserService))
	must(container.Provide(service.NewModelService))
	must(container.Provide(graph.NewBuilder))
	must(container.Provide(orchestrator.NewOrchestrator))

	// Background dispatch (§B: asynq, off the HTTP path).
	must(container.Provide(router.NewAsyncqClient))
	must(container.Provide(router.NewAsynqServer))
	must(container.Provide(jobs.NewDispatcher))
	must(container.Provide(jobs.NewHandler))
	must(container.Invoke(router.RunAsynqServer))

	// Chat pipeline (C9): one event manager, every plugin self-registers
	// against it on construction.
	must(container.Provide(chatpipline.NewEventManager))
	must(container.Invoke(chatpipline.NewPluginTracing))
	must(container.Invoke(chatpipline.NewPluginRetrieveContext))
	must(container.Invoke(chatpipline.NewPluginMergeContext))
	must(container.Invoke(chatpipline.NewPluginBuildPrompt))
	must(container.Invoke(chatpipline.NewPluginChatCompletion))
	must(container.Invoke(chatpipline.NewPluginChatCompletionStream))
	must(container.Invoke(chatpipline.NewPluginPersistMessage))

	// HTTP handlers.
	must(container.Provide(handler.NewTenantHandler))
	must(container.Provide(handler.NewAuthHandler))
	must(container.Provide(handler.NewModelHandler))
	must(container.Provide(handler.NewSystemHandler))
	must(container.Provide(handler.NewResearchHandler))
	must(container.Provide(handler.NewChatHandler))

	// Router.
	must(container.Provide(router.NewRouter))

	return container
}

// must panics on a wiring error: every failure here is a startup-time
// configuration mistake, not a condition the caller can recover from.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func initTracer() (*tracing.Tracer, error) {
	return tracing.InitTracer()
}

// initDatabase opens the Postgres connection and auto-migrates every
// table this application owns.
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
		cfg.Database.Password, cfg.Database.Name, cfg.Database.SSLMode,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.AutoMigrate(
		&types.Tenant{},
		&types.User{},
		&types.AuthToken{},
		&types.Model{},
		&types.ResearchTask{},
		&types.ResearchResult{},
		&types.ResearchArtifact{},
		&types.ResearchShare{},
		&types.GraphNode{},
		&types.GraphEdge{},
		&types.ChatSession{},
		&types.ChatMessage{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database tables: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)

	return db, nil
}

// initFileService builds the artifact store backing §4.6, choosing among
// the three interchangeable implementations by cfg.Storage.Type.
func initFileService(cfg *config.Config) (interfaces.FileService, error) {
	switch cfg.Storage.Type {
	case "minio":
		return file.NewMinioFileService(
			cfg.Storage.Endpoint, cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey, cfg.Storage.BucketName, false,
		)
	case "local":
		return file.NewLocalFileService(cfg.Storage.LocalBaseDir), nil
	case "dummy", "":
		return file.NewDummyFileService(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// initAntsPool builds the bounded worker pool the fetch stage (C2) submits
// into.
func initAntsPool(cfg *config.Config) (*ants.Pool, error) {
	size := cfg.Fetch.ConcurrencyPoolSize
	if size <= 0 {
		size = 5
	}
	return ants.NewPool(size, ants.WithPreAlloc(true))
}

func registerPoolCleanup(pool *ants.Pool, cleaner interfaces.ResourceCleaner) {
	cleaner.RegisterWithName("AntsPool", func() error {
		pool.Release()
		return nil
	})
}

// initRetrieveEngineRegistry registers every configured retrieval backend
// (C8): the vector engine is always on since it has no external
// dependency, graph and keyword are opt-in.
func initRetrieveEngineRegistry(
	cfg *config.Config, resultRepo *repository.ResearchResultRepository, graphRepo interfaces.GraphRepository,
) (interfaces.RetrieveEngineRegistry, error) {
	registry := retriever.NewRetrieveEngineRegistry()
	log := logger.GetLogger(context.Background())

	if err := registry.Register(retrieverRepo.NewVectorEngine(resultRepo)); err != nil {
		return nil, fmt.Errorf("register vector retrieve engine: %w", err)
	}

	if cfg.Graph.Enabled {
		if err := registry.Register(retrieverRepo.NewGraphEngine(graphRepo)); err != nil {
			return nil, fmt.Errorf("register graph retrieve engine: %w", err)
		}
	}

	if cfg.Elasticsearch.Enabled {
		client, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: []string{cfg.Elasticsearch.Address},
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			log.Errorf("create elasticsearch client failed, keyword engine disabled: %v", err)
		} else if err := registry.Register(retrieverRepo.NewKeywordEngine(client)); err != nil {
			return nil, fmt.Errorf("register keyword retrieve engine: %w", err)
		}
	}

	return registry, nil
}

// initSearchClient builds C1's search client, preferring the MCP stdio
// server and falling back to the direct HTTP API.
func initSearchClient(cfg *config.Config) *search.Client {
	return search.NewClient(search.Config{
		Command:   cfg.Search.MCPCommand,
		DirectURL: cfg.Search.DirectURL,
		Timeout:   cfg.Search.Timeout,
	})
}

// initFetcher builds C2's bounded-concurrency fetcher.
func initFetcher(cfg *config.Config, pool *ants.Pool) *fetch.Fetcher {
	return fetch.NewFetcher(fetch.Config{
		MaxContentSize: cfg.Fetch.MaxContentSize,
		Timeout:        cfg.Fetch.Timeout,
		UserAgent:      cfg.Fetch.UserAgent,
	}, pool)
}

// initRenderer builds the headless-render fallback for JS-only pages.
func initRenderer(cfg *config.Config) *fetch.Renderer {
	return fetch.NewRenderer(fetch.RenderConfig{Timeout: cfg.Fetch.Timeout})
}

// initChatModel builds the single chat model the orchestrator drives
// through query analysis, summarization, synthesis, and analysis.
func initChatModel(cfg *config.Config) (chat.Chat, error) {
	return chat.NewChat(&chat.ChatConfig{
		Source:    types.ModelSource(cfg.LLM.Chat.Source),
		BaseURL:   cfg.LLM.Chat.BaseURL,
		ModelName: cfg.LLM.Chat.ModelName,
		APIKey:    cfg.LLM.Chat.APIKey,
		ModelID:   cfg.LLM.Chat.ModelID,
	})
}

// initEmbedder builds the single embedding model shared by the
// orchestrator's synthesis-embedding step and the graph builder.
func initEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	return embedding.NewEmbedder(embedding.Config{
		Source:    types.ModelSource(cfg.LLM.Embedding.Source),
		BaseURL:   cfg.LLM.Embedding.BaseURL,
		ModelName: cfg.LLM.Embedding.ModelName,
		APIKey:    cfg.LLM.Embedding.APIKey,
		ModelID:   cfg.LLM.Embedding.ModelID,
	})
}

// initStreamManager builds the cross-replica stream manager backing
// resumable SSE chat turns; it falls back to an in-process manager when
// no Redis address is configured (single-replica / local development).
func initStreamManager(cfg *config.Config) (interfaces.StreamManager, error) {
	if cfg.Redis.Address == "" {
		return stream.NewMemoryStreamManager(), nil
	}
	return stream.NewRedisStreamManager(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, "chat-stream:", 0)
}

// initOllamaService returns the shared Ollama client used by locally
// hosted chat/embedding models and by ModelService's model-source checks.
func initOllamaService() (*ollama.OllamaService, error) {
	return ollama.GetOllamaService()
}
