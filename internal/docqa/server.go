// Package docqasvc provides the document QA server implementation.
package docqasvc

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/docqa/biz"
	"github.com/kart-io/docqa/internal/docqa/handler"
	"github.com/kart-io/docqa/internal/docqa/history"
	"github.com/kart-io/docqa/internal/docqa/registry"
	"github.com/kart-io/docqa/internal/docqa/router"
	"github.com/kart-io/docqa/internal/docqa/store"
	"github.com/kart-io/docqa/internal/pkg/extractor"
	"github.com/kart-io/docqa/internal/pkg/notify"
	"github.com/kart-io/docqa/pkg/app"
	"github.com/kart-io/docqa/pkg/component/milvus"
	"github.com/kart-io/docqa/pkg/infra/pool"
	"github.com/kart-io/docqa/pkg/llm"
	"github.com/kart-io/docqa/pkg/llm/fallback"
	cacheopts "github.com/kart-io/docqa/pkg/options/cache"
	docqaopts "github.com/kart-io/docqa/pkg/options/docqa"
	httpopts "github.com/kart-io/docqa/pkg/options/http"
	logopts "github.com/kart-io/docqa/pkg/options/logger"
	milvusopts "github.com/kart-io/docqa/pkg/options/milvus"
	notifyopts "github.com/kart-io/docqa/pkg/options/notify"
	ollamaopts "github.com/kart-io/docqa/pkg/options/ollama"

	// 导入 LLM 供应商以自动注册
	_ "github.com/kart-io/docqa/pkg/llm/ollama"
)

// Name is the name of the application.
const Name = "docqa"

// Config contains application-related configurations.
type Config struct {
	HTTPOptions     *httpopts.Options
	LogOptions      *logopts.Options
	MilvusOptions   *milvusopts.Options
	OllamaOptions   *ollamaopts.Options
	DocQAOptions    *docqaopts.Options
	CacheOptions    *cacheopts.Options
	NotifyOptions   *notifyopts.Options
	ShutdownTimeout time.Duration
}

// Server represents the document QA server.
type Server struct {
	httpServer      *http.Server
	shutdownTimeout time.Duration
	milvusClose     func()
	redisClose      func()
}

// NewServer initializes and returns a new Server instance.
func (cfg *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. 初始化日志
	cfg.LogOptions.AddInitialField("service.name", Name)
	cfg.LogOptions.AddInitialField("service.version", app.GetVersion())
	if err := cfg.LogOptions.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting document QA service...")

	// 2. 初始化协程池
	if err := pool.InitGlobal(); err != nil {
		return nil, fmt.Errorf("failed to initialize worker pools: %w", err)
	}
	logger.Info("Worker pools initialized")

	// 3. 初始化向量存储
	var vectorStore store.VectorStore
	var milvusClose func()
	switch cfg.DocQAOptions.Store {
	case docqaopts.StoreMilvus:
		milvusClient, err := milvus.New(cfg.MilvusOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize milvus: %w", err)
		}
		milvusStore, err := store.NewMilvusStore(ctx, milvusClient,
			cfg.DocQAOptions.Collection, cfg.DocQAOptions.EmbeddingDim)
		if err != nil {
			_ = milvusClient.Close(context.Background())
			return nil, fmt.Errorf("failed to initialize milvus store: %w", err)
		}
		vectorStore = milvusStore
		milvusClose = func() { _ = milvusClient.Close(context.Background()) }
		logger.Infow("Milvus vector store initialized",
			"address", cfg.MilvusOptions.Address,
			"collection", cfg.DocQAOptions.Collection,
		)
	default:
		vectorStore = store.NewMemoryStore()
		logger.Info("In-memory vector store initialized")
	}

	// 4. 初始化 Redis（查询缓存和会话历史），连接失败时降级运行
	var redisClient *goredis.Client
	var queryCache *biz.QueryCache
	var historyStore history.Store
	var redisClose func()
	if cfg.CacheOptions.Enabled && cfg.CacheOptions.Redis != nil {
		redisOpts := cfg.CacheOptions.Redis
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:         redisOpts.Addr(),
			Password:     redisOpts.Password,
			DB:           redisOpts.Database,
			MaxRetries:   redisOpts.MaxRetries,
			PoolSize:     redisOpts.PoolSize,
			MinIdleConns: redisOpts.MinIdleConns,
			DialTimeout:  redisOpts.DialTimeout,
			ReadTimeout:  redisOpts.ReadTimeout,
			WriteTimeout: redisOpts.WriteTimeout,
		})

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnw("failed to connect to redis, cache and history will run degraded",
				"error", err.Error(),
			)
			_ = redisClient.Close()
			redisClient = nil
		} else {
			queryCache = biz.NewQueryCache(redisClient, &biz.QueryCacheConfig{
				Enabled:   true,
				TTL:       cfg.CacheOptions.TTL,
				KeyPrefix: cfg.CacheOptions.KeyPrefix,
			})
			historyStore = history.NewRedisStore(redisClient, "docqa:history:", 0)
			redisClose = func() { _ = redisClient.Close() }
			logger.Infow("Redis initialized",
				"host", redisOpts.Host,
				"port", redisOpts.Port,
				"cache_ttl", cfg.CacheOptions.TTL,
			)
		}
	} else {
		logger.Info("Cache is disabled")
	}
	if historyStore == nil {
		historyStore = history.NewMemoryStore()
	}

	// 5. 初始化 LLM 供应商，嵌入侧带哈希降级
	providerConfig := map[string]any{
		"base_url":         cfg.OllamaOptions.BaseURL,
		"embed_model":      cfg.OllamaOptions.EmbedModel,
		"chat_model":       cfg.OllamaOptions.ChatModel,
		"timeout":          cfg.OllamaOptions.Timeout,
		"generate_timeout": cfg.OllamaOptions.GenerateTimeout,
		"max_retries":      cfg.OllamaOptions.MaxRetries,
	}
	provider, err := llm.NewProvider("ollama", providerConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm provider: %w", err)
	}
	// 缓存层包在哈希降级内侧，只缓存真实模型产出的向量
	var upstream llm.EmbeddingProvider = provider
	if redisClient != nil {
		upstream = llm.NewEmbeddingCache(provider, redisClient, &llm.EmbeddingCacheConfig{
			Enabled: true,
			TTL:     cfg.CacheOptions.EmbeddingTTL,
		})
	}
	embedProvider := fallback.New(upstream, cfg.DocQAOptions.EmbeddingDim)
	logger.Infow("LLM provider initialized",
		"base_url", cfg.OllamaOptions.BaseURL,
		"embed_model", cfg.OllamaOptions.EmbedModel,
		"chat_model", cfg.OllamaOptions.ChatModel,
	)

	// 6. 初始化文档登记表
	reg, err := registry.New(cfg.DocQAOptions.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize document registry: %w", err)
	}
	logger.Infow("Document registry initialized",
		"path", cfg.DocQAOptions.RegistryPath,
		"documents", reg.Count(),
	)

	// 7. 初始化通知器
	var notifier notify.Notifier = notify.NewNoop()
	if cfg.NotifyOptions != nil && cfg.NotifyOptions.Enabled {
		notifier = notify.NewTelegram(cfg.NotifyOptions.TelegramToken, cfg.NotifyOptions.TelegramChatID)
		logger.Info("Telegram notifier initialized")
	}

	// 8. 初始化 Biz 层
	serviceConfig := &biz.ServiceConfig{
		IngesterConfig: &biz.IngesterConfig{
			ChunkSize:    cfg.DocQAOptions.ChunkSize,
			ChunkOverlap: cfg.DocQAOptions.ChunkOverlap,
		},
		RetrieverConfig: &biz.RetrieverConfig{
			TopK: cfg.DocQAOptions.TopK,
		},
		GeneratorConfig: &biz.GeneratorConfig{
			SystemPrompt: cfg.DocQAOptions.SystemPrompt,
		},
	}
	service := biz.NewDocQAService(
		vectorStore,
		embedProvider,
		provider,
		extractor.NewPDF(),
		reg,
		notifier,
		queryCache,
		serviceConfig,
	)
	logger.Infow("Document QA service initialized",
		"store", cfg.DocQAOptions.Store,
		"cache.enabled", cfg.CacheOptions.Enabled,
		"chunk_size", cfg.DocQAOptions.ChunkSize,
		"top_k", cfg.DocQAOptions.TopK,
	)

	// 9. 初始化 Handler 层和路由
	documentHandler := handler.NewDocumentHandler(service,
		cfg.DocQAOptions.UploadDir, cfg.DocQAOptions.MaxFileSize)
	chatHandler := handler.NewChatHandler(service, historyStore)
	healthHandler := handler.NewHealthHandler(service, app.GetVersion())
	notifyHandler := handler.NewNotifyHandler(notifier)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, documentHandler, chatHandler, healthHandler, notifyHandler)

	httpServer := &http.Server{
		Addr:         cfg.HTTPOptions.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTPOptions.ReadTimeout,
		WriteTimeout: cfg.HTTPOptions.WriteTimeout,
		IdleTimeout:  cfg.HTTPOptions.IdleTimeout,
	}

	logger.Info("Document QA service is ready")
	return &Server{
		httpServer:      httpServer,
		shutdownTimeout: cfg.ShutdownTimeout,
		milvusClose:     milvusClose,
		redisClose:      redisClose,
	}, nil
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if err := pool.CloseGlobalTimeout(10 * time.Second); err != nil {
			logger.Warnw("failed to close worker pools", "error", err.Error())
		}
		if s.milvusClose != nil {
			s.milvusClose()
		}
		if s.redisClose != nil {
			s.redisClose()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	}
}
