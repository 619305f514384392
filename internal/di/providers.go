package di

import (
	"fmt"
	"time"

	"github.com/nexusrag/backend-go/internal/config"
	"github.com/nexusrag/backend-go/internal/database"
	"github.com/nexusrag/backend-go/internal/knowledge"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/pdf"
	"github.com/nexusrag/backend-go/internal/repository"
	"github.com/nexusrag/backend-go/internal/services"
	"github.com/nexusrag/backend-go/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegisterProviders 注册所有服务的Provider
func RegisterProviders(container *dig.Container) error {
	// 配置
	if err := container.Provide(func() *config.Config {
		return config.AppConfig
	}); err != nil {
		return fmt.Errorf("failed to provide config: %w", err)
	}

	// 数据库
	if err := container.Provide(func(cfg *config.Config) (*gorm.DB, error) {
		db, err := database.NewPostgresDB(&cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := database.AutoMigrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}); err != nil {
		return fmt.Errorf("failed to provide database: %w", err)
	}

	// Redis（可选,关闭时为nil,下游全部做nil判断）
	if err := container.Provide(func(cfg *config.Config) *redis.Client {
		return database.NewRedisClient(&cfg.Redis)
	}); err != nil {
		return fmt.Errorf("failed to provide redis: %w", err)
	}

	// 对象存储
	if err := container.Provide(func(cfg *config.Config) (storage.ObjectStorage, error) {
		switch cfg.Storage.Provider {
		case "minio":
			return storage.NewMinioStorage(&cfg.Storage)
		default:
			return storage.NewLocalStorage(cfg.Storage.BasePath)
		}
	}); err != nil {
		return fmt.Errorf("failed to provide object storage: %w", err)
	}

	// PDF处理器
	if err := container.Provide(func(cfg *config.Config) *pdf.Processor {
		return pdf.NewProcessor(cfg.Documents.RenderDPI)
	}); err != nil {
		return fmt.Errorf("failed to provide pdf processor: %w", err)
	}

	// 分块器
	if err := container.Provide(func(cfg *config.Config) *knowledge.Chunker {
		return knowledge.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	}); err != nil {
		return fmt.Errorf("failed to provide chunker: %w", err)
	}

	// 嵌入服务
	if err := container.Provide(func(cfg *config.Config) knowledge.Embedder {
		return knowledge.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.BaseURL, cfg.Embedding.Model)
	}); err != nil {
		return fmt.Errorf("failed to provide embedder: %w", err)
	}

	// 向量存储
	if err := container.Provide(func(cfg *config.Config) (knowledge.VectorStore, error) {
		switch cfg.VectorStore.Provider {
		case "milvus":
			return knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
				Address:    cfg.VectorStore.Milvus.Address,
				Username:   cfg.VectorStore.Milvus.Username,
				Password:   cfg.VectorStore.Milvus.Password,
				Collection: cfg.VectorStore.Milvus.Collection,
				VectorSize: cfg.VectorStore.Milvus.VectorSize,
				Distance:   cfg.VectorStore.Milvus.Distance,
				Database:   cfg.VectorStore.Milvus.Database,
				UseTLS:     cfg.VectorStore.Milvus.TLS,
			})
		default:
			return knowledge.NewMemoryVectorStore(), nil
		}
	}); err != nil {
		return fmt.Errorf("failed to provide vector store: %w", err)
	}

	// 全文索引（未启用时使用Noop实现,检索退化为纯向量）
	if err := container.Provide(func(cfg *config.Config) knowledge.FulltextIndexer {
		if !cfg.Fulltext.Enabled {
			return &knowledge.NoopFulltextIndexer{}
		}
		indexer, err := knowledge.NewElasticsearchIndexer(
			cfg.Fulltext.Elasticsearch.Addresses,
			cfg.Fulltext.Elasticsearch.Username,
			cfg.Fulltext.Elasticsearch.Password,
			cfg.Fulltext.Elasticsearch.APIKey,
			cfg.Fulltext.Elasticsearch.IndexPrefix,
		)
		if err != nil {
			logger.Warn("Failed to initialize Elasticsearch indexer, falling back to vector-only search", zap.Error(err))
			return &knowledge.NoopFulltextIndexer{}
		}
		return indexer
	}); err != nil {
		return fmt.Errorf("failed to provide fulltext indexer: %w", err)
	}

	// 答案生成器
	if err := container.Provide(func(cfg *config.Config) knowledge.AnswerGenerator {
		return knowledge.NewOpenAIGenerator(knowledge.OpenAIGeneratorOptions{
			APIKey:      cfg.Generator.APIKey,
			BaseURL:     cfg.Generator.BaseURL,
			Model:       cfg.Generator.Model,
			MaxTokens:   cfg.Generator.MaxTokens,
			Temperature: cfg.Generator.Temperature,
		})
	}); err != nil {
		return fmt.Errorf("failed to provide answer generator: %w", err)
	}

	// Repository
	if err := container.Provide(repository.NewDocumentRepository); err != nil {
		return fmt.Errorf("failed to provide document repository: %w", err)
	}
	if err := container.Provide(func(repo *repository.DocumentRepository) services.DocumentStore {
		return repo
	}); err != nil {
		return fmt.Errorf("failed to provide document store: %w", err)
	}

	// 状态跟踪器
	if err := container.Provide(func(repo services.DocumentStore, redisClient *redis.Client, cfg *config.Config) *services.StatusTracker {
		return services.NewStatusTracker(repo, redisClient, time.Duration(cfg.Redis.TTL)*time.Second)
	}); err != nil {
		return fmt.Errorf("failed to provide status tracker: %w", err)
	}

	// 文档服务
	if err := container.Provide(func(
		repo services.DocumentStore,
		store storage.ObjectStorage,
		processor *pdf.Processor,
		chunker *knowledge.Chunker,
		embedder knowledge.Embedder,
		vectorStore knowledge.VectorStore,
		indexer knowledge.FulltextIndexer,
		tracker *services.StatusTracker,
		redisClient *redis.Client,
		cfg *config.Config,
	) *services.DocumentService {
		return services.NewDocumentService(repo, store, processor, chunker, embedder, vectorStore, indexer, tracker, redisClient, services.DocumentServiceOptions{
			MaxSizeBytes: int64(cfg.Documents.MaxSizeMB) << 20,
			MaxParallel:  cfg.Documents.MaxParallel,
			PageCacheTTL: time.Duration(cfg.Redis.TTL) * time.Second,
		})
	}); err != nil {
		return fmt.Errorf("failed to provide document service: %w", err)
	}

	// 检索引擎
	if err := container.Provide(func(
		vectorStore knowledge.VectorStore,
		embedder knowledge.Embedder,
		indexer knowledge.FulltextIndexer,
		cfg *config.Config,
	) *knowledge.SearchEngine {
		engine := knowledge.NewSearchEngine(vectorStore, embedder, indexer)
		engine.SetWeights(cfg.Fulltext.VectorWeight, cfg.Fulltext.FulltextWeight)
		return engine
	}); err != nil {
		return fmt.Errorf("failed to provide search engine: %w", err)
	}

	// 对话服务
	if err := container.Provide(func(
		engine *knowledge.SearchEngine,
		generator knowledge.AnswerGenerator,
		documents *services.DocumentService,
		chunker *knowledge.Chunker,
		cfg *config.Config,
	) *services.ChatService {
		return services.NewChatService(engine, generator, documents, chunker, time.Duration(cfg.Generator.TimeoutSeconds)*time.Second)
	}); err != nil {
		return fmt.Errorf("failed to provide chat service: %w", err)
	}

	return nil
}
