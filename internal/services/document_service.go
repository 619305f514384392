package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/nexusrag/backend-go/internal/errors"
	"github.com/nexusrag/backend-go/internal/kafka"
	"github.com/nexusrag/backend-go/internal/knowledge"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/models"
	"github.com/nexusrag/backend-go/internal/pdf"
	"github.com/nexusrag/backend-go/internal/storage"
)

// 每批送入Embedding API的chunk数
const embedBatchSize = 100

// DocumentStore 文档元数据存取
type DocumentStore interface {
	Create(doc *models.Document) error
	GetByID(id string) (*models.Document, error)
	List() ([]models.Document, error)
	ListByStatus(status string) ([]models.Document, error)
	UpdateFields(id string, fields map[string]interface{}) error
	Delete(id string) error
}

// PDFProcessor PDF解析与渲染能力
type PDFProcessor interface {
	PageCount(r io.Reader) (int, error)
	ExtractPages(r io.Reader) ([]pdf.PageText, error)
	RenderPagePNG(r io.Reader, pageNum int) ([]byte, error)
}

// DocumentServiceOptions 文档服务配置
type DocumentServiceOptions struct {
	MaxSizeBytes int64
	MaxParallel  int
	PageCacheTTL time.Duration
}

// DocumentService 文档上传、处理与管理
type DocumentService struct {
	repo        DocumentStore
	store       storage.ObjectStorage
	processor   PDFProcessor
	chunker     *knowledge.Chunker
	embedder    knowledge.Embedder
	vectorStore knowledge.VectorStore
	indexer     knowledge.FulltextIndexer
	tracker     *StatusTracker
	redis       *redis.Client

	maxSizeBytes int64
	pageCacheTTL time.Duration
	// 限制并发处理的文档数
	sem chan struct{}
}

// NewDocumentService 创建文档服务
func NewDocumentService(
	repo DocumentStore,
	store storage.ObjectStorage,
	processor PDFProcessor,
	chunker *knowledge.Chunker,
	embedder knowledge.Embedder,
	vectorStore knowledge.VectorStore,
	indexer knowledge.FulltextIndexer,
	tracker *StatusTracker,
	redisClient *redis.Client,
	opts DocumentServiceOptions,
) *DocumentService {
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = 50 << 20
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 4
	}
	if opts.PageCacheTTL <= 0 {
		opts.PageCacheTTL = 10 * time.Minute
	}
	return &DocumentService{
		repo:         repo,
		store:        store,
		processor:    processor,
		chunker:      chunker,
		embedder:     embedder,
		vectorStore:  vectorStore,
		indexer:      indexer,
		tracker:      tracker,
		redis:        redisClient,
		maxSizeBytes: opts.MaxSizeBytes,
		pageCacheTTL: opts.PageCacheTTL,
		sem:          make(chan struct{}, opts.MaxParallel),
	}
}

// Upload 接收上传的PDF,保存文件并异步启动处理流水线
func (s *DocumentService) Upload(ctx context.Context, filename string, size int64, reader io.Reader) (*models.Document, error) {
	if strings.ToLower(filepath.Ext(filename)) != ".pdf" {
		return nil, &apperrors.AppError{
			Code:     apperrors.ErrCodeInvalidFileFormat,
			Message:  "only PDF files are supported",
			Type:     apperrors.ErrorTypeValidation,
			HTTPCode: 400,
		}
	}
	if size <= 0 {
		return nil, apperrors.NewValidationError("file is empty")
	}
	if size > s.maxSizeBytes {
		return nil, &apperrors.AppError{
			Code:     apperrors.ErrCodeFileTooLarge,
			Message:  fmt.Sprintf("file exceeds the %s limit", models.FormatSize(s.maxSizeBytes)),
			Type:     apperrors.ErrorTypeValidation,
			HTTPCode: 400,
		}
	}

	docID := uuid.New().String()
	storageKey := docID + ".pdf"

	doc := &models.Document{
		ID:         docID,
		Name:       filename,
		StorageKey: storageKey,
		SizeBytes:  size,
		Status:     models.StatusUploading,
		Progress:   ProgressUploading,
	}
	if err := s.repo.Create(doc); err != nil {
		return nil, err
	}

	if err := s.store.Save(ctx, storageKey, reader, size); err != nil {
		_ = s.tracker.Fail(ctx, docID, err)
		return nil, apperrors.NewSystemError(apperrors.ErrCodeUploadFailed, "failed to store uploaded file").WithCause(err)
	}

	if err := s.tracker.Set(ctx, docID, models.StatusProcessing, ProgressSaved); err != nil {
		return nil, err
	}
	doc.Status = models.StatusProcessing
	doc.Progress = ProgressSaved

	documentsUploadedTotal.Inc()
	if err := kafka.PublishDocumentEvent(kafka.EventDocumentUploaded, docID, filename, models.StatusProcessing, 0, ""); err != nil {
		logger.Warn("failed to publish upload event", zap.String("doc_id", docID), zap.Error(err))
	}

	go s.process(docID)

	logger.Info("document upload accepted",
		zap.String("doc_id", docID),
		zap.String("name", filename),
		zap.Int64("size", size))
	return doc, nil
}

// process 后台处理流水线:提取文本→分块→向量化→写索引
func (s *DocumentService) process(docID string) {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()

	start := time.Now()
	ctx := context.Background()

	if err := s.runPipeline(ctx, docID); err != nil {
		logger.Error("document processing failed",
			zap.String("doc_id", docID), zap.Error(err))
		_ = s.tracker.Fail(ctx, docID, err)
		observeProcessing(start, models.StatusFailed)
		doc, repoErr := s.repo.GetByID(docID)
		name := ""
		if repoErr == nil {
			name = doc.Name
		}
		_ = kafka.PublishDocumentEvent(kafka.EventDocumentFailed, docID, name, models.StatusFailed, 0, err.Error())
		return
	}
	observeProcessing(start, models.StatusReady)
}

func (s *DocumentService) runPipeline(ctx context.Context, docID string) error {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return err
	}

	// 提取文本
	if err := s.tracker.Set(ctx, docID, models.StatusProcessing, ProgressExtracting); err != nil {
		return err
	}
	file, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	pageCount, err := s.processor.PageCount(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to read page count: %w", err)
	}
	// 页数在提取阶段就写回,状态轮询在处理期间即可看到总页数
	if err := s.repo.UpdateFields(docID, map[string]interface{}{"page_count": pageCount}); err != nil {
		return err
	}

	file, err = s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return fmt.Errorf("failed to open stored file: %w", err)
	}
	pageTexts, err := s.processor.ExtractPages(file)
	file.Close()
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}

	pages := make([]knowledge.Page, len(pageTexts))
	for i, p := range pageTexts {
		pages[i] = knowledge.Page{Num: p.PageNum, Text: p.Text}
	}
	chunks := s.chunker.SplitPages(pages)

	// 无可提取文本的文档直接标记就绪
	if len(chunks) == 0 {
		logger.Warn("document has no extractable text", zap.String("doc_id", docID))
		if err := s.repo.UpdateFields(docID, map[string]interface{}{
			"page_count":  pageCount,
			"chunk_count": 0,
		}); err != nil {
			return err
		}
		if err := s.tracker.Set(ctx, docID, models.StatusReady, ProgressReady); err != nil {
			return err
		}
		return kafka.PublishDocumentEvent(kafka.EventDocumentReady, docID, doc.Name, models.StatusReady, pageCount, "")
	}

	// 向量化
	if err := s.tracker.Set(ctx, docID, models.StatusEmbedding, ProgressEmbedding); err != nil {
		return err
	}

	now := time.Now()
	vectorChunks := make([]knowledge.VectorChunk, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding failed: %w", err)
		}

		for i, c := range batch {
			vectorChunks[start+i] = knowledge.VectorChunk{
				ID:         knowledge.ChunkIDFor(docID, c.Index),
				DocID:      docID,
				DocName:    doc.Name,
				ChunkIndex: c.Index,
				PageNum:    c.PageNum,
				Text:       c.Text,
				Embedding:  embeddings[i],
				IndexedAt:  now,
			}
		}
	}

	if err := s.tracker.Set(ctx, docID, models.StatusEmbedding, ProgressEmbedded); err != nil {
		return err
	}

	// 写入向量索引
	if err := s.tracker.Set(ctx, docID, models.StatusIndexed, ProgressIndexing); err != nil {
		return err
	}
	if err := s.vectorStore.UpsertChunks(ctx, vectorChunks); err != nil {
		return fmt.Errorf("vector index failed: %w", err)
	}
	chunksIndexedTotal.Add(float64(len(vectorChunks)))

	// 全文索引是尽力而为,失败不使文档处理失败
	if s.indexer != nil && s.indexer.Ready() {
		fulltextChunks := make([]knowledge.FulltextChunk, len(chunks))
		for i, c := range chunks {
			fulltextChunks[i] = knowledge.FulltextChunk{
				ChunkID:    knowledge.ChunkIDFor(docID, c.Index),
				DocID:      docID,
				DocName:    doc.Name,
				ChunkIndex: c.Index,
				PageNum:    c.PageNum,
				Content:    c.Text,
				CreatedAt:  now,
			}
		}
		if err := s.indexer.IndexChunks(ctx, fulltextChunks); err != nil {
			logger.Warn("fulltext indexing failed",
				zap.String("doc_id", docID), zap.Error(err))
		}
	}

	if err := s.repo.UpdateFields(docID, map[string]interface{}{
		"page_count":  pageCount,
		"chunk_count": len(chunks),
	}); err != nil {
		return err
	}
	if err := s.tracker.Set(ctx, docID, models.StatusReady, ProgressReady); err != nil {
		return err
	}

	logger.Info("document ready",
		zap.String("doc_id", docID),
		zap.Int("pages", pageCount),
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(now)))

	return kafka.PublishDocumentEvent(kafka.EventDocumentReady, docID, doc.Name, models.StatusReady, pageCount, "")
}

// List 列出所有文档
func (s *DocumentService) List() ([]models.Document, error) {
	return s.repo.List()
}

// ListReady 列出处理完成可检索的文档
func (s *DocumentService) ListReady() ([]models.Document, error) {
	return s.repo.ListByStatus(models.StatusReady)
}

// Get 获取单个文档
func (s *DocumentService) Get(docID string) (*models.Document, error) {
	return s.repo.GetByID(docID)
}

// Status 查询文档处理状态
func (s *DocumentService) Status(ctx context.Context, docID string) (*StatusSnapshot, error) {
	return s.tracker.Get(ctx, docID)
}

// Delete 删除文档。顺序:向量索引→全文索引→存储文件→数据库记录,
// 前面步骤失败时中止,避免出现无法再清理的孤儿向量。
func (s *DocumentService) Delete(ctx context.Context, docID string) error {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return err
	}

	if err := s.vectorStore.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if s.indexer != nil && s.indexer.Ready() {
		if err := s.indexer.RemoveDocument(ctx, docID); err != nil {
			logger.Warn("failed to remove fulltext entries",
				zap.String("doc_id", docID), zap.Error(err))
		}
	}
	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		return fmt.Errorf("failed to delete stored file: %w", err)
	}
	if err := s.repo.Delete(docID); err != nil {
		return err
	}

	s.tracker.Invalidate(ctx, docID)
	s.invalidatePageCache(ctx, docID, doc.PageCount)

	if err := kafka.PublishDocumentEvent(kafka.EventDocumentDeleted, docID, doc.Name, "", 0, ""); err != nil {
		logger.Warn("failed to publish delete event", zap.String("doc_id", docID), zap.Error(err))
	}

	logger.Info("document deleted", zap.String("doc_id", docID), zap.String("name", doc.Name))
	return nil
}

// ExtractPages 重新从存储的PDF中提取逐页文本
func (s *DocumentService) ExtractPages(ctx context.Context, docID string) ([]knowledge.Page, error) {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	file, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer file.Close()

	pageTexts, err := s.processor.ExtractPages(file)
	if err != nil {
		return nil, err
	}
	pages := make([]knowledge.Page, len(pageTexts))
	for i, p := range pageTexts {
		pages[i] = knowledge.Page{Num: p.PageNum, Text: p.Text}
	}
	return pages, nil
}

func pageCacheKey(docID string, pageNum int) string {
	return fmt.Sprintf("nexus:page_png:%s:%d", docID, pageNum)
}

// RenderPage 按需渲染文档页为PNG,Redis可用时缓存渲染结果
func (s *DocumentService) RenderPage(ctx context.Context, docID string, pageNum int) ([]byte, error) {
	doc, err := s.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	// PageCount为0说明提取阶段尚未完成(或失败),此时页数未知,一律视为页不存在
	if pageNum < 1 || doc.PageCount == 0 || pageNum > doc.PageCount {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("page %d", pageNum))
	}

	if s.redis != nil {
		cached, err := s.redis.Get(ctx, pageCacheKey(docID, pageNum)).Result()
		if err == nil {
			if data, decErr := base64.StdEncoding.DecodeString(cached); decErr == nil {
				return data, nil
			}
		}
	}

	file, err := s.store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file: %w", err)
	}
	defer file.Close()

	data, err := s.processor.RenderPagePNG(file, pageNum)
	if err != nil {
		return nil, err
	}
	pagesRenderedTotal.Inc()

	if s.redis != nil {
		encoded := base64.StdEncoding.EncodeToString(data)
		if err := s.redis.Set(ctx, pageCacheKey(docID, pageNum), encoded, s.pageCacheTTL).Err(); err != nil {
			logger.Debug("failed to cache rendered page", zap.Error(err))
		}
	}
	return data, nil
}

// RenderPageDataURL 渲染文档页并编码为data URL
func (s *DocumentService) RenderPageDataURL(ctx context.Context, docID string, pageNum int) (string, error) {
	data, err := s.RenderPage(ctx, docID, pageNum)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (s *DocumentService) invalidatePageCache(ctx context.Context, docID string, pageCount int) {
	if s.redis == nil || pageCount <= 0 {
		return
	}
	keys := make([]string, 0, pageCount)
	for i := 1; i <= pageCount; i++ {
		keys = append(keys, pageCacheKey(docID, i))
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		logger.Debug("failed to invalidate page cache", zap.Error(err))
	}
}
