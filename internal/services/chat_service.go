package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/nexusrag/backend-go/internal/errors"
	"github.com/nexusrag/backend-go/internal/kafka"
	"github.com/nexusrag/backend-go/internal/knowledge"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/models"
)

// 检索无结果时的固定回答
const emptyIndexAnswer = "I couldn't find any relevant information in the uploaded documents. Please make sure you have uploaded documents and try again."

// 摘要使用的最大chunk数
const summarizeChunkLimit = 10

// ChatRequest 问答请求
type ChatRequest struct {
	Query  string   `json:"query" validate:"required,min=1"`
	TopK   int      `json:"top_k" validate:"omitempty,min=1,max=20"`
	DocIDs []string `json:"doc_ids" validate:"omitempty,dive,required"`
}

// Source 回答引用的来源
type Source struct {
	DocID      string  `json:"doc_id"`
	DocName    string  `json:"doc_name"`
	PageNum    int     `json:"page_num"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkText  string  `json:"chunk_text"`
	Score      float64 `json:"similarity_score"`
}

// ChatResponse 问答响应
type ChatResponse struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// ChatService 基于检索增强的问答
type ChatService struct {
	engine    *knowledge.SearchEngine
	generator knowledge.AnswerGenerator
	documents *DocumentService
	chunker   *knowledge.Chunker
	timeout   time.Duration
}

// NewChatService 创建问答服务
func NewChatService(
	engine *knowledge.SearchEngine,
	generator knowledge.AnswerGenerator,
	documents *DocumentService,
	chunker *knowledge.Chunker,
	timeout time.Duration,
) *ChatService {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &ChatService{
		engine:    engine,
		generator: generator,
		documents: documents,
		chunker:   chunker,
		timeout:   timeout,
	}
}

// Chat 执行一次问答:检索→按需渲染引用页→生成回答
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	if req.TopK <= 0 {
		req.TopK = 5
	}
	if req.TopK > 20 {
		req.TopK = 20
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	matches, err := s.engine.Search(ctx, knowledge.SearchRequest{
		Query:  req.Query,
		TopK:   req.TopK,
		DocIDs: req.DocIDs,
	})
	if err != nil {
		observeChatQuery(start, "error")
		return nil, err
	}

	if len(matches) == 0 {
		observeChatQuery(start, "empty")
		return &ChatResponse{
			Query:   req.Query,
			Answer:  emptyIndexAnswer,
			Sources: []Source{},
		}, nil
	}

	images := s.renderCitedPages(ctx, matches)

	answer, err := s.generator.GenerateAnswer(ctx, req.Query, matches, images)
	if err != nil {
		observeChatQuery(start, "error")
		return nil, apperrors.NewExternalError("generator", "failed to generate answer").WithCause(err)
	}

	sources := make([]Source, len(matches))
	for i, m := range matches {
		sources[i] = Source{
			DocID:      m.DocID,
			DocName:    m.DocName,
			PageNum:    m.PageNum,
			ChunkIndex: m.ChunkIndex,
			ChunkText:  m.Text,
			Score:      m.Score,
		}
	}

	for _, docID := range matchedDocs(matches) {
		if err := kafka.PublishDocumentEvent(kafka.EventDocumentQueried, docID, "", "", 0, ""); err != nil {
			logger.Debug("failed to publish query event", zap.Error(err))
		}
	}

	observeChatQuery(start, "success")
	logger.Info("chat query answered",
		zap.Int("matches", len(matches)),
		zap.Int("images", len(images)),
		zap.Duration("elapsed", time.Since(start)))

	return &ChatResponse{Query: req.Query, Answer: answer, Sources: sources}, nil
}

// renderCitedPages 对命中的(文档,页)组合去重后按需渲染。
// 单页渲染失败只跳过,不影响回答。
func (s *ChatService) renderCitedPages(ctx context.Context, matches []knowledge.SearchMatch) []knowledge.PageImage {
	type pageKey struct {
		docID string
		page  int
	}
	seen := make(map[pageKey]bool)
	images := make([]knowledge.PageImage, 0, len(matches))

	for _, m := range matches {
		if m.PageNum < 1 {
			continue
		}
		key := pageKey{docID: m.DocID, page: m.PageNum}
		if seen[key] {
			continue
		}
		seen[key] = true

		dataURL, err := s.documents.RenderPageDataURL(ctx, m.DocID, m.PageNum)
		if err != nil {
			logger.Warn("failed to render cited page",
				zap.String("doc_id", m.DocID),
				zap.Int("page", m.PageNum),
				zap.Error(err))
			continue
		}
		images = append(images, knowledge.PageImage{
			DocID:   m.DocID,
			PageNum: m.PageNum,
			DataURL: dataURL,
		})
	}
	return images
}

func matchedDocs(matches []knowledge.SearchMatch) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		if !seen[m.DocID] {
			seen[m.DocID] = true
			out = append(out, m.DocID)
		}
	}
	return out
}

// Summarize 生成文档摘要,取文档开头的若干chunk作为输入
func (s *ChatService) Summarize(ctx context.Context, docID string) (string, error) {
	doc, err := s.documents.Get(docID)
	if err != nil {
		return "", err
	}
	if doc.Status != models.StatusReady {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("document is not ready (status: %s)", doc.Status))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	chunks, err := s.leadingChunks(ctx, doc)
	if err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return "", apperrors.NewValidationError("document has no extractable text")
	}

	summary, err := s.generator.Summarize(ctx, doc.Name, chunks)
	if err != nil {
		return "", apperrors.NewExternalError("generator", "failed to summarize document").WithCause(err)
	}
	return summary, nil
}

// leadingChunks 重新提取文档文本并返回开头的chunk
func (s *ChatService) leadingChunks(ctx context.Context, doc *models.Document) ([]string, error) {
	pages, err := s.documents.ExtractPages(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.SplitPages(pages)
	limit := summarizeChunkLimit
	if len(chunks) < limit {
		limit = len(chunks)
	}
	texts := make([]string, limit)
	for i := 0; i < limit; i++ {
		texts[i] = chunks[i].Text
	}
	return texts, nil
}

// ListDocuments 列出可用于问答的文档
func (s *ChatService) ListDocuments() ([]models.Document, error) {
	return s.documents.ListReady()
}
