package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/nexusrag/backend-go/internal/errors"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/models"
)

// 处理流水线各阶段的进度检查点
const (
	ProgressUploading  = 0
	ProgressSaved      = 10
	ProgressExtracting = 20
	ProgressEmbedding  = 40
	ProgressEmbedded   = 70
	ProgressIndexing   = 85
	ProgressReady      = 100
)

// StatusSnapshot 文档状态快照
type StatusSnapshot struct {
	DocID      string `json:"doc_id"`
	Status     string `json:"status"`
	Progress   int    `json:"progress"`
	PageCount  int    `json:"page_count"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`
}

// stageMessage 根据状态与进度生成面向用户的阶段描述
func stageMessage(doc *models.Document) string {
	switch doc.Status {
	case models.StatusUploading:
		return "Starting upload..."
	case models.StatusProcessing:
		if doc.Progress >= ProgressExtracting {
			return "Extracting text from PDF..."
		}
		if doc.PageCount > 0 {
			return fmt.Sprintf("Upload successful. Processing %d pages...", doc.PageCount)
		}
		return "Upload successful. Processing document..."
	case models.StatusEmbedding:
		if doc.Progress >= ProgressEmbedded {
			return "Embeddings generated. Storing in database..."
		}
		return "Embedding text chunks..."
	case models.StatusIndexed:
		return "Storing vectors in database..."
	case models.StatusReady:
		if doc.ChunkCount > 0 {
			return fmt.Sprintf("Successfully indexed %d text chunks!", doc.ChunkCount)
		}
		return "Document is ready"
	case models.StatusFailed:
		if doc.ErrorMessage != "" {
			return "Processing failed: " + doc.ErrorMessage
		}
		return "Processing failed"
	}
	return ""
}

// StatusTracker 跟踪文档处理状态。
// 状态持久化到数据库,Redis可用时同时写一份快照供状态轮询。
type StatusTracker struct {
	repo  DocumentStore
	redis *redis.Client
	ttl   time.Duration
}

// NewStatusTracker 创建状态跟踪器,redisClient可为nil
func NewStatusTracker(repo DocumentStore, redisClient *redis.Client, ttl time.Duration) *StatusTracker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatusTracker{
		repo:  repo,
		redis: redisClient,
		ttl:   ttl,
	}
}

func statusCacheKey(docID string) string {
	return "nexus:doc_status:" + docID
}

// Set 更新文档状态与进度,拒绝状态机不允许的迁移
func (t *StatusTracker) Set(ctx context.Context, docID, status string, progress int) error {
	doc, err := t.repo.GetByID(docID)
	if err != nil {
		return err
	}
	if doc.Status != status && !models.CanTransition(doc.Status, status) {
		return apperrors.NewValidationError(
			fmt.Sprintf("invalid status transition: %s -> %s", doc.Status, status))
	}

	fields := map[string]interface{}{
		"status":   status,
		"progress": progress,
	}
	if status != models.StatusFailed {
		fields["error_message"] = ""
	}
	if err := t.repo.UpdateFields(docID, fields); err != nil {
		return err
	}
	t.mirror(ctx, docID)
	return nil
}

// Fail 标记文档处理失败,进度归零并记录错误信息
func (t *StatusTracker) Fail(ctx context.Context, docID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := t.repo.UpdateFields(docID, map[string]interface{}{
		"status":        models.StatusFailed,
		"progress":      0,
		"error_message": msg,
	})
	if err != nil {
		return err
	}
	t.mirror(ctx, docID)
	return nil
}

// Get 查询文档状态,优先读Redis快照
func (t *StatusTracker) Get(ctx context.Context, docID string) (*StatusSnapshot, error) {
	if t.redis != nil {
		raw, err := t.redis.Get(ctx, statusCacheKey(docID)).Result()
		if err == nil {
			var snap StatusSnapshot
			if jsonErr := json.Unmarshal([]byte(raw), &snap); jsonErr == nil {
				return &snap, nil
			}
		}
	}

	doc, err := t.repo.GetByID(docID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(doc), nil
}

func snapshotOf(doc *models.Document) *StatusSnapshot {
	return &StatusSnapshot{
		DocID:      doc.ID,
		Status:     doc.Status,
		Progress:   doc.Progress,
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
		Message:    stageMessage(doc),
		Error:      doc.ErrorMessage,
	}
}

// mirror 将最新状态写入Redis,失败只记录日志
func (t *StatusTracker) mirror(ctx context.Context, docID string) {
	if t.redis == nil {
		return
	}
	doc, err := t.repo.GetByID(docID)
	if err != nil {
		return
	}
	data, err := json.Marshal(snapshotOf(doc))
	if err != nil {
		return
	}
	if err := t.redis.Set(ctx, statusCacheKey(docID), data, t.ttl).Err(); err != nil {
		logger.Debug("failed to mirror status to redis",
			zap.String("doc_id", docID), zap.Error(err))
	}
}

// Invalidate 删除Redis中的状态快照
func (t *StatusTracker) Invalidate(ctx context.Context, docID string) {
	if t.redis == nil {
		return
	}
	if err := t.redis.Del(ctx, statusCacheKey(docID)).Err(); err != nil {
		logger.Debug(fmt.Sprintf("failed to invalidate status cache for %s", docID), zap.Error(err))
	}
}
