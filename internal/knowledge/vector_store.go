package knowledge

import (
	"context"
	"fmt"
	"time"
)

// ChunkIDFor 生成chunk的存储ID
func ChunkIDFor(docID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", docID, index)
}

// VectorChunk 存储向量信息
type VectorChunk struct {
	ID         string // "{doc_id}_chunk_{n}"
	DocID      string
	DocName    string
	ChunkIndex int
	PageNum    int
	Text       string
	Embedding  []float32
	IndexedAt  time.Time
}

// SearchMatch 检索命中结果
type SearchMatch struct {
	ChunkID    string
	DocID      string
	DocName    string
	ChunkIndex int
	PageNum    int
	Text       string
	Score      float64
	Highlight  string
}

// VectorSearchRequest 向量检索请求
type VectorSearchRequest struct {
	QueryEmbedding []float32
	TopK           int
	DocIDs         []string // 非空时限定检索范围
}

// VectorStore 向量存储抽象
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []VectorChunk) error
	DeleteDocument(ctx context.Context, docID string) error
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error)
	Count(ctx context.Context) (int64, error)
	Ready() bool
}
