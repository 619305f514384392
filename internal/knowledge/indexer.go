package knowledge

import (
	"context"
	"time"
)

// FulltextChunk 全文索引的chunk文档
type FulltextChunk struct {
	ChunkID    string
	DocID      string
	DocName    string
	ChunkIndex int
	PageNum    int
	Content    string
	CreatedAt  time.Time
}

// FulltextSearchRequest 全文检索请求
type FulltextSearchRequest struct {
	Query  string
	Limit  int
	DocIDs []string
}

// FulltextIndexer 全文索引抽象
type FulltextIndexer interface {
	IndexChunks(ctx context.Context, chunks []FulltextChunk) error
	RemoveDocument(ctx context.Context, docID string) error
	Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

// NoopFulltextIndexer 默认占位实现
type NoopFulltextIndexer struct{}

func (n *NoopFulltextIndexer) IndexChunks(ctx context.Context, chunks []FulltextChunk) error {
	return nil
}

func (n *NoopFulltextIndexer) RemoveDocument(ctx context.Context, docID string) error {
	return nil
}

func (n *NoopFulltextIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	return nil, nil
}

func (n *NoopFulltextIndexer) Ready() bool {
	return false
}
