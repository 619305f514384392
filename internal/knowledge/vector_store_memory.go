package knowledge

import (
	"context"
	"math"
	"sync"
)

// memoryVectorStore 进程内向量存储,用于开发环境和测试。
// 采用余弦相似度全量扫描,不适合大规模数据。
type memoryVectorStore struct {
	mu     sync.RWMutex
	chunks map[string]VectorChunk // key: chunk ID
}

// NewMemoryVectorStore 创建内存向量存储
func NewMemoryVectorStore() VectorStore {
	return &memoryVectorStore{
		chunks: make(map[string]VectorChunk),
	}
}

func (s *memoryVectorStore) UpsertChunks(_ context.Context, chunks []VectorChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		s.chunks[c.ID] = c
	}
	return nil
}

func (s *memoryVectorStore) DeleteDocument(_ context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.chunks {
		if c.DocID == docID {
			delete(s.chunks, id)
		}
	}
	return nil
}

func (s *memoryVectorStore) Search(_ context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	var scope map[string]bool
	if len(req.DocIDs) > 0 {
		scope = make(map[string]bool, len(req.DocIDs))
		for _, id := range req.DocIDs {
			scope[id] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]SearchMatch, 0, len(s.chunks))
	for _, c := range s.chunks {
		if scope != nil && !scope[c.DocID] {
			continue
		}
		score := cosineSimilarity(req.QueryEmbedding, c.Embedding)
		matches = append(matches, SearchMatch{
			ChunkID:    c.ID,
			DocID:      c.DocID,
			DocName:    c.DocName,
			ChunkIndex: c.ChunkIndex,
			PageNum:    c.PageNum,
			Text:       c.Text,
			Score:      score,
		})
	}

	sortMatchesByScore(matches)
	if len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}
	return matches, nil
}

func (s *memoryVectorStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
