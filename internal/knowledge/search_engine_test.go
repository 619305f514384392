package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder 返回固定向量
type fakeEmbedder struct {
	vector []float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vector) }
func (f *fakeEmbedder) Ready() bool     { return true }

// fakeIndexer 返回预置的全文结果
type fakeIndexer struct {
	results []SearchMatch
	err     error
}

func (f *fakeIndexer) IndexChunks(ctx context.Context, chunks []FulltextChunk) error { return nil }
func (f *fakeIndexer) RemoveDocument(ctx context.Context, docID string) error        { return nil }
func (f *fakeIndexer) Search(ctx context.Context, req FulltextSearchRequest) ([]SearchMatch, error) {
	return f.results, f.err
}
func (f *fakeIndexer) Ready() bool { return true }

func seedStore(t *testing.T) VectorStore {
	t.Helper()
	s := NewMemoryVectorStore()
	err := s.UpsertChunks(context.Background(), []VectorChunk{
		{ID: "d1_chunk_0", DocID: "d1", DocName: "a.pdf", ChunkIndex: 0, PageNum: 1,
			Text: "alpha", Embedding: []float32{1, 0, 0}, IndexedAt: time.Now()},
		{ID: "d1_chunk_1", DocID: "d1", DocName: "a.pdf", ChunkIndex: 1, PageNum: 2,
			Text: "beta", Embedding: []float32{0.8, 0.2, 0}, IndexedAt: time.Now()},
		{ID: "d2_chunk_0", DocID: "d2", DocName: "b.pdf", ChunkIndex: 0, PageNum: 1,
			Text: "gamma", Embedding: []float32{0, 1, 0}, IndexedAt: time.Now()},
	})
	require.NoError(t, err)
	return s
}

func TestSearchEngine_VectorOnly(t *testing.T) {
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, nil)

	matches, err := engine.Search(context.Background(), SearchRequest{Query: "alpha", TopK: 2})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "d1_chunk_0", matches[0].ChunkID)
}

func TestSearchEngine_EmptyQuery(t *testing.T) {
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, nil)

	_, err := engine.Search(context.Background(), SearchRequest{Query: "   "})
	assert.Error(t, err)
}

func TestSearchEngine_ScopedByDocIDs(t *testing.T) {
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, nil)

	matches, err := engine.Search(context.Background(), SearchRequest{
		Query:  "anything",
		TopK:   5,
		DocIDs: []string{"d2"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].DocID)
}

func TestSearchEngine_HybridMergeBoostsOverlap(t *testing.T) {
	indexer := &fakeIndexer{results: []SearchMatch{
		{ChunkID: "d1_chunk_1", DocID: "d1", Text: "beta", Score: 12.0, Highlight: "<mark>beta</mark>"},
	}}
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, indexer)

	matches, err := engine.Search(context.Background(), SearchRequest{Query: "beta", TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	// d1_chunk_1 同时命中向量和全文,加权后应排到首位
	assert.Equal(t, "d1_chunk_1", matches[0].ChunkID)
	assert.Equal(t, "<mark>beta</mark>", matches[0].Highlight)
}

func TestSearchEngine_FulltextFailureFallsBackToVector(t *testing.T) {
	indexer := &fakeIndexer{err: assert.AnError}
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, indexer)

	matches, err := engine.Search(context.Background(), SearchRequest{Query: "alpha", TopK: 2})
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestSearchEngine_SetWeightsNormalizes(t *testing.T) {
	engine := NewSearchEngine(seedStore(t), &fakeEmbedder{vector: []float32{1, 0, 0}}, nil)

	engine.SetWeights(3, 1)
	assert.InDelta(t, 0.75, engine.vectorWeight, 1e-9)
	assert.InDelta(t, 0.25, engine.fulltextWeight, 1e-9)

	// 非法权重保持原值
	engine.SetWeights(0, -1)
	assert.InDelta(t, 0.75, engine.vectorWeight, 1e-9)
}

func TestNormalizeScore(t *testing.T) {
	assert.Equal(t, 0.0, normalizeScore(5, 0))
	assert.Equal(t, 1.0, normalizeScore(10, 10))
	assert.Equal(t, 0.5, normalizeScore(5, 10))
	assert.Equal(t, 1.0, normalizeScore(20, 10))
}
