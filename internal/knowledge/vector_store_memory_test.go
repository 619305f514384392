package knowledge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeChunk(docID string, index int, page int, embedding []float32) VectorChunk {
	return VectorChunk{
		ID:         ChunkIDFor(docID, index),
		DocID:      docID,
		DocName:    docID + ".pdf",
		ChunkIndex: index,
		PageNum:    page,
		Text:       "chunk text",
		Embedding:  embedding,
		IndexedAt:  time.Now(),
	}
}

func TestMemoryVectorStore_SearchRanksByCosine(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []VectorChunk{
		makeChunk("doc-a", 0, 1, []float32{1, 0, 0}),
		makeChunk("doc-a", 1, 2, []float32{0.9, 0.1, 0}),
		makeChunk("doc-b", 0, 1, []float32{0, 1, 0}),
	}))

	matches, err := s.Search(ctx, VectorSearchRequest{
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           2,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "doc-a_chunk_0", matches[0].ChunkID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestMemoryVectorStore_SearchScopedToDocIDs(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []VectorChunk{
		makeChunk("doc-a", 0, 1, []float32{1, 0, 0}),
		makeChunk("doc-b", 0, 1, []float32{1, 0, 0}),
	}))

	matches, err := s.Search(ctx, VectorSearchRequest{
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           10,
		DocIDs:         []string{"doc-b"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "doc-b", matches[0].DocID)
}

func TestMemoryVectorStore_UpsertIsIdempotent(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	chunk := makeChunk("doc-a", 0, 1, []float32{1, 0, 0})
	require.NoError(t, s.UpsertChunks(ctx, []VectorChunk{chunk}))
	require.NoError(t, s.UpsertChunks(ctx, []VectorChunk{chunk}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryVectorStore_DeleteDocument(t *testing.T) {
	s := NewMemoryVectorStore()
	ctx := context.Background()

	require.NoError(t, s.UpsertChunks(ctx, []VectorChunk{
		makeChunk("doc-a", 0, 1, []float32{1, 0, 0}),
		makeChunk("doc-a", 1, 1, []float32{0, 1, 0}),
		makeChunk("doc-b", 0, 1, []float32{0, 0, 1}),
	}))

	require.NoError(t, s.DeleteDocument(ctx, "doc-a"))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	matches, err := s.Search(ctx, VectorSearchRequest{
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           10,
	})
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "doc-a", m.DocID)
	}
}

func TestMemoryVectorStore_EmptyQueryReturnsNil(t *testing.T) {
	s := NewMemoryVectorStore()

	matches, err := s.Search(context.Background(), VectorSearchRequest{TopK: 5})
	require.NoError(t, err)
	assert.Nil(t, matches)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{0, 0}))
}
