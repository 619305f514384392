package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusrag/backend-go/internal/models"
)

func seedTracker(t *testing.T) (*StatusTracker, *memStore) {
	t.Helper()
	store := newMemStore()
	require.NoError(t, store.Create(&models.Document{
		ID:     "doc-1",
		Name:   "a.pdf",
		Status: models.StatusUploading,
	}))
	return NewStatusTracker(store, nil, time.Minute), store
}

func TestStatusTracker_SetUpdatesStatusAndProgress(t *testing.T) {
	tracker, store := seedTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressSaved))
	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusEmbedding, ProgressEmbedding))

	doc, err := store.GetByID("doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusEmbedding, doc.Status)
	assert.Equal(t, ProgressEmbedding, doc.Progress)
}

func TestStatusTracker_RejectsInvalidTransition(t *testing.T) {
	tracker, store := seedTracker(t)
	ctx := context.Background()

	// uploading不能直接到ready
	assert.Error(t, tracker.Set(ctx, "doc-1", models.StatusReady, ProgressReady))

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressSaved))
	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusReady, ProgressReady))

	// ready是终态
	assert.Error(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressSaved))

	doc, err := store.GetByID("doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, doc.Status)
}

func TestStatusTracker_FailRecordsErrorAndZeroesProgress(t *testing.T) {
	tracker, store := seedTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressSaved))
	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusEmbedding, ProgressEmbedded))
	require.NoError(t, tracker.Fail(ctx, "doc-1", errors.New("milvus unreachable")))

	doc, err := store.GetByID("doc-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, doc.Status)
	assert.Equal(t, 0, doc.Progress)
	assert.Equal(t, "milvus unreachable", doc.ErrorMessage)
}

func TestStatusTracker_SetClearsPreviousError(t *testing.T) {
	tracker, store := seedTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Fail(ctx, "doc-1", errors.New("boom")))
	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressExtracting))

	doc, err := store.GetByID("doc-1")
	require.NoError(t, err)
	assert.Empty(t, doc.ErrorMessage)
}

func TestStatusTracker_SnapshotCarriesStageMessage(t *testing.T) {
	tracker, _ := seedTracker(t)
	ctx := context.Background()

	snap, err := tracker.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Starting upload...", snap.Message)

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressExtracting))
	snap, err = tracker.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Extracting text from PDF...", snap.Message)

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusEmbedding, ProgressEmbedding))
	snap, err = tracker.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Embedding text chunks...", snap.Message)

	require.NoError(t, tracker.Fail(ctx, "doc-1", errors.New("boom")))
	snap, err = tracker.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Processing failed: boom", snap.Message)

	// 轮询方收到的JSON必须带message字段
	payload, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"message"`)
}

func TestStatusTracker_GetFallsBackToStore(t *testing.T) {
	tracker, _ := seedTracker(t)
	ctx := context.Background()

	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusProcessing, ProgressSaved))
	require.NoError(t, tracker.Set(ctx, "doc-1", models.StatusReady, ProgressReady))

	snap, err := tracker.Get(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "doc-1", snap.DocID)
	assert.Equal(t, models.StatusReady, snap.Status)
	assert.Equal(t, ProgressReady, snap.Progress)
	assert.Equal(t, "Document is ready", snap.Message)
}

func TestStatusTracker_GetUnknownDocument(t *testing.T) {
	tracker, _ := seedTracker(t)

	_, err := tracker.Get(context.Background(), "missing")
	assert.Error(t, err)
}
