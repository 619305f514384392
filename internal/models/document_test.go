package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.0 KB", FormatSize(1024))
	assert.Equal(t, "2.5 MB", FormatSize(int64(2.5*1024*1024)))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusUploading, StatusProcessing))
	assert.True(t, CanTransition(StatusProcessing, StatusEmbedding))
	assert.True(t, CanTransition(StatusEmbedding, StatusIndexed))
	assert.True(t, CanTransition(StatusIndexed, StatusReady))
	assert.True(t, CanTransition(StatusProcessing, StatusReady))
	assert.True(t, CanTransition(StatusProcessing, StatusFailed))
	assert.True(t, CanTransition(StatusFailed, StatusProcessing))

	assert.False(t, CanTransition(StatusReady, StatusProcessing))
	assert.False(t, CanTransition(StatusUploading, StatusReady))
}

func TestIsTerminal(t *testing.T) {
	ready := Document{Status: StatusReady}
	failed := Document{Status: StatusFailed}
	processing := Document{Status: StatusProcessing}

	assert.True(t, ready.IsTerminal())
	assert.True(t, failed.IsTerminal())
	assert.False(t, processing.IsTerminal())
}
