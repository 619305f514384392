package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage_SaveOpenDelete(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	content := "%PDF-1.4 fake content"

	require.NoError(t, s.Save(ctx, "doc-1.pdf", strings.NewReader(content), int64(len(content))))

	rc, err := s.Open(ctx, "doc-1.pdf")
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, content, string(got))

	require.NoError(t, s.Delete(ctx, "doc-1.pdf"))
	_, err = s.Open(ctx, "doc-1.pdf")
	assert.Error(t, err)
}

func TestLocalStorage_DeleteMissingIsNoop(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, s.Delete(context.Background(), "never-existed.pdf"))
}

func TestLocalStorage_RejectsPathTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	err = s.Save(ctx, "../escape.pdf", strings.NewReader("x"), 1)
	assert.Error(t, err)

	_, err = s.Open(ctx, "/etc/passwd")
	assert.Error(t, err)
}

func TestLocalStorage_OverwriteReplacesContent(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "doc.pdf", strings.NewReader("old"), 3))
	require.NoError(t, s.Save(ctx, "doc.pdf", strings.NewReader("new content"), 11))

	rc, err := s.Open(ctx, "doc.pdf")
	require.NoError(t, err)
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	assert.Equal(t, "new content", string(got))
}
