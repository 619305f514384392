package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusrag/backend-go/internal/knowledge"
	"github.com/nexusrag/backend-go/internal/models"
	"github.com/nexusrag/backend-go/internal/pdf"
)

// stubGenerator 记录调用参数并返回固定回答
type stubGenerator struct {
	answer     string
	summary    string
	err        error
	lastImages []knowledge.PageImage
	lastQuery  string
}

func (g *stubGenerator) GenerateAnswer(ctx context.Context, query string, matches []knowledge.SearchMatch, images []knowledge.PageImage) (string, error) {
	g.lastQuery = query
	g.lastImages = images
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func (g *stubGenerator) Summarize(ctx context.Context, docName string, chunks []string) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	return g.summary, nil
}

func (g *stubGenerator) Ready() bool { return true }

func newChatFixture(t *testing.T, gen knowledge.AnswerGenerator) (*ChatService, *serviceFixture) {
	t.Helper()

	proc := &fakeProcessor{pages: []pdf.PageText{
		{PageNum: 1, Text: "The quarterly revenue grew by ten percent."},
		{PageNum: 2, Text: "Operating costs stayed flat year over year."},
	}}
	f := newFixture(t, proc, &stubEmbedder{})

	engine := knowledge.NewSearchEngine(f.vectors, &stubEmbedder{}, nil)
	chat := NewChatService(engine, gen, f.svc, knowledge.NewChunker(512, 100), time.Minute)
	return chat, f
}

func uploadAndWait(t *testing.T, f *serviceFixture, name string) *models.Document {
	t.Helper()
	doc, err := f.svc.Upload(context.Background(), name, 100, strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	return waitForTerminal(t, f.store, doc.ID)
}

func TestChatService_EmptyIndexReturnsCannedAnswer(t *testing.T) {
	gen := &stubGenerator{answer: "should not be called"}
	chat, _ := newChatFixture(t, gen)

	resp, err := chat.Chat(context.Background(), ChatRequest{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, emptyIndexAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, gen.lastQuery, "generator must not be invoked on empty retrieval")
}

func TestChatService_AnswerCarriesOrderedSources(t *testing.T) {
	gen := &stubGenerator{answer: "Revenue grew ten percent."}
	chat, f := newChatFixture(t, gen)
	uploadAndWait(t, f, "finance.pdf")

	resp, err := chat.Chat(context.Background(), ChatRequest{Query: "revenue growth", TopK: 3})
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew ten percent.", resp.Answer)
	require.NotEmpty(t, resp.Sources)

	for i := 1; i < len(resp.Sources); i++ {
		assert.GreaterOrEqual(t, resp.Sources[i-1].Score, resp.Sources[i].Score)
	}
	assert.Equal(t, "finance.pdf", resp.Sources[0].DocName)
}

func TestChatService_RendersEachCitedPageOnce(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	chat, f := newChatFixture(t, gen)
	uploadAndWait(t, f, "doc.pdf")

	_, err := chat.Chat(context.Background(), ChatRequest{Query: "costs", TopK: 10})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, img := range gen.lastImages {
		key := img.DocID + ":" + string(rune('0'+img.PageNum))
		assert.False(t, seen[key], "page rendered twice: %s", key)
		seen[key] = true
		assert.True(t, strings.HasPrefix(img.DataURL, "data:image/png;base64,"))
	}
}

func TestChatService_TopKIsClamped(t *testing.T) {
	gen := &stubGenerator{answer: "ok"}
	chat, f := newChatFixture(t, gen)
	uploadAndWait(t, f, "doc.pdf")

	resp, err := chat.Chat(context.Background(), ChatRequest{Query: "anything", TopK: 100})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(resp.Sources), 20)
}

func TestChatService_GeneratorFailureSurfacesError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model overloaded")}
	chat, f := newChatFixture(t, gen)
	uploadAndWait(t, f, "doc.pdf")

	_, err := chat.Chat(context.Background(), ChatRequest{Query: "anything"})
	assert.Error(t, err)
}

func TestChatService_SummarizeRequiresReadyDocument(t *testing.T) {
	gen := &stubGenerator{summary: "A quarterly report."}
	chat, f := newChatFixture(t, gen)
	doc := uploadAndWait(t, f, "doc.pdf")

	summary, err := chat.Summarize(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "A quarterly report.", summary)

	// 处理中的文档不可摘要
	require.NoError(t, f.store.UpdateFields(doc.ID, map[string]interface{}{
		"status": models.StatusEmbedding,
	}))
	_, err = chat.Summarize(context.Background(), doc.ID)
	assert.Error(t, err)
}

func TestChatService_ListDocumentsOnlyReady(t *testing.T) {
	gen := &stubGenerator{}
	chat, f := newChatFixture(t, gen)
	doc := uploadAndWait(t, f, "ready.pdf")

	require.NoError(t, f.store.Create(&models.Document{
		ID: "pending", Name: "pending.pdf", Status: models.StatusProcessing,
	}))

	docs, err := chat.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}
