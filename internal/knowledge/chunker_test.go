package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker(512, 100)

	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("   \n\t  "))
	assert.Nil(t, c.SplitPages(nil))
}

func TestChunker_ShortTextSingleChunk(t *testing.T) {
	c := NewChunker(512, 100)

	chunks := c.Split("A short paragraph that fits in one chunk.")
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].PageNum)
	assert.Equal(t, "A short paragraph that fits in one chunk.", chunks[0].Text)
}

func TestChunker_OverlapCoversWholeText(t *testing.T) {
	c := NewChunker(100, 20)

	// 无句子边界的长文本,验证覆盖完整且索引连续
	text := strings.Repeat("abcde ", 100)
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotEmpty(t, ch.Text)
		assert.LessOrEqual(t, len([]rune(ch.Text)), 100+50)
	}

	// 末尾内容必须出现在最后一个chunk中
	last := chunks[len(chunks)-1].Text
	assert.True(t, strings.HasSuffix(strings.TrimSpace(text), last[len(last)-5:]))
}

func TestChunker_PrefersSentenceBoundary(t *testing.T) {
	c := NewChunker(50, 10)

	// 句号在第45个字符附近,chunk应在句号处断开而不是硬切
	text := "This is the first sentence ending right here. And this is the second sentence that continues for a while longer."
	chunks := c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."),
		"first chunk should end at a sentence break, got: %q", chunks[0].Text)
}

func TestChunker_PageAttribution(t *testing.T) {
	c := NewChunker(100, 20)

	pages := []Page{
		{Num: 1, Text: strings.Repeat("page one text. ", 10)},
		{Num: 2, Text: strings.Repeat("page two text. ", 10)},
		{Num: 3, Text: strings.Repeat("page three text. ", 10)},
	}
	chunks := c.SplitPages(pages)
	require.NotEmpty(t, chunks)

	// 首chunk属于第1页,末chunk属于第3页,页码单调不减
	assert.Equal(t, 1, chunks[0].PageNum)
	assert.Equal(t, 3, chunks[len(chunks)-1].PageNum)
	for i := 1; i < len(chunks); i++ {
		assert.GreaterOrEqual(t, chunks[i].PageNum, chunks[i-1].PageNum)
	}
}

func TestChunker_SkipsEmptyPages(t *testing.T) {
	c := NewChunker(512, 100)

	pages := []Page{
		{Num: 1, Text: "   "},
		{Num: 2, Text: "actual content on page two"},
	}
	chunks := c.SplitPages(pages)
	require.Len(t, chunks, 1)
	assert.Equal(t, 2, chunks[0].PageNum)
}

func TestChunker_DefaultsOnInvalidConfig(t *testing.T) {
	c := NewChunker(0, -5)
	assert.Equal(t, 512, c.chunkSize)
	assert.Equal(t, 0, c.chunkOverlap)

	c = NewChunker(100, 200)
	assert.Equal(t, 25, c.chunkOverlap)
}
