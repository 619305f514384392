package knowledge

import (
	"strings"
	"unicode"
)

// Page 单页文本,Num从1开始
type Page struct {
	Num  int
	Text string
}

// Chunk 表示分块后的文本结构
type Chunk struct {
	Index   int
	Text    string
	PageNum int
}

// Chunker 文本分块器
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// 句子结束符,分块时优先在这些位置断开
var sentenceBreaks = map[rune]bool{
	'.': true, '!': true, '?': true, '\n': true,
	'。': true, '！': true, '？': true, '；': true,
}

// NewChunker 创建分块器
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 512
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// SplitPages 将多页文本切分为chunk,每个chunk记录其起始位置所在的页码
func (c *Chunker) SplitPages(pages []Page) []Chunk {
	if len(pages) == 0 {
		return nil
	}

	// 拼接全文并记录每页的起始rune偏移
	type pageSpan struct {
		num   int
		start int
	}
	var (
		builder strings.Builder
		spans   []pageSpan
		offset  int
	)
	for _, p := range pages {
		clean := normalizeWhitespace(p.Text)
		if clean == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteRune('\n')
			offset++
		}
		spans = append(spans, pageSpan{num: p.Num, start: offset})
		builder.WriteString(clean)
		offset += len([]rune(clean))
	}

	text := builder.String()
	if text == "" {
		return nil
	}

	pageAt := func(pos int) int {
		page := 1
		for _, s := range spans {
			if pos >= s.start {
				page = s.num
			} else {
				break
			}
		}
		return page
	}

	runes := []rune(text)
	var chunks []Chunk

	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.adjustToSentenceBreak(runes, start, end)
		}

		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, Chunk{
				Index:   len(chunks),
				Text:    chunkText,
				PageNum: pageAt(start),
			})
		}

		if end == len(runes) {
			break
		}
		next := end - c.chunkOverlap
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}

// Split 将单段文本切分为chunk,页码统一为1
func (c *Chunker) Split(text string) []Chunk {
	return c.SplitPages([]Page{{Num: 1, Text: text}})
}

// adjustToSentenceBreak 在目标结束位置前后50字符内寻找句子边界,
// 找不到则保持原位置。
func (c *Chunker) adjustToSentenceBreak(runes []rune, start, end int) int {
	const window = 50

	lo := end - window
	if lo < start+1 {
		lo = start + 1
	}
	hi := end + window
	if hi > len(runes) {
		hi = len(runes)
	}

	// 优先向后找(保持chunk尽量完整),再向前找
	for i := end; i < hi; i++ {
		if sentenceBreaks[runes[i]] {
			return i + 1
		}
	}
	for i := end - 1; i >= lo; i-- {
		if sentenceBreaks[runes[i]] {
			return i + 1
		}
	}
	return end
}

func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) && r != '\n' {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
