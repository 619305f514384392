package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// PageImage 渲染后的文档页图像
type PageImage struct {
	DocID   string
	PageNum int
	DataURL string // data:image/png;base64,...
}

// AnswerGenerator 基于检索上下文生成回答
type AnswerGenerator interface {
	GenerateAnswer(ctx context.Context, query string, matches []SearchMatch, images []PageImage) (string, error)
	Summarize(ctx context.Context, docName string, chunks []string) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) GenerateAnswer(ctx context.Context, query string, matches []SearchMatch, images []PageImage) (string, error) {
	return "", errors.New("answer generator not configured")
}

func (n *NoopGenerator) Summarize(ctx context.Context, docName string, chunks []string) (string, error) {
	return "", errors.New("answer generator not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

const answerSystemPrompt = `You are a helpful assistant that answers questions about documents.
Rules:
1. Answer ONLY based on the provided context and page images.
2. If the context does not contain the answer, say so clearly.
3. Cite the source document and page number when possible.
4. Be concise and accurate.`

// OpenAIGenerator 使用OpenAI兼容的多模态对话模型
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// OpenAIGeneratorOptions 生成器配置
type OpenAIGeneratorOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// NewOpenAIGenerator 创建答案生成器,baseURL非空时指向兼容服务
func NewOpenAIGenerator(opts OpenAIGeneratorOptions) AnswerGenerator {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.3
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
	}
}

// buildContext 拼接检索上下文
func buildContext(matches []SearchMatch) string {
	blocks := make([]string, 0, len(matches))
	for i, m := range matches {
		blocks = append(blocks, fmt.Sprintf("[Source %d: %s, Page %d]\n%s",
			i+1, m.DocName, m.PageNum, m.Text))
	}
	return strings.Join(blocks, "\n\n---\n\n")
}

func (g *OpenAIGenerator) GenerateAnswer(ctx context.Context, query string, matches []SearchMatch, images []PageImage) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", errors.New("query is empty")
	}

	userText := fmt.Sprintf("Context from documents:\n\n%s\n\nQuestion: %s",
		buildContext(matches), query)

	// 文本上下文和页图像一起发给多模态模型
	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: userText,
		},
	}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    img.DataURL,
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: answerSystemPrompt,
			},
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Summarize(ctx context.Context, docName string, chunks []string) (string, error) {
	if len(chunks) == 0 {
		return "", errors.New("no content to summarize")
	}

	prompt := fmt.Sprintf("Summarize the following document excerpts from %q in a few paragraphs. Capture the main topics and key points.\n\n%s",
		docName, strings.Join(chunks, "\n\n"))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
