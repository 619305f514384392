package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nexusrag/backend-go/internal/logger"
)

// SearchRequest 检索请求
type SearchRequest struct {
	Query  string
	TopK   int
	DocIDs []string
}

// SearchEngine 组合向量与全文检索。
// 全文索引未配置时退化为纯向量检索。
type SearchEngine struct {
	vectorStore    VectorStore
	embedder       Embedder
	indexer        FulltextIndexer
	vectorWeight   float64
	fulltextWeight float64
}

// NewSearchEngine 创建检索引擎
func NewSearchEngine(vectorStore VectorStore, embedder Embedder, indexer FulltextIndexer) *SearchEngine {
	return &SearchEngine{
		vectorStore:    vectorStore,
		embedder:       embedder,
		indexer:        indexer,
		vectorWeight:   0.6,
		fulltextWeight: 0.4,
	}
}

// SetWeights 设置混合检索权重,内部归一化
func (e *SearchEngine) SetWeights(vectorWeight, fulltextWeight float64) {
	if vectorWeight > 0 && fulltextWeight > 0 {
		total := vectorWeight + fulltextWeight
		e.vectorWeight = vectorWeight / total
		e.fulltextWeight = fulltextWeight / total
	}
}

func (e *SearchEngine) Search(ctx context.Context, req SearchRequest) ([]SearchMatch, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, errors.New("query cannot be empty")
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	if e.embedder == nil || !e.embedder.Ready() {
		return nil, errors.New("embedding provider not configured")
	}

	embedding, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	vectorResults, err := e.vectorStore.Search(ctx, VectorSearchRequest{
		QueryEmbedding: embedding,
		TopK:           req.TopK * 2,
		DocIDs:         req.DocIDs,
	})
	if err != nil {
		return nil, err
	}

	useFulltext := e.indexer != nil && e.indexer.Ready()
	if !useFulltext {
		if len(vectorResults) > req.TopK {
			vectorResults = vectorResults[:req.TopK]
		}
		return vectorResults, nil
	}

	fullResults, err := e.indexer.Search(ctx, FulltextSearchRequest{
		Query:  req.Query,
		Limit:  req.TopK * 2,
		DocIDs: req.DocIDs,
	})
	if err != nil {
		// 全文检索失败时降级为纯向量检索
		logger.Warn("fulltext search failed, falling back to vector only", zap.Error(err))
		if len(vectorResults) > req.TopK {
			vectorResults = vectorResults[:req.TopK]
		}
		return vectorResults, nil
	}

	results := e.mergeResults(vectorResults, fullResults)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

// mergeResults 加权融合:向量×vectorWeight + 归一化全文×fulltextWeight
func (e *SearchEngine) mergeResults(vectorResults, fullResults []SearchMatch) []SearchMatch {
	var maxFullScore float64
	for _, r := range fullResults {
		if r.Score > maxFullScore {
			maxFullScore = r.Score
		}
	}

	scoreMap := make(map[string]*SearchMatch)

	for _, item := range vectorResults {
		chunk := item
		chunk.Score = chunk.Score * e.vectorWeight
		scoreMap[chunk.ChunkID] = &chunk
	}

	for _, item := range fullResults {
		normalized := normalizeScore(item.Score, maxFullScore)
		if existing, ok := scoreMap[item.ChunkID]; ok {
			existing.Score += normalized * e.fulltextWeight
			if existing.Highlight == "" {
				existing.Highlight = item.Highlight
			}
		} else {
			chunk := item
			chunk.Score = normalized * e.fulltextWeight
			scoreMap[item.ChunkID] = &chunk
		}
	}

	results := make([]SearchMatch, 0, len(scoreMap))
	for _, item := range scoreMap {
		results = append(results, *item)
	}
	sortMatchesByScore(results)
	return results
}

// normalizeScore 归一化BM25得分到0-1范围
func normalizeScore(score, maxScore float64) float64 {
	if maxScore == 0 {
		return 0
	}
	normalized := score / maxScore
	if normalized > 1.0 {
		normalized = 1.0
	}
	return normalized
}

func sortMatchesByScore(matches []SearchMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			return matches[i].ChunkID < matches[j].ChunkID
		}
		return matches[i].Score > matches[j].Score
	})
}
