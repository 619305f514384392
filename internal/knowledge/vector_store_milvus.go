package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/nexusrag/backend-go/internal/logger"
)

// 每批写入Milvus的最大chunk数
const milvusInsertBatch = 100

// chunk_text字段的最大存储长度
const chunkTextMaxLen = 1000

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	VectorSize int
	Distance   string
	Database   string
	UseTLS     bool
	Timeout    time.Duration
}

type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	distance     string

	// ensureCollection可能被多个流水线goroutine并发调用
	mu      sync.Mutex
	ensured bool
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "nexus_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Distance == "" {
		opts.Distance = "COSINE"
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	milvusClient, err := client.NewClient(
		context.Background(),
		client.Config{
			Address:       opts.Address,
			DBName:        opts.Database,
			Username:      opts.Username,
			Password:      opts.Password,
			EnableTLSAuth: opts.UseTLS,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		distance:     formatMilvusDistance(opts.Distance),
	}, nil
}

func formatMilvusDistance(value string) string {
	switch strings.ToUpper(value) {
	case "DOT", "IP", "INNER_PRODUCT":
		return "IP"
	case "L2", "EUCLIDEAN":
		return "L2"
	default:
		return "COSINE"
	}
}

func (s *milvusVectorStore) metricType() entity.MetricType {
	switch s.distance {
	case "IP":
		return entity.IP
	case "L2":
		return entity.L2
	default:
		return entity.COSINE
	}
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "Document chunk vectors",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					AutoID:     false,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "doc_id",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:       "doc_name",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "512"},
				},
				{
					Name:     "chunk_index",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "page_num",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:       "chunk_text",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "4096"},
				},
				{
					Name:       "indexed_at",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "64"},
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", s.vectorSize),
					},
				},
			},
		}

		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		// 创建索引,HNSW失败时降级为IVF_FLAT
		var index entity.Index
		var indexErr error
		index, indexErr = entity.NewIndexHNSW(s.metricType(), 8, 64)
		if indexErr != nil {
			index, indexErr = entity.NewIndexIvfFlat(s.metricType(), 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
			logger.Warn("failed to create milvus index",
				zap.String("collection", s.collection), zap.Error(err))
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	s.ensured = true
	return nil
}

func (s *milvusVectorStore) padEmbedding(embedding []float32) []float32 {
	if len(embedding) == s.vectorSize {
		return embedding
	}
	// 维度不一致时截断或补零
	padded := make([]float32, s.vectorSize)
	copy(padded, embedding)
	return padded
}

func (s *milvusVectorStore) UpsertChunks(ctx context.Context, chunks []VectorChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += milvusInsertBatch {
		end := start + milvusInsertBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		ids := make([]string, len(batch))
		docIDs := make([]string, len(batch))
		docNames := make([]string, len(batch))
		chunkIndexes := make([]int64, len(batch))
		pageNums := make([]int64, len(batch))
		texts := make([]string, len(batch))
		indexedAts := make([]string, len(batch))
		vectors := make([][]float32, len(batch))

		for i, c := range batch {
			if len(c.Embedding) == 0 {
				return fmt.Errorf("chunk %s has empty embedding", c.ID)
			}
			ids[i] = c.ID
			docIDs[i] = c.DocID
			docNames[i] = c.DocName
			chunkIndexes[i] = int64(c.ChunkIndex)
			pageNums[i] = int64(c.PageNum)
			texts[i] = truncateRunes(c.Text, chunkTextMaxLen)
			indexedAts[i] = c.IndexedAt.UTC().Format(time.RFC3339)
			vectors[i] = s.padEmbedding(c.Embedding)
		}

		_, err := s.milvusClient.Insert(ctx, s.collection, "",
			entity.NewColumnVarChar("id", ids),
			entity.NewColumnVarChar("doc_id", docIDs),
			entity.NewColumnVarChar("doc_name", docNames),
			entity.NewColumnInt64("chunk_index", chunkIndexes),
			entity.NewColumnInt64("page_num", pageNums),
			entity.NewColumnVarChar("chunk_text", texts),
			entity.NewColumnVarChar("indexed_at", indexedAts),
			entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
		)
		if err != nil {
			return fmt.Errorf("milvus insert failed: %w", err)
		}
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush collection",
			zap.String("collection", s.collection), zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) DeleteDocument(ctx context.Context, docID string) error {
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	expr := fmt.Sprintf("doc_id == %q", docID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		logger.Warn("failed to flush after delete", zap.Error(err))
	}
	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}
	if req.TopK <= 0 {
		req.TopK = 5
	}

	// 限定文档范围
	expr := ""
	if len(req.DocIDs) > 0 {
		quoted := make([]string, len(req.DocIDs))
		for i, id := range req.DocIDs {
			quoted[i] = fmt.Sprintf("%q", id)
		}
		expr = fmt.Sprintf("doc_id in [%s]", strings.Join(quoted, ", "))
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	queryVector := entity.FloatVector(s.padEmbedding(req.QueryEmbedding))
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"doc_id", "doc_name", "chunk_index", "page_num", "chunk_text"},
		[]entity.Vector{queryVector},
		"vector",
		s.metricType(),
		req.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}

	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}

	var (
		docIDs, docNames, texts []string
		chunkIndexes, pageNums  []int64
	)
	for _, field := range result.Fields {
		switch field.Name() {
		case "doc_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				docIDs = col.Data()
			}
		case "doc_name":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				docNames = col.Data()
			}
		case "chunk_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				chunkIndexes = col.Data()
			}
		case "page_num":
			if col, ok := field.(*entity.ColumnInt64); ok {
				pageNums = col.Data()
			}
		case "chunk_text":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				texts = col.Data()
			}
		}
	}

	at := func(values []string, i int) string {
		if i < len(values) {
			return values[i]
		}
		return ""
	}
	atInt := func(values []int64, i int) int {
		if i < len(values) {
			return int(values[i])
		}
		return 0
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		score := float64(0)
		if i < len(result.Scores) {
			score = float64(result.Scores[i])
		}
		matches = append(matches, SearchMatch{
			ChunkID:    at(ids, i),
			DocID:      at(docIDs, i),
			DocName:    at(docNames, i),
			ChunkIndex: atInt(chunkIndexes, i),
			PageNum:    atInt(pageNums, i),
			Text:       at(texts, i),
			Score:      score,
		})
	}
	return matches, nil
}

func (s *milvusVectorStore) Count(ctx context.Context) (int64, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return 0, err
	}
	stats, err := s.milvusClient.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	var count int64
	fmt.Sscanf(stats["row_count"], "%d", &count)
	return count, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
