package controllers

import (
	"context"
	"time"

	"github.com/nexusrag/backend-go/internal/di"
	"github.com/nexusrag/backend-go/internal/knowledge"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

const serviceVersion = "1.0.0"

// RootController 根控制器
type RootController struct {
	BaseController
}

func (c *RootController) Index() {
	c.JSONSuccess(map[string]string{
		"status":  "running",
		"service": "NexusRAG Document QA API",
		"version": serviceVersion,
	})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
}

// Health 返回服务及各组件的就绪状态。
// 组件未就绪不影响整体healthy:向量检索可以在无生成模型时独立工作。
func (c *HealthController) Health() {
	components := map[string]bool{}
	stats := map[string]interface{}{}

	_ = di.Invoke(func(
		db *gorm.DB,
		vectorStore knowledge.VectorStore,
		embedder knowledge.Embedder,
		indexer knowledge.FulltextIndexer,
		generator knowledge.AnswerGenerator,
	) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		dbOK := false
		if sqlDB, err := db.DB(); err == nil {
			dbOK = sqlDB.PingContext(ctx) == nil
		}
		components["database"] = dbOK
		components["vector_store"] = vectorStore.Ready()
		components["embedder"] = embedder.Ready()
		components["fulltext"] = indexer.Ready()
		components["generator"] = generator.Ready()

		if count, err := vectorStore.Count(ctx); err == nil {
			stats["total_chunks"] = count
		}
	})

	c.JSONSuccess(map[string]interface{}{
		"status":     "healthy",
		"components": components,
		"stats":      stats,
	})
}

// MetricsController Prometheus指标控制器
type MetricsController struct {
	BaseController
}

// Metrics 返回Prometheus格式的指标
func (c *MetricsController) Metrics() {
	promhttp.Handler().ServeHTTP(c.Ctx.ResponseWriter, c.Ctx.Request)
}
