package controllers

import (
	"net/http"
	"strconv"

	"github.com/nexusrag/backend-go/internal/di"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/services"
	"go.uber.org/zap"
)

// DocumentController 文档控制器
type DocumentController struct {
	BaseController
	docService *services.DocumentService
}

// NewDocumentController 创建文档控制器
func NewDocumentController(docService *services.DocumentService) *DocumentController {
	return &DocumentController{
		docService: docService,
	}
}

// Prepare 从DI容器解析文档服务
func (c *DocumentController) Prepare() {
	if c.docService != nil {
		return
	}
	if err := di.Invoke(func(ds *services.DocumentService) {
		c.docService = ds
	}); err != nil {
		logger.Error("Failed to resolve document service", zap.Error(err))
	}
}

// Upload 上传PDF文档并启动异步处理流水线
func (c *DocumentController) Upload() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	file, header, err := c.GetFile("file")
	if err != nil {
		c.JSONError(http.StatusBadRequest, "缺少file字段")
		return
	}
	defer file.Close()

	doc, err := c.docService.Upload(c.Ctx.Request.Context(), header.Filename, header.Size, file)
	if err != nil {
		c.handleError(err)
		return
	}

	logger.Info("Document upload accepted",
		zap.String("doc_id", doc.ID),
		zap.String("name", doc.Name),
		zap.String("ip", c.getClientIP()))

	c.JSONSuccess(map[string]interface{}{
		"doc_id":  doc.ID,
		"name":    doc.Name,
		"status":  doc.Status,
		"message": "文档已接收,正在后台处理",
	})
}

// List 获取文档列表
func (c *DocumentController) List() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	docs, err := c.docService.List()
	if err != nil {
		c.handleError(err)
		return
	}

	items := make([]map[string]interface{}, len(docs))
	for i, d := range docs {
		items[i] = map[string]interface{}{
			"doc_id":      d.ID,
			"name":        d.Name,
			"size":        d.HumanSize(),
			"size_bytes":  d.SizeBytes,
			"page_count":  d.PageCount,
			"chunk_count": d.ChunkCount,
			"status":      d.Status,
			"created_at":  d.CreatedAt,
		}
	}

	c.JSONSuccess(map[string]interface{}{
		"documents": items,
		"total":     len(items),
	})
}

// Get 获取文档详情
func (c *DocumentController) Get() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	docID := c.GetString(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, "缺少doc_id参数")
		return
	}

	doc, err := c.docService.Get(docID)
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(doc)
}

// Status 查询文档处理状态
func (c *DocumentController) Status() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	docID := c.GetString(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, "缺少doc_id参数")
		return
	}

	snapshot, err := c.docService.Status(c.Ctx.Request.Context(), docID)
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(snapshot)
}

// Delete 删除文档及其全部派生数据
func (c *DocumentController) Delete() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	docID := c.GetString(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, "缺少doc_id参数")
		return
	}

	if err := c.docService.Delete(c.Ctx.Request.Context(), docID); err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(map[string]string{
		"doc_id":  docID,
		"message": "文档已删除",
	})
}

// Page 渲染并返回指定页的PNG图像(base64 data URL)
func (c *DocumentController) Page() {
	if c.docService == nil {
		c.JSONError(http.StatusServiceUnavailable, "文档服务不可用")
		return
	}

	docID := c.GetString(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, "缺少doc_id参数")
		return
	}

	pageNum, err := strconv.Atoi(c.GetString(":page_num"))
	if err != nil || pageNum < 1 {
		c.JSONError(http.StatusBadRequest, "page_num必须是正整数")
		return
	}

	dataURL, err := c.docService.RenderPageDataURL(c.Ctx.Request.Context(), docID, pageNum)
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"doc_id":   docID,
		"page_num": pageNum,
		"image":    dataURL,
	})
}
