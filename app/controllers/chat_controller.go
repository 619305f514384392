package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/nexusrag/backend-go/internal/di"
	"github.com/nexusrag/backend-go/internal/logger"
	"github.com/nexusrag/backend-go/internal/services"
	"go.uber.org/zap"
)

var validate = validator.New()

// ChatController 文档问答控制器
type ChatController struct {
	BaseController
	chatService *services.ChatService
}

// NewChatController 创建问答控制器
func NewChatController(chatService *services.ChatService) *ChatController {
	return &ChatController{
		chatService: chatService,
	}
}

// Prepare 从DI容器解析问答服务
func (c *ChatController) Prepare() {
	if c.chatService != nil {
		return
	}
	if err := di.Invoke(func(cs *services.ChatService) {
		c.chatService = cs
	}); err != nil {
		logger.Error("Failed to resolve chat service", zap.Error(err))
	}
}

// Chat 基于已索引文档回答问题
func (c *ChatController) Chat() {
	if c.chatService == nil {
		c.JSONError(http.StatusServiceUnavailable, "问答服务不可用")
		return
	}

	var req services.ChatRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "请求参数错误")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, "query不能为空,top_k范围1-20")
		return
	}

	resp, err := c.chatService.Chat(c.Ctx.Request.Context(), req)
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(resp)
}

// Summarize 生成单篇文档摘要
func (c *ChatController) Summarize() {
	if c.chatService == nil {
		c.JSONError(http.StatusServiceUnavailable, "问答服务不可用")
		return
	}

	docID := c.GetString(":doc_id")
	if docID == "" {
		c.JSONError(http.StatusBadRequest, "缺少doc_id参数")
		return
	}

	summary, err := c.chatService.Summarize(c.Ctx.Request.Context(), docID)
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(map[string]string{
		"doc_id":  docID,
		"summary": summary,
	})
}

// Documents 列出可被问答引用的文档（仅ready状态）
func (c *ChatController) Documents() {
	if c.chatService == nil {
		c.JSONError(http.StatusServiceUnavailable, "问答服务不可用")
		return
	}

	docs, err := c.chatService.ListDocuments()
	if err != nil {
		c.handleError(err)
		return
	}

	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"total":     len(docs),
	})
}
