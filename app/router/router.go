package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/nexusrag/backend-go/app/controllers"
	"github.com/nexusrag/backend-go/app/middleware"
)

// Init registers all routes. Must be called after the DI container is ready.
func Init() {
	web.Router("/", &controllers.RootController{}, "get:Index")
	web.Router("/health", &controllers.HealthController{}, "get:Health")
	web.Router("/metrics", &controllers.MetricsController{}, "get:Metrics")

	web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)
	web.InsertFilter("/*", web.BeforeRouter, middleware.MetricsBefore)
	web.InsertFilter("/*", web.FinishRouter, middleware.MetricsAfter, web.WithReturnOnOutput(false))

	// 文档路由
	// 注意：具体路由必须在参数路由之前，否则/upload会被:doc_id匹配
	documentController := &controllers.DocumentController{}
	web.Router("/api/documents", documentController, "get:List")
	web.Router("/api/documents/upload", documentController, "post:Upload")
	web.Router("/api/documents/status/:doc_id", documentController, "get:Status")
	web.Router("/api/documents/:doc_id", documentController, "get:Get;delete:Delete")
	web.Router("/api/documents/:doc_id/pages/:page_num", documentController, "get:Page")

	// 问答路由
	chatController := &controllers.ChatController{}
	web.Router("/api/chat", chatController, "post:Chat")
	web.Router("/api/chat/documents", chatController, "get:Documents")
	web.Router("/api/chat/summarize/:doc_id", chatController, "post:Summarize")
}
