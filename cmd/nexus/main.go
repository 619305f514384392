package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/nexusrag/backend-go/app/bootstrap"
	"github.com/nexusrag/backend-go/app/router"
	"github.com/nexusrag/backend-go/internal/config"
	"github.com/nexusrag/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	// 初始化路由
	router.Init()

	// 配置Beego全局设置
	web.BConfig.AppName = "NexusRAG"
	web.BConfig.CopyRequestBody = true
	// 上传限制交给服务层校验,这里放宽Beego自身的请求体限制
	web.BConfig.MaxMemory = 1 << 26
	web.BConfig.MaxUploadSize = 1 << 30

	if p, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = p
	}

	logger.Info("Starting NexusRAG Document QA Service", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}
