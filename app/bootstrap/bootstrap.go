package bootstrap

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/nexusrag/backend-go/internal/config"
	"github.com/nexusrag/backend-go/internal/consul"
	"github.com/nexusrag/backend-go/internal/database"
	"github.com/nexusrag/backend-go/internal/di"
	"github.com/nexusrag/backend-go/internal/kafka"
	"github.com/nexusrag/backend-go/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	cleanupTasks    []func() error
	consulClient    *consul.Client
	serviceRegistry *consul.ServiceRegistry
}

// Global app instance for controllers to access
var globalApp *App

// GetApp returns the global app instance
func GetApp() *App {
	return globalApp
}

// SetGlobalApp sets the global app instance
func SetGlobalApp(app *App) {
	globalApp = app
}

// Init bootstraps configuration, logger, the DI container and optional
// infrastructure (Kafka, Consul) required by the Beego application.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize structured logger.
	if err := logger.InitLogger(); err != nil {
		return nil, err
	}

	// Load dynamic configuration.
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}

	app := &App{}

	// Initialize dependency injection container.
	if err := di.InitContainer(); err != nil {
		return nil, err
	}

	// 立即解析数据库连接,启动时即发现连接与迁移问题
	if err := di.Invoke(func(db *gorm.DB) {
		app.cleanupTasks = append(app.cleanupTasks, func() error {
			database.Close(db)
			return nil
		})
	}); err != nil {
		return nil, err
	}

	// Initialize Kafka (optional). Failure shouldn't block the app.
	if config.AppConfig.Kafka.Enabled {
		if err := kafka.InitProducer(config.AppConfig.Kafka.Brokers, config.AppConfig.Kafka.Topic); err != nil {
			logger.Warn("Failed to initialize Kafka producer", zap.Error(err))
		} else {
			app.cleanupTasks = append(app.cleanupTasks, func() error {
				producer := kafka.GetProducer()
				if producer != nil {
					return producer.Close()
				}
				return nil
			})
		}
	}

	// Register service with Consul (optional).
	if config.AppConfig.Consul.Enabled {
		consulClient, err := consul.NewClient(
			config.AppConfig.Consul.Address,
			config.AppConfig.Consul.Enabled,
			logger.Logger,
		)
		if err != nil {
			logger.Warn("Failed to initialize Consul client", zap.Error(err))
		} else {
			app.consulClient = consulClient
			serviceRegistry := consul.NewServiceRegistry(
				consulClient,
				config.AppConfig.Consul.ServiceID,
				config.AppConfig.Consul.ServiceName,
				logger.Logger,
			)
			if err := serviceRegistry.Register(config.AppConfig); err != nil {
				logger.Warn("Failed to register service with Consul", zap.Error(err))
			} else {
				app.serviceRegistry = serviceRegistry
				app.cleanupTasks = append(app.cleanupTasks, func() error {
					return serviceRegistry.Deregister()
				})
				logger.Info("Service registered with Consul",
					zap.String("service_id", config.AppConfig.Consul.ServiceID),
					zap.String("service_name", config.AppConfig.Consul.ServiceName))
			}
		}
	}

	// 监听config.yaml热更新
	config.WatchConfig(func() {
		logger.Info("Configuration reloaded")
	})

	return app, nil
}

// Shutdown flushes/logs and closes resources gracefully.
func (a *App) Shutdown() {
	// Execute cleanup tasks in reverse order (best effort).
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			log.Printf("Cleanup error: %v\n", err)
		}
	}

	// Flush logger buffers.
	logger.Sync()
}
