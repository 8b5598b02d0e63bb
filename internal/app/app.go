package app

import (
	"context"
	"corpus_qa_backend/internal/config"
	"corpus_qa_backend/internal/controller"
	"corpus_qa_backend/internal/repository"
	"corpus_qa_backend/internal/service"
	"corpus_qa_backend/pkg/configwatcher"
	"corpus_qa_backend/pkg/database"
	"corpus_qa_backend/pkg/logger"
	"corpus_qa_backend/pkg/monitoring"
	"corpus_qa_backend/pkg/security"
	"corpus_qa_backend/pkg/tracing"
	"corpus_qa_backend/pkg/vectorstore"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config   *config.Config
	Router   *gin.Engine
	DB       *gorm.DB
	Redis    *redis.Client
	services *services

	// 聊天限流阈值，配置热更新时原子替换
	rateLimits atomic.Pointer[config.RateLimitConfig]
}

type repositories struct {
	answer *repository.AnswerRepository
}

type services struct {
	ai        *service.AIService
	embedding *service.EmbeddingService
	retrieval *service.RetrievalService
	related   *service.RelatedQuestionService
	chat      *service.ChatService
}

type controllers struct {
	chat    *controller.ChatController
	answer  *controller.AnswerController
	related *controller.RelatedQuestionController
	health  *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		answer: repository.NewAnswerRepository(db, rdb),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}

	s.ai = service.NewAIService(cfg.AI)

	embedding, err := service.NewEmbeddingService(cfg.AI)
	if err != nil {
		logger.Log.Fatal("Failed to initialize embedding service", zap.Error(err))
	}
	s.embedding = embedding

	searcher := vectorstore.NewQdrant(vectorstore.Config{
		URL:        cfg.Vector.URL,
		APIKey:     cfg.Vector.APIKey,
		Collection: cfg.Vector.Collection,
	})

	s.retrieval = service.NewRetrievalService(s.embedding, searcher, cfg.Corpus, cfg.Vector.TopK)
	s.related = service.NewRelatedQuestionService(repos.answer)
	s.chat = service.NewChatService(
		s.ai,
		s.retrieval,
		repos.answer,
		s.related,
		cfg.Corpus.Collections,
		cfg.AI.Timeout,
	)

	return s
}

func (a *App) initControllers(s *services, repos *repositories, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		chat:    controller.NewChatController(s.chat),
		answer:  controller.NewAnswerController(repos.answer),
		related: controller.NewRelatedQuestionController(s.related),
		health:  controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(100000, time.Minute)) // 全局兜底限流

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startConfigWatcher 配置文件变更后热更新限流阈值
func (a *App) startConfigWatcher() {
	go configwatcher.WatchConfig("configs/config.yaml", func(cfg *config.Config) {
		limits := cfg.RateLimit
		a.rateLimits.Store(&limits)
		logger.Log.Info("rate limit config reloaded",
			zap.Int("maxRequests", limits.MaxRequests),
			zap.Int("windowMinutes", limits.WindowMinutes))
	})
}

// RecomputeRelated 全量重算关联问题（命令行触发入口）
func (a *App) RecomputeRelated() (int, error) {
	return a.services.related.RecomputeAll()
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}
	limits := cfg.RateLimit
	app.rateLimits.Store(&limits)

	repos := app.initRepositories(db, rdb)
	services := app.initServices(repos, cfg)
	app.services = services
	controllers := app.initControllers(services, repos, db, rdb)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(ginMode(cfg.Server.Mode))
	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		if _, err := tracing.InitTracer("corpus-qa", cfg.Tracing.CollectorEndpoint); err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
	}

	app.registerRoutes(router, controllers)
	app.startConfigWatcher()

	return app
}

func ginMode(mode string) string {
	switch mode {
	case "release":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}
