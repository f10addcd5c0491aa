package api

import (
	"github.com/gin-gonic/gin"

	"github.com/timmy/examforge/internal/api/handler"
	"github.com/timmy/examforge/internal/api/middleware"
	"github.com/timmy/examforge/internal/logger"
	"github.com/timmy/examforge/internal/service"
)

// RouterDeps are the services exposed over HTTP. Cache and library routes
// are only registered when their dependency is set.
type RouterDeps struct {
	Batches       *service.BatchService
	Cache         handler.CacheAdmin
	QuestionSets  handler.QuestionSetStore
	Templates     handler.TemplateStore
	HealthChecks  map[string]handler.HealthCheck
	RetentionDays int
	CORS          middleware.CORSConfig
	Logger        *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	healthHandler := handler.NewHealthHandler(deps.HealthChecks)
	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		batchHandler := handler.NewBatchHandler(deps.Batches, deps.RetentionDays)
		batches := v1.Group("/batches")
		batches.POST("", batchHandler.Submit)
		batches.POST("/advanced", batchHandler.SubmitAdvanced)
		batches.GET("", batchHandler.List)
		batches.DELETE("", batchHandler.Cleanup)
		batches.GET("/archive", batchHandler.Archive)
		batches.GET("/:id", batchHandler.Progress)
		batches.GET("/:id/report", batchHandler.Report)
		batches.POST("/:id/cancel", batchHandler.Cancel)
		batches.POST("/:id/pause", batchHandler.Pause)
		batches.POST("/:id/resume", batchHandler.Resume)

		if deps.Cache != nil {
			cacheHandler := handler.NewCacheHandler(deps.Cache)
			v1.GET("/cache/stats", cacheHandler.Stats)
			v1.POST("/cache/cleanup", cacheHandler.Cleanup)
			v1.DELETE("/cache", cacheHandler.Clear)
		}

		if deps.QuestionSets != nil && deps.Templates != nil {
			library := handler.NewLibraryHandler(deps.QuestionSets, deps.Templates)
			v1.GET("/question-sets", library.ListQuestionSets)
			v1.GET("/question-sets/:id", library.GetQuestionSet)
			v1.PUT("/question-sets/:id", library.PutQuestionSet)
			v1.DELETE("/question-sets/:id", library.DeleteQuestionSet)
			v1.GET("/templates", library.ListTemplates)
			v1.PUT("/templates/:id", library.PutTemplate)
		}
	}

	return r
}
