package api

import (
	"net/http"

	"github.com/fyerfyer/persona-doc-analyzer/api/handler"
	"github.com/fyerfyer/persona-doc-analyzer/api/middleware"
	"github.com/gin-gonic/gin"
)

const (
	corsAllowHeaders = "Content-Type, Content-Length, Accept, Authorization, Origin, X-Requested-With, X-Trace-ID"
	corsAllowMethods = "GET, POST, OPTIONS"
)

// SetupRouter 组装serve模式的HTTP入口
//
//	POST /api/analyses      上传PDF并同步分析
//	GET  /api/analyses      分页列出运行记录
//	GET  /api/analyses/:id  查询单次运行及其output.json
//	GET  /api/health        存活检查
func SetupRouter(analyses *handler.AnalysisHandler) *gin.Engine {
	router := gin.New()
	router.Use(
		allowCrossOrigin(),
		middleware.SetTraceID(),
		middleware.Logger(),
		middleware.ErrorMiddleware(),
	)
	if gin.IsDebugging() {
		router.Use(middleware.RequestBodyLog())
	}

	group := router.Group("/api")
	group.GET("/health", health)

	runs := group.Group("/analyses")
	runs.POST("", analyses.CreateAnalysis)
	runs.GET("", analyses.ListAnalyses)
	runs.GET("/:id", analyses.GetAnalysis)

	return router
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// allowCrossOrigin 允许浏览器直接上传文档，预检请求直接返回204
func allowCrossOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Expose-Headers", "X-Trace-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
