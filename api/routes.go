package api

import (
	podHandlers "opshub/api/handlers/pods"
	workflowHandlers "opshub/api/handlers/workflows"
	"opshub/internal/infra"
	"opshub/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers 聚合所有 API Handler
type Handlers struct {
	Instance   *workflowHandlers.InstanceHandler
	Bottleneck *workflowHandlers.BottleneckHandler
	Pod        *podHandlers.PodHandler
}

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, h *Handlers) {
	router.Use(metrics.PrometheusMiddleware())

	// 健康检查与指标
	router.GET("/health", healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	registerWorkflowRoutes(api, h)
	registerPodRoutes(api, h)
}

// registerWorkflowRoutes 注册工作流实例与瓶颈路由
func registerWorkflowRoutes(api *gin.RouterGroup, h *Handlers) {
	instances := api.Group("/workflow-instances")
	{
		instances.POST("", h.Instance.StartInstance)
		instances.GET("/:id", h.Instance.GetInstance)
		instances.POST("/:id/advance", h.Instance.AdvanceStage)
		instances.POST("/:id/pause", h.Instance.PauseInstance)
		instances.POST("/:id/resume", h.Instance.ResumeInstance)
		instances.POST("/:id/cancel", h.Instance.CancelInstance)
		instances.GET("/:id/history", h.Instance.GetHistory)
		instances.GET("/:id/metrics", h.Instance.GetMetrics)
		instances.POST("/:id/assign-pod", h.Instance.AssignPod)
		instances.POST("/:id/assign-best-pod", h.Instance.AssignBestPod)
	}

	bottlenecks := api.Group("/bottlenecks")
	{
		bottlenecks.GET("/detect", h.Bottleneck.DetectNow)
		bottlenecks.POST("/detect", h.Bottleneck.TriggerDetect)
		bottlenecks.POST("/:id/resolve", h.Bottleneck.Resolve)
	}
}

// registerPodRoutes 注册小组查询路由
func registerPodRoutes(api *gin.RouterGroup, h *Handlers) {
	pods := api.Group("/pods")
	{
		pods.GET("", h.Pod.ListPods)
		pods.POST("/score", h.Pod.ScorePods)
	}
}

// healthCheck 服务健康检查
func healthCheck(c *gin.Context) {
	dbOK := infra.HealthCheck() == nil
	redisOK := infra.HealthCheckRedis() == nil

	status := "ok"
	code := 200
	if !dbOK || !redisOK {
		status = "degraded"
		code = 503
	}

	c.JSON(code, gin.H{
		"status": status,
		"checks": gin.H{
			"database": dbOK,
			"redis":    redisOK,
		},
	})
}
