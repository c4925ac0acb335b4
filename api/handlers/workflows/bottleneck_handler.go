package workflows

import (
	"net/http"

	"opshub/internal/common"
	"opshub/internal/infra/queue"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
)

// BottleneckHandler 瓶颈告警管理 Handler
type BottleneckHandler struct {
	engine *workflow.Engine
	queue  queue.Client
}

// NewBottleneckHandler 创建 BottleneckHandler 实例
func NewBottleneckHandler(engine *workflow.Engine, q queue.Client) *BottleneckHandler {
	return &BottleneckHandler{engine: engine, queue: q}
}

// DetectNow 同步执行一次瓶颈扫描并返回当前 open 告警
func (h *BottleneckHandler) DetectNow(c *gin.Context) {
	alerts, err := h.engine.DetectBottlenecksForPod(c.Request.Context(), c.Query("pod_id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccess(c, alerts)
}

// TriggerDetect 异步触发瓶颈扫描（入队后立即返回）
func (h *BottleneckHandler) TriggerDetect(c *gin.Context) {
	if err := h.queue.EnqueueDetectBottlenecks(c.Query("pod_id")); err != nil {
		common.ResponseError(c, common.CodeServiceUnavailable, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, common.SuccessMessageResponse("瓶颈扫描任务已入队", nil))
}

// Resolve 将瓶颈告警标记为已解决
func (h *BottleneckHandler) Resolve(c *gin.Context) {
	if err := h.engine.ResolveBottleneck(c.Request.Context(), c.Param("id")); err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "瓶颈告警已解决", nil)
}
