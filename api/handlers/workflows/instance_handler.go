package workflows

import (
	"opshub/internal/common"
	"opshub/internal/infra/queue"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
)

// InstanceHandler 工作流实例管理 Handler
type InstanceHandler struct {
	engine *workflow.Engine
	queue  queue.Client
}

// NewInstanceHandler 创建 InstanceHandler 实例
func NewInstanceHandler(engine *workflow.Engine, q queue.Client) *InstanceHandler {
	return &InstanceHandler{engine: engine, queue: q}
}

// StartInstance 启动工作流实例
func (h *InstanceHandler) StartInstance(c *gin.Context) {
	var req StartInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	instance, err := h.engine.StartWorkflow(c.Request.Context(), &workflow.StartWorkflowRequest{
		TemplateCode:  req.TemplateCode,
		ObjectType:    req.ObjectType,
		ObjectID:      req.ObjectID,
		Name:          req.Name,
		OwnerID:       req.OwnerID,
		AssignedPodID: req.AssignedPodID,
		ContextData:   req.ContextData,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseCreated(c, instance)
}

// GetInstance 查询工作流实例详情
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	instance, err := h.engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccess(c, instance)
}

// AdvanceStage 推进实例到目标阶段
func (h *InstanceHandler) AdvanceStage(c *gin.Context) {
	var req AdvanceStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	instance, err := h.engine.AdvanceStage(c.Request.Context(), &workflow.AdvanceStageRequest{
		InstanceID: c.Param("id"),
		ToStageID:  req.ToStageID,
		UserID:     req.UserID,
		Reason:     req.Reason,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	// 推进成功后异步核查 SLA，入队失败不影响本次请求
	_ = h.queue.EnqueueCheckSLA(instance.ID)

	common.ResponseSuccess(c, instance)
}

// PauseInstance 暂停实例
func (h *InstanceHandler) PauseInstance(c *gin.Context) {
	var req PauseRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.engine.PauseWorkflow(c.Request.Context(), c.Param("id"), req.UserID, req.Reason); err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流已暂停", nil)
}

// ResumeInstance 恢复实例
func (h *InstanceHandler) ResumeInstance(c *gin.Context) {
	var req PauseRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.engine.ResumeWorkflow(c.Request.Context(), c.Param("id"), req.UserID); err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流已恢复", nil)
}

// CancelInstance 取消实例
func (h *InstanceHandler) CancelInstance(c *gin.Context) {
	var req PauseRequest
	_ = c.ShouldBindJSON(&req)

	if err := h.engine.CancelWorkflow(c.Request.Context(), c.Param("id"), req.UserID, req.Reason); err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "工作流已取消", nil)
}

// GetHistory 分页查询实例阶段转移历史
func (h *InstanceHandler) GetHistory(c *gin.Context) {
	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "分页参数错误: "+err.Error())
		return
	}
	if page.Page == 0 {
		page = common.DefaultPagination()
	}

	history, total, err := h.engine.GetInstanceHistoryPage(c.Request.Context(), c.Param("id"), &page)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseList(c, history, total, &page)
}

// GetMetrics 查询实例运行指标
func (h *InstanceHandler) GetMetrics(c *gin.Context) {
	m, err := h.engine.GetInstanceMetrics(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccess(c, m)
}

// AssignPod 显式分配小组
func (h *InstanceHandler) AssignPod(c *gin.Context) {
	var req AssignPodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	if err := h.engine.AssignToPod(c.Request.Context(), c.Param("id"), req.PodID); err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "小组分配完成", nil)
}

// AssignBestPod 按技能与负载自动分配最优小组
func (h *InstanceHandler) AssignBestPod(c *gin.Context) {
	var req AssignBestPodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	podID, err := h.engine.AssignToBestPod(c.Request.Context(), c.Param("id"), req.ObjectType, &workflow.PodRequirements{
		Skills:  req.RequiredSkills,
		JobType: req.JobType,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	common.ResponseSuccessMessage(c, "小组分配完成", gin.H{"pod_id": podID})
}
