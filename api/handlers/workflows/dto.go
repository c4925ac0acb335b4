package workflows

import (
	"errors"

	"opshub/internal/common"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
)

// StartInstanceRequest 启动工作流实例请求
type StartInstanceRequest struct {
	TemplateCode  string         `json:"template_code" binding:"required"`
	ObjectType    string         `json:"object_type" binding:"required"`
	ObjectID      string         `json:"object_id" binding:"required"`
	Name          string         `json:"name"`
	OwnerID       string         `json:"owner_id"`
	AssignedPodID string         `json:"assigned_pod_id"`
	ContextData   map[string]any `json:"context_data"`
}

// AdvanceStageRequest 推进阶段请求
type AdvanceStageRequest struct {
	ToStageID string `json:"to_stage_id" binding:"required"`
	UserID    string `json:"user_id"`
	Reason    string `json:"reason"`
}

// PauseRequest 暂停/取消请求
type PauseRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// AssignPodRequest 显式分配小组请求
type AssignPodRequest struct {
	PodID string `json:"pod_id" binding:"required"`
}

// AssignBestPodRequest 最优小组分配请求
type AssignBestPodRequest struct {
	ObjectType     string   `json:"object_type"`
	RequiredSkills []string `json:"required_skills"`
	JobType        string   `json:"job_type"`
}

// writeEngineError 将引擎哨兵错误映射为业务状态码，HTTP 状态码由 common 层统一决定
func writeEngineError(c *gin.Context, err error) {
	code := common.CodeInternalError
	switch {
	case errors.Is(err, workflow.ErrTemplateNotFound):
		code = common.CodeTemplateNotFound
	case errors.Is(err, workflow.ErrInstanceNotFound):
		code = common.CodeInstanceNotFound
	case errors.Is(err, workflow.ErrBottleneckNotFound):
		code = common.CodeBottleneckNotFound
	case errors.Is(err, workflow.ErrInvalidTransition):
		code = common.CodeInvalidTransition
	case errors.Is(err, workflow.ErrInstanceNotActive):
		code = common.CodeInstanceNotActive
	case errors.Is(err, workflow.ErrConcurrentModification):
		code = common.CodeConcurrentModification
	case errors.Is(err, workflow.ErrNoPodsAvailable):
		code = common.CodeNoPodsAvailable
	}
	common.ResponseError(c, code, err.Error())
}
