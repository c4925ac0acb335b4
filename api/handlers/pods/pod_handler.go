package pods

import (
	"context"

	"opshub/internal/common"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
)

// Directory 小组查询接口所需的目录能力
type Directory interface {
	ListActive(ctx context.Context) ([]*workflow.Pod, error)
	ListActivePage(ctx context.Context, req *common.PaginationRequest) ([]*workflow.Pod, int64, error)
}

// PodHandler 执行小组查询 Handler
type PodHandler struct {
	directory Directory
	weights   workflow.ScoreWeights
}

// NewPodHandler 创建 PodHandler 实例
func NewPodHandler(directory Directory, weights workflow.ScoreWeights) *PodHandler {
	return &PodHandler{directory: directory, weights: weights}
}

// ListPods 分页查询活跃小组列表
func (h *PodHandler) ListPods(c *gin.Context) {
	var page common.PaginationRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		common.ResponseBadRequest(c, "分页参数错误: "+err.Error())
		return
	}
	if page.Page == 0 {
		page = common.DefaultPagination()
	}

	pods, total, err := h.directory.ListActivePage(c.Request.Context(), &page)
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	common.ResponseList(c, pods, total, &page)
}

// ScoreRequest 打分预览请求
type ScoreRequest struct {
	RequiredSkills []string `json:"required_skills"`
	JobType        string   `json:"job_type"`
}

// ScorePods 对全部活跃小组打分预览（不执行分配）
func (h *PodHandler) ScorePods(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数错误: "+err.Error())
		return
	}

	pods, err := h.directory.ListActive(c.Request.Context())
	if err != nil {
		common.ResponseServerError(c, err.Error())
		return
	}

	scores := workflow.ScorePods(pods, &workflow.PodRequirements{
		Skills:  req.RequiredSkills,
		JobType: req.JobType,
	}, h.weights)

	common.ResponseSuccess(c, scores)
}
