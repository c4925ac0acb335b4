package workflow

import (
	"context"
	"fmt"
	"time"

	"opshub/internal/common"

	"gorm.io/gorm"
)

// HistoryService 阶段转移历史记录与指标计算
type HistoryService struct {
	db *gorm.DB
}

// NewHistoryService 创建 HistoryService 实例
func NewHistoryService(db *gorm.DB) *HistoryService {
	return &HistoryService{db: db}
}

// LogTransition 记录一次阶段转移（含首次进入入口阶段）
func (h *HistoryService) LogTransition(ctx context.Context, entry *StageHistory) error {
	if err := h.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("记录阶段历史失败: %w", err)
	}
	return nil
}

// ListByInstance 按时间升序返回实例的全部转移历史
func (h *HistoryService) ListByInstance(ctx context.Context, instanceID string) ([]*StageHistory, error) {
	var entries []*StageHistory
	err := h.db.WithContext(ctx).
		Where("instance_id = ?", instanceID).
		Order("created_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询阶段历史失败: %w", err)
	}
	return entries, nil
}

// ListByInstancePage 分页返回实例的转移历史（时间升序）
func (h *HistoryService) ListByInstancePage(ctx context.Context, instanceID string, req *common.PaginationRequest) ([]*StageHistory, int64, error) {
	query := h.db.WithContext(ctx).
		Model(&StageHistory{}).
		Where("instance_id = ?", instanceID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计阶段历史失败: %w", err)
	}

	var entries []*StageHistory
	err := query.
		Order("created_at ASC").
		Scopes(common.Paginate(req)).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询阶段历史失败: %w", err)
	}
	return entries, total, nil
}

// InstanceMetrics 实例运行指标
type InstanceMetrics struct {
	TimeInFlightHours    float64 `json:"timeInFlightHours"`    // 启动至今（或完成）的总时长
	StagesCompleted      int     `json:"stagesCompleted"`
	TotalStages          int     `json:"totalStages"`
	CurrentStageHours    float64 `json:"currentStageHours"`    // 当前阶段停留时长
	AvgStageHours        float64 `json:"avgStageHours"`        // 已完成阶段的平均停留时长
	CompletionPercentage int     `json:"completionPercentage"`
	IsOverdue            bool    `json:"isOverdue"`
}

// ComputeMetrics 根据实例与历史记录计算运行指标
func (h *HistoryService) ComputeMetrics(ctx context.Context, instance *WorkflowInstance) (*InstanceMetrics, error) {
	entries, err := h.ListByInstance(ctx, instance.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	end := now
	if instance.CompletedAt != nil {
		end = *instance.CompletedAt
	}

	var totalStageHours float64
	completedStages := 0
	for _, e := range entries {
		if e.DurationHours != nil {
			totalStageHours += *e.DurationHours
			completedStages++
		}
	}

	avg := 0.0
	if completedStages > 0 {
		avg = totalStageHours / float64(completedStages)
	}

	return &InstanceMetrics{
		TimeInFlightHours:    end.Sub(instance.StartedAt).Hours(),
		StagesCompleted:      instance.StagesCompleted,
		TotalStages:          instance.TotalStages,
		CurrentStageHours:    now.Sub(instance.StageEnteredAt).Hours(),
		AvgStageHours:        avg,
		CompletionPercentage: instance.CompletionPercentage(),
		IsOverdue:            instance.IsOverdue,
	}, nil
}
