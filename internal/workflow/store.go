package workflow

import (
	"context"
	"fmt"
	"time"

	"opshub/internal/common"

	"gorm.io/gorm"
)

// ActiveScanFilter 活跃实例扫描条件
type ActiveScanFilter struct {
	PodID              string     // 仅扫描指定小组
	ObjectType         string     // 仅扫描指定对象类型
	StageEnteredBefore *time.Time // 当前阶段进入时间早于该时刻
}

// InstanceStore 实例存储接口。所有操作对单个实例是原子的，
// 引擎不跨实例开事务。
type InstanceStore interface {
	// Create 持久化新实例（ID 由调用方生成）
	Create(ctx context.Context, instance *WorkflowInstance) error

	// Get 按 ID 读取实例，不存在时返回 ErrInstanceNotFound
	Get(ctx context.Context, id string) (*WorkflowInstance, error)

	// UpdateFields 条件更新：仅当数据库中的版本号仍等于 expectedVersion 时生效，
	// 并将版本号加一。版本不匹配返回 ErrConcurrentModification。
	UpdateFields(ctx context.Context, id string, expectedVersion int, fields map[string]any) (*WorkflowInstance, error)

	// ScanActive 按条件扫描 active 状态的实例
	ScanActive(ctx context.Context, filter ActiveScanFilter) ([]*WorkflowInstance, error)
}

// GormInstanceStore InstanceStore 的 GORM 实现
type GormInstanceStore struct {
	db *gorm.DB
}

// NewGormInstanceStore 创建 GormInstanceStore 实例
func NewGormInstanceStore(db *gorm.DB) *GormInstanceStore {
	return &GormInstanceStore{db: db}
}

// Create 持久化新实例
func (s *GormInstanceStore) Create(ctx context.Context, instance *WorkflowInstance) error {
	if err := s.db.WithContext(ctx).Create(instance).Error; err != nil {
		return fmt.Errorf("创建工作流实例失败: %w", err)
	}
	return nil
}

// Get 按 ID 读取实例
func (s *GormInstanceStore) Get(ctx context.Context, id string) (*WorkflowInstance, error) {
	var instance WorkflowInstance
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&instance).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
		}
		return nil, fmt.Errorf("查询工作流实例失败: %w", err)
	}
	return &instance, nil
}

// UpdateFields 带版本号的条件更新
func (s *GormInstanceStore) UpdateFields(ctx context.Context, id string, expectedVersion int, fields map[string]any) (*WorkflowInstance, error) {
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = expectedVersion + 1

	result := s.db.WithContext(ctx).
		Model(&WorkflowInstance{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("更新工作流实例失败: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		// 区分"不存在"与"版本冲突"
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&WorkflowInstance{}).
			Where("id = ?", id).
			Count(&count).Error; err != nil {
			return nil, fmt.Errorf("查询工作流实例失败: %w", err)
		}
		if count == 0 {
			return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
		}
		return nil, fmt.Errorf("%w: %s", ErrConcurrentModification, id)
	}

	return s.Get(ctx, id)
}

// ScanActive 扫描活跃实例
func (s *GormInstanceStore) ScanActive(ctx context.Context, filter ActiveScanFilter) ([]*WorkflowInstance, error) {
	query := s.db.WithContext(ctx).
		Model(&WorkflowInstance{}).
		Scopes(common.ActiveOnly())

	if filter.PodID != "" {
		query = query.Scopes(common.ByPod(filter.PodID))
	}
	if filter.ObjectType != "" {
		query = query.Where("object_type = ?", filter.ObjectType)
	}
	if filter.StageEnteredBefore != nil {
		query = query.Where("stage_entered_at < ?", *filter.StageEnteredBefore)
	}

	var instances []*WorkflowInstance
	if err := query.Order("stage_entered_at ASC").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("扫描活跃实例失败: %w", err)
	}
	return instances, nil
}
