package notification

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Service 站内通知服务
type Service struct {
	db *gorm.DB
}

// NewService 创建 Service 实例
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// Create 写入一条通知
func (s *Service) Create(ctx context.Context, n *Notification) error {
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("写入通知失败: %w", err)
	}
	return nil
}

// CreateBatch 批量写入通知
func (s *Service) CreateBatch(ctx context.Context, ns []*Notification) error {
	if len(ns) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&ns).Error; err != nil {
		return fmt.Errorf("批量写入通知失败: %w", err)
	}
	return nil
}

// ListUnread 查询用户未读通知
func (s *Service) ListUnread(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var ns []*Notification
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND is_read = ?", userID, false).
		Order("created_at DESC").
		Limit(limit).
		Find(&ns).Error
	if err != nil {
		return nil, fmt.Errorf("查询未读通知失败: %w", err)
	}
	return ns, nil
}

// MarkRead 标记通知已读
func (s *Service) MarkRead(ctx context.Context, userID string, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Model(&Notification{}).
		Where("user_id = ? AND id IN ?", userID, ids).
		Update("is_read", true).Error
	if err != nil {
		return fmt.Errorf("标记通知已读失败: %w", err)
	}
	return nil
}
