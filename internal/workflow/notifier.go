package workflow

import (
	"context"
	"fmt"

	"opshub/internal/notification"

	"go.uber.org/zap"
)

// Notifier 向审计/通知等外部协作方发布引擎事件。
// 所有方法都是尽力而为：失败只记日志，绝不阻塞或失败所在的业务操作。
type Notifier struct {
	notifications *notification.Service
	pods          PodDirectory
	logger        *zap.Logger
}

// NewNotifier 创建 Notifier 实例
func NewNotifier(notifications *notification.Service, pods PodDirectory, logger *zap.Logger) *Notifier {
	return &Notifier{
		notifications: notifications,
		pods:          pods,
		logger:        logger,
	}
}

// TransitionEvent 阶段转移事件
type TransitionEvent struct {
	InstanceID string
	FromStage  string
	ToStage    string
	UserID     string
	Reason     string
	Completed  bool
}

// NotifyTransition 发布阶段转移事件（归属人可见）
func (n *Notifier) NotifyTransition(ctx context.Context, instance *WorkflowInstance, event *TransitionEvent) {
	if n == nil || n.notifications == nil || instance.OwnerID == "" {
		return
	}

	title := "工作流阶段更新"
	message := fmt.Sprintf("工作流 %q 已从 %s 进入 %s", instance.Name, event.FromStage, event.ToStage)
	if event.Completed {
		title = "工作流已完成"
		message = fmt.Sprintf("工作流 %q 已到达终止阶段 %s", instance.Name, event.ToStage)
	}

	err := n.notifications.Create(ctx, &notification.Notification{
		UserID:            instance.OwnerID,
		Type:              notification.TypeInfo,
		Category:          notification.CategoryWorkflow,
		Title:             title,
		Message:           message,
		RelatedEntityType: "workflow",
		RelatedEntityID:   instance.ID,
		ActionURL:         fmt.Sprintf("/platform/workflows/%s", instance.ID),
	})
	if err != nil {
		n.logger.Warn("发布阶段转移通知失败",
			zap.String("instance_id", instance.ID),
			zap.Error(err),
		)
	}
}

// NotifyPodAssignment 通知小组全部活跃成员有新工作流分配
func (n *Notifier) NotifyPodAssignment(ctx context.Context, instance *WorkflowInstance, podID string) {
	if n == nil || n.notifications == nil {
		return
	}

	memberIDs, err := n.pods.ActiveMembers(ctx, podID)
	if err != nil {
		n.logger.Warn("查询小组成员失败，跳过分配通知",
			zap.String("pod_id", podID),
			zap.Error(err),
		)
		return
	}

	ns := make([]*notification.Notification, 0, len(memberIDs))
	for _, userID := range memberIDs {
		ns = append(ns, &notification.Notification{
			UserID:            userID,
			Type:              notification.TypeInfo,
			Category:          notification.CategoryWorkflow,
			Title:             "新的工作流分配",
			Message:           fmt.Sprintf("工作流 %q 已分配给你所在的小组", instance.Name),
			RelatedEntityType: "workflow",
			RelatedEntityID:   instance.ID,
			ActionURL:         fmt.Sprintf("/platform/workflows/%s", instance.ID),
		})
	}
	if err := n.notifications.CreateBatch(ctx, ns); err != nil {
		n.logger.Warn("发布小组分配通知失败",
			zap.String("instance_id", instance.ID),
			zap.String("pod_id", podID),
			zap.Error(err),
		)
	}
}

// NotifySLABreach 通知归属人实例已超出 SLA 截止时间
func (n *Notifier) NotifySLABreach(ctx context.Context, instance *WorkflowInstance) {
	if n == nil || n.notifications == nil || instance.OwnerID == "" {
		return
	}

	err := n.notifications.Create(ctx, &notification.Notification{
		UserID:            instance.OwnerID,
		Type:              notification.TypeWarning,
		Category:          notification.CategoryWorkflow,
		Title:             "工作流超出 SLA",
		Message:           fmt.Sprintf("工作流 %q 已超出 SLA 截止时间", instance.Name),
		RelatedEntityType: "workflow",
		RelatedEntityID:   instance.ID,
		ActionURL:         fmt.Sprintf("/platform/workflows/%s", instance.ID),
	})
	if err != nil {
		n.logger.Warn("发布 SLA 告警通知失败",
			zap.String("instance_id", instance.ID),
			zap.Error(err),
		)
	}
}
