package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opshub/internal/common"
	"opshub/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine 工作流编排引擎门面。组合模板目录、实例存储、小组目录、
// 瓶颈检测器与通知器；所有依赖显式注入，不持有任何进程级全局状态。
type Engine struct {
	catalog  *TemplateCatalog
	store    InstanceStore
	pods     PodDirectory
	history  *HistoryService
	notifier *Notifier
	detector *BottleneckDetector

	weights ScoreWeights
	logger  *zap.Logger
}

// EngineOption 引擎可选配置
type EngineOption func(*Engine)

// WithScoreWeights 覆盖小组打分权重
func WithScoreWeights(w ScoreWeights) EngineOption {
	return func(e *Engine) {
		e.weights = w
	}
}

// NewEngine 创建 Engine 实例
func NewEngine(
	catalog *TemplateCatalog,
	store InstanceStore,
	pods PodDirectory,
	history *HistoryService,
	notifier *Notifier,
	detector *BottleneckDetector,
	logger *zap.Logger,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		catalog:  catalog,
		store:    store,
		pods:     pods,
		history:  history,
		notifier: notifier,
		detector: detector,
		weights:  DefaultScoreWeights(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartWorkflowRequest 启动工作流请求
type StartWorkflowRequest struct {
	TemplateCode  string
	ObjectType    string
	ObjectID      string
	Name          string
	OwnerID       string
	AssignedPodID string
	ContextData   map[string]any
}

// StartWorkflow 启动一个新的工作流实例。
// 入口阶段取模板中没有入边的阶段；SLA 截止时间按模板全部阶段
// 预期时长之和计算。本层不做去重，幂等检查由调用方负责。
func (e *Engine) StartWorkflow(ctx context.Context, req *StartWorkflowRequest) (*WorkflowInstance, error) {
	tpl, err := e.catalog.GetTemplate(ctx, req.TemplateCode)
	if err != nil {
		return nil, err
	}

	entry, err := EntryStage(tpl)
	if err != nil {
		return nil, fmt.Errorf("确定入口阶段失败: %w", err)
	}

	now := time.Now().UTC()
	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s - %s", tpl.Name, req.ObjectID)
	}

	instance := &WorkflowInstance{
		ID:             uuid.New().String(),
		TemplateID:     tpl.ID,
		TemplateCode:   tpl.Code,
		Name:           name,
		ObjectType:     req.ObjectType,
		ObjectID:       req.ObjectID,
		OwnerID:        req.OwnerID,
		CurrentStageID: entry.ID,
		Status:         InstanceStatusActive,
		TotalStages:    len(tpl.Graph.Stages),
		ContextData:    req.ContextData,
		StageEnteredAt: now,
		SLADeadline:    ComputeSLADeadline(tpl, now),
		StartedAt:      now,
	}
	if req.AssignedPodID != "" {
		instance.AssignedPodID = &req.AssignedPodID
	}

	if err := e.store.Create(ctx, instance); err != nil {
		return nil, err
	}
	metrics.WorkflowInstancesStarted.WithLabelValues(tpl.Code, req.ObjectType).Inc()

	// 记录入口阶段进入历史（尽力而为）
	if err := e.history.LogTransition(ctx, &StageHistory{
		InstanceID:     instance.ID,
		ToStage:        entry.ID,
		TransitionedBy: req.OwnerID,
		Reason:         "工作流启动",
	}); err != nil {
		e.logger.Warn("记录启动历史失败", zap.String("instance_id", instance.ID), zap.Error(err))
	}

	return instance, nil
}

// AdvanceStageRequest 推进阶段请求
type AdvanceStageRequest struct {
	InstanceID string
	ToStageID  string
	UserID     string
	Reason     string
}

// AdvanceStage 将实例推进到目标阶段。
// 转移合法性由模板转移图决定（见 ValidateTransition）；持久化采用
// 版本号条件更新，冲突时重试一次读取-校验-写入，仍冲突则上抛
// ErrConcurrentModification。
func (e *Engine) AdvanceStage(ctx context.Context, req *AdvanceStageRequest) (*WorkflowInstance, error) {
	updated, err := e.advanceOnce(ctx, req)
	if errors.Is(err, ErrConcurrentModification) {
		// 并发冲突重试一次：重新读取后完整重走校验
		updated, err = e.advanceOnce(ctx, req)
	}
	return updated, err
}

func (e *Engine) advanceOnce(ctx context.Context, req *AdvanceStageRequest) (*WorkflowInstance, error) {
	instance, err := e.store.Get(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status != InstanceStatusActive {
		return nil, fmt.Errorf("%w: 当前状态 %s", ErrInstanceNotActive, instance.Status)
	}

	tpl, err := e.catalog.GetTemplateByID(ctx, instance.TemplateID)
	if err != nil {
		return nil, err
	}

	result, err := ValidateTransition(tpl, instance.CurrentStageID, req.ToStageID, instance.ContextData)
	if err != nil {
		metrics.StageTransitionsTotal.WithLabelValues(tpl.Code, "invalid").Inc()
		return nil, err
	}

	now := time.Now().UTC()
	fields := map[string]any{
		"current_stage_id": req.ToStageID,
		"stage_entered_at": now,
		"stages_completed": instance.StagesCompleted + 1,
	}
	if result.ToTerminal {
		fields["status"] = InstanceStatusCompleted
		fields["completed_at"] = now
	}

	updated, err := e.store.UpdateFields(ctx, instance.ID, instance.Version, fields)
	if err != nil {
		if errors.Is(err, ErrConcurrentModification) {
			metrics.StageTransitionsTotal.WithLabelValues(tpl.Code, "conflict").Inc()
		}
		return nil, err
	}
	metrics.StageTransitionsTotal.WithLabelValues(tpl.Code, "ok").Inc()
	if result.ToTerminal {
		metrics.InstancesCompleted.WithLabelValues(tpl.Code).Inc()
	}

	// 历史与通知均为尽力而为，不影响转移结果
	from := instance.CurrentStageID
	duration := now.Sub(instance.StageEnteredAt).Hours()
	if err := e.history.LogTransition(ctx, &StageHistory{
		InstanceID:     instance.ID,
		FromStage:      &from,
		ToStage:        req.ToStageID,
		TransitionedBy: req.UserID,
		Reason:         req.Reason,
		DurationHours:  &duration,
	}); err != nil {
		e.logger.Warn("记录转移历史失败", zap.String("instance_id", instance.ID), zap.Error(err))
	}

	e.notifier.NotifyTransition(ctx, updated, &TransitionEvent{
		InstanceID: instance.ID,
		FromStage:  from,
		ToStage:    req.ToStageID,
		UserID:     req.UserID,
		Reason:     req.Reason,
		Completed:  result.ToTerminal,
	})

	return updated, nil
}

// PauseWorkflow 暂停实例。暂停中的实例不能推进，也不参与瓶颈扫描。
func (e *Engine) PauseWorkflow(ctx context.Context, instanceID, userID, reason string) error {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status != InstanceStatusActive {
		return fmt.Errorf("%w: 当前状态 %s", ErrInstanceNotActive, instance.Status)
	}

	now := time.Now().UTC()
	_, err = e.store.UpdateFields(ctx, instanceID, instance.Version, map[string]any{
		"status":    InstanceStatusPaused,
		"paused_at": now,
	})
	if err != nil {
		return err
	}

	e.logger.Info("工作流已暂停",
		zap.String("instance_id", instanceID),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
	return nil
}

// ResumeWorkflow 恢复暂停中的实例
func (e *Engine) ResumeWorkflow(ctx context.Context, instanceID, userID string) error {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status != InstanceStatusPaused {
		return fmt.Errorf("%w: 当前状态 %s，只有暂停中的实例可以恢复", ErrInstanceNotActive, instance.Status)
	}

	// 恢复后重置阶段进入时间，暂停时长不计入瓶颈判定
	now := time.Now().UTC()
	_, err = e.store.UpdateFields(ctx, instanceID, instance.Version, map[string]any{
		"status":           InstanceStatusActive,
		"paused_at":        nil,
		"stage_entered_at": now,
	})
	if err != nil {
		return err
	}

	e.logger.Info("工作流已恢复",
		zap.String("instance_id", instanceID),
		zap.String("user_id", userID),
	)
	return nil
}

// CancelWorkflow 取消实例（终态，不可再推进；引擎不删除实例）
func (e *Engine) CancelWorkflow(ctx context.Context, instanceID, userID, reason string) error {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return err
	}
	if instance.Status == InstanceStatusCompleted || instance.Status == InstanceStatusCancelled {
		return fmt.Errorf("%w: 当前状态 %s", ErrInstanceNotActive, instance.Status)
	}

	_, err = e.store.UpdateFields(ctx, instanceID, instance.Version, map[string]any{
		"status": InstanceStatusCancelled,
	})
	if err != nil {
		return err
	}

	e.logger.Info("工作流已取消",
		zap.String("instance_id", instanceID),
		zap.String("user_id", userID),
		zap.String("reason", reason),
	)
	return nil
}

// GetInstance 按 ID 查询实例
func (e *Engine) GetInstance(ctx context.Context, instanceID string) (*WorkflowInstance, error) {
	return e.store.Get(ctx, instanceID)
}

// GetInstanceMetrics 查询实例运行指标
func (e *Engine) GetInstanceMetrics(ctx context.Context, instanceID string) (*InstanceMetrics, error) {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return e.history.ComputeMetrics(ctx, instance)
}

// GetInstanceHistory 查询实例的阶段转移历史
func (e *Engine) GetInstanceHistory(ctx context.Context, instanceID string) ([]*StageHistory, error) {
	if _, err := e.store.Get(ctx, instanceID); err != nil {
		return nil, err
	}
	return e.history.ListByInstance(ctx, instanceID)
}

// GetInstanceHistoryPage 分页查询实例的阶段转移历史
func (e *Engine) GetInstanceHistoryPage(ctx context.Context, instanceID string, req *common.PaginationRequest) ([]*StageHistory, int64, error) {
	if _, err := e.store.Get(ctx, instanceID); err != nil {
		return nil, 0, err
	}
	return e.history.ListByInstancePage(ctx, instanceID, req)
}

// CheckSLA 检查实例是否超出 SLA 截止时间，超出时更新标记并通知归属人。
// 返回 true 表示仍在 SLA 内。
func (e *Engine) CheckSLA(ctx context.Context, instanceID string) (bool, error) {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return false, err
	}
	if instance.SLADeadline == nil {
		return true, nil
	}

	isOverdue := time.Now().UTC().After(*instance.SLADeadline)
	if isOverdue != instance.IsOverdue {
		if _, err := e.store.UpdateFields(ctx, instanceID, instance.Version, map[string]any{
			"is_overdue": isOverdue,
		}); err != nil && !errors.Is(err, ErrConcurrentModification) {
			return !isOverdue, err
		}
		if isOverdue {
			e.notifier.NotifySLABreach(ctx, instance)
		}
	}
	return !isOverdue, nil
}

// AssignToPod 将实例显式分配给指定小组。
// 信任边界：小组是否存在由调用方或存储保证，这里不做校验。
func (e *Engine) AssignToPod(ctx context.Context, instanceID, podID string) error {
	instance, err := e.store.Get(ctx, instanceID)
	if err != nil {
		return err
	}

	updated, err := e.store.UpdateFields(ctx, instanceID, instance.Version, map[string]any{
		"assigned_pod_id": podID,
	})
	if err != nil {
		return err
	}
	metrics.PodAssignmentsTotal.WithLabelValues("explicit").Inc()

	e.notifier.NotifyPodAssignment(ctx, updated, podID)
	return nil
}

// AssignToBestPod 按要求对候选小组打分并分配最优者，返回其 ID。
// 候选池为空时返回 ErrNoPodsAvailable。
//
// 小组负载的读取与后续分配写入不在同一事务中：并发分配可能把两个
// 实例分到同一个"最空闲"小组，这是可接受的尽力而为启发式。
func (e *Engine) AssignToBestPod(ctx context.Context, instanceID, objectType string, req *PodRequirements) (string, error) {
	if _, err := e.store.Get(ctx, instanceID); err != nil {
		return "", err
	}

	pods, err := e.pods.ListActive(ctx)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", ErrNoPodsAvailable
	}

	scores := ScorePods(pods, req, e.weights)
	best := scores[0]

	if err := e.AssignToPod(ctx, instanceID, best.PodID); err != nil {
		return "", err
	}
	metrics.PodAssignmentsTotal.WithLabelValues("best_fit").Inc()

	e.logger.Info("最优小组分配完成",
		zap.String("instance_id", instanceID),
		zap.String("object_type", objectType),
		zap.String("pod_id", best.PodID),
		zap.Float64("score", best.Score),
	)
	return best.PodID, nil
}

// DetectBottlenecks 执行一次全量瓶颈扫描
func (e *Engine) DetectBottlenecks(ctx context.Context) ([]*Bottleneck, error) {
	return e.detector.Detect(ctx, "")
}

// DetectBottlenecksForPod 仅扫描指定小组的实例
func (e *Engine) DetectBottlenecksForPod(ctx context.Context, podID string) ([]*Bottleneck, error) {
	return e.detector.Detect(ctx, podID)
}

// ResolveBottleneck 将瓶颈告警标记为已解决
func (e *Engine) ResolveBottleneck(ctx context.Context, bottleneckID string) error {
	return e.detector.Resolve(ctx, bottleneckID)
}
