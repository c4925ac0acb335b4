package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"opshub/internal/ai"
	"opshub/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SeverityThresholds 严重等级阈值（elapsed/expected 比值）
type SeverityThresholds struct {
	Medium   float64 // 比值低于该值为 low
	High     float64 // 比值低于该值为 medium
	Critical float64 // 比值低于该值为 high，达到及以上为 critical
}

// DefaultSeverityThresholds 默认严重等级阈值
func DefaultSeverityThresholds() SeverityThresholds {
	return SeverityThresholds{Medium: 1.5, High: 2.5, Critical: 4.0}
}

// Classify 根据超时比值计算严重等级
func (t SeverityThresholds) Classify(ratio float64) Severity {
	switch {
	case ratio < t.Medium:
		return SeverityLow
	case ratio < t.High:
		return SeverityMedium
	case ratio < t.Critical:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// BottleneckDetector 瓶颈检测器：扫描活跃实例，对停留超出阶段预期时长的
// 实例生成告警，并尽力为新告警生成 AI 整改建议。
type BottleneckDetector struct {
	db         *gorm.DB
	store      InstanceStore
	catalog    *TemplateCatalog
	pods       PodDirectory
	suggester  ai.Suggester
	thresholds SeverityThresholds

	suggestTimeout     time.Duration
	suggestConcurrency int

	logger *zap.Logger
}

// DetectorOption 检测器可选配置
type DetectorOption func(*BottleneckDetector)

// WithSeverityThresholds 覆盖严重等级阈值
func WithSeverityThresholds(t SeverityThresholds) DetectorOption {
	return func(d *BottleneckDetector) {
		d.thresholds = t
	}
}

// WithSuggestTimeout 覆盖单次建议调用的超时
func WithSuggestTimeout(timeout time.Duration) DetectorOption {
	return func(d *BottleneckDetector) {
		if timeout > 0 {
			d.suggestTimeout = timeout
		}
	}
}

// WithSuggestConcurrency 覆盖建议调用的最大并发数
func WithSuggestConcurrency(n int) DetectorOption {
	return func(d *BottleneckDetector) {
		if n > 0 {
			d.suggestConcurrency = n
		}
	}
}

// NewBottleneckDetector 创建 BottleneckDetector 实例
func NewBottleneckDetector(
	db *gorm.DB,
	store InstanceStore,
	catalog *TemplateCatalog,
	pods PodDirectory,
	suggester ai.Suggester,
	logger *zap.Logger,
	opts ...DetectorOption,
) *BottleneckDetector {
	d := &BottleneckDetector{
		db:                 db,
		store:              store,
		catalog:            catalog,
		pods:               pods,
		suggester:          suggester,
		thresholds:         DefaultSeverityThresholds(),
		suggestTimeout:     5 * time.Second,
		suggestConcurrency: 4,
		logger:             logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect 执行一次瓶颈扫描。podID 非空时仅扫描该小组的实例。
//
// 读多写少，可与请求侧变更并发运行：实例在扫描读取与告警写入之间
// 被推进或完成的竞态可接受，下一轮扫描会自行纠正。
// AI 建议调用失败不影响扫描结果，对应告警以无建议的形式返回。
// 返回当前所有 open 状态的告警（本轮新建 + 既有）。
func (d *BottleneckDetector) Detect(ctx context.Context, podID string) ([]*Bottleneck, error) {
	start := time.Now()
	defer func() {
		metrics.BottleneckSweepDuration.Observe(time.Since(start).Seconds())
	}()

	instances, err := d.store.ScanActive(ctx, ActiveScanFilter{PodID: podID})
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	templates := make(map[string]*WorkflowTemplate)

	var newAlerts []pendingSuggestion

	for _, instance := range instances {
		tpl, ok := templates[instance.TemplateCode]
		if !ok {
			tpl, err = d.catalog.GetTemplateByID(ctx, instance.TemplateID)
			if err != nil {
				d.logger.Warn("瓶颈扫描跳过实例：模板不可用",
					zap.String("instance_id", instance.ID),
					zap.String("template_code", instance.TemplateCode),
					zap.Error(err),
				)
				continue
			}
			templates[instance.TemplateCode] = tpl
		}

		stage := tpl.Stage(instance.CurrentStageID)
		if stage == nil || stage.ExpectedDurationHours <= 0 {
			continue
		}

		elapsed := now.Sub(instance.StageEnteredAt).Hours()
		ratio := elapsed / stage.ExpectedDurationHours
		if ratio <= 1.0 {
			continue
		}

		// 同一实例不允许重复的 open 告警
		exists, err := d.hasOpenAlert(ctx, instance.ID)
		if err != nil {
			d.logger.Warn("查询既有告警失败，跳过实例",
				zap.String("instance_id", instance.ID),
				zap.Error(err),
			)
			continue
		}
		if exists {
			continue
		}

		severity := d.thresholds.Classify(ratio)
		alert := &Bottleneck{
			ID:           uuid.New().String(),
			InstanceID:   instance.ID,
			PodID:        instance.AssignedPodID,
			StageID:      instance.CurrentStageID,
			StuckHours:   elapsed,
			OverrunRatio: ratio,
			Severity:     severity,
			Status:       BottleneckStatusOpen,
			DetectedAt:   now,
		}
		if err := d.db.WithContext(ctx).Create(alert).Error; err != nil {
			// 并发扫描触发部分唯一索引冲突时放弃本条，下一轮自然收敛
			d.logger.Warn("创建瓶颈告警失败",
				zap.String("instance_id", instance.ID),
				zap.Error(err),
			)
			continue
		}
		metrics.BottlenecksDetected.WithLabelValues(string(severity)).Inc()

		newAlerts = append(newAlerts, pendingSuggestion{
			alert: alert,
			summary: &ai.BottleneckSummary{
				ObjectType:    instance.ObjectType,
				StageID:       stage.ID,
				StageName:     stage.Name,
				ElapsedHours:  elapsed,
				ExpectedHours: stage.ExpectedDurationHours,
				Severity:      string(severity),
				PodName:       d.podName(ctx, instance.AssignedPodID),
			},
		})
	}

	d.fillSuggestions(ctx, newAlerts)

	return d.listOpen(ctx, podID)
}

// pendingSuggestion 本轮新建、等待生成建议的告警
type pendingSuggestion struct {
	alert   *Bottleneck
	summary *ai.BottleneckSummary
}

// fillSuggestions 并发请求 AI 建议并回写告警。每个调用带独立超时，
// 单个失败只影响对应告警，整体扫描不受影响。
func (d *BottleneckDetector) fillSuggestions(ctx context.Context, alerts []pendingSuggestion) {
	if d.suggester == nil || len(alerts) == 0 {
		return
	}

	sem := make(chan struct{}, d.suggestConcurrency)
	var wg sync.WaitGroup

	for _, p := range alerts {
		wg.Add(1)
		sem <- struct{}{}
		go func(alert *Bottleneck, summary *ai.BottleneckSummary) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, d.suggestTimeout)
			defer cancel()

			suggestion, err := d.suggester.SuggestBottleneckFix(callCtx, summary)
			if err != nil {
				metrics.SuggestionFailures.Inc()
				d.logger.Debug("AI 建议生成失败，告警降级为无建议",
					zap.String("bottleneck_id", alert.ID),
					zap.Error(err),
				)
				return
			}

			if err := d.db.WithContext(ctx).
				Model(&Bottleneck{}).
				Where("id = ?", alert.ID).
				Update("ai_suggestion", suggestion).Error; err != nil {
				d.logger.Warn("回写 AI 建议失败",
					zap.String("bottleneck_id", alert.ID),
					zap.Error(err),
				)
				return
			}
			alert.AISuggestion = &suggestion
		}(p.alert, p.summary)
	}
	wg.Wait()
}

// hasOpenAlert 检查实例是否已有 open 状态的告警
func (d *BottleneckDetector) hasOpenAlert(ctx context.Context, instanceID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Model(&Bottleneck{}).
		Where("instance_id = ? AND status = ?", instanceID, BottleneckStatusOpen).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// listOpen 返回当前全部 open 告警
func (d *BottleneckDetector) listOpen(ctx context.Context, podID string) ([]*Bottleneck, error) {
	query := d.db.WithContext(ctx).
		Model(&Bottleneck{}).
		Where("status = ?", BottleneckStatusOpen)
	if podID != "" {
		query = query.Where("pod_id = ?", podID)
	}

	var alerts []*Bottleneck
	if err := query.Order("detected_at ASC").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("查询瓶颈告警失败: %w", err)
	}
	return alerts, nil
}

// Resolve 将告警标记为已解决
func (d *BottleneckDetector) Resolve(ctx context.Context, bottleneckID string) error {
	now := time.Now().UTC()
	result := d.db.WithContext(ctx).
		Model(&Bottleneck{}).
		Where("id = ? AND status = ?", bottleneckID, BottleneckStatusOpen).
		Updates(map[string]any{
			"status":      BottleneckStatusResolved,
			"resolved_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("更新瓶颈告警失败: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrBottleneckNotFound, bottleneckID)
	}
	return nil
}

// podName 查询小组名称（仅用于建议上下文，查询失败返回空）
func (d *BottleneckDetector) podName(ctx context.Context, podID *string) string {
	if podID == nil || *podID == "" || d.pods == nil {
		return ""
	}
	pod, err := d.pods.Get(ctx, *podID)
	if err != nil {
		return ""
	}
	return pod.Name
}
