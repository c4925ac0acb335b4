package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"opshub/internal/worker/tasks"
	"opshub/internal/workflow"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// BottleneckDetector 瓶颈检测抽象，便于注入 mock
type BottleneckDetector interface {
	DetectBottlenecksForPod(ctx context.Context, podID string) ([]*workflow.Bottleneck, error)
}

// SLAChecker SLA 检查抽象
type SLAChecker interface {
	CheckSLA(ctx context.Context, instanceID string) (bool, error)
}

type BottleneckHandler struct {
	detector BottleneckDetector
	checker  SLAChecker
	logger   *zap.Logger
}

func NewBottleneckHandler(detector BottleneckDetector, checker SLAChecker, logger *zap.Logger) *BottleneckHandler {
	return &BottleneckHandler{
		detector: detector,
		checker:  checker,
		logger:   logger,
	}
}

func (h *BottleneckHandler) HandleDetectBottlenecks(ctx context.Context, t *asynq.Task) error {
	var p tasks.DetectBottlenecksPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	h.logger.Info("开始瓶颈扫描任务", zap.String("pod_id", p.PodID))

	alerts, err := h.detector.DetectBottlenecksForPod(ctx, p.PodID)
	if err != nil {
		h.logger.Error("瓶颈扫描失败",
			zap.String("pod_id", p.PodID),
			zap.Error(err),
		)
		return err
	}

	h.logger.Info("瓶颈扫描完成",
		zap.String("pod_id", p.PodID),
		zap.Int("open_alerts", len(alerts)),
	)
	return nil
}

func (h *BottleneckHandler) HandleCheckSLA(ctx context.Context, t *asynq.Task) error {
	var p tasks.CheckSLAPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json unmarshal failed: %w", err)
	}

	within, err := h.checker.CheckSLA(ctx, p.InstanceID)
	if err != nil {
		h.logger.Error("SLA 检查失败",
			zap.String("instance_id", p.InstanceID),
			zap.Error(err),
		)
		return err
	}

	if !within {
		h.logger.Warn("实例已超出 SLA", zap.String("instance_id", p.InstanceID))
	}
	return nil
}
