package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"opshub/internal/worker/tasks"
	"opshub/internal/workflow"

	"github.com/hibiken/asynq"
	"go.uber.org/zap/zaptest"
)

type fakeDetector struct {
	called bool
	podID  string
	retErr error
}

func (f *fakeDetector) DetectBottlenecksForPod(ctx context.Context, podID string) ([]*workflow.Bottleneck, error) {
	f.called = true
	f.podID = podID
	if f.retErr != nil {
		return nil, f.retErr
	}
	return []*workflow.Bottleneck{{ID: "bn-1"}}, nil
}

type fakeChecker struct {
	called     bool
	instanceID string
	within     bool
	retErr     error
}

func (f *fakeChecker) CheckSLA(ctx context.Context, instanceID string) (bool, error) {
	f.called = true
	f.instanceID = instanceID
	return f.within, f.retErr
}

func TestBottleneckHandlerHandleDetect_Success(t *testing.T) {
	detector := &fakeDetector{}
	h := NewBottleneckHandler(detector, &fakeChecker{}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.DetectBottlenecksPayload{PodID: "pod-1"})
	task := asynq.NewTask(tasks.TypeDetectBottlenecks, payload)

	if err := h.HandleDetectBottlenecks(context.Background(), task); err != nil {
		t.Fatalf("扫描任务不应报错: %v", err)
	}
	if !detector.called || detector.podID != "pod-1" {
		t.Fatalf("检测器未被正确调用: called=%v podID=%s", detector.called, detector.podID)
	}
}

func TestBottleneckHandlerHandleDetect_Error(t *testing.T) {
	expectedErr := errors.New("boom")
	detector := &fakeDetector{retErr: expectedErr}
	h := NewBottleneckHandler(detector, &fakeChecker{}, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.DetectBottlenecksPayload{})
	task := asynq.NewTask(tasks.TypeDetectBottlenecks, payload)

	if err := h.HandleDetectBottlenecks(context.Background(), task); !errors.Is(err, expectedErr) {
		t.Fatalf("扫描失败应上抛供 asynq 重试, 实际 %v", err)
	}
}

func TestBottleneckHandlerHandleDetect_InvalidPayload(t *testing.T) {
	detector := &fakeDetector{}
	h := NewBottleneckHandler(detector, &fakeChecker{}, zaptest.NewLogger(t))
	task := asynq.NewTask(tasks.TypeDetectBottlenecks, []byte("not-json"))

	if err := h.HandleDetectBottlenecks(context.Background(), task); err == nil {
		t.Fatalf("非法载荷应报错")
	}
	if detector.called {
		t.Fatalf("载荷非法时不应调用检测器")
	}
}

func TestBottleneckHandlerHandleCheckSLA(t *testing.T) {
	checker := &fakeChecker{within: false}
	h := NewBottleneckHandler(&fakeDetector{}, checker, zaptest.NewLogger(t))
	payload, _ := json.Marshal(tasks.CheckSLAPayload{InstanceID: "wf-1"})
	task := asynq.NewTask(tasks.TypeCheckSLA, payload)

	if err := h.HandleCheckSLA(context.Background(), task); err != nil {
		t.Fatalf("SLA 检查不应报错: %v", err)
	}
	if !checker.called || checker.instanceID != "wf-1" {
		t.Fatalf("检查器未被正确调用: called=%v id=%s", checker.called, checker.instanceID)
	}
}
