package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"opshub/internal/ai"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestDetector(t *testing.T, db *gorm.DB, suggester ai.Suggester, opts ...DetectorOption) *BottleneckDetector {
	t.Helper()
	catalog := NewTemplateCatalog(db)
	require.NoError(t, catalog.SeedSystemTemplates(context.Background()))
	return NewBottleneckDetector(
		db,
		NewGormInstanceStore(db),
		catalog,
		NewGormPodDirectory(db),
		suggester,
		zaptest.NewLogger(t),
		opts...,
	)
}

// seedStuckInstance 写入一个在 screening（预期 24h）停留了 stuckHours 的实例
func seedStuckInstance(t *testing.T, db *gorm.DB, stuckHours float64) *WorkflowInstance {
	t.Helper()
	var tpl WorkflowTemplate
	require.NoError(t, db.Where("code = ?", TemplateCodeRecruiting).First(&tpl).Error)

	instance := newTestInstance("screening", time.Now().UTC().Add(-time.Duration(stuckHours*float64(time.Hour))))
	instance.TemplateID = tpl.ID
	require.NoError(t, db.Create(instance).Error)
	return instance
}

func TestSeverityThresholds_Classify(t *testing.T) {
	th := DefaultSeverityThresholds()

	cases := []struct {
		ratio float64
		want  Severity
	}{
		{1.1, SeverityLow},
		{1.49, SeverityLow},
		{1.5, SeverityMedium},
		{2.49, SeverityMedium},
		{2.5, SeverityHigh},
		{3.99, SeverityHigh},
		{4.0, SeverityCritical},
		{10.0, SeverityCritical},
	}
	for _, c := range cases {
		if got := th.Classify(c.ratio); got != c.want {
			t.Fatalf("倍率 %v 的严重等级错误: 期望 %s, 实际 %s", c.ratio, c.want, got)
		}
	}
}

func TestBottleneckDetector_DetectCritical(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, &stubSuggester{reply: "考虑将任务转派给空闲小组"})

	// 卡了 100 小时，预期 24 小时，倍率约 4.17 -> critical
	instance := seedStuckInstance(t, db, 100)

	alerts, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	if alert.InstanceID != instance.ID {
		t.Fatalf("告警应指向卡住的实例")
	}
	if alert.Severity != SeverityCritical {
		t.Fatalf("倍率约 4.17 应为 critical, 实际 %s", alert.Severity)
	}
	if alert.OverrunRatio < 4.0 || alert.OverrunRatio > 4.4 {
		t.Fatalf("超期倍率应约为 4.17, 实际 %v", alert.OverrunRatio)
	}
	if alert.Status != BottleneckStatusOpen {
		t.Fatalf("新告警应为 open 状态")
	}
	if alert.AISuggestion == nil || *alert.AISuggestion == "" {
		t.Fatalf("建议服务可用时告警应携带建议")
	}
}

func TestBottleneckDetector_WithinExpectationNoAlert(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{})

	seedStuckInstance(t, db, 12) // 12h < 24h 预期

	alerts, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	if len(alerts) != 0 {
		t.Fatalf("未超出预期时长不应产生告警, 实际 %d", len(alerts))
	}
}

func TestBottleneckDetector_NoDuplicateOpenAlert(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{})

	instance := seedStuckInstance(t, db, 100)

	_, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	alerts, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	if len(alerts) != 1 {
		t.Fatalf("重复扫描不应产生重复 open 告警, 实际 %d", len(alerts))
	}

	// 解决后再次扫描允许开新告警
	require.NoError(t, detector.Resolve(ctx, alerts[0].ID))
	alerts, err = detector.Detect(ctx, "")
	require.NoError(t, err)
	if len(alerts) != 1 {
		t.Fatalf("解决旧告警后应允许新告警, 实际 %d", len(alerts))
	}
	if alerts[0].ID == "" || alerts[0].InstanceID != instance.ID {
		t.Fatalf("新告警应指向同一实例")
	}
}

func TestBottleneckDetector_SuggesterFailureDegrades(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, &stubSuggester{err: fmt.Errorf("上游超时")})

	seedStuckInstance(t, db, 50)

	alerts, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	if alerts[0].AISuggestion != nil {
		t.Fatalf("建议服务失败时告警应无建议而非失败")
	}
}

func TestBottleneckDetector_SeverityBands(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{})

	cases := []struct {
		stuckHours float64
		want       Severity
	}{
		{30, SeverityLow},      // 1.25x
		{40, SeverityMedium},   // 1.67x
		{70, SeverityHigh},     // 2.92x
		{120, SeverityCritical}, // 5x
	}

	for _, c := range cases {
		instance := seedStuckInstance(t, db, c.stuckHours)
		alerts, err := detector.Detect(ctx, "")
		require.NoError(t, err)

		var found *Bottleneck
		for _, a := range alerts {
			if a.InstanceID == instance.ID {
				found = a
			}
		}
		if found == nil {
			t.Fatalf("停留 %vh 应产生告警", c.stuckHours)
		}
		if found.Severity != c.want {
			t.Fatalf("停留 %vh 的严重等级错误: 期望 %s, 实际 %s", c.stuckHours, c.want, found.Severity)
		}
	}
}

func TestBottleneckDetector_PodScopedScan(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{})

	podID := uuid.New().String()
	inPod := seedStuckInstance(t, db, 100)
	require.NoError(t, db.Model(&WorkflowInstance{}).
		Where("id = ?", inPod.ID).
		Update("assigned_pod_id", podID).Error)
	seedStuckInstance(t, db, 100) // 未分配小组

	alerts, err := detector.Detect(ctx, podID)
	require.NoError(t, err)
	if len(alerts) != 1 || alerts[0].InstanceID != inPod.ID {
		t.Fatalf("按小组扫描应只命中该小组的实例, 实际 %d", len(alerts))
	}
}

func TestBottleneckDetector_ResolveNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{})

	err := detector.Resolve(ctx, uuid.New().String())
	if !errors.Is(err, ErrBottleneckNotFound) {
		t.Fatalf("不存在的告警应返回 ErrBottleneckNotFound, 实际 %v", err)
	}
}

func TestBottleneckDetector_CustomThresholds(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	detector := newTestDetector(t, db, ai.NoopSuggester{},
		WithSeverityThresholds(SeverityThresholds{Medium: 1.1, High: 1.2, Critical: 1.3}))

	seedStuckInstance(t, db, 36) // 1.5x，在自定义阈值下已是 critical

	alerts, err := detector.Detect(ctx, "")
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	if alerts[0].Severity != SeverityCritical {
		t.Fatalf("自定义阈值应生效, 实际 %s", alerts[0].Severity)
	}
}
