package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"opshub/internal/notification"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupWorkflowTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:workflow_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&WorkflowTemplate{},
		&WorkflowInstance{},
		&Bottleneck{},
		&Pod{},
		&PodMember{},
		&StageHistory{},
		&notification.Notification{},
	))
	return db
}

func TestTemplateCatalog_SeedAndGet(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	catalog := NewTemplateCatalog(db)

	require.NoError(t, catalog.SeedSystemTemplates(ctx))

	tpl, err := catalog.GetTemplate(ctx, TemplateCodeRecruiting)
	require.NoError(t, err)
	if len(tpl.Graph.Stages) != 4 {
		t.Fatalf("标准招聘流程应有 4 个阶段, 实际 %d", len(tpl.Graph.Stages))
	}
	if !tpl.IsSystem || !tpl.IsActive {
		t.Fatalf("系统模板应为启用状态")
	}

	// 重复播种不应报错，也不应产生重复行
	require.NoError(t, catalog.SeedSystemTemplates(ctx))
	var count int64
	require.NoError(t, db.Model(&WorkflowTemplate{}).Where("code = ?", TemplateCodeRecruiting).Count(&count).Error)
	if count != 1 {
		t.Fatalf("重复播种应跳过已存在模板, 实际 %d 行", count)
	}
}

func TestTemplateCatalog_GetTemplateNotFound(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	catalog := NewTemplateCatalog(db)

	_, err := catalog.GetTemplate(ctx, "nonexistent")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("不存在的模板应返回 ErrTemplateNotFound, 实际 %v", err)
	}
}

func TestTemplateCatalog_InactiveTemplateHidden(t *testing.T) {
	ctx := context.Background()
	db := setupWorkflowTestDB(t)
	catalog := NewTemplateCatalog(db)

	tpl := recruitingTemplate()
	tpl.IsActive = false
	require.NoError(t, db.Create(tpl).Error)

	if _, err := catalog.GetTemplate(ctx, tpl.Code); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("停用模板不应可见, 实际 %v", err)
	}
}

func TestEntryStage_NoIncomingEdge(t *testing.T) {
	tpl := &WorkflowTemplate{
		Code: "linear",
		Graph: StageGraph{
			Stages: []Stage{
				{ID: "start", Order: 1},
				{ID: "mid", Order: 2},
				{ID: "end", Order: 3, IsTerminal: true},
			},
			Transitions: []Transition{
				{FromStageID: "start", ToStageID: "mid"},
				{FromStageID: "mid", ToStageID: "end"},
			},
		},
	}

	entry, err := EntryStage(tpl)
	require.NoError(t, err)
	if entry.ID != "start" {
		t.Fatalf("入口阶段应是没有入边的阶段, 实际 %s", entry.ID)
	}
}

func TestEntryStage_FallbackToInitialFlag(t *testing.T) {
	// 回退边让所有阶段都有入边，此时回退到 IsInitial 标记
	tpl := recruitingTemplate()

	entry, err := EntryStage(tpl)
	require.NoError(t, err)
	if entry.ID != "sourcing" {
		t.Fatalf("应回退到 IsInitial 标记的阶段, 实际 %s", entry.ID)
	}
}

func TestValidateGraph(t *testing.T) {
	t.Run("合法模板", func(t *testing.T) {
		for _, tpl := range systemTemplates() {
			if err := ValidateGraph(tpl); err != nil {
				t.Fatalf("系统模板 %s 应通过校验: %v", tpl.Code, err)
			}
		}
	})

	t.Run("重复阶段ID", func(t *testing.T) {
		tpl := recruitingTemplate()
		tpl.Graph.Stages = append(tpl.Graph.Stages, Stage{ID: "sourcing", Order: 9})
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("重复阶段 ID 应校验失败")
		}
	})

	t.Run("引用未定义阶段", func(t *testing.T) {
		tpl := recruitingTemplate()
		tpl.Graph.Transitions = append(tpl.Graph.Transitions, Transition{FromStageID: "sourcing", ToStageID: "ghost"})
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("引用未定义阶段的转移应校验失败")
		}
	})

	t.Run("自环", func(t *testing.T) {
		tpl := recruitingTemplate()
		tpl.Graph.Transitions = append(tpl.Graph.Transitions, Transition{FromStageID: "screening", ToStageID: "screening"})
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("自环转移应校验失败")
		}
	})

	t.Run("非终止阶段无出边", func(t *testing.T) {
		tpl := &WorkflowTemplate{
			Code: "dead_end",
			Graph: StageGraph{
				Stages: []Stage{
					{ID: "a", Order: 1},
					{ID: "b", Order: 2}, // 非终止但没有出边
				},
				Transitions: []Transition{
					{FromStageID: "a", ToStageID: "b"},
				},
			},
		}
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("非终止阶段没有出边应校验失败")
		}
	})

	t.Run("退回边图缺少IsInitial标记", func(t *testing.T) {
		// 退回边让每个阶段都有入边，入口只能靠 IsInitial 确定
		tpl := recruitingTemplate()
		for i := range tpl.Graph.Stages {
			tpl.Graph.Stages[i].IsInitial = false
		}
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("无零入边阶段且无 IsInitial 标记应校验失败")
		}
	})

	t.Run("退回边图存在多个IsInitial标记", func(t *testing.T) {
		tpl := recruitingTemplate()
		for i := range tpl.Graph.Stages {
			if tpl.Graph.Stages[i].ID == "screening" {
				tpl.Graph.Stages[i].IsInitial = true
			}
		}
		if err := ValidateGraph(tpl); err == nil {
			t.Fatalf("多个 IsInitial 标记应校验失败")
		}
	})

	t.Run("空模板", func(t *testing.T) {
		if err := ValidateGraph(&WorkflowTemplate{Code: "empty"}); err == nil {
			t.Fatalf("空阶段图应校验失败")
		}
	})
}
