package workflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 系统内置模板编码
const (
	TemplateCodeRecruiting = "standard_recruiting"
	TemplateCodeOnboarding = "employee_onboarding"
	TemplateCodeApproval   = "approval_chain"
)

// TemplateCatalog 工作流模板目录（只读查询 + 系统模板播种）
type TemplateCatalog struct {
	db *gorm.DB
}

// NewTemplateCatalog 创建 TemplateCatalog 实例
func NewTemplateCatalog(db *gorm.DB) *TemplateCatalog {
	return &TemplateCatalog{db: db}
}

// GetTemplate 按编码查询启用中的模板
func (c *TemplateCatalog) GetTemplate(ctx context.Context, code string) (*WorkflowTemplate, error) {
	var tpl WorkflowTemplate
	err := c.db.WithContext(ctx).
		Where("code = ? AND is_active = ?", code, true).
		First(&tpl).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, code)
		}
		return nil, fmt.Errorf("查询工作流模板失败: %w", err)
	}
	return &tpl, nil
}

// GetTemplateByID 按 ID 查询模板
func (c *TemplateCatalog) GetTemplateByID(ctx context.Context, id string) (*WorkflowTemplate, error) {
	var tpl WorkflowTemplate
	err := c.db.WithContext(ctx).Where("id = ?", id).First(&tpl).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
		}
		return nil, fmt.Errorf("查询工作流模板失败: %w", err)
	}
	return &tpl, nil
}

// EntryStage 返回模板的入口阶段：没有任何入边的阶段。
// 兼容旧模板：若找不到，退回 IsInitial 标记或顺序第一的阶段。
func EntryStage(t *WorkflowTemplate) (*Stage, error) {
	incoming := make(map[string]int)
	for _, tr := range t.Graph.Transitions {
		incoming[tr.ToStageID]++
	}

	var entry *Stage
	for i := range t.Graph.Stages {
		s := &t.Graph.Stages[i]
		if incoming[s.ID] == 0 && !s.IsTerminal {
			if entry != nil {
				return nil, fmt.Errorf("模板 %s 存在多个入口阶段: %s, %s", t.Code, entry.ID, s.ID)
			}
			entry = s
		}
	}
	if entry != nil {
		return entry, nil
	}

	for i := range t.Graph.Stages {
		if t.Graph.Stages[i].IsInitial {
			return &t.Graph.Stages[i], nil
		}
	}
	if len(t.Graph.Stages) > 0 {
		return &t.Graph.Stages[0], nil
	}
	return nil, fmt.Errorf("模板 %s 没有任何阶段", t.Code)
}

// ValidateGraph 校验阶段图不变量：
// 每个非终止阶段至少有一条出边，且恰好存在一个入口阶段。
func ValidateGraph(t *WorkflowTemplate) error {
	if len(t.Graph.Stages) == 0 {
		return fmt.Errorf("模板 %s 没有任何阶段", t.Code)
	}

	stageIDs := make(map[string]bool, len(t.Graph.Stages))
	for _, s := range t.Graph.Stages {
		if stageIDs[s.ID] {
			return fmt.Errorf("模板 %s 阶段 ID 重复: %s", t.Code, s.ID)
		}
		stageIDs[s.ID] = true
	}

	outgoing := make(map[string]int)
	for _, tr := range t.Graph.Transitions {
		if !stageIDs[tr.FromStageID] || !stageIDs[tr.ToStageID] {
			return fmt.Errorf("模板 %s 转移引用了未定义的阶段: %s -> %s", t.Code, tr.FromStageID, tr.ToStageID)
		}
		if tr.FromStageID == tr.ToStageID {
			return fmt.Errorf("模板 %s 不允许自环转移: %s", t.Code, tr.FromStageID)
		}
		outgoing[tr.FromStageID]++
	}

	for _, s := range t.Graph.Stages {
		if !s.IsTerminal && outgoing[s.ID] == 0 {
			return fmt.Errorf("模板 %s 非终止阶段 %s 没有出边", t.Code, s.ID)
		}
	}

	incoming := make(map[string]bool, len(t.Graph.Stages))
	for _, tr := range t.Graph.Transitions {
		incoming[tr.ToStageID] = true
	}
	var noIncoming []string
	for _, s := range t.Graph.Stages {
		if !incoming[s.ID] && !s.IsTerminal {
			noIncoming = append(noIncoming, s.ID)
		}
	}
	var initials []string
	for _, s := range t.Graph.Stages {
		if s.IsInitial {
			initials = append(initials, s.ID)
		}
	}
	switch {
	case len(noIncoming) > 1:
		return fmt.Errorf("模板 %s 存在多个入口阶段: %v", t.Code, noIncoming)
	case len(noIncoming) == 0:
		// 含退回边的图每个阶段都有入边，此时入口必须由唯一的 IsInitial 标记确定
		if len(initials) != 1 {
			return fmt.Errorf("模板 %s 无零入边阶段且 IsInitial 标记数为 %d，无法确定唯一入口", t.Code, len(initials))
		}
	}
	return nil
}

// SeedSystemTemplates 播种系统内置模板（存在时跳过）
func (c *TemplateCatalog) SeedSystemTemplates(ctx context.Context) error {
	for _, tpl := range systemTemplates() {
		if err := ValidateGraph(tpl); err != nil {
			return fmt.Errorf("系统模板校验失败: %w", err)
		}
		err := c.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "code"}},
				DoNothing: true,
			}).
			Create(tpl).Error
		if err != nil {
			return fmt.Errorf("播种系统模板 %s 失败: %w", tpl.Code, err)
		}
	}
	return nil
}

// systemTemplates 系统内置模板定义
func systemTemplates() []*WorkflowTemplate {
	return []*WorkflowTemplate{
		{
			ID:       uuid.New().String(),
			Code:     TemplateCodeRecruiting,
			Name:     "标准招聘流程",
			Category: "recruiting",
			IsActive: true,
			IsSystem: true,
			Graph: StageGraph{
				Stages: []Stage{
					{ID: "sourcing", Name: "寻访", Order: 1, ExpectedDurationHours: 48, IsInitial: true},
					{ID: "screening", Name: "筛选", Order: 2, ExpectedDurationHours: 24},
					{ID: "interviewing", Name: "面试", Order: 3, ExpectedDurationHours: 72},
					{ID: "placed", Name: "入职", Order: 4, ExpectedDurationHours: 24, IsTerminal: true},
				},
				Transitions: []Transition{
					{FromStageID: "sourcing", ToStageID: "screening"},
					{FromStageID: "screening", ToStageID: "interviewing"},
					{FromStageID: "screening", ToStageID: "sourcing"}, // 筛选不通过退回寻访
					{FromStageID: "interviewing", ToStageID: "placed"},
					{FromStageID: "interviewing", ToStageID: "screening"}, // 面试不通过退回筛选
				},
			},
		},
		{
			ID:       uuid.New().String(),
			Code:     TemplateCodeOnboarding,
			Name:     "员工入职流程",
			Category: "onboarding",
			IsActive: true,
			IsSystem: true,
			Graph: StageGraph{
				Stages: []Stage{
					{ID: "offer_accepted", Name: "接受Offer", Order: 1, ExpectedDurationHours: 24, IsInitial: true},
					{ID: "documentation", Name: "材料准备", Order: 2, ExpectedDurationHours: 48},
					{ID: "it_setup", Name: "账号与设备", Order: 3, ExpectedDurationHours: 24},
					{ID: "orientation", Name: "入职培训", Order: 4, ExpectedDurationHours: 40},
					{ID: "onboarded", Name: "完成入职", Order: 5, ExpectedDurationHours: 8, IsTerminal: true},
				},
				Transitions: []Transition{
					{FromStageID: "offer_accepted", ToStageID: "documentation"},
					{FromStageID: "documentation", ToStageID: "it_setup"},
					{FromStageID: "it_setup", ToStageID: "orientation"},
					{FromStageID: "orientation", ToStageID: "onboarded"},
				},
			},
		},
		{
			ID:       uuid.New().String(),
			Code:     TemplateCodeApproval,
			Name:     "审批链",
			Category: "approval_chain",
			IsActive: true,
			IsSystem: true,
			Graph: StageGraph{
				Stages: []Stage{
					{ID: "submitted", Name: "已提交", Order: 1, ExpectedDurationHours: 8, IsInitial: true},
					{ID: "manager_review", Name: "主管审批", Order: 2, ExpectedDurationHours: 24},
					{ID: "hr_review", Name: "HR审批", Order: 3, ExpectedDurationHours: 24},
					{ID: "approved", Name: "已通过", Order: 4, ExpectedDurationHours: 1, IsTerminal: true},
					{ID: "rejected", Name: "已驳回", Order: 5, ExpectedDurationHours: 1, IsTerminal: true},
				},
				Transitions: []Transition{
					{FromStageID: "submitted", ToStageID: "manager_review"},
					{FromStageID: "manager_review", ToStageID: "hr_review"},
					{FromStageID: "manager_review", ToStageID: "rejected"},
					{FromStageID: "hr_review", ToStageID: "approved"},
					{FromStageID: "hr_review", ToStageID: "rejected"},
				},
			},
		},
	}
}
