package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// InstanceStatus 工作流实例状态
type InstanceStatus string

const (
	InstanceStatusActive    InstanceStatus = "active"
	InstanceStatusPaused    InstanceStatus = "paused"
	InstanceStatusCompleted InstanceStatus = "completed"
	InstanceStatusCancelled InstanceStatus = "cancelled"
)

// Severity 瓶颈严重等级
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// BottleneckStatus 瓶颈告警状态
type BottleneckStatus string

const (
	BottleneckStatusOpen     BottleneckStatus = "open"
	BottleneckStatusResolved BottleneckStatus = "resolved"
)

// Stage 模板中的阶段定义
type Stage struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	Order                 int     `json:"order"`
	ExpectedDurationHours float64 `json:"expectedDurationHours"`
	IsInitial             bool    `json:"isInitial,omitempty"`
	IsTerminal            bool    `json:"isTerminal,omitempty"`
}

// Transition 阶段之间的有向转移边
// Condition 为可选的 govaluate 守卫表达式，如 "score >= 80"，
// 对实例上下文求值通过后转移才合法。
type Transition struct {
	FromStageID string `json:"fromStageId"`
	ToStageID   string `json:"toStageId"`
	Condition   string `json:"condition,omitempty"`
}

// StageGraph 模板的阶段图（阶段列表 + 转移集合），以 JSONB 整体存储
type StageGraph struct {
	Stages      []Stage      `json:"stages"`
	Transitions []Transition `json:"transitions"`
}

// Value 实现 driver.Valuer 接口，用于 GORM 存储 JSONB
func (g StageGraph) Value() (driver.Value, error) {
	return json.Marshal(g)
}

// Scan 实现 sql.Scanner 接口，用于 GORM 读取 JSONB
func (g *StageGraph) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		if s, sok := value.(string); sok {
			bytes = []byte(s)
		} else {
			return errors.New("type assertion to []byte failed")
		}
	}
	return json.Unmarshal(bytes, g)
}

// WorkflowTemplate 工作流模板（只读目录数据）
type WorkflowTemplate struct {
	ID          string `json:"id" gorm:"primaryKey;type:uuid"`
	Code        string `json:"code" gorm:"size:100;not null;uniqueIndex"`
	Name        string `json:"name" gorm:"size:255;not null"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"size:50;not null;default:custom"` // recruiting, onboarding, approval_chain, bench_sales, custom

	// 阶段图（结构化）
	Graph StageGraph `json:"graph" gorm:"type:jsonb;not null"`

	IsActive bool `json:"isActive" gorm:"not null;default:true"`
	IsSystem bool `json:"isSystem" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// Stage 按 ID 查找阶段定义，未找到时返回 nil
func (t *WorkflowTemplate) Stage(stageID string) *Stage {
	for i := range t.Graph.Stages {
		if t.Graph.Stages[i].ID == stageID {
			return &t.Graph.Stages[i]
		}
	}
	return nil
}

// IsTerminal 判断指定阶段是否为终止阶段
func (t *WorkflowTemplate) IsTerminal(stageID string) bool {
	s := t.Stage(stageID)
	return s != nil && s.IsTerminal
}

// LegalTransitions 返回指定阶段的所有合法目标阶段 ID
func (t *WorkflowTemplate) LegalTransitions(fromStageID string) []string {
	var targets []string
	for _, tr := range t.Graph.Transitions {
		if tr.FromStageID == fromStageID {
			targets = append(targets, tr.ToStageID)
		}
	}
	return targets
}

// WorkflowInstance 工作流实例
// Version 用于乐观并发控制：条件更新必须携带读取时的版本号。
type WorkflowInstance struct {
	ID           string `json:"id" gorm:"primaryKey;type:uuid"`
	TemplateID   string `json:"templateId" gorm:"type:uuid;not null;index"`
	TemplateCode string `json:"templateCode" gorm:"size:100;not null;index"`
	Name         string `json:"name" gorm:"size:255;not null"`

	// 关联的业务对象
	ObjectType string `json:"objectType" gorm:"size:50;not null;index"`
	ObjectID   string `json:"objectId" gorm:"size:100;not null;index"`

	OwnerID       string  `json:"ownerId,omitempty" gorm:"size:100"`
	AssignedPodID *string `json:"assignedPodId,omitempty" gorm:"type:uuid;index"`

	CurrentStageID  string         `json:"currentStageId" gorm:"size:100;not null"`
	Status          InstanceStatus `json:"status" gorm:"size:20;not null;default:active;index"`
	StagesCompleted int            `json:"stagesCompleted" gorm:"not null;default:0"`
	TotalStages     int            `json:"totalStages" gorm:"not null;default:0"`

	// 实例上下文（守卫表达式的求值环境）
	ContextData map[string]any `json:"contextData" gorm:"type:jsonb;serializer:json"`

	StageEnteredAt time.Time  `json:"stageEnteredAt" gorm:"not null"`
	SLADeadline    *time.Time `json:"slaDeadline,omitempty"`
	IsOverdue      bool       `json:"isOverdue" gorm:"not null;default:false"`

	Version int `json:"version" gorm:"not null;default:0"`

	StartedAt   time.Time  `json:"startedAt" gorm:"not null"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	PausedAt    *time.Time `json:"pausedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// CompletionPercentage 当前完成百分比
func (i *WorkflowInstance) CompletionPercentage() int {
	if i.TotalStages <= 0 {
		return 0
	}
	pct := i.StagesCompleted * 100 / i.TotalStages
	if pct > 100 {
		pct = 100
	}
	return pct
}

// Bottleneck 瓶颈告警
// 同一实例最多存在一条 open 状态的记录（部分唯一索引保证）。
type Bottleneck struct {
	ID         string  `json:"id" gorm:"primaryKey;type:uuid"`
	InstanceID string  `json:"instanceId" gorm:"type:uuid;not null;index:idx_bottleneck_open_instance,unique,where:status = 'open'"`
	PodID      *string `json:"podId,omitempty" gorm:"type:uuid;index"`

	StageID      string   `json:"stageId" gorm:"size:100;not null"`
	StuckHours   float64  `json:"stuckHours" gorm:"not null"`
	OverrunRatio float64  `json:"overrunRatio" gorm:"not null"`
	Severity     Severity `json:"severity" gorm:"size:20;not null"`

	AISuggestion *string `json:"aiSuggestion,omitempty" gorm:"type:text"`

	Status     BottleneckStatus `json:"status" gorm:"size:20;not null;default:open"`
	DetectedAt time.Time        `json:"detectedAt" gorm:"not null"`
	ResolvedAt *time.Time       `json:"resolvedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// Pod 执行小组（引擎只读，生命周期由外部维护）
type Pod struct {
	ID   string `json:"id" gorm:"primaryKey;type:uuid"`
	Name string `json:"name" gorm:"size:255;not null"`
	Type string `json:"type" gorm:"size:50"` // recruiting, bench_sales, sourcing

	// 专长标签（技术栈、技能关键词）
	Specializations datatypes.JSONSlice[string] `json:"specializations" gorm:"type:jsonb"`

	// 当前负载（活跃实例数，由分配方维护）
	CurrentActiveCount int  `json:"currentActiveCount" gorm:"not null;default:0"`
	IsActive           bool `json:"isActive" gorm:"not null;default:true;index"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// PodMember 小组成员，仅用于分配后的站内通知
type PodMember struct {
	ID       uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	PodID    string `json:"podId" gorm:"type:uuid;not null;index"`
	UserID   string `json:"userId" gorm:"size:100;not null"`
	IsActive bool   `json:"isActive" gorm:"not null;default:true"`
}

// StageHistory 阶段转移历史
type StageHistory struct {
	ID         uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	InstanceID string  `json:"instanceId" gorm:"type:uuid;not null;index"`
	FromStage  *string `json:"fromStage,omitempty" gorm:"size:100"`
	ToStage    string  `json:"toStage" gorm:"size:100;not null"`

	TransitionedBy string `json:"transitionedBy" gorm:"size:100"`
	Reason         string `json:"reason" gorm:"type:text"`

	// 在上一阶段停留的小时数（首次进入时为 nil）
	DurationHours *float64 `json:"durationHours,omitempty"`

	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime;index"`
}

// TableName 指定表名
func (WorkflowTemplate) TableName() string { return "workflow_templates" }

// TableName 指定表名
func (WorkflowInstance) TableName() string { return "workflow_instances" }

// TableName 指定表名
func (Bottleneck) TableName() string { return "bottleneck_alerts" }

// TableName 指定表名
func (Pod) TableName() string { return "pods" }

// TableName 指定表名
func (PodMember) TableName() string { return "pod_members" }

// TableName 指定表名
func (StageHistory) TableName() string { return "workflow_stage_history" }
