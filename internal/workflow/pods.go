package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"opshub/internal/common"

	"gorm.io/gorm"
)

// PodRequirements 业务对象对执行小组的要求
type PodRequirements struct {
	Skills  []string `json:"skills"`
	JobType string   `json:"jobType,omitempty"`
}

// PodScore 单个候选小组的打分结果
type PodScore struct {
	PodID        string  `json:"podId"`
	PodName      string  `json:"podName"`
	Score        float64 `json:"score"`
	SkillOverlap float64 `json:"skillOverlap"`
	Load         int     `json:"load"`
}

// ScoreWeights 打分权重（可调参数，非硬性契约）
type ScoreWeights struct {
	Skill float64
	Load  float64
}

// DefaultScoreWeights 默认打分权重
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Skill: 0.7, Load: 0.3}
}

// PodDirectory 小组目录（引擎只读）
type PodDirectory interface {
	// ListActive 列出所有启用中的小组
	ListActive(ctx context.Context) ([]*Pod, error)

	// Get 按 ID 查询小组
	Get(ctx context.Context, id string) (*Pod, error)

	// ActiveMembers 列出小组的活跃成员用户 ID（用于分配通知）
	ActiveMembers(ctx context.Context, podID string) ([]string, error)
}

// GormPodDirectory PodDirectory 的 GORM 实现
type GormPodDirectory struct {
	db *gorm.DB
}

// NewGormPodDirectory 创建 GormPodDirectory 实例
func NewGormPodDirectory(db *gorm.DB) *GormPodDirectory {
	return &GormPodDirectory{db: db}
}

// ListActive 列出启用中的小组
func (d *GormPodDirectory) ListActive(ctx context.Context) ([]*Pod, error) {
	var pods []*Pod
	err := d.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&pods).Error
	if err != nil {
		return nil, fmt.Errorf("查询执行小组失败: %w", err)
	}
	return pods, nil
}

// ListActivePage 分页列出启用中的小组（供查询接口使用，引擎打分仍取全量）
func (d *GormPodDirectory) ListActivePage(ctx context.Context, req *common.PaginationRequest) ([]*Pod, int64, error) {
	query := d.db.WithContext(ctx).
		Model(&Pod{}).
		Where("is_active = ?", true)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计执行小组失败: %w", err)
	}

	var pods []*Pod
	err := query.
		Order("id ASC").
		Scopes(common.Paginate(req)).
		Find(&pods).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询执行小组失败: %w", err)
	}
	return pods, total, nil
}

// Get 按 ID 查询小组
func (d *GormPodDirectory) Get(ctx context.Context, id string) (*Pod, error) {
	var pod Pod
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&pod).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("执行小组不存在: %s", id)
		}
		return nil, fmt.Errorf("查询执行小组失败: %w", err)
	}
	return &pod, nil
}

// ActiveMembers 列出小组活跃成员
func (d *GormPodDirectory) ActiveMembers(ctx context.Context, podID string) ([]string, error) {
	var members []PodMember
	err := d.db.WithContext(ctx).
		Where("pod_id = ? AND is_active = ?", podID, true).
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("查询小组成员失败: %w", err)
	}
	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	return userIDs, nil
}

// ScorePods 对候选小组打分并按优先级排序。
//
// score = skillOverlap * weights.Skill - normalizedLoad * weights.Load
//   - skillOverlap = 命中技能数 / 要求技能数（未指定技能时为 0，退化为纯负载排序）
//   - normalizedLoad = 小组负载 / 候选中的最大负载（只有一个候选或最大负载为 0 时为 0）
//
// 并列时先取负载低者，再按小组 ID 升序，保证结果可复现。
func ScorePods(pods []*Pod, req *PodRequirements, weights ScoreWeights) []PodScore {
	if len(pods) == 0 {
		return nil
	}

	maxLoad := 0
	for _, p := range pods {
		if p.CurrentActiveCount > maxLoad {
			maxLoad = p.CurrentActiveCount
		}
	}

	scores := make([]PodScore, 0, len(pods))
	for _, p := range pods {
		overlap := skillOverlap(p.Specializations, req)

		normalizedLoad := 0.0
		if len(pods) > 1 && maxLoad > 0 {
			normalizedLoad = float64(p.CurrentActiveCount) / float64(maxLoad)
		}

		scores = append(scores, PodScore{
			PodID:        p.ID,
			PodName:      p.Name,
			Score:        overlap*weights.Skill - normalizedLoad*weights.Load,
			SkillOverlap: overlap,
			Load:         p.CurrentActiveCount,
		})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		if scores[i].Load != scores[j].Load {
			return scores[i].Load < scores[j].Load
		}
		return scores[i].PodID < scores[j].PodID
	})
	return scores
}

// skillOverlap 计算技能命中比例，匹配不区分大小写
func skillOverlap(specializations []string, req *PodRequirements) float64 {
	if req == nil || len(req.Skills) == 0 {
		return 0
	}

	have := make(map[string]bool, len(specializations))
	for _, s := range specializations {
		have[strings.ToLower(strings.TrimSpace(s))] = true
	}

	hits := 0
	for _, skill := range req.Skills {
		if have[strings.ToLower(strings.TrimSpace(skill))] {
			hits++
		}
	}
	return float64(hits) / float64(len(req.Skills))
}
