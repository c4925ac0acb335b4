package workflow

import (
	"context"
	"math"
	"testing"

	"opshub/internal/common"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestScorePods_SkillOverlapBeatsLoad(t *testing.T) {
	// A 负载低但只会 Java；B 负载高但技能全覆盖
	pods := []*Pod{
		{ID: "pod-a", Name: "A", Specializations: datatypes.JSONSlice[string]{"Java"}, CurrentActiveCount: 1, IsActive: true},
		{ID: "pod-b", Name: "B", Specializations: datatypes.JSONSlice[string]{"Java", "Spring"}, CurrentActiveCount: 5, IsActive: true},
	}

	scores := ScorePods(pods, &PodRequirements{Skills: []string{"Java", "Spring"}}, DefaultScoreWeights())
	if len(scores) != 2 {
		t.Fatalf("应返回全部候选的打分, 实际 %d", len(scores))
	}

	if scores[0].PodID != "pod-b" {
		t.Fatalf("技能全覆盖的小组应胜出, 实际 %s", scores[0].PodID)
	}
	// B: 1.0*0.7 - 1.0*0.3 = 0.4; A: 0.5*0.7 - 0.2*0.3 = 0.29
	if math.Abs(scores[0].Score-0.4) > 1e-9 {
		t.Fatalf("pod-b 分数错误: 期望 0.4, 实际 %v", scores[0].Score)
	}
	if math.Abs(scores[1].Score-0.29) > 1e-9 {
		t.Fatalf("pod-a 分数错误: 期望 0.29, 实际 %v", scores[1].Score)
	}
}

func TestScorePods_NoSkillsFallsBackToLoad(t *testing.T) {
	pods := []*Pod{
		{ID: "pod-a", Name: "A", CurrentActiveCount: 8},
		{ID: "pod-b", Name: "B", CurrentActiveCount: 2},
	}

	scores := ScorePods(pods, &PodRequirements{}, DefaultScoreWeights())
	if scores[0].PodID != "pod-b" {
		t.Fatalf("未指定技能时应按负载排序, 实际 %s", scores[0].PodID)
	}
}

func TestScorePods_TieBreaksDeterministic(t *testing.T) {
	// 分数与负载全部相同，按小组 ID 升序
	pods := []*Pod{
		{ID: "pod-c", Name: "C", Specializations: datatypes.JSONSlice[string]{"Go"}, CurrentActiveCount: 3},
		{ID: "pod-a", Name: "A", Specializations: datatypes.JSONSlice[string]{"Go"}, CurrentActiveCount: 3},
		{ID: "pod-b", Name: "B", Specializations: datatypes.JSONSlice[string]{"Go"}, CurrentActiveCount: 3},
	}

	for i := 0; i < 5; i++ {
		scores := ScorePods(pods, &PodRequirements{Skills: []string{"Go"}}, DefaultScoreWeights())
		if scores[0].PodID != "pod-a" || scores[1].PodID != "pod-b" || scores[2].PodID != "pod-c" {
			t.Fatalf("并列时应按 ID 升序保证可复现: %v %v %v",
				scores[0].PodID, scores[1].PodID, scores[2].PodID)
		}
	}
}

func TestScorePods_TiePrefersLowerLoad(t *testing.T) {
	// 技能命中相同，负载不同但归一化后分数接近的场景：
	// 单候选最大负载归一化会使两者分数相同时取负载低者
	pods := []*Pod{
		{ID: "pod-a", Name: "A", Specializations: datatypes.JSONSlice[string]{"Go"}, CurrentActiveCount: 0},
		{ID: "pod-b", Name: "B", Specializations: datatypes.JSONSlice[string]{"Go"}, CurrentActiveCount: 0},
	}
	scores := ScorePods(pods, &PodRequirements{Skills: []string{"Go"}}, DefaultScoreWeights())
	if scores[0].PodID != "pod-a" {
		t.Fatalf("同分同负载时按 ID 升序, 实际 %s", scores[0].PodID)
	}
}

func TestScorePods_CaseInsensitiveSkillMatch(t *testing.T) {
	pods := []*Pod{
		{ID: "pod-a", Name: "A", Specializations: datatypes.JSONSlice[string]{"java", " spring "}, CurrentActiveCount: 0},
	}

	scores := ScorePods(pods, &PodRequirements{Skills: []string{"Java", "Spring"}}, DefaultScoreWeights())
	if scores[0].SkillOverlap != 1.0 {
		t.Fatalf("技能匹配应忽略大小写与空白: 实际命中率 %v", scores[0].SkillOverlap)
	}
}

func TestScorePods_EmptyCandidates(t *testing.T) {
	if scores := ScorePods(nil, &PodRequirements{Skills: []string{"Go"}}, DefaultScoreWeights()); scores != nil {
		t.Fatalf("空候选池应返回 nil")
	}
}

func TestGormPodDirectory_ListActivePage(t *testing.T) {
	db := setupWorkflowTestDB(t)
	directory := NewGormPodDirectory(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Pod{ID: "pod-a", Name: "A组", IsActive: true}).Error)
	require.NoError(t, db.Create(&Pod{ID: "pod-b", Name: "B组", IsActive: true}).Error)
	require.NoError(t, db.Create(&Pod{ID: "pod-c", Name: "C组", IsActive: false}).Error)

	pods, total, err := directory.ListActivePage(ctx, &common.PaginationRequest{Page: 1, PageSize: 1})
	require.NoError(t, err)
	if total != 2 {
		t.Fatalf("活跃小组总数应为 2, 实际 %d", total)
	}
	if len(pods) != 1 || pods[0].ID != "pod-a" {
		t.Fatalf("第一页应只含 ID 最小的活跃小组, 实际 %+v", pods)
	}

	pods, _, err = directory.ListActivePage(ctx, &common.PaginationRequest{Page: 2, PageSize: 1})
	require.NoError(t, err)
	if len(pods) != 1 || pods[0].ID != "pod-b" {
		t.Fatalf("第二页应为 pod-b, 实际 %+v", pods)
	}
}
