package workflow

import "time"

// ComputeSLADeadline 计算实例的整体 SLA 截止时间：
// 从开始时间累加模板中所有阶段的预期时长（宽松上界，不是逐阶段承诺）。
// 模板总时长为零时返回 nil，表示不设 SLA。
func ComputeSLADeadline(t *WorkflowTemplate, startedAt time.Time) *time.Time {
	var totalHours float64
	for _, s := range t.Graph.Stages {
		if s.ExpectedDurationHours > 0 {
			totalHours += s.ExpectedDurationHours
		}
	}
	if totalHours <= 0 {
		return nil
	}
	deadline := startedAt.Add(time.Duration(totalHours * float64(time.Hour)))
	return &deadline
}
