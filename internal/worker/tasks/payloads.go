package tasks

// Task Types
const (
	TypeDetectBottlenecks = "workflow:detect_bottlenecks"
	TypeCheckSLA          = "workflow:check_sla"
)

// DetectBottlenecksPayload 瓶颈扫描任务载荷
// PodID 为空时扫描全部活跃实例
type DetectBottlenecksPayload struct {
	PodID string `json:"pod_id,omitempty"`
}

// CheckSLAPayload SLA 检查任务载荷
type CheckSLAPayload struct {
	InstanceID string `json:"instance_id"`
}
