package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API 指标
var (
	// APIRequestsTotal API 请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_api_requests_total",
			Help: "API 请求总数",
		},
		[]string{"method", "path", "status"},
	)

	// APIRequestDuration API 请求延迟（秒）
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "opshub_api_request_duration_seconds",
			Help:    "API 请求延迟分布",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// 工作流引擎指标
var (
	// WorkflowInstancesStarted 启动的工作流实例总数
	WorkflowInstancesStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_workflow_instances_started_total",
			Help: "启动的工作流实例总数",
		},
		[]string{"template_code", "object_type"},
	)

	// StageTransitionsTotal 阶段转移总数（含失败）
	StageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_workflow_stage_transitions_total",
			Help: "阶段转移总数",
		},
		[]string{"template_code", "result"}, // result: ok, invalid, conflict
	)

	// InstancesCompleted 完成的工作流实例总数
	InstancesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_workflow_instances_completed_total",
			Help: "到达终止阶段的实例总数",
		},
		[]string{"template_code"},
	)

	// BottlenecksDetected 检出的瓶颈总数
	BottlenecksDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_workflow_bottlenecks_detected_total",
			Help: "检出的瓶颈总数",
		},
		[]string{"severity"},
	)

	// BottleneckSweepDuration 瓶颈扫描耗时（秒）
	BottleneckSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opshub_workflow_bottleneck_sweep_duration_seconds",
			Help:    "瓶颈扫描耗时分布",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// SuggestionFailures AI 建议调用失败总数（降级为无建议）
	SuggestionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opshub_workflow_suggestion_failures_total",
			Help: "AI 建议调用失败总数",
		},
	)

	// PodAssignmentsTotal 小组分配总数
	PodAssignmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opshub_workflow_pod_assignments_total",
			Help: "小组分配总数",
		},
		[]string{"mode"}, // mode: explicit, best_fit
	)
)
