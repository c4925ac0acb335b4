package workflow

import "errors"

// 引擎错误分类。结构性错误原样上抛，调用方据此映射 HTTP 状态码；
// 只有 AI 建议调用允许静默降级（见 bottleneck.go）。
var (
	// ErrTemplateNotFound 模板编码不存在或未启用
	ErrTemplateNotFound = errors.New("工作流模板不存在")

	// ErrInstanceNotFound 实例 ID 不存在
	ErrInstanceNotFound = errors.New("工作流实例不存在")

	// ErrInvalidTransition 请求的阶段转移不在模板转移图中，或实例已到终止阶段
	ErrInvalidTransition = errors.New("非法的阶段转移")

	// ErrInstanceNotActive 实例不处于 active 状态，无法推进
	ErrInstanceNotActive = errors.New("工作流实例未处于活跃状态")

	// ErrNoPodsAvailable 候选小组池为空
	ErrNoPodsAvailable = errors.New("没有可用的执行小组")

	// ErrConcurrentModification 乐观并发冲突：实例在读取后被其他请求修改
	ErrConcurrentModification = errors.New("工作流实例存在并发修改冲突")

	// ErrBottleneckNotFound 瓶颈告警不存在
	ErrBottleneckNotFound = errors.New("瓶颈告警不存在")
)
