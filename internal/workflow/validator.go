package workflow

import (
	"fmt"

	"github.com/Knetic/govaluate"
)

// TransitionResult 转移校验结果
type TransitionResult struct {
	// ToTerminal 目标阶段是否为终止阶段（调用方据此决定是否标记实例完成）
	ToTerminal bool
}

// ValidateTransition 校验从 fromStageID 到 toStageID 的阶段转移。
//
// 规则：
//   - 转移必须出现在模板的转移集合中；同一阶段允许多条出边（分支流程），
//     命中任意一条即合法，校验器不强制唯一的"下一阶段"。
//   - 自环（from == to）一律拒绝。
//   - 已处于终止阶段的实例不允许再转移。
//   - 边上的守卫表达式（govaluate）对实例上下文求值，结果必须为真。
//
// 不合法时返回包装了 ErrInvalidTransition 的错误，调用方不做任何自动纠正。
func ValidateTransition(t *WorkflowTemplate, fromStageID, toStageID string, contextData map[string]any) (*TransitionResult, error) {
	from := t.Stage(fromStageID)
	if from == nil {
		return nil, fmt.Errorf("%w: 当前阶段 %s 不在模板 %s 中", ErrInvalidTransition, fromStageID, t.Code)
	}
	if from.IsTerminal {
		return nil, fmt.Errorf("%w: 阶段 %s 已是终止阶段", ErrInvalidTransition, fromStageID)
	}
	if fromStageID == toStageID {
		return nil, fmt.Errorf("%w: 不允许停留在原阶段 %s", ErrInvalidTransition, fromStageID)
	}

	to := t.Stage(toStageID)
	if to == nil {
		return nil, fmt.Errorf("%w: 目标阶段 %s 不在模板 %s 中", ErrInvalidTransition, toStageID, t.Code)
	}

	edge := findEdge(t, fromStageID, toStageID)
	if edge == nil {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, fromStageID, toStageID)
	}

	if edge.Condition != "" {
		ok, err := evaluateGuard(edge.Condition, contextData)
		if err != nil {
			return nil, fmt.Errorf("%w: 守卫表达式求值失败 (%s -> %s): %v",
				ErrInvalidTransition, fromStageID, toStageID, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: 守卫条件不满足 (%s -> %s): %s",
				ErrInvalidTransition, fromStageID, toStageID, edge.Condition)
		}
	}

	return &TransitionResult{ToTerminal: to.IsTerminal}, nil
}

// findEdge 在转移集合中查找指定的边
func findEdge(t *WorkflowTemplate, from, to string) *Transition {
	for i := range t.Graph.Transitions {
		tr := &t.Graph.Transitions[i]
		if tr.FromStageID == from && tr.ToStageID == to {
			return tr
		}
	}
	return nil
}

// evaluateGuard 对实例上下文求值守卫表达式
func evaluateGuard(expression string, contextData map[string]any) (bool, error) {
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return false, fmt.Errorf("表达式语法错误: %w", err)
	}

	params := contextData
	if params == nil {
		params = map[string]any{}
	}

	result, err := expr.Evaluate(params)
	if err != nil {
		return false, err
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, fmt.Errorf("表达式结果不是布尔值: %v", result)
	}
	return ok, nil
}
