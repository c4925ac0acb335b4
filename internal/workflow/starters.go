package workflow

import "context"

// 常用模板的便捷启动入口，封装模板编码与对象类型约定

// StartRecruitingWorkflow 启动标准招聘流程
func (e *Engine) StartRecruitingWorkflow(ctx context.Context, candidateID, ownerID, podID string, contextData map[string]any) (*WorkflowInstance, error) {
	return e.StartWorkflow(ctx, &StartWorkflowRequest{
		TemplateCode:  TemplateCodeRecruiting,
		ObjectType:    "candidate",
		ObjectID:      candidateID,
		OwnerID:       ownerID,
		AssignedPodID: podID,
		ContextData:   contextData,
	})
}

// StartOnboardingWorkflow 启动员工入职流程
func (e *Engine) StartOnboardingWorkflow(ctx context.Context, employeeID, ownerID string, contextData map[string]any) (*WorkflowInstance, error) {
	return e.StartWorkflow(ctx, &StartWorkflowRequest{
		TemplateCode: TemplateCodeOnboarding,
		ObjectType:   "employee",
		ObjectID:     employeeID,
		OwnerID:      ownerID,
		ContextData:  contextData,
	})
}

// StartApprovalWorkflow 启动审批链流程
func (e *Engine) StartApprovalWorkflow(ctx context.Context, requestID, ownerID string, contextData map[string]any) (*WorkflowInstance, error) {
	return e.StartWorkflow(ctx, &StartWorkflowRequest{
		TemplateCode: TemplateCodeApproval,
		ObjectType:   "approval_request",
		ObjectID:     requestID,
		OwnerID:      ownerID,
		ContextData:  contextData,
	})
}
