package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// BottleneckSummary 瓶颈结构化摘要，作为建议生成的输入
type BottleneckSummary struct {
	ObjectType    string  `json:"object_type"`
	StageID       string  `json:"stage_id"`
	StageName     string  `json:"stage_name"`
	ElapsedHours  float64 `json:"elapsed_hours"`
	ExpectedHours float64 `json:"expected_hours"`
	Severity      string  `json:"severity"`
	PodName       string  `json:"pod_name,omitempty"`
}

// Suggester 瓶颈整改建议服务。实现必须在调用方給定的 ctx 截止时间内返回；
// 任何错误都由调用方降级处理，不会中断瓶颈扫描。
type Suggester interface {
	SuggestBottleneckFix(ctx context.Context, summary *BottleneckSummary) (string, error)
}

const systemPrompt = "You are a workflow optimization expert. Provide specific, actionable suggestions to resolve workflow bottlenecks."

// OpenAISuggester 基于 OpenAI 对话补全的 Suggester 实现
type OpenAISuggester struct {
	client     *openai.Client
	model      string
	maxRetries int
}

// Config OpenAI 客户端配置
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

// NewOpenAISuggester 创建 OpenAISuggester
func NewOpenAISuggester(cfg Config) (*OpenAISuggester, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API Key 不能为空")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}

	return &OpenAISuggester{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

// SuggestBottleneckFix 生成瓶颈整改建议
func (s *OpenAISuggester) SuggestBottleneckFix(ctx context.Context, summary *BottleneckSummary) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(summary)},
		},
		MaxTokens: 300,
	}

	// 带重试调用，重试间隔指数退避，但始终受 ctx 截止时间约束
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= s.maxRetries; i++ {
		resp, err = s.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if i < s.maxRetries {
			backoff := time.Duration(1<<uint(i)) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("调用建议服务失败: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("建议服务返回空响应")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildPrompt 将结构化摘要拼装为提示词
func buildPrompt(s *BottleneckSummary) string {
	var b strings.Builder
	b.WriteString("Workflow bottleneck detected:\n")
	fmt.Fprintf(&b, "- Object type: %s\n", s.ObjectType)
	fmt.Fprintf(&b, "- Stuck in stage: %s (%s)\n", s.StageName, s.StageID)
	fmt.Fprintf(&b, "- Elapsed: %.1f hours (expected %.1f hours)\n", s.ElapsedHours, s.ExpectedHours)
	fmt.Fprintf(&b, "- Severity: %s\n", s.Severity)
	if s.PodName != "" {
		fmt.Fprintf(&b, "- Assigned pod: %s\n", s.PodName)
	} else {
		b.WriteString("- Assigned pod: Unassigned\n")
	}
	b.WriteString("\nAnalyze this bottleneck and suggest a specific action to resolve it. ")
	b.WriteString("Consider: resource allocation, task reassignment, process optimization. ")
	b.WriteString("Be concise and actionable.")
	return b.String()
}

// NoopSuggester 未配置 API Key 时的空实现，扫描会以无建议的方式降级
type NoopSuggester struct{}

// SuggestBottleneckFix 固定返回未启用错误
func (NoopSuggester) SuggestBottleneckFix(ctx context.Context, summary *BottleneckSummary) (string, error) {
	return "", fmt.Errorf("建议服务未启用")
}
