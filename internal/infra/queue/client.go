package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"opshub/internal/config"
	"opshub/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// Client 任务队列客户端接口
type Client interface {
	EnqueueDetectBottlenecks(podID string) error
	EnqueueCheckSLA(instanceID string) error
	Close() error
}

type asynqClient struct {
	client *asynq.Client
}

// NewClient 创建任务队列客户端
func NewClient(cfg config.RedisConfig) Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &asynqClient{client: client}
}

func (c *asynqClient) EnqueueDetectBottlenecks(podID string) error {
	payload, err := json.Marshal(tasks.DetectBottlenecksPayload{PodID: podID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeDetectBottlenecks, payload)

	// 扫描本身幂等（open 告警去重），重试安全
	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
		asynq.Queue("workflow"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) EnqueueCheckSLA(instanceID string) error {
	payload, err := json.Marshal(tasks.CheckSLAPayload{InstanceID: instanceID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(tasks.TypeCheckSLA, payload)

	_, err = c.client.Enqueue(task,
		asynq.MaxRetry(2),
		asynq.Timeout(time.Minute),
		asynq.Queue("workflow"),
	)
	if err != nil {
		return fmt.Errorf("enqueue task failed: %w", err)
	}
	return nil
}

func (c *asynqClient) Close() error {
	return c.client.Close()
}
