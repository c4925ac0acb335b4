package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"opshub/internal/config"
	"opshub/internal/worker/handlers"
	"opshub/internal/worker/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Server struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    *zap.Logger
}

func NewServer(
	cfg config.RedisConfig,
	workflowCfg config.WorkflowConfig,
	detector handlers.BottleneckDetector,
	checker handlers.SLAChecker,
	logger *zap.Logger,
) (*Server, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10, // 并发 worker 数
			Queues: map[string]int{
				"workflow": 6,
				"default":  1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("任务执行失败",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
		},
	)

	mux := asynq.NewServeMux()

	// 注册瓶颈扫描与 SLA 检查处理器
	bottleneckHandler := handlers.NewBottleneckHandler(detector, checker, logger)
	mux.HandleFunc(tasks.TypeDetectBottlenecks, bottleneckHandler.HandleDetectBottlenecks)
	mux.HandleFunc(tasks.TypeCheckSLA, bottleneckHandler.HandleCheckSLA)

	// 周期性全量瓶颈扫描
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Error("周期任务入队失败", zap.Error(err))
			}
		},
	})

	payload, err := json.Marshal(tasks.DetectBottlenecksPayload{})
	if err != nil {
		return nil, fmt.Errorf("marshal payload failed: %w", err)
	}
	interval := workflowCfg.SweepIntervalDuration()
	_, err = scheduler.Register(
		fmt.Sprintf("@every %s", interval),
		asynq.NewTask(tasks.TypeDetectBottlenecks, payload),
		asynq.Queue("workflow"),
	)
	if err != nil {
		return nil, fmt.Errorf("注册周期性瓶颈扫描失败: %w", err)
	}
	logger.Info("周期性瓶颈扫描已注册", zap.Duration("interval", interval))

	return &Server{
		server:    srv,
		scheduler: scheduler,
		mux:       mux,
		logger:    logger,
	}, nil
}

// Run 启动 Worker 服务器（阻塞）
func (s *Server) Run() error {
	s.logger.Info("Worker 服务器启动中...")
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("启动调度器失败: %w", err)
	}
	return s.server.Run(s.mux)
}

// Start 非阻塞启动
func (s *Server) Start() error {
	s.logger.Info("Worker 服务器启动中 (后台)...")
	if err := s.scheduler.Start(); err != nil {
		return fmt.Errorf("启动调度器失败: %w", err)
	}
	return s.server.Start(s.mux)
}

// Shutdown 停止 Worker 服务器
func (s *Server) Shutdown() {
	s.logger.Info("Worker 服务器停止中...")
	s.scheduler.Shutdown()
	s.server.Shutdown()
}
