package api

import (
	"time"

	podHandlers "opshub/api/handlers/pods"
	workflowHandlers "opshub/api/handlers/workflows"
	"opshub/internal/ai"
	"opshub/internal/config"
	"opshub/internal/infra/queue"
	"opshub/internal/logger"
	"opshub/internal/notification"
	"opshub/internal/worker"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRouter 装配全部依赖并返回路由与 Worker 服务器
func SetupRouter(db *gorm.DB, cfg *config.Config) (*gin.Engine, *worker.Server, error) {
	// 领域组件
	catalog := workflow.NewTemplateCatalog(db)
	store := workflow.NewGormInstanceStore(db)
	pods := workflow.NewGormPodDirectory(db)
	history := workflow.NewHistoryService(db)
	notifications := notification.NewService(db)
	notifier := workflow.NewNotifier(notifications, pods, logger.Named("notifier"))

	suggester := buildSuggester(&cfg.AI.OpenAI)

	detector := workflow.NewBottleneckDetector(
		db, store, catalog, pods, suggester, logger.Named("bottleneck"),
		workflow.WithSeverityThresholds(workflow.SeverityThresholds{
			Medium:   cfg.Workflow.SeverityMediumRatio,
			High:     cfg.Workflow.SeverityHighRatio,
			Critical: cfg.Workflow.SeverityCriticalRatio,
		}),
		workflow.WithSuggestTimeout(time.Duration(cfg.Workflow.SuggestTimeoutSeconds)*time.Second),
		workflow.WithSuggestConcurrency(cfg.Workflow.SuggestConcurrency),
	)

	engine := workflow.NewEngine(
		catalog, store, pods, history, notifier, detector,
		logger.Named("engine"),
		workflow.WithScoreWeights(workflow.ScoreWeights{
			Skill: cfg.Workflow.SkillWeight,
			Load:  cfg.Workflow.LoadWeight,
		}),
	)

	queueClient := queue.NewClient(cfg.Redis)

	// Worker 服务器（engine 同时实现检测与 SLA 检查）
	workerServer, err := worker.NewServer(cfg.Redis, cfg.Workflow, engine, engine, logger.Named("worker"))
	if err != nil {
		return nil, nil, err
	}

	weights := workflow.ScoreWeights{
		Skill: cfg.Workflow.SkillWeight,
		Load:  cfg.Workflow.LoadWeight,
	}

	handlers := &Handlers{
		Instance:   workflowHandlers.NewInstanceHandler(engine, queueClient),
		Bottleneck: workflowHandlers.NewBottleneckHandler(engine, queueClient),
		Pod:        podHandlers.NewPodHandler(pods, weights),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router, handlers)

	return router, workerServer, nil
}

// buildSuggester 按配置选择建议服务实现，未配置 Key 时降级为空实现
func buildSuggester(cfg *config.OpenAIConfig) ai.Suggester {
	if cfg.APIKey == "" {
		logger.Warn("未配置 OpenAI API Key，瓶颈建议生成已禁用")
		return ai.NoopSuggester{}
	}

	s, err := ai.NewOpenAISuggester(ai.Config{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		MaxRetries: cfg.MaxRetries,
	})
	if err != nil {
		logger.Warn("初始化建议服务失败，已降级为空实现")
		return ai.NoopSuggester{}
	}
	return s
}
