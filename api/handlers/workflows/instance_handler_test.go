package workflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"opshub/internal/ai"
	"opshub/internal/notification"
	"opshub/internal/workflow"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// fakeQueueClient 记录入队调用，避免测试依赖 Redis
type fakeQueueClient struct {
	detectPodIDs   []string
	slaInstanceIDs []string
}

func (f *fakeQueueClient) EnqueueDetectBottlenecks(podID string) error {
	f.detectPodIDs = append(f.detectPodIDs, podID)
	return nil
}

func (f *fakeQueueClient) EnqueueCheckSLA(instanceID string) error {
	f.slaInstanceIDs = append(f.slaInstanceIDs, instanceID)
	return nil
}

func (f *fakeQueueClient) Close() error { return nil }

func setupInstanceHandlerTest(t *testing.T) (*InstanceHandler, *fakeQueueClient) {
	t.Helper()
	dsn := fmt.Sprintf("file:instance_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&workflow.WorkflowTemplate{},
		&workflow.WorkflowInstance{},
		&workflow.Bottleneck{},
		&workflow.Pod{},
		&workflow.PodMember{},
		&workflow.StageHistory{},
		&notification.Notification{},
	))

	log := zaptest.NewLogger(t)
	catalog := workflow.NewTemplateCatalog(db)
	require.NoError(t, catalog.SeedSystemTemplates(context.Background()))

	store := workflow.NewGormInstanceStore(db)
	pods := workflow.NewGormPodDirectory(db)
	history := workflow.NewHistoryService(db)
	notifier := workflow.NewNotifier(notification.NewService(db), pods, log)
	detector := workflow.NewBottleneckDetector(db, store, catalog, pods, ai.NoopSuggester{}, log)
	engine := workflow.NewEngine(catalog, store, pods, history, notifier, detector, log)

	queue := &fakeQueueClient{}
	return NewInstanceHandler(engine, queue), queue
}

func newTestRouter(h *InstanceHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/workflow-instances", h.StartInstance)
	router.GET("/workflow-instances/:id", h.GetInstance)
	router.POST("/workflow-instances/:id/advance", h.AdvanceStage)
	router.GET("/workflow-instances/:id/history", h.GetHistory)
	return router
}

// instanceEnvelope 统一响应中携带实例数据的部分
type instanceEnvelope struct {
	Success bool                      `json:"success"`
	Data    workflow.WorkflowInstance `json:"data"`
}

func TestInstanceHandler_StartAndAdvance(t *testing.T) {
	handler, queue := setupInstanceHandlerTest(t)
	router := newTestRouter(handler)

	// 启动实例
	body := []byte(`{"template_code":"standard_recruiting","object_type":"candidate","object_id":"cand-1","owner_id":"user-1"}`)
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflow-instances", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("启动应返回 201, 实际 %d: %s", resp.Code, resp.Body.String())
	}

	var created instanceEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))
	if !created.Success {
		t.Fatalf("启动响应 success 应为 true: %s", resp.Body.String())
	}
	instance := created.Data
	if instance.CurrentStageID != "sourcing" {
		t.Fatalf("新实例应位于入口阶段, 实际 %s", instance.CurrentStageID)
	}

	// 推进阶段
	advanceBody := []byte(`{"to_stage_id":"screening","user_id":"user-1"}`)
	resp = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/workflow-instances/"+instance.ID+"/advance", bytes.NewReader(advanceBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("合法推进应返回 200, 实际 %d: %s", resp.Code, resp.Body.String())
	}

	// 推进成功后应入队一次 SLA 核查
	require.Len(t, queue.slaInstanceIDs, 1, "推进成功后应入队 SLA 核查任务")
	require.Equal(t, instance.ID, queue.slaInstanceIDs[0], "SLA 核查任务应指向被推进的实例")

	// 非法推进返回 400，且不触发 SLA 核查入队
	badBody := []byte(`{"to_stage_id":"placed"}`)
	resp = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/workflow-instances/"+instance.ID+"/advance", bytes.NewReader(badBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("非法转移应返回 400, 实际 %d", resp.Code)
	}
	require.Len(t, queue.slaInstanceIDs, 1, "推进失败不应入队 SLA 核查任务")
}

func TestInstanceHandler_GetHistoryPaged(t *testing.T) {
	handler, _ := setupInstanceHandlerTest(t)
	router := newTestRouter(handler)

	body := []byte(`{"template_code":"standard_recruiting","object_type":"candidate","object_id":"cand-2"}`)
	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflow-instances", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code, "启动实例失败: %s", resp.Body.String())

	var created instanceEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &created))

	advanceBody := []byte(`{"to_stage_id":"screening"}`)
	resp = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/workflow-instances/"+created.Data.ID+"/advance", bytes.NewReader(advanceBody))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	// 启动 + 推进共两条历史，page_size=1 只返回第一条
	resp = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/workflow-instances/"+created.Data.ID+"/history?page=1&page_size=1", nil)
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("查询历史应返回 200, 实际 %d: %s", resp.Code, resp.Body.String())
	}

	var listResp struct {
		Success bool `json:"success"`
		Data    struct {
			Items      []workflow.StageHistory `json:"items"`
			Pagination struct {
				Page       int   `json:"page"`
				PageSize   int   `json:"page_size"`
				Total      int64 `json:"total"`
				TotalPages int   `json:"total_pages"`
			} `json:"pagination"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &listResp))
	require.Len(t, listResp.Data.Items, 1, "page_size=1 应只返回一条历史")
	if listResp.Data.Pagination.Total != 2 {
		t.Fatalf("历史总数应为 2, 实际 %d", listResp.Data.Pagination.Total)
	}
	if listResp.Data.Pagination.TotalPages != 2 {
		t.Fatalf("总页数应为 2, 实际 %d", listResp.Data.Pagination.TotalPages)
	}
}

func TestInstanceHandler_GetNotFound(t *testing.T) {
	handler, _ := setupInstanceHandlerTest(t)
	router := newTestRouter(handler)

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/workflow-instances/nonexistent", nil)
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("不存在的实例应返回 404, 实际 %d", resp.Code)
	}

	var errResp struct {
		Success bool `json:"success"`
		Code    int  `json:"code"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &errResp))
	if errResp.Success {
		t.Fatal("错误响应 success 应为 false")
	}
	if errResp.Code != 5001 {
		t.Fatalf("实例不存在应返回业务码 5001, 实际 %d", errResp.Code)
	}
}

func TestInstanceHandler_StartMissingFields(t *testing.T) {
	handler, _ := setupInstanceHandlerTest(t)
	router := newTestRouter(handler)

	resp := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/workflow-instances", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("缺少必填字段应返回 400, 实际 %d", resp.Code)
	}
}
