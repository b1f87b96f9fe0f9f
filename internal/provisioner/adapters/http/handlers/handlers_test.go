package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/adapters/memory"
	"github.com/docindex-go/internal/provisioner/app/bootstrap"
	"github.com/docindex-go/internal/provisioner/app/service"
	"github.com/docindex-go/internal/provisioner/metadata"
	"github.com/docindex-go/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockRunner is a mock implementation of Runner
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context) (*bootstrap.Report, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*bootstrap.Report)
	return report, args.Error(1)
}

func (m *MockRunner) LastReport() *bootstrap.Report {
	args := m.Called()
	report, _ := args.Get(0).(*bootstrap.Report)
	return report
}

func (m *MockRunner) Running() bool {
	return m.Called().Bool(0)
}

type staticBreakers map[string]string

func (s staticBreakers) BreakerStates() map[string]string {
	return s
}

func setupRouter(h *ProvisionerHandlers) *gin.Engine {
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/status", h.Status)
	router.POST("/ensure", h.Ensure)
	return router
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func realRunner(t *testing.T) (*bootstrap.Runner, *service.Provisioner) {
	t.Helper()

	m := &metadata.Manifest{Entities: []metadata.Entity{{
		Name:      "user",
		Namespace: "users",
		Required:  true,
		Secondary: &metadata.Secondary{Name: "user_by_type", Filter: "kind = 'user'"},
	}}}
	require.NoError(t, m.Validate())

	p := service.NewProvisioner(service.DefaultOptions(), logger.NewNop())
	r := bootstrap.NewRunner(metadata.NewStaticSupplier(m), p, memory.NewStore(), bootstrap.Policy{}, logger.NewNop())
	return r, p
}

func TestHealth(t *testing.T) {
	h := NewProvisionerHandlers(&MockRunner{}, staticBreakers{}, logger.NewNop())

	w := serve(setupRouter(h), http.MethodGet, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestEnsureThenStatus(t *testing.T) {
	runner, p := realRunner(t)
	router := setupRouter(NewProvisionerHandlers(runner, p, logger.NewNop()))

	w := serve(router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(router, http.MethodPost, "/ensure")
	require.Equal(t, http.StatusOK, w.Code)

	var report ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "users/secondary/user_by_type", report.Outcomes[0].Key)
	assert.Equal(t, "created", report.Outcomes[0].PrimaryStatus)

	w = serve(router, http.MethodGet, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Running  bool              `json:"running"`
		Breakers map[string]string `json:"breakers"`
		LastRun  *ReportResponse   `json:"lastRun"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.False(t, status.Running)
	assert.Equal(t, "closed", status.Breakers["users"])
	require.NotNil(t, status.LastRun)
	assert.Equal(t, 1, status.LastRun.Created)

	w = serve(router, http.MethodGet, "/ready")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(router, http.MethodPost, "/ensure")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 1, report.AlreadyExists)
}

func TestStatus_BeforeFirstRun(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Running").Return(true)
	runner.On("LastReport").Return(nil)

	w := serve(setupRouter(NewProvisionerHandlers(runner, staticBreakers{}, logger.NewNop())), http.MethodGet, "/status")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"running":true,"breakers":{}}`, w.Body.String())
}

func TestEnsure_Errors(t *testing.T) {
	failed := &bootstrap.Report{
		Outcomes: index.Outcomes{{
			Spec:   index.Primary("users"),
			Status: index.StatusFailed,
			Err:    index.ErrTimeout,
		}},
		Blocking: []string{"users/primary/#primary"},
		Error:    "mandatory index provisioning failed: users/primary/#primary",
	}

	tests := []struct {
		name   string
		report *bootstrap.Report
		err    error
		code   int
	}{
		{name: "in progress", err: bootstrap.ErrRunInProgress, code: http.StatusConflict},
		{name: "mandatory failure", report: failed, err: bootstrap.ErrMandatoryFailed, code: http.StatusServiceUnavailable},
		{name: "supplier failure with report", report: &bootstrap.Report{Error: "boom"}, err: errors.New("boom"), code: http.StatusInternalServerError},
		{name: "failure without report", err: errors.New("boom"), code: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &MockRunner{}
			runner.On("Run", mock.Anything).Return(tt.report, tt.err)

			w := serve(setupRouter(NewProvisionerHandlers(runner, staticBreakers{}, logger.NewNop())), http.MethodPost, "/ensure")
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestEnsure_MandatoryFailureBody(t *testing.T) {
	runner := &MockRunner{}
	runner.On("Run", mock.Anything).Return(&bootstrap.Report{
		Outcomes: index.Outcomes{{Spec: index.Primary("users"), Status: index.StatusFailed, Err: index.ErrTimeout}},
		Blocking: []string{"users/primary/#primary"},
	}, bootstrap.ErrMandatoryFailed)

	w := serve(setupRouter(NewProvisionerHandlers(runner, staticBreakers{}, logger.NewNop())), http.MethodPost, "/ensure")

	var report ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, []string{"users/primary/#primary"}, report.Blocking)
	assert.Equal(t, "timeout", report.Outcomes[0].Reason)
}

func TestReady_NotReadyAfterFailure(t *testing.T) {
	runner := &MockRunner{}
	runner.On("LastReport").Return(&bootstrap.Report{Error: "mandatory index provisioning failed"})

	w := serve(setupRouter(NewProvisionerHandlers(runner, staticBreakers{}, logger.NewNop())), http.MethodGet, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
