package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/docindex-go/internal/domain/index"
	"github.com/docindex-go/internal/provisioner/app/bootstrap"
	"github.com/docindex-go/pkg/logger"
	"github.com/gin-gonic/gin"
)

// Runner is the part of bootstrap.Runner the handlers need.
type Runner interface {
	Run(ctx context.Context) (*bootstrap.Report, error)
	LastReport() *bootstrap.Report
	Running() bool
}

// BreakerSource reports circuit states per namespace.
type BreakerSource interface {
	BreakerStates() map[string]string
}

type ProvisionerHandlers struct {
	runner   Runner
	breakers BreakerSource
	logger   logger.Logger
}

func NewProvisionerHandlers(runner Runner, breakers BreakerSource, logger logger.Logger) *ProvisionerHandlers {
	return &ProvisionerHandlers{
		runner:   runner,
		breakers: breakers,
		logger:   logger,
	}
}

type OutcomeResponse struct {
	Key           string `json:"key"`
	Namespace     string `json:"namespace"`
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	Error         string `json:"error,omitempty"`
	DurationMS    int64  `json:"durationMs"`
	PrimaryStatus string `json:"primaryStatus,omitempty"`
}

type ReportResponse struct {
	StartedAt     time.Time         `json:"startedAt"`
	FinishedAt    time.Time         `json:"finishedAt"`
	DurationMS    int64             `json:"durationMs"`
	Created       int               `json:"created"`
	AlreadyExists int               `json:"alreadyExists"`
	Failed        int               `json:"failed"`
	Blocking      []string          `json:"blocking,omitempty"`
	Error         string            `json:"error,omitempty"`
	Outcomes      []OutcomeResponse `json:"outcomes"`
}

func toReportResponse(r *bootstrap.Report) ReportResponse {
	resp := ReportResponse{
		StartedAt:     r.StartedAt,
		FinishedAt:    r.FinishedAt,
		DurationMS:    r.Duration().Milliseconds(),
		Created:       r.Outcomes.Count(index.StatusCreated),
		AlreadyExists: r.Outcomes.Count(index.StatusAlreadyExists),
		Failed:        r.Outcomes.Count(index.StatusFailed),
		Blocking:      r.Blocking,
		Error:         r.Error,
		Outcomes:      make([]OutcomeResponse, 0, len(r.Outcomes)),
	}

	for _, o := range r.Outcomes {
		out := OutcomeResponse{
			Key:        o.Spec.Key(),
			Namespace:  o.Spec.Namespace,
			Kind:       string(o.Spec.Kind),
			Status:     string(o.Status),
			Reason:     o.Reason(),
			Error:      o.Message(),
			DurationMS: o.Duration.Milliseconds(),
		}
		if o.Primary != nil {
			out.PrimaryStatus = string(o.Primary.Status)
		}
		resp.Outcomes = append(resp.Outcomes, out)
	}
	return resp
}

func (h *ProvisionerHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Ready succeeds once a run finished without blocking failures.
func (h *ProvisionerHandlers) Ready(c *gin.Context) {
	last := h.runner.LastReport()
	switch {
	case last == nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "pending"})
	case last.Error != "":
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": last.Error})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

func (h *ProvisionerHandlers) Status(c *gin.Context) {
	resp := gin.H{
		"running":  h.runner.Running(),
		"breakers": h.breakers.BreakerStates(),
	}
	if last := h.runner.LastReport(); last != nil {
		resp["lastRun"] = toReportResponse(last)
	}
	c.JSON(http.StatusOK, resp)
}

// Ensure runs provisioning now and answers with the run's report.
func (h *ProvisionerHandlers) Ensure(c *gin.Context) {
	report, err := h.runner.Run(c.Request.Context())
	switch {
	case errors.Is(err, bootstrap.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, bootstrap.ErrMandatoryFailed):
		c.JSON(http.StatusServiceUnavailable, toReportResponse(report))
	case err != nil:
		h.logger.Error("On-demand provisioning failed", "error", err)
		if report == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, toReportResponse(report))
	default:
		c.JSON(http.StatusOK, toReportResponse(report))
	}
}
