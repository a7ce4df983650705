// Package handlers contains the HTTP handlers of the SolarScan API:
//   - Submission (POST /v1/analysis)
//   - Result polling (GET /v1/analysis/{id})
//   - Multi-address comparison (POST /v1/compare)
//   - Regional heatmap (GET /v1/heatmap)
package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"solarscan/internal/analysis"
	"solarscan/internal/core"
	"solarscan/internal/types"
)

// AnalysisService is the contract the handler needs from the orchestrator.
// It is declared locally so tests can substitute a fake.
type AnalysisService interface {
	Submit(ctx context.Context, in analysis.SubmitInput) (analysis.SubmitReceipt, error)
	GetResult(ctx context.Context, id string) (types.AnalysisRequest, error)
	CompareMany(ctx context.Context, in analysis.CompareInput) (analysis.CompareResult, error)
	Heatmap(ctx context.Context, region string, metric types.HeatmapMetric) (analysis.HeatmapResult, error)
}

// AnalysisHandler maps HTTP requests to AnalysisService calls.
type AnalysisHandler struct {
	service   AnalysisService
	validator *core.Validator
	logger    *slog.Logger
}

// NewAnalysisHandler creates a handler with the provided dependencies.
func NewAnalysisHandler(svc AnalysisService, val *core.Validator, logger *slog.Logger) *AnalysisHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisHandler{
		service:   svc,
		validator: val,
		logger:    logger,
	}
}

// RegisterRoutes mounts the endpoints onto the /v1 router.
func (h *AnalysisHandler) RegisterRoutes(r chi.Router) {
	r.Post("/analysis", h.HandleSubmit)
	r.Get("/analysis/{id}", h.HandleGet)
	r.Post("/compare", h.HandleCompare)
	r.Get("/heatmap", h.HandleHeatmap)
}

// SubmitRequest is the body of POST /v1/analysis.
type SubmitRequest struct {
	Address      string `json:"address" validate:"required,max=200"`
	BuildingType string `json:"building_type,omitempty" validate:"omitempty,building_type"`
	Email        string `json:"email,omitempty" validate:"omitempty,email,max=254"`
}

// SubmitResponse acknowledges a submission.
type SubmitResponse struct {
	RequestID        string               `json:"request_id"`
	Status           types.AnalysisStatus `json:"status"`
	Message          string               `json:"message"`
	EstimatedSeconds int                  `json:"estimated_seconds"`
}

// HandleSubmit handles POST /v1/analysis. It answers 202 with the request
// id to poll, which is the existing id when an identical request is live.
func (h *AnalysisHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	req.Address = strings.TrimSpace(req.Address)
	req.Email = strings.TrimSpace(req.Email)
	if req.Address == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationEmptyAddress, "address must not be empty", nil))
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	receipt, err := h.service.Submit(r.Context(), analysis.SubmitInput{
		Address:      req.Address,
		BuildingType: types.BuildingType(req.BuildingType),
		Email:        req.Email,
	})
	if err != nil {
		h.logFailure(r, "submit analysis", err)
		core.Error(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/analysis/"+receipt.RequestID)
	core.JSON(w, r, http.StatusAccepted, SubmitResponse{
		RequestID:        receipt.RequestID,
		Status:           receipt.Status,
		Message:          submitMessage(receipt),
		EstimatedSeconds: receipt.EstimatedSeconds,
	})
}

func submitMessage(rc analysis.SubmitReceipt) string {
	switch {
	case rc.Status == types.StatusCompleted:
		return "분석이 완료되었습니다."
	case rc.Deduplicated:
		return "분석이 진행 중입니다."
	}
	return fmt.Sprintf("분석이 시작되었습니다. 약 %d초 후 결과를 확인할 수 있습니다.", rc.EstimatedSeconds)
}

// HandleGet handles GET /v1/analysis/{id}. Pending and processing requests
// are reported with 200 and no result; a failed request carries its error
// code and message.
func (h *AnalysisHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.service.GetResult(r.Context(), id)
	if err != nil {
		h.logFailure(r, "get analysis", err)
		core.Error(w, r, err)
		return
	}

	if !req.Status.IsTerminal() {
		w.Header().Set("Retry-After", "2")
	}
	core.JSON(w, r, http.StatusOK, req)
}

// CompareRequest is the body of POST /v1/compare. The address count is
// checked by the service so that the error code is the range code.
type CompareRequest struct {
	Addresses    []string `json:"addresses" validate:"required,dive,max=200"`
	BuildingType string   `json:"building_type,omitempty" validate:"omitempty,building_type"`
}

// HandleCompare handles POST /v1/compare. Every address is analysed under
// the request's budget and the response lists entries in input order.
func (h *AnalysisHandler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var req CompareRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.CompareMany(r.Context(), analysis.CompareInput{
		Addresses:    req.Addresses,
		BuildingType: types.BuildingType(req.BuildingType),
	})
	if err != nil {
		h.logFailure(r, "compare analyses", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}

// HeatmapQuery holds the query parameters of GET /v1/heatmap.
type HeatmapQuery struct {
	Region string `json:"region" validate:"required"`
	Metric string `json:"metric" validate:"heatmap_metric"`
}

// HandleHeatmap handles GET /v1/heatmap?region=&metric=. Both parameters
// are optional and default to gyeonggi and solar_radiation.
func (h *AnalysisHandler) HandleHeatmap(w http.ResponseWriter, r *http.Request) {
	q := HeatmapQuery{
		Region: r.URL.Query().Get("region"),
		Metric: r.URL.Query().Get("metric"),
	}
	if q.Region == "" {
		q.Region = "gyeonggi"
	}
	if q.Metric == "" {
		q.Metric = string(types.HeatmapSolarRadiation)
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.service.Heatmap(r.Context(), q.Region, types.HeatmapMetric(q.Metric))
	if err != nil {
		h.logFailure(r, "build heatmap", err)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, result)
}

// logFailure logs server-side failures. Client errors are already logged by
// the request logger.
func (h *AnalysisHandler) logFailure(r *http.Request, op string, err error) {
	if types.CodeOf(err).HTTPStatus() < http.StatusInternalServerError {
		return
	}
	h.logger.ErrorContext(r.Context(), op+" failed",
		"error", err,
		"request_id", types.GetRequestID(r.Context()),
	)
}
