package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/internal/version"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
	"github.com/petrovskifilip/agri-management-system/services/scheduler"
)

// Irrigations is the irrigation engine surface exposed over HTTP.
type Irrigations interface {
	Get(ctx context.Context, id string) (*domain.Irrigation, error)
	Execute(ctx context.Context, id string) (*domain.Irrigation, error)
	Stop(ctx context.Context, id string) (*domain.Irrigation, error)
	UpdateStatus(ctx context.Context, id string, status domain.IrrigationStatus) (*domain.Irrigation, error)
	ListByParcel(ctx context.Context, parcelID string) ([]*domain.Irrigation, error)
}

// Fertilizations is the fertilization service surface exposed over HTTP.
type Fertilizations interface {
	Get(ctx context.Context, id string) (*domain.Fertilization, error)
	Complete(ctx context.Context, id, notes string) (*domain.Fertilization, error)
	Cancel(ctx context.Context, id, notes string) (*domain.Fertilization, error)
	ListByParcel(ctx context.Context, parcelID string) ([]*domain.Fertilization, error)
}

// Ticker runs a scheduler tick on demand.
type Ticker interface {
	Trigger(ctx context.Context, tick string) (scheduler.Report, error)
}

// REST handles HTTP requests for the scheduling API.
type REST struct {
	irrigations    Irrigations
	fertilizations Fertilizations
	ticker         Ticker
	ready          telemetry.ReadyFunc
	logger         *slog.Logger
}

// NewREST creates a new REST handler. ready may be nil.
func NewREST(irr Irrigations, fert Fertilizations, ticker Ticker, ready telemetry.ReadyFunc, logger *slog.Logger) *REST {
	return &REST{irrigations: irr, fertilizations: fert, ticker: ticker, ready: ready, logger: logger}
}

// UpdateStatusRequest is the JSON body for PATCH /irrigations/{id}/status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// NotesRequest is the optional JSON body for fertilization complete/cancel.
type NotesRequest struct {
	Notes string `json:"notes"`
}

// GetIrrigation handles GET /api/v1/irrigations/{id}.
func (h *REST) GetIrrigation(w http.ResponseWriter, r *http.Request) {
	irr, err := h.irrigations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, irr)
}

// ExecuteIrrigation handles POST /api/v1/irrigations/{id}/execute.
func (h *REST) ExecuteIrrigation(w http.ResponseWriter, r *http.Request) {
	h.irrigationCommand(w, r, "api.execute_irrigation", h.irrigations.Execute)
}

// StopIrrigation handles POST /api/v1/irrigations/{id}/stop.
func (h *REST) StopIrrigation(w http.ResponseWriter, r *http.Request) {
	h.irrigationCommand(w, r, "api.stop_irrigation", h.irrigations.Stop)
}

// UpdateIrrigationStatus handles PATCH /api/v1/irrigations/{id}/status.
func (h *REST) UpdateIrrigationStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := domain.IrrigationStatus(req.Status)
	if !status.IsValid() {
		writeError(w, http.StatusBadRequest, "field 'status' must be a valid irrigation status")
		return
	}
	h.irrigationCommand(w, r, "api.update_irrigation_status", func(ctx context.Context, id string) (*domain.Irrigation, error) {
		return h.irrigations.UpdateStatus(ctx, id, status)
	})
}

// ListParcelIrrigations handles GET /api/v1/parcels/{id}/irrigations.
func (h *REST) ListParcelIrrigations(w http.ResponseWriter, r *http.Request) {
	items, err := h.irrigations.ListByParcel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.Irrigation{}
	}
	writeJSON(w, http.StatusOK, items)
}

// ListParcelFertilizations handles GET /api/v1/parcels/{id}/fertilizations.
func (h *REST) ListParcelFertilizations(w http.ResponseWriter, r *http.Request) {
	items, err := h.fertilizations.ListByParcel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if items == nil {
		items = []*domain.Fertilization{}
	}
	writeJSON(w, http.StatusOK, items)
}

// GetFertilization handles GET /api/v1/fertilizations/{id}.
func (h *REST) GetFertilization(w http.ResponseWriter, r *http.Request) {
	f, err := h.fertilizations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// CompleteFertilization handles POST /api/v1/fertilizations/{id}/complete.
func (h *REST) CompleteFertilization(w http.ResponseWriter, r *http.Request) {
	h.fertilizationCommand(w, r, h.fertilizations.Complete)
}

// CancelFertilization handles POST /api/v1/fertilizations/{id}/cancel.
func (h *REST) CancelFertilization(w http.ResponseWriter, r *http.Request) {
	h.fertilizationCommand(w, r, h.fertilizations.Cancel)
}

// TriggerTick handles POST /api/v1/ticks/{tick}.
func (h *REST) TriggerTick(w http.ResponseWriter, r *http.Request) {
	tick := chi.URLParam(r, "tick")
	rep, err := h.ticker.Trigger(r.Context(), tick)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("tick triggered", slog.String("tick", tick), slog.Int("errors", rep.Errors))
	writeJSON(w, http.StatusOK, rep)
}

// Healthz handles GET /healthz.
func (h *REST) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz handles GET /readyz and checks the task store.
func (h *REST) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Version handles GET /version.
func (h *REST) Version(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (h *REST) irrigationCommand(w http.ResponseWriter, r *http.Request, spanName string, op func(context.Context, string) (*domain.Irrigation, error)) {
	id := chi.URLParam(r, "id")
	ctx, span := telemetry.Tracer("api").Start(r.Context(), spanName)
	defer span.End()
	span.SetAttributes(attribute.String("task.id", id))

	irr, err := op(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "command rejected")
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, irr)
}

func (h *REST) fertilizationCommand(w http.ResponseWriter, r *http.Request, op func(context.Context, string, string) (*domain.Fertilization, error)) {
	var req NotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := op(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// fail maps domain errors onto status codes; anything unexpected is a 500.
func (h *REST) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound *domain.NotFoundError
		invalid  *domain.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &notFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &invalid):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrTickRunning):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, scheduler.ErrUnknownTick):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
