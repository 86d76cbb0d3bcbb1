package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
	"github.com/petrovskifilip/agri-management-system/pkg/telemetry"
)

type command struct {
	IrrigationID      string  `json:"irrigation_id"`
	ParcelID          string  `json:"parcel_id"`
	DurationMinutes   int     `json:"duration_minutes,omitempty"`
	WaterAmountLiters float64 `json:"water_amount_liters,omitempty"`
}

// HTTP sends commands to a pump controller as
// POST {base}/irrigations/{id}/start and .../stop.
type HTTP struct {
	baseURL string
	client  *http.Client
}

var _ Actuator = (*HTTP)(nil)

// NewHTTP returns a controller client. Every call is bounded by timeout;
// a zero timeout uses 30s.
func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (h *HTTP) Start(ctx context.Context, irr *domain.Irrigation) error {
	return h.send(ctx, "start", command{
		IrrigationID:      irr.ID,
		ParcelID:          irr.ParcelID,
		DurationMinutes:   irr.DurationMinutes,
		WaterAmountLiters: irr.WaterAmountLiters,
	})
}

func (h *HTTP) Stop(ctx context.Context, irr *domain.Irrigation) error {
	return h.send(ctx, "stop", command{IrrigationID: irr.ID, ParcelID: irr.ParcelID})
}

func (h *HTTP) send(ctx context.Context, action string, cmd command) error {
	ctx, span := telemetry.Tracer("actuator").Start(ctx, "actuator."+action)
	defer span.End()
	span.SetAttributes(
		attribute.String("irrigation.id", cmd.IrrigationID),
		attribute.String("parcel.id", cmd.ParcelID),
	)

	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", action, err)
	}
	url := fmt.Sprintf("%s/irrigations/%s/%s", h.baseURL, cmd.IrrigationID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build request failed")
		return fmt.Errorf("build %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "http call failed")
		return fmt.Errorf("controller %s: %w", action, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < http.StatusBadRequest {
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode < http.StatusInternalServerError {
		err = &RejectedError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	} else {
		err = fmt.Errorf("controller %s returned status %d", action, resp.StatusCode)
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "bad status code")
	return err
}
