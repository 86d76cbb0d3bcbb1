// Package notify delivers task lifecycle events to a configured channel.
// Delivery is best effort: a failed notification never touches task state.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/petrovskifilip/agri-management-system/internal/domain"
)

// EventKind names a lifecycle event.
type EventKind string

const (
	IrrigationCompleted    EventKind = "irrigation.completed"
	IrrigationFailed       EventKind = "irrigation.failed"
	IrrigationPostponed    EventKind = "irrigation.postponed"
	FertilizationDue       EventKind = "fertilization.due"
	FertilizationCompleted EventKind = "fertilization.completed"
	FertilizationCancelled EventKind = "fertilization.cancelled"
)

// Event is one lifecycle notification. Exactly one of Irrigation and
// Fertilization is set.
type Event struct {
	Kind          EventKind             `json:"kind"`
	TaskID        string                `json:"task_id"`
	ParcelID      string                `json:"parcel_id"`
	ParcelName    string                `json:"parcel_name,omitempty"`
	Details       string                `json:"details,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
	Irrigation    *domain.Irrigation    `json:"irrigation,omitempty"`
	Fertilization *domain.Fertilization `json:"fertilization,omitempty"`
}

// ForIrrigation builds an event carrying a snapshot of irr.
func ForIrrigation(kind EventKind, irr *domain.Irrigation, parcelName, details string, at time.Time) Event {
	return Event{
		Kind:       kind,
		TaskID:     irr.ID,
		ParcelID:   irr.ParcelID,
		ParcelName: parcelName,
		Details:    details,
		OccurredAt: at,
		Irrigation: irr.Clone(),
	}
}

// ForFertilization builds an event carrying a snapshot of f.
func ForFertilization(kind EventKind, f *domain.Fertilization, parcelName, details string, at time.Time) Event {
	return Event{
		Kind:          kind,
		TaskID:        f.ID,
		ParcelID:      f.ParcelID,
		ParcelName:    parcelName,
		Details:       details,
		OccurredAt:    at,
		Fertilization: f.Clone(),
	}
}

func (e Event) parcel() string {
	if e.ParcelName != "" {
		return e.ParcelName
	}
	return e.ParcelID
}

// Subject is a one-line summary suitable for an email subject.
func (e Event) Subject() string {
	var title string
	switch e.Kind {
	case IrrigationCompleted:
		title = "Irrigation Completed"
	case IrrigationFailed:
		title = "Irrigation Failed"
	case IrrigationPostponed:
		title = "Irrigation Postponed"
	case FertilizationDue:
		title = "Fertilization Due"
	case FertilizationCompleted:
		title = "Fertilization Completed"
	case FertilizationCancelled:
		title = "Fertilization Cancelled"
	default:
		title = string(e.Kind)
	}
	return title + " - " + e.parcel()
}

const timeLayout = "2006-01-02 15:04"

func fmtTime(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(timeLayout)
}

// Body renders a plain-text message.
func (e Event) Body() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Parcel: %s\n", e.parcel())
	if irr := e.Irrigation; irr != nil {
		fmt.Fprintf(&b, "Status: %s\n", irr.Status)
		fmt.Fprintf(&b, "Scheduled: %s\n", irr.ScheduledAt.Format(timeLayout))
		fmt.Fprintf(&b, "Water amount: %.1f L\n", irr.WaterAmountLiters)
		fmt.Fprintf(&b, "Duration: %d min\n", irr.DurationMinutes)
		fmt.Fprintf(&b, "Started: %s\n", fmtTime(irr.StartedAt))
		fmt.Fprintf(&b, "Finished: %s\n", fmtTime(irr.FinishedAt))
		if irr.RetryCount > 0 {
			fmt.Fprintf(&b, "Attempts: %d\n", irr.RetryCount)
		}
	}
	if f := e.Fertilization; f != nil {
		fmt.Fprintf(&b, "Status: %s\n", f.Status)
		fmt.Fprintf(&b, "Scheduled: %s\n", f.ScheduledAt.Format(timeLayout))
		if f.FertilizerType != "" {
			fmt.Fprintf(&b, "Fertilizer: %s\n", f.FertilizerType)
		}
		if f.CompletedAt != nil {
			fmt.Fprintf(&b, "Completed: %s\n", fmtTime(f.CompletedAt))
		}
		if f.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", f.Notes)
		}
	}
	if e.Details != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Details)
	}
	return b.String()
}
