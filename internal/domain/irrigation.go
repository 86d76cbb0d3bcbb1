package domain

import "time"

// IrrigationStatus represents the states an irrigation can be in.
type IrrigationStatus string

const (
	IrrigationScheduled  IrrigationStatus = "SCHEDULED"
	IrrigationRetrying   IrrigationStatus = "RETRYING"
	IrrigationInProgress IrrigationStatus = "IN_PROGRESS"
	IrrigationCompleted  IrrigationStatus = "COMPLETED"
	IrrigationFailed     IrrigationStatus = "FAILED"
	IrrigationCancelled  IrrigationStatus = "CANCELLED"
	IrrigationStopped    IrrigationStatus = "STOPPED"
)

// IsTerminal returns true if no further state transitions are possible.
func (s IrrigationStatus) IsTerminal() bool {
	switch s {
	case IrrigationCompleted, IrrigationFailed, IrrigationCancelled, IrrigationStopped:
		return true
	}
	return false
}

// IsDue reports whether an irrigation in this status may be picked up by the
// due-task scan.
func (s IrrigationStatus) IsDue() bool {
	return s == IrrigationScheduled || s == IrrigationRetrying
}

// IsValid reports whether s is one of the known statuses.
func (s IrrigationStatus) IsValid() bool {
	switch s {
	case IrrigationScheduled, IrrigationRetrying, IrrigationInProgress,
		IrrigationCompleted, IrrigationFailed, IrrigationCancelled, IrrigationStopped:
		return true
	}
	return false
}

// Description is the default human-readable text stored alongside a status.
func (s IrrigationStatus) Description() string {
	switch s {
	case IrrigationScheduled:
		return "Irrigation scheduled and waiting to be executed"
	case IrrigationInProgress:
		return "Irrigation is currently in progress"
	case IrrigationCompleted:
		return "Irrigation completed successfully"
	case IrrigationCancelled:
		return "Irrigation was cancelled"
	case IrrigationFailed:
		return "Irrigation execution failed"
	case IrrigationRetrying:
		return "Irrigation retry after a failure"
	case IrrigationStopped:
		return "Irrigation was stopped manually"
	}
	return ""
}

// Priority orders statuses for listings: active work first, finished work last.
func (s IrrigationStatus) Priority() int {
	switch s {
	case IrrigationInProgress:
		return 1
	case IrrigationRetrying:
		return 2
	case IrrigationScheduled:
		return 3
	case IrrigationFailed:
		return 4
	case IrrigationStopped:
		return 5
	case IrrigationCancelled:
		return 6
	case IrrigationCompleted:
		return 7
	}
	return 8
}

// Irrigation is one watering event for a parcel.
type Irrigation struct {
	ID                string           `json:"id"`
	ParcelID          string           `json:"parcel_id"`
	ScheduledAt       time.Time        `json:"scheduled_at"`
	DurationMinutes   int              `json:"duration_minutes"`
	WaterAmountLiters float64          `json:"water_amount_liters"`
	Status            IrrigationStatus `json:"status"`
	StatusDescription string           `json:"status_description,omitempty"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty"`
	RetryCount        int              `json:"retry_count"`
	LastRetryAt       *time.Time       `json:"last_retry_at,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Clone returns a deep copy so stores never share pointers with callers.
func (i *Irrigation) Clone() *Irrigation {
	c := *i
	c.StartedAt = cloneTime(i.StartedAt)
	c.FinishedAt = cloneTime(i.FinishedAt)
	c.LastRetryAt = cloneTime(i.LastRetryAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
