package domain

import "fmt"

// Entity kinds used in error messages and log attributes.
const (
	KindIrrigation    = "irrigation"
	KindFertilization = "fertilization"
	KindParcel        = "parcel"
	KindCrop          = "crop"
)

// NotFoundError is returned when a referenced task, parcel or crop does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// InvalidStateTransitionError is returned when a requested change is not an
// edge of the task's lifecycle. The record is left untouched.
type InvalidStateTransitionError struct {
	Kind  string
	ID    string
	From  string
	Event string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s %s: cannot %s from status %s", e.Kind, e.ID, e.Event, e.From)
}

// ExecutionFailureError wraps a failed or timed out hardware call.
type ExecutionFailureError struct {
	TaskID string
	Err    error
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("execution of task %s failed: %v", e.TaskID, e.Err)
}

func (e *ExecutionFailureError) Unwrap() error { return e.Err }

// ProviderFailureError is returned by the weather provider when it cannot
// answer. The gate recovers from it by proceeding.
type ProviderFailureError struct {
	Provider string
	Err      error
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("weather provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderFailureError) Unwrap() error { return e.Err }

// NotificationFailureError is returned by a sink that could not deliver an event.
type NotificationFailureError struct {
	Channel string
	Event   string
	Err     error
}

func (e *NotificationFailureError) Error() string {
	return fmt.Sprintf("notification %s via %s failed: %v", e.Event, e.Channel, e.Err)
}

func (e *NotificationFailureError) Unwrap() error { return e.Err }

// InvalidChannelError is returned when no sink is registered for a channel name.
type InvalidChannelError struct {
	Channel string
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("no notification sink registered for channel %q", e.Channel)
}
