package domain

import (
	"context"

	"github.com/looplab/fsm"
)

// Irrigation lifecycle events.
const (
	EventStart      = "start"
	EventComplete   = "complete"
	EventReschedule = "reschedule"
	EventFail       = "fail"
	EventExpire     = "expire"
	EventStop       = "stop"
	EventCancel     = "cancel"
	EventHold       = "hold"
	EventResume     = "resume"
)

// Fertilization lifecycle events. EventComplete and EventCancel are shared.
const (
	EventPend = "pend"
)

var irrigationEvents = fsm.Events{
	{Name: EventStart, Src: []string{string(IrrigationScheduled), string(IrrigationRetrying)}, Dst: string(IrrigationInProgress)},
	{Name: EventComplete, Src: []string{string(IrrigationInProgress)}, Dst: string(IrrigationCompleted)},
	{Name: EventReschedule, Src: []string{string(IrrigationInProgress)}, Dst: string(IrrigationScheduled)},
	{Name: EventFail, Src: []string{string(IrrigationInProgress)}, Dst: string(IrrigationFailed)},
	{Name: EventExpire, Src: []string{string(IrrigationScheduled), string(IrrigationRetrying)}, Dst: string(IrrigationFailed)},
	{Name: EventStop, Src: []string{string(IrrigationInProgress)}, Dst: string(IrrigationStopped)},
	{Name: EventCancel, Src: []string{string(IrrigationScheduled), string(IrrigationRetrying)}, Dst: string(IrrigationCancelled)},
	{Name: EventHold, Src: []string{string(IrrigationScheduled)}, Dst: string(IrrigationRetrying)},
	{Name: EventResume, Src: []string{string(IrrigationRetrying)}, Dst: string(IrrigationScheduled)},
}

var fertilizationEvents = fsm.Events{
	{Name: EventPend, Src: []string{string(FertilizationScheduled)}, Dst: string(FertilizationPending)},
	{Name: EventComplete, Src: []string{string(FertilizationScheduled), string(FertilizationPending)}, Dst: string(FertilizationCompleted)},
	{Name: EventCancel, Src: []string{string(FertilizationScheduled), string(FertilizationPending)}, Dst: string(FertilizationCancelled)},
}

// fire runs event against a throwaway machine seeded with the current state
// and returns the destination state.
func fire(events fsm.Events, current, event string) (string, bool) {
	m := fsm.NewFSM(current, events, fsm.Callbacks{})
	if err := m.Event(context.Background(), event); err != nil {
		return current, false
	}
	return m.Current(), true
}

// Fire applies event to the irrigation's status.
func (i *Irrigation) Fire(event string) error {
	next, ok := fire(irrigationEvents, string(i.Status), event)
	if !ok {
		return &InvalidStateTransitionError{Kind: KindIrrigation, ID: i.ID, From: string(i.Status), Event: event}
	}
	i.Status = IrrigationStatus(next)
	return nil
}

// Can reports whether event is allowed from the irrigation's current status.
func (i *Irrigation) Can(event string) bool {
	return fsm.NewFSM(string(i.Status), irrigationEvents, fsm.Callbacks{}).Can(event)
}

// Fire applies event to the fertilization's status.
func (f *Fertilization) Fire(event string) error {
	next, ok := fire(fertilizationEvents, string(f.Status), event)
	if !ok {
		return &InvalidStateTransitionError{Kind: KindFertilization, ID: f.ID, From: string(f.Status), Event: event}
	}
	f.Status = FertilizationStatus(next)
	return nil
}

// IrrigationEventFor returns the lifecycle event that moves from -> to, used by
// explicit status overrides. ok is false when no such edge exists.
func IrrigationEventFor(from, to IrrigationStatus) (string, bool) {
	for _, e := range irrigationEvents {
		if e.Dst != string(to) {
			continue
		}
		for _, src := range e.Src {
			if src == string(from) {
				return e.Name, true
			}
		}
	}
	return "", false
}
