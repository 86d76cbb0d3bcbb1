package domain

// OutcomeKind classifies the result of one hardware activation attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	// OutcomeTransient failures feed the retry path.
	OutcomeTransient
	// OutcomeFatal failures fail the task without further attempts.
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeTransient:
		return "transient"
	case OutcomeFatal:
		return "fatal"
	}
	return "unknown"
}

// Outcome is what the state machine consumes after an activation attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

func Success() Outcome { return Outcome{Kind: OutcomeSuccess} }

func TransientFailure(reason string) Outcome {
	return Outcome{Kind: OutcomeTransient, Reason: reason}
}

func FatalFailure(reason string) Outcome {
	return Outcome{Kind: OutcomeFatal, Reason: reason}
}
