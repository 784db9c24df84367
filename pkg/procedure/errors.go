package procedure

import (
	"errors"
	"fmt"
)

// Kind classifies a failed step.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindProbe
	KindResolution
	KindExecution
	KindServiceStart
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindProbe:
		return "probe"
	case KindResolution:
		return "resolution"
	case KindExecution:
		return "execution"
	case KindServiceStart:
		return "service-start"
	default:
		return "unknown"
	}
}

// StepError is the typed failure carried by a StepResult.
type StepError struct {
	Kind      Kind
	Component string
	Op        string
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %s failed (%s): %v", e.Component, e.Op, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first StepError in err's chain, or 0.
func KindOf(err error) Kind {
	var se *StepError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}
