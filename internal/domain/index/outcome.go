package index

import (
	"errors"
	"time"
)

type Status string

const (
	StatusCreated       Status = "created"
	StatusAlreadyExists Status = "already_exists"
	StatusFailed        Status = "failed"
)

// Outcome is the result of reconciling one Spec.
type Outcome struct {
	Spec     Spec          `json:"spec"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`

	// Primary is the outcome of the primary index a secondary spec required
	// through EnsurePrimary.
	Primary *Outcome `json:"primary,omitempty"`
}

func (o Outcome) Succeeded() bool {
	return o.Status == StatusCreated || o.Status == StatusAlreadyExists
}

// Reason classifies a failed outcome: "timeout", "circuit_open",
// "unavailable" or "store_error". It is empty for successful outcomes.
func (o Outcome) Reason() string {
	if o.Status != StatusFailed {
		return ""
	}
	switch {
	case errors.Is(o.Err, ErrTimeout):
		return "timeout"
	case errors.Is(o.Err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(o.Err, ErrUnavailable):
		return "unavailable"
	default:
		return "store_error"
	}
}

// Message is the error text of a failed outcome.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type Outcomes []Outcome

// Failed returns the failed outcomes in order.
func (outs Outcomes) Failed() Outcomes {
	var failed Outcomes
	for _, o := range outs {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

func (outs Outcomes) AllSucceeded() bool {
	for _, o := range outs {
		if !o.Succeeded() {
			return false
		}
	}
	return true
}

func (outs Outcomes) Count(status Status) int {
	n := 0
	for _, o := range outs {
		if o.Status == status {
			n++
		}
	}
	return n
}
