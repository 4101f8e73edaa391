package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// Outcome is the non-error result of a handler invocation. Handlers return
// either Complete (optionally carrying a result value) or Postpone (asking
// to run again later without consuming the retry budget).
//
// The zero Outcome is Complete with no result, so handlers that fail can
// return `job.Outcome{}, err`.
type Outcome struct {
	postponed bool
	value     any
	delay     time.Duration
	reason    string
}

// Complete returns an Outcome marking the job successful. v, if non-nil,
// is JSON-marshaled and persisted as the job's result.
func Complete(v any) Outcome {
	return Outcome{value: v}
}

// Postpone returns an Outcome asking the scheduler to run the job again
// after delay. reason is recorded on the job for observability; it is not
// an error. delay must be positive.
func Postpone(delay time.Duration, reason string) Outcome {
	return Outcome{postponed: true, delay: delay, reason: reason}
}

// Postponed reports whether this outcome requests postponement.
func (o Outcome) Postponed() bool { return o.postponed }

// Delay returns the requested postponement delay.
func (o Outcome) Delay() time.Duration { return o.delay }

// Reason returns the postponement reason.
func (o Outcome) Reason() string { return o.reason }

// Result marshals the completion value. Returns nil bytes for a nil value
// or a postponed outcome.
func (o Outcome) Result() ([]byte, error) {
	if o.postponed || o.value == nil {
		return nil, nil
	}
	data, err := json.Marshal(o.value)
	if err != nil {
		return nil, fmt.Errorf("toil/job: marshal result: %w", err)
	}
	return data, nil
}
