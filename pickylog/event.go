package pickylog

import "time"

// OperationEvent is a structured record of one core operation: a signing
// request or a bootstrap step. It plays the role boulder's web.RequestEvent
// plays for HTTP requests, generalized to an operation that has no request
// or response of its own — there is no HTTP layer in this core (spec.md §1
// "Out of scope").
type OperationEvent struct {
	Operation string  `json:"operation"`
	Latency   float64 `json:"latency_s"`

	Realm  string `json:"realm,omitempty"`
	Name   string `json:"name,omitempty"`
	Serial string `json:"serial,omitempty"`

	Error          string   `json:"error,omitempty"`
	InternalErrors []string `json:"internal_errors,omitempty"`
}

// AddError appends msg to the event's list of internal errors, the same
// accumulate-then-log-once pattern web.RequestEvent uses.
func (e *OperationEvent) AddError(msg string) {
	e.InternalErrors = append(e.InternalErrors, msg)
}

// NewOperationEvent starts an event for operation; call Finish when the
// operation completes to log it.
func NewOperationEvent(operation string) *OperationEvent {
	return &OperationEvent{Operation: operation}
}

// Finish records elapsed latency since begin and emits the event as an audit
// object.
func (e *OperationEvent) Finish(log Logger, begin time.Time) {
	e.Latency = time.Since(begin).Seconds()
	log.AuditObject(e.Operation, e)
}
