package appointments

import "fmt"

// RejectReason classifies why a booking or transition request was
// refused. Reasons map to HTTP statuses at the handler boundary and to
// metric labels.
type RejectReason string

const (
	ReasonBadRequest       RejectReason = "bad_request"
	ReasonOutsideWindow    RejectReason = "outside_window"
	ReasonDayClosed        RejectReason = "day_closed"
	ReasonOffGrid          RejectReason = "off_grid"
	ReasonOutsideHours     RejectReason = "outside_hours"
	ReasonCapacityFull     RejectReason = "capacity_full"
	ReasonNoLinkedPatient  RejectReason = "no_linked_patient"
	ReasonHMOInvalid       RejectReason = "hmo_invalid"
	ReasonConflict         RejectReason = "conflict"
	ReasonAlreadyProcessed RejectReason = "already_processed"
	ReasonNotFound         RejectReason = "not_found"
	ReasonForbidden        RejectReason = "forbidden"
)

// RejectionError is a policy refusal, not a system failure. FullAt
// carries the first saturated block for capacity rejections.
type RejectionError struct {
	Reason  RejectReason
	Message string
	FullAt  string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("appointments: rejected (%s): %s", e.Reason, e.Message)
}

func reject(reason RejectReason, format string, args ...any) *RejectionError {
	return &RejectionError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}
