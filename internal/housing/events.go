package housing

import (
	"encoding/json"
	"time"
)

const (
	EventApplicationSubmitted = "ApplicationSubmitted"
	EventApplicationDecided   = "ApplicationDecided"
	EventBookingRequested     = "BookingRequested"
	EventBookingConfirmed     = "BookingConfirmed"
	EventWithdrawalRequested  = "WithdrawalRequested"
	EventWithdrawalDecided    = "WithdrawalDecided"
	EventOfficerRequested     = "OfficerAssignmentRequested"
	EventOfficerDecided       = "OfficerAssignmentDecided"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // applicant id or project name
	Payload       json.RawMessage `json:"payload"`
}

// ApplicationChangedPayload carries the record as it stands after the
// transition, so consumers never need to replay history.
type ApplicationChangedPayload struct {
	Application Application `json:"application"`
	PriorStatus Status      `json:"prior_status"`
	Accepted    *bool       `json:"accepted,omitempty"`
	ActorID     string      `json:"actor_id,omitempty"`
	Available   *int        `json:"available,omitempty"` // stock after a booking or release
}

type OfficerChangedPayload struct {
	Assignment OfficerAssignment `json:"assignment"`
	Accepted   *bool             `json:"accepted,omitempty"`
	ManagerID  string            `json:"manager_id,omitempty"`
}
