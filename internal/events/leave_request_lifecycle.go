package events

import "time"

const LeaveRequestLifecycleTopic = "leave.request.lifecycle.v1"

const (
	LeaveRequestCreated      = "leave_request_created"
	LeaveRequestApproved     = "leave_request_approved"
	LeaveRequestRejected     = "leave_request_rejected"
	LeaveRequestAutoRejected = "leave_request_auto_rejected"
	LeaveRequestCancelled    = "leave_request_cancelled"
)

// LeaveRequestEvent feeds the notification dispatch; consumers inform the
// employee and the approver about the transition.
type LeaveRequestEvent struct {
	EventType  string    `json:"event_type"`
	RequestID  string    `json:"request_id"`
	CompanyID  string    `json:"company_id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	TotalDays  int       `json:"total_days"`
	Status     string    `json:"status"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
