package events

import "time"

const LeaveBalanceAuditTopic = "leave.balance.audit.v1"

const LeaveBalanceAdjusted = "leave_balance_adjusted"

type LeaveBalanceAdjustedEvent struct {
	EventType  string    `json:"event_type"`
	CompanyID  string    `json:"company_id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	Year       int       `json:"year"`
	Delta      int       `json:"delta"`
	Reason     string    `json:"reason"`
	ActorID    string    `json:"actor_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
