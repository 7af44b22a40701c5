package events

import "time"

const LeavePolicyLifecycleTopic = "leave.policy.lifecycle.v1"

const (
	LeavePolicyCreated     = "leave_policy_created"
	LeavePolicyUpdated     = "leave_policy_updated"
	LeavePolicyDeactivated = "leave_policy_deactivated"
)

// LeavePolicyEvent carries the policy terms so the consumer can seed or
// reconcile balances without re-reading the policy row.
type LeavePolicyEvent struct {
	EventType        string    `json:"event_type"`
	PolicyID         string    `json:"policy_id"`
	CompanyID        string    `json:"company_id"`
	LeaveType        string    `json:"leave_type"`
	DefaultAllowance int       `json:"default_allowance"`
	CarryForward     bool      `json:"carry_forward"`
	MaxCarryForward  int       `json:"max_carry_forward"`
	Year             int       `json:"year"`
	OccurredAt       time.Time `json:"occurred_at"`
}
