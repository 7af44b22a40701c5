package policy

import "time"

type CreatePolicyRequest struct {
	LeaveType        string `json:"leave_type" binding:"required,oneof=ANNUAL SICK CASUAL MATERNITY PATERNITY EMERGENCY"`
	DefaultAllowance int    `json:"default_allowance" binding:"min=0"`
	CarryForward     bool   `json:"carry_forward"`
	MaxCarryForward  int    `json:"max_carry_forward" binding:"min=0"`
}

// Pointer fields distinguish "leave unchanged" from an explicit zero.
type UpdatePolicyRequest struct {
	DefaultAllowance *int  `json:"default_allowance" binding:"omitempty,min=0"`
	CarryForward     *bool `json:"carry_forward"`
	MaxCarryForward  *int  `json:"max_carry_forward" binding:"omitempty,min=0"`
}

type PolicyResponse struct {
	ID               string  `json:"id"`
	CompanyID        string  `json:"company_id"`
	LeaveType        string  `json:"leave_type"`
	DefaultAllowance int     `json:"default_allowance"`
	CarryForward     bool    `json:"carry_forward"`
	MaxCarryForward  int     `json:"max_carry_forward"`
	IsActive         bool    `json:"is_active"`
	DeactivatedAt    *string `json:"deactivated_at,omitempty"`
}

func mapToResponse(p LeavePolicy) PolicyResponse {
	resp := PolicyResponse{
		ID:               p.ID.String(),
		CompanyID:        p.CompanyID.String(),
		LeaveType:        p.LeaveType,
		DefaultAllowance: p.DefaultAllowance,
		CarryForward:     p.CarryForward,
		MaxCarryForward:  p.MaxCarryForward,
		IsActive:         p.IsActive,
	}
	if p.DeactivatedAt != nil {
		v := p.DeactivatedAt.Format(time.RFC3339)
		resp.DeactivatedAt = &v
	}
	return resp
}

func mapToListResponse(policies []LeavePolicy) []PolicyResponse {
	resp := make([]PolicyResponse, len(policies))
	for i, p := range policies {
		resp[i] = mapToResponse(p)
	}
	return resp
}
