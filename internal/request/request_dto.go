package request

import "time"

type CreateLeaveRequest struct {
	EmployeeID string `json:"employee_id" binding:"required,uuid"`
	LeaveType  string `json:"leave_type" binding:"required,oneof=ANNUAL SICK CASUAL MATERNITY PATERNITY EMERGENCY"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	Reason     string `json:"reason"`
}

type RejectLeaveRequest struct {
	RejectionReason string `json:"rejection_reason" binding:"required"`
}

// Nil filter fields mean "no filter"; there is no "all" sentinel value.
type ListFilters struct {
	Status     *string `form:"status" binding:"omitempty,oneof=PENDING APPROVED REJECTED CANCELLED"`
	EmployeeID *string `form:"employee_id" binding:"omitempty,uuid"`
	LeaveType  *string `form:"leave_type" binding:"omitempty,oneof=ANNUAL SICK CASUAL MATERNITY PATERNITY EMERGENCY"`
}

type LeaveResponse struct {
	ID              string  `json:"id"`
	CompanyID       string  `json:"company_id"`
	EmployeeID      string  `json:"employee_id"`
	LeaveType       string  `json:"leave_type"`
	StartDate       string  `json:"start_date"`
	EndDate         string  `json:"end_date"`
	TotalDays       int     `json:"total_days"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	CreatedBy       string  `json:"created_by"`
	ApprovedBy      *string `json:"approved_by,omitempty"`
	ApprovedAt      *string `json:"approved_at,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`
}

func mapToResponse(r LeaveRequest) LeaveResponse {
	resp := LeaveResponse{
		ID:         r.ID.String(),
		CompanyID:  r.CompanyID.String(),
		EmployeeID: r.EmployeeID.String(),
		LeaveType:  r.LeaveType,
		StartDate:  r.StartDate.Format("2006-01-02"),
		EndDate:    r.EndDate.Format("2006-01-02"),
		TotalDays:  r.TotalDays,
		Reason:     r.Reason,
		Status:     r.Status,
		CreatedBy:  r.CreatedBy.String(),
	}
	if r.ApprovedBy != nil {
		v := r.ApprovedBy.String()
		resp.ApprovedBy = &v
	}
	if r.ApprovedAt != nil {
		v := r.ApprovedAt.Format(time.RFC3339)
		resp.ApprovedAt = &v
	}
	resp.RejectionReason = r.RejectionReason
	return resp
}

func mapToListResponse(requests []LeaveRequest) []LeaveResponse {
	resp := make([]LeaveResponse, len(requests))
	for i, r := range requests {
		resp[i] = mapToResponse(r)
	}
	return resp
}
