package balance

type AdjustBalanceRequest struct {
	EmployeeID string `json:"employee_id" binding:"required,uuid"`
	LeaveType  string `json:"leave_type" binding:"required,oneof=ANNUAL SICK CASUAL MATERNITY PATERNITY EMERGENCY"`
	Year       int    `json:"year"`
	Delta      int    `json:"delta" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
}

type BalanceResponse struct {
	ID             string `json:"id"`
	CompanyID      string `json:"company_id"`
	EmployeeID     string `json:"employee_id"`
	LeaveType      string `json:"leave_type"`
	Year           int    `json:"year"`
	Allocated      int    `json:"allocated"`
	CarriedForward int    `json:"carried_forward"`
	Used           int    `json:"used"`
	Available      int    `json:"available"`
}

func mapToResponse(b LeaveBalance) BalanceResponse {
	return BalanceResponse{
		ID:             b.ID.String(),
		CompanyID:      b.CompanyID.String(),
		EmployeeID:     b.EmployeeID.String(),
		LeaveType:      b.LeaveType,
		Year:           b.Year,
		Allocated:      b.Allocated,
		CarriedForward: b.CarriedForward,
		Used:           b.Used,
		Available:      b.Available(),
	}
}
