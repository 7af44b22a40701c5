package balance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LeaveBalance is the per-employee, per-type, per-year ledger row. Available
// is never stored: it is always derived from the three counters below, so a
// committed row cannot drift from its own derivation.
type LeaveBalance struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CompanyID  uuid.UUID `gorm:"type:uuid;not null;index:idx_leave_balances_company_type_year"`
	EmployeeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_leave_balances_employee_type_year"`

	LeaveType string `gorm:"type:varchar(30);not null;uniqueIndex:uq_leave_balances_employee_type_year;index:idx_leave_balances_company_type_year"`
	Year      int    `gorm:"not null;uniqueIndex:uq_leave_balances_employee_type_year;index:idx_leave_balances_company_type_year"`

	Allocated      int `gorm:"not null;default:0"`
	CarriedForward int `gorm:"not null;default:0"`
	Used           int `gorm:"not null;default:0"`

	// Version serializes mutations on this row; every write goes through a
	// compare-and-swap on it.
	Version int `gorm:"not null;default:1"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available may only be negative after a policy reduction below already-used
// days; that state is always surfaced to the caller as a Deficit.
func (b *LeaveBalance) Available() int {
	return b.Allocated + b.CarriedForward - b.Used
}

// Deficit reports a row whose available went negative during reconciliation.
// It is a warning for manual follow-up, not an error.
type Deficit struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	Year       int    `json:"year"`
	Available  int    `json:"available"`
}

// PolicyTerms is the slice of a leave policy the ledger needs for seeding and
// reconciliation. Keeping it local avoids a dependency on the policy module.
type PolicyTerms struct {
	LeaveType        string
	DefaultAllowance int
	CarryForward     bool
	MaxCarryForward  int
}

// PolicyReader is implemented by the policy store.
//
//go:generate mockgen -source=balance_entity.go -destination=mock/policy_reader_mock.go -package=mock
type PolicyReader interface {
	// ActiveTerms returns nil when no active policy exists for the type.
	ActiveTerms(ctx context.Context, companyID, leaveType string) (*PolicyTerms, error)
	ActiveTermsAll(ctx context.Context, companyID string) ([]PolicyTerms, error)
}
