package policy

import (
	"time"

	"go-leave/internal/balance"

	"github.com/google/uuid"
)

// LeavePolicy holds the terms for one leave type in one company. The partial
// unique index enforces at most one active policy per (company, type);
// deactivated rows stay behind for ledger provenance.
type LeavePolicy struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CompanyID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uq_leave_policies_company_type_active,where:is_active"`

	LeaveType        string `gorm:"type:varchar(30);not null;uniqueIndex:uq_leave_policies_company_type_active,where:is_active"`
	DefaultAllowance int    `gorm:"not null;default:0"`
	CarryForward     bool   `gorm:"not null;default:false"`
	MaxCarryForward  int    `gorm:"not null;default:0"`

	IsActive      bool `gorm:"not null;default:true"`
	DeactivatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active is the lifecycle check; callers go through it instead of testing the
// nullable timestamp directly.
func (p *LeavePolicy) Active() bool {
	return p.IsActive && p.DeactivatedAt == nil
}

func (p *LeavePolicy) Terms() balance.PolicyTerms {
	return balance.PolicyTerms{
		LeaveType:        p.LeaveType,
		DefaultAllowance: p.DefaultAllowance,
		CarryForward:     p.CarryForward,
		MaxCarryForward:  p.MaxCarryForward,
	}
}
