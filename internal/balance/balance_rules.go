package balance

import (
	balanceerrors "go-leave/internal/balance/errors"

	"github.com/google/uuid"
)

// The ledger arithmetic lives here and only here. Services (including the
// request workflow, which debits inside its own transaction) mutate rows
// through these functions, never by touching the counters directly.

// carriedDays derives the carry-forward from the prior year's remaining days,
// capped by the policy. A prior-year deficit carries nothing.
func carriedDays(terms PolicyTerms, prev *LeaveBalance) int {
	if !terms.CarryForward || prev == nil || prev.Available() <= 0 {
		return 0
	}
	carried := prev.Available()
	if carried > terms.MaxCarryForward {
		carried = terms.MaxCarryForward
	}
	return carried
}

// Seed builds a fresh row from the active policy.
func Seed(companyID, employeeID uuid.UUID, year int, terms PolicyTerms, prev *LeaveBalance) *LeaveBalance {
	return &LeaveBalance{
		ID:             uuid.New(),
		CompanyID:      companyID,
		EmployeeID:     employeeID,
		LeaveType:      terms.LeaveType,
		Year:           year,
		Allocated:      terms.DefaultAllowance,
		CarriedForward: carriedDays(terms, prev),
		Used:           0,
		Version:        1,
	}
}

// ApplyDebit consumes days. All-or-nothing: on error the row is unchanged.
func ApplyDebit(b *LeaveBalance, days int) error {
	if days <= 0 {
		return balanceerrors.ErrInvalidDays
	}
	if days > b.Available() {
		return balanceerrors.ErrInsufficientBalance
	}
	b.Used += days
	return nil
}

// ApplyCredit reverses a previous debit, flooring used at zero.
func ApplyCredit(b *LeaveBalance, days int) error {
	if days <= 0 {
		return balanceerrors.ErrInvalidDays
	}
	b.Used -= days
	if b.Used < 0 {
		b.Used = 0
	}
	return nil
}

// ApplyReconcile recomputes allocation and carry-forward from new policy
// terms. Carry-forward is re-derived from the prior-year row so a raised cap
// or a re-enabled carry restores days, not just trims them. Used is ground
// truth of already-approved requests and is preserved; the resulting
// available may go negative, which is reported, never corrected by
// force-rejecting history.
func ApplyReconcile(b *LeaveBalance, terms PolicyTerms, prev *LeaveBalance) (deficit bool) {
	b.Allocated = terms.DefaultAllowance
	b.CarriedForward = carriedDays(terms, prev)
	return b.Available() < 0
}
