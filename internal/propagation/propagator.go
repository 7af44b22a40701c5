package propagation

import (
	"context"
	"errors"

	"go-leave/internal/balance"
	balanceerrors "go-leave/internal/balance/errors"
	"go-leave/internal/directory"

	"go.uber.org/zap"
)

// reconcileRetries bounds the version-conflict retry per row. A row that is
// still contended after this many attempts is left for the consumer replay.
const reconcileRetries = 3

// Propagator pushes a policy mutation into the ledger: reconciling existing
// rows after an update and seeding rows for every employee after a create.
// Both paths are idempotent, so the kafka consumer can replay them safely.
type Propagator struct {
	balances   balance.Repository
	balanceSvc balance.Service
	employees  directory.EmployeeDirectory
	logger     *zap.Logger
}

func New(
	balances balance.Repository,
	balanceSvc balance.Service,
	employees directory.EmployeeDirectory,
	logger ...*zap.Logger,
) *Propagator {
	l := zap.L().Named("propagation")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("propagation")
	}
	return &Propagator{
		balances:   balances,
		balanceSvc: balanceSvc,
		employees:  employees,
		logger:     l,
	}
}

// PropagateUpdate reconciles every existing ledger row of the policy's type
// and year against the new terms. Rows whose available goes negative come
// back as deficits; they are reported, never force-corrected.
func (p *Propagator) PropagateUpdate(ctx context.Context, companyID string, year int, terms balance.PolicyTerms) ([]balance.Deficit, error) {
	rows, err := p.balances.FindAllByCompanyType(ctx, companyID, terms.LeaveType, year)
	if err != nil {
		p.logger.Error("propagate update list rows failed",
			zap.String("company_id", companyID),
			zap.String("leave_type", terms.LeaveType),
			zap.Error(err),
		)
		return nil, err
	}

	var (
		deficits []balance.Deficit
		failed   int
	)
	for i := range rows {
		row := rows[i]
		deficit, err := p.reconcileRow(ctx, companyID, row.EmployeeID.String(), terms, year)
		if err != nil {
			failed++
			p.logger.Error("propagate update row failed",
				zap.String("company_id", companyID),
				zap.String("employee_id", row.EmployeeID.String()),
				zap.String("leave_type", terms.LeaveType),
				zap.Int("year", year),
				zap.Error(err),
			)
			continue
		}
		if deficit != nil {
			deficits = append(deficits, *deficit)
		}
	}

	p.logger.Info("propagate update done",
		zap.String("company_id", companyID),
		zap.String("leave_type", terms.LeaveType),
		zap.Int("year", year),
		zap.Int("rows", len(rows)),
		zap.Int("deficits", len(deficits)),
		zap.Int("failed", failed),
	)

	if failed > 0 {
		return deficits, ErrPartialPropagation
	}
	return deficits, nil
}

// ErrPartialPropagation signals that some rows could not be reconciled. The
// deficits already collected are still valid; the event replay converges the
// rest.
var ErrPartialPropagation = errors.New("some balance rows could not be reconciled")

func (p *Propagator) reconcileRow(ctx context.Context, companyID, employeeID string, terms balance.PolicyTerms, year int) (*balance.Deficit, error) {
	var lastErr error
	for attempt := 0; attempt < reconcileRetries; attempt++ {
		deficit, err := p.balanceSvc.Reconcile(ctx, companyID, employeeID, terms.LeaveType, year, terms)
		if err == nil {
			return deficit, nil
		}
		if !errors.Is(err, balanceerrors.ErrConcurrentModification) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// SeedCompany creates the ledger row for every employee of the company under
// the given terms. Already-seeded employees are untouched.
func (p *Propagator) SeedCompany(ctx context.Context, companyID string, year int, terms balance.PolicyTerms) error {
	ids, err := p.employees.ListEmployeeIDs(ctx, companyID)
	if err != nil {
		p.logger.Error("seed company list employees failed",
			zap.String("company_id", companyID),
			zap.Error(err),
		)
		return err
	}

	var failed int
	for _, employeeID := range ids {
		if _, err := p.balanceSvc.GetOrCreate(ctx, companyID, employeeID, terms.LeaveType, year); err != nil {
			failed++
			p.logger.Error("seed company row failed",
				zap.String("company_id", companyID),
				zap.String("employee_id", employeeID),
				zap.String("leave_type", terms.LeaveType),
				zap.Error(err),
			)
		}
	}

	p.logger.Info("seed company done",
		zap.String("company_id", companyID),
		zap.String("leave_type", terms.LeaveType),
		zap.Int("year", year),
		zap.Int("employees", len(ids)),
		zap.Int("failed", failed),
	)

	if failed > 0 {
		return ErrPartialPropagation
	}
	return nil
}
