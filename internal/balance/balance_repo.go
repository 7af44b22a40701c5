package balance

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=balance_repo.go -destination=mock/balance_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, b *LeaveBalance) error
	Find(ctx context.Context, companyID, employeeID, leaveType string, year int) (*LeaveBalance, error)
	FindAllByEmployee(ctx context.Context, companyID, employeeID string, year int) ([]LeaveBalance, error)
	FindAllByCompanyType(ctx context.Context, companyID, leaveType string, year int) ([]LeaveBalance, error)
	// UpdateVersioned persists the row's counters guarded by the expected
	// version; ok=false means another writer won the race.
	UpdateVersioned(ctx context.Context, b *LeaveBalance, expectedVersion int) (bool, error)
}

type repository struct {
	db *gorm.DB
	tx *sql.Tx
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, tx: tx}
}

// conn routes statements through the service-owned transaction when one is
// bound; a *sql.Tx satisfies gorm's ConnPool, so the session executes on the
// tx connection and rolls back with it.
func (r *repository) conn(ctx context.Context) *gorm.DB {
	if r.tx == nil {
		return r.db.WithContext(ctx)
	}
	db := r.db.Session(&gorm.Session{Context: ctx, NewDB: true})
	db.Statement.ConnPool = r.tx
	return db
}

func (r *repository) Create(ctx context.Context, b *LeaveBalance) error {
	return r.conn(ctx).Create(b).Error
}

func (r *repository) Find(ctx context.Context, companyID, employeeID, leaveType string, year int) (*LeaveBalance, error) {
	var b LeaveBalance
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Where("employee_id = ?", employeeID).
		Where("leave_type = ?", leaveType).
		Where("year = ?", year).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repository) FindAllByEmployee(ctx context.Context, companyID, employeeID string, year int) ([]LeaveBalance, error) {
	var balances []LeaveBalance
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Where("employee_id = ?", employeeID).
		Where("year = ?", year).
		Order("leave_type ASC").
		Find(&balances).Error
	return balances, err
}

func (r *repository) FindAllByCompanyType(ctx context.Context, companyID, leaveType string, year int) ([]LeaveBalance, error) {
	var balances []LeaveBalance
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Where("leave_type = ?", leaveType).
		Where("year = ?", year).
		Order("employee_id ASC").
		Find(&balances).Error
	return balances, err
}

func (r *repository) UpdateVersioned(ctx context.Context, b *LeaveBalance, expectedVersion int) (bool, error) {
	res := r.conn(ctx).
		Model(&LeaveBalance{}).
		Where("id = ?", b.ID).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{
			"allocated":       b.Allocated,
			"carried_forward": b.CarriedForward,
			"used":            b.Used,
			"version":         expectedVersion + 1,
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	b.Version = expectedVersion + 1
	return true, nil
}
