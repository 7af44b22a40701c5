package policy

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

//go:generate mockgen -source=policy_repo.go -destination=mock/policy_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, p *LeavePolicy) error
	FindByIDAndCompany(ctx context.Context, companyID, id string) (*LeavePolicy, error)
	FindActiveByType(ctx context.Context, companyID, leaveType string) (*LeavePolicy, error)
	FindAllByCompany(ctx context.Context, companyID string) ([]LeavePolicy, error)
	FindAllActive(ctx context.Context, companyID string) ([]LeavePolicy, error)
	Update(ctx context.Context, p *LeavePolicy) error
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

func (r *repository) Create(ctx context.Context, p *LeavePolicy) error {
	return r.conn(ctx).Create(p).Error
}

func (r *repository) FindByIDAndCompany(ctx context.Context, companyID, id string) (*LeavePolicy, error) {
	var p LeavePolicy
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindActiveByType(ctx context.Context, companyID, leaveType string) (*LeavePolicy, error) {
	var p LeavePolicy
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Where("leave_type = ?", leaveType).
		Where("is_active = ?", true).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindAllByCompany(ctx context.Context, companyID string) ([]LeavePolicy, error) {
	var policies []LeavePolicy
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Order("leave_type ASC, created_at DESC").
		Find(&policies).Error
	return policies, err
}

func (r *repository) FindAllActive(ctx context.Context, companyID string) ([]LeavePolicy, error) {
	var policies []LeavePolicy
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		Where("is_active = ?", true).
		Order("leave_type ASC").
		Find(&policies).Error
	return policies, err
}

func (r *repository) Update(ctx context.Context, p *LeavePolicy) error {
	return r.conn(ctx).Save(p).Error
}
