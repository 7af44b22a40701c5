package request

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=request_repo.go -destination=mock/request_repo_mock.go -package=mock
type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, r *LeaveRequest) error
	FindAllByCompany(ctx context.Context, companyID string, filters ListFilters) ([]LeaveRequest, error)
	FindByIDAndCompany(ctx context.Context, companyID, id string) (*LeaveRequest, error)
	// UpdateVersioned persists a transition guarded by the expected version;
	// ok=false means another actor already moved the request.
	UpdateVersioned(ctx context.Context, r *LeaveRequest, expectedVersion int) (bool, error)
	HasOverlappingPeriod(ctx context.Context, companyID, employeeID string, startDate, endDate time.Time, excludeID *string) (bool, error)
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

func (r *repository) Create(ctx context.Context, l *LeaveRequest) error {
	return r.conn(ctx).Create(l).Error
}

func (r *repository) FindAllByCompany(ctx context.Context, companyID string, filters ListFilters) ([]LeaveRequest, error) {
	db := r.conn(ctx).
		Where("company_id = ?", companyID)

	if filters.Status != nil {
		db = db.Where("status = ?", *filters.Status)
	}
	if filters.EmployeeID != nil {
		db = db.Where("employee_id = ?", *filters.EmployeeID)
	}
	if filters.LeaveType != nil {
		db = db.Where("leave_type = ?", *filters.LeaveType)
	}

	var requests []LeaveRequest
	err := db.Order("start_date DESC").Find(&requests).Error
	return requests, err
}

func (r *repository) FindByIDAndCompany(ctx context.Context, companyID, id string) (*LeaveRequest, error) {
	var l LeaveRequest
	err := r.conn(ctx).
		Where("company_id = ?", companyID).
		First(&l, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) UpdateVersioned(ctx context.Context, l *LeaveRequest, expectedVersion int) (bool, error) {
	res := r.conn(ctx).
		Model(&LeaveRequest{}).
		Where("id = ?", l.ID).
		Where("version = ?", expectedVersion).
		Updates(map[string]any{
			"status":           l.Status,
			"approved_by":      l.ApprovedBy,
			"approved_at":      l.ApprovedAt,
			"rejection_reason": l.RejectionReason,
			"version":          expectedVersion + 1,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	l.Version = expectedVersion + 1
	return true, nil
}

// HasOverlappingPeriod is the double-booking guard: only PENDING and APPROVED
// rows block a new request.
func (r *repository) HasOverlappingPeriod(ctx context.Context, companyID, employeeID string, startDate, endDate time.Time, excludeID *string) (bool, error) {
	db := r.conn(ctx).
		Model(&LeaveRequest{}).
		Where("company_id = ?", companyID).
		Where("employee_id = ?", employeeID).
		Where("status IN ?", []string{StatusPending, StatusApproved}).
		Where("NOT (end_date < ? OR start_date > ?)", startDate, endDate)

	if excludeID != nil && *excludeID != "" {
		db = db.Where("id <> ?", *excludeID)
	}

	var count int64
	err := db.Count(&count).Error
	return count > 0, err
}
