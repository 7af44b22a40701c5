package directory

import (
	"context"

	"gorm.io/gorm"
)

// EmployeeDirectory is the read-only view of the employees table owned by the
// identity/org system. The engine only needs membership checks and the id
// fan-out for balance seeding.
//
//go:generate mockgen -source=directory.go -destination=mock/directory_mock.go -package=mock
type EmployeeDirectory interface {
	BelongsToCompany(ctx context.Context, companyID, employeeID string) (bool, error)
	ListEmployeeIDs(ctx context.Context, companyID string) ([]string, error)
}

type gormDirectory struct {
	db *gorm.DB
}

func NewEmployeeDirectory(db *gorm.DB) EmployeeDirectory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) BelongsToCompany(ctx context.Context, companyID, employeeID string) (bool, error) {
	var count int64
	err := d.db.WithContext(ctx).
		Table("employees").
		Where("id = ?", employeeID).
		Where("company_id = ?", companyID).
		Where("deleted_at IS NULL").
		Count(&count).Error
	return count > 0, err
}

func (d *gormDirectory) ListEmployeeIDs(ctx context.Context, companyID string) ([]string, error) {
	var ids []string
	err := d.db.WithContext(ctx).
		Table("employees").
		Where("company_id = ?", companyID).
		Where("deleted_at IS NULL").
		Pluck("id", &ids).Error
	return ids, err
}
