package policy

import (
	"errors"
	"strings"

	policyerrors "go-leave/internal/policy/errors"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return policyerrors.ErrPolicyNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" && pgErr.ConstraintName == "uq_leave_policies_company_type_active" {
			return policyerrors.ErrDuplicateActivePolicy
		}
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, "uq_leave_policies_company_type_active") {
		return policyerrors.ErrDuplicateActivePolicy
	}

	return err
}
