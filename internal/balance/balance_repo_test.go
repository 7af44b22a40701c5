package balance_test

import (
	"context"
	"testing"

	"go-leave/internal/balance"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newGormDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	assert.NoError(t, err)
	return gormDB, mock
}

// The pool mock and the tx mock are separate connections on purpose: a write
// that bypassed the bound transaction would show up as an unmet expectation
// on one side and an unexpected call on the other.
func TestBalanceRepositoryWithTx(t *testing.T) {
	t.Run("success versioned update runs on the bound transaction", func(t *testing.T) {
		gormDB, poolMock := newGormDB(t)

		txDB, txMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer txDB.Close()

		txMock.ExpectBegin()
		tx, err := txDB.Begin()
		assert.NoError(t, err)

		txMock.ExpectExec(`UPDATE "leave_balances"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		txMock.ExpectRollback()

		repo := balance.NewRepository(gormDB).WithTx(tx)
		row := &balance.LeaveBalance{ID: uuid.New(), Allocated: 10, Used: 2, Version: 3}

		ok, err := repo.UpdateVersioned(context.Background(), row, 3)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 4, row.Version)

		assert.NoError(t, tx.Rollback())

		assert.NoError(t, txMock.ExpectationsWereMet())
		assert.NoError(t, poolMock.ExpectationsWereMet())
	})

	t.Run("success read inside the transaction uses the tx connection", func(t *testing.T) {
		gormDB, poolMock := newGormDB(t)

		txDB, txMock, err := sqlmock.New()
		assert.NoError(t, err)
		defer txDB.Close()

		txMock.ExpectBegin()
		tx, err := txDB.Begin()
		assert.NoError(t, err)

		rowID := uuid.New()
		txMock.ExpectQuery(`SELECT \* FROM "leave_balances"`).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "company_id", "employee_id", "leave_type", "year", "allocated", "carried_forward", "used", "version"},
			).AddRow(rowID, uuid.New(), uuid.New(), "ANNUAL", 2026, 20, 3, 5, 2))
		txMock.ExpectCommit()

		repo := balance.NewRepository(gormDB).WithTx(tx)
		b, err := repo.Find(context.Background(), uuid.NewString(), uuid.NewString(), "ANNUAL", 2026)
		assert.NoError(t, err)
		assert.Equal(t, rowID, b.ID)
		assert.Equal(t, 18, b.Available())

		assert.NoError(t, tx.Commit())

		assert.NoError(t, txMock.ExpectationsWereMet())
		assert.NoError(t, poolMock.ExpectationsWereMet())
	})

	t.Run("success without a transaction statements run on the pool", func(t *testing.T) {
		gormDB, poolMock := newGormDB(t)

		poolMock.ExpectBegin()
		poolMock.ExpectExec(`UPDATE "leave_balances"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		poolMock.ExpectCommit()

		repo := balance.NewRepository(gormDB)
		row := &balance.LeaveBalance{ID: uuid.New(), Allocated: 10, Version: 1}

		ok, err := repo.UpdateVersioned(context.Background(), row, 1)
		assert.NoError(t, err)
		assert.True(t, ok)

		assert.NoError(t, poolMock.ExpectationsWereMet())
	})
}
