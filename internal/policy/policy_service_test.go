package policy_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go-leave/internal/balance"
	"go-leave/internal/messaging/kafka"
	"go-leave/internal/policy"
	policyerrors "go-leave/internal/policy/errors"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type fakePolicyRepository struct {
	withTxFn             func(tx *sql.Tx) policy.Repository
	createFn             func(ctx context.Context, p *policy.LeavePolicy) error
	findByIDAndCompanyFn func(ctx context.Context, companyID, id string) (*policy.LeavePolicy, error)
	findActiveByTypeFn   func(ctx context.Context, companyID, leaveType string) (*policy.LeavePolicy, error)
	findAllByCompanyFn   func(ctx context.Context, companyID string) ([]policy.LeavePolicy, error)
	findAllActiveFn      func(ctx context.Context, companyID string) ([]policy.LeavePolicy, error)
	updateFn             func(ctx context.Context, p *policy.LeavePolicy) error
}

func (f *fakePolicyRepository) WithTx(tx *sql.Tx) policy.Repository {
	if f.withTxFn != nil {
		return f.withTxFn(tx)
	}
	return f
}

func (f *fakePolicyRepository) Create(ctx context.Context, p *policy.LeavePolicy) error {
	if f.createFn != nil {
		return f.createFn(ctx, p)
	}
	return nil
}

func (f *fakePolicyRepository) FindByIDAndCompany(ctx context.Context, companyID, id string) (*policy.LeavePolicy, error) {
	if f.findByIDAndCompanyFn != nil {
		return f.findByIDAndCompanyFn(ctx, companyID, id)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePolicyRepository) FindActiveByType(ctx context.Context, companyID, leaveType string) (*policy.LeavePolicy, error) {
	if f.findActiveByTypeFn != nil {
		return f.findActiveByTypeFn(ctx, companyID, leaveType)
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakePolicyRepository) FindAllByCompany(ctx context.Context, companyID string) ([]policy.LeavePolicy, error) {
	if f.findAllByCompanyFn != nil {
		return f.findAllByCompanyFn(ctx, companyID)
	}
	return nil, nil
}

func (f *fakePolicyRepository) FindAllActive(ctx context.Context, companyID string) ([]policy.LeavePolicy, error) {
	if f.findAllActiveFn != nil {
		return f.findAllActiveFn(ctx, companyID)
	}
	return nil, nil
}

func (f *fakePolicyRepository) Update(ctx context.Context, p *policy.LeavePolicy) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, p)
	}
	return nil
}

type fakePropagator struct {
	propagateUpdateFn func(ctx context.Context, companyID string, year int, terms balance.PolicyTerms) ([]balance.Deficit, error)
	calls             int
}

func (f *fakePropagator) PropagateUpdate(ctx context.Context, companyID string, year int, terms balance.PolicyTerms) ([]balance.Deficit, error) {
	f.calls++
	if f.propagateUpdateFn != nil {
		return f.propagateUpdateFn(ctx, companyID, year, terms)
	}
	return nil, nil
}

type fakeOutboxRepository struct {
	events []kafka.OutboxEvent
}

func (f *fakeOutboxRepository) WithTx(tx *sql.Tx) kafka.OutboxRepository { return f }

func (f *fakeOutboxRepository) Create(ctx context.Context, event kafka.OutboxEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutboxRepository) ListPending(ctx context.Context, limit int) ([]kafka.OutboxEvent, error) {
	return nil, nil
}
func (f *fakeOutboxRepository) MarkSent(ctx context.Context, id string) error { return nil }
func (f *fakeOutboxRepository) MarkFailed(ctx context.Context, id, reason string) error {
	return nil
}

type policyServiceDeps struct {
	db         *sql.DB
	sqlMock    sqlmock.Sqlmock
	service    policy.Service
	repo       *fakePolicyRepository
	outbox     *fakeOutboxRepository
	propagator *fakePropagator
}

func setupPolicyServiceTest(t *testing.T) *policyServiceDeps {
	t.Helper()

	db, sqlMock, err := sqlmock.New()
	assert.NoError(t, err)

	repo := &fakePolicyRepository{}
	outbox := &fakeOutboxRepository{}
	propagator := &fakePropagator{}
	svc := policy.NewService(db, repo, outbox, propagator)

	return &policyServiceDeps{
		db:         db,
		sqlMock:    sqlMock,
		service:    svc,
		repo:       repo,
		outbox:     outbox,
		propagator: propagator,
	}
}

func expectTx(t *testing.T, mock sqlmock.Sqlmock, commit bool) {
	t.Helper()
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func activePolicy(companyID string) *policy.LeavePolicy {
	return &policy.LeavePolicy{
		ID:               uuid.New(),
		CompanyID:        uuid.MustParse(companyID),
		LeaveType:        "ANNUAL",
		DefaultAllowance: 20,
		CarryForward:     true,
		MaxCarryForward:  5,
		IsActive:         true,
	}
}

func TestPolicyService_Create(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()
	actorID := uuid.New().String()

	t.Run("success enqueues seeding event", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		var created *policy.LeavePolicy
		deps.repo.createFn = func(ctx context.Context, p *policy.LeavePolicy) error {
			created = p
			return nil
		}

		expectTx(t, deps.sqlMock, true)
		resp, err := deps.service.Create(ctx, companyID, actorID, policy.CreatePolicyRequest{
			LeaveType:        "ANNUAL",
			DefaultAllowance: 20,
			CarryForward:     true,
			MaxCarryForward:  5,
		})

		assert.NoError(t, err)
		assert.True(t, resp.IsActive)
		assert.NotNil(t, created)
		assert.Len(t, deps.outbox.events, 1)
		assert.Equal(t, "leave_policy_created", deps.outbox.events[0].EventType)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("negative duplicate active policy", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		deps.repo.createFn = func(ctx context.Context, p *policy.LeavePolicy) error {
			return &mockPgUniqueError{}
		}

		expectTx(t, deps.sqlMock, false)
		_, err := deps.service.Create(ctx, companyID, actorID, policy.CreatePolicyRequest{
			LeaveType:        "ANNUAL",
			DefaultAllowance: 20,
		})

		assert.ErrorIs(t, err, policyerrors.ErrDuplicateActivePolicy)
	})

	t.Run("negative max carry without carry forward", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		_, err := deps.service.Create(ctx, companyID, actorID, policy.CreatePolicyRequest{
			LeaveType:        "SICK",
			DefaultAllowance: 10,
			CarryForward:     false,
			MaxCarryForward:  3,
		})

		assert.ErrorIs(t, err, policyerrors.ErrCarryForwardTerms)
	})
}

type mockPgUniqueError struct{}

func (e *mockPgUniqueError) Error() string {
	return `ERROR: duplicate key value violates unique constraint "uq_leave_policies_company_type_active" (SQLSTATE 23505)`
}

func TestPolicyService_Update(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()
	actorID := uuid.New().String()

	t.Run("success propagates and surfaces deficits", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		p := activePolicy(companyID)
		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		reported := []balance.Deficit{{
			EmployeeID: uuid.New().String(),
			LeaveType:  "ANNUAL",
			Year:       time.Now().UTC().Year(),
			Available:  -5,
		}}
		deps.propagator.propagateUpdateFn = func(ctx context.Context, cid string, year int, terms balance.PolicyTerms) ([]balance.Deficit, error) {
			assert.Equal(t, 10, terms.DefaultAllowance)
			return reported, nil
		}

		newAllowance := 10
		expectTx(t, deps.sqlMock, true)
		resp, deficits, err := deps.service.Update(ctx, companyID, actorID, p.ID.String(), policy.UpdatePolicyRequest{
			DefaultAllowance: &newAllowance,
		})

		assert.NoError(t, err)
		assert.Equal(t, 10, resp.DefaultAllowance)
		assert.Len(t, deficits, 1)
		assert.Equal(t, -5, deficits[0].Available)
		assert.Equal(t, 1, deps.propagator.calls)
		assert.Len(t, deps.outbox.events, 1)
		assert.Equal(t, "leave_policy_updated", deps.outbox.events[0].EventType)
	})

	t.Run("disabling carry forward zeroes the cap", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		p := activePolicy(companyID)
		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		off := false
		expectTx(t, deps.sqlMock, true)
		resp, _, err := deps.service.Update(ctx, companyID, actorID, p.ID.String(), policy.UpdatePolicyRequest{
			CarryForward: &off,
		})

		assert.NoError(t, err)
		assert.False(t, resp.CarryForward)
		assert.Equal(t, 0, resp.MaxCarryForward)
	})

	t.Run("negative deactivated policy cannot be updated", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		p := activePolicy(companyID)
		p.IsActive = false
		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		newAllowance := 15
		expectTx(t, deps.sqlMock, false)
		_, _, err := deps.service.Update(ctx, companyID, actorID, p.ID.String(), policy.UpdatePolicyRequest{
			DefaultAllowance: &newAllowance,
		})

		assert.ErrorIs(t, err, policyerrors.ErrPolicyNotFound)
		assert.Equal(t, 0, deps.propagator.calls)
	})

	t.Run("negative unknown policy", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		newAllowance := 15
		expectTx(t, deps.sqlMock, false)
		_, _, err := deps.service.Update(ctx, companyID, actorID, uuid.New().String(), policy.UpdatePolicyRequest{
			DefaultAllowance: &newAllowance,
		})

		assert.ErrorIs(t, err, policyerrors.ErrPolicyNotFound)
	})
}

func TestPolicyService_Deactivate(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()
	actorID := uuid.New().String()

	t.Run("success freezes the policy", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		p := activePolicy(companyID)
		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		expectTx(t, deps.sqlMock, true)
		resp, err := deps.service.Deactivate(ctx, companyID, actorID, p.ID.String())

		assert.NoError(t, err)
		assert.False(t, resp.IsActive)
		assert.NotNil(t, resp.DeactivatedAt)
		assert.Equal(t, 0, deps.propagator.calls)
		assert.Len(t, deps.outbox.events, 1)
		assert.Equal(t, "leave_policy_deactivated", deps.outbox.events[0].EventType)
	})

	t.Run("negative double deactivate", func(t *testing.T) {
		deps := setupPolicyServiceTest(t)
		defer deps.db.Close()

		p := activePolicy(companyID)
		now := time.Now().UTC()
		p.IsActive = false
		p.DeactivatedAt = &now
		deps.repo.findByIDAndCompanyFn = func(ctx context.Context, cid, id string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		expectTx(t, deps.sqlMock, false)
		_, err := deps.service.Deactivate(ctx, companyID, actorID, p.ID.String())

		assert.ErrorIs(t, err, policyerrors.ErrPolicyNotFound)
	})
}

func TestTermsProvider(t *testing.T) {
	ctx := context.Background()
	companyID := uuid.New().String()

	t.Run("active terms maps the policy", func(t *testing.T) {
		repo := &fakePolicyRepository{}
		p := activePolicy(companyID)
		repo.findActiveByTypeFn = func(ctx context.Context, cid, lt string) (*policy.LeavePolicy, error) {
			return p, nil
		}

		terms, err := policy.NewTermsProvider(repo).ActiveTerms(ctx, companyID, "ANNUAL")

		assert.NoError(t, err)
		assert.NotNil(t, terms)
		assert.Equal(t, 20, terms.DefaultAllowance)
		assert.Equal(t, 5, terms.MaxCarryForward)
	})

	t.Run("no active policy yields nil terms", func(t *testing.T) {
		repo := &fakePolicyRepository{}

		terms, err := policy.NewTermsProvider(repo).ActiveTerms(ctx, companyID, "SICK")

		assert.NoError(t, err)
		assert.Nil(t, terms)
	})
}
