package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go-leave/internal/balance"
	"go-leave/internal/events"
	"go-leave/internal/messaging/kafka"
	policyerrors "go-leave/internal/policy/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Propagator reconciles existing ledger rows after a policy mutation. The
// propagation package implements it.
type Propagator interface {
	PropagateUpdate(ctx context.Context, companyID string, year int, terms balance.PolicyTerms) ([]balance.Deficit, error)
}

//go:generate mockgen -source=policy_service.go -destination=mock/policy_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, companyID, actorID string, req CreatePolicyRequest) (PolicyResponse, error)
	GetAll(ctx context.Context, companyID string) ([]PolicyResponse, error)
	GetActive(ctx context.Context, companyID, leaveType string) (PolicyResponse, error)
	// Update returns the deficit report alongside the policy: employees whose
	// available went negative under the new terms, for manual follow-up.
	Update(ctx context.Context, companyID, actorID, id string, req UpdatePolicyRequest) (PolicyResponse, []balance.Deficit, error)
	Deactivate(ctx context.Context, companyID, actorID, id string) (PolicyResponse, error)
}

type service struct {
	db         *sql.DB
	repo       Repository
	outbox     kafka.OutboxRepository
	propagator Propagator
	logger     *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	outboxRepo kafka.OutboxRepository,
	propagator Propagator,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("policy.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("policy.service")
	}
	return &service{
		db:         db,
		repo:       repo,
		outbox:     outboxRepo,
		propagator: propagator,
		logger:     l,
	}
}

func (s *service) Create(ctx context.Context, companyID, actorID string, req CreatePolicyRequest) (PolicyResponse, error) {
	s.logger.Debug("create policy requested",
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
		zap.String("leave_type", req.LeaveType),
	)

	companyUUID, err := uuid.Parse(companyID)
	if err != nil {
		return PolicyResponse{}, policyerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return PolicyResponse{}, policyerrors.ErrInvalidActorID
	}
	if err := validateCarryForwardTerms(req.CarryForward, req.MaxCarryForward); err != nil {
		return PolicyResponse{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("create policy begin tx failed", zap.Error(err))
		return PolicyResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	p := &LeavePolicy{
		ID:               uuid.New(),
		CompanyID:        companyUUID,
		LeaveType:        req.LeaveType,
		DefaultAllowance: req.DefaultAllowance,
		CarryForward:     req.CarryForward,
		MaxCarryForward:  req.MaxCarryForward,
		IsActive:         true,
	}

	if err := qtx.Create(ctx, p); err != nil {
		mapped := mapRepositoryError(err)
		if errors.Is(mapped, policyerrors.ErrDuplicateActivePolicy) {
			s.logger.Warn("create policy conflict",
				zap.String("company_id", companyID),
				zap.String("leave_type", req.LeaveType),
			)
		} else {
			s.logger.Error("create policy persist failed", zap.Error(err))
		}
		return PolicyResponse{}, mapped
	}

	// Seeding for existing employees runs as an at-least-once fan-out: the
	// consumer replays this event and getOrCreate makes replays no-ops.
	if err := s.enqueuePolicyEvent(ctx, tx, events.LeavePolicyCreated, p); err != nil {
		s.logger.Error("enqueue policy created event failed", zap.Error(err))
		return PolicyResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("create policy commit failed", zap.Error(err))
		return PolicyResponse{}, err
	}

	s.logger.Info("create policy success",
		zap.String("policy_id", p.ID.String()),
		zap.String("company_id", companyID),
		zap.String("leave_type", p.LeaveType),
	)
	return mapToResponse(*p), nil
}

func (s *service) GetAll(ctx context.Context, companyID string) ([]PolicyResponse, error) {
	policies, err := s.repo.FindAllByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return mapToListResponse(policies), nil
}

func (s *service) GetActive(ctx context.Context, companyID, leaveType string) (PolicyResponse, error) {
	p, err := s.repo.FindActiveByType(ctx, companyID, leaveType)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PolicyResponse{}, policyerrors.ErrPolicyNotFound
		}
		return PolicyResponse{}, err
	}
	return mapToResponse(*p), nil
}

func (s *service) Update(ctx context.Context, companyID, actorID, id string, req UpdatePolicyRequest) (PolicyResponse, []balance.Deficit, error) {
	s.logger.Debug("update policy requested",
		zap.String("policy_id", id),
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return PolicyResponse{}, nil, policyerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return PolicyResponse{}, nil, policyerrors.ErrInvalidActorID
	}
	if _, err := uuid.Parse(id); err != nil {
		return PolicyResponse{}, nil, policyerrors.ErrInvalidPolicyID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("update policy begin tx failed", zap.Error(err))
		return PolicyResponse{}, nil, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	p, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PolicyResponse{}, nil, policyerrors.ErrPolicyNotFound
		}
		return PolicyResponse{}, nil, err
	}
	if !p.Active() {
		return PolicyResponse{}, nil, policyerrors.ErrPolicyNotFound
	}

	if req.DefaultAllowance != nil {
		p.DefaultAllowance = *req.DefaultAllowance
	}
	if req.CarryForward != nil {
		p.CarryForward = *req.CarryForward
	}
	if req.MaxCarryForward != nil {
		p.MaxCarryForward = *req.MaxCarryForward
	}
	if !p.CarryForward {
		// disabling carry-forward zeroes the cap as well
		p.MaxCarryForward = 0
	}
	if err := validateCarryForwardTerms(p.CarryForward, p.MaxCarryForward); err != nil {
		return PolicyResponse{}, nil, err
	}

	if err := qtx.Update(ctx, p); err != nil {
		s.logger.Error("update policy persist failed", zap.Error(err))
		return PolicyResponse{}, nil, err
	}

	if err := s.enqueuePolicyEvent(ctx, tx, events.LeavePolicyUpdated, p); err != nil {
		s.logger.Error("enqueue policy updated event failed", zap.Error(err))
		return PolicyResponse{}, nil, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("update policy commit failed", zap.Error(err))
		return PolicyResponse{}, nil, err
	}

	// Synchronous propagation so the caller gets the deficit report; the
	// consumer replays the same reconciliation for convergence if this pass
	// is interrupted.
	year := time.Now().UTC().Year()
	deficits, err := s.propagator.PropagateUpdate(ctx, companyID, year, p.Terms())
	if err != nil {
		s.logger.Error("propagate policy update failed",
			zap.String("policy_id", id),
			zap.Error(err),
		)
		return PolicyResponse{}, nil, err
	}

	s.logger.Info("update policy success",
		zap.String("policy_id", id),
		zap.Int("deficits", len(deficits)),
	)
	return mapToResponse(*p), deficits, nil
}

func (s *service) Deactivate(ctx context.Context, companyID, actorID, id string) (PolicyResponse, error) {
	s.logger.Debug("deactivate policy requested",
		zap.String("policy_id", id),
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return PolicyResponse{}, policyerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(id); err != nil {
		return PolicyResponse{}, policyerrors.ErrInvalidPolicyID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("deactivate policy begin tx failed", zap.Error(err))
		return PolicyResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	p, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PolicyResponse{}, policyerrors.ErrPolicyNotFound
		}
		return PolicyResponse{}, err
	}
	if !p.Active() {
		return PolicyResponse{}, policyerrors.ErrPolicyNotFound
	}

	now := time.Now().UTC()
	p.IsActive = false
	p.DeactivatedAt = &now

	if err := qtx.Update(ctx, p); err != nil {
		s.logger.Error("deactivate policy persist failed", zap.Error(err))
		return PolicyResponse{}, err
	}

	if err := s.enqueuePolicyEvent(ctx, tx, events.LeavePolicyDeactivated, p); err != nil {
		s.logger.Error("enqueue policy deactivated event failed", zap.Error(err))
		return PolicyResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("deactivate policy commit failed", zap.Error(err))
		return PolicyResponse{}, err
	}

	// Existing balances freeze as-is: no further seeding or reconciliation
	// happens for this type, but history stays readable.
	s.logger.Info("deactivate policy success", zap.String("policy_id", id))
	return mapToResponse(*p), nil
}

func (s *service) enqueuePolicyEvent(ctx context.Context, tx *sql.Tx, eventType string, p *LeavePolicy) error {
	if s.outbox == nil {
		return nil
	}

	event := events.LeavePolicyEvent{
		EventType:        eventType,
		PolicyID:         p.ID.String(),
		CompanyID:        p.CompanyID.String(),
		LeaveType:        p.LeaveType,
		DefaultAllowance: p.DefaultAllowance,
		CarryForward:     p.CarryForward,
		MaxCarryForward:  p.MaxCarryForward,
		Year:             time.Now().UTC().Year(),
		OccurredAt:       time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: "leave_policy",
		AggregateID:   p.ID.String(),
		EventType:     eventType,
		Topic:         events.LeavePolicyLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	})
}

func validateCarryForwardTerms(carryForward bool, maxCarryForward int) error {
	if !carryForward && maxCarryForward > 0 {
		return policyerrors.ErrCarryForwardTerms
	}
	return nil
}
