package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"go-leave/internal/balance"
	balanceerrors "go-leave/internal/balance/errors"
	"go-leave/internal/calendar"
	"go-leave/internal/directory"
	"go-leave/internal/events"
	"go-leave/internal/messaging/kafka"
	requesterrors "go-leave/internal/request/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
	StatusCanceled = "CANCELLED"
)

// SystemRejectionReason marks a request the engine rejected itself because
// the balance ran out between creation and approval.
const SystemRejectionReason = "auto-rejected: insufficient leave balance at approval"

//go:generate mockgen -source=request_service.go -destination=mock/request_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, companyID, actorID string, req CreateLeaveRequest) (LeaveResponse, error)
	GetAll(ctx context.Context, companyID string, filters ListFilters) ([]LeaveResponse, error)
	GetByID(ctx context.Context, companyID, id string) (LeaveResponse, error)
	Approve(ctx context.Context, companyID, actorID, id string) (LeaveResponse, error)
	Reject(ctx context.Context, companyID, actorID, id, rejectionReason string) (LeaveResponse, error)
	Cancel(ctx context.Context, companyID, actorID, id string) (LeaveResponse, error)
}

type service struct {
	db         *sql.DB
	repo       Repository
	balances   balance.Repository
	balanceSvc balance.Service
	employees  directory.EmployeeDirectory
	cal        calendar.Calendar
	outbox     kafka.OutboxRepository
	rdb        *redis.Client
	logger     *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	balances balance.Repository,
	balanceSvc balance.Service,
	employees directory.EmployeeDirectory,
	cal calendar.Calendar,
	outboxRepo kafka.OutboxRepository,
	rdb *redis.Client,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("request.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("request.service")
	}
	return &service{
		db:         db,
		repo:       repo,
		balances:   balances,
		balanceSvc: balanceSvc,
		employees:  employees,
		cal:        cal,
		outbox:     outboxRepo,
		rdb:        rdb,
		logger:     l,
	}
}

func (s *service) Create(ctx context.Context, companyID, actorID string, req CreateLeaveRequest) (LeaveResponse, error) {
	s.logger.Debug("create leave request",
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
		zap.String("employee_id", req.EmployeeID),
		zap.String("start_date", req.StartDate),
		zap.String("end_date", req.EndDate),
	)

	companyUUID, employeeUUID, createdByUUID, startDate, endDate, err := validateCreateRequest(companyID, actorID, req)
	if err != nil {
		s.logger.Warn("create leave request validation failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	// The calendar is an external collaborator; it runs before the
	// transaction so no ledger row is held across the call.
	totalDays := s.cal.BusinessDays(startDate, endDate)
	if totalDays <= 0 {
		return LeaveResponse{}, requesterrors.ErrZeroDayRequest
	}

	belongs, err := s.employees.BelongsToCompany(ctx, companyID, req.EmployeeID)
	if err != nil {
		s.logger.Error("create leave request membership check failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !belongs {
		return LeaveResponse{}, requesterrors.ErrEmployeeNotInCompany
	}

	// Availability pre-check only. Nothing is reserved here: the debit is
	// deferred to approval, where availability is re-checked.
	bal, err := s.balanceSvc.GetOrCreate(ctx, companyID, req.EmployeeID, req.LeaveType, startDate.Year())
	if err != nil {
		return LeaveResponse{}, err
	}
	if totalDays > bal.Available {
		s.logger.Warn("create leave request insufficient balance",
			zap.String("employee_id", req.EmployeeID),
			zap.Int("total_days", totalDays),
			zap.Int("available", bal.Available),
		)
		return LeaveResponse{}, balanceerrors.ErrInsufficientBalance
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("create leave request begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	overlap, err := qtx.HasOverlappingPeriod(ctx, companyID, req.EmployeeID, startDate, endDate, nil)
	if err != nil {
		s.logger.Error("create leave request overlap check failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if overlap {
		s.logger.Warn("create leave request overlap detected",
			zap.String("company_id", companyID),
			zap.String("employee_id", req.EmployeeID),
			zap.String("start_date", req.StartDate),
			zap.String("end_date", req.EndDate),
		)
		return LeaveResponse{}, requesterrors.ErrLeaveOverlap
	}

	l := &LeaveRequest{
		ID:         uuid.New(),
		CompanyID:  companyUUID,
		EmployeeID: employeeUUID,
		LeaveType:  req.LeaveType,
		StartDate:  startDate,
		EndDate:    endDate,
		TotalDays:  totalDays,
		Reason:     req.Reason,
		Status:     StatusPending,
		CreatedBy:  createdByUUID,
		Version:    1,
	}

	if err := qtx.Create(ctx, l); err != nil {
		s.logger.Error("create leave request persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := s.enqueueLifecycleEvent(ctx, tx, events.LeaveRequestCreated, l, actorID); err != nil {
		s.logger.Error("enqueue leave request created event failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("create leave request commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	s.logger.Info("create leave request success",
		zap.String("request_id", l.ID.String()),
		zap.String("company_id", companyID),
		zap.String("employee_id", req.EmployeeID),
		zap.Int("total_days", totalDays),
	)
	return mapToResponse(*l), nil
}

func (s *service) GetAll(ctx context.Context, companyID string, filters ListFilters) ([]LeaveResponse, error) {
	requests, err := s.repo.FindAllByCompany(ctx, companyID, filters)
	if err != nil {
		return nil, err
	}
	return mapToListResponse(requests), nil
}

func (s *service) GetByID(ctx context.Context, companyID, id string) (LeaveResponse, error) {
	l, err := s.repo.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, requesterrors.ErrRequestNotFound
		}
		return LeaveResponse{}, err
	}
	return mapToResponse(*l), nil
}

// Approve re-validates availability at the moment of the debit, not trusting
// the creation-time pre-check. When the re-check fails the request is
// committed to REJECTED with a system reason: first approver wins, the loser
// never leaves the request stuck.
func (s *service) Approve(ctx context.Context, companyID, actorID, id string) (LeaveResponse, error) {
	s.logger.Debug("approve leave request",
		zap.String("request_id", id),
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidCompanyID
	}
	actorUUID, err := uuid.Parse(actorID)
	if err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidActorID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("approve leave request begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	btx := s.balances.WithTx(tx)

	l, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, requesterrors.ErrRequestNotFound
		}
		return LeaveResponse{}, err
	}
	if l.Status != StatusPending {
		return LeaveResponse{}, requesterrors.ErrInvalidStatusTransition
	}

	year := l.StartDate.Year()
	b, err := btx.Find(ctx, companyID, l.EmployeeID.String(), l.LeaveType, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, balanceerrors.ErrBalanceNotFound
		}
		return LeaveResponse{}, err
	}

	balanceVersion := b.Version
	requestVersion := l.Version

	if debitErr := balance.ApplyDebit(b, l.TotalDays); debitErr != nil {
		if !errors.Is(debitErr, balanceerrors.ErrInsufficientBalance) {
			return LeaveResponse{}, debitErr
		}

		// Re-check lost: another request consumed the balance first.
		reason := SystemRejectionReason
		l.Status = StatusRejected
		l.RejectionReason = &reason
		l.ApprovedBy = nil
		l.ApprovedAt = nil

		ok, err := qtx.UpdateVersioned(ctx, l, requestVersion)
		if err != nil {
			s.logger.Error("auto-reject persist failed", zap.Error(err))
			return LeaveResponse{}, err
		}
		if !ok {
			return LeaveResponse{}, requesterrors.ErrConcurrentModification
		}
		if err := s.enqueueLifecycleEvent(ctx, tx, events.LeaveRequestAutoRejected, l, actorID); err != nil {
			s.logger.Error("enqueue auto-reject event failed", zap.Error(err))
			return LeaveResponse{}, err
		}
		if err := tx.Commit(); err != nil {
			s.logger.Error("auto-reject commit failed", zap.Error(err))
			return LeaveResponse{}, err
		}

		s.logger.Warn("leave request auto-rejected on approval re-check",
			zap.String("request_id", id),
			zap.Int("total_days", l.TotalDays),
			zap.Int("available", b.Available()),
		)
		return mapToResponse(*l), nil
	}

	ok, err := btx.UpdateVersioned(ctx, b, balanceVersion)
	if err != nil {
		s.logger.Error("approve debit persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		return LeaveResponse{}, balanceerrors.ErrConcurrentModification
	}

	now := time.Now().UTC()
	l.Status = StatusApproved
	l.ApprovedBy = &actorUUID
	l.ApprovedAt = &now
	l.RejectionReason = nil

	ok, err = qtx.UpdateVersioned(ctx, l, requestVersion)
	if err != nil {
		s.logger.Error("approve leave request persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		// rollback also undoes the debit, nothing partial survives
		return LeaveResponse{}, requesterrors.ErrConcurrentModification
	}

	if err := s.enqueueLifecycleEvent(ctx, tx, events.LeaveRequestApproved, l, actorID); err != nil {
		s.logger.Error("enqueue approve event failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("approve leave request commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	s.invalidateBalanceCache(ctx, companyID, l.EmployeeID.String())

	s.logger.Info("approve leave request success",
		zap.String("request_id", id),
		zap.String("approver_id", actorID),
		zap.Int("total_days", l.TotalDays),
	)
	return mapToResponse(*l), nil
}

func (s *service) Reject(ctx context.Context, companyID, actorID, id, rejectionReason string) (LeaveResponse, error) {
	s.logger.Debug("reject leave request",
		zap.String("request_id", id),
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidActorID
	}
	if rejectionReason == "" {
		return LeaveResponse{}, requesterrors.ErrRejectionReasonRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("reject leave request begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	l, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, requesterrors.ErrRequestNotFound
		}
		return LeaveResponse{}, err
	}
	if l.Status != StatusPending {
		return LeaveResponse{}, requesterrors.ErrInvalidStatusTransition
	}

	requestVersion := l.Version
	l.Status = StatusRejected
	l.RejectionReason = &rejectionReason
	l.ApprovedBy = nil
	l.ApprovedAt = nil

	ok, err := qtx.UpdateVersioned(ctx, l, requestVersion)
	if err != nil {
		s.logger.Error("reject leave request persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		return LeaveResponse{}, requesterrors.ErrConcurrentModification
	}

	// Nothing was ever debited for a pending request, so no ledger effect.
	if err := s.enqueueLifecycleEvent(ctx, tx, events.LeaveRequestRejected, l, actorID); err != nil {
		s.logger.Error("enqueue reject event failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("reject leave request commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	s.logger.Info("reject leave request success", zap.String("request_id", id))
	return mapToResponse(*l), nil
}

// Cancel is allowed from PENDING (no ledger effect) and from APPROVED, where
// it credits the debited days back before flipping the status.
func (s *service) Cancel(ctx context.Context, companyID, actorID, id string) (LeaveResponse, error) {
	s.logger.Debug("cancel leave request",
		zap.String("request_id", id),
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return LeaveResponse{}, requesterrors.ErrInvalidActorID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("cancel leave request begin tx failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	l, err := qtx.FindByIDAndCompany(ctx, companyID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return LeaveResponse{}, requesterrors.ErrRequestNotFound
		}
		return LeaveResponse{}, err
	}

	wasApproved := false
	switch l.Status {
	case StatusPending:
		// fallthrough to the status flip
	case StatusApproved:
		wasApproved = true
	default:
		return LeaveResponse{}, requesterrors.ErrInvalidStatusTransition
	}

	if wasApproved {
		// Credit is a same-year operation; a cancellation whose debit would
		// have to be split across two policy years is not supported.
		if l.StartDate.Year() != l.EndDate.Year() {
			return LeaveResponse{}, requesterrors.ErrCrossYearCancellation
		}

		btx := s.balances.WithTx(tx)
		b, err := btx.Find(ctx, companyID, l.EmployeeID.String(), l.LeaveType, l.StartDate.Year())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return LeaveResponse{}, balanceerrors.ErrBalanceNotFound
			}
			return LeaveResponse{}, err
		}

		balanceVersion := b.Version
		if err := balance.ApplyCredit(b, l.TotalDays); err != nil {
			return LeaveResponse{}, err
		}
		ok, err := btx.UpdateVersioned(ctx, b, balanceVersion)
		if err != nil {
			s.logger.Error("cancel credit persist failed", zap.Error(err))
			return LeaveResponse{}, err
		}
		if !ok {
			return LeaveResponse{}, balanceerrors.ErrConcurrentModification
		}
	}

	requestVersion := l.Version
	l.Status = StatusCanceled

	ok, err := qtx.UpdateVersioned(ctx, l, requestVersion)
	if err != nil {
		s.logger.Error("cancel leave request persist failed", zap.Error(err))
		return LeaveResponse{}, err
	}
	if !ok {
		return LeaveResponse{}, requesterrors.ErrConcurrentModification
	}

	if err := s.enqueueLifecycleEvent(ctx, tx, events.LeaveRequestCancelled, l, actorID); err != nil {
		s.logger.Error("enqueue cancel event failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("cancel leave request commit failed", zap.Error(err))
		return LeaveResponse{}, err
	}

	if wasApproved {
		s.invalidateBalanceCache(ctx, companyID, l.EmployeeID.String())
	}

	s.logger.Info("cancel leave request success",
		zap.String("request_id", id),
		zap.Bool("credited", wasApproved),
	)
	return mapToResponse(*l), nil
}

func (s *service) enqueueLifecycleEvent(ctx context.Context, tx *sql.Tx, eventType string, l *LeaveRequest, actorID string) error {
	if s.outbox == nil {
		return nil
	}

	event := events.LeaveRequestEvent{
		EventType:  eventType,
		RequestID:  l.ID.String(),
		CompanyID:  l.CompanyID.String(),
		EmployeeID: l.EmployeeID.String(),
		LeaveType:  l.LeaveType,
		TotalDays:  l.TotalDays,
		Status:     l.Status,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: "leave_request",
		AggregateID:   l.ID.String(),
		EventType:     eventType,
		Topic:         events.LeaveRequestLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	})
}

func (s *service) invalidateBalanceCache(ctx context.Context, companyID, employeeID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, balance.EmployeeBalancesKey(companyID, employeeID)).Err(); err != nil {
		s.logger.Warn("invalidate balance cache failed",
			zap.String("employee_id", employeeID),
			zap.Error(err),
		)
	}
}

func validateCreateRequest(companyID, actorID string, req CreateLeaveRequest) (uuid.UUID, uuid.UUID, uuid.UUID, time.Time, time.Time, error) {
	companyUUID, err := uuid.Parse(companyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, requesterrors.ErrInvalidCompanyID
	}
	employeeUUID, err := uuid.Parse(req.EmployeeID)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, requesterrors.ErrInvalidEmployeeID
	}
	createdByUUID, err := uuid.Parse(actorID)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, requesterrors.ErrInvalidActorID
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, err
	}
	if startDate.After(endDate) {
		return uuid.Nil, uuid.Nil, uuid.Nil, time.Time{}, time.Time{}, requesterrors.ErrInvalidDateRange
	}
	return companyUUID, employeeUUID, createdByUUID, startDate, endDate, nil
}

func parseDate(v string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, requesterrors.ErrInvalidDateFormat
	}
	return t, nil
}
