package balance

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	balanceerrors "go-leave/internal/balance/errors"
	"go-leave/internal/bootstrap"
	"go-leave/internal/events"
	"go-leave/internal/messaging/kafka"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	EmployeeBalancesKeyPrefix = "leave:balances:"
	employeeBalancesCacheTTL  = 5 * time.Minute
)

func EmployeeBalancesKey(companyID, employeeID string) string {
	return EmployeeBalancesKeyPrefix + companyID + ":" + employeeID
}

//go:generate mockgen -source=balance_service.go -destination=mock/balance_service_mock.go -package=mock
type Service interface {
	GetOrCreate(ctx context.Context, companyID, employeeID, leaveType string, year int) (BalanceResponse, error)
	GetEmployeeBalances(ctx context.Context, companyID, employeeID string) ([]BalanceResponse, error)
	Debit(ctx context.Context, companyID, employeeID, leaveType string, year, days int) error
	Credit(ctx context.Context, companyID, employeeID, leaveType string, year, days int) error
	// Reconcile re-derives one row from new policy terms. The returned
	// Deficit is non-nil when the recomputed available went negative.
	Reconcile(ctx context.Context, companyID, employeeID, leaveType string, year int, terms PolicyTerms) (*Deficit, error)
	Adjust(ctx context.Context, companyID, actorID string, req AdjustBalanceRequest) (BalanceResponse, error)
}

type service struct {
	db       *sql.DB
	repo     Repository
	policies PolicyReader
	outbox   kafka.OutboxRepository
	rdb      *redis.Client
	audit    bootstrap.AuditLogger
	sf       *singleflight.Group
	logger   *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	policies PolicyReader,
	outboxRepo kafka.OutboxRepository,
	rdb *redis.Client,
	audit bootstrap.AuditLogger,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("balance.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("balance.service")
	}
	return &service{
		db:       db,
		repo:     repo,
		policies: policies,
		outbox:   outboxRepo,
		rdb:      rdb,
		audit:    audit,
		sf:       &singleflight.Group{},
		logger:   l,
	}
}

func (s *service) GetOrCreate(ctx context.Context, companyID, employeeID, leaveType string, year int) (BalanceResponse, error) {
	if _, err := uuid.Parse(companyID); err != nil {
		return BalanceResponse{}, balanceerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(employeeID); err != nil {
		return BalanceResponse{}, balanceerrors.ErrInvalidEmployeeID
	}

	b, err := s.getOrCreateRow(ctx, s.repo, companyID, employeeID, leaveType, year)
	if err != nil {
		return BalanceResponse{}, err
	}
	return mapToResponse(*b), nil
}

func (s *service) GetEmployeeBalances(ctx context.Context, companyID, employeeID string) ([]BalanceResponse, error) {
	if _, err := uuid.Parse(companyID); err != nil {
		return nil, balanceerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(employeeID); err != nil {
		return nil, balanceerrors.ErrInvalidEmployeeID
	}

	cacheKey := EmployeeBalancesKey(companyID, employeeID)
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var resp []BalanceResponse
			if err := json.Unmarshal([]byte(cached), &resp); err == nil {
				return resp, nil
			}
		}
	}

	// singleflight collapses a thundering herd on a cold key into one
	// database pass
	v, err, _ := s.sf.Do(cacheKey, func() (any, error) {
		return s.loadEmployeeBalances(ctx, companyID, employeeID)
	})
	if err != nil {
		return nil, err
	}
	resp := v.([]BalanceResponse)

	if s.rdb != nil {
		if payload, err := json.Marshal(resp); err == nil {
			_ = s.rdb.Set(ctx, cacheKey, payload, employeeBalancesCacheTTL).Err()
		}
	}

	return resp, nil
}

func (s *service) loadEmployeeBalances(ctx context.Context, companyID, employeeID string) ([]BalanceResponse, error) {
	year := time.Now().UTC().Year()

	terms, err := s.policies.ActiveTermsAll(ctx, companyID)
	if err != nil {
		s.logger.Error("load active policies failed", zap.Error(err))
		return nil, err
	}

	// One list query serves the common all-seeded case; only active policy
	// types still missing a row fall back to lazy seeding.
	rows, err := s.repo.FindAllByEmployee(ctx, companyID, employeeID, year)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]LeaveBalance, len(rows))
	for _, row := range rows {
		byType[row.LeaveType] = row
	}

	resp := make([]BalanceResponse, 0, len(terms))
	for _, t := range terms {
		if row, ok := byType[t.LeaveType]; ok {
			resp = append(resp, mapToResponse(row))
			continue
		}
		b, err := s.getOrCreateRow(ctx, s.repo, companyID, employeeID, t.LeaveType, year)
		if err != nil {
			return nil, err
		}
		resp = append(resp, mapToResponse(*b))
	}

	return resp, nil
}

func (s *service) Debit(ctx context.Context, companyID, employeeID, leaveType string, year, days int) error {
	err := s.mutateRow(ctx, companyID, employeeID, leaveType, year, func(b *LeaveBalance) error {
		return ApplyDebit(b, days)
	})
	if err != nil {
		return err
	}

	s.logger.Info("balance debited",
		zap.String("company_id", companyID),
		zap.String("employee_id", employeeID),
		zap.String("leave_type", leaveType),
		zap.Int("year", year),
		zap.Int("days", days),
	)
	return nil
}

func (s *service) Credit(ctx context.Context, companyID, employeeID, leaveType string, year, days int) error {
	err := s.mutateRow(ctx, companyID, employeeID, leaveType, year, func(b *LeaveBalance) error {
		return ApplyCredit(b, days)
	})
	if err != nil {
		return err
	}

	s.logger.Info("balance credited",
		zap.String("company_id", companyID),
		zap.String("employee_id", employeeID),
		zap.String("leave_type", leaveType),
		zap.Int("year", year),
		zap.Int("days", days),
	)
	return nil
}

func (s *service) Reconcile(ctx context.Context, companyID, employeeID, leaveType string, year int, terms PolicyTerms) (*Deficit, error) {
	// The prior-year row is the ground truth for carry-forward; reconcile
	// re-derives it the same way seeding does.
	var prev *LeaveBalance
	if p, err := s.repo.Find(ctx, companyID, employeeID, leaveType, year-1); err == nil {
		prev = p
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var deficit *Deficit

	err := s.mutateRow(ctx, companyID, employeeID, leaveType, year, func(b *LeaveBalance) error {
		if ApplyReconcile(b, terms, prev) {
			deficit = &Deficit{
				EmployeeID: b.EmployeeID.String(),
				LeaveType:  b.LeaveType,
				Year:       b.Year,
				Available:  b.Available(),
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, balanceerrors.ErrBalanceNotFound) {
			// nothing seeded yet, nothing to reconcile
			return nil, nil
		}
		return nil, err
	}

	if deficit != nil {
		s.logger.Warn("balance deficit after reconcile",
			zap.String("company_id", companyID),
			zap.String("employee_id", employeeID),
			zap.String("leave_type", leaveType),
			zap.Int("available", deficit.Available),
		)
	}
	return deficit, nil
}

func (s *service) Adjust(ctx context.Context, companyID, actorID string, req AdjustBalanceRequest) (BalanceResponse, error) {
	s.logger.Debug("adjust balance requested",
		zap.String("company_id", companyID),
		zap.String("actor_id", actorID),
		zap.String("employee_id", req.EmployeeID),
		zap.Int("delta", req.Delta),
	)

	if _, err := uuid.Parse(companyID); err != nil {
		return BalanceResponse{}, balanceerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(actorID); err != nil {
		return BalanceResponse{}, balanceerrors.ErrInvalidActorID
	}
	if _, err := uuid.Parse(req.EmployeeID); err != nil {
		return BalanceResponse{}, balanceerrors.ErrInvalidEmployeeID
	}
	if req.Delta == 0 {
		return BalanceResponse{}, balanceerrors.ErrInvalidDelta
	}
	if req.Reason == "" {
		return BalanceResponse{}, balanceerrors.ErrAdjustmentReasonRequired
	}

	year := req.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("adjust balance begin tx failed", zap.Error(err))
		return BalanceResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	b, err := s.getOrCreateRow(ctx, qtx, companyID, req.EmployeeID, req.LeaveType, year)
	if err != nil {
		return BalanceResponse{}, err
	}

	expectedVersion := b.Version
	b.Allocated += req.Delta
	if b.Allocated < 0 || b.Available() < 0 {
		return BalanceResponse{}, balanceerrors.ErrNegativeAdjustment
	}

	ok, err := qtx.UpdateVersioned(ctx, b, expectedVersion)
	if err != nil {
		s.logger.Error("adjust balance persist failed", zap.Error(err))
		return BalanceResponse{}, err
	}
	if !ok {
		return BalanceResponse{}, balanceerrors.ErrConcurrentModification
	}

	if s.outbox != nil {
		if err := s.enqueueAdjustedEvent(ctx, tx, companyID, actorID, req, year); err != nil {
			s.logger.Error("enqueue balance adjusted event failed", zap.Error(err))
			return BalanceResponse{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("adjust balance commit failed", zap.Error(err))
		return BalanceResponse{}, err
	}

	s.invalidateCache(ctx, companyID, req.EmployeeID)

	if s.audit != nil {
		s.audit.Log(ctx, bootstrap.AuditLog{
			Action:  "LEAVE_BALANCE_ADJUSTED",
			ActorID: actorID,
			Message: req.Reason,
			Meta: map[string]any{
				"company_id":  companyID,
				"employee_id": req.EmployeeID,
				"leave_type":  req.LeaveType,
				"year":        year,
				"delta":       req.Delta,
			},
		})
	}

	return mapToResponse(*b), nil
}

// mutateRow runs one short, version-guarded transaction against a single
// ledger row. Callers never hold the row across an external call.
func (s *service) mutateRow(ctx context.Context, companyID, employeeID, leaveType string, year int, apply func(*LeaveBalance) error) error {
	if _, err := uuid.Parse(companyID); err != nil {
		return balanceerrors.ErrInvalidCompanyID
	}
	if _, err := uuid.Parse(employeeID); err != nil {
		return balanceerrors.ErrInvalidEmployeeID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("balance mutation begin tx failed", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	b, err := qtx.Find(ctx, companyID, employeeID, leaveType, year)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return balanceerrors.ErrBalanceNotFound
		}
		return err
	}

	expectedVersion := b.Version
	if err := apply(b); err != nil {
		return err
	}

	ok, err := qtx.UpdateVersioned(ctx, b, expectedVersion)
	if err != nil {
		s.logger.Error("balance mutation persist failed", zap.Error(err))
		return err
	}
	if !ok {
		return balanceerrors.ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("balance mutation commit failed", zap.Error(err))
		return err
	}

	s.invalidateCache(ctx, companyID, employeeID)
	return nil
}

// getOrCreateRow seeds lazily from the active policy; a lost insert race is
// resolved by re-reading the winner's row.
func (s *service) getOrCreateRow(ctx context.Context, repo Repository, companyID, employeeID, leaveType string, year int) (*LeaveBalance, error) {
	b, err := repo.Find(ctx, companyID, employeeID, leaveType, year)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	terms, err := s.policies.ActiveTerms(ctx, companyID, leaveType)
	if err != nil {
		return nil, err
	}
	if terms == nil {
		return nil, balanceerrors.ErrNoActivePolicy
	}

	var prev *LeaveBalance
	if p, err := repo.Find(ctx, companyID, employeeID, leaveType, year-1); err == nil {
		prev = p
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	seeded := Seed(uuid.MustParse(companyID), uuid.MustParse(employeeID), year, *terms, prev)
	if err := repo.Create(ctx, seeded); err != nil {
		if isUniqueViolation(err) {
			return repo.Find(ctx, companyID, employeeID, leaveType, year)
		}
		s.logger.Error("seed balance failed",
			zap.String("company_id", companyID),
			zap.String("employee_id", employeeID),
			zap.String("leave_type", leaveType),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("balance seeded",
		zap.String("company_id", companyID),
		zap.String("employee_id", employeeID),
		zap.String("leave_type", leaveType),
		zap.Int("year", year),
		zap.Int("allocated", seeded.Allocated),
		zap.Int("carried_forward", seeded.CarriedForward),
	)
	return seeded, nil
}

func (s *service) enqueueAdjustedEvent(ctx context.Context, tx *sql.Tx, companyID, actorID string, req AdjustBalanceRequest, year int) error {
	event := events.LeaveBalanceAdjustedEvent{
		EventType:  events.LeaveBalanceAdjusted,
		CompanyID:  companyID,
		EmployeeID: req.EmployeeID,
		LeaveType:  req.LeaveType,
		Year:       year,
		Delta:      req.Delta,
		Reason:     req.Reason,
		ActorID:    actorID,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.New().String(),
		AggregateType: "leave_balance",
		AggregateID:   req.EmployeeID,
		EventType:     events.LeaveBalanceAdjusted,
		Topic:         events.LeaveBalanceAuditTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	})
}

func (s *service) invalidateCache(ctx context.Context, companyID, employeeID string) {
	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, EmployeeBalancesKey(companyID, employeeID)).Err(); err != nil {
		s.logger.Warn("invalidate balance cache failed",
			zap.String("employee_id", employeeID),
			zap.Error(err),
		)
	}
}
