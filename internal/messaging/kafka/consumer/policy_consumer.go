package consumer

import (
	"context"
	"encoding/json"

	"go-leave/internal/balance"
	"go-leave/internal/events"
	"go-leave/internal/propagation"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ConsumePolicyLifecycle replays policy mutations into the ledger. Seeding
// and reconciliation are idempotent, so a message that was handled but not
// committed is safe to process again.
func ConsumePolicyLifecycle(
	ctx context.Context,
	reader *kafkago.Reader,
	propagator *propagation.Propagator,
	logger *zap.Logger,
) {
	log := logger.Named("kafka.consumer.policy_lifecycle")
	log.Info("policy lifecycle consumer started")

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("policy lifecycle consumer stopped")
				return
			}
			log.Error("fetch policy lifecycle message failed", zap.Error(err))
			continue
		}

		var event events.LeavePolicyEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			log.Error("decode policy lifecycle event failed", zap.Error(err))
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		terms := balance.PolicyTerms{
			LeaveType:        event.LeaveType,
			DefaultAllowance: event.DefaultAllowance,
			CarryForward:     event.CarryForward,
			MaxCarryForward:  event.MaxCarryForward,
		}

		switch event.EventType {
		case events.LeavePolicyCreated:
			err = propagator.SeedCompany(ctx, event.CompanyID, event.Year, terms)
		case events.LeavePolicyUpdated:
			_, err = propagator.PropagateUpdate(ctx, event.CompanyID, event.Year, terms)
		case events.LeavePolicyDeactivated:
			// nothing to converge, existing rows keep their counters
			err = nil
		default:
			log.Warn("unknown policy lifecycle event type, skipping",
				zap.String("event_type", event.EventType),
			)
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		if err != nil {
			log.Error("apply policy lifecycle event failed",
				zap.String("event_type", event.EventType),
				zap.String("policy_id", event.PolicyID),
				zap.String("company_id", event.CompanyID),
				zap.Error(err),
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit policy lifecycle message failed", zap.Error(err))
			continue
		}

		log.Info("policy lifecycle event applied",
			zap.String("event_type", event.EventType),
			zap.String("policy_id", event.PolicyID),
			zap.String("company_id", event.CompanyID),
			zap.String("leave_type", event.LeaveType),
			zap.Int("year", event.Year),
		)
	}
}
