package usecase

import (
	"context"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	pkgkafka "TradePulse/pkg/kafka"
	"TradePulse/pkg/logger"
)

// AuditTrail streams every signal and order state change onto Kafka
// topics for downstream compliance and analysis. The trail is advisory:
// a publish failure is logged and counted, never propagated back into
// the trading path.
type AuditTrail struct {
	producer    *pkgkafka.Producer
	signals     repository.SignalBus
	metrics     repository.Metrics
	logger      *logger.Logger
	signalTopic string
	orderTopic  string
}

// NewAuditTrail creates the audit trail over an existing producer.
func NewAuditTrail(producer *pkgkafka.Producer, signals repository.SignalBus, signalTopic, orderTopic string, metrics repository.Metrics, log *logger.Logger) *AuditTrail {
	return &AuditTrail{
		producer:    producer,
		signals:     signals,
		metrics:     metrics,
		logger:      log.With("audit"),
		signalTopic: signalTopic,
		orderTopic:  orderTopic,
	}
}

// Run copies signals from the bus to the signal topic until ctx is done.
func (a *AuditTrail) Run(ctx context.Context) error {
	ch, err := a.signals.Subscribe(ctx, "audit")
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			// Keyed by symbol so one symbol's signals stay ordered.
			if err := a.producer.Publish(ctx, a.signalTopic, []byte(sig.Symbol), sig); err != nil {
				a.metrics.RecordError("audit_signal")
				a.logger.Error("publish signal audit",
					logger.String("strategy", sig.StrategyID),
					logger.Error(err))
			}
		}
	}
}

// OrderEvent records one order state change. Satisfies the order
// manager's audit hook.
func (a *AuditTrail) OrderEvent(ctx context.Context, o *models.Order) {
	if err := a.producer.Publish(ctx, a.orderTopic, []byte(o.OrderID), o); err != nil {
		a.metrics.RecordError("audit_order")
		a.logger.Error("publish order audit",
			logger.String("order_id", o.OrderID),
			logger.String("status", string(o.Status)),
			logger.Error(err))
	}
}

// Close flushes and closes the producer.
func (a *AuditTrail) Close() error {
	return a.producer.Close()
}
