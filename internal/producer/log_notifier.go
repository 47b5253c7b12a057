package producer

import (
	"context"

	"fulfillment-service/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used when no Kafka brokers are configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, msg service.Notification) error {
	n.log.Info("notification",
		zap.String("recipient_type", string(msg.RecipientType)),
		zap.Stringer("recipient_id", msg.RecipientID),
		zap.String("type", msg.Type),
		zap.Any("payload", msg.Payload),
	)
	return nil
}

func (n *LogNotifier) BroadcastOrder(_ context.Context, orderID uuid.UUID, payload map[string]any) error {
	n.log.Debug("order broadcast", zap.Stringer("order_id", orderID), zap.Any("payload", payload))
	return nil
}
