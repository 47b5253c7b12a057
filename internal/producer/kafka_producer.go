package producer

import (
	"context"
	"encoding/json"
	"time"

	"fulfillment-service/internal/service"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes notifications and order tracking events. Messages are keyed
// by recipient and by order so each stream stays ordered within a partition.
type KafkaNotifier struct {
	notifications messageWriter
	tracking      messageWriter
	timeout       time.Duration
}

func NewKafkaNotifier(brokers []string, notificationsTopic, trackingTopic string) *KafkaNotifier {
	return &KafkaNotifier{
		notifications: newWriter(brokers, notificationsTopic),
		tracking:      newWriter(brokers, trackingTopic),
		timeout:       5 * time.Second,
	}
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

type notificationMessage struct {
	RecipientType string         `json:"recipient_type"`
	RecipientID   string         `json:"recipient_id"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
	SentAt        time.Time      `json:"sent_at"`
}

func (p *KafkaNotifier) Notify(ctx context.Context, n service.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	value, err := json.Marshal(notificationMessage{
		RecipientType: string(n.RecipientType),
		RecipientID:   n.RecipientID.String(),
		Type:          n.Type,
		Payload:       n.Payload,
		SentAt:        time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.notifications.WriteMessages(ctx, kafka.Message{
		Key:   []byte(string(n.RecipientType) + ":" + n.RecipientID.String()),
		Value: value,
	})
}

func (p *KafkaNotifier) BroadcastOrder(ctx context.Context, orderID uuid.UUID, payload map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	value, err := json.Marshal(map[string]any{
		"order_id": orderID.String(),
		"event":    payload,
	})
	if err != nil {
		return err
	}
	return p.tracking.WriteMessages(ctx, kafka.Message{
		Key:   []byte(orderID.String()),
		Value: value,
	})
}

func (p *KafkaNotifier) Close() error {
	errN := p.notifications.Close()
	errT := p.tracking.Close()
	if errN != nil {
		return errN
	}
	return errT
}
