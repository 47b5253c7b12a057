package service

import (
	"context"
	"errors"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
)

var (
	// ErrAlreadyRefunded from a gateway means the refund already happened.
	ErrAlreadyRefunded = errors.New("payment already refunded")
	// ErrPermanent marks an external failure that retrying cannot fix.
	ErrPermanent = errors.New("permanent external failure")
	// ErrLockNotObtained is returned by a Locker when another holder owns the key.
	ErrLockNotObtained = errors.New("lock not obtained")
)

type RefundRequest struct {
	TransactionID  string
	AmountMinor    int64
	Partial        bool
	IdempotencyKey string
}

type PaymentGateway interface {
	Refund(ctx context.Context, req RefundRequest) error
}

type RecipientType string

const (
	RecipientCustomer RecipientType = "CUSTOMER"
	RecipientRider    RecipientType = "RIDER"
	RecipientWorker   RecipientType = "WORKER"
	RecipientStore    RecipientType = "STORE"
)

type Notification struct {
	RecipientType RecipientType  `json:"recipient_type"`
	RecipientID   uuid.UUID      `json:"recipient_id"`
	Type          string         `json:"type"`
	Payload       map[string]any `json:"payload,omitempty"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	// BroadcastOrder publishes on the order-scoped tracking channel.
	BroadcastOrder(ctx context.Context, orderID uuid.UUID, payload map[string]any) error
}

type RiderLocator interface {
	Nearby(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]models.RiderCandidate, error)
	UpdatePosition(ctx context.Context, riderID uuid.UUID, lat, lng float64, online bool) error
}

type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Notification types.
const (
	NotifyOrderConfirmed      = "ORDER_CONFIRMED"
	NotifyOrderFailed         = "ORDER_FAILED"
	NotifyOrderReady          = "ORDER_READY_FOR_PICKUP"
	NotifyOrderOutForDelivery = "ORDER_OUT_FOR_DELIVERY"
	NotifyOrderDelivered      = "ORDER_DELIVERED"
	NotifyOrderCancelled      = "ORDER_CANCELLED"
	NotifyOrderUpdated        = "ORDER_UPDATED"
	NotifyWorkAssigned        = "PICK_WORK_ASSIGNED"
	NotifyPickIssue           = "PICK_ISSUE_REPORTED"
	NotifyDeliveryOffer       = "DELIVERY_OFFER"
	NotifyRiderAssigned       = "RIDER_ASSIGNED"
	NotifyDeliveryCancelled   = "DELIVERY_CANCELLED"
)
