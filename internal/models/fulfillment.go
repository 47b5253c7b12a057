package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PickUnitStatus string

const (
	PickUnitPending   PickUnitStatus = "PENDING"
	PickUnitCompleted PickUnitStatus = "COMPLETED"
	PickUnitCancelled PickUnitStatus = "CANCELLED"
	PickUnitIssue     PickUnitStatus = "ISSUE"
)

// PickUnit is one (item, location, quantity) instruction for a warehouse worker.
// OrderLineID becomes NULL once the line is deleted by a partial cancellation.
type PickUnit struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID     uuid.UUID      `gorm:"type:uuid;not null;index"`
	OrderLineID *uuid.UUID     `gorm:"type:uuid;index"`
	StoreID     uuid.UUID      `gorm:"type:uuid;not null"`
	SummaryID   uuid.UUID      `gorm:"type:uuid;not null"`
	LocationID  uuid.UUID      `gorm:"type:uuid;not null"`
	Quantity    int32          `gorm:"not null"`
	Status      PickUnitStatus `gorm:"type:text;not null;default:'PENDING'"`
	WorkerID    *uuid.UUID     `gorm:"type:uuid;index"`
	AssignedAt  *time.Time
	CompletedAt *time.Time
	Note        *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (PickUnit) TableName() string { return "pick_units" }

// Open reports whether the unit still holds reserved stock.
func (u PickUnit) Open() bool {
	return u.Status == PickUnitPending || u.Status == PickUnitIssue
}

type DeliveryStatus string

const (
	DeliveryStatusAwaitingPrep      DeliveryStatus = "DELIVERY_STATUS_AWAITING_PREP"
	DeliveryStatusPendingAcceptance DeliveryStatus = "DELIVERY_STATUS_PENDING_ACCEPTANCE"
	DeliveryStatusAccepted          DeliveryStatus = "DELIVERY_STATUS_ACCEPTED"
	DeliveryStatusAtStore           DeliveryStatus = "DELIVERY_STATUS_AT_STORE"
	DeliveryStatusPickedUp          DeliveryStatus = "DELIVERY_STATUS_PICKED_UP"
	DeliveryStatusDelivered         DeliveryStatus = "DELIVERY_STATUS_DELIVERED"
	DeliveryStatusCancelled         DeliveryStatus = "DELIVERY_STATUS_CANCELLED"
)

type Delivery struct {
	ID               uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex"`
	Status           DeliveryStatus `gorm:"type:text;not null;default:'DELIVERY_STATUS_AWAITING_PREP'"`
	RiderID          *uuid.UUID     `gorm:"type:uuid;index"`
	PendingSince     *time.Time
	AcceptedAt       *time.Time
	AtStoreAt        *time.Time
	PickedUpAt       *time.Time
	DeliveredAt      *time.Time
	CancelledAt      *time.Time
	LastRetriedAt    *time.Time
	DispatchAttempts int32 `gorm:"not null;default:0"`
	Rating           *int16

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Delivery) TableName() string { return "deliveries" }

type JobKind string

const (
	JobKindRefund JobKind = "REFUND"
	JobKindNotify JobKind = "NOTIFY"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusDone       JobStatus = "DONE"
	JobStatusDead       JobStatus = "DEAD"
)

// Job is an outbox row written in the same transaction as the state change it follows.
type Job struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Kind           JobKind         `gorm:"type:text;not null"`
	IdempotencyKey string          `gorm:"type:text;not null;uniqueIndex"`
	Payload        json.RawMessage `gorm:"type:jsonb;not null"`
	Status         JobStatus       `gorm:"type:text;not null;default:'PENDING'"`
	Attempts       int32           `gorm:"not null;default:0"`
	NextAttemptAt  time.Time       `gorm:"not null;default:now()"`
	LockedAt       *time.Time
	LockedBy       *string `gorm:"type:text"`
	LastError      *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Job) TableName() string { return "jobs" }

// RefundPayload is the body of a REFUND job.
type RefundPayload struct {
	OrderID       uuid.UUID `json:"order_id"`
	PaymentID     uuid.UUID `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	AmountMinor   int64     `json:"amount_minor"`
	Partial       bool      `json:"partial"`
}

// NotifyPayload is the body of a NOTIFY job.
type NotifyPayload struct {
	RecipientType string         `json:"recipient_type"`
	RecipientID   uuid.UUID      `json:"recipient_id"`
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
}
