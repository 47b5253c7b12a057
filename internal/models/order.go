package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "ORDER_STATUS_PENDING"
	OrderStatusConfirmed      OrderStatus = "ORDER_STATUS_CONFIRMED"
	OrderStatusPreparing      OrderStatus = "ORDER_STATUS_PREPARING"
	OrderStatusReadyForPickup OrderStatus = "ORDER_STATUS_READY_FOR_PICKUP"
	OrderStatusOutForDelivery OrderStatus = "ORDER_STATUS_OUT_FOR_DELIVERY"
	OrderStatusDelivered      OrderStatus = "ORDER_STATUS_DELIVERED"
	OrderStatusCancelled      OrderStatus = "ORDER_STATUS_CANCELLED"
	OrderStatusFailed         OrderStatus = "ORDER_STATUS_FAILED"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusSuccessful        PaymentStatus = "SUCCESSFUL"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusRefundInitiated   PaymentStatus = "REFUND_INITIATED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
)

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodCOD    PaymentMethod = "COD"
)

// Prepaid reports whether money was collected before fulfillment and can be refunded.
func (m PaymentMethod) Prepaid() bool {
	return m == PaymentMethodCard || m == PaymentMethodWallet
}

type Order struct {
	ID            uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID    uuid.UUID     `gorm:"type:uuid;not null;index"`
	StoreID       uuid.UUID     `gorm:"type:uuid;not null;index"`
	Status        OrderStatus   `gorm:"type:text;not null;default:'ORDER_STATUS_PENDING';index"`
	PaymentStatus PaymentStatus `gorm:"type:text;not null;default:'PENDING'"`
	PaymentMethod PaymentMethod `gorm:"type:text;not null"`

	ItemSubtotal   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	DeliveryFee    decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Tip            decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	FinalTotal     decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	CouponID     *uuid.UUID `gorm:"type:uuid;index"`
	CancelReason *string    `gorm:"type:text"`
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time

	CreatedAt time.Time `gorm:"not null;default:now();index"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`

	Lines []OrderLine `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (Order) TableName() string { return "orders" }

// OrderLine is an immutable item snapshot; only Quantity may shrink.
type OrderLine struct {
	ID        uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	SummaryID uuid.UUID       `gorm:"type:uuid;not null"`
	ItemName  string          `gorm:"type:text;not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Quantity  int32           `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (OrderLine) TableName() string { return "order_lines" }

func (l OrderLine) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt32(l.Quantity))
}

type Payment struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	Method         PaymentMethod   `gorm:"type:text;not null"`
	Status         PaymentStatus   `gorm:"type:text;not null;default:'PENDING'"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	RefundedAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	TransactionID  *string         `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Payment) TableName() string { return "payments" }

// Refundable is what is left of the collected amount after refunds already promised.
func (p Payment) Refundable() decimal.Decimal {
	r := p.Amount.Sub(p.RefundedAmount)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

type Coupon struct {
	ID           uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Code         string           `gorm:"type:text;not null;uniqueIndex"`
	DiscountType DiscountType     `gorm:"type:text;not null"`
	Value        decimal.Decimal  `gorm:"type:numeric(12,2);not null"`
	MaxDiscount  *decimal.Decimal `gorm:"type:numeric(12,2)"`
	MinPurchase  decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	ValidFrom    time.Time        `gorm:"not null"`
	ValidTo      time.Time        `gorm:"not null"`
	UsageLimit   *int32
	UsedCount    int32 `gorm:"not null;default:0"`
	IsActive     bool  `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Coupon) TableName() string { return "coupons" }
