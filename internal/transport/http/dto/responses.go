package dto

import (
	"time"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderLineResponse struct {
	ID        uuid.UUID       `json:"id"`
	SummaryID uuid.UUID       `json:"summary_id"`
	ItemName  string          `json:"item_name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int32           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type OrderResponse struct {
	ID             uuid.UUID           `json:"id"`
	CustomerID     uuid.UUID           `json:"customer_id"`
	StoreID        uuid.UUID           `json:"store_id"`
	Status         string              `json:"status"`
	PaymentStatus  string              `json:"payment_status"`
	PaymentMethod  string              `json:"payment_method"`
	ItemSubtotal   decimal.Decimal     `json:"item_subtotal"`
	DiscountAmount decimal.Decimal     `json:"discount_amount"`
	TaxAmount      decimal.Decimal     `json:"tax_amount"`
	DeliveryFee    decimal.Decimal     `json:"delivery_fee"`
	Tip            decimal.Decimal     `json:"tip"`
	FinalTotal     decimal.Decimal     `json:"final_total"`
	CancelReason   *string             `json:"cancel_reason,omitempty"`
	ConfirmedAt    *time.Time          `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time          `json:"cancelled_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Lines          []OrderLineResponse `json:"lines"`
}

func NewOrderResponse(o *models.Order) OrderResponse {
	resp := OrderResponse{
		ID:             o.ID,
		CustomerID:     o.CustomerID,
		StoreID:        o.StoreID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  string(o.PaymentMethod),
		ItemSubtotal:   o.ItemSubtotal,
		DiscountAmount: o.DiscountAmount,
		TaxAmount:      o.TaxAmount,
		DeliveryFee:    o.DeliveryFee,
		Tip:            o.Tip,
		FinalTotal:     o.FinalTotal,
		CancelReason:   o.CancelReason,
		ConfirmedAt:    o.ConfirmedAt,
		CancelledAt:    o.CancelledAt,
		CreatedAt:      o.CreatedAt,
		Lines:          make([]OrderLineResponse, 0, len(o.Lines)),
	}
	for _, l := range o.Lines {
		resp.Lines = append(resp.Lines, OrderLineResponse{
			ID:        l.ID,
			SummaryID: l.SummaryID,
			ItemName:  l.ItemName,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal(),
		})
	}
	return resp
}

type CancellationResponse struct {
	Order        OrderResponse   `json:"order"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	RefundQueued bool            `json:"refund_queued"`
}

func NewCancellationResponse(r *service.CancellationResult) CancellationResponse {
	return CancellationResponse{
		Order:        NewOrderResponse(r.Order),
		RefundAmount: r.RefundAmount,
		RefundQueued: r.RefundQueued,
	}
}

type PickUnitResponse struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	OrderLineID *uuid.UUID `json:"order_line_id,omitempty"`
	SummaryID   uuid.UUID  `json:"summary_id"`
	LocationID  uuid.UUID  `json:"location_id"`
	Quantity    int32      `json:"quantity"`
	Status      string     `json:"status"`
	WorkerID    *uuid.UUID `json:"worker_id,omitempty"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Note        *string    `json:"note,omitempty"`
}

func NewPickUnitResponse(u *models.PickUnit) PickUnitResponse {
	return PickUnitResponse{
		ID:          u.ID,
		OrderID:     u.OrderID,
		OrderLineID: u.OrderLineID,
		SummaryID:   u.SummaryID,
		LocationID:  u.LocationID,
		Quantity:    u.Quantity,
		Status:      string(u.Status),
		WorkerID:    u.WorkerID,
		AssignedAt:  u.AssignedAt,
		CompletedAt: u.CompletedAt,
		Note:        u.Note,
	}
}

func NewPickUnitList(units []models.PickUnit) []PickUnitResponse {
	out := make([]PickUnitResponse, 0, len(units))
	for i := range units {
		out = append(out, NewPickUnitResponse(&units[i]))
	}
	return out
}

type DeliveryResponse struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     uuid.UUID  `json:"order_id"`
	Status      string     `json:"status"`
	RiderID     *uuid.UUID `json:"rider_id,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	Rating      *int16     `json:"rating,omitempty"`
}

func NewDeliveryResponse(d *models.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:          d.ID,
		OrderID:     d.OrderID,
		Status:      string(d.Status),
		RiderID:     d.RiderID,
		AcceptedAt:  d.AcceptedAt,
		PickedUpAt:  d.PickedUpAt,
		DeliveredAt: d.DeliveredAt,
		Rating:      d.Rating,
	}
}

type SummaryResponse struct {
	ID            uuid.UUID       `json:"id"`
	StoreID       uuid.UUID       `json:"store_id"`
	ItemID        uuid.UUID       `json:"item_id"`
	ItemName      string          `json:"item_name"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int32           `json:"stock_quantity"`
	IsAvailable   bool            `json:"is_available"`
}

func NewSummaryResponse(s *models.InventorySummary) SummaryResponse {
	return SummaryResponse{
		ID:            s.ID,
		StoreID:       s.StoreID,
		ItemID:        s.ItemID,
		ItemName:      s.ItemName,
		Price:         s.EffectivePrice(),
		StockQuantity: s.StockQuantity,
		IsAvailable:   s.IsAvailable,
	}
}

type MismatchResponse struct {
	SummaryID     uuid.UUID `json:"summary_id"`
	StoreID       uuid.UUID `json:"store_id"`
	ItemID        uuid.UUID `json:"item_id"`
	StockQuantity int32     `json:"stock_quantity"`
	GranularTotal int32     `json:"granular_total"`
}

type AuditResponse struct {
	Consistent bool               `json:"consistent"`
	Mismatches []MismatchResponse `json:"mismatches"`
}

func NewAuditResponse(list []models.LedgerMismatch) AuditResponse {
	resp := AuditResponse{Consistent: len(list) == 0, Mismatches: make([]MismatchResponse, 0, len(list))}
	for _, m := range list {
		resp.Mismatches = append(resp.Mismatches, MismatchResponse(m))
	}
	return resp
}
