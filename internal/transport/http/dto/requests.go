package dto

import (
	"github.com/shopspring/decimal"
)

type PaymentConfirmationRequest struct {
	Successful    bool            `json:"successful"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

type CancelLineRequest struct {
	Quantity int32 `json:"quantity" binding:"required,gt=0"`
}

type ReportIssueRequest struct {
	Note string `json:"note" binding:"required"`
}

type ResolveIssueRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=RETRY CANCEL"`
}

type DeliveryStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

type RatingRequest struct {
	Rating int `json:"rating" binding:"required"`
}

type RiderLocationRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required"`
	Longitude *float64 `json:"longitude" binding:"required"`
	Online    bool     `json:"online"`
}

type ReceiveStockRequest struct {
	SummaryID  string `json:"summary_id" binding:"required,uuid"`
	LocationID string `json:"location_id" binding:"required,uuid"`
	Quantity   int32  `json:"quantity" binding:"required,gt=0"`
}
