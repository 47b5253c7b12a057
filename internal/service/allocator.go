package service

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Allocation is a planned pick from one location.
type Allocation struct {
	LocationID   uuid.UUID
	LocationCode string
	Quantity     int32
}

// Allocate greedily takes free stock from records in the order given and returns the
// plan with the quantity it could not cover.
func Allocate(records []models.AllocatableRecord, qty int32) ([]Allocation, int32) {
	remaining := qty
	var plan []Allocation
	for _, rec := range records {
		if remaining <= 0 {
			break
		}
		take := min(rec.Free(), remaining)
		if take <= 0 {
			continue
		}
		plan = append(plan, Allocation{
			LocationID:   rec.LocationID,
			LocationCode: rec.LocationCode,
			Quantity:     take,
		})
		remaining -= take
	}
	return plan, remaining
}

// allocateLine plans pick units for one order line. The caller holds the summary lock.
func (s *fulfillmentService) allocateLine(ctx context.Context, tx *repository.Repository, summary *models.InventorySummary, order *models.Order, line models.OrderLine) ([]models.PickUnit, error) {
	if line.Quantity <= 0 {
		return nil, ErrQuantityInvalid
	}
	if summary.StoreID != order.StoreID {
		return nil, fmt.Errorf("%w: item %s is not stocked by store %s", ErrItemNotFound, summary.ID, order.StoreID)
	}

	reserved, err := tx.Stock.ReservedQuantity(ctx, summary.ID)
	if err != nil {
		return nil, err
	}
	if summary.StockQuantity-reserved < line.Quantity {
		return nil, fmt.Errorf("%w: %s needs %d, %d free", ErrInsufficientStock, summary.ItemName, line.Quantity, summary.StockQuantity-reserved)
	}

	records, err := tx.Stock.ListAllocatable(ctx, summary.ID)
	if err != nil {
		return nil, err
	}
	plan, remaining := Allocate(records, line.Quantity)
	if remaining > 0 {
		s.log.Error("ledger desync during allocation",
			zap.String("severity", "critical"),
			zap.Stringer("order_id", order.ID),
			zap.Stringer("summary_id", summary.ID),
			zap.Int32("stock_quantity", summary.StockQuantity),
			zap.Int32("reserved", reserved),
			zap.Int32("requested", line.Quantity),
			zap.Int32("uncovered", remaining),
		)
		return nil, fmt.Errorf("%w: summary %s cannot cover %d units from granular stock", ErrLedgerDesync, summary.ID, remaining)
	}

	lineID := line.ID
	units := make([]models.PickUnit, 0, len(plan))
	for _, a := range plan {
		units = append(units, models.PickUnit{
			OrderID:     order.ID,
			OrderLineID: &lineID,
			StoreID:     order.StoreID,
			SummaryID:   summary.ID,
			LocationID:  a.LocationID,
			Quantity:    a.Quantity,
			Status:      models.PickUnitPending,
		})
	}
	return units, nil
}
