package router

import (
	"context"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/service"

	"github.com/google/uuid"
)

// fakeService implements service.FulfillmentService with optional func fields.
// Unset methods return ErrNotFound.
type fakeService struct {
	getOrder        func(ctx context.Context, id uuid.UUID) (*models.Order, error)
	confirmOrder    func(ctx context.Context, id uuid.UUID, p service.PaymentConfirmation) (*models.Order, error)
	requestNext     func(ctx context.Context, workerID uuid.UUID) (*models.PickUnit, error)
	cancelOrder     func(ctx context.Context, id uuid.UUID, reason string) (*service.CancellationResult, error)
	cancelOrderLine func(ctx context.Context, id, lineID uuid.UUID, qty int32) (*service.CancellationResult, error)
	advance         func(ctx context.Context, id, riderID uuid.UUID, next models.DeliveryStatus) (*models.Delivery, error)
	auditLedger     func(ctx context.Context) ([]models.LedgerMismatch, error)
	receiveStock    func(ctx context.Context, summaryID, locationID uuid.UUID, qty int32) (*models.InventorySummary, error)
}

func (f *fakeService) GetOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if f.getOrder != nil {
		return f.getOrder(ctx, id)
	}
	return nil, service.ErrOrderNotFound
}

func (f *fakeService) ConfirmOrder(ctx context.Context, id uuid.UUID, p service.PaymentConfirmation) (*models.Order, error) {
	if f.confirmOrder != nil {
		return f.confirmOrder(ctx, id, p)
	}
	return nil, service.ErrOrderNotFound
}

func (f *fakeService) RequestNextUnit(ctx context.Context, workerID uuid.UUID) (*models.PickUnit, error) {
	if f.requestNext != nil {
		return f.requestNext(ctx, workerID)
	}
	return nil, service.ErrWorkerNotFound
}

func (f *fakeService) ListWorkerQueue(ctx context.Context, workerID uuid.UUID) ([]models.PickUnit, error) {
	return nil, nil
}

func (f *fakeService) CompletePickUnit(ctx context.Context, unitID, workerID uuid.UUID) (*models.PickUnit, error) {
	return nil, service.ErrPickUnitNotFound
}

func (f *fakeService) ReportIssue(ctx context.Context, unitID, workerID uuid.UUID, note string) (*models.PickUnit, error) {
	return nil, service.ErrPickUnitNotFound
}

func (f *fakeService) ResolveIssue(ctx context.Context, unitID uuid.UUID, res service.IssueResolution) (*models.PickUnit, error) {
	return nil, service.ErrPickUnitNotFound
}

func (f *fakeService) AcceptDelivery(ctx context.Context, deliveryID, riderID uuid.UUID) (*models.Delivery, error) {
	return nil, service.ErrDeliveryUnavailable
}

func (f *fakeService) AdvanceDeliveryStatus(ctx context.Context, deliveryID, riderID uuid.UUID, next models.DeliveryStatus) (*models.Delivery, error) {
	if f.advance != nil {
		return f.advance(ctx, deliveryID, riderID, next)
	}
	return nil, service.ErrDeliveryNotFound
}

func (f *fakeService) RateDelivery(ctx context.Context, deliveryID, customerID uuid.UUID, rating int) (*models.Delivery, error) {
	return nil, service.ErrDeliveryNotFound
}

func (f *fakeService) UpdateRiderLocation(ctx context.Context, riderID uuid.UUID, lat, lng float64, online bool) error {
	return nil
}

func (f *fakeService) CancelOrder(ctx context.Context, id uuid.UUID, reason string) (*service.CancellationResult, error) {
	if f.cancelOrder != nil {
		return f.cancelOrder(ctx, id, reason)
	}
	return nil, service.ErrOrderNotFound
}

func (f *fakeService) CancelOrderLine(ctx context.Context, id, lineID uuid.UUID, qty int32) (*service.CancellationResult, error) {
	if f.cancelOrderLine != nil {
		return f.cancelOrderLine(ctx, id, lineID, qty)
	}
	return nil, service.ErrOrderNotFound
}

func (f *fakeService) ReceiveStock(ctx context.Context, summaryID, locationID uuid.UUID, qty int32) (*models.InventorySummary, error) {
	if f.receiveStock != nil {
		return f.receiveStock(ctx, summaryID, locationID, qty)
	}
	return nil, service.ErrItemNotFound
}

func (f *fakeService) AuditLedger(ctx context.Context) ([]models.LedgerMismatch, error) {
	if f.auditLedger != nil {
		return f.auditLedger(ctx)
	}
	return nil, nil
}
