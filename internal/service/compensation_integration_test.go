package service

import (
	"testing"
	"time"

	"fulfillment-service/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) coupon(kind models.DiscountType, value, minPurchase string) *models.Coupon {
	e.t.Helper()
	now := time.Now().UTC()
	c := &models.Coupon{
		Code:         "C-" + uuid.NewString()[:8],
		DiscountType: kind,
		Value:        dec(value),
		MinPurchase:  dec(minPurchase),
		ValidFrom:    now.Add(-time.Hour),
		ValidTo:      now.Add(time.Hour),
		IsActive:     true,
	}
	require.NoError(e.t, e.repo.Coupons.Create(e.ctx, c))
	return c
}

func (e *env) payment(orderID uuid.UUID) *models.Payment {
	e.t.Helper()
	p, err := e.repo.Payments.GetByOrder(e.ctx, orderID)
	require.NoError(e.t, err)
	require.NotNil(e.t, p)
	return p
}

func TestCancelOrderRestocksAndRefunds(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	cheese := e.item("Cheese", "250", 4)
	butter := e.item("Butter", "60", 4)

	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{cheese, 2}, lineSpec{butter, 1})
	e.confirm(ord)

	units := e.units(ord.ID)
	require.Len(t, units, 2)
	picked := units[0]
	_, err := e.svc.CompletePickUnit(e.ctx, picked.ID, *picked.WorkerID)
	require.NoError(t, err)

	staff := e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID})
	res, err := e.svc.CancelOrder(staff, ord.ID, "  customer changed mind  ")
	require.NoError(t, err)

	assert.True(t, res.RefundQueued)
	assertDec(t, ord.FinalTotal.String(), res.RefundAmount, "refund")
	assert.Equal(t, models.OrderStatusCancelled, res.Order.Status)
	assert.Equal(t, models.PaymentStatusRefundInitiated, res.Order.PaymentStatus)
	require.NotNil(t, res.Order.CancelReason)
	assert.Equal(t, "customer changed mind", *res.Order.CancelReason)

	for _, u := range e.units(ord.ID) {
		if u.ID == picked.ID {
			assert.Equal(t, models.PickUnitCompleted, u.Status)
			continue
		}
		assert.Equal(t, models.PickUnitCancelled, u.Status)
	}
	assert.EqualValues(t, 4, e.stock(cheese.ID))
	assert.EqualValues(t, 4, e.stock(butter.ID))
	e.requireLedgerConsistent()

	d, err := e.repo.Deliveries.GetByOrder(e.ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusCancelled, d.Status)

	pay := e.payment(ord.ID)
	assertDec(t, ord.FinalTotal.String(), pay.RefundedAmount, "refunded")

	refunds := e.jobsOfKind(models.JobKindRefund)
	require.Len(t, refunds, 1)
	assert.Equal(t, toMinor(ord.FinalTotal), e.refundPayload(refunds[0]).AmountMinor)

	_, err = e.svc.CancelOrder(staff, ord.ID, "")
	require.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Len(t, e.jobsOfKind(models.JobKindRefund), 1)
}

func TestCancelOrderCODHasNoRefund(t *testing.T) {
	e := newEnv(t)
	flour := e.item("Flour", "45", 10)
	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{flour, 2})
	e.confirm(ord)

	res, err := e.svc.CancelOrder(e.as(Principal{UserID: ord.CustomerID, Role: RoleCustomer}), ord.ID, "")
	require.NoError(t, err)
	assert.False(t, res.RefundQueued)
	assert.True(t, res.RefundAmount.IsZero())
	assert.Empty(t, e.jobsOfKind(models.JobKindRefund))

	reserved, err := e.repo.Stock.ReservedQuantity(e.ctx, flour.ID)
	require.NoError(t, err)
	assert.Zero(t, reserved)
}

func TestCancelOrderAuthorization(t *testing.T) {
	e := newEnv(t)
	corn := e.item("Corn", "10", 10)
	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{corn, 1})
	e.confirm(ord)

	_, err := e.svc.CancelOrder(e.ctx, ord.ID, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = e.svc.CancelOrder(e.as(Principal{UserID: uuid.New(), Role: RoleCustomer}), ord.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.CancelOrder(e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: uuid.New()}), ord.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.CancelOrder(e.as(Principal{UserID: uuid.New(), Role: RoleRider}), ord.ID, "")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.CancelOrder(e.as(e.manager()), uuid.New(), "")
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestCustomerCancelGraceWindow(t *testing.T) {
	e := newEnv(t)
	e.svc.opts.CancelGrace = 2 * time.Minute
	figs := e.item("Figs", "300", 10)
	customer := func(o models.Order) Principal { return Principal{UserID: o.CustomerID, Role: RoleCustomer} }

	early := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{figs, 1})
	e.confirm(early)
	_, err := e.svc.CancelOrder(e.as(customer(early)), early.ID, "")
	require.NoError(t, err)

	late := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{figs, 1})
	e.confirm(late)
	e.svc.now = func() time.Time { return time.Now().UTC().Add(3 * time.Minute) }

	_, err = e.svc.CancelOrder(e.as(customer(late)), late.ID, "")
	require.ErrorIs(t, err, ErrCancellationWindowClosed)
	assert.Equal(t, models.OrderStatusConfirmed, e.reload(late.ID).Status)

	_, err = e.svc.CancelOrder(e.as(e.manager()), late.ID, "out of stock")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, e.reload(late.ID).Status)
}

func TestCancelOrderLineRefundsDifference(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	shirt := e.item("Shirt", "100", 5)
	socks := e.item("Socks", "50", 5)
	flat := e.coupon(models.DiscountFixed, "50", "150")

	ord := e.order(models.PaymentMethodCard, flat, "20", lineSpec{shirt, 1}, lineSpec{socks, 2})
	assertDec(t, "177.50", ord.FinalTotal, "initial total")
	e.confirm(ord)

	var shirtLine models.OrderLine
	for _, l := range e.reload(ord.ID).Lines {
		if l.SummaryID == shirt.ID {
			shirtLine = l
		}
	}
	require.NotEqual(t, uuid.Nil, shirtLine.ID)

	_, err := e.svc.CancelOrderLine(e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID}), ord.ID, shirtLine.ID, 1)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, shirtLine.ID, 2)
	require.ErrorIs(t, err, ErrQuantityInvalid)
	_, err = e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, uuid.New(), 1)
	require.ErrorIs(t, err, ErrOrderLineNotFound)

	res, err := e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, shirtLine.ID, 1)
	require.NoError(t, err)

	assertDec(t, "52.50", res.RefundAmount, "refund")
	assert.True(t, res.RefundQueued)
	assertDec(t, "125.00", res.Order.FinalTotal, "final total")
	assertDec(t, "100.00", res.Order.ItemSubtotal, "subtotal")
	assertDec(t, "0", res.Order.DiscountAmount, "discount")
	assertDec(t, "5.00", res.Order.TaxAmount, "tax")
	assert.Equal(t, models.OrderStatusConfirmed, res.Order.Status)
	assert.Equal(t, models.PaymentStatusRefundInitiated, res.Order.PaymentStatus)
	require.Len(t, res.Order.Lines, 1)
	assert.Equal(t, socks.ID, res.Order.Lines[0].SummaryID)

	refunds := e.jobsOfKind(models.JobKindRefund)
	require.Len(t, refunds, 1)
	body := e.refundPayload(refunds[0])
	assert.EqualValues(t, 5250, body.AmountMinor)
	assert.True(t, body.Partial)
	assertDec(t, "52.50", e.payment(ord.ID).RefundedAmount, "refunded")

	reserved, err := e.repo.Stock.ReservedQuantity(e.ctx, shirt.ID)
	require.NoError(t, err)
	assert.Zero(t, reserved)
	for _, u := range e.units(ord.ID) {
		if u.SummaryID == shirt.ID {
			assert.Equal(t, models.PickUnitCancelled, u.Status)
		}
	}
}

func TestCancelOrderLineShrinksPendingUnit(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	beans := e.item("Beans", "12", 10)
	ord := e.order(models.PaymentMethodWallet, nil, "0", lineSpec{beans, 3})
	e.confirm(ord)
	lineID := e.reload(ord.ID).Lines[0].ID

	res, err := e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, lineID, 1)
	require.NoError(t, err)
	assertDec(t, "12.60", res.RefundAmount, "refund")

	units := e.units(ord.ID)
	require.Len(t, units, 1)
	assert.EqualValues(t, 2, units[0].Quantity)
	assert.Equal(t, models.PickUnitPending, units[0].Status)
	assert.EqualValues(t, 2, e.reload(ord.ID).Lines[0].Quantity)
}

func TestCancelOrderLineAlreadyPicked(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	honey := e.item("Honey", "220", 5)
	tea := e.item("Tea", "90", 5)
	ord := e.order(models.PaymentMethodCard, nil, "0", lineSpec{honey, 2}, lineSpec{tea, 1})
	e.confirm(ord)

	var honeyUnit models.PickUnit
	for _, u := range e.units(ord.ID) {
		if u.SummaryID == honey.ID {
			honeyUnit = u
		}
	}
	_, err := e.svc.CompletePickUnit(e.ctx, honeyUnit.ID, *honeyUnit.WorkerID)
	require.NoError(t, err)

	_, err = e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, *honeyUnit.OrderLineID, 1)
	require.ErrorIs(t, err, ErrAlreadyPicked)
	require.ErrorIs(t, err, ErrConflict)

	got := e.reload(ord.ID)
	assert.True(t, got.FinalTotal.Equal(ord.FinalTotal))
	assert.Empty(t, e.jobsOfKind(models.JobKindRefund))
}

func TestCancellingLastLineCancelsOrder(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	kiwi := e.item("Kiwi", "15", 6)
	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{kiwi, 2})
	e.confirm(ord)
	lineID := e.reload(ord.ID).Lines[0].ID

	res, err := e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, lineID, 2)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, res.Order.Status)
	assertDec(t, ord.FinalTotal.String(), res.RefundAmount, "refund")
	assertDec(t, ord.FinalTotal.String(), e.payment(ord.ID).RefundedAmount, "refunded")

	d, err := e.repo.Deliveries.GetByOrder(e.ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusCancelled, d.Status)
}

func TestCancelOrderLineNamesTheBlockingReason(t *testing.T) {
	e := newEnv(t)
	w := e.worker(true)
	jam := e.item("Jam", "80", 5)

	pending := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{jam, 1})
	_, err := e.svc.CancelOrderLine(e.as(e.manager()), pending.ID, pending.Lines[0].ID, 1)
	require.ErrorIs(t, err, ErrNotCancellable)

	ord := e.order(models.PaymentMethodCard, nil, "0", lineSpec{jam, 2})
	e.confirm(ord)
	units := e.units(ord.ID)
	require.Len(t, units, 1)
	_, err = e.svc.ReportIssue(e.ctx, units[0].ID, w.ID, "lid cracked")
	require.NoError(t, err)

	_, err = e.svc.CancelOrderLine(e.as(e.manager()), ord.ID, *units[0].OrderLineID, 1)
	require.ErrorIs(t, err, ErrPickIssueOpen)
	assert.NotErrorIs(t, err, ErrAlreadyPicked)
	assert.EqualValues(t, 2, e.reload(ord.ID).Lines[0].Quantity)
	assert.Empty(t, e.jobsOfKind(models.JobKindRefund))
}
