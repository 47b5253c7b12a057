package service

import (
	"sync"
	"testing"

	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirmReservesAcrossLocations(t *testing.T) {
	e := newEnv(t)
	w := e.worker(true)
	milk := e.item("Milk", "30", 2, 5)

	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{milk, 4})
	out := e.confirm(ord)

	assert.Equal(t, models.OrderStatusConfirmed, out.Status)
	assert.Equal(t, models.PaymentStatusSuccessful, out.PaymentStatus)
	require.NotNil(t, out.ConfirmedAt)

	units := e.units(ord.ID)
	require.Len(t, units, 2)
	var total int32
	for _, u := range units {
		assert.Equal(t, models.PickUnitPending, u.Status)
		require.NotNil(t, u.WorkerID)
		assert.Equal(t, w.ID, *u.WorkerID)
		assert.EqualValues(t, 2, u.Quantity)
		total += u.Quantity
	}
	assert.EqualValues(t, 4, total)

	// reserved, not yet deducted
	assert.EqualValues(t, 7, e.stock(milk.ID))
	reserved, err := e.repo.Stock.ReservedQuantity(e.ctx, milk.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 4, reserved)

	d, err := e.repo.Deliveries.GetByOrder(e.ctx, ord.ID)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, models.DeliveryStatusAwaitingPrep, d.Status)

	pay, err := e.repo.Payments.GetByOrder(e.ctx, ord.ID)
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.True(t, pay.Amount.Equal(ord.FinalTotal))
}

func TestConfirmIsIdempotent(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	bread := e.item("Bread", "40", 10)
	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{bread, 3})

	first := e.confirm(ord)
	second := e.confirm(ord)

	assert.Equal(t, models.OrderStatusConfirmed, second.Status)
	assert.Equal(t, first.ConfirmedAt.Unix(), second.ConfirmedAt.Unix())
	assert.Len(t, e.units(ord.ID), 1)
	assert.Equal(t, models.PaymentStatusPending, second.PaymentStatus)
}

func TestConfirmRejectsUnpaidPrepaid(t *testing.T) {
	e := newEnv(t)
	eggs := e.item("Eggs", "6", 12)
	ord := e.order(models.PaymentMethodWallet, nil, "0", lineSpec{eggs, 6})

	_, err := e.svc.ConfirmOrder(e.ctx, ord.ID, PaymentConfirmation{Successful: false})
	require.ErrorIs(t, err, ErrPaymentNotConfirmed)
	assert.Equal(t, models.OrderStatusPending, e.reload(ord.ID).Status)

	_, err = e.svc.ConfirmOrder(e.ctx, ord.ID, PaymentConfirmation{Successful: true, Amount: dec("1.00")})
	require.ErrorIs(t, err, ErrAmountMismatch)
}

func TestConfirmInsufficientStockFailsAndRefunds(t *testing.T) {
	e := newEnv(t)
	rice := e.item("Rice", "90", 2)
	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{rice, 3})

	_, err := e.svc.ConfirmOrder(e.ctx, ord.ID, PaymentConfirmation{Successful: true, TransactionID: "txn-1"})
	require.ErrorIs(t, err, ErrInsufficientStock)

	failed := e.reload(ord.ID)
	assert.Equal(t, models.OrderStatusFailed, failed.Status)
	assert.Equal(t, models.PaymentStatusRefundInitiated, failed.PaymentStatus)
	assert.Empty(t, e.units(ord.ID))

	refunds := e.jobsOfKind(models.JobKindRefund)
	require.Len(t, refunds, 1)
	body := e.refundPayload(refunds[0])
	assert.Equal(t, toMinor(ord.FinalTotal), body.AmountMinor)
	assert.False(t, body.Partial)
	assert.Equal(t, "txn-1", body.TransactionID)
}

func TestConfirmLedgerDesyncAborts(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	oil := e.item("Oil", "150", 3)
	// projection says 10, granular stock holds 3
	require.NoError(t, e.repo.DB.Exec("UPDATE inventory_summaries SET stock_quantity = 10 WHERE id = ?", oil.ID).Error)

	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{oil, 5})
	_, err := e.svc.ConfirmOrder(e.ctx, ord.ID, PaymentConfirmation{})
	require.ErrorIs(t, err, ErrLedgerDesync)

	assert.Empty(t, e.units(ord.ID))
	assert.Equal(t, models.OrderStatusFailed, e.reload(ord.ID).Status)

	list, err := e.svc.ledger.Audit(e.ctx)
	require.ErrorIs(t, err, ErrLedgerDesync)
	require.Len(t, list, 1)
	assert.EqualValues(t, 3, list[0].GranularTotal)

	n, err := e.svc.ledger.Rebuild(e.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	e.requireLedgerConsistent()
}

func TestSecondOrderSeesFirstReservation(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	tea := e.item("Tea", "120", 5)

	e.confirm(e.order(models.PaymentMethodCOD, nil, "0", lineSpec{tea, 4}))

	second := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{tea, 2})
	_, err := e.svc.ConfirmOrder(e.ctx, second.ID, PaymentConfirmation{})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.EqualValues(t, 5, e.stock(tea.ID))
}

func TestPickingCompletesOrder(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	apple := e.item("Apple", "20", 2, 5)
	pear := e.item("Pear", "25", 4)

	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{apple, 4}, lineSpec{pear, 1})
	e.confirm(ord)

	units := e.units(ord.ID)
	require.Len(t, units, 3)

	_, err := e.svc.CompletePickUnit(e.ctx, units[0].ID, uuid.New())
	require.ErrorIs(t, err, ErrNotAssignedWorker)

	_, err = e.svc.CompletePickUnit(e.ctx, units[0].ID, *units[0].WorkerID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPreparing, e.reload(ord.ID).Status)
	assert.Empty(t, e.disp.calls())

	_, err = e.svc.CompletePickUnit(e.ctx, units[0].ID, *units[0].WorkerID)
	require.ErrorIs(t, err, ErrUnitNotPending)

	e.completeAll(ord.ID)

	assert.Equal(t, models.OrderStatusReadyForPickup, e.reload(ord.ID).Status)
	assert.EqualValues(t, 3, e.stock(apple.ID))
	assert.EqualValues(t, 3, e.stock(pear.ID))
	e.requireLedgerConsistent()

	d, err := e.repo.Deliveries.GetByOrder(e.ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryStatusPendingAcceptance, d.Status)
	assert.NotNil(t, d.PendingSince)
	assert.Equal(t, []uuid.UUID{d.ID}, e.disp.calls())
}

func TestRoundRobinAssignment(t *testing.T) {
	e := newEnv(t)
	w1, w2 := e.worker(true), e.worker(true)
	e.worker(false)
	soap := e.item("Soap", "35", 20)

	counts := map[uuid.UUID]int{}
	for range 4 {
		ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{soap, 1})
		e.confirm(ord)
		units := e.units(ord.ID)
		require.Len(t, units, 1)
		require.NotNil(t, units[0].WorkerID)
		counts[*units[0].WorkerID]++
	}
	assert.Equal(t, map[uuid.UUID]int{w1.ID: 2, w2.ID: 2}, counts)
}

func TestConcurrentAssignmentsPickDifferentWorkers(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	e.worker(true)

	err := e.repo.WithTx(e.ctx, func(first *repository.Repository) error {
		a, err := first.Workers.LockNextEligible(e.ctx, e.store.ID)
		require.NoError(t, err)
		require.NotNil(t, a)
		return e.repo.WithTx(e.ctx, func(second *repository.Repository) error {
			b, err := second.Workers.LockNextEligible(e.ctx, e.store.ID)
			require.NoError(t, err)
			require.NotNil(t, b)
			assert.NotEqual(t, a.ID, b.ID)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestPullQueueHandsOutEachUnitOnce(t *testing.T) {
	e := newEnv(t)
	salt := e.item("Salt", "15", 50)

	// no eligible picker yet, so everything lands in the pull queue
	var want []uuid.UUID
	for range 6 {
		ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{salt, 1})
		e.confirm(ord)
		for _, u := range e.units(ord.ID) {
			require.Nil(t, u.WorkerID)
			want = append(want, u.ID)
		}
	}

	workers := []models.Worker{e.worker(true), e.worker(true), e.worker(true)}
	var (
		mu  sync.Mutex
		got []uuid.UUID
		wg  sync.WaitGroup
	)
	for _, w := range workers {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			for {
				u, err := e.svc.RequestNextUnit(e.ctx, id)
				if !assert.NoError(t, err) || u == nil {
					return
				}
				mu.Lock()
				got = append(got, u.ID)
				mu.Unlock()
			}
		}(w.ID)
	}
	wg.Wait()

	assert.ElementsMatch(t, want, got)

	_, err := e.svc.RequestNextUnit(e.ctx, e.worker(false).ID)
	require.ErrorIs(t, err, ErrWorkerCannotPick)
}

func TestIssueRetryAndCancel(t *testing.T) {
	e := newEnv(t)
	w := e.worker(true)
	jam := e.item("Jam", "80", 3)
	nuts := e.item("Nuts", "200", 2)

	ord := e.order(models.PaymentMethodCard, nil, "20", lineSpec{jam, 1}, lineSpec{nuts, 1})
	e.confirm(ord)
	units := e.units(ord.ID)
	require.Len(t, units, 2)
	jamUnit, nutsUnit := units[0], units[1]
	if jamUnit.SummaryID != jam.ID {
		jamUnit, nutsUnit = nutsUnit, jamUnit
	}

	_, err := e.svc.ReportIssue(e.ctx, jamUnit.ID, w.ID, "  ")
	require.ErrorIs(t, err, ErrValidation)

	u, err := e.svc.ReportIssue(e.ctx, jamUnit.ID, w.ID, "jar broken")
	require.NoError(t, err)
	assert.Equal(t, models.PickUnitIssue, u.Status)

	_, err = e.svc.ResolveIssue(e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID}), jamUnit.ID, ResolveRetry)
	require.ErrorIs(t, err, ErrForbidden)

	u, err = e.svc.ResolveIssue(e.as(e.manager()), jamUnit.ID, ResolveRetry)
	require.NoError(t, err)
	assert.Equal(t, models.PickUnitPending, u.Status)
	assert.Nil(t, u.WorkerID)

	_, err = e.svc.RequestNextUnit(e.ctx, w.ID)
	require.NoError(t, err)
	_, err = e.svc.ReportIssue(e.ctx, jamUnit.ID, w.ID, "still broken")
	require.NoError(t, err)

	_, err = e.svc.CompletePickUnit(e.ctx, nutsUnit.ID, w.ID)
	require.NoError(t, err)
	// the ISSUE unit still blocks readiness
	assert.Equal(t, models.OrderStatusPreparing, e.reload(ord.ID).Status)

	_, err = e.svc.ResolveIssue(e.as(e.manager()), jamUnit.ID, ResolveCancel)
	require.NoError(t, err)

	after := e.reload(ord.ID)
	assert.Equal(t, models.OrderStatusReadyForPickup, after.Status)
	require.Len(t, after.Lines, 1)
	assert.Equal(t, nuts.ID, after.Lines[0].SummaryID)
	assert.EqualValues(t, 3, e.stock(jam.ID))
	require.Len(t, e.jobsOfKind(models.JobKindRefund), 1)
	e.requireLedgerConsistent()
}

func TestGetOrderVisibility(t *testing.T) {
	e := newEnv(t)
	oats := e.item("Oats", "70", 5)
	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{oats, 1})

	_, err := e.svc.GetOrder(e.ctx, ord.ID)
	require.ErrorIs(t, err, ErrUnauthorized)

	got, err := e.svc.GetOrder(e.as(Principal{UserID: ord.CustomerID, Role: RoleCustomer}), ord.ID)
	require.NoError(t, err)
	assert.Len(t, got.Lines, 1)

	_, err = e.svc.GetOrder(e.as(Principal{UserID: uuid.New(), Role: RoleCustomer}), ord.ID)
	require.ErrorIs(t, err, ErrOrderNotFound)

	_, err = e.svc.GetOrder(e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: uuid.New()}), ord.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.GetOrder(e.as(Principal{UserID: uuid.New(), Role: RoleRider}), ord.ID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = e.svc.GetOrder(e.as(e.manager()), ord.ID)
	require.NoError(t, err)
}

func TestReceiveStockAndAudit(t *testing.T) {
	e := newEnv(t)
	cocoa := e.item("Cocoa", "400")
	loc := e.location()
	staff := Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID}

	_, err := e.svc.ReceiveStock(e.ctx, cocoa.ID, loc.ID, 5)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.svc.ReceiveStock(e.as(Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: uuid.New()}), cocoa.ID, loc.ID, 5)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = e.svc.ReceiveStock(e.as(staff), cocoa.ID, loc.ID, 0)
	require.ErrorIs(t, err, ErrQuantityInvalid)

	sum, err := e.svc.ReceiveStock(e.as(staff), cocoa.ID, loc.ID, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, sum.StockQuantity)
	sum, err = e.svc.ReceiveStock(e.as(staff), cocoa.ID, loc.ID, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 8, sum.StockQuantity)

	_, err = e.svc.AuditLedger(e.as(staff))
	require.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, e.repo.DB.Exec("UPDATE inventory_summaries SET stock_quantity = 1 WHERE id = ?", cocoa.ID).Error)
	list, err := e.svc.AuditLedger(e.as(e.manager()))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, cocoa.ID, list[0].SummaryID)
	assert.EqualValues(t, 1, list[0].StockQuantity)
	assert.EqualValues(t, 8, list[0].GranularTotal)

	n, err := e.svc.ledger.AuditAll(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConcurrentLedgerWritesStayConsistent(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	rice := e.item("Rice", "90", 3, 3, 3)
	staff := Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID}

	// each order drains its own location
	var units []models.PickUnit
	for i := 0; i < 3; i++ {
		ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{rice, 3})
		e.confirm(ord)
		got := e.units(ord.ID)
		require.Len(t, got, 1)
		require.NotNil(t, got[0].WorkerID)
		units = append(units, got[0])
	}
	locs := map[uuid.UUID]bool{}
	for _, u := range units {
		locs[u.LocationID] = true
	}
	require.Len(t, locs, 3)
	restockAt := units[0].LocationID

	var wg sync.WaitGroup
	errs := make(chan error, len(units)+1)
	for _, u := range units {
		wg.Add(1)
		go func(u models.PickUnit) {
			defer wg.Done()
			_, err := e.svc.CompletePickUnit(e.ctx, u.ID, *u.WorkerID)
			errs <- err
		}(u)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := e.svc.ReceiveStock(e.as(staff), rice.ID, restockAt, 5)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.EqualValues(t, 5, e.stock(rice.ID))
	e.requireLedgerConsistent()
}

func TestCancelRacingCompletionSerializes(t *testing.T) {
	e := newEnv(t)
	e.worker(true)
	tea := e.item("Tea", "120", 4)
	ord := e.order(models.PaymentMethodCOD, nil, "0", lineSpec{tea, 2})
	e.confirm(ord)
	units := e.units(ord.ID)
	require.Len(t, units, 1)
	u := units[0]
	require.NotNil(t, u.WorkerID)

	var wg sync.WaitGroup
	var cancelErr, completeErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, cancelErr = e.svc.CancelOrder(e.as(e.manager()), ord.ID, "customer called")
	}()
	go func() {
		defer wg.Done()
		_, completeErr = e.svc.CompletePickUnit(e.ctx, u.ID, *u.WorkerID)
	}()
	wg.Wait()

	require.NoError(t, cancelErr)
	assert.Equal(t, models.OrderStatusCancelled, e.reload(ord.ID).Status)
	after := e.units(ord.ID)
	require.Len(t, after, 1)
	if completeErr != nil {
		// cancellation went first, the pick lost its precondition
		require.ErrorIs(t, completeErr, ErrUnitNotPending)
		assert.Equal(t, models.PickUnitCancelled, after[0].Status)
	} else {
		// the pick went first and cancellation restocked it
		assert.Equal(t, models.PickUnitCompleted, after[0].Status)
	}
	assert.EqualValues(t, 4, e.stock(tea.ID))
	reserved, err := e.repo.Stock.ReservedQuantity(e.ctx, tea.ID)
	require.NoError(t, err)
	assert.Zero(t, reserved)
	e.requireLedgerConsistent()
}
