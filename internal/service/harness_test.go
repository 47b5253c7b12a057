package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"fulfillment-service/internal/migrate"
	"fulfillment-service/internal/models"
	"fulfillment-service/internal/repository"
	"fulfillment-service/pkg/testutil"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(_ context.Context, id uuid.UUID) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, id)
	return 1, nil
}

func (d *recordingDispatcher) calls() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Notification) error { return nil }
func (nopNotifier) BroadcastOrder(context.Context, uuid.UUID, map[string]any) error {
	return nil
}

type nopLocator struct{}

func (nopLocator) Nearby(context.Context, float64, float64, float64, int) ([]models.RiderCandidate, error) {
	return nil, nil
}
func (nopLocator) UpdatePosition(context.Context, uuid.UUID, float64, float64, bool) error {
	return nil
}

type env struct {
	t     *testing.T
	ctx   context.Context
	repo  *repository.Repository
	svc   *fulfillmentService
	disp  *recordingDispatcher
	store models.Store
	seq   int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.SetupTestPostgres(t)
	ctx := context.Background()
	require.NoError(t, migrate.MigrateFulfillmentDB(ctx, db, zap.NewNop(), migrate.DefaultMigrateOptions()))

	repo := repository.New(db)
	disp := &recordingDispatcher{}
	log := zap.NewNop()
	svc := NewFulfillmentService(repo, NewLedger(repo, log), disp, nopNotifier{}, nopLocator{}, Options{
		TaxRate: dec("0.05"),
	}, log).(*fulfillmentService)

	e := &env{t: t, ctx: ctx, repo: repo, svc: svc, disp: disp}
	e.store = models.Store{Name: "Koramangala", Latitude: 12.935, Longitude: 77.624}
	require.NoError(t, repo.Stores.Create(ctx, &e.store))
	return e
}

// item creates a summary stocked at one location per quantity given, in location code order.
func (e *env) item(name, price string, perLocation ...int32) models.InventorySummary {
	e.t.Helper()
	sum := models.InventorySummary{StoreID: e.store.ID, ItemID: uuid.New(), ItemName: name, SellingPrice: dec(price)}
	require.NoError(e.t, e.repo.Stock.CreateSummary(e.ctx, &sum))
	for _, q := range perLocation {
		loc := e.location()
		_, err := e.svc.ledger.ReceiveStock(e.ctx, sum.ID, loc.ID, q)
		require.NoError(e.t, err)
	}
	out, err := e.repo.Stock.GetSummary(e.ctx, sum.ID)
	require.NoError(e.t, err)
	return *out
}

func (e *env) location() models.StockLocation {
	e.t.Helper()
	e.seq++
	loc := models.StockLocation{StoreID: e.store.ID, Code: fmt.Sprintf("A-%02d-%s", e.seq, e.store.ID.String()[:8])}
	require.NoError(e.t, e.repo.Stock.CreateLocation(e.ctx, &loc))
	return loc
}

func (e *env) worker(canPick bool) models.Worker {
	e.t.Helper()
	w := models.Worker{ID: uuid.New(), StoreID: e.store.ID, Name: "picker", CanPick: canPick}
	require.NoError(e.t, e.repo.Workers.Create(e.ctx, &w))
	return w
}

func (e *env) rider(online bool) models.Rider {
	e.t.Helper()
	r := models.Rider{ID: uuid.New(), Name: "rider", IsOnline: online, Latitude: e.store.Latitude, Longitude: e.store.Longitude}
	require.NoError(e.t, e.repo.Riders.Create(e.ctx, &r))
	return r
}

type lineSpec struct {
	item models.InventorySummary
	qty  int32
}

// order creates a PENDING order priced like checkout would.
func (e *env) order(method models.PaymentMethod, coupon *models.Coupon, fee string, lines ...lineSpec) models.Order {
	e.t.Helper()
	ord := models.Order{
		CustomerID:    uuid.New(),
		StoreID:       e.store.ID,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: method,
	}
	for _, l := range lines {
		ord.Lines = append(ord.Lines, models.OrderLine{
			SummaryID: l.item.ID,
			ItemName:  l.item.ItemName,
			UnitPrice: l.item.EffectivePrice(),
			Quantity:  l.qty,
		})
	}
	b := ComputeBreakdown(ord.Lines, coupon, e.svc.opts.TaxRate, dec(fee), decimal.Zero)
	ord.ItemSubtotal, ord.DiscountAmount, ord.TaxAmount, ord.DeliveryFee, ord.FinalTotal = b.Subtotal, b.Discount, b.Tax, b.DeliveryFee, b.Final
	if coupon != nil {
		ord.CouponID = &coupon.ID
	}
	require.NoError(e.t, e.repo.Orders.Create(e.ctx, &ord))
	return ord
}

func (e *env) confirm(ord models.Order) *models.Order {
	e.t.Helper()
	out, err := e.svc.ConfirmOrder(e.ctx, ord.ID, PaymentConfirmation{Successful: true, TransactionID: "txn-" + ord.ID.String()[:8]})
	require.NoError(e.t, err)
	return out
}

func (e *env) units(orderID uuid.UUID) []models.PickUnit {
	e.t.Helper()
	var units []models.PickUnit
	require.NoError(e.t, e.repo.DB.WithContext(e.ctx).Where("order_id = ?", orderID).Order("created_at, id").Find(&units).Error)
	return units
}

func (e *env) reload(orderID uuid.UUID) *models.Order {
	e.t.Helper()
	o, err := e.repo.Orders.GetByID(e.ctx, orderID)
	require.NoError(e.t, err)
	require.NotNil(e.t, o)
	return o
}

func (e *env) stock(summaryID uuid.UUID) int32 {
	e.t.Helper()
	s, err := e.repo.Stock.GetSummary(e.ctx, summaryID)
	require.NoError(e.t, err)
	return s.StockQuantity
}

// completeAll picks every open unit of the order as its assigned worker.
func (e *env) completeAll(orderID uuid.UUID) {
	e.t.Helper()
	for _, u := range e.units(orderID) {
		if u.Status != models.PickUnitPending {
			continue
		}
		require.NotNil(e.t, u.WorkerID)
		_, err := e.svc.CompletePickUnit(e.ctx, u.ID, *u.WorkerID)
		require.NoError(e.t, err)
	}
}

func (e *env) requireLedgerConsistent() {
	e.t.Helper()
	list, err := e.svc.ledger.Audit(e.ctx)
	require.NoError(e.t, err)
	require.Empty(e.t, list)
}

func (e *env) as(p Principal) context.Context {
	return WithPrincipal(e.ctx, p)
}

func (e *env) manager() Principal {
	return Principal{UserID: uuid.New(), Role: RoleStaff, StoreID: e.store.ID, IsManager: true}
}

func (e *env) jobsOfKind(kind models.JobKind) []models.Job {
	e.t.Helper()
	var jobs []models.Job
	require.NoError(e.t, e.repo.DB.WithContext(e.ctx).Where("kind = ?", kind).Order("created_at").Find(&jobs).Error)
	return jobs
}

func (e *env) jobByKey(key string) *models.Job {
	e.t.Helper()
	var j models.Job
	require.NoError(e.t, e.repo.DB.WithContext(e.ctx).Take(&j, "idempotency_key = ?", key).Error)
	return &j
}

func (e *env) refundPayload(j models.Job) models.RefundPayload {
	e.t.Helper()
	var p models.RefundPayload
	require.NoError(e.t, json.Unmarshal(j.Payload, &p))
	return p
}
