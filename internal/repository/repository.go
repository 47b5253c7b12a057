package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	DB         *gorm.DB
	Stores     StoreRepo
	Stock      StockRepo
	Orders     OrderRepo
	Payments   PaymentRepo
	Coupons    CouponRepo
	PickUnits  PickUnitRepo
	Deliveries DeliveryRepo
	Workers    WorkerRepo
	Riders     RiderRepo
	Jobs       JobRepo
}

func buildRepository(db *gorm.DB) *Repository {
	return &Repository{
		DB:         db,
		Stores:     NewStoreRepo(db),
		Stock:      NewStockRepo(db),
		Orders:     NewOrderRepo(db),
		Payments:   NewPaymentRepo(db),
		Coupons:    NewCouponRepo(db),
		PickUnits:  NewPickUnitRepo(db),
		Deliveries: NewDeliveryRepo(db),
		Workers:    NewWorkerRepo(db),
		Riders:     NewRiderRepo(db),
		Jobs:       NewJobRepo(db),
	}
}

func New(db *gorm.DB) *Repository { return buildRepository(db) }

// WithTx runs fn against a repository set bound to a single transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(tx *Repository) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(buildRepository(tx))
	})
}

func forUpdate() clause.Locking { return clause.Locking{Strength: "UPDATE"} }

func skipLocked() clause.Locking {
	return clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}
}
