package migrate

import (
	"context"
	"fmt"

	"fulfillment-service/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type MigrateOptions struct {
	CreateExtensions       bool // pgcrypto for gen_random_uuid()
	CreateChecks           bool // status and quantity CHECK constraints
	CreateIndexes          bool // work queue, sweep and outbox indexes
	CreateFKsViaSQL        bool // FKs with explicit ON DELETE behaviour
	CreateUpdatedAtTrigger bool // keeps updated_at fresh on raw SQL updates
}

func DefaultMigrateOptions() MigrateOptions {
	return MigrateOptions{
		CreateExtensions:       true,
		CreateChecks:           true,
		CreateIndexes:          true,
		CreateFKsViaSQL:        true,
		CreateUpdatedAtTrigger: true,
	}
}

type statement struct {
	name string
	sql  string
}

func MigrateFulfillmentDB(ctx context.Context, db *gorm.DB, log *zap.Logger, opt MigrateOptions) error {
	db = db.WithContext(ctx)
	log.Info("Starting fulfillment database migration")

	if opt.CreateExtensions {
		log.Info("Creating PostgreSQL extensions")
		if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto`).Error; err != nil {
			log.Error("Failed to enable pgcrypto", zap.Error(err))
			return err
		}
	}

	log.Info("Creating tables")
	if err := db.AutoMigrate(
		&models.Store{},
		&models.InventorySummary{},
		&models.StockLocation{},
		&models.StockRecord{},
		&models.Coupon{},
		&models.Order{},
		&models.OrderLine{},
		&models.Payment{},
		&models.Worker{},
		&models.Rider{},
		&models.PickUnit{},
		&models.Delivery{},
		&models.Job{},
	); err != nil {
		log.Error("Failed to create tables", zap.Error(err))
		return err
	}
	log.Info("Tables created")

	if opt.CreateUpdatedAtTrigger {
		log.Info("Creating updated_at triggers")
		if err := db.Exec(`
CREATE OR REPLACE FUNCTION set_updated_at() RETURNS trigger AS $$
BEGIN NEW.updated_at = now(); RETURN NEW; END; $$ LANGUAGE plpgsql;
`).Error; err != nil {
			log.Error("Failed to create set_updated_at()", zap.Error(err))
			return err
		}
		for _, table := range []string{"inventory_summaries", "stock_records", "orders", "payments", "riders", "pick_units", "deliveries", "jobs"} {
			sql := fmt.Sprintf(`
DROP TRIGGER IF EXISTS trg_%[1]s_updated ON %[1]s;
CREATE TRIGGER trg_%[1]s_updated
BEFORE UPDATE ON %[1]s
FOR EACH ROW EXECUTE FUNCTION set_updated_at();
`, table)
			if err := db.Exec(sql).Error; err != nil {
				log.Error("Failed to create updated_at trigger", zap.String("table", table), zap.Error(err))
				return err
			}
		}
		log.Info("updated_at triggers created")
	}

	if opt.CreateChecks {
		log.Info("Creating CHECK constraints")
		if err := run(db, log, checkStatements()); err != nil {
			return err
		}
		log.Info("CHECK constraints created")
	}

	if opt.CreateIndexes {
		log.Info("Creating indexes")
		if err := run(db, log, indexStatements()); err != nil {
			return err
		}
		log.Info("Indexes created")
	}

	if opt.CreateFKsViaSQL {
		log.Info("Creating foreign keys")
		if err := run(db, log, foreignKeyStatements()); err != nil {
			return err
		}
		log.Info("Foreign keys created")
	}

	log.Info("Fulfillment database migration finished")
	return nil
}

func run(db *gorm.DB, log *zap.Logger, stmts []statement) error {
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			log.Error("Migration statement failed", zap.String("name", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func check(table, name, expr string) statement {
	return statement{
		name: name,
		sql: fmt.Sprintf(`
ALTER TABLE %[1]s DROP CONSTRAINT IF EXISTS %[2]s;
ALTER TABLE %[1]s ADD CONSTRAINT %[2]s CHECK (%[3]s);
`, table, name, expr),
	}
}

func fk(table, name, column, ref, onDelete string) statement {
	return statement{
		name: name,
		sql: fmt.Sprintf(`
ALTER TABLE %[1]s
  DROP CONSTRAINT IF EXISTS %[2]s,
  ADD CONSTRAINT %[2]s
    FOREIGN KEY (%[3]s) REFERENCES %[4]s ON DELETE %[5]s;
`, table, name, column, ref, onDelete),
	}
}

func checkStatements() []statement {
	return []statement{
		check("stock_records", "chk_stock_records_quantity_non_negative", "quantity >= 0"),
		check("inventory_summaries", "chk_inventory_summaries_stock_non_negative", "stock_quantity >= 0"),
		check("inventory_summaries", "chk_inventory_summaries_prices_non_negative",
			"selling_price >= 0 AND (sale_price IS NULL OR sale_price >= 0)"),
		check("orders", "chk_orders_status_allowed", `status IN (
  'ORDER_STATUS_PENDING','ORDER_STATUS_CONFIRMED','ORDER_STATUS_PREPARING','ORDER_STATUS_READY_FOR_PICKUP',
  'ORDER_STATUS_OUT_FOR_DELIVERY','ORDER_STATUS_DELIVERED','ORDER_STATUS_CANCELLED','ORDER_STATUS_FAILED')`),
		check("orders", "chk_orders_payment_method_allowed", "payment_method IN ('CARD','WALLET','COD')"),
		check("orders", "chk_orders_amounts_non_negative",
			"item_subtotal >= 0 AND delivery_fee >= 0 AND tax_amount >= 0 AND discount_amount >= 0 AND tip >= 0 AND final_total >= 0"),
		check("order_lines", "chk_order_lines_quantity_gt_zero", "quantity > 0"),
		check("order_lines", "chk_order_lines_unit_price_non_negative", "unit_price >= 0"),
		check("payments", "chk_payments_status_allowed",
			"status IN ('PENDING','SUCCESSFUL','FAILED','REFUND_INITIATED','PARTIALLY_REFUNDED','REFUNDED')"),
		check("payments", "chk_payments_refund_within_amount", "refunded_amount >= 0 AND refunded_amount <= amount"),
		check("coupons", "chk_coupons_discount_type_allowed", "discount_type IN ('PERCENTAGE','FIXED')"),
		check("coupons", "chk_coupons_used_within_limit", "usage_limit IS NULL OR used_count <= usage_limit"),
		check("pick_units", "chk_pick_units_status_allowed", "status IN ('PENDING','COMPLETED','CANCELLED','ISSUE')"),
		check("pick_units", "chk_pick_units_quantity_gt_zero", "quantity > 0"),
		check("deliveries", "chk_deliveries_status_allowed", `status IN (
  'DELIVERY_STATUS_AWAITING_PREP','DELIVERY_STATUS_PENDING_ACCEPTANCE','DELIVERY_STATUS_ACCEPTED',
  'DELIVERY_STATUS_AT_STORE','DELIVERY_STATUS_PICKED_UP','DELIVERY_STATUS_DELIVERED','DELIVERY_STATUS_CANCELLED')`),
		check("deliveries", "chk_deliveries_rating_range", "rating IS NULL OR rating BETWEEN 1 AND 5"),
		check("riders", "chk_riders_cash_non_negative", "cash_on_hand >= 0"),
		check("jobs", "chk_jobs_kind_allowed", "kind IN ('REFUND','NOTIFY')"),
		check("jobs", "chk_jobs_status_allowed", "status IN ('PENDING','PROCESSING','FAILED','DONE','DEAD')"),
	}
}

func indexStatements() []statement {
	return []statement{
		{"ux_inventory_summaries_store_item", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_inventory_summaries_store_item
ON inventory_summaries (store_id, item_id);`},
		{"ux_stock_records_summary_location", `
CREATE UNIQUE INDEX IF NOT EXISTS ux_stock_records_summary_location
ON stock_records (summary_id, location_id);`},
		// pull queue: oldest unassigned pending unit per store
		{"ix_pick_units_pull_queue", `
CREATE INDEX IF NOT EXISTS ix_pick_units_pull_queue
ON pick_units (store_id, created_at)
WHERE status = 'PENDING' AND worker_id IS NULL;`},
		{"ix_pick_units_reserved", `
CREATE INDEX IF NOT EXISTS ix_pick_units_reserved
ON pick_units (summary_id, location_id)
WHERE status IN ('PENDING','ISSUE');`},
		{"ix_workers_round_robin", `
CREATE INDEX IF NOT EXISTS ix_workers_round_robin
ON workers (store_id, last_assigned_at NULLS FIRST)
WHERE can_pick;`},
		{"ix_deliveries_retry_sweep", `
CREATE INDEX IF NOT EXISTS ix_deliveries_retry_sweep
ON deliveries (COALESCE(last_retried_at, pending_since))
WHERE status = 'DELIVERY_STATUS_PENDING_ACCEPTANCE' AND rider_id IS NULL;`},
		{"ix_jobs_claim", `
CREATE INDEX IF NOT EXISTS ix_jobs_claim
ON jobs (next_attempt_at)
WHERE status IN ('PENDING','FAILED');`},
		{"ix_orders_store_status", `
CREATE INDEX IF NOT EXISTS ix_orders_store_status
ON orders (store_id, status, created_at DESC);`},
	}
}

func foreignKeyStatements() []statement {
	return []statement{
		fk("inventory_summaries", "fk_inventory_summaries_store", "store_id", "stores(id)", "RESTRICT"),
		fk("stock_locations", "fk_stock_locations_store", "store_id", "stores(id)", "RESTRICT"),
		fk("stock_records", "fk_stock_records_summary", "summary_id", "inventory_summaries(id)", "RESTRICT"),
		fk("stock_records", "fk_stock_records_location", "location_id", "stock_locations(id)", "RESTRICT"),
		fk("orders", "fk_orders_store", "store_id", "stores(id)", "RESTRICT"),
		fk("orders", "fk_orders_coupon", "coupon_id", "coupons(id)", "SET NULL"),
		fk("order_lines", "fk_order_lines_order", "order_id", "orders(id)", "CASCADE"),
		fk("order_lines", "fk_order_lines_summary", "summary_id", "inventory_summaries(id)", "RESTRICT"),
		fk("payments", "fk_payments_order", "order_id", "orders(id)", "CASCADE"),
		fk("workers", "fk_workers_store", "store_id", "stores(id)", "RESTRICT"),
		fk("pick_units", "fk_pick_units_order", "order_id", "orders(id)", "RESTRICT"),
		fk("pick_units", "fk_pick_units_order_line", "order_line_id", "order_lines(id)", "SET NULL"),
		fk("pick_units", "fk_pick_units_summary", "summary_id", "inventory_summaries(id)", "RESTRICT"),
		fk("pick_units", "fk_pick_units_location", "location_id", "stock_locations(id)", "RESTRICT"),
		fk("pick_units", "fk_pick_units_worker", "worker_id", "workers(id)", "SET NULL"),
		fk("deliveries", "fk_deliveries_order", "order_id", "orders(id)", "RESTRICT"),
		fk("deliveries", "fk_deliveries_rider", "rider_id", "riders(id)", "SET NULL"),
	}
}
