package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Store struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string    `gorm:"type:text;not null"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Store) TableName() string { return "stores" }

// InventorySummary is the per-store view of an item. StockQuantity is a cached
// projection of the granular stock_records and is only written by the ledger recompute.
type InventorySummary struct {
	ID            uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID       uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_inventory_summaries_store_item"`
	ItemID        uuid.UUID        `gorm:"type:uuid;not null;uniqueIndex:ux_inventory_summaries_store_item"`
	ItemName      string           `gorm:"type:text;not null"`
	SellingPrice  decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0"`
	SalePrice     *decimal.Decimal `gorm:"type:numeric(12,2)"`
	StockQuantity int32            `gorm:"not null;default:0"`
	IsAvailable   bool             `gorm:"not null;default:false"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (InventorySummary) TableName() string { return "inventory_summaries" }

// EffectivePrice is the sale price when one is set, the selling price otherwise.
func (s InventorySummary) EffectivePrice() decimal.Decimal {
	if s.SalePrice != nil {
		return *s.SalePrice
	}
	return s.SellingPrice
}

type StockLocation struct {
	ID      uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code    string    `gorm:"type:text;not null;uniqueIndex"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (StockLocation) TableName() string { return "stock_locations" }

type StockRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SummaryID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_records_summary_location"`
	LocationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:ux_stock_records_summary_location;index"`
	Quantity   int32     `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (StockRecord) TableName() string { return "stock_records" }

// AllocatableRecord is a granular record joined with its location code and the
// quantity already promised to open pick units.
type AllocatableRecord struct {
	RecordID     uuid.UUID
	LocationID   uuid.UUID
	LocationCode string
	Quantity     int32
	Reserved     int32
}

func (r AllocatableRecord) Free() int32 {
	if f := r.Quantity - r.Reserved; f > 0 {
		return f
	}
	return 0
}

// LedgerMismatch is a summary whose cached quantity disagrees with its granular records.
type LedgerMismatch struct {
	SummaryID     uuid.UUID
	StoreID       uuid.UUID
	ItemID        uuid.UUID
	StockQuantity int32
	GranularTotal int32
}
