package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Worker is a warehouse staff member. LastAssignedAt is the round-robin pointer.
type Worker struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	StoreID        uuid.UUID `gorm:"type:uuid;not null;index"`
	Name           string    `gorm:"type:text;not null"`
	CanPick        bool      `gorm:"not null;default:false"`
	LastAssignedAt *time.Time

	CreatedAt time.Time `gorm:"not null;default:now()"`
}

func (Worker) TableName() string { return "workers" }

type Rider struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Name              string          `gorm:"type:text;not null"`
	IsOnline          bool            `gorm:"not null;default:false;index"`
	IsBusy            bool            `gorm:"not null;default:false"`
	Latitude          float64         `gorm:"not null;default:0"`
	Longitude         float64         `gorm:"not null;default:0"`
	LocationUpdatedAt *time.Time
	CashOnHand        decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

func (Rider) TableName() string { return "riders" }

// RiderCandidate is a rider found near a store, closest first.
type RiderCandidate struct {
	RiderID    uuid.UUID
	DistanceKm float64
}
