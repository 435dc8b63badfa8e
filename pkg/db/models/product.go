package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog entry. Prices are whole rubles; weight feeds the
// package bucketing when shipments are registered.
type Product struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name            string    `gorm:"column:name;not null"`
	Synonym         string    `gorm:"column:synonym;not null"`
	Price           int       `gorm:"column:price;not null"`
	UnitWeightGrams int       `gorm:"column:unit_weight_grams;not null;default:0"`
	Bulky           bool      `gorm:"column:bulky;not null;default:false"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
