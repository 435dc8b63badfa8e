package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vorobeishop/storefront-backend/pkg/enums"
)

// PaymentIntent mirrors the gateway payment for an order group. Rows are
// never deleted so repeated status checks stay idempotent.
type PaymentIntent struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID     string              `gorm:"column:payment_id;not null;uniqueIndex"`
	GroupID       string              `gorm:"column:group_id;not null;index"`
	BuyerID       uuid.UUID           `gorm:"column:buyer_id;type:uuid;not null"`
	AmountKopecks int64               `gorm:"column:amount_kopecks;not null"`
	Status        enums.PaymentStatus `gorm:"column:status;not null;default:'new'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
