package models

import (
	"time"

	"github.com/google/uuid"
)

// Buyer is a storefront customer identified by their chat account.
type Buyer struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChatID    int64     `gorm:"column:chat_id;not null;uniqueIndex"`
	Username  *string   `gorm:"column:username"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
