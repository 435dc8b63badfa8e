package models

import (
	"time"

	"github.com/google/uuid"
)

// ManagerMessage remembers the chat message ids produced for an order group
// so later edits (approval card caption, fulfillment card text) and cleanups
// (buyer payment prompt) can find them.
type ManagerMessage struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID              string    `gorm:"column:group_id;not null;uniqueIndex"`
	BuyerPromptMessageID *int      `gorm:"column:buyer_prompt_message_id"`
	ApprovalMessageID    *int      `gorm:"column:approval_message_id"`
	FulfillmentMessageID *int      `gorm:"column:fulfillment_message_id"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
