package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/vorobeishop/storefront-backend/pkg/enums"
)

// OrderLine is one product position within an order group. All lines of a
// group share GroupID and move through the lifecycle together; terminal
// states are recorded in place instead of deleting rows.
type OrderLine struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID   string    `gorm:"column:group_id;not null;index"`
	BuyerID   uuid.UUID `gorm:"column:buyer_id;type:uuid;not null;index"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null"`

	ProductName string `gorm:"column:product_name;not null"`
	Qty         int    `gorm:"column:qty;not null"`
	UnitPrice   int    `gorm:"column:unit_price;not null"`
	LineTotal   int    `gorm:"column:line_total;not null"`

	Surname    string  `gorm:"column:surname;not null"`
	FirstName  string  `gorm:"column:first_name;not null"`
	MiddleName *string `gorm:"column:middle_name"`
	Phone      string  `gorm:"column:phone;not null"`

	Country         string        `gorm:"column:country;not null"`
	City            *string       `gorm:"column:city"`
	Address         *string       `gorm:"column:address"`
	PickupPointCode *string       `gorm:"column:pickup_point_code"`
	PostalIndex     *string       `gorm:"column:postal_index"`
	Region          *string       `gorm:"column:region"`
	TariffCode      int           `gorm:"column:tariff_code;not null;default:0"`
	DeliveryCost    int           `gorm:"column:delivery_cost;not null;default:0"`
	CodAllowed      bool          `gorm:"column:cod_allowed;not null;default:false"`
	Carrier         enums.Carrier `gorm:"column:carrier;not null;default:'cdek'"`

	Status         enums.OrderStatus `gorm:"column:status;not null;default:'waitpay'"`
	TrackingNumber *string           `gorm:"column:tracking_number"`
	ReceiptFileID  *string           `gorm:"column:receipt_file_id"`
	BarcodeURL     *string           `gorm:"column:barcode_url"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
