package checkout

import (
	"github.com/google/uuid"
)

// ItemInput is one web-app basket position. Zero-quantity positions are
// tolerated and dropped during validation.
type ItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"gte=0"`
}

// CdekInput is the payload of the CDEK checkout endpoint, posted by the
// storefront web app when the buyer confirms the basket.
type CdekInput struct {
	ChatID   int64  `json:"telegram_id" validate:"required"`
	Username string `json:"username"`

	Items []ItemInput `json:"items" validate:"required,dive"`

	Surname    string `json:"surname" validate:"required"`
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	Phone      string `json:"phone" validate:"required"`

	Country string `json:"country" validate:"required"`
	City    string `json:"city"`
	// Address is set for courier delivery; PickupPointCode for PVZ delivery.
	// Exactly one of the two must be present.
	Address         string `json:"address"`
	PickupPointCode string `json:"pickup_point_code"`
	// PickupAllowsCod mirrors the selected office's cash-on-delivery flag
	// as reported by the carrier office directory in the web app.
	PickupAllowsCod bool `json:"pickup_allows_cod"`

	TariffCode   int `json:"tariff_code" validate:"required"`
	DeliveryCost int `json:"delivery_cost" validate:"gte=0"`

	// UseGateway switches the order to acquiring-page payment instead of
	// the manual transfer flow.
	UseGateway bool `json:"use_gateway"`

	// QueryID is the web-app query id; when present the order summary is
	// answered back into the buyer chat.
	QueryID string `json:"query_id"`
}

// MailInput is the payload of the Russian Post checkout endpoint.
type MailInput struct {
	ChatID   int64  `json:"telegram_id" validate:"required"`
	Username string `json:"username"`

	Items []ItemInput `json:"items" validate:"required,dive"`

	Surname    string `json:"surname" validate:"required"`
	FirstName  string `json:"first_name" validate:"required"`
	MiddleName string `json:"middle_name"`
	Phone      string `json:"phone" validate:"required"`

	City        string `json:"city" validate:"required"`
	Address     string `json:"address" validate:"required"`
	PostalIndex string `json:"postal_index" validate:"required"`
	Region      string `json:"region" validate:"required"`

	DeliveryCost int `json:"delivery_cost" validate:"gte=0"`

	QueryID string `json:"query_id"`
}

// Result reports the created order group back to the web app.
type Result struct {
	GroupID string `json:"group_id"`
	// Subtotal is the goods price in rubles, before delivery.
	Subtotal int `json:"subtotal"`
	// DeliveryCost is the charged delivery price; zero once the free
	// delivery threshold is crossed.
	DeliveryCost int `json:"delivery_cost"`
	// AmountDue is what the buyer is asked to transfer now. Cash-on-delivery
	// orders exclude the delivery cost, it is settled at the pickup point.
	AmountDue int `json:"amount_due"`
	// PaymentURL is set for gateway payments only.
	PaymentURL string `json:"payment_url,omitempty"`
}
