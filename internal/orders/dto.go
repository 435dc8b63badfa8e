package orders

import (
	"github.com/google/uuid"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
)

// PaymentFlow selects how the buyer pays for the order.
type PaymentFlow string

const (
	// FlowManual asks the buyer to transfer to the shop requisites and
	// upload a receipt screenshot.
	FlowManual PaymentFlow = "manual"
	// FlowGateway sends the buyer to the acquiring pay page and verifies
	// through status polls.
	FlowGateway PaymentFlow = "gateway"
)

// CartItem is one validated cart position handed to the coordinator.
type CartItem struct {
	ProductID       uuid.UUID
	Name            string
	Qty             int
	UnitPrice       int
	UnitWeightGrams int
	Bulky           bool
}

// PlaceOrderInput is the full checkout payload for one order group.
type PlaceOrderInput struct {
	ChatID   int64
	Username string

	Items []CartItem

	Surname    string
	FirstName  string
	MiddleName string
	Phone      string

	Country         string
	City            string
	Address         string
	PickupPointCode string
	PostalIndex     string
	Region          string

	Carrier      enums.Carrier
	TariffCode   int
	DeliveryCost int
	CodAllowed   bool

	Flow PaymentFlow

	// QueryID, when set, is the web-app query answered with the order
	// summary after the group is created.
	QueryID string
}

// TotalPrice sums the cart in whole rubles.
func (in PlaceOrderInput) TotalPrice() int {
	total := 0
	for _, item := range in.Items {
		total += item.Qty * item.UnitPrice
	}
	return total
}

// PlaceOrderResult reports the created group back to the transport layer.
type PlaceOrderResult struct {
	GroupID    string
	TotalPrice int
	// PaymentURL is set for the gateway flow only.
	PaymentURL string
}

// CheckPaymentResult is the buyer-facing verdict of one payment check.
type CheckPaymentResult struct {
	// Reply is the short text answered onto the pressed button.
	Reply string
	// Finalized is true when this check confirmed the payment and
	// registered the shipment.
	Finalized bool
}

// ApproveResult reports what the manager's approve click did.
type ApproveResult struct {
	// AlreadyAccepted is true when the order had been finalized before;
	// no carrier calls were made.
	AlreadyAccepted bool
	TrackingNumber  string
}

// CancelReason distinguishes the bulk waitpay purge paths.
type CancelReason string

const (
	// CancelReasonExpired is the payment-window timeout.
	CancelReasonExpired CancelReason = "expired"
	// CancelReasonRequisitesChanged purges live orders after the shop
	// payment requisites rotate.
	CancelReasonRequisitesChanged CancelReason = "requisites_changed"
	// CancelReasonReplaced purges the buyer's previous live order on a new
	// checkout.
	CancelReasonReplaced CancelReason = "replaced"
	// CancelReasonStartup is the orphaned-order sweep after a restart.
	CancelReasonStartup CancelReason = "startup"
)

// GroupSummary is a condensed order-group view for manager listings.
type GroupSummary struct {
	GroupID        string
	Status         enums.OrderStatus
	BuyerChatID    int64
	TotalPrice     int
	TrackingNumber string
	Lines          []models.OrderLine
}
