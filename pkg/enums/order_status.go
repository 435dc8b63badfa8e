package enums

import "fmt"

// OrderStatus tracks the lifecycle of an order group. Every row in the group
// carries the same status and rows transition together.
type OrderStatus string

const (
	// OrderStatusWaitPay means the buyer has been asked to pay and the
	// payment window is running.
	OrderStatusWaitPay OrderStatus = "waitpay"
	// OrderStatusProcessing is a short-lived claim held while a payment
	// check or a manager approval drives the group forward.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusPending means a payment artifact arrived and the group
	// waits for manager review.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusSuccess means the shipment is registered and a tracking
	// number is attached.
	OrderStatusSuccess OrderStatus = "success"
	// OrderStatusCancelled is the terminal state for expired or
	// buyer-abandoned groups.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusRejected is the terminal state set by manager rejection.
	OrderStatusRejected OrderStatus = "rejected"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusWaitPay,
	OrderStatusProcessing,
	OrderStatusPending,
	OrderStatusSuccess,
	OrderStatusCancelled,
	OrderStatusRejected,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the group's lifecycle.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusCancelled || o == OrderStatusRejected
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
