package carrier

import (
	"context"
	"time"

	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

// ShipmentItem is one product position of the shipment.
type ShipmentItem struct {
	Name            string
	Qty             int
	UnitPriceRubles int
	UnitWeightGrams int
	Bulky           bool
}

// ShipmentRequest carries everything a carrier needs to register a delivery
// for one order group.
type ShipmentRequest struct {
	GroupID string
	Carrier enums.Carrier

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

	TariffCode       int
	DeliveryCost     int
	CodAllowed       bool
	TotalPriceRubles int
	Items            []ShipmentItem
}

// Registration is the carrier's acknowledgement. TrackingNumber is set only
// when the carrier assigns it synchronously; otherwise callers poll
// TrackingNumber on the gateway.
type Registration struct {
	UUID           string
	TrackingNumber string
}

// Gateway is the carrier-facing contract used by the order coordinator.
// TrackingNumber and BarcodeURL poll with a bounded retry budget and return
// a terminal dependency error once it is exhausted.
type Gateway interface {
	RegisterShipment(ctx context.Context, req ShipmentRequest) (*Registration, error)
	TrackingNumber(ctx context.Context, groupID string) (string, error)
	BarcodeURL(ctx context.Context, shipmentUUID string) (string, error)
}

// Selector routes shipment requests to the gateway for their carrier.
type Selector struct {
	cdek Gateway
	post Gateway
}

// NewSelector wires the per-carrier gateways.
func NewSelector(cdekGateway, postGateway Gateway) *Selector {
	return &Selector{cdek: cdekGateway, post: postGateway}
}

// ForCarrier resolves the gateway serving the given carrier.
func (s *Selector) ForCarrier(c enums.Carrier) (Gateway, error) {
	switch c {
	case enums.CarrierCdek:
		if s.cdek == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "cdek gateway is not configured")
		}
		return s.cdek, nil
	case enums.CarrierPost:
		if s.post == nil {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "russian post gateway is not configured")
		}
		return s.post, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown carrier "+c.String())
	}
}

// sleepCtx waits out one retry delay unless the context is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
