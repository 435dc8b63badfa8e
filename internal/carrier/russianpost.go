package carrier

import (
	"context"

	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/russianpost"
)

const (
	postAddressTypeDefault = "DEFAULT"
	postMailTypeParcel     = "ONLINE_PARCEL"
	postCategoryOrdinary   = "ORDINARY"
)

// postAPI is the slice of the dispatch client the gateway needs.
type postAPI interface {
	CreateBacklogOrder(ctx context.Context, order russianpost.Order) (*russianpost.OrderResult, error)
}

// PostGateway registers postal shipments. The dispatch API hands out the
// barcode at registration time, so there is nothing to poll afterwards.
type PostGateway struct {
	api  postAPI
	logg *logger.Logger
}

// NewPostGateway wires the Russian Post adapter.
func NewPostGateway(api postAPI, logg *logger.Logger) *PostGateway {
	return &PostGateway{api: api, logg: logg}
}

// RegisterShipment pushes the order group into the dispatch backlog. The
// returned registration already carries the tracking barcode.
func (g *PostGateway) RegisterShipment(ctx context.Context, req ShipmentRequest) (*Registration, error) {
	in := BuildPackInput(req.Items, req.TotalPriceRubles)

	order := russianpost.Order{
		OrderNum:      req.GroupID,
		AddressTypeTo: postAddressTypeDefault,
		GivenName:     req.FirstName,
		Surname:       req.Surname,
		MiddleName:    req.MiddleName,
		RecipientName: recipientName(req),
		TelAddress:    req.Phone,
		IndexTo:       req.PostalIndex,
		RegionTo:      req.Region,
		PlaceTo:       req.City,
		StreetTo:      req.Address,
		MailCategory:  postCategoryOrdinary,
		MailType:      postMailTypeParcel,
		Mass:          in.TotalWeightGrams,
	}

	result, err := g.api.CreateBacklogOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	if result.Barcode == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "backlog accepted the order without a barcode")
	}
	g.logg.Info(g.logg.WithOrderGroup(ctx, req.GroupID), "postal order registered")
	return &Registration{TrackingNumber: result.Barcode}, nil
}

// TrackingNumber is never needed for postal shipments; the barcode arrives
// with the registration.
func (g *PostGateway) TrackingNumber(_ context.Context, _ string) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeDependency, "postal tracking is assigned at registration")
}

// BarcodeURL is not supported by the dispatch API; labels are printed from
// the sender cabinet.
func (g *PostGateway) BarcodeURL(_ context.Context, _ string) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeDependency, "postal labels are printed from the sender cabinet")
}
