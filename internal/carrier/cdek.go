package carrier

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vorobeishop/storefront-backend/pkg/cdek"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

const (
	countryRussia = "RU"

	cdekOrderType   = 1
	cdekPackageName = "Пищевые добавки"
	cdekSenderName  = "Зубаиров Заур Залбегович"
	cdekShipperName = "Vorobei Shop"
	shipperAddress  = "г. Кизилюрт, площадь Героев 1"
)

// cdekAPI is the slice of the carrier client the gateway needs.
type cdekAPI interface {
	CreateOrder(ctx context.Context, req cdek.OrderRequest) (*cdek.OrderRef, error)
	GetOrderByNumber(ctx context.Context, imNumber string) (*cdek.OrderInfo, error)
	CreateBarcode(ctx context.Context, orderUUID string) (string, error)
	GetBarcode(ctx context.Context, barcodeUUID string) (*cdek.Barcode, error)
}

// CdekGateway registers shipments with CDEK and polls for the tracking
// number and the A4 barcode the warehouse prints.
type CdekGateway struct {
	api  cdekAPI
	cfg  config.CdekConfig
	poll config.OrderConfig
	logg *logger.Logger
}

// NewCdekGateway wires the CDEK adapter.
func NewCdekGateway(api cdekAPI, cfg config.CdekConfig, poll config.OrderConfig, logg *logger.Logger) *CdekGateway {
	return &CdekGateway{api: api, cfg: cfg, poll: poll, logg: logg}
}

// RegisterShipment submits the order group as a CDEK order. The tracking
// number is assigned asynchronously; callers follow up with TrackingNumber.
func (g *CdekGateway) RegisterShipment(ctx context.Context, req ShipmentRequest) (*Registration, error) {
	order := g.buildOrder(req)
	ref, err := g.api.CreateOrder(ctx, order)
	if err != nil {
		return nil, err
	}
	g.logg.Info(g.logg.WithOrderGroup(ctx, req.GroupID), "cdek order registered")
	return &Registration{UUID: ref.UUID}, nil
}

// TrackingNumber polls the carrier for the assigned number. A structured
// error payload from the carrier is terminal and carries its message.
func (g *CdekGateway) TrackingNumber(ctx context.Context, groupID string) (string, error) {
	attempts := g.poll.TrackingAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		info, err := g.api.GetOrderByNumber(ctx, groupID)
		if err != nil {
			return "", err
		}
		if len(info.Errors) > 0 {
			return "", pkgerrors.New(pkgerrors.CodeDependency, formatInfoErrors(info.Errors))
		}
		if info.TrackingNumber != "" {
			return info.TrackingNumber, nil
		}
		if attempt < attempts {
			if err := sleepCtx(ctx, g.poll.TrackingDelay); err != nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "tracking poll cancelled")
			}
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("tracking number not assigned after %d attempts", attempts))
}

// BarcodeURL requests the A4 barcode and polls until the carrier finishes
// rendering it. The retry budget is fixed; exhausting it is terminal.
func (g *CdekGateway) BarcodeURL(ctx context.Context, shipmentUUID string) (string, error) {
	barcodeUUID, err := g.api.CreateBarcode(ctx, shipmentUUID)
	if err != nil {
		return "", err
	}

	attempts := g.poll.BarcodeAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		barcode, err := g.api.GetBarcode(ctx, barcodeUUID)
		if err != nil {
			return "", err
		}
		if barcode.URL != "" {
			return barcode.URL, nil
		}
		if attempt < attempts {
			if err := sleepCtx(ctx, g.poll.BarcodeDelay); err != nil {
				return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "barcode poll cancelled")
			}
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeDependency,
		fmt.Sprintf("barcode not ready after %d attempts", attempts))
}

func (g *CdekGateway) buildOrder(req ShipmentRequest) cdek.OrderRequest {
	order := cdek.OrderRequest{
		Type:          cdekOrderType,
		Number:        req.GroupID,
		TariffCode:    req.TariffCode,
		ShipmentPoint: g.cfg.ShipmentCode,
		DeliveryRecipientCost: &cdek.Money{Value: 0},
		Sender:                &cdek.Contact{Name: cdekSenderName},
		Recipient: cdek.Contact{
			Name:   recipientName(req),
			Phones: []cdek.Phone{{Number: req.Phone}},
		},
		Services: []cdek.Service{{Code: "INSURANCE", Parameter: "0"}},
		Packages: g.buildPackages(req),
	}

	if req.PickupPointCode != "" {
		order.DeliveryPoint = req.PickupPointCode
	} else {
		order.ToLocation = &cdek.Location{
			CountryCode: req.Country,
			City:        req.City,
			Address:     req.Address,
		}
	}

	if req.Country == countryRussia {
		if req.CodAllowed && req.DeliveryCost > 0 {
			order.DeliveryRecipientCostAdv = []cdek.ThresholdFee{
				{Sum: req.DeliveryCost, Threshold: 1},
			}
		}
	} else {
		order.DateInvoice = time.Now().Format("2006-01-02")
		order.ShipperName = cdekShipperName
		order.ShipperAddress = shipperAddress
	}
	return order
}

func (g *CdekGateway) buildPackages(req ShipmentRequest) []cdek.Package {
	packed := PackOrder(BuildPackInput(req.Items, req.TotalPriceRubles))
	packages := make([]cdek.Package, 0, len(packed))
	for i, p := range packed {
		// Item weight times amount must match the declared package weight,
		// so round the per-item share up and declare the reconciled total.
		unitWeight := p.WeightGrams
		totalWeight := p.WeightGrams
		if p.Items > 0 {
			unitWeight = (p.WeightGrams + p.Items - 1) / p.Items
			totalWeight = unitWeight * p.Items
		}
		number := strconv.Itoa(i + 1)
		packages = append(packages, cdek.Package{
			Number:  number,
			Comment: "Упаковка",
			Length:  p.Length,
			Width:   p.Width,
			Height:  p.Height,
			Weight:  totalWeight,
			Items: []cdek.PackageItem{{
				WareKey: number,
				Name:    cdekPackageName,
				Payment: cdek.Money{Value: 0},
				Cost:    p.CostRubles,
				Amount:  p.Items,
				Weight:  unitWeight,
			}},
		})
	}
	return packages
}

func recipientName(req ShipmentRequest) string {
	parts := []string{req.Surname, req.FirstName}
	if req.MiddleName != "" {
		parts = append(parts, req.MiddleName)
	}
	return strings.Join(parts, " ")
}

func formatInfoErrors(errs []cdek.APIError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Code, e.Message))
	}
	return "carrier rejected the order: " + strings.Join(parts, "; ")
}
