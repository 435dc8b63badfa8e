package carrier

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vorobeishop/storefront-backend/pkg/cdek"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

type stubCdekAPI struct {
	createOrderRef *cdek.OrderRef
	createOrderErr error
	lastOrder      cdek.OrderRequest

	infoResponses []*cdek.OrderInfo
	infoCalls     int

	barcodeUUID string
	barcodes    []*cdek.Barcode
	getCalls    int
}

func (s *stubCdekAPI) CreateOrder(_ context.Context, req cdek.OrderRequest) (*cdek.OrderRef, error) {
	s.lastOrder = req
	if s.createOrderErr != nil {
		return nil, s.createOrderErr
	}
	return s.createOrderRef, nil
}

func (s *stubCdekAPI) GetOrderByNumber(_ context.Context, _ string) (*cdek.OrderInfo, error) {
	idx := s.infoCalls
	if idx >= len(s.infoResponses) {
		idx = len(s.infoResponses) - 1
	}
	s.infoCalls++
	return s.infoResponses[idx], nil
}

func (s *stubCdekAPI) CreateBarcode(_ context.Context, _ string) (string, error) {
	return s.barcodeUUID, nil
}

func (s *stubCdekAPI) GetBarcode(_ context.Context, _ string) (*cdek.Barcode, error) {
	idx := s.getCalls
	if idx >= len(s.barcodes) {
		idx = len(s.barcodes) - 1
	}
	s.getCalls++
	return s.barcodes[idx], nil
}

func pollConfig() config.OrderConfig {
	return config.OrderConfig{
		TrackingAttempts: 3,
		TrackingDelay:    time.Millisecond,
		BarcodeAttempts:  4,
		BarcodeDelay:     time.Millisecond,
	}
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test"})
}

func TestTrackingNumberReturnsOnceAssigned(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{
		infoResponses: []*cdek.OrderInfo{
			{UUID: "u-1"},
			{UUID: "u-1"},
			{UUID: "u-1", TrackingNumber: "CD123456789"},
		},
	}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	number, err := gw.TrackingNumber(context.Background(), "group-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if number != "CD123456789" {
		t.Fatalf("expected tracking number, got %q", number)
	}
	if api.infoCalls != 3 {
		t.Fatalf("expected 3 polls, got %d", api.infoCalls)
	}
}

func TestTrackingNumberExhaustsBudget(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{infoResponses: []*cdek.OrderInfo{{UUID: "u-1"}}}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	_, err := gw.TrackingNumber(context.Background(), "group-1")
	if err == nil {
		t.Fatal("expected an error after the retry budget")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if api.infoCalls != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", api.infoCalls)
	}
}

func TestTrackingNumberSurfacesCarrierErrorPayload(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{
		infoResponses: []*cdek.OrderInfo{
			{UUID: "u-1", Errors: []cdek.APIError{{Code: "v2_invalid_address", Message: "address not found"}}},
		},
	}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	_, err := gw.TrackingNumber(context.Background(), "group-1")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "address not found") {
		t.Fatalf("carrier message should be surfaced, got %v", err)
	}
	if api.infoCalls != 1 {
		t.Fatalf("error payload is terminal, expected 1 poll, got %d", api.infoCalls)
	}
}

func TestBarcodeURLGivesUpAfterBudget(t *testing.T) {
	t.Parallel()

	// Carrier never finishes rendering.
	api := &stubCdekAPI{
		barcodeUUID: "bc-1",
		barcodes:    []*cdek.Barcode{{UUID: "bc-1"}},
	}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	_, err := gw.BarcodeURL(context.Background(), "u-1")
	if err == nil {
		t.Fatal("expected a terminal error")
	}
	if coded := pkgerrors.As(err); coded == nil || coded.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
	if api.getCalls != 4 {
		t.Fatalf("expected exactly 4 polls, got %d", api.getCalls)
	}
}

func TestBarcodeURLReturnsOnceRendered(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{
		barcodeUUID: "bc-1",
		barcodes: []*cdek.Barcode{
			{UUID: "bc-1"},
			{UUID: "bc-1", URL: "https://api.cdek.ru/v2/print/barcodes/bc-1.pdf"},
		},
	}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	url, err := gw.BarcodeURL(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url == "" {
		t.Fatal("expected a barcode url")
	}
	if api.getCalls != 2 {
		t.Fatalf("expected 2 polls, got %d", api.getCalls)
	}
}

func TestRegisterShipmentCodOrderCarriesDeliveryFee(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{createOrderRef: &cdek.OrderRef{UUID: "u-1"}}
	gw := NewCdekGateway(api, config.CdekConfig{ShipmentCode: "MSK67"}, pollConfig(), testLogger())

	req := ShipmentRequest{
		GroupID:          "group-1",
		Surname:          "Иванов",
		FirstName:        "Иван",
		Phone:            "+79990001122",
		Country:          "RU",
		PickupPointCode:  "NSK33",
		TariffCode:       136,
		DeliveryCost:     350,
		CodAllowed:       true,
		TotalPriceRubles: 4000,
		Items:            []ShipmentItem{{Name: "Витамин C", Qty: 2, UnitWeightGrams: 250}},
	}
	reg, err := gw.RegisterShipment(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.UUID != "u-1" {
		t.Fatalf("expected registration uuid, got %q", reg.UUID)
	}

	order := api.lastOrder
	if order.DeliveryPoint != "NSK33" {
		t.Fatalf("expected pickup point on the order, got %q", order.DeliveryPoint)
	}
	if order.ShipmentPoint != "MSK67" {
		t.Fatalf("expected shipment point, got %q", order.ShipmentPoint)
	}
	if len(order.DeliveryRecipientCostAdv) != 1 || order.DeliveryRecipientCostAdv[0].Sum != 350 {
		t.Fatalf("expected cash-on-delivery fee 350, got %+v", order.DeliveryRecipientCostAdv)
	}
	if len(order.Packages) != 1 || order.Packages[0].Items[0].Amount != 2 {
		t.Fatalf("expected one package with 2 items, got %+v", order.Packages)
	}
}

func TestRegisterShipmentPackageWeightCoversItemWeights(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{createOrderRef: &cdek.OrderRef{UUID: "u-3"}}
	gw := NewCdekGateway(api, config.CdekConfig{ShipmentCode: "MSK67"}, pollConfig(), testLogger())

	// 410 g across 3 items does not split evenly per item.
	req := ShipmentRequest{
		GroupID:          "group-3",
		Surname:          "Иванов",
		FirstName:        "Иван",
		Phone:            "+79990001122",
		Country:          "RU",
		PickupPointCode:  "NSK33",
		TariffCode:       136,
		TotalPriceRubles: 3000,
		Items: []ShipmentItem{
			{Name: "Витамин C", Qty: 2, UnitWeightGrams: 155},
			{Name: "Цинк", Qty: 1, UnitWeightGrams: 100},
		},
	}
	if _, err := gw.RegisterShipment(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := api.lastOrder
	if len(order.Packages) != 1 {
		t.Fatalf("expected one package, got %+v", order.Packages)
	}
	pkg := order.Packages[0]
	item := pkg.Items[0]
	if item.Weight != 137 || item.Amount != 3 {
		t.Fatalf("expected 3 items at 137 g, got amount %d weight %d", item.Amount, item.Weight)
	}
	if pkg.Weight != item.Weight*item.Amount {
		t.Fatalf("package weight %d must equal item weight times amount %d", pkg.Weight, item.Weight*item.Amount)
	}
	if pkg.Weight < 410 {
		t.Fatalf("declared weight %d must not undershoot the actual 410 g", pkg.Weight)
	}
}

func TestRegisterShipmentInternationalOrderHasInvoiceFields(t *testing.T) {
	t.Parallel()

	api := &stubCdekAPI{createOrderRef: &cdek.OrderRef{UUID: "u-2"}}
	gw := NewCdekGateway(api, config.CdekConfig{}, pollConfig(), testLogger())

	req := ShipmentRequest{
		GroupID:          "group-2",
		Surname:          "Алиева",
		FirstName:        "Лейла",
		Phone:            "+994500001122",
		Country:          "AZ",
		PickupPointCode:  "BAKU1",
		TariffCode:       136,
		DeliveryCost:     900,
		CodAllowed:       true,
		TotalPriceRubles: 6000,
		Items:            []ShipmentItem{{Name: "Протеин", Qty: 1, UnitWeightGrams: 2100, Bulky: true}},
	}
	if _, err := gw.RegisterShipment(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := api.lastOrder
	if order.DateInvoice == "" || order.ShipperName == "" || order.ShipperAddress == "" {
		t.Fatalf("international order must carry invoice fields, got %+v", order)
	}
	if len(order.DeliveryRecipientCostAdv) != 0 {
		t.Fatalf("cash on delivery is not offered internationally, got %+v", order.DeliveryRecipientCostAdv)
	}
}
