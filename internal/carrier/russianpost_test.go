package carrier

import (
	"context"
	"testing"

	"github.com/vorobeishop/storefront-backend/pkg/russianpost"
)

type stubPostAPI struct {
	result    *russianpost.OrderResult
	err       error
	lastOrder russianpost.Order
}

func (s *stubPostAPI) CreateBacklogOrder(_ context.Context, order russianpost.Order) (*russianpost.OrderResult, error) {
	s.lastOrder = order
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func TestPostRegisterShipmentReturnsBarcode(t *testing.T) {
	t.Parallel()

	api := &stubPostAPI{result: &russianpost.OrderResult{ResultIDs: []int64{101}, Barcode: "80511234567890"}}
	gw := NewPostGateway(api, testLogger())

	req := ShipmentRequest{
		GroupID:     "group-3",
		Surname:     "Петрова",
		FirstName:   "Анна",
		MiddleName:  "Сергеевна",
		Phone:       "+79991112233",
		Country:     "RU",
		City:        "Казань",
		Address:     "ул. Баумана, 5",
		PostalIndex: "420111",
		Region:      "Республика Татарстан",
		Items:       []ShipmentItem{{Name: "Коллаген", Qty: 2, UnitWeightGrams: 400}},
	}
	reg, err := gw.RegisterShipment(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.TrackingNumber != "80511234567890" {
		t.Fatalf("expected the backlog barcode, got %q", reg.TrackingNumber)
	}

	if api.lastOrder.Mass != 800 {
		t.Fatalf("expected mass 800g, got %d", api.lastOrder.Mass)
	}
	if api.lastOrder.IndexTo != "420111" || api.lastOrder.RegionTo == "" {
		t.Fatalf("postal destination missing: %+v", api.lastOrder)
	}
	if api.lastOrder.RecipientName != "Петрова Анна Сергеевна" {
		t.Fatalf("unexpected recipient name %q", api.lastOrder.RecipientName)
	}
}

func TestPostRegisterShipmentRequiresBarcode(t *testing.T) {
	t.Parallel()

	api := &stubPostAPI{result: &russianpost.OrderResult{ResultIDs: []int64{102}}}
	gw := NewPostGateway(api, testLogger())

	if _, err := gw.RegisterShipment(context.Background(), ShipmentRequest{GroupID: "group-4"}); err == nil {
		t.Fatal("expected an error when the backlog returns no barcode")
	}
}
