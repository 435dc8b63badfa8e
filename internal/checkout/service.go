package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vorobeishop/storefront-backend/internal/orders"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

const countryRussia = "RU"

type productCatalog interface {
	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type orderPlacer interface {
	PlaceOrder(ctx context.Context, input orders.PlaceOrderInput) (*orders.PlaceOrderResult, error)
}

// Service turns web-app baskets into order groups. Prices are always taken
// from the catalog, never from the client payload.
type Service interface {
	PlaceCdekOrder(ctx context.Context, input CdekInput) (*Result, error)
	PlaceMailOrder(ctx context.Context, input MailInput) (*Result, error)
}

// ServiceDeps wires the checkout collaborators.
type ServiceDeps struct {
	Catalog productCatalog
	Orders  orderPlacer
	Logger  *logger.Logger
	Order   config.OrderConfig
}

type service struct {
	catalog  productCatalog
	orders   orderPlacer
	logg     *logger.Logger
	orderCfg config.OrderConfig
}

// NewService builds the checkout service.
func NewService(deps ServiceDeps) Service {
	return &service{
		catalog:  deps.Catalog,
		orders:   deps.Orders,
		logg:     deps.Logger,
		orderCfg: deps.Order,
	}
}

// PlaceCdekOrder places a CDEK order group. Courier and pickup-point
// deliveries differ only in destination and cash-on-delivery eligibility.
func (s *service) PlaceCdekOrder(ctx context.Context, input CdekInput) (*Result, error) {
	if (input.Address == "") == (input.PickupPointCode == "") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			"exactly one of address and pickup_point_code must be set")
	}

	cart, subtotal, err := s.buildCart(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	deliveryCost := s.chargedDelivery(subtotal, input.DeliveryCost)
	codAllowed := input.Country == countryRussia && input.PickupPointCode != "" && input.PickupAllowsCod

	flow := orders.FlowManual
	if input.UseGateway {
		flow = orders.FlowGateway
	}

	placed, err := s.orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		ChatID:          input.ChatID,
		Username:        input.Username,
		Items:           cart,
		Surname:         input.Surname,
		FirstName:       input.FirstName,
		MiddleName:      input.MiddleName,
		Phone:           input.Phone,
		Country:         input.Country,
		City:            input.City,
		Address:         input.Address,
		PickupPointCode: input.PickupPointCode,
		Carrier:         enums.CarrierCdek,
		TariffCode:      input.TariffCode,
		DeliveryCost:    deliveryCost,
		CodAllowed:      codAllowed,
		Flow:            flow,
		QueryID:         input.QueryID,
	})
	if err != nil {
		return nil, err
	}

	amountDue := subtotal + deliveryCost
	if codAllowed {
		// Delivery is settled in cash at the pickup point.
		amountDue = subtotal
	}
	s.logg.Info(s.logg.WithOrderGroup(ctx, placed.GroupID), "cdek checkout placed")
	return &Result{
		GroupID:      placed.GroupID,
		Subtotal:     subtotal,
		DeliveryCost: deliveryCost,
		AmountDue:    amountDue,
		PaymentURL:   placed.PaymentURL,
	}, nil
}

// PlaceMailOrder places a Russian Post order group. The post office has no
// cash-on-delivery option, so the buyer always pays delivery up front.
func (s *service) PlaceMailOrder(ctx context.Context, input MailInput) (*Result, error) {
	cart, subtotal, err := s.buildCart(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	deliveryCost := s.chargedDelivery(subtotal, input.DeliveryCost)

	placed, err := s.orders.PlaceOrder(ctx, orders.PlaceOrderInput{
		ChatID:       input.ChatID,
		Username:     input.Username,
		Items:        cart,
		Surname:      input.Surname,
		FirstName:    input.FirstName,
		MiddleName:   input.MiddleName,
		Phone:        input.Phone,
		Country:      countryRussia,
		City:         input.City,
		Address:      input.Address,
		PostalIndex:  input.PostalIndex,
		Region:       input.Region,
		Carrier:      enums.CarrierPost,
		DeliveryCost: deliveryCost,
		Flow:         orders.FlowManual,
		QueryID:      input.QueryID,
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithOrderGroup(ctx, placed.GroupID), "mail checkout placed")
	return &Result{
		GroupID:      placed.GroupID,
		Subtotal:     subtotal,
		DeliveryCost: deliveryCost,
		AmountDue:    subtotal + deliveryCost,
	}, nil
}

// buildCart drops empty positions, resolves the catalog snapshot and sums
// the goods price.
func (s *service) buildCart(ctx context.Context, items []ItemInput) ([]orders.CartItem, int, error) {
	filtered := make([]ItemInput, 0, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.Qty <= 0 {
			continue
		}
		filtered = append(filtered, item)
		ids = append(ids, item.ProductID)
	}
	if len(filtered) == 0 {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "basket is empty")
	}

	products, err := s.catalog.FindProducts(ctx, ids)
	if err != nil {
		return nil, 0, err
	}

	cart := make([]orders.CartItem, 0, len(filtered))
	subtotal := 0
	for _, item := range filtered {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("product %s not found", item.ProductID))
		}
		cart = append(cart, orders.CartItem{
			ProductID:       product.ID,
			Name:            product.Name,
			Qty:             item.Qty,
			UnitPrice:       product.Price,
			UnitWeightGrams: product.UnitWeightGrams,
			Bulky:           product.Bulky,
		})
		subtotal += item.Qty * product.Price
	}
	return cart, subtotal, nil
}

func (s *service) chargedDelivery(subtotal, requested int) int {
	if s.orderCfg.FreeDeliveryAbove > 0 && subtotal >= s.orderCfg.FreeDeliveryAbove {
		return 0
	}
	return requested
}
