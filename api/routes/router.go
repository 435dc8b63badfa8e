package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vorobeishop/storefront-backend/api/controllers"
	"github.com/vorobeishop/storefront-backend/api/middleware"
	checkoutsvc "github.com/vorobeishop/storefront-backend/internal/checkout"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/redis"
)

type buyerLister interface {
	ListBuyers(ctx context.Context) ([]models.Buyer, error)
}

type broadcastSender interface {
	SendBuyerHTML(ctx context.Context, chatID int64, html string) error
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redis.Pinger
	Checkout checkoutsvc.Service
	Orders   orders.Service
	Buyers   buyerLister
	Sender   broadcastSender
}

// NewRouter assembles the CRM-facing HTTP API.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Config))
		r.Get("/ready", controllers.HealthReady(deps.Config, deps.Logger, deps.DB, deps.Redis))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/cdek", controllers.CheckoutCdek(deps.Checkout, deps.Logger))
			r.Post("/mail", controllers.CheckoutMail(deps.Checkout, deps.Logger))
		})
		r.Route("/payments", func(r chi.Router) {
			r.Post("/check", controllers.CheckPayment(deps.Orders, deps.Logger))
			r.Post("/requisites-rotated", controllers.RequisitesRotated(deps.Orders, deps.Logger))
		})
		r.Post("/orders/edit", controllers.OrderEdit(deps.Orders, deps.Logger))
		r.Post("/broadcast", controllers.Broadcast(deps.Buyers, deps.Sender, deps.Logger))
	})

	return r
}
