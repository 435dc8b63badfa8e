package controllers

import (
	"net/http"

	"github.com/vorobeishop/storefront-backend/api/responses"
	"github.com/vorobeishop/storefront-backend/api/validators"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

type checkPaymentRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
}

type checkPaymentResponse struct {
	Reply     string `json:"reply"`
	Finalized bool   `json:"finalized"`
}

// CheckPayment runs one gateway verification pass for a payment. The same
// guard cycle backs the buyer's "check payment" button, so a page poller
// and the chat button cannot double-finalize.
func CheckPayment(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload checkPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CheckPayment(r.Context(), payload.PaymentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, checkPaymentResponse{Reply: result.Reply, Finalized: result.Finalized})
	}
}

type requisitesRotatedResponse struct {
	Cancelled int `json:"cancelled"`
}

// RequisitesRotated purges every order still waiting for a manual
// transfer. Called by the CRM after the shop's bank requisites change, so
// no buyer pays to a stale account.
func RequisitesRotated(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		cancelled, err := svc.CancelWaitPayOrders(r.Context(), orders.CancelReasonRequisitesChanged)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, requisitesRotatedResponse{Cancelled: cancelled})
	}
}
