package controllers

import (
	"net/http"

	"github.com/vorobeishop/storefront-backend/api/responses"
	"github.com/vorobeishop/storefront-backend/api/validators"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

type orderEditRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required"`
}

// OrderEdit re-renders the fulfillment-group card after a CRM-side edit,
// so the warehouse packs the corrected composition.
func OrderEdit(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload orderEditRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RefreshFulfillmentCard(r.Context(), payload.TrackingNumber); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
