package controllers

import (
	"net/http"

	"github.com/vorobeishop/storefront-backend/api/responses"
	"github.com/vorobeishop/storefront-backend/api/validators"
	checkoutsvc "github.com/vorobeishop/storefront-backend/internal/checkout"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

// CheckoutCdek handles basket submission for CDEK delivery, both courier
// and pickup-point variants.
func CheckoutCdek(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.CdekInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceCdekOrder(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
