package controllers

import (
	"net/http"

	"github.com/vorobeishop/storefront-backend/api/responses"
	"github.com/vorobeishop/storefront-backend/api/validators"
	checkoutsvc "github.com/vorobeishop/storefront-backend/internal/checkout"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

// CheckoutMail handles basket submission for Russian Post delivery.
func CheckoutMail(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutsvc.MailInput
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.PlaceMailOrder(r.Context(), payload)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
