package controllers

import (
	"context"
	"net/http"

	"github.com/vorobeishop/storefront-backend/api/responses"
	"github.com/vorobeishop/storefront-backend/api/validators"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

type buyerLister interface {
	ListBuyers(ctx context.Context) ([]models.Buyer, error)
}

type broadcastSender interface {
	SendBuyerHTML(ctx context.Context, chatID int64, html string) error
}

type broadcastRequest struct {
	Message string `json:"message" validate:"required"`
}

type broadcastFailure struct {
	ChatID int64  `json:"chat_id"`
	Error  string `json:"error"`
}

type broadcastResponse struct {
	Sent   int                `json:"sent"`
	Failed []broadcastFailure `json:"failed,omitempty"`
}

// Broadcast sends an HTML message to every known buyer. Per-buyer send
// failures are collected and reported, they never abort the mailing.
func Broadcast(buyers buyerLister, sender broadcastSender, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if buyers == nil || sender == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "broadcast dependencies unavailable"))
			return
		}

		var payload broadcastRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		message := validators.SanitizeString(payload.Message, 0)
		if message == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "message is required"))
			return
		}

		all, err := buyers.ListBuyers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := broadcastResponse{}
		for _, buyer := range all {
			if err := sender.SendBuyerHTML(r.Context(), buyer.ChatID, message); err != nil {
				ctx := logg.WithChatID(r.Context(), buyer.ChatID)
				logg.Error(ctx, "broadcast send", err)
				result.Failed = append(result.Failed, broadcastFailure{
					ChatID: buyer.ChatID,
					Error:  "Сообщение не отправлено, проверьте правильность написания тегов",
				})
				continue
			}
			result.Sent++
		}
		responses.WriteSuccess(w, result)
	}
}
