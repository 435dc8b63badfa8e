package notify

import (
	"context"

	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/telegram"
)

const parseModeHTML = "HTML"

// Channel is the slice of the chat client the notifier sends through.
type Channel interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error)
	SendPhoto(ctx context.Context, req telegram.SendPhotoRequest) (*telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	EditMessageCaption(ctx context.Context, req telegram.EditMessageCaptionRequest) error
	EditMessageReplyMarkup(ctx context.Context, req telegram.EditMessageReplyMarkupRequest) error
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	AnswerWebAppQuery(ctx context.Context, queryID string, result telegram.InlineQueryResultArticle) error
}

// Notifier renders and delivers every chat-facing message of the order flow.
// Send failures never abort the surrounding state transition; methods either
// return the error for callers that need the message id, or log and swallow.
type Notifier struct {
	channel     Channel
	managerChat int64
	groupChat   int64
	logg        *logger.Logger
}

// NewNotifier wires the notifier to its chat targets.
func NewNotifier(channel Channel, managerChat, groupChat int64, logg *logger.Logger) *Notifier {
	return &Notifier{channel: channel, managerChat: managerChat, groupChat: groupChat, logg: logg}
}

// PromptPayment sends the manual-transfer instructions to the buyer and
// returns the prompt's message id so it can be deleted on cancellation.
func (n *Notifier) PromptPayment(ctx context.Context, chatID int64, totalPrice int, requisites string) (int, error) {
	msg, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID: chatID,
		Text:   PaymentPromptText(totalPrice, requisites),
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// AnswerCheckoutSummary answers the storefront web-app query so the order
// summary lands in the buyer chat as the checkout confirmation.
func (n *Notifier) AnswerCheckoutSummary(ctx context.Context, queryID string, card OrderCard) error {
	return n.channel.AnswerWebAppQuery(ctx, queryID, telegram.InlineQueryResultArticle{
		Type:  "article",
		ID:    card.GroupID,
		Title: "Заказ оформлен",
		InputMessageContent: telegram.InputTextMessageContent{
			MessageText: CheckoutSummaryText(card),
		},
	})
}

// SendPaymentLink sends the gateway pay-page link with the check control.
func (n *Notifier) SendPaymentLink(ctx context.Context, chatID int64, totalPrice int, paymentID, paymentURL string) error {
	_, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      chatID,
		Text:        PaymentPromptLinkText(totalPrice),
		ReplyMarkup: CheckPaymentKeyboard(paymentID, paymentURL),
	})
	return err
}

// SendApprovalCard posts the order card with the receipt screenshot into the
// manager chat and returns the card's message id.
func (n *Notifier) SendApprovalCard(ctx context.Context, card OrderCard, receiptFileID string) (int, error) {
	ctx = n.logg.WithOrderGroup(ctx, card.GroupID)
	if receiptFileID != "" {
		msg, err := n.channel.SendPhoto(ctx, telegram.SendPhotoRequest{
			ChatID:      n.managerChat,
			Photo:       receiptFileID,
			Caption:     ApprovalCardText(card),
			ParseMode:   parseModeHTML,
			ReplyMarkup: ApprovalKeyboard(card.GroupID),
		})
		if err != nil {
			return 0, err
		}
		return msg.MessageID, nil
	}

	msg, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      n.managerChat,
		Text:        ApprovalCardText(card),
		ParseMode:   parseModeHTML,
		ReplyMarkup: ApprovalKeyboard(card.GroupID),
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// NotifyManager delivers a plain text to the manager chat. Best effort.
func (n *Notifier) NotifyManager(ctx context.Context, text string) {
	n.sendBestEffort(ctx, n.managerChat, text)
}

// SendFulfillmentCard posts the shipped-order summary with the collect
// control into the warehouse group and returns its message id.
func (n *Notifier) SendFulfillmentCard(ctx context.Context, card OrderCard, trackingNumber, barcodeURL string) (int, error) {
	msg, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      n.groupChat,
		Text:        FulfillmentCardText(card, trackingNumber, barcodeURL),
		ParseMode:   parseModeHTML,
		ReplyMarkup: CollectKeyboard(trackingNumber),
	})
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// EditFulfillmentCard re-renders a posted fulfillment card in place,
// keeping the collect control. Used after CRM-side order edits.
func (n *Notifier) EditFulfillmentCard(ctx context.Context, messageID int, card OrderCard, trackingNumber, barcodeURL string) error {
	return n.channel.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:      n.groupChat,
		MessageID:   messageID,
		Text:        FulfillmentCardText(card, trackingNumber, barcodeURL),
		ParseMode:   parseModeHTML,
		ReplyMarkup: CollectKeyboard(trackingNumber),
	})
}

// NotifyBuyerTracking tells the buyer the tracking number. Best effort.
func (n *Notifier) NotifyBuyerTracking(ctx context.Context, chatID int64, trackingNumber, supportHandle string) {
	n.sendBestEffort(ctx, chatID, TrackingText(trackingNumber, supportHandle))
}

// NotifyBuyerAutoCancelled tells the buyer the payment window ran out.
func (n *Notifier) NotifyBuyerAutoCancelled(ctx context.Context, chatID int64) {
	n.sendBestEffort(ctx, chatID, AutoCancelText())
}

// NotifyBuyerRequisitesChanged tells the buyer the order was purged after a
// requisites rotation.
func (n *Notifier) NotifyBuyerRequisitesChanged(ctx context.Context, chatID int64) {
	n.sendBestEffort(ctx, chatID, RequisitesChangedText())
}

// NotifyBuyerRejected tells the buyer the manager declined the order.
func (n *Notifier) NotifyBuyerRejected(ctx context.Context, chatID int64) {
	n.sendBestEffort(ctx, chatID, RejectedText())
}

// NotifyBuyerCollected tells the buyer the parcel is heading to the carrier.
func (n *Notifier) NotifyBuyerCollected(ctx context.Context, chatID int64, trackingNumber string) {
	msg := telegram.SendMessageRequest{
		ChatID:    chatID,
		Text:      BuyerCollectedText(trackingNumber),
		ParseMode: parseModeHTML,
	}
	if _, err := n.channel.SendMessage(ctx, msg); err != nil {
		n.logg.Error(n.logg.WithChatID(ctx, chatID), "send notification", err)
	}
}

// NotifyBuyerCollectCancelled tells the buyer the handover was called off.
func (n *Notifier) NotifyBuyerCollectCancelled(ctx context.Context, chatID int64, trackingNumber string) {
	n.sendBestEffort(ctx, chatID, BuyerCollectCancelledText(trackingNumber))
}

// ThankForScreenshot acknowledges the receipt upload to the buyer.
func (n *Notifier) ThankForScreenshot(ctx context.Context, chatID int64) {
	n.sendBestEffort(ctx, chatID, ScreenshotAcceptedText())
}

// ShowCollectConfirm swaps the fulfillment keyboard for the confirm step.
func (n *Notifier) ShowCollectConfirm(ctx context.Context, messageID int, trackingNumber string) error {
	return n.channel.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupRequest{
		ChatID:      n.groupChat,
		MessageID:   messageID,
		ReplyMarkup: CollectConfirmKeyboard(trackingNumber),
	})
}

// RevertCollectKeyboard restores the initial collect control.
func (n *Notifier) RevertCollectKeyboard(ctx context.Context, messageID int, trackingNumber string) error {
	return n.channel.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupRequest{
		ChatID:      n.groupChat,
		MessageID:   messageID,
		ReplyMarkup: CollectKeyboard(trackingNumber),
	})
}

// MarkCollected rewrites the fulfillment message after a confirmed collect.
func (n *Notifier) MarkCollected(ctx context.Context, messageID int, trackingNumber string) error {
	return n.channel.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:    n.groupChat,
		MessageID: messageID,
		Text:      CollectedText(trackingNumber),
	})
}

// MarkCollectCancelled rewrites the fulfillment message after a cancelled
// collect and restores the initial control.
func (n *Notifier) MarkCollectCancelled(ctx context.Context, messageID int, trackingNumber string) error {
	return n.channel.EditMessageText(ctx, telegram.EditMessageTextRequest{
		ChatID:      n.groupChat,
		MessageID:   messageID,
		Text:        CollectCancelledText(trackingNumber),
		ReplyMarkup: CollectKeyboard(trackingNumber),
	})
}

// ClearApprovalCard drops the approve/reject keyboard from a processed card.
func (n *Notifier) ClearApprovalCard(ctx context.Context, messageID int) {
	err := n.channel.EditMessageReplyMarkup(ctx, telegram.EditMessageReplyMarkupRequest{
		ChatID:    n.managerChat,
		MessageID: messageID,
	})
	if err != nil {
		n.logg.Error(ctx, "clear approval keyboard", err)
	}
}

// DeleteBuyerMessage removes an earlier buyer-facing message. Best effort.
func (n *Notifier) DeleteBuyerMessage(ctx context.Context, chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if err := n.channel.DeleteMessage(ctx, chatID, messageID); err != nil {
		n.logg.Error(n.logg.WithChatID(ctx, chatID), "delete message", err)
	}
}

// AnswerCallback acknowledges a button press. Best effort.
func (n *Notifier) AnswerCallback(ctx context.Context, callbackID, text string) {
	if err := n.channel.AnswerCallbackQuery(ctx, callbackID, text); err != nil {
		n.logg.Error(ctx, "answer callback", err)
	}
}

// SendOrdersKeyboard posts the pending-order counter button into the
// manager chat.
func (n *Notifier) SendOrdersKeyboard(ctx context.Context, pendingCount int) error {
	_, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:      n.managerChat,
		Text:        "Список заказов обновлён.",
		ReplyMarkup: OrdersKeyboard(pendingCount),
	})
	return err
}

// SendBuyerText delivers a plain text to a buyer. Best effort.
func (n *Notifier) SendBuyerText(ctx context.Context, chatID int64, text string) {
	n.sendBestEffort(ctx, chatID, text)
}

// SendBuyerHTML delivers an HTML-formatted message to a buyer and returns
// the send error so broadcast callers can collect per-buyer failures.
func (n *Notifier) SendBuyerHTML(ctx context.Context, chatID int64, html string) error {
	_, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{
		ChatID:    chatID,
		Text:      html,
		ParseMode: parseModeHTML,
	})
	return err
}

func (n *Notifier) sendBestEffort(ctx context.Context, chatID int64, text string) {
	if _, err := n.channel.SendMessage(ctx, telegram.SendMessageRequest{ChatID: chatID, Text: text}); err != nil {
		n.logg.Error(n.logg.WithChatID(ctx, chatID), "send notification", err)
	}
}
