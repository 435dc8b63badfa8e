package notify

import (
	"fmt"
	"strings"

	"github.com/vorobeishop/storefront-backend/pkg/telegram"
)

// Callback data prefixes shared between the outgoing keyboards and the bot
// dispatcher that parses the button presses back.
const (
	CallbackApprovePrefix        = "Принять_"
	CallbackRejectPrefix         = "Удалить_"
	CallbackCheckPaymentPrefix   = "checkpayment_"
	CallbackCollectPrefix        = "collect_order:"
	CallbackConfirmCollectPrefix = "confirm_collect:"
	CallbackRejectCollectPrefix  = "reject_collect:"
	CallbackGoBackPrefix         = "go_back:"
)

var countryNames = map[string]string{
	"RU": "Россия",
	"KG": "Кыргызстан",
	"BY": "Беларусь",
	"AM": "Армения",
	"KZ": "Казахстан",
	"AZ": "Азербайджан",
	"UZ": "Узбекистан",
}

// CountryName resolves a country code into its buyer-facing name.
func CountryName(code string) string {
	if name, ok := countryNames[code]; ok {
		return name
	}
	return "Неизвестная страна"
}

// OrderCardLine is one product position rendered on a card.
type OrderCardLine struct {
	Qty  int
	Name string
}

// OrderCard is everything the manager-facing approval card renders.
type OrderCard struct {
	GroupID      string
	Username     string
	ChatID       int64
	Lines        []OrderCardLine
	FullName     string
	Country      string
	City         string
	Phone        string
	TotalPrice   int
	DeliveryCost int
	// DeliveryUnpaid marks orders where the buyer still owes the delivery
	// fee at handover.
	DeliveryUnpaid bool
}

func (c OrderCard) linesBlock() string {
	parts := make([]string, 0, len(c.Lines))
	for _, line := range c.Lines {
		if line.Qty <= 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d шт. | %s", line.Qty, line.Name))
	}
	return strings.Join(parts, "\n")
}

// CheckoutSummaryText confirms a placed order back into the buyer chat.
func CheckoutSummaryText(card OrderCard) string {
	var b strings.Builder
	b.WriteString("Ваш заказ оформлен:\n")
	b.WriteString(card.linesBlock())
	fmt.Fprintf(&b, "\n\nИтого: %d ₽", card.TotalPrice)
	return b.String()
}

// PaymentPromptText builds the buyer-facing manual-transfer instructions.
func PaymentPromptText(totalPrice int, requisites string) string {
	return fmt.Sprintf(
		"Ваш заказ на сумму %d ₽ оформлен.\n\nРеквизиты для оплаты:\n%s\n\n"+
			"После оплаты пришлите сюда скриншот чека. "+
			"Заказ будет автоматически отменён через 90 минут, если оплата не поступит.",
		totalPrice, requisites)
}

// PaymentPromptLinkText accompanies the gateway pay-page keyboard.
func PaymentPromptLinkText(totalPrice int) string {
	return fmt.Sprintf(
		"Ваш заказ на сумму %d ₽ оформлен.\n\n"+
			"Оплатите по кнопке ниже, затем нажмите «Проверить оплату».",
		totalPrice)
}

// ApprovalCardText builds the manager approval card caption.
func ApprovalCardText(card OrderCard) string {
	var b strings.Builder
	if card.Username != "" {
		fmt.Fprintf(&b, "<a href='https://t.me/%s'>Пользователь</a> сделал заказ:\n", card.Username)
	} else {
		b.WriteString("Пользователь сделал заказ:\n")
	}
	b.WriteString(card.linesBlock())
	fmt.Fprintf(&b, "\nTelegram ID: %d\n\nФИО: %s\nСтрана: %s\nГород: %s\n",
		card.ChatID, card.FullName, CountryName(card.Country), card.City)
	if card.DeliveryUnpaid {
		b.WriteString("<b>УЧТИТЕ, ЧТО КЛИЕНТ ТАКЖЕ ДОЛЖЕН ОПЛАТИТЬ ДОСТАВКУ</b>\n")
	}
	fmt.Fprintf(&b, "\nНомер: %s\nПрайс: %d\nДоставка: %d ₽",
		strings.NewReplacer(" ", "", "(", "", ")", "", "-", "").Replace(card.Phone),
		card.TotalPrice, card.DeliveryCost)
	return b.String()
}

// ApprovalKeyboard builds the approve/reject control for an approval card.
func ApprovalKeyboard(groupID string) telegram.InlineKeyboardMarkup {
	return telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "✅ Принять", CallbackData: CallbackApprovePrefix + groupID},
			{Text: "❌ Удалить", CallbackData: CallbackRejectPrefix + groupID},
		}},
	}
}

// CheckPaymentKeyboard builds the buyer-side gateway payment control.
func CheckPaymentKeyboard(paymentID, paymentURL string) telegram.InlineKeyboardMarkup {
	return telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{{Text: "💳 Оплатить", URL: paymentURL}},
			{{Text: "🔄 Проверить оплату", CallbackData: CallbackCheckPaymentPrefix + paymentID}},
		},
	}
}

// TrackingText builds the buyer message sent once the shipment is registered.
func TrackingText(trackingNumber, supportHandle string) string {
	return fmt.Sprintf(
		"📝Ваш заказ оформлен!\nВот трек-номер: %s\n"+
			"(если нет трек-номера, то обратитесь к консультанту %s)\n\n"+
			"🕰️ Отправка посылки в течении 3х дней после оплаты "+
			"(Не считая воскресенье и праздничные дни. Отправок в эти дни нет, но магазин работает без выходных).",
		trackingNumber, supportHandle)
}

// ScreenshotAcceptedText thanks the buyer after a receipt upload.
func ScreenshotAcceptedText() string {
	return "Спасибо! Скриншот оплаты получен, заказ передан менеджеру на проверку."
}

// AutoCancelText is sent when the payment window expires.
func AutoCancelText() string {
	return "Ваш заказ был автоматически отменён: оплата не поступила в отведённое время. " +
		"Вы можете оформить заказ заново."
}

// RequisitesChangedText is sent when live orders are purged after the shop
// requisites rotate.
func RequisitesChangedText() string {
	return "Ваш заказ был отменен, так как реквизиты были изменены."
}

// RejectedText is sent when the manager declines an order.
func RejectedText() string {
	return "Ваш заказ был отклонён. Если вы считаете это ошибкой, свяжитесь с поддержкой."
}

// FulfillmentCardText builds the warehouse-group message for a shipped order.
func FulfillmentCardText(card OrderCard, trackingNumber, barcodeURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Заказ принят.\nTelegram ID: %d\n\nТрек-номер: %s.\n", card.ChatID, trackingNumber)
	if barcodeURL != "" {
		fmt.Fprintf(&b, "<a href=\"%s\">Ссылка</a>\n", barcodeURL)
	}
	b.WriteString("\nПеречень заказа:\n")
	b.WriteString(card.linesBlock())
	return b.String()
}

// CollectKeyboard is the initial single-button fulfillment control.
func CollectKeyboard(trackingNumber string) telegram.InlineKeyboardMarkup {
	return telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{{
			{Text: "📦 Собрать заказ", CallbackData: CallbackCollectPrefix + trackingNumber},
		}},
	}
}

// CollectConfirmKeyboard is the two-step confirm/cancel control shown after
// the collect button is pressed.
func CollectConfirmKeyboard(trackingNumber string) telegram.InlineKeyboardMarkup {
	return telegram.InlineKeyboardMarkup{
		InlineKeyboard: [][]telegram.InlineKeyboardButton{
			{
				{Text: "✅ Подтвердить", CallbackData: CallbackConfirmCollectPrefix + trackingNumber},
				{Text: "❌ Отменить сбор", CallbackData: CallbackRejectCollectPrefix + trackingNumber},
			},
			{
				{Text: "↩️ Назад", CallbackData: CallbackGoBackPrefix + trackingNumber},
			},
		},
	}
}

// CollectedText confirms the collection inside the fulfillment group.
func CollectedText(trackingNumber string) string {
	return fmt.Sprintf("Заказ с номером %s был успешно собран!", trackingNumber)
}

// BuyerCollectedText tells the buyer the parcel is on its way to the carrier.
func BuyerCollectedText(trackingNumber string) string {
	return "Ваш заказ успешно собран и в ближайшее время будет передан в доставку!\n" +
		fmt.Sprintf("Следующие изменения статуса отслеживайте через сайт "+
			"<a href=\"https://www.cdek.ru/ru/tracking/\">СДЭК</a> по вашему трек номеру: %s", trackingNumber)
}

// CollectCancelledText reverts the group message after a cancelled collection.
func CollectCancelledText(trackingNumber string) string {
	return fmt.Sprintf("Сбор заказа с номером %s был отменён.", trackingNumber)
}

// BuyerCollectCancelledText tells the buyer the handover was called off.
func BuyerCollectCancelledText(trackingNumber string) string {
	return fmt.Sprintf("Сбор вашего заказа с трек-номером %s был отменён. "+
		"Менеджер свяжется с вами для уточнения деталей.", trackingNumber)
}

// OrdersKeyboardLabel is the reply-keyboard button caption carrying the
// pending-order counter. The dispatcher matches incoming text against the
// same prefix to detect the press.
func OrdersKeyboardLabel(count int) string {
	return fmt.Sprintf("Непринятые заказы (%d)", count)
}

// OrdersKeyboardLabelPrefix matches the counter button regardless of the
// count it was rendered with.
const OrdersKeyboardLabelPrefix = "Непринятые заказы"

// OrdersKeyboard builds the manager reply keyboard for the /orders command.
func OrdersKeyboard(count int) telegram.ReplyKeyboardMarkup {
	return telegram.ReplyKeyboardMarkup{
		Keyboard:       [][]telegram.KeyboardButton{{{Text: OrdersKeyboardLabel(count)}}},
		ResizeKeyboard: true,
	}
}
