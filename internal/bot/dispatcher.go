package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vorobeishop/storefront-backend/internal/notify"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/telegram"
)

const (
	pollTimeout    = 30 * time.Second
	pollRetryDelay = 3 * time.Second
)

// updateSource is the long-polling slice of the chat client.
type updateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error)
}

// dispatcherNotifier covers the replies the dispatcher sends on its own,
// outside the order service's notification fan-out.
type dispatcherNotifier interface {
	AnswerCallback(ctx context.Context, callbackID, text string)
	SendBuyerText(ctx context.Context, chatID int64, text string)
	SendOrdersKeyboard(ctx context.Context, pendingCount int) error
}

// Dispatcher drains bot updates and routes each one onto the order
// service: receipt photos through the screenshot wait registry, keyboard
// presses by their callback prefix and the manager's /orders listing.
type Dispatcher struct {
	source      updateSource
	orders      orders.Service
	notifier    dispatcherNotifier
	waits       *notify.ScreenshotWaits
	managerChat int64
	logg        *logger.Logger

	offset int64
}

// DispatcherDeps wires the dispatcher's collaborators.
type DispatcherDeps struct {
	Source      updateSource
	Orders      orders.Service
	Notifier    dispatcherNotifier
	Waits       *notify.ScreenshotWaits
	ManagerChat int64
	Logger      *logger.Logger
}

// NewDispatcher builds the update dispatcher.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		source:      deps.Source,
		orders:      deps.Orders,
		notifier:    deps.Notifier,
		waits:       deps.Waits,
		managerChat: deps.ManagerChat,
		logg:        deps.Logger,
	}
}

// Run long-polls for updates until the context is canceled. Poll failures
// are logged and retried after a short pause; a single bad update never
// stops the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logg.Info(ctx, "bot dispatcher started")
	for {
		updates, err := d.source.GetUpdates(ctx, d.offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				d.logg.Info(ctx, "bot dispatcher context canceled")
				return ctx.Err()
			}
			d.logg.Error(ctx, "poll updates", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollRetryDelay):
			}
			continue
		}
		for _, update := range updates {
			d.offset = update.UpdateID + 1
			d.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate routes one update. A panic anywhere below is contained here:
// the loop keeps draining and the pressed button still gets an answer.
func (d *Dispatcher) handleUpdate(ctx context.Context, update telegram.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			panicCtx := d.logg.WithFields(ctx, map[string]any{"panic": rec})
			d.logg.Error(panicCtx, "panic.recovered", fmt.Errorf("panic: %v", rec))
			if update.CallbackQuery != nil {
				d.notifier.AnswerCallback(ctx, update.CallbackQuery.ID, "Произошла ошибка. Попробуйте позже.")
			}
		}
	}()
	switch {
	case update.CallbackQuery != nil:
		d.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		d.handleMessage(ctx, update.Message)
	}
}

func (d *Dispatcher) handleMessage(ctx context.Context, msg *telegram.Message) {
	chatID := msg.Chat.ID
	ctx = d.logg.WithChatID(ctx, chatID)

	if len(msg.Photo) > 0 {
		d.handlePhoto(ctx, chatID, msg.Photo)
		return
	}

	if chatID == d.managerChat {
		switch {
		case msg.Text == "/orders":
			d.sendOrdersKeyboard(ctx)
			return
		case strings.HasPrefix(msg.Text, notify.OrdersKeyboardLabelPrefix):
			d.resendPendingCards(ctx)
			return
		}
	}

	if d.waits.Waiting(chatID) && msg.Text != "" {
		d.notifier.SendBuyerText(ctx, chatID, "Пожалуйста, пришлите скриншот оплаты одним фото в этот чат.")
	}
}

// handlePhoto resolves the buyer's pending wait into an order group. When
// the service rejects the screenshot the wait is re-armed so the buyer can
// retry with the same order.
func (d *Dispatcher) handlePhoto(ctx context.Context, chatID int64, photos []telegram.PhotoSize) {
	groupID, ok := d.waits.Consume(chatID)
	if !ok {
		d.logg.Info(ctx, "photo without pending order ignored")
		return
	}
	fileID := photos[len(photos)-1].FileID
	if err := d.orders.OnScreenshot(ctx, groupID, fileID); err != nil {
		d.waits.Expect(chatID, groupID)
		d.logg.Error(d.logg.WithOrderGroup(ctx, groupID), "process screenshot", err)
		d.notifier.SendBuyerText(ctx, chatID, "Не удалось обработать скриншот. Попробуйте отправить его ещё раз.")
	}
}

func (d *Dispatcher) sendOrdersKeyboard(ctx context.Context) {
	summaries, err := d.orders.ListGroupSummaries(ctx, enums.OrderStatusPending)
	if err != nil {
		d.logg.Error(ctx, "list pending orders", err)
		d.notifier.SendBuyerText(ctx, d.managerChat, "Не удалось получить список заказов.")
		return
	}
	if err := d.notifier.SendOrdersKeyboard(ctx, len(summaries)); err != nil {
		d.logg.Error(ctx, "send orders keyboard", err)
	}
}

func (d *Dispatcher) resendPendingCards(ctx context.Context) {
	sent, err := d.orders.ResendApprovalCards(ctx)
	if err != nil {
		d.logg.Error(ctx, "resend approval cards", err)
		d.notifier.SendBuyerText(ctx, d.managerChat, "Не удалось получить список заказов.")
		return
	}
	if sent == 0 {
		d.notifier.SendBuyerText(ctx, d.managerChat, "Непринятых заказов нет.")
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, notify.CallbackApprovePrefix):
		d.answerApprove(ctx, cb.ID, strings.TrimPrefix(data, notify.CallbackApprovePrefix))
	case strings.HasPrefix(data, notify.CallbackRejectPrefix):
		d.answer(ctx, cb.ID, "Заказ удалён.",
			d.orders.RejectOrder(ctx, strings.TrimPrefix(data, notify.CallbackRejectPrefix)))
	case strings.HasPrefix(data, notify.CallbackCheckPaymentPrefix):
		d.answerCheckPayment(ctx, cb.ID, strings.TrimPrefix(data, notify.CallbackCheckPaymentPrefix))
	case strings.HasPrefix(data, notify.CallbackCollectPrefix):
		d.answer(ctx, cb.ID, "",
			d.orders.CollectPrompt(ctx, strings.TrimPrefix(data, notify.CallbackCollectPrefix)))
	case strings.HasPrefix(data, notify.CallbackConfirmCollectPrefix):
		d.answer(ctx, cb.ID, "Заказ собран.",
			d.orders.ConfirmCollect(ctx, strings.TrimPrefix(data, notify.CallbackConfirmCollectPrefix)))
	case strings.HasPrefix(data, notify.CallbackRejectCollectPrefix):
		d.answer(ctx, cb.ID, "Сбор отменён.",
			d.orders.CancelCollect(ctx, strings.TrimPrefix(data, notify.CallbackRejectCollectPrefix)))
	case strings.HasPrefix(data, notify.CallbackGoBackPrefix):
		d.answer(ctx, cb.ID, "",
			d.orders.CollectGoBack(ctx, strings.TrimPrefix(data, notify.CallbackGoBackPrefix)))
	default:
		d.logg.Info(ctx, "unknown callback ignored")
		d.notifier.AnswerCallback(ctx, cb.ID, "")
	}
}

func (d *Dispatcher) answerApprove(ctx context.Context, callbackID, groupID string) {
	ctx = d.logg.WithOrderGroup(ctx, groupID)
	result, err := d.orders.ApproveOrder(ctx, groupID)
	if err != nil {
		d.logg.Error(ctx, "approve order", err)
		d.notifier.AnswerCallback(ctx, callbackID, callbackErrorText(err))
		return
	}
	if result.AlreadyAccepted {
		d.notifier.AnswerCallback(ctx, callbackID, "Заказ уже принят.")
		return
	}
	d.notifier.AnswerCallback(ctx, callbackID, "Заказ принят. Трек: "+result.TrackingNumber)
}

func (d *Dispatcher) answerCheckPayment(ctx context.Context, callbackID, paymentID string) {
	result, err := d.orders.CheckPayment(ctx, paymentID)
	if err != nil {
		d.logg.Error(ctx, "check payment", err)
		d.notifier.AnswerCallback(ctx, callbackID, callbackErrorText(err))
		return
	}
	d.notifier.AnswerCallback(ctx, callbackID, result.Reply)
}

// answer acknowledges a simple callback: okText on success, a code-mapped
// error text otherwise.
func (d *Dispatcher) answer(ctx context.Context, callbackID, okText string, err error) {
	if err != nil {
		d.logg.Error(ctx, "handle callback", err)
		d.notifier.AnswerCallback(ctx, callbackID, callbackErrorText(err))
		return
	}
	d.notifier.AnswerCallback(ctx, callbackID, okText)
}

func callbackErrorText(err error) string {
	if appErr := pkgerrors.As(err); appErr != nil {
		switch appErr.Code() {
		case pkgerrors.CodeStateConflict:
			return "Заказ уже обрабатывается."
		case pkgerrors.CodeNotFound:
			return "Заказ не найден."
		case pkgerrors.CodeDependency:
			return "Сервис доставки недоступен, попробуйте позже."
		}
	}
	return "Произошла ошибка. Попробуйте позже."
}
