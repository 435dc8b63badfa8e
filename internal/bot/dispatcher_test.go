package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorobeishop/storefront-backend/internal/notify"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/telegram"
)

const testManagerChat int64 = 900

type stubSource struct {
	mu      sync.Mutex
	batches [][]telegram.Update
	calls   int
	cancel  context.CancelFunc
}

func (s *stubSource) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]telegram.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls < len(s.batches) {
		batch := s.batches[s.calls]
		s.calls++
		return batch, nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	return nil, ctx.Err()
}

type screenshotCall struct {
	groupID string
	fileID  string
}

type stubOrderService struct {
	mu sync.Mutex

	approved      []string
	approveResult *orders.ApproveResult
	approveErr    error
	approvePanic  bool

	rejected  []string
	rejectErr error

	checked     []string
	checkResult *orders.CheckPaymentResult
	checkErr    error

	screenshots   []screenshotCall
	screenshotErr error

	collectPrompts []string
	confirms       []string
	collectCancels []string
	goBacks        []string

	summaries []orders.GroupSummary

	resendCalls int
	resendCount int
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, input orders.PlaceOrderInput) (*orders.PlaceOrderResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (s *stubOrderService) OnScreenshot(ctx context.Context, groupID, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.screenshots = append(s.screenshots, screenshotCall{groupID: groupID, fileID: fileID})
	return s.screenshotErr
}

func (s *stubOrderService) CheckPayment(ctx context.Context, paymentID string) (*orders.CheckPaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checked = append(s.checked, paymentID)
	if s.checkErr != nil {
		return nil, s.checkErr
	}
	if s.checkResult != nil {
		return s.checkResult, nil
	}
	return &orders.CheckPaymentResult{Reply: "Оплата не найдена."}, nil
}

func (s *stubOrderService) ApproveOrder(ctx context.Context, groupID string) (*orders.ApproveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approved = append(s.approved, groupID)
	if s.approvePanic {
		panic("approve exploded")
	}
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	if s.approveResult != nil {
		return s.approveResult, nil
	}
	return &orders.ApproveResult{TrackingNumber: "TRACK-9"}, nil
}

func (s *stubOrderService) RejectOrder(ctx context.Context, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, groupID)
	return s.rejectErr
}

func (s *stubOrderService) CancelExpired(ctx context.Context, groupID string) error { return nil }

func (s *stubOrderService) CancelWaitPayOrders(ctx context.Context, reason orders.CancelReason) (int, error) {
	return 0, nil
}

func (s *stubOrderService) ReapExpiredWaitPay(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (s *stubOrderService) StartupSweep(ctx context.Context) (int, error) { return 0, nil }

func (s *stubOrderService) ListGroupSummaries(ctx context.Context, status enums.OrderStatus) ([]orders.GroupSummary, error) {
	return s.summaries, nil
}

func (s *stubOrderService) ResendApprovalCards(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resendCalls++
	return s.resendCount, nil
}

func (s *stubOrderService) CollectPrompt(ctx context.Context, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectPrompts = append(s.collectPrompts, trackingNumber)
	return nil
}

func (s *stubOrderService) ConfirmCollect(ctx context.Context, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms = append(s.confirms, trackingNumber)
	return nil
}

func (s *stubOrderService) CancelCollect(ctx context.Context, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectCancels = append(s.collectCancels, trackingNumber)
	return nil
}

func (s *stubOrderService) RefreshFulfillmentCard(ctx context.Context, trackingNumber string) error {
	return nil
}

func (s *stubOrderService) CollectGoBack(ctx context.Context, trackingNumber string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goBacks = append(s.goBacks, trackingNumber)
	return nil
}

type buyerText struct {
	chatID int64
	text   string
}

type stubBotNotifier struct {
	mu             sync.Mutex
	answers        []string
	buyerTexts     []buyerText
	keyboardCounts []int
}

func (n *stubBotNotifier) AnswerCallback(ctx context.Context, callbackID, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.answers = append(n.answers, text)
}

func (n *stubBotNotifier) SendBuyerText(ctx context.Context, chatID int64, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.buyerTexts = append(n.buyerTexts, buyerText{chatID: chatID, text: text})
}

func (n *stubBotNotifier) SendOrdersKeyboard(ctx context.Context, pendingCount int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.keyboardCounts = append(n.keyboardCounts, pendingCount)
	return nil
}

type botFixture struct {
	dispatcher *Dispatcher
	source     *stubSource
	orders     *stubOrderService
	notifier   *stubBotNotifier
	waits      *notify.ScreenshotWaits
}

func newBotFixture() *botFixture {
	source := &stubSource{}
	svc := &stubOrderService{}
	notifier := &stubBotNotifier{}
	waits := notify.NewScreenshotWaits()
	dispatcher := NewDispatcher(DispatcherDeps{
		Source:      source,
		Orders:      svc,
		Notifier:    notifier,
		Waits:       waits,
		ManagerChat: testManagerChat,
		Logger:      logger.New(logger.Options{ServiceName: "test"}),
	})
	return &botFixture{dispatcher: dispatcher, source: source, orders: svc, notifier: notifier, waits: waits}
}

func callbackUpdate(id int64, data string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		CallbackQuery: &telegram.CallbackQuery{
			ID:   "cb-1",
			Data: data,
			Message: &telegram.Message{
				MessageID: 10,
				Chat:      telegram.Chat{ID: testManagerChat},
			},
		},
	}
}

func textUpdate(id, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: 11,
			Chat:      telegram.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func photoUpdate(id, chatID int64, fileIDs ...string) telegram.Update {
	photos := make([]telegram.PhotoSize, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		photos = append(photos, telegram.PhotoSize{FileID: fileID})
	}
	return telegram.Update{
		UpdateID: id,
		Message: &telegram.Message{
			MessageID: 12,
			Chat:      telegram.Chat{ID: chatID},
			Photo:     photos,
		},
	}
}

func TestRunRoutesBatchAndAdvancesOffset(t *testing.T) {
	f := newBotFixture()
	ctx, cancel := context.WithCancel(context.Background())
	f.source.cancel = cancel
	f.source.batches = [][]telegram.Update{{
		callbackUpdate(41, notify.CallbackApprovePrefix+"G1"),
		callbackUpdate(42, notify.CallbackRejectPrefix+"G2"),
	}}

	err := f.dispatcher.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"G1"}, f.orders.approved)
	assert.Equal(t, []string{"G2"}, f.orders.rejected)
	assert.Equal(t, int64(43), f.dispatcher.offset)
}

func TestApproveCallbackAnswersWithTracking(t *testing.T) {
	f := newBotFixture()

	f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, notify.CallbackApprovePrefix+"G1"))

	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "Заказ принят. Трек: TRACK-9", f.notifier.answers[0])
}

func TestCallbackPanicIsContainedAndAnswered(t *testing.T) {
	f := newBotFixture()
	f.orders.approvePanic = true

	require.NotPanics(t, func() {
		f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, notify.CallbackApprovePrefix+"G1"))
	})

	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "Произошла ошибка. Попробуйте позже.", f.notifier.answers[0])
}

func TestApproveCallbackAlreadyAccepted(t *testing.T) {
	f := newBotFixture()
	f.orders.approveResult = &orders.ApproveResult{AlreadyAccepted: true}

	f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, notify.CallbackApprovePrefix+"G1"))

	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "Заказ уже принят.", f.notifier.answers[0])
}

func TestApproveCallbackClaimRaceAnswer(t *testing.T) {
	f := newBotFixture()
	f.orders.approveErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order is already being processed")

	f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, notify.CallbackApprovePrefix+"G1"))

	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "Заказ уже обрабатывается.", f.notifier.answers[0])
}

func TestCheckPaymentCallbackAnswersServiceReply(t *testing.T) {
	f := newBotFixture()
	f.orders.checkResult = &orders.CheckPaymentResult{Reply: "Оплата подтверждена!", Finalized: true}

	f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, notify.CallbackCheckPaymentPrefix+"pay-77"))

	assert.Equal(t, []string{"pay-77"}, f.orders.checked)
	require.Len(t, f.notifier.answers, 1)
	assert.Equal(t, "Оплата подтверждена!", f.notifier.answers[0])
}

func TestCollectCallbacksRouteByPrefix(t *testing.T) {
	f := newBotFixture()
	ctx := context.Background()

	f.dispatcher.handleUpdate(ctx, callbackUpdate(1, notify.CallbackCollectPrefix+"TRACK-1"))
	f.dispatcher.handleUpdate(ctx, callbackUpdate(2, notify.CallbackConfirmCollectPrefix+"TRACK-1"))
	f.dispatcher.handleUpdate(ctx, callbackUpdate(3, notify.CallbackRejectCollectPrefix+"TRACK-1"))
	f.dispatcher.handleUpdate(ctx, callbackUpdate(4, notify.CallbackGoBackPrefix+"TRACK-1"))

	assert.Equal(t, []string{"TRACK-1"}, f.orders.collectPrompts)
	assert.Equal(t, []string{"TRACK-1"}, f.orders.confirms)
	assert.Equal(t, []string{"TRACK-1"}, f.orders.collectCancels)
	assert.Equal(t, []string{"TRACK-1"}, f.orders.goBacks)
	assert.Len(t, f.notifier.answers, 4)
}

func TestUnknownCallbackStillAnswered(t *testing.T) {
	f := newBotFixture()

	f.dispatcher.handleUpdate(context.Background(), callbackUpdate(1, "something_else"))

	require.Len(t, f.notifier.answers, 1)
	assert.Empty(t, f.notifier.answers[0])
}

func TestPhotoConsumesWaitAndPicksLargestRendition(t *testing.T) {
	f := newBotFixture()
	f.waits.Expect(55, "G1")

	f.dispatcher.handleUpdate(context.Background(), photoUpdate(1, 55, "small", "big"))

	require.Len(t, f.orders.screenshots, 1)
	assert.Equal(t, screenshotCall{groupID: "G1", fileID: "big"}, f.orders.screenshots[0])
	assert.False(t, f.waits.Waiting(55))
}

func TestPhotoFailureRearmsWait(t *testing.T) {
	f := newBotFixture()
	f.waits.Expect(55, "G1")
	f.orders.screenshotErr = pkgerrors.New(pkgerrors.CodeInternal, "boom")

	f.dispatcher.handleUpdate(context.Background(), photoUpdate(1, 55, "big"))

	assert.True(t, f.waits.Waiting(55))
	require.Len(t, f.notifier.buyerTexts, 1)
	assert.Equal(t, int64(55), f.notifier.buyerTexts[0].chatID)
}

func TestPhotoWithoutWaitIgnored(t *testing.T) {
	f := newBotFixture()

	f.dispatcher.handleUpdate(context.Background(), photoUpdate(1, 55, "big"))

	assert.Empty(t, f.orders.screenshots)
	assert.Empty(t, f.notifier.buyerTexts)
}

func TestTextWhileWaitingPromptsForPhoto(t *testing.T) {
	f := newBotFixture()
	f.waits.Expect(55, "G1")

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, 55, "оплатил"))

	require.Len(t, f.notifier.buyerTexts, 1)
	assert.Equal(t, int64(55), f.notifier.buyerTexts[0].chatID)
	assert.True(t, f.waits.Waiting(55))
}

func TestTextWithoutWaitIsSilent(t *testing.T) {
	f := newBotFixture()

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, 55, "привет"))

	assert.Empty(t, f.notifier.buyerTexts)
}

func TestOrdersCommandSendsCounterKeyboard(t *testing.T) {
	f := newBotFixture()
	f.orders.summaries = []orders.GroupSummary{
		{GroupID: "G1", Status: enums.OrderStatusPending},
		{GroupID: "G2", Status: enums.OrderStatusPending},
	}

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, testManagerChat, "/orders"))

	assert.Equal(t, []int{2}, f.notifier.keyboardCounts)
}

func TestOrdersCommandIgnoredOutsideManagerChat(t *testing.T) {
	f := newBotFixture()

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, 55, "/orders"))

	assert.Empty(t, f.notifier.keyboardCounts)
}

func TestOrdersButtonResendsPendingCards(t *testing.T) {
	f := newBotFixture()
	f.orders.resendCount = 3

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, testManagerChat, notify.OrdersKeyboardLabel(3)))

	assert.Equal(t, 1, f.orders.resendCalls)
	assert.Empty(t, f.notifier.buyerTexts)
}

func TestOrdersButtonReportsEmptyQueue(t *testing.T) {
	f := newBotFixture()
	f.orders.resendCount = 0

	f.dispatcher.handleUpdate(context.Background(), textUpdate(1, testManagerChat, notify.OrdersKeyboardLabel(0)))

	assert.Equal(t, 1, f.orders.resendCalls)
	require.Len(t, f.notifier.buyerTexts, 1)
	assert.Equal(t, testManagerChat, f.notifier.buyerTexts[0].chatID)
	assert.Equal(t, "Непринятых заказов нет.", f.notifier.buyerTexts[0].text)
}
