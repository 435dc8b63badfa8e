package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/internal/carrier"
	"github.com/vorobeishop/storefront-backend/internal/inventory"
	"github.com/vorobeishop/storefront-backend/internal/notify"
	"github.com/vorobeishop/storefront-backend/internal/payments"
	"github.com/vorobeishop/storefront-backend/internal/timeout"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentService interface {
	CreateIntent(ctx context.Context, groupID string, buyerID uuid.UUID, amountRubles int, description string) (*models.PaymentIntent, string, error)
	CheckPayment(ctx context.Context, paymentID string) (*payments.CheckResult, error)
}

type carrierGateways interface {
	ForCarrier(c enums.Carrier) (carrier.Gateway, error)
}

// coordinatorNotifier is the slice of the notifier the coordinator sends
// through. All sends are side effects; failures never abort a transition.
type coordinatorNotifier interface {
	PromptPayment(ctx context.Context, chatID int64, totalPrice int, requisites string) (int, error)
	AnswerCheckoutSummary(ctx context.Context, queryID string, card notify.OrderCard) error
	SendPaymentLink(ctx context.Context, chatID int64, totalPrice int, paymentID, paymentURL string) error
	SendApprovalCard(ctx context.Context, card notify.OrderCard, receiptFileID string) (int, error)
	SendFulfillmentCard(ctx context.Context, card notify.OrderCard, trackingNumber, barcodeURL string) (int, error)
	EditFulfillmentCard(ctx context.Context, messageID int, card notify.OrderCard, trackingNumber, barcodeURL string) error
	NotifyManager(ctx context.Context, text string)
	NotifyBuyerTracking(ctx context.Context, chatID int64, trackingNumber, supportHandle string)
	NotifyBuyerAutoCancelled(ctx context.Context, chatID int64)
	NotifyBuyerRequisitesChanged(ctx context.Context, chatID int64)
	NotifyBuyerRejected(ctx context.Context, chatID int64)
	NotifyBuyerCollected(ctx context.Context, chatID int64, trackingNumber string)
	NotifyBuyerCollectCancelled(ctx context.Context, chatID int64, trackingNumber string)
	ThankForScreenshot(ctx context.Context, chatID int64)
	ShowCollectConfirm(ctx context.Context, messageID int, trackingNumber string) error
	RevertCollectKeyboard(ctx context.Context, messageID int, trackingNumber string) error
	MarkCollected(ctx context.Context, messageID int, trackingNumber string) error
	MarkCollectCancelled(ctx context.Context, messageID int, trackingNumber string) error
	ClearApprovalCard(ctx context.Context, messageID int)
	DeleteBuyerMessage(ctx context.Context, chatID int64, messageID int)
}

// Service is the order lifecycle coordinator. It owns every transition of
// the WAITPAY → PROCESSING → PENDING → SUCCESS machine and the terminal
// cancellation/rejection paths.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	OnScreenshot(ctx context.Context, groupID, fileID string) error
	CheckPayment(ctx context.Context, paymentID string) (*CheckPaymentResult, error)
	ApproveOrder(ctx context.Context, groupID string) (*ApproveResult, error)
	RejectOrder(ctx context.Context, groupID string) error
	CancelExpired(ctx context.Context, groupID string) error
	CancelWaitPayOrders(ctx context.Context, reason CancelReason) (int, error)
	ReapExpiredWaitPay(ctx context.Context, olderThan time.Duration) (int, error)
	StartupSweep(ctx context.Context) (int, error)
	ListGroupSummaries(ctx context.Context, status enums.OrderStatus) ([]GroupSummary, error)
	ResendApprovalCards(ctx context.Context) (int, error)
	CollectPrompt(ctx context.Context, trackingNumber string) error
	ConfirmCollect(ctx context.Context, trackingNumber string) error
	CancelCollect(ctx context.Context, trackingNumber string) error
	CollectGoBack(ctx context.Context, trackingNumber string) error
	RefreshFulfillmentCard(ctx context.Context, trackingNumber string) error
}

// ServiceDeps wires the coordinator's collaborators.
type ServiceDeps struct {
	Repo      Repository
	Inventory inventory.Repository
	Payments  paymentService
	Carriers  carrierGateways
	Notifier  coordinatorNotifier
	Timeouts  *timeout.Registry
	Waits     *notify.ScreenshotWaits
	Tx        txRunner
	Logger    *logger.Logger
	Order     config.OrderConfig
	Shop      config.ShopConfig
}

type service struct {
	repo      Repository
	inventory inventory.Repository
	payments  paymentService
	carriers  carrierGateways
	notifier  coordinatorNotifier
	timeouts  *timeout.Registry
	waits     *notify.ScreenshotWaits
	tx        txRunner
	logg      *logger.Logger
	orderCfg  config.OrderConfig
	shopCfg   config.ShopConfig
}

// NewService builds the coordinator.
func NewService(deps ServiceDeps) Service {
	return &service{
		repo:      deps.Repo,
		inventory: deps.Inventory,
		payments:  deps.Payments,
		carriers:  deps.Carriers,
		notifier:  deps.Notifier,
		timeouts:  deps.Timeouts,
		waits:     deps.Waits,
		tx:        deps.Tx,
		logg:      deps.Logger,
		orderCfg:  deps.Order,
		shopCfg:   deps.Shop,
	}
}

// PlaceOrder creates an order group in WAITPAY, reserving inventory up
// front and arming the payment-window timer. A buyer may hold one live
// order at a time: an existing one is purged and the new request rejected,
// so the retried checkout starts clean.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	if !input.Carrier.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown carrier")
	}

	buyer, err := s.repo.FindOrCreateBuyer(ctx, input.ChatID, input.Username)
	if err != nil {
		return nil, err
	}

	live, err := s.repo.FindLiveByBuyer(ctx, buyer.ID)
	if err != nil {
		return nil, err
	}
	if len(live) > 0 {
		for _, groupID := range distinctGroups(live) {
			if err := s.cancelGroup(ctx, groupID, CancelReasonReplaced); err != nil {
				s.logg.Error(s.logg.WithOrderGroup(ctx, groupID), "purge replaced order", err)
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			"previous unpaid order was cancelled, repeat the checkout")
	}

	groupID := uuid.NewString()
	ctx = s.logg.WithOrderGroup(ctx, groupID)
	total := input.TotalPrice()

	lines := make([]models.OrderLine, 0, len(input.Items))
	for _, item := range input.Items {
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation,
				fmt.Sprintf("item %s has non-positive quantity", item.Name))
		}
		lines = append(lines, models.OrderLine{
			ID:              uuid.New(),
			GroupID:         groupID,
			BuyerID:         buyer.ID,
			ProductID:       item.ProductID,
			ProductName:     item.Name,
			Qty:             item.Qty,
			UnitPrice:       item.UnitPrice,
			LineTotal:       item.Qty * item.UnitPrice,
			Surname:         input.Surname,
			FirstName:       input.FirstName,
			MiddleName:      optional(input.MiddleName),
			Phone:           input.Phone,
			Country:         input.Country,
			City:            optional(input.City),
			Address:         optional(input.Address),
			PickupPointCode: optional(input.PickupPointCode),
			PostalIndex:     optional(input.PostalIndex),
			Region:          optional(input.Region),
			TariffCode:      input.TariffCode,
			DeliveryCost:    input.DeliveryCost,
			CodAllowed:      input.CodAllowed,
			Carrier:         input.Carrier,
			Status:          enums.OrderStatusWaitPay,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		inv := s.inventory.WithTx(tx)
		for _, item := range input.Items {
			if err := inv.Reserve(ctx, item.ProductID, item.Qty); err != nil {
				return err
			}
		}
		return s.repo.WithTx(tx).CreateLines(ctx, lines)
	})
	if err != nil {
		return nil, err
	}

	s.timeouts.Arm(groupID, s.paymentWindow(input.Carrier), func() {
		expireCtx := s.logg.WithOrderGroup(context.Background(), groupID)
		if err := s.CancelExpired(expireCtx, groupID); err != nil {
			s.logg.Error(expireCtx, "cancel expired order", err)
		}
	})
	s.logg.Info(ctx, "order group created")

	if input.QueryID != "" {
		if err := s.notifier.AnswerCheckoutSummary(ctx, input.QueryID, s.buildCard(groupID, lines, buyer)); err != nil {
			s.logg.Error(ctx, "answer checkout query", err)
		}
	}

	result := &PlaceOrderResult{GroupID: groupID, TotalPrice: total}
	switch input.Flow {
	case FlowGateway:
		intent, payURL, err := s.payments.CreateIntent(ctx, groupID, buyer.ID, total,
			fmt.Sprintf("Заказ %s", groupID))
		if err != nil {
			return nil, err
		}
		if err := s.notifier.SendPaymentLink(ctx, input.ChatID, total, intent.PaymentID, payURL); err != nil {
			s.logg.Error(ctx, "send payment link", err)
		}
		result.PaymentURL = payURL
	default:
		promptID, err := s.notifier.PromptPayment(ctx, input.ChatID, total, s.shopCfg.Requisites)
		if err != nil {
			s.logg.Error(ctx, "send payment prompt", err)
		}
		if promptID != 0 {
			record := &models.ManagerMessage{GroupID: groupID, BuyerPromptMessageID: &promptID}
			if err := s.repo.SaveManagerMessage(ctx, record); err != nil {
				s.logg.Error(ctx, "save prompt message id", err)
			}
		}
		s.waits.Expect(input.ChatID, groupID)
	}
	return result, nil
}

// OnScreenshot attaches the receipt and hands the group to the manager. A
// repeated screenshot for a group that is no longer WAITPAY, or that
// already carries an artifact, is a no-op.
func (s *service) OnScreenshot(ctx context.Context, groupID, fileID string) error {
	ctx = s.logg.WithOrderGroup(ctx, groupID)
	lines, err := s.repo.FindByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if lines[0].Status != enums.OrderStatusWaitPay || lines[0].ReceiptFileID != nil {
		s.logg.Info(ctx, "duplicate screenshot ignored")
		return nil
	}

	var claimed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		claimed, err = repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusWaitPay, enums.OrderStatusPending)
		if err != nil || !claimed {
			return err
		}
		return repo.AttachReceipt(ctx, groupID, fileID)
	})
	if err != nil {
		return err
	}
	if !claimed {
		s.logg.Info(ctx, "screenshot raced with another transition, ignored")
		return nil
	}

	buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID)
	if err != nil {
		return err
	}
	s.notifier.ThankForScreenshot(ctx, buyer.ChatID)
	card := s.buildCard(groupID, lines, buyer)
	approvalID, err := s.notifier.SendApprovalCard(ctx, card, fileID)
	if err != nil {
		s.logg.Error(ctx, "send approval card", err)
		return nil
	}
	record, err := s.repo.FindManagerMessage(ctx, groupID)
	if err != nil {
		record = &models.ManagerMessage{GroupID: groupID}
	}
	record.ApprovalMessageID = &approvalID
	if err := s.repo.SaveManagerMessage(ctx, record); err != nil {
		s.logg.Error(ctx, "save approval message id", err)
	}
	s.logg.Info(ctx, "order moved to pending approval")
	return nil
}

// CheckPayment runs the gateway verification pass and finalizes on the
// first confirmation.
func (s *service) CheckPayment(ctx context.Context, paymentID string) (*CheckPaymentResult, error) {
	result, err := s.payments.CheckPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	switch result.Outcome {
	case payments.OutcomeAlreadyProcessing:
		return &CheckPaymentResult{Reply: "Платёж уже проверяется, подождите немного."}, nil
	case payments.OutcomeAlreadyConfirmed:
		return &CheckPaymentResult{Reply: "Оплата уже подтверждена."}, nil
	case payments.OutcomeNotConfirmed:
		return &CheckPaymentResult{Reply: "Оплата ещё не поступила. Попробуйте проверить позже."}, nil
	}

	groupID := result.Intent.GroupID
	ctx = s.logg.WithOrderGroup(ctx, groupID)

	claimed, err := s.repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusWaitPay, enums.OrderStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// The payment confirmed but the group already left WAITPAY, e.g. an
		// earlier check finalized it.
		return &CheckPaymentResult{Reply: "Заказ уже принят."}, nil
	}

	if _, err := s.finalize(ctx, groupID); err != nil {
		if _, revertErr := s.repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusProcessing, enums.OrderStatusPending); revertErr != nil {
			s.logg.Error(ctx, "revert claim after failed finalize", revertErr)
		}
		s.notifier.NotifyManager(ctx, fmt.Sprintf("Не удалось оформить доставку по заказу %s: %v", groupID, err))
		return nil, err
	}
	return &CheckPaymentResult{Reply: "Оплата подтверждена!", Finalized: true}, nil
}

// ApproveOrder is the manager's accept action. The PENDING→PROCESSING claim
// makes a double click settle as "already accepted" instead of issuing two
// tracking numbers.
func (s *service) ApproveOrder(ctx context.Context, groupID string) (*ApproveResult, error) {
	ctx = s.logg.WithOrderGroup(ctx, groupID)
	lines, err := s.repo.FindByGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if lines[0].Status == enums.OrderStatusSuccess {
		return &ApproveResult{AlreadyAccepted: true}, nil
	}

	claimed, err := s.repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusPending, enums.OrderStatusProcessing)
	if err != nil {
		return nil, err
	}
	if !claimed {
		current, err := s.repo.FindByGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		if current[0].Status == enums.OrderStatusSuccess {
			return &ApproveResult{AlreadyAccepted: true}, nil
		}
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting approval")
	}

	tracking, err := s.finalize(ctx, groupID)
	if err != nil {
		if _, revertErr := s.repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusProcessing, enums.OrderStatusPending); revertErr != nil {
			s.logg.Error(ctx, "revert claim after failed finalize", revertErr)
		}
		s.notifier.NotifyManager(ctx, fmt.Sprintf("Не удалось оформить доставку по заказу %s: %v", groupID, err))
		return nil, err
	}
	return &ApproveResult{TrackingNumber: tracking}, nil
}

// RejectOrder is the manager's delete action. The group is kept as a
// REJECTED row set and its inventory is restored.
func (s *service) RejectOrder(ctx context.Context, groupID string) error {
	ctx = s.logg.WithOrderGroup(ctx, groupID)
	lines, err := s.repo.FindByGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if lines[0].Status == enums.OrderStatusSuccess {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already accepted")
	}
	if lines[0].Status.IsTerminal() {
		return nil
	}

	var claimed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv := s.inventory.WithTx(tx)

		for _, from := range []enums.OrderStatus{enums.OrderStatusPending, enums.OrderStatusWaitPay} {
			claimed, err = repo.UpdateStatusIf(ctx, groupID, from, enums.OrderStatusRejected)
			if err != nil {
				return err
			}
			if claimed {
				break
			}
		}
		if !claimed {
			return nil
		}
		for _, line := range lines {
			if err := inv.Release(ctx, line.ProductID, line.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is being processed")
	}

	buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID)
	if err == nil {
		s.timeouts.Cancel(groupID)
		s.waits.Cancel(buyer.ChatID)
		s.notifier.NotifyBuyerRejected(ctx, buyer.ChatID)
	}
	if record, err := s.repo.FindManagerMessage(ctx, groupID); err == nil && record.ApprovalMessageID != nil {
		s.notifier.ClearApprovalCard(ctx, *record.ApprovalMessageID)
	}
	s.logg.Info(ctx, "order rejected")
	return nil
}

// CancelExpired is the payment-window timer callback. It re-checks the
// current status and cancels only a group still waiting for payment.
func (s *service) CancelExpired(ctx context.Context, groupID string) error {
	return s.cancelGroup(ctx, groupID, CancelReasonExpired)
}

// CancelWaitPayOrders purges every group still in WAITPAY. Used by the
// requisites rotation and the cron reaper backstop.
func (s *service) CancelWaitPayOrders(ctx context.Context, reason CancelReason) (int, error) {
	groups, err := s.repo.FindGroupsInStatus(ctx, enums.OrderStatusWaitPay)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var errs error
	for _, groupID := range groups {
		if err := s.cancelGroup(ctx, groupID, reason); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cancelled++
	}
	return cancelled, errs
}

// ReapExpiredWaitPay cancels WAITPAY groups older than the given age. It
// backstops the in-process payment-window timers, which do not survive a
// deploy or crash between sweeps.
func (s *service) ReapExpiredWaitPay(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	groups, err := s.repo.FindStaleWaitPayGroups(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	cancelled := 0
	var errs error
	for _, groupID := range groups {
		if err := s.cancelGroup(ctx, groupID, CancelReasonExpired); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		cancelled++
	}
	return cancelled, errs
}

// StartupSweep compensates for timers lost in a restart: any group still in
// WAITPAY is treated as orphaned and cleaned up.
func (s *service) StartupSweep(ctx context.Context) (int, error) {
	swept, err := s.CancelWaitPayOrders(ctx, CancelReasonStartup)
	if swept > 0 {
		s.notifier.NotifyManager(ctx, fmt.Sprintf("Бот перезапущен. Отменено неоплаченных заказов: %d.", swept))
	}
	return swept, err
}

// ListGroupSummaries renders a condensed per-group view for manager
// listings.
func (s *service) ListGroupSummaries(ctx context.Context, status enums.OrderStatus) ([]GroupSummary, error) {
	groups, err := s.repo.FindGroupsInStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	summaries := make([]GroupSummary, 0, len(groups))
	for _, groupID := range groups {
		lines, err := s.repo.FindByGroup(ctx, groupID)
		if err != nil {
			return nil, err
		}
		summary := GroupSummary{GroupID: groupID, Status: lines[0].Status, Lines: lines}
		for _, line := range lines {
			summary.TotalPrice += line.LineTotal
		}
		if lines[0].TrackingNumber != nil {
			summary.TrackingNumber = *lines[0].TrackingNumber
		}
		if buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID); err == nil {
			summary.BuyerChatID = buyer.ChatID
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// ResendApprovalCards posts a fresh approval card for every group still
// waiting on the manager. Used by the /orders listing so processed cards
// that scrolled away can be acted on again. Groups that fail to render are
// skipped, not fatal.
func (s *service) ResendApprovalCards(ctx context.Context) (int, error) {
	groups, err := s.repo.FindGroupsInStatus(ctx, enums.OrderStatusPending)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, groupID := range groups {
		gctx := s.logg.WithOrderGroup(ctx, groupID)
		lines, err := s.repo.FindByGroup(gctx, groupID)
		if err != nil {
			s.logg.Error(gctx, "load pending group", err)
			continue
		}
		buyer, err := s.repo.FindBuyer(gctx, lines[0].BuyerID)
		if err != nil {
			s.logg.Error(gctx, "load pending group buyer", err)
			continue
		}
		receiptFileID := ""
		if lines[0].ReceiptFileID != nil {
			receiptFileID = *lines[0].ReceiptFileID
		}
		approvalID, err := s.notifier.SendApprovalCard(gctx, s.buildCard(groupID, lines, buyer), receiptFileID)
		if err != nil {
			s.logg.Error(gctx, "resend approval card", err)
			continue
		}
		record, err := s.repo.FindManagerMessage(gctx, groupID)
		if err != nil {
			record = &models.ManagerMessage{GroupID: groupID}
		}
		record.ApprovalMessageID = &approvalID
		if err := s.repo.SaveManagerMessage(gctx, record); err != nil {
			s.logg.Error(gctx, "save approval message id", err)
		}
		sent++
	}
	return sent, nil
}

// CollectPrompt swaps the fulfillment card keyboard for the confirm step.
func (s *service) CollectPrompt(ctx context.Context, trackingNumber string) error {
	record, err := s.repo.FindManagerMessageByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	if record.FulfillmentMessageID == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment message is not recorded")
	}
	return s.notifier.ShowCollectConfirm(ctx, *record.FulfillmentMessageID, trackingNumber)
}

// ConfirmCollect marks the parcel collected and tells the buyer.
func (s *service) ConfirmCollect(ctx context.Context, trackingNumber string) error {
	lines, err := s.repo.FindByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	record, err := s.repo.FindManagerMessageByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	if record.FulfillmentMessageID != nil {
		if err := s.notifier.MarkCollected(ctx, *record.FulfillmentMessageID, trackingNumber); err != nil {
			s.logg.Error(ctx, "mark order collected", err)
		}
	}
	if buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID); err == nil {
		s.notifier.NotifyBuyerCollected(ctx, buyer.ChatID, trackingNumber)
	}
	return nil
}

// CancelCollect calls the handover off. The group is soft-cancelled so the
// manager settles the rest with the buyer directly; inventory and payment
// are left untouched.
func (s *service) CancelCollect(ctx context.Context, trackingNumber string) error {
	lines, err := s.repo.FindByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	groupID := lines[0].GroupID
	ctx = s.logg.WithOrderGroup(ctx, groupID)

	claimed, err := s.repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusSuccess, enums.OrderStatusCancelled)
	if err != nil {
		return err
	}
	if !claimed {
		// Already cancelled, or never reached success. Re-notifying the
		// buyer on a repeated button press would only confuse them.
		return nil
	}
	if buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID); err == nil {
		s.notifier.NotifyBuyerCollectCancelled(ctx, buyer.ChatID, trackingNumber)
	}

	record, err := s.repo.FindManagerMessage(ctx, groupID)
	if err != nil || record.FulfillmentMessageID == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment message is not recorded")
	}
	return s.notifier.MarkCollectCancelled(ctx, *record.FulfillmentMessageID, trackingNumber)
}

// RefreshFulfillmentCard re-renders the fulfillment-group card from the
// current order rows. Called after CRM-side edits so the warehouse sees
// the corrected composition.
func (s *service) RefreshFulfillmentCard(ctx context.Context, trackingNumber string) error {
	lines, err := s.repo.FindByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	groupID := lines[0].GroupID
	ctx = s.logg.WithOrderGroup(ctx, groupID)

	record, err := s.repo.FindManagerMessageByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	if record.FulfillmentMessageID == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment message is not recorded")
	}
	buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID)
	if err != nil {
		return err
	}
	barcodeURL := ""
	if lines[0].BarcodeURL != nil {
		barcodeURL = *lines[0].BarcodeURL
	}
	card := s.buildCard(groupID, lines, buyer)
	return s.notifier.EditFulfillmentCard(ctx, *record.FulfillmentMessageID, card, trackingNumber, barcodeURL)
}

// CollectGoBack restores the initial collect keyboard without any text edit.
func (s *service) CollectGoBack(ctx context.Context, trackingNumber string) error {
	record, err := s.repo.FindManagerMessageByTracking(ctx, trackingNumber)
	if err != nil {
		return err
	}
	if record.FulfillmentMessageID == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "fulfillment message is not recorded")
	}
	return s.notifier.RevertCollectKeyboard(ctx, *record.FulfillmentMessageID, trackingNumber)
}

// finalize is the shared accept path: register the shipment, obtain the
// tracking number, move the group to SUCCESS and fan out notifications.
// Callers hold the PROCESSING claim, so at most one finalize runs per
// group.
func (s *service) finalize(ctx context.Context, groupID string) (string, error) {
	lines, err := s.repo.FindByGroup(ctx, groupID)
	if err != nil {
		return "", err
	}
	buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID)
	if err != nil {
		return "", err
	}

	gateway, err := s.carriers.ForCarrier(lines[0].Carrier)
	if err != nil {
		return "", err
	}

	products, err := s.repo.FindProducts(ctx, productIDs(lines))
	if err != nil {
		return "", err
	}

	registration, err := gateway.RegisterShipment(ctx, buildShipmentRequest(groupID, lines, products))
	if err != nil {
		return "", err
	}

	tracking := registration.TrackingNumber
	if tracking == "" {
		tracking, err = gateway.TrackingNumber(ctx, groupID)
		if err != nil {
			return "", err
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.SetTracking(ctx, groupID, tracking); err != nil {
			return err
		}
		moved, err := repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusProcessing, enums.OrderStatusSuccess)
		if err != nil {
			return err
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "processing claim lost before success")
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.timeouts.Cancel(groupID)
	s.waits.Cancel(buyer.ChatID)

	barcodeURL := ""
	if registration.UUID != "" {
		barcodeURL, err = gateway.BarcodeURL(ctx, registration.UUID)
		if err != nil {
			// The order is already accepted; a missing label only blocks
			// printing, which the manager resolves by hand.
			s.notifier.NotifyManager(ctx, fmt.Sprintf("Не удалось получить штрихкод по заказу %s: %v", groupID, err))
			barcodeURL = ""
		} else if err := s.repo.SetBarcodeURL(ctx, groupID, barcodeURL); err != nil {
			s.logg.Error(ctx, "save barcode url", err)
		}
	}

	s.notifier.NotifyBuyerTracking(ctx, buyer.ChatID, tracking, s.shopCfg.SupportHandle)

	card := s.buildCard(groupID, lines, buyer)
	fulfillmentID, err := s.notifier.SendFulfillmentCard(ctx, card, tracking, barcodeURL)
	if err != nil {
		s.logg.Error(ctx, "send fulfillment card", err)
	}

	record, err := s.repo.FindManagerMessage(ctx, groupID)
	if err != nil {
		record = &models.ManagerMessage{GroupID: groupID}
	}
	if record.ApprovalMessageID != nil {
		s.notifier.ClearApprovalCard(ctx, *record.ApprovalMessageID)
	}
	if fulfillmentID != 0 {
		record.FulfillmentMessageID = &fulfillmentID
	}
	if err := s.repo.SaveManagerMessage(ctx, record); err != nil {
		s.logg.Error(ctx, "save fulfillment message id", err)
	}

	s.logg.Info(ctx, "order finalized")
	return tracking, nil
}

// cancelGroup resolves a WAITPAY group into CANCELLED, releasing its
// inventory. Groups in any other status are left alone.
func (s *service) cancelGroup(ctx context.Context, groupID string, reason CancelReason) error {
	ctx = s.logg.WithOrderGroup(ctx, groupID)
	lines, err := s.repo.FindByGroup(ctx, groupID)
	if err != nil {
		return err
	}

	var claimed bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv := s.inventory.WithTx(tx)

		claimed, err = repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusWaitPay, enums.OrderStatusCancelled)
		if err != nil || !claimed {
			return err
		}
		for _, line := range lines {
			if err := inv.Release(ctx, line.ProductID, line.Qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}

	s.timeouts.Cancel(groupID)

	buyer, err := s.repo.FindBuyer(ctx, lines[0].BuyerID)
	if err != nil {
		s.logg.Error(ctx, "load buyer for cancellation notice", err)
		return nil
	}
	s.waits.Cancel(buyer.ChatID)

	if record, err := s.repo.FindManagerMessage(ctx, groupID); err == nil && record.BuyerPromptMessageID != nil {
		s.notifier.DeleteBuyerMessage(ctx, buyer.ChatID, *record.BuyerPromptMessageID)
	}

	switch reason {
	case CancelReasonExpired:
		s.notifier.NotifyBuyerAutoCancelled(ctx, buyer.ChatID)
	case CancelReasonRequisitesChanged:
		s.notifier.NotifyBuyerRequisitesChanged(ctx, buyer.ChatID)
	}
	s.logg.Info(ctx, fmt.Sprintf("order cancelled, reason %s", reason))
	return nil
}

var moscowTZ = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}()

// paymentWindow returns how long the group may stay unpaid. Mail orders are
// taken to the post office in a single daily batch, so their window runs
// until the next Moscow midnight instead of the fixed interval.
func (s *service) paymentWindow(c enums.Carrier) time.Duration {
	if c != enums.CarrierPost {
		return s.orderCfg.PaymentWindow
	}
	now := time.Now().In(moscowTZ)
	midnight := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, moscowTZ)
	return midnight.Sub(now)
}

func (s *service) buildCard(groupID string, lines []models.OrderLine, buyer *models.Buyer) notify.OrderCard {
	card := notify.OrderCard{
		GroupID:        groupID,
		ChatID:         buyer.ChatID,
		Country:        lines[0].Country,
		Phone:          lines[0].Phone,
		DeliveryCost:   lines[0].DeliveryCost,
		DeliveryUnpaid: lines[0].CodAllowed,
		FullName:       fullName(lines[0]),
	}
	if buyer.Username != nil {
		card.Username = *buyer.Username
	}
	if lines[0].City != nil {
		card.City = *lines[0].City
	}
	for _, line := range lines {
		card.TotalPrice += line.LineTotal
		card.Lines = append(card.Lines, notify.OrderCardLine{Qty: line.Qty, Name: line.ProductName})
	}
	return card
}

func buildShipmentRequest(groupID string, lines []models.OrderLine, products map[uuid.UUID]models.Product) carrier.ShipmentRequest {
	req := carrier.ShipmentRequest{
		GroupID:      groupID,
		Carrier:      lines[0].Carrier,
		Surname:      lines[0].Surname,
		FirstName:    lines[0].FirstName,
		Phone:        lines[0].Phone,
		Country:      lines[0].Country,
		TariffCode:   lines[0].TariffCode,
		DeliveryCost: lines[0].DeliveryCost,
		CodAllowed:   lines[0].CodAllowed,
	}
	if lines[0].MiddleName != nil {
		req.MiddleName = *lines[0].MiddleName
	}
	if lines[0].City != nil {
		req.City = *lines[0].City
	}
	if lines[0].Address != nil {
		req.Address = *lines[0].Address
	}
	if lines[0].PickupPointCode != nil {
		req.PickupPointCode = *lines[0].PickupPointCode
	}
	if lines[0].PostalIndex != nil {
		req.PostalIndex = *lines[0].PostalIndex
	}
	if lines[0].Region != nil {
		req.Region = *lines[0].Region
	}
	for _, line := range lines {
		product := products[line.ProductID]
		req.TotalPriceRubles += line.LineTotal
		req.Items = append(req.Items, carrier.ShipmentItem{
			Name:            line.ProductName,
			Qty:             line.Qty,
			UnitPriceRubles: line.UnitPrice,
			UnitWeightGrams: product.UnitWeightGrams,
			Bulky:           product.Bulky,
		})
	}
	return req
}

func productIDs(lines []models.OrderLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func fullName(line models.OrderLine) string {
	name := line.Surname + " " + line.FirstName
	if line.MiddleName != nil && *line.MiddleName != "" {
		name += " " + *line.MiddleName
	}
	return name
}

func distinctGroups(lines []models.OrderLine) []string {
	seen := make(map[string]struct{}, len(lines))
	groups := make([]string, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.GroupID]; ok {
			continue
		}
		seen[line.GroupID] = struct{}{}
		groups = append(groups, line.GroupID)
	}
	return groups
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
