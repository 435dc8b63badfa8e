package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	checkoutsvc "github.com/vorobeishop/storefront-backend/internal/checkout"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "api-test"})
}

type stubCheckoutService struct {
	result    *checkoutsvc.Result
	err       error
	cdekCalls int
	mailCalls int
}

func (s *stubCheckoutService) PlaceCdekOrder(ctx context.Context, input checkoutsvc.CdekInput) (*checkoutsvc.Result, error) {
	s.cdekCalls++
	return s.result, s.err
}

func (s *stubCheckoutService) PlaceMailOrder(ctx context.Context, input checkoutsvc.MailInput) (*checkoutsvc.Result, error) {
	s.mailCalls++
	return s.result, s.err
}

type stubOrdersService struct {
	checkResult *orders.CheckPaymentResult
	checkErr    error
	checkedIDs  []string

	cancelled int
	cancelErr error

	refreshed  []string
	refreshErr error
}

func (s *stubOrdersService) PlaceOrder(ctx context.Context, input orders.PlaceOrderInput) (*orders.PlaceOrderResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) OnScreenshot(ctx context.Context, groupID, fileID string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) CheckPayment(ctx context.Context, paymentID string) (*orders.CheckPaymentResult, error) {
	s.checkedIDs = append(s.checkedIDs, paymentID)
	return s.checkResult, s.checkErr
}

func (s *stubOrdersService) ApproveOrder(ctx context.Context, groupID string) (*orders.ApproveResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) RejectOrder(ctx context.Context, groupID string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) CancelExpired(ctx context.Context, groupID string) error {
	return pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

func (s *stubOrdersService) CancelWaitPayOrders(ctx context.Context, reason orders.CancelReason) (int, error) {
	return s.cancelled, s.cancelErr
}

func (s *stubOrdersService) ReapExpiredWaitPay(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (s *stubOrdersService) StartupSweep(ctx context.Context) (int, error) { return 0, nil }

func (s *stubOrdersService) ListGroupSummaries(ctx context.Context, status enums.OrderStatus) ([]orders.GroupSummary, error) {
	return nil, nil
}

func (s *stubOrdersService) ResendApprovalCards(ctx context.Context) (int, error) { return 0, nil }

func (s *stubOrdersService) CollectPrompt(ctx context.Context, trackingNumber string) error {
	return nil
}

func (s *stubOrdersService) ConfirmCollect(ctx context.Context, trackingNumber string) error {
	return nil
}

func (s *stubOrdersService) CancelCollect(ctx context.Context, trackingNumber string) error {
	return nil
}

func (s *stubOrdersService) CollectGoBack(ctx context.Context, trackingNumber string) error {
	return nil
}

func (s *stubOrdersService) RefreshFulfillmentCard(ctx context.Context, trackingNumber string) error {
	s.refreshed = append(s.refreshed, trackingNumber)
	return s.refreshErr
}

type stubBuyerLister struct {
	buyers []models.Buyer
	err    error
}

func (s *stubBuyerLister) ListBuyers(ctx context.Context) ([]models.Buyer, error) {
	return s.buyers, s.err
}

type stubSender struct {
	failFor map[int64]bool
	sent    []int64
}

func (s *stubSender) SendBuyerHTML(ctx context.Context, chatID int64, html string) error {
	if s.failFor[chatID] {
		return errors.New("blocked")
	}
	s.sent = append(s.sent, chatID)
	return nil
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

const validCdekBody = `{
	"telegram_id": 555,
	"username": "buyer",
	"items": [{"product_id": "6f1f4f71-2f9a-4f6e-9a44-1a2b3c4d5e6f", "qty": 2}],
	"surname": "Иванов",
	"first_name": "Иван",
	"phone": "+79990001122",
	"country": "RU",
	"city": "Казань",
	"address": "ул. Ленина, 1",
	"tariff_code": 136,
	"delivery_cost": 350
}`

func TestCheckoutCdekCreated(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{result: &checkoutsvc.Result{GroupID: "G1", Subtotal: 3000, DeliveryCost: 350, AmountDue: 3350}}
	rec := postJSON(t, CheckoutCdek(svc, testLogger()), validCdekBody)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	var result checkoutsvc.Result
	decodeData(t, rec, &result)
	if result.GroupID != "G1" || result.AmountDue != 3350 {
		t.Fatalf("unexpected result %+v", result)
	}
	if svc.cdekCalls != 1 {
		t.Fatalf("cdek calls = %d, want 1", svc.cdekCalls)
	}
}

func TestCheckoutCdekRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{}
	rec := postJSON(t, CheckoutCdek(svc, testLogger()), `{"telegram_id": 555}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if svc.cdekCalls != 0 {
		t.Fatalf("service was called on invalid payload")
	}
}

func TestCheckoutCdekMapsValidationError(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")}
	rec := postJSON(t, CheckoutCdek(svc, testLogger()), validCdekBody)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCheckoutMailCreated(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{result: &checkoutsvc.Result{GroupID: "G2", Subtotal: 2000, DeliveryCost: 500, AmountDue: 2500}}
	body := `{
		"telegram_id": 555,
		"items": [{"product_id": "6f1f4f71-2f9a-4f6e-9a44-1a2b3c4d5e6f", "qty": 1}],
		"surname": "Иванов",
		"first_name": "Иван",
		"phone": "+79990001122",
		"city": "Тверь",
		"address": "ул. Мира, 5",
		"postal_index": "170100",
		"region": "Тверская область",
		"delivery_cost": 500
	}`
	rec := postJSON(t, CheckoutMail(svc, testLogger()), body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", rec.Code, rec.Body.String())
	}
	if svc.mailCalls != 1 {
		t.Fatalf("mail calls = %d, want 1", svc.mailCalls)
	}
}

func TestCheckPaymentReturnsReply(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{checkResult: &orders.CheckPaymentResult{Reply: "Оплата подтверждена!", Finalized: true}}
	rec := postJSON(t, CheckPayment(svc, testLogger()), `{"payment_id": "pay-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result checkPaymentResponse
	decodeData(t, rec, &result)
	if !result.Finalized || result.Reply != "Оплата подтверждена!" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(svc.checkedIDs) != 1 || svc.checkedIDs[0] != "pay-1" {
		t.Fatalf("checked ids = %v", svc.checkedIDs)
	}
}

func TestCheckPaymentUnknownIntent(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{checkErr: pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")}
	rec := postJSON(t, CheckPayment(svc, testLogger()), `{"payment_id": "pay-404"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRequisitesRotatedReportsCount(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{cancelled: 4}
	rec := postJSON(t, RequisitesRotated(svc, testLogger()), ``)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result requisitesRotatedResponse
	decodeData(t, rec, &result)
	if result.Cancelled != 4 {
		t.Fatalf("cancelled = %d, want 4", result.Cancelled)
	}
}

func TestOrderEditRefreshesCard(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{}
	rec := postJSON(t, OrderEdit(svc, testLogger()), `{"tracking_number": "TRACK-1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if len(svc.refreshed) != 1 || svc.refreshed[0] != "TRACK-1" {
		t.Fatalf("refreshed = %v", svc.refreshed)
	}
}

func TestOrderEditUnknownTracking(t *testing.T) {
	t.Parallel()

	svc := &stubOrdersService{refreshErr: pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")}
	rec := postJSON(t, OrderEdit(svc, testLogger()), `{"tracking_number": "NOPE"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestBroadcastCollectsPerBuyerFailures(t *testing.T) {
	t.Parallel()

	buyers := &stubBuyerLister{buyers: []models.Buyer{{ChatID: 1}, {ChatID: 2}, {ChatID: 3}}}
	sender := &stubSender{failFor: map[int64]bool{2: true}}
	rec := postJSON(t, Broadcast(buyers, sender, testLogger()), `{"message": "<b>Акция</b>"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result broadcastResponse
	decodeData(t, rec, &result)
	if result.Sent != 2 {
		t.Fatalf("sent = %d, want 2", result.Sent)
	}
	if len(result.Failed) != 1 || result.Failed[0].ChatID != 2 {
		t.Fatalf("failed = %+v", result.Failed)
	}
}

func TestBroadcastRequiresMessage(t *testing.T) {
	t.Parallel()

	buyers := &stubBuyerLister{}
	sender := &stubSender{}
	rec := postJSON(t, Broadcast(buyers, sender, testLogger()), `{"message": "   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthLiveSetsEnvHeader(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.App.Env = "test"
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	rec := httptest.NewRecorder()
	HealthLive(cfg).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-Storefront-Env"); got != "test" {
		t.Fatalf("env header = %q", got)
	}
}
