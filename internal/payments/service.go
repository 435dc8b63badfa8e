package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/tpay"
)

// kopecksPerRuble converts whole-ruble prices into the gateway's unit at the
// boundary; everything internal stays in rubles.
const kopecksPerRuble = 100

// gatewayClient is the slice of the acquiring client the service needs.
type gatewayClient interface {
	Init(ctx context.Context, req tpay.InitRequest) (*tpay.InitResult, error)
	GetState(ctx context.Context, paymentID string) (*tpay.StateResult, error)
}

// CheckOutcome classifies one status-check pass over a payment intent.
type CheckOutcome string

const (
	// OutcomeAlreadyProcessing means another check currently holds the claim.
	OutcomeAlreadyProcessing CheckOutcome = "already_processing"
	// OutcomeAlreadyConfirmed means the intent was settled earlier.
	OutcomeAlreadyConfirmed CheckOutcome = "already_confirmed"
	// OutcomeConfirmed means this check observed the confirmation first.
	OutcomeConfirmed CheckOutcome = "confirmed"
	// OutcomeNotConfirmed means the gateway has not seen the money yet.
	OutcomeNotConfirmed CheckOutcome = "not_confirmed"
)

// CheckResult is the status-check verdict handed to the order coordinator.
type CheckResult struct {
	Outcome CheckOutcome
	Intent  *models.PaymentIntent
}

// Service drives the payment-intent lifecycle against the acquiring gateway.
type Service struct {
	repo    Repository
	gateway gatewayClient
	logg    *logger.Logger
}

// NewService wires the payment service.
func NewService(repo Repository, gateway gatewayClient, logg *logger.Logger) *Service {
	return &Service{repo: repo, gateway: gateway, logg: logg}
}

// CreateIntent registers a gateway payment for the order group and persists
// the intent. Returns the intent and the hosted payment page URL.
func (s *Service) CreateIntent(ctx context.Context, groupID string, buyerID uuid.UUID, amountRubles int, description string) (*models.PaymentIntent, string, error) {
	if amountRubles <= 0 {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "order amount must be positive")
	}

	result, err := s.gateway.Init(ctx, tpay.InitRequest{
		Amount:      int64(amountRubles) * kopecksPerRuble,
		OrderID:     groupID,
		Description: description,
	})
	if err != nil {
		return nil, "", err
	}

	intent, err := s.repo.Create(ctx, &models.PaymentIntent{
		PaymentID:     result.PaymentID,
		GroupID:       groupID,
		BuyerID:       buyerID,
		AmountKopecks: int64(amountRubles) * kopecksPerRuble,
		Status:        enums.PaymentStatusNew,
	})
	if err != nil {
		return nil, "", err
	}

	s.logg.Info(s.logg.WithOrderGroup(ctx, groupID), "payment intent created")
	return intent, result.PaymentURL, nil
}

// CheckPayment runs one verification pass. A NEW intent is atomically
// claimed before the gateway is consulted, so a buyer double-tapping the
// check button cannot trigger two confirmations; inconclusive polls release
// the claim. Confirmed intents are never re-processed.
func (s *Service) CheckPayment(ctx context.Context, paymentID string) (*CheckResult, error) {
	intent, err := s.repo.FindByPaymentID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderGroup(ctx, intent.GroupID)

	switch intent.Status {
	case enums.PaymentStatusProcessing:
		return &CheckResult{Outcome: OutcomeAlreadyProcessing, Intent: intent}, nil
	case enums.PaymentStatusConfirmed:
		return &CheckResult{Outcome: OutcomeAlreadyConfirmed, Intent: intent}, nil
	}

	claimed, err := s.repo.ClaimProcessing(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Lost the race. Re-read to distinguish a concurrent check from a
		// finished confirmation.
		current, err := s.repo.FindByPaymentID(ctx, paymentID)
		if err != nil {
			return nil, err
		}
		if current.Status == enums.PaymentStatusConfirmed {
			return &CheckResult{Outcome: OutcomeAlreadyConfirmed, Intent: current}, nil
		}
		return &CheckResult{Outcome: OutcomeAlreadyProcessing, Intent: current}, nil
	}

	state, err := s.gateway.GetState(ctx, paymentID)
	if err != nil {
		if revertErr := s.repo.RevertToNew(ctx, paymentID); revertErr != nil {
			s.logg.Error(ctx, "release payment claim", revertErr)
		}
		return nil, err
	}

	if state.Status != tpay.StateConfirmed {
		if err := s.repo.RevertToNew(ctx, paymentID); err != nil {
			return nil, err
		}
		s.logg.Info(ctx, fmt.Sprintf("payment not confirmed yet, gateway status %s", state.Status))
		return &CheckResult{Outcome: OutcomeNotConfirmed, Intent: intent}, nil
	}

	if err := s.repo.MarkConfirmed(ctx, paymentID); err != nil {
		return nil, err
	}
	intent.Status = enums.PaymentStatusConfirmed
	s.logg.Info(ctx, "payment confirmed")
	return &CheckResult{Outcome: OutcomeConfirmed, Intent: intent}, nil
}
