package payments

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	ddl := `
CREATE TABLE IF NOT EXISTS payment_intents (
  id TEXT PRIMARY KEY,
  payment_id TEXT NOT NULL UNIQUE,
  group_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  amount_kopecks INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'new',
  created_at DATETIME,
  updated_at DATETIME
);`
	if err := db.Exec(ddl).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedIntent(t *testing.T, repo Repository, status enums.PaymentStatus) *models.PaymentIntent {
	t.Helper()
	intent, err := repo.Create(context.Background(), &models.PaymentIntent{
		PaymentID:     uuid.NewString(),
		GroupID:       uuid.NewString(),
		BuyerID:       uuid.New(),
		AmountKopecks: 450000,
		Status:        status,
	})
	if err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return intent
}

func TestCreateDuplicatePaymentIDIsConflict(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	intent := seedIntent(t, repo, enums.PaymentStatusNew)

	_, err := repo.Create(ctx, &models.PaymentIntent{
		PaymentID:     intent.PaymentID,
		GroupID:       uuid.NewString(),
		BuyerID:       uuid.New(),
		AmountKopecks: 450000,
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict on duplicate payment id, got %v", err)
	}
}

func TestClaimProcessingWinsOnlyFromNew(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	intent := seedIntent(t, repo, enums.PaymentStatusNew)

	claimed, err := repo.ClaimProcessing(ctx, intent.PaymentID)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to win")
	}

	claimed, err = repo.ClaimProcessing(ctx, intent.PaymentID)
	if err != nil {
		t.Fatalf("second claim errored: %v", err)
	}
	if claimed {
		t.Fatal("second claim must lose while processing")
	}
}

func TestRevertToNewReleasesClaim(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	intent := seedIntent(t, repo, enums.PaymentStatusNew)

	if _, err := repo.ClaimProcessing(ctx, intent.PaymentID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := repo.RevertToNew(ctx, intent.PaymentID); err != nil {
		t.Fatalf("revert failed: %v", err)
	}

	claimed, err := repo.ClaimProcessing(ctx, intent.PaymentID)
	if err != nil {
		t.Fatalf("reclaim errored: %v", err)
	}
	if !claimed {
		t.Fatal("expected reclaim after revert to win")
	}
}

func TestMarkConfirmedIsFinal(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	intent := seedIntent(t, repo, enums.PaymentStatusNew)

	if _, err := repo.ClaimProcessing(ctx, intent.PaymentID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := repo.MarkConfirmed(ctx, intent.PaymentID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}

	claimed, err := repo.ClaimProcessing(ctx, intent.PaymentID)
	if err != nil {
		t.Fatalf("claim errored: %v", err)
	}
	if claimed {
		t.Fatal("confirmed intent must never be claimable again")
	}

	err = repo.RevertToNew(ctx, intent.PaymentID)
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict reverting a confirmed intent, got %v", err)
	}
}

func TestFindByPaymentIDMissingIsNotFound(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))

	_, err := repo.FindByPaymentID(context.Background(), "absent")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindLatestByGroupPrefersNewestIntent(t *testing.T) {
	t.Parallel()

	repo := NewRepository(newTestDB(t))
	ctx := context.Background()
	group := uuid.NewString()
	buyer := uuid.New()

	if _, err := repo.Create(ctx, &models.PaymentIntent{
		PaymentID: "pay-old", GroupID: group, BuyerID: buyer, AmountKopecks: 100000,
	}); err != nil {
		t.Fatalf("seed old intent: %v", err)
	}
	if _, err := repo.Create(ctx, &models.PaymentIntent{
		PaymentID: "pay-new", GroupID: group, BuyerID: buyer, AmountKopecks: 100000,
	}); err != nil {
		t.Fatalf("seed new intent: %v", err)
	}

	latest, err := repo.FindLatestByGroup(ctx, group)
	if err != nil {
		t.Fatalf("find latest: %v", err)
	}
	if latest.PaymentID != "pay-new" {
		t.Fatalf("expected the newest intent, got %s", latest.PaymentID)
	}
}
