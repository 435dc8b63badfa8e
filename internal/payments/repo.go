package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/pkg/db"
	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

// Repository persists payment intents. Status moves through conditional
// updates only, so concurrent status checks cannot double-claim an intent.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error)
	FindLatestByGroup(ctx context.Context, groupID string) (*models.PaymentIntent, error)
	ClaimProcessing(ctx context.Context, paymentID string) (bool, error)
	RevertToNew(ctx context.Context, paymentID string) error
	MarkConfirmed(ctx context.Context, paymentID string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, intent *models.PaymentIntent) (*models.PaymentIntent, error) {
	if intent.ID == uuid.Nil {
		intent.ID = uuid.New()
	}
	if intent.Status == "" {
		intent.Status = enums.PaymentStatusNew
	}
	if err := r.db.WithContext(ctx).Create(intent).Error; err != nil {
		if db.IsUniqueViolation(err, "payment_id") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "payment intent already exists")
		}
		return nil, err
	}
	return intent, nil
}

func (r *repository) FindByPaymentID(ctx context.Context, paymentID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).First(&intent, "payment_id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *repository) FindLatestByGroup(ctx context.Context, groupID string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		First(&intent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

// ClaimProcessing flips a NEW intent to PROCESSING. Returns false when the
// intent was already claimed or confirmed; exactly one concurrent caller
// wins.
func (r *repository) ClaimProcessing(ctx context.Context, paymentID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("payment_id = ? AND status = ?", paymentID, enums.PaymentStatusNew).
		UpdateColumn("status", enums.PaymentStatusProcessing)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// RevertToNew releases a PROCESSING claim after an inconclusive gateway poll.
func (r *repository) RevertToNew(ctx context.Context, paymentID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("payment_id = ? AND status = ?", paymentID, enums.PaymentStatusProcessing).
		UpdateColumn("status", enums.PaymentStatusNew)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is not processing")
	}
	return nil
}

// MarkConfirmed settles a PROCESSING intent. Confirmed intents are final.
func (r *repository) MarkConfirmed(ctx context.Context, paymentID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("payment_id = ? AND status = ?", paymentID, enums.PaymentStatusProcessing).
		UpdateColumn("status", enums.PaymentStatusConfirmed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment intent is not processing")
	}
	return nil
}
