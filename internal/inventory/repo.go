package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

// Repository guards the sellable stock counters. Reserve and Release run as
// single conditional updates so concurrent checkouts cannot oversell.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	Release(ctx context.Context, productID uuid.UUID, qty int) error
	Available(ctx context.Context, productID uuid.UUID) (int, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Reserve decrements available stock. Fails with a conflict when the row is
// missing or the remaining quantity is lower than requested.
func (r *repository) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reserve qty must be positive, got %d", qty))
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ? AND available_qty >= ?", productID, qty).
		UpdateColumn("available_qty", gorm.Expr("available_qty - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "not enough stock").
			WithDetails(map[string]any{"product_id": productID, "qty": qty})
	}
	return nil
}

// Release returns stock after a cancellation or rejection.
func (r *repository) Release(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("release qty must be positive, got %d", qty))
	}
	res := r.db.WithContext(ctx).
		Model(&models.InventoryItem{}).
		Where("product_id = ?", productID).
		UpdateColumn("available_qty", gorm.Expr("available_qty + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory row missing").
			WithDetails(map[string]any{"product_id": productID})
	}
	return nil
}

// Available reads the current sellable count.
func (r *repository) Available(ctx context.Context, productID uuid.UUID) (int, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).First(&item, "product_id = ?", productID).Error; err != nil {
		return 0, err
	}
	return item.AvailableQty, nil
}
