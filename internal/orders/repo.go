package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

var liveStatuses = []enums.OrderStatus{
	enums.OrderStatusWaitPay,
	enums.OrderStatusProcessing,
	enums.OrderStatusPending,
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateLines(ctx context.Context, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order group has no lines")
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) FindByGroup(ctx context.Context, groupID string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return lines, nil
}

// FindLiveByBuyer returns the buyer's non-terminal lines, newest group first.
func (r *repository) FindLiveByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("buyer_id = ? AND status IN ?", buyerID, liveStatuses).
		Order("created_at DESC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) FindGroupsInStatus(ctx context.Context, status enums.OrderStatus) ([]string, error) {
	var groups []string
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("status = ?", status).
		Distinct("group_id").
		Pluck("group_id", &groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repository) FindStaleWaitPayGroups(ctx context.Context, cutoff time.Time) ([]string, error) {
	var groups []string
	err := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("status = ? AND created_at < ?", enums.OrderStatusWaitPay, cutoff).
		Distinct("group_id").
		Pluck("group_id", &groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repository) FindByTracking(ctx context.Context, trackingNumber string) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	err := r.db.WithContext(ctx).
		Where("tracking_number = ?", trackingNumber).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found by tracking number")
	}
	return lines, nil
}

// UpdateStatusIf moves every line of the group from one status to another in
// a single conditional update. Returns false when the group was not in the
// expected status, which is how concurrent claims lose.
func (r *repository) UpdateStatusIf(ctx context.Context, groupID string, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("group_id = ? AND status = ?", groupID, from).
		UpdateColumn("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) AttachReceipt(ctx context.Context, groupID, fileID string) error {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("group_id = ?", groupID).
		UpdateColumn("receipt_file_id", fileID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return nil
}

func (r *repository) SetTracking(ctx context.Context, groupID, trackingNumber string) error {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("group_id = ?", groupID).
		UpdateColumn("tracking_number", trackingNumber)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return nil
}

func (r *repository) SetBarcodeURL(ctx context.Context, groupID, barcodeURL string) error {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLine{}).
		Where("group_id = ?", groupID).
		UpdateColumn("barcode_url", barcodeURL)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order group not found")
	}
	return nil
}

// SaveManagerMessage upserts the message-id record for a group.
func (r *repository) SaveManagerMessage(ctx context.Context, record *models.ManagerMessage) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"buyer_prompt_message_id",
				"approval_message_id",
				"fulfillment_message_id",
				"updated_at",
			}),
		}).
		Create(record).Error
}

func (r *repository) FindManagerMessage(ctx context.Context, groupID string) (*models.ManagerMessage, error) {
	var record models.ManagerMessage
	err := r.db.WithContext(ctx).First(&record, "group_id = ?", groupID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "manager message record not found")
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) FindManagerMessageByTracking(ctx context.Context, trackingNumber string) (*models.ManagerMessage, error) {
	lines, err := r.FindByTracking(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}
	return r.FindManagerMessage(ctx, lines[0].GroupID)
}

func (r *repository) FindOrCreateBuyer(ctx context.Context, chatID int64, username string) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).First(&buyer, "chat_id = ?", chatID).Error
	if err == nil {
		if username != "" && (buyer.Username == nil || *buyer.Username != username) {
			buyer.Username = &username
			if err := r.db.WithContext(ctx).Model(&buyer).UpdateColumn("username", username).Error; err != nil {
				return nil, err
			}
		}
		return &buyer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	buyer = models.Buyer{ID: uuid.New(), ChatID: chatID}
	if username != "" {
		buyer.Username = &username
	}
	if err := r.db.WithContext(ctx).Create(&buyer).Error; err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) ListBuyers(ctx context.Context) ([]models.Buyer, error) {
	var buyers []models.Buyer
	if err := r.db.WithContext(ctx).Order("created_at").Find(&buyers).Error; err != nil {
		return nil, err
	}
	return buyers, nil
}

func (r *repository) FindBuyer(ctx context.Context, id uuid.UUID) (*models.Buyer, error) {
	var buyer models.Buyer
	err := r.db.WithContext(ctx).First(&buyer, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "buyer not found")
	}
	if err != nil {
		return nil, err
	}
	return &buyer, nil
}

func (r *repository) FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return byID, nil
}
