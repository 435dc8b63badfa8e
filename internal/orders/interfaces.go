package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for order lines, buyers and
// manager message records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateLines(ctx context.Context, lines []models.OrderLine) error
	FindByGroup(ctx context.Context, groupID string) ([]models.OrderLine, error)
	FindLiveByBuyer(ctx context.Context, buyerID uuid.UUID) ([]models.OrderLine, error)
	FindGroupsInStatus(ctx context.Context, status enums.OrderStatus) ([]string, error)
	FindStaleWaitPayGroups(ctx context.Context, cutoff time.Time) ([]string, error)
	FindByTracking(ctx context.Context, trackingNumber string) ([]models.OrderLine, error)

	UpdateStatusIf(ctx context.Context, groupID string, from, to enums.OrderStatus) (bool, error)
	AttachReceipt(ctx context.Context, groupID, fileID string) error
	SetTracking(ctx context.Context, groupID, trackingNumber string) error
	SetBarcodeURL(ctx context.Context, groupID, barcodeURL string) error

	SaveManagerMessage(ctx context.Context, record *models.ManagerMessage) error
	FindManagerMessage(ctx context.Context, groupID string) (*models.ManagerMessage, error)
	FindManagerMessageByTracking(ctx context.Context, trackingNumber string) (*models.ManagerMessage, error)

	FindOrCreateBuyer(ctx context.Context, chatID int64, username string) (*models.Buyer, error)
	ListBuyers(ctx context.Context) ([]models.Buyer, error)
	FindBuyer(ctx context.Context, id uuid.UUID) (*models.Buyer, error)

	FindProducts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}
