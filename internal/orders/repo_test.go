package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/vorobeishop/storefront-backend/pkg/db/models"
	"github.com/vorobeishop/storefront-backend/pkg/enums"
	pkgerrors "github.com/vorobeishop/storefront-backend/pkg/errors"
)

func setupOrdersTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	buyers := `
CREATE TABLE IF NOT EXISTS buyers (
  id TEXT PRIMARY KEY,
  chat_id INTEGER NOT NULL UNIQUE,
  username TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	orderLines := `
CREATE TABLE IF NOT EXISTS order_lines (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  product_name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price INTEGER NOT NULL,
  line_total INTEGER NOT NULL,
  surname TEXT NOT NULL,
  first_name TEXT NOT NULL,
  middle_name TEXT,
  phone TEXT NOT NULL,
  country TEXT NOT NULL,
  city TEXT,
  address TEXT,
  pickup_point_code TEXT,
  postal_index TEXT,
  region TEXT,
  tariff_code INTEGER NOT NULL DEFAULT 0,
  delivery_cost INTEGER NOT NULL DEFAULT 0,
  cod_allowed INTEGER NOT NULL DEFAULT 0,
  carrier TEXT NOT NULL DEFAULT 'cdek',
  status TEXT NOT NULL DEFAULT 'waitpay',
  tracking_number TEXT,
  receipt_file_id TEXT,
  barcode_url TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	managerMessages := `
CREATE TABLE IF NOT EXISTS manager_messages (
  id TEXT PRIMARY KEY,
  group_id TEXT NOT NULL UNIQUE,
  buyer_prompt_message_id INTEGER,
  approval_message_id INTEGER,
  fulfillment_message_id INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`
	products := `
CREATE TABLE IF NOT EXISTS products (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  synonym TEXT NOT NULL,
  price INTEGER NOT NULL,
  unit_weight_grams INTEGER NOT NULL DEFAULT 0,
  bulky INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(buyers).Error)
	require.NoError(t, db.Exec(orderLines).Error)
	require.NoError(t, db.Exec(managerMessages).Error)
	require.NoError(t, db.Exec(products).Error)
	return db
}

func seedLines(t *testing.T, repo Repository, buyerID uuid.UUID, status enums.OrderStatus, count int) string {
	t.Helper()

	groupID := uuid.NewString()
	lines := make([]models.OrderLine, 0, count)
	for i := 0; i < count; i++ {
		lines = append(lines, models.OrderLine{
			ID:          uuid.New(),
			GroupID:     groupID,
			BuyerID:     buyerID,
			ProductID:   uuid.New(),
			ProductName: "Коллаген",
			Qty:         1 + i,
			UnitPrice:   1200,
			LineTotal:   (1 + i) * 1200,
			Surname:     "Петров",
			FirstName:   "Пётр",
			Phone:       "+79990001122",
			Country:     "RU",
			Carrier:     enums.CarrierCdek,
			Status:      status,
			CreatedAt:   time.Now().Add(time.Duration(i) * time.Millisecond),
		})
	}
	require.NoError(t, repo.CreateLines(context.Background(), lines))
	return groupID
}

func TestUpdateStatusIfClaimsWholeGroup(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()
	groupID := seedLines(t, repo, uuid.New(), enums.OrderStatusWaitPay, 3)

	claimed, err := repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusWaitPay, enums.OrderStatusProcessing)
	require.NoError(t, err)
	require.True(t, claimed)

	lines, err := repo.FindByGroup(ctx, groupID)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	for _, line := range lines {
		assert.Equal(t, enums.OrderStatusProcessing, line.Status)
	}

	claimed, err = repo.UpdateStatusIf(ctx, groupID, enums.OrderStatusWaitPay, enums.OrderStatusProcessing)
	require.NoError(t, err)
	assert.False(t, claimed, "second claim must lose")
}

func TestUpdateStatusIfIgnoresOtherGroups(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()
	buyerID := uuid.New()
	first := seedLines(t, repo, buyerID, enums.OrderStatusWaitPay, 1)
	second := seedLines(t, repo, buyerID, enums.OrderStatusWaitPay, 1)

	claimed, err := repo.UpdateStatusIf(ctx, first, enums.OrderStatusWaitPay, enums.OrderStatusCancelled)
	require.NoError(t, err)
	require.True(t, claimed)

	lines, err := repo.FindByGroup(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusWaitPay, lines[0].Status)
}

func TestFindByGroupMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	_, err := repo.FindByGroup(context.Background(), uuid.NewString())
	coded := pkgerrors.As(err)
	require.NotNil(t, coded)
	assert.Equal(t, pkgerrors.CodeNotFound, coded.Code())
}

func TestFindLiveByBuyerSkipsSettledGroups(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()
	buyerID := uuid.New()

	live := seedLines(t, repo, buyerID, enums.OrderStatusWaitPay, 2)
	seedLines(t, repo, buyerID, enums.OrderStatusSuccess, 1)
	seedLines(t, repo, buyerID, enums.OrderStatusCancelled, 1)
	seedLines(t, repo, buyerID, enums.OrderStatusRejected, 1)

	lines, err := repo.FindLiveByBuyer(ctx, buyerID)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.Equal(t, live, line.GroupID)
	}
}

func TestFindGroupsInStatusIsDistinct(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()

	groupID := seedLines(t, repo, uuid.New(), enums.OrderStatusWaitPay, 3)
	seedLines(t, repo, uuid.New(), enums.OrderStatusPending, 2)

	groups, err := repo.FindGroupsInStatus(ctx, enums.OrderStatusWaitPay)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, groupID, groups[0])
}

func TestFindStaleWaitPayGroupsFiltersByAge(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	staleGroup := seedLines(t, repo, uuid.New(), enums.OrderStatusWaitPay, 1)
	seedLines(t, repo, uuid.New(), enums.OrderStatusWaitPay, 1)
	require.NoError(t, db.Exec(
		"UPDATE order_lines SET created_at = ? WHERE group_id = ?",
		time.Now().Add(-3*time.Hour), staleGroup,
	).Error)

	groups, err := repo.FindStaleWaitPayGroups(ctx, time.Now().Add(-90*time.Minute))
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, staleGroup, groups[0])
}

func TestAttachReceiptAndTracking(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()
	groupID := seedLines(t, repo, uuid.New(), enums.OrderStatusWaitPay, 2)

	require.NoError(t, repo.AttachReceipt(ctx, groupID, "file-abc"))
	require.NoError(t, repo.SetTracking(ctx, groupID, "TRACK-9"))
	require.NoError(t, repo.SetBarcodeURL(ctx, groupID, "https://files.example/b.pdf"))

	lines, err := repo.FindByTracking(ctx, "TRACK-9")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	for _, line := range lines {
		require.NotNil(t, line.ReceiptFileID)
		assert.Equal(t, "file-abc", *line.ReceiptFileID)
		require.NotNil(t, line.BarcodeURL)
		assert.Equal(t, groupID, line.GroupID)
	}
}

func TestSaveManagerMessageUpserts(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()
	groupID := uuid.NewString()

	promptID := 101
	require.NoError(t, repo.SaveManagerMessage(ctx, &models.ManagerMessage{
		GroupID:              groupID,
		BuyerPromptMessageID: &promptID,
	}))

	record, err := repo.FindManagerMessage(ctx, groupID)
	require.NoError(t, err)
	approvalID := 202
	record.ApprovalMessageID = &approvalID
	require.NoError(t, repo.SaveManagerMessage(ctx, record))

	record, err = repo.FindManagerMessage(ctx, groupID)
	require.NoError(t, err)
	require.NotNil(t, record.BuyerPromptMessageID)
	assert.Equal(t, 101, *record.BuyerPromptMessageID)
	require.NotNil(t, record.ApprovalMessageID)
	assert.Equal(t, 202, *record.ApprovalMessageID)
}

func TestFindOrCreateBuyerRefreshesUsername(t *testing.T) {
	t.Parallel()

	repo := NewRepository(setupOrdersTestDB(t))
	ctx := context.Background()

	created, err := repo.FindOrCreateBuyer(ctx, 42, "old_name")
	require.NoError(t, err)
	require.NotNil(t, created.Username)

	found, err := repo.FindOrCreateBuyer(ctx, 42, "new_name")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	require.NotNil(t, found.Username)
	assert.Equal(t, "new_name", *found.Username)

	loaded, err := repo.FindBuyer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), loaded.ChatID)
}

func TestFindProductsReturnsOnlyRequested(t *testing.T) {
	t.Parallel()

	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	wanted := models.Product{ID: uuid.New(), Name: "Магний", Synonym: "магний", Price: 900, UnitWeightGrams: 250}
	other := models.Product{ID: uuid.New(), Name: "Цинк", Synonym: "цинк", Price: 700, UnitWeightGrams: 150}
	require.NoError(t, db.Create(&wanted).Error)
	require.NoError(t, db.Create(&other).Error)

	products, err := repo.FindProducts(ctx, []uuid.UUID{wanted.ID})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Магний", products[wanted.ID].Name)
}
