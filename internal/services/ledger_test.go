package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/nyota/internal/models"
)

func createAttempt(t *testing.T, ledger *LedgerService, customerID, assetID uuid.UUID, amount float64) *models.PurchaseAttempt {
	t.Helper()
	attempt, err := ledger.Create(context.Background(), CreateAttemptInput{
		CustomerID: customerID,
		AssetID:    assetID,
		Amount:     amount,
		Currency:   "TZS",
		ChannelID:  "chan-1",
	})
	require.NoError(t, err)
	return attempt
}

func TestCreateStartsPendingWithToken(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)

	attempt := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)

	assert.Equal(t, models.AttemptPending, attempt.Status)
	assert.NotEmpty(t, attempt.TransactionToken)
	require.NotNil(t, attempt.NotificationChannelID)
	assert.Equal(t, "chan-1", *attempt.NotificationChannelID)
	assert.Nil(t, attempt.GatewayRef)
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)

	_, err := ledger.Create(context.Background(), CreateAttemptInput{
		CustomerID: customer.ID,
		AssetID:    asset.ID,
		Amount:     0,
	})

	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)
}

func TestAttachGatewayRef(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)
	ctx := context.Background()

	first := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)
	second := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)

	require.NoError(t, ledger.AttachGatewayRef(ctx, first.ID, "ref-X"))

	// Re-attaching the same ref to the same attempt is idempotent.
	require.NoError(t, ledger.AttachGatewayRef(ctx, first.ID, "ref-X"))

	// A second attempt may never claim the same ref.
	err := ledger.AttachGatewayRef(ctx, second.ID, "ref-X")
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)

	// An attempt holding one ref cannot be re-pointed at another.
	err = ledger.AttachGatewayRef(ctx, first.ID, "ref-Y")
	assert.ErrorAs(t, err, &conflict)
}

func TestMarkCompletedAppliesAggregatesExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)
	ctx := context.Background()

	attempt := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)

	require.NoError(t, ledger.MarkCompleted(ctx, attempt.ID))
	// Duplicate webhook: no error, no second aggregate bump.
	require.NoError(t, ledger.MarkCompleted(ctx, attempt.ID))

	var reloaded models.DigitalAsset
	require.NoError(t, db.First(&reloaded, "id = ?", asset.ID).Error)
	assert.Equal(t, int64(1), reloaded.SalesCount)
	assert.InDelta(t, 10.00, reloaded.RevenueTotal, 1e-9)

	updated, err := ledger.FindByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AttemptCompleted, updated.Status)
	assert.NotNil(t, updated.CompletedAt)
}

func TestAttemptStatusTerminal(t *testing.T) {
	assert.False(t, models.AttemptPending.Terminal())
	assert.True(t, models.AttemptCompleted.Terminal())
	assert.True(t, models.AttemptFailed.Terminal())
}

func TestTerminalStatesAreFinal(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)
	ctx := context.Background()

	failed := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)
	require.NoError(t, ledger.MarkFailed(ctx, failed.ID))
	require.NoError(t, ledger.MarkFailed(ctx, failed.ID)) // no-op

	var transition *InvalidTransitionError
	assert.ErrorAs(t, ledger.MarkCompleted(ctx, failed.ID), &transition)

	completed := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)
	require.NoError(t, ledger.MarkCompleted(ctx, completed.ID))
	assert.ErrorAs(t, ledger.MarkFailed(ctx, completed.ID), &transition)

	// The failed attempt contributed nothing to the aggregates.
	var reloaded models.DigitalAsset
	require.NoError(t, db.First(&reloaded, "id = ?", asset.ID).Error)
	assert.Equal(t, int64(1), reloaded.SalesCount)
}

func TestFindByGatewayRefUnknownRef(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)

	_, err := ledger.FindByGatewayRef(context.Background(), "never-issued")

	var notFound *NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestLatestCompletedPicksNewest(t *testing.T) {
	db := newTestDB(t)
	ledger := NewLedgerService(db)
	customer, asset := seedPurchaseGraph(t, db)
	ctx := context.Background()

	old := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)
	require.NoError(t, ledger.MarkCompleted(ctx, old.ID))

	pending := createAttempt(t, ledger, customer.ID, asset.ID, 10.00)

	got, err := ledger.LatestCompleted(ctx, customer.ID, asset.ID)
	require.NoError(t, err)
	assert.Equal(t, old.ID, got.ID)
	assert.NotEqual(t, pending.ID, got.ID)
}
