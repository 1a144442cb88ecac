package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/utils"
)

// LedgerService owns the PurchaseAttempt state machine. Every transition is an
// atomic conditional update so concurrent duplicate webhooks serialize on the
// row itself rather than on a read-then-write check.
type LedgerService struct {
	db *gorm.DB
}

func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{db: db}
}

// CreateAttemptInput captures everything known at initiation time.
type CreateAttemptInput struct {
	CustomerID   uuid.UUID
	AssetID      uuid.UUID
	Amount       float64
	Currency     string
	ChannelID    string
	Selection    []byte
	TierInterval string
}

// Create opens a new PENDING attempt and allocates its transaction token.
func (s *LedgerService) Create(ctx context.Context, in CreateAttemptInput) (*models.PurchaseAttempt, error) {
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	attempt := models.PurchaseAttempt{
		TransactionToken: uuid.NewString(),
		CustomerID:       in.CustomerID,
		AssetID:          in.AssetID,
		Amount:           in.Amount,
		Currency:         in.Currency,
		Status:           models.AttemptPending,
		SelectionData:    in.Selection,
		TierInterval:     in.TierInterval,
	}
	if in.ChannelID != "" {
		attempt.NotificationChannelID = &in.ChannelID
	}

	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return nil, err
	}
	return &attempt, nil
}

// AttachGatewayRef binds the gateway's external identifier to an attempt. At
// most one attempt may hold a given ref; the unique index closes the race
// between concurrent attachments. Re-attaching the same ref is a no-op.
func (s *LedgerService) AttachGatewayRef(ctx context.Context, attemptID uuid.UUID, ref string) error {
	if ref == "" {
		return &ValidationError{Field: "gateway_ref", Reason: "must not be empty"}
	}

	var held int64
	if err := s.db.WithContext(ctx).
		Model(&models.PurchaseAttempt{}).
		Where("gateway_ref = ? AND id <> ?", ref, attemptID).
		Count(&held).Error; err != nil {
		return err
	}
	if held > 0 {
		return &ConflictError{Resource: "gateway_ref", Detail: ref + " already attached to another attempt"}
	}

	res := s.db.WithContext(ctx).
		Model(&models.PurchaseAttempt{}).
		Where("id = ? AND gateway_ref IS NULL", attemptID).
		Update("gateway_ref", ref)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return &ConflictError{Resource: "gateway_ref", Detail: ref + " already attached to another attempt"}
		}
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	attempt, err := s.FindByID(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.GatewayRef != nil && *attempt.GatewayRef == ref {
		return nil
	}
	return &ConflictError{Resource: "gateway_ref", Detail: "attempt already holds a different reference"}
}

// MarkCompleted moves a PENDING attempt to COMPLETED and applies the asset's
// sales counter and revenue total in the same transaction, exactly once. An
// already-COMPLETED attempt is a no-op; a FAILED attempt cannot be revived.
func (s *LedgerService) MarkCompleted(ctx context.Context, attemptID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attempt models.PurchaseAttempt
		if err := tx.Where("id = ?", attemptID).First(&attempt).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "purchase attempt"}
			}
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&models.PurchaseAttempt{}).
			Where("id = ? AND status = ?", attemptID, models.AttemptPending).
			Updates(map[string]any{
				"status":       models.AttemptCompleted,
				"completed_at": &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Lost the race or already terminal; reload to find out which.
			if err := tx.Where("id = ?", attemptID).First(&attempt).Error; err != nil {
				return err
			}
			return transitionRefused(attempt.Status, models.AttemptCompleted)
		}

		// We flipped the row, so the aggregates are applied exactly once.
		if err := tx.Model(&models.DigitalAsset{}).
			Where("id = ?", attempt.AssetID).
			Updates(map[string]any{
				"sales_count":   gorm.Expr("sales_count + ?", 1),
				"revenue_total": gorm.Expr("revenue_total + ?", attempt.Amount),
			}).Error; err != nil {
			return err
		}

		utils.GetLogger().Info("purchase attempt completed",
			zap.String("attempt_id", attemptID.String()),
			zap.Float64("amount", attempt.Amount),
			zap.String("currency", attempt.Currency))
		return nil
	})
}

// MarkFailed moves a PENDING attempt to FAILED. Already-FAILED is a no-op; a
// COMPLETED attempt cannot be failed.
func (s *LedgerService) MarkFailed(ctx context.Context, attemptID uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Model(&models.PurchaseAttempt{}).
		Where("id = ? AND status = ?", attemptID, models.AttemptPending).
		Update("status", models.AttemptFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	attempt, err := s.FindByID(ctx, attemptID)
	if err != nil {
		return err
	}
	return transitionRefused(attempt.Status, models.AttemptFailed)
}

// transitionRefused maps a zero-row conditional update onto its outcome:
// reaching the state the attempt already holds is a no-op, any other terminal
// state refuses the transition.
func transitionRefused(current, want models.AttemptStatus) error {
	if current == want {
		return nil
	}
	if current.Terminal() {
		return &InvalidTransitionError{From: string(current), To: string(want)}
	}
	return &ConflictError{Resource: "purchase attempt", Detail: "transition raced an in-flight update"}
}

// FindByID loads an attempt by primary key.
func (s *LedgerService) FindByID(ctx context.Context, attemptID uuid.UUID) (*models.PurchaseAttempt, error) {
	var attempt models.PurchaseAttempt
	if err := s.db.WithContext(ctx).Where("id = ?", attemptID).First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "purchase attempt"}
		}
		return nil, err
	}
	return &attempt, nil
}

// FindByGatewayRef resolves an inbound webhook's external identifier to its
// ledger row. Unknown refs are a NotFoundError, never silently accepted.
func (s *LedgerService) FindByGatewayRef(ctx context.Context, ref string) (*models.PurchaseAttempt, error) {
	var attempt models.PurchaseAttempt
	if err := s.db.WithContext(ctx).Where("gateway_ref = ?", ref).First(&attempt).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "purchase attempt"}
		}
		return nil, err
	}
	return &attempt, nil
}

// LatestCompleted returns the newest COMPLETED attempt a customer holds for an
// asset, or a NotFoundError when they never purchased it.
func (s *LedgerService) LatestCompleted(ctx context.Context, customerID, assetID uuid.UUID) (*models.PurchaseAttempt, error) {
	var attempt models.PurchaseAttempt
	err := s.db.WithContext(ctx).
		Where("customer_id = ? AND asset_id = ? AND status = ?", customerID, assetID, models.AttemptCompleted).
		Order("created_at desc").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "completed purchase"}
		}
		return nil, err
	}
	return &attempt, nil
}
