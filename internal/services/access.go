package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/example/nyota/internal/models"
)

// AccessDecision is the outcome of a content authorization check.
type AccessDecision int

const (
	// AccessDenied means no completed purchase covers the asset.
	AccessDenied AccessDecision = iota
	// AccessGranted means the requester may read the content.
	AccessGranted
	// AccessExpired means a subscription was purchased but its interval has
	// lapsed; the caller should prompt for renewal, not hard-deny.
	AccessExpired
)

// intervalDurations maps a subscription interval name to its length.
var intervalDurations = map[string]time.Duration{
	models.IntervalWeekly:    7 * 24 * time.Hour,
	models.IntervalMonthly:   30 * 24 * time.Hour,
	models.IntervalQuarterly: 90 * 24 * time.Hour,
	models.IntervalYearly:    365 * 24 * time.Hour,
}

// IntervalDuration resolves an interval name; unknown names fall back to
// monthly so a bad row never locks a paying customer out.
func IntervalDuration(interval string) time.Duration {
	if d, ok := intervalDurations[interval]; ok {
		return d
	}
	return intervalDurations[models.IntervalMonthly]
}

// SubscriptionActive reports whether a completed subscription purchase still
// covers access at now. A tier-level interval on the purchase row takes
// precedence over the asset's default.
func SubscriptionActive(p *models.PurchaseAttempt, asset *models.DigitalAsset, now time.Time) bool {
	interval := asset.Interval
	if p.TierInterval != "" {
		interval = p.TierInterval
	}
	return now.Before(p.AccessStart().Add(IntervalDuration(interval)))
}

// AccessService decides whether an identity may read a gated asset.
type AccessService struct {
	db     *gorm.DB
	ledger *LedgerService
}

func NewAccessService(db *gorm.DB, ledger *LedgerService) *AccessService {
	return &AccessService{db: db, ledger: ledger}
}

// Authorize checks the identity's latest completed purchase for the asset.
// The caller handles the creator-owner bypass before asking here.
func (a *AccessService) Authorize(ctx context.Context, identity string, asset *models.DigitalAsset, now time.Time) (AccessDecision, error) {
	var customer models.Customer
	if err := a.db.WithContext(ctx).Where("whatsapp_number = ?", identity).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccessDenied, nil
		}
		return AccessDenied, err
	}

	purchase, err := a.ledger.LatestCompleted(ctx, customer.ID, asset.ID)
	if err != nil {
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return AccessDenied, nil
		}
		return AccessDenied, err
	}

	if asset.IsSubscription && !SubscriptionActive(purchase, asset, now) {
		return AccessExpired, nil
	}
	return AccessGranted, nil
}

// PurchasedAssets lists the assets the identity holds a completed purchase
// for, newest purchase first.
func (a *AccessService) PurchasedAssets(ctx context.Context, identity string) ([]models.DigitalAsset, error) {
	var customer models.Customer
	if err := a.db.WithContext(ctx).Where("whatsapp_number = ?", identity).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var assets []models.DigitalAsset
	err := a.db.WithContext(ctx).
		Distinct("digital_assets.*").
		Joins("JOIN purchase_attempts ON purchase_attempts.asset_id = digital_assets.id").
		Where("purchase_attempts.customer_id = ? AND purchase_attempts.status = ?", customer.ID, models.AttemptCompleted).
		Order("digital_assets.created_at desc").
		Find(&assets).Error
	if err != nil {
		return nil, err
	}
	return assets, nil
}
