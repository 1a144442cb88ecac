package models

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the payment state of a PurchaseAttempt. Transitions are
// forward-only: PENDING may become COMPLETED or FAILED, terminal states never
// change again.
type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "PENDING"
	AttemptCompleted AttemptStatus = "COMPLETED"
	AttemptFailed    AttemptStatus = "FAILED"
)

// Terminal reports whether no further transition is permitted.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptCompleted || s == AttemptFailed
}

// PurchaseAttempt is the ledger row for one payment attempt and the single
// source of truth for its state.
type PurchaseAttempt struct {
	BaseModel
	TransactionToken      string        `gorm:"uniqueIndex" json:"transaction_token"`
	CustomerID            uuid.UUID     `gorm:"type:uuid;index" json:"customer_id"`
	AssetID               uuid.UUID     `gorm:"type:uuid;index" json:"asset_id"`
	Amount                float64       `json:"amount"`
	Currency              string        `json:"currency"`
	Status                AttemptStatus `gorm:"index;default:PENDING" json:"status"`
	GatewayRef            *string       `gorm:"uniqueIndex" json:"gateway_ref"`
	NotificationChannelID *string       `json:"notification_channel_id"`
	SelectionData         []byte        `gorm:"type:jsonb" json:"selection_data"`
	TierInterval          string        `json:"tier_interval"`
	CompletedAt           *time.Time    `json:"completed_at"`
}

// AccessStart is the moment a subscription window opens: the completion time
// when known, the creation time otherwise.
func (p *PurchaseAttempt) AccessStart() time.Time {
	if p.CompletedAt != nil {
		return *p.CompletedAt
	}
	return p.CreatedAt
}
