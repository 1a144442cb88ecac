package models

import (
	"github.com/google/uuid"
)

// Subscription intervals accepted on assets and pricing tiers.
const (
	IntervalWeekly    = "weekly"
	IntervalMonthly   = "monthly"
	IntervalQuarterly = "quarterly"
	IntervalYearly    = "yearly"
)

// DigitalAsset is anything the creator sells: a course, a ticket, a subscription.
type DigitalAsset struct {
	BaseModel
	CreatorID      uuid.UUID   `gorm:"type:uuid;index" json:"creator_id"`
	Title          string      `json:"title"`
	Slug           string      `gorm:"uniqueIndex" json:"slug"`
	Description    string      `json:"description"`
	Price          float64     `json:"price"`
	Currency       string      `json:"currency"`
	IsPublished    bool        `gorm:"index" json:"is_published"`
	IsSubscription bool        `json:"is_subscription"`
	Interval       string      `json:"interval"`
	SalesCount     int64       `json:"sales_count"`
	RevenueTotal   float64     `json:"revenue_total"`
	Files          []AssetFile `gorm:"foreignKey:AssetID" json:"files,omitempty"`
}

// AssetFile is one downloadable file belonging to an asset.
type AssetFile struct {
	BaseModel
	AssetID     uuid.UUID `gorm:"type:uuid;index" json:"asset_id"`
	FileName    string    `json:"file_name"`
	StoragePath string    `json:"-"`
	FileType    string    `json:"file_type"`
	Position    int       `json:"position"`
}
