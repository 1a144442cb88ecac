package models

// Creator is the store owner. Authentication happens in an external identity
// provider; this row only carries the typed settings the payment pipeline needs.
type Creator struct {
	BaseModel
	Username          string `gorm:"uniqueIndex" json:"username"`
	StoreName         string `json:"store_name"`
	Currency          string `gorm:"default:TZS" json:"currency"`
	WebhookSecretHash string `json:"-"`
	GatewayAPIKey     string `json:"-"`
}

// WebhookSecretConfigured reports whether inbound callbacks can be verified.
func (c *Creator) WebhookSecretConfigured() bool {
	return c.WebhookSecretHash != ""
}
