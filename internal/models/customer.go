package models

// Customer is a buyer, identified uniquely by a WhatsApp number.
type Customer struct {
	BaseModel
	WhatsappNumber string `gorm:"uniqueIndex" json:"whatsapp_number"`
}
