package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/nyota/internal/middleware"
	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/utils"
)

// AdminHandler exposes the creator-facing views of the ledger and the typed
// settings the payment pipeline reads.
type AdminHandler struct {
	db *gorm.DB
}

func NewAdminHandler(db *gorm.DB) *AdminHandler {
	return &AdminHandler{db: db}
}

// ListAttempts returns purchase attempt history, optionally filtered.
func (h *AdminHandler) ListAttempts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.PurchaseAttempt{})

	if status := strings.TrimSpace(c.Query("status")); status != "" {
		switch models.AttemptStatus(strings.ToUpper(status)) {
		case models.AttemptPending, models.AttemptCompleted, models.AttemptFailed:
			query = query.Where("status = ?", strings.ToUpper(status))
		default:
			return fiber.NewError(fiber.StatusBadRequest, "invalid status")
		}
	}
	if assetID := strings.TrimSpace(c.Query("asset_id")); assetID != "" {
		parsed, err := uuid.Parse(assetID)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid asset_id")
		}
		query = query.Where("asset_id = ?", parsed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var attempts []models.PurchaseAttempt
	if err := query.
		Order("created_at desc").
		Limit(pg.Limit).
		Offset(pg.Offset).
		Find(&attempts).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    attempts,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type updateSettingsRequest struct {
	StoreName     string `json:"store_name"`
	Currency      string `json:"currency"`
	WebhookSecret string `json:"webhook_secret"`
}

// UpdateSettings writes the typed creator settings. The webhook secret is
// stored hashed; rotating it takes effect on the next callback.
func (h *AdminHandler) UpdateSettings(c *fiber.Ctx) error {
	creatorID, ok := middleware.GetCurrentCreatorID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	updates := map[string]any{}
	if req.StoreName != "" {
		updates["store_name"] = req.StoreName
	}
	if req.Currency != "" {
		updates["currency"] = strings.ToUpper(req.Currency)
	}
	if req.WebhookSecret != "" {
		hash, err := utils.HashSecret(req.WebhookSecret)
		if err != nil {
			return err
		}
		updates["webhook_secret_hash"] = hash
	}
	if len(updates) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "nothing to update")
	}

	res := h.db.Model(&models.Creator{}).Where("id = ?", creatorID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fiber.NewError(fiber.StatusNotFound, "creator not found")
	}

	return c.JSON(fiber.Map{"success": true})
}
