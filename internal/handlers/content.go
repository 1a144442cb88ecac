package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/middleware"
	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/services"
)

// ContentHandler serves the customer library and gated file fetches.
type ContentHandler struct {
	db       *gorm.DB
	access   *services.AccessService
	sessions *services.SessionService
	cfg      *config.Config
}

func NewContentHandler(db *gorm.DB, access *services.AccessService, sessions *services.SessionService, cfg *config.Config) *ContentHandler {
	return &ContentHandler{db: db, access: access, sessions: sessions, cfg: cfg}
}

// Library lists the assets the verified session identity has purchased.
func (h *ContentHandler) Library(c *fiber.Ctx) error {
	sess, err := h.sessions.Current(c.UserContext(), middleware.SessionID(c))
	if err != nil {
		return err
	}
	if !sess.Verified {
		return fiber.NewError(fiber.StatusForbidden, "verification required")
	}

	assets, err := h.access.PurchasedAssets(c.UserContext(), sess.Identity)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    assets,
	})
}

// File authorizes and resolves a single gated asset file. The asset's own
// creator always passes; everyone else needs a verified session holding a
// completed purchase, still active for subscription assets.
func (h *ContentHandler) File(c *fiber.Ctx) error {
	assetID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid asset id")
	}
	fileID, err := uuid.Parse(c.Params("file_id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid file id")
	}

	var asset models.DigitalAsset
	if err := h.db.Where("id = ?", assetID).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "asset not found")
		}
		return err
	}

	var file models.AssetFile
	if err := h.db.Where("id = ? AND asset_id = ?", fileID, assetID).First(&file).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "file not found")
		}
		return err
	}

	if creatorID, ok := middleware.CreatorFromRequest(h.cfg, c); !ok || creatorID != asset.CreatorID {
		sess, err := h.sessions.Current(c.UserContext(), middleware.SessionID(c))
		if err != nil {
			return err
		}
		if !sess.Verified {
			return fiber.NewError(fiber.StatusForbidden, "verification required")
		}

		decision, err := h.access.Authorize(c.UserContext(), sess.Identity, &asset, time.Now())
		if err != nil {
			return err
		}
		switch decision {
		case services.AccessGranted:
		case services.AccessExpired:
			// Expired is a renew prompt, distinct from never-purchased.
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"success": false,
				"renew":   true,
				"message": "Your subscription has expired. Renew to regain access.",
			})
		default:
			return fiber.NewError(fiber.StatusForbidden, "purchase required")
		}
	}

	return c.JSON(fiber.Map{
		"file_name": file.FileName,
		"file_type": file.FileType,
		"url":       file.StoragePath,
	})
}
