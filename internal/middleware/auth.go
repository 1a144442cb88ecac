package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/utils"
)

const creatorContextKey = "currentCreatorID"

// CreatorAuthMiddleware validates JWT tokens minted by the creator identity
// provider and loads the creator ID into context.
func CreatorAuthMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		creatorID, err := creatorFromHeader(cfg, c)
		if err != nil {
			return err
		}

		c.Locals(creatorContextKey, creatorID)
		return c.Next()
	}
}

// GetCurrentCreatorID extracts the authenticated creator ID from context.
func GetCurrentCreatorID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(creatorContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// CreatorFromRequest resolves an optional bearer token outside the guarded
// route group, for the owner bypass on content fetches.
func CreatorFromRequest(cfg *config.Config, c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := creatorFromHeader(cfg, c)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

func creatorFromHeader(cfg *config.Config, c *fiber.Ctx) (uuid.UUID, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
	}

	creatorID, err := utils.ParseToken(cfg.JWTSecret, parts[1])
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
	}

	return creatorID, nil
}
