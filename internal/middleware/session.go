package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	sessionCookie     = "nyota_session"
	sessionContextKey = "currentSessionID"
	cookieMaxAge      = 30 * 24 * time.Hour
)

// SessionMiddleware ensures every request carries an opaque session id cookie
// and exposes it via context. The session state itself lives server-side; the
// cookie is only a handle, so forged cookies name empty sessions.
func SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		sid := c.Cookies(sessionCookie)
		if sid == "" {
			sid = uuid.NewString()
			c.Cookie(&fiber.Cookie{
				Name:     sessionCookie,
				Value:    sid,
				HTTPOnly: true,
				SameSite: "Lax",
				MaxAge:   int(cookieMaxAge.Seconds()),
			})
		}

		c.Locals(sessionContextKey, sid)
		return c.Next()
	}
}

// SessionID returns the request's session id.
func SessionID(c *fiber.Ctx) string {
	if sid, ok := c.Locals(sessionContextKey).(string); ok {
		return sid
	}
	return ""
}
