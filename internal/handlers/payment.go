package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/metrics"
	"github.com/example/nyota/internal/middleware"
	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/services"
	"github.com/example/nyota/internal/utils"
)

const (
	defaultStreamBudget = 60 * time.Second
	defaultKeepalive    = 15 * time.Second
)

// PaymentHandler drives the purchase pipeline: initiation, the gateway
// webhook, and both read paths (SSE push and status poll) over the ledger.
type PaymentHandler struct {
	db       *gorm.DB
	ledger   *services.LedgerService
	gateway  *services.GatewayClient
	broker   *services.Broker
	sessions *services.SessionService
	cfg      *config.Config
}

func NewPaymentHandler(db *gorm.DB, ledger *services.LedgerService, gateway *services.GatewayClient, broker *services.Broker, sessions *services.SessionService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{
		db:       db,
		ledger:   ledger,
		gateway:  gateway,
		broker:   broker,
		sessions: sessions,
		cfg:      cfg,
	}
}

type tierSelection struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Interval string  `json:"interval"`
}

type initiatePaymentRequest struct {
	CustomerIdentity string          `json:"customer_identity"`
	AssetID          string          `json:"asset_id"`
	ChannelID        string          `json:"channel_id"`
	Tier             json.RawMessage `json:"tier"`
}

// Initiate opens a PENDING attempt, claims the identity on the session and
// performs the outbound gateway call. The gateway resolves asynchronously via
// the webhook; this response only says the charge was dispatched.
func (h *PaymentHandler) Initiate(c *fiber.Ctx) error {
	var req initiatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body.",
		})
	}

	req.CustomerIdentity = strings.TrimSpace(req.CustomerIdentity)
	if req.CustomerIdentity == "" || req.AssetID == "" || req.ChannelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Missing required data.",
		})
	}

	assetID, err := uuid.Parse(req.AssetID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid asset id.",
		})
	}

	var asset models.DigitalAsset
	if err := h.db.Where("id = ? AND is_published = ?", assetID, true).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Asset not found.",
			})
		}
		return err
	}

	customer := models.Customer{WhatsappNumber: req.CustomerIdentity}
	if err := h.db.Where("whatsapp_number = ?", req.CustomerIdentity).FirstOrCreate(&customer).Error; err != nil {
		return err
	}

	if err := h.sessions.Claim(c.UserContext(), middleware.SessionID(c), req.CustomerIdentity); err != nil {
		return err
	}

	amount := asset.Price
	tierInterval := ""
	if len(req.Tier) > 0 {
		var tier tierSelection
		if err := json.Unmarshal(req.Tier, &tier); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid tier selection.",
			})
		}
		if tier.Price > 0 {
			amount = tier.Price
		}
		tierInterval = tier.Interval
	}

	attempt, err := h.ledger.Create(c.UserContext(), services.CreateAttemptInput{
		CustomerID:   customer.ID,
		AssetID:      asset.ID,
		Amount:       amount,
		Currency:     asset.Currency,
		ChannelID:    req.ChannelID,
		Selection:    req.Tier,
		TierInterval: tierInterval,
	})
	if err != nil {
		return httpError(err)
	}
	metrics.PaymentsInitiatedTotal.Inc()

	ref, err := h.gateway.Initiate(c.UserContext(), attempt, req.CustomerIdentity)
	if err != nil {
		var gwErr *services.GatewayError
		if errors.As(err, &gwErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success":    false,
				"message":    "We could not reach the payment provider. Please try again.",
				"attempt_id": attempt.ID,
			})
		}
		return httpError(err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"message":     "Payment initiated. Please check your phone to authorize the transaction.",
		"attempt_id":  attempt.ID,
		"gateway_ref": ref,
	})
}

type webhookRequest struct {
	GatewayRef string `json:"gateway_ref"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// Webhook receives the gateway's asynchronous callback. It is safe to invoke
// any number of times for the same event: a ref already COMPLETED is
// re-acknowledged without re-applying side effects, and all internal errors
// come back non-2xx so the gateway retries.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	log := utils.GetLogger()

	var creator models.Creator
	if err := h.db.First(&creator).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	if creator.WebhookSecretConfigured() {
		if !utils.CheckSecret(creator.WebhookSecretHash, c.Query("secret")) {
			metrics.WebhookEventsTotal.WithLabelValues("forbidden").Inc()
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"status":  "error",
				"message": "invalid webhook secret",
			})
		}
	} else {
		// Callbacks are accepted unauthenticated until the creator
		// configures a secret.
		log.Warn("webhook secret not configured, accepting unauthenticated callback")
	}

	var req webhookRequest
	if err := c.BodyParser(&req); err != nil || req.GatewayRef == "" {
		metrics.WebhookEventsTotal.WithLabelValues("invalid").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "gateway_ref is required",
		})
	}

	attempt, err := h.ledger.FindByGatewayRef(c.UserContext(), req.GatewayRef)
	if err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			metrics.WebhookEventsTotal.WithLabelValues("unknown_ref").Inc()
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"status":  "error",
				"message": "unknown gateway reference",
			})
		}
		return err
	}

	if attempt.Status == models.AttemptCompleted {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		return c.JSON(fiber.Map{"status": "ok", "message": "already processed"})
	}

	if failedCallback(req.Status) {
		if err := h.ledger.MarkFailed(c.UserContext(), attempt.ID); err != nil {
			return httpError(err)
		}
		h.notify(attempt, services.PaymentEvent{
			Status:  services.EventFailed,
			Message: "Payment failed. Please check your phone and try again.",
		})
		metrics.WebhookEventsTotal.WithLabelValues("failed").Inc()
		return c.JSON(fiber.Map{"status": "ok", "message": "failure recorded"})
	}

	if err := h.ledger.MarkCompleted(c.UserContext(), attempt.ID); err != nil {
		return httpError(err)
	}
	metrics.PaymentsCompletedTotal.Inc()
	metrics.WebhookEventsTotal.WithLabelValues("completed").Inc()

	h.notify(attempt, services.PaymentEvent{
		Status:      services.EventSuccess,
		Message:     "Payment confirmed!",
		RedirectURL: h.cfg.PublicBaseURL + "/library",
	})

	log.Info("webhook processed",
		zap.String("gateway_ref", req.GatewayRef),
		zap.String("attempt_id", attempt.ID.String()))
	return c.JSON(fiber.Map{"status": "ok", "message": "payment recorded"})
}

// notify publishes the terminal event and retires the channel. Absence of a
// live listener is not an error; the status poll covers it.
func (h *PaymentHandler) notify(attempt *models.PurchaseAttempt, event services.PaymentEvent) {
	if attempt.NotificationChannelID == nil {
		return
	}
	h.broker.Publish(*attempt.NotificationChannelID, event)
	h.broker.Cleanup(*attempt.NotificationChannelID)
}

// Stream is the SSE push path: it blocks on the notification channel, emits
// keepalive comments while waiting and closes after one terminal frame. The
// 60s budget ends with a TIMEOUT frame; the client falls back to polling.
func (h *PaymentHandler) Stream(c *fiber.Ctx) error {
	channelID := c.Params("channel_id")
	if channelID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "channel_id is required")
	}

	ch := h.broker.Subscribe(channelID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	budget := h.cfg.StreamBudget
	if budget <= 0 {
		budget = defaultStreamBudget
	}
	interval := h.cfg.Keepalive
	if interval <= 0 {
		interval = defaultKeepalive
	}

	metrics.PaymentStreamsActive.Inc()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer metrics.PaymentStreamsActive.Dec()

		deadline := time.NewTimer(budget)
		defer deadline.Stop()
		keepalive := time.NewTicker(interval)
		defer keepalive.Stop()

		for {
			select {
			case event := <-ch:
				writeSSE(w, event)
				return
			case <-keepalive.C:
				if _, err := w.WriteString(": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-deadline.C:
				writeSSE(w, services.PaymentEvent{
					Status:  services.EventTimeout,
					Message: "Payment request timed out.",
				})
				return
			}
		}
	})

	return nil
}

// Status is the pull fallback: it re-reads the ledger directly, so a missed
// push never strands the client.
func (h *PaymentHandler) Status(c *fiber.Ctx) error {
	attempt, err := h.authorizedAttempt(c)
	if err != nil {
		return err
	}

	resp := fiber.Map{"status": attempt.Status}
	if attempt.Status == models.AttemptCompleted {
		resp["redirect_url"] = h.cfg.PublicBaseURL + "/library"
	}
	return c.JSON(resp)
}

// Finalize promotes the session to VERIFIED once the attempt is COMPLETED and
// belongs to the identity the session claims.
func (h *PaymentHandler) Finalize(c *fiber.Ctx) error {
	attempt, err := h.authorizedAttempt(c)
	if err != nil {
		return err
	}

	if attempt.Status != models.AttemptCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"success": false,
			"message": "Payment not yet confirmed.",
		})
	}

	var customer models.Customer
	if err := h.db.Where("id = ?", attempt.CustomerID).First(&customer).Error; err != nil {
		return err
	}
	if err := h.sessions.Verify(c.UserContext(), middleware.SessionID(c), customer.WhatsappNumber); err != nil {
		return httpError(err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"redirect_url": h.cfg.PublicBaseURL + "/library",
	})
}

// CancelClaim drops an unverified identity claim. It never downgrades a
// VERIFIED session and never touches the attempt: a pending charge stays
// pending until the gateway resolves it.
func (h *PaymentHandler) CancelClaim(c *fiber.Ctx) error {
	if err := h.sessions.CancelClaim(c.UserContext(), middleware.SessionID(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// authorizedAttempt loads the attempt named in the path and checks it belongs
// to the identity the session claims.
func (h *PaymentHandler) authorizedAttempt(c *fiber.Ctx) (*models.PurchaseAttempt, error) {
	attemptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid attempt id")
	}

	attempt, err := h.ledger.FindByID(c.UserContext(), attemptID)
	if err != nil {
		return nil, httpError(err)
	}

	sess, err := h.sessions.Current(c.UserContext(), middleware.SessionID(c))
	if err != nil {
		return nil, err
	}

	var customer models.Customer
	if err := h.db.Where("id = ?", attempt.CustomerID).First(&customer).Error; err != nil {
		return nil, err
	}
	if sess.Identity == "" || sess.Identity != customer.WhatsappNumber {
		return nil, fiber.NewError(fiber.StatusForbidden, "session identity mismatch")
	}

	return attempt, nil
}

func failedCallback(status string) bool {
	switch strings.ToUpper(status) {
	case "FAILED", "CANCELLED", "DECLINED":
		return true
	}
	return false
}

func writeSSE(w *bufio.Writer, event services.PaymentEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
	_ = w.Flush()
}
