package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/utils"
)

// GatewayClient performs the one outbound call per purchase attempt against
// the mobile-money gateway and maps the returned reference onto the ledger.
type GatewayClient struct {
	baseURL     string
	apiKey      string
	callbackURL string
	client      *http.Client
	ledger      *LedgerService
}

// NewGatewayClient constructs a client bounded by the given timeout. A timed
// out call is a failure, never pending-forever.
func NewGatewayClient(baseURL, apiKey, callbackURL string, timeout time.Duration, ledger *LedgerService) *GatewayClient {
	return &GatewayClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
		ledger:      ledger,
	}
}

type chargeRequest struct {
	Reference   string  `json:"reference"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	MSISDN      string  `json:"msisdn"`
	CallbackURL string  `json:"callback_url"`
}

type chargeResponse struct {
	Ref     string `json:"ref"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Initiate asks the gateway to collect from the given identity and attaches
// the returned reference to the attempt. A definitive gateway failure marks
// the attempt FAILED before the error is surfaced. A charge that went out but
// whose ref could not be recorded stays PENDING; the charge may still settle.
func (g *GatewayClient) Initiate(ctx context.Context, attempt *models.PurchaseAttempt, msisdn string) (string, error) {
	payload, err := json.Marshal(chargeRequest{
		Reference:   attempt.TransactionToken,
		Amount:      attempt.Amount,
		Currency:    attempt.Currency,
		MSISDN:      msisdn,
		CallbackURL: g.callbackURL,
	})
	if err != nil {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: err})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/charges", bytes.NewReader(payload))
	if err != nil {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: err})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)})
	}

	var out chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: fmt.Errorf("malformed response: %w", err)})
	}
	if out.Ref == "" {
		return "", g.fail(attempt, &GatewayError{Op: "charge", Err: fmt.Errorf("response missing ref")})
	}

	if err := g.ledger.AttachGatewayRef(ctx, attempt.ID, out.Ref); err != nil {
		// The charge is dispatched but the ledger holds no ref for it. Do not
		// mark FAILED: money may be in flight. Log for reconciliation.
		utils.GetLogger().Error("gateway ref not recorded, attempt stranded PENDING",
			zap.String("attempt_id", attempt.ID.String()),
			zap.String("gateway_ref", out.Ref),
			zap.Error(err))
		return "", err
	}

	utils.GetLogger().Info("gateway charge initiated",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("gateway_ref", out.Ref))
	return out.Ref, nil
}

// fail records the FAILED state on a fresh context: the request context may
// already be dead when the call timed out.
func (g *GatewayClient) fail(attempt *models.PurchaseAttempt, gwErr *GatewayError) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := g.ledger.MarkFailed(ctx, attempt.ID); err != nil {
		utils.GetLogger().Error("failed to mark attempt FAILED after gateway error",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err))
	}
	utils.GetLogger().Warn("gateway charge failed",
		zap.String("attempt_id", attempt.ID.String()),
		zap.Error(gwErr.Err))
	return gwErr
}
