package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/nyota/internal/config"
	"github.com/example/nyota/internal/models"
	"github.com/example/nyota/internal/routes"
	"github.com/example/nyota/internal/services"
)

// memorySessionStore is a map-backed services.SessionStore for tests.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]services.CustomerSession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]services.CustomerSession)}
}

func (m *memorySessionStore) Get(_ context.Context, sid string) (services.CustomerSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sid], nil
}

func (m *memorySessionStore) Put(_ context.Context, sid string, sess services.CustomerSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sid] = sess
	return nil
}

func (m *memorySessionStore) Clear(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sid)
	return nil
}

type testEnv struct {
	app    *fiber.App
	db     *gorm.DB
	broker *services.Broker
	cfg    *config.Config

	creator *models.Creator
	asset   *models.DigitalAsset
}

// gatewayStub answers every charge with a fixed ref.
func gatewayStub(t *testing.T, ref string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"ref": ref, "status": "pending"})
	}))
}

func newTestEnv(t *testing.T, gatewayURL string) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	for _, model := range []interface{}{
		&models.Creator{},
		&models.Customer{},
		&models.DigitalAsset{},
		&models.AssetFile{},
		&models.PurchaseAttempt{},
	} {
		require.NoError(t, db.AutoMigrate(model))
	}

	creator := &models.Creator{Username: "amina", StoreName: "Amina's Digital Creations", Currency: "TZS"}
	require.NoError(t, db.Create(creator).Error)

	asset := &models.DigitalAsset{
		CreatorID:   creator.ID,
		Title:       "Swahili Cooking Course",
		Slug:        "swahili-cooking-course",
		Price:       10.00,
		Currency:    "TZS",
		IsPublished: true,
	}
	require.NoError(t, db.Create(asset).Error)

	cfg := &config.Config{
		JWTSecret:      "test-secret",
		TokenExpires:   time.Hour,
		GatewayBaseURL: gatewayURL,
		GatewayAPIKey:  "test-key",
		GatewayTimeout: time.Second,
		PublicBaseURL:  "http://store.test",
	}

	broker := services.NewBroker()
	app := fiber.New()
	routes.Register(app, db, cfg, broker, newMemorySessionStore())

	return &testEnv{app: app, db: db, broker: broker, cfg: cfg, creator: creator, asset: asset}
}

// request performs one JSON request, re-sending the session cookie when set.
func (e *testEnv) request(t *testing.T, method, target, cookie string, body any) (*http.Response, string) {
	t.Helper()

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: "nyota_session", Value: cookie})
	}

	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(raw)
}

// sessionCookie extracts the session id set on a response.
func sessionCookie(resp *http.Response) string {
	for _, c := range resp.Cookies() {
		if c.Name == "nyota_session" {
			return c.Value
		}
	}
	return ""
}

func decode(t *testing.T, body string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	return out
}
