package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"pocket-bounty/models"
	"pocket-bounty/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupRoutesApp mirrors main.go's wiring: all three route groups on one
// app, registered in the same order.
func setupRoutesApp(t *testing.T) *fiber.App {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	schema := fmt.Sprintf("pb_routes_test_%d", time.Now().UnixNano())
	require.NoError(t, db.Exec("CREATE SCHEMA "+schema).Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Exec("SET search_path TO "+schema).Error)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Bounty{},
		&models.BountyApplication{},
		&models.BountyAttachment{},
		&models.Transaction{},
		&models.PlatformRevenue{},
		&models.Activity{},
		&models.Payment{},
		&models.PaymentMethod{},
		&models.MessageThread{},
		&models.Message{},
		&models.Friendship{},
		&models.Review{},
		&models.Referral{},
	))
	t.Cleanup(func() {
		_ = db.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = sqlDB.Close()
	})

	fees := services.DefaultFeePolicy
	ledger := services.NewLedgerService(db)
	payments := &services.PaymentsClient{BaseURL: "http://provider.invalid", APIKey: "test", Client: http.DefaultClient}
	hub := services.NewHub()

	app := fiber.New()
	SetupBountyRoutes(app, services.NewBountyService(db, ledger, fees))
	SetupWalletRoutes(app,
		services.NewWalletService(db, ledger, fees, payments),
		services.NewPointsService(db, ledger, payments),
		services.NewStatsService(db))
	SetupSocialRoutes(app,
		services.NewMessageService(db, hub),
		services.NewFriendService(db),
		services.NewReviewService(db),
		hub)
	return app
}

func requestStatus(t *testing.T, app *fiber.App, method, path string, headers map[string]string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestPublicRoutesNeedNoUserContext(t *testing.T) {
	app := setupRoutesApp(t)

	// The documented-public endpoints answer without gateway user headers,
	// regardless of how many secured routes were registered before them.
	assert.Equal(t, fiber.StatusOK, requestStatus(t, app, "GET", "/bounties", nil))
	assert.Equal(t, fiber.StatusOK, requestStatus(t, app, "GET", "/points/packages", nil))
	assert.Equal(t, fiber.StatusOK, requestStatus(t, app, "GET", "/users/someone/reviews", nil))

	// Public lookup of a missing bounty is a 404, not an auth failure.
	assert.Equal(t, fiber.StatusNotFound, requestStatus(t, app, "GET", "/bounties/no-such-slug", nil))
}

func TestSecuredRoutesRejectMissingUserContext(t *testing.T) {
	app := setupRoutesApp(t)

	for _, route := range []struct {
		method, path string
	}{
		{"POST", "/bounties"},
		{"GET", "/user/wallet"},
		{"GET", "/user/transactions"},
		{"POST", "/payments/withdraw"},
		{"POST", "/points/purchase"},
		{"GET", "/messages/threads"},
		{"GET", "/friends"},
		{"GET", "/creator/stats"},
	} {
		assert.Equal(t, fiber.StatusUnauthorized,
			requestStatus(t, app, route.method, route.path, nil),
			"%s %s should require user context", route.method, route.path)
	}

	// With the gateway headers present the same routes pass the middleware.
	assert.Equal(t, fiber.StatusOK, requestStatus(t, app, "GET", "/user/wallet",
		map[string]string{"X-User-ID": "someone"}))
}
