package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newBountyTestApp wires the bounty handlers behind a middleware that reads
// the user identity straight from X-User-ID, standing in for the gateway.
func newBountyTestApp(db *gorm.DB) (*fiber.App, *BountyService) {
	ledger := NewLedgerService(db)
	svc := NewBountyService(db, ledger, DefaultFeePolicy)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User-ID"))
		return c.Next()
	})
	app.Post("/bounties", svc.CreateBounty)
	app.Get("/bounties", svc.GetBounties)
	app.Get("/bounties/:id", svc.GetBounty)
	app.Post("/bounties/:id/apply", svc.ApplyToBounty)
	app.Post("/bounties/:id/applications/:appID/accept", svc.AcceptApplication)
	app.Post("/bounties/:id/complete", svc.CompleteBounty)
	return app, svc
}

func fundUser(t *testing.T, ledger *LedgerService, userID string, amount string) {
	t.Helper()
	_, err := ledger.Record(Movement{
		ExternalUserID: userID,
		Amount:         decimal.RequireFromString(amount),
		Type:           models.TransactionTypeDeposit,
		Description:    "test funding",
	})
	require.NoError(t, err)
}

func jsonRequest(t *testing.T, app *fiber.App, method, path, userID string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	var parsed map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func TestCreateBountyHoldsEscrowAndPoints(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "100.00")

	resp, body := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Design a logo",
		"category": "design",
		"reward":   "40.00",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "design-a-logo", body["slug"])

	author, err := svc.Ledger.EnsureUser("author")
	require.NoError(t, err)
	assert.Equal(t, "60.00", author.Balance.StringFixed(2))
	assert.Equal(t, int64(WelcomePoints-PostingPointsCost), author.Points)

	var hold models.Transaction
	require.NoError(t, db.First(&hold, "external_user_id = ? AND type = ?",
		"author", models.TransactionTypeEscrowHold).Error)
	assert.Equal(t, "-40.00", hold.Amount.StringFixed(2))
	require.NotNil(t, hold.BountyID)
	assert.Equal(t, body["id"], *hold.BountyID)
}

func TestCreateBountyInsufficientBalance(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "broke", "10.00")

	resp, body := jsonRequest(t, app, "POST", "/bounties", "broke", fiber.Map{
		"title":    "Too rich for me",
		"category": "writing",
		"reward":   "40.00",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "40.00", body["required_amount"])
	assert.Equal(t, "10.00", body["available_amount"])

	// Rejection leaves everything untouched: no bounty row, wallet intact.
	var bounties int64
	db.Model(&models.Bounty{}).Count(&bounties)
	assert.Equal(t, int64(0), bounties)

	user, err := svc.Ledger.EnsureUser("broke")
	require.NoError(t, err)
	assert.Equal(t, "10.00", user.Balance.StringFixed(2))
	assert.Equal(t, int64(WelcomePoints), user.Points)
}

func TestCreateBountyRejectsTinyReward(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "100.00")

	resp, _ := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Pennies",
		"category": "misc",
		"reward":   "0.50",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestBountyLifecyclePaysNetToWorker(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "200.00")

	_, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Translate a doc",
		"category": "writing",
		"reward":   "100.00",
	})
	bountyID := created["id"].(string)

	resp, applied := jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/apply", "worker",
		fiber.Map{"message": "I can do this"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	appID := applied["id"].(string)

	// Authors cannot apply to their own bounty.
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/apply", "author", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Only the author can accept.
	resp, _ = jsonRequest(t, app, "POST",
		fmt.Sprintf("/bounties/%s/applications/%s/accept", bountyID, appID), "worker", nil)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = jsonRequest(t, app, "POST",
		fmt.Sprintf("/bounties/%s/applications/%s/accept", bountyID, appID), "author", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, done := jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/complete", "author", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "100.00", done["gross_amount"])
	assert.Equal(t, "95.00", done["net_amount"])
	assert.Equal(t, "5.00", done["fee"])
	assert.Equal(t, "worker", done["paid_to"])

	worker, err := svc.Ledger.EnsureUser("worker")
	require.NoError(t, err)
	assert.Equal(t, "95.00", worker.Balance.StringFixed(2))
	assert.Equal(t, "95.00", worker.LifetimeEarned.StringFixed(2))

	var revenue []models.PlatformRevenue
	require.NoError(t, db.Where("source = ?", models.RevenueSourceBountyCompletion).Find(&revenue).Error)
	require.Len(t, revenue, 1)
	assert.Equal(t, "5.00", revenue[0].Amount.StringFixed(2))

	// Completing twice is a conflict, and nothing moves again.
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/complete", "author", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	worker, err = svc.Ledger.EnsureUser("worker")
	require.NoError(t, err)
	assert.Equal(t, "95.00", worker.Balance.StringFixed(2))
}

func TestCompleteBountyWithoutWorker(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "50.00")

	_, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Nobody applied",
		"category": "misc",
		"reward":   "20.00",
	})
	bountyID := created["id"].(string)

	resp, _ := jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/complete", "author", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestApplyTwiceConflicts(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "50.00")

	_, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Popular gig",
		"category": "misc",
		"reward":   "20.00",
	})
	bountyID := created["id"].(string)

	resp, _ := jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/apply", "worker", nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/apply", "worker", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestGetBountiesFiltersAndPaginates(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "500.00")

	for i := 0; i < 3; i++ {
		resp, _ := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
			"title":    fmt.Sprintf("Design task %d", i),
			"category": "design",
			"reward":   "10.00",
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	}
	resp, _ := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Write a post",
		"category": "writing",
		"reward":   "10.00",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := jsonRequest(t, app, "GET", "/bounties?category=design&limit=2", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), body["total_rows"])
	assert.Equal(t, float64(2), body["total_pages"])
	assert.Len(t, body["bounties"], 2)

	resp, body = jsonRequest(t, app, "GET", "/bounties?search=post", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_rows"])
}

func TestGetBountyBySlug(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "50.00")

	resp, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Slug Lookup Works",
		"category": "misc",
		"reward":   "10.00",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := jsonRequest(t, app, "GET", "/bounties/slug-lookup-works", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, created["id"], body["id"])
}
