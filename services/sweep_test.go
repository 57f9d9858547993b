package services

import (
	"context"
	"testing"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepSettlesExpiredBountyOnce(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "100.00")

	resp, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":         "Nobody wants this",
		"category":      "misc",
		"reward":        "40.00",
		"duration_days": 3,
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	bountyID := created["id"].(string)

	sweeper := NewExpirySweeper(db, svc.Ledger, DefaultFeePolicy, nil)
	ctx := context.Background()

	// Not yet past its duration: nothing to settle.
	settled, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	require.NoError(t, db.Exec(
		"UPDATE bounties SET created_at = now() - interval '10 days' WHERE id = ?", bountyID).Error)

	settled, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	var bounty models.Bounty
	require.NoError(t, db.First(&bounty, "id = ?", bountyID).Error)
	assert.Equal(t, models.BountyStatusExpired, bounty.Status)

	// Author held $60 after escrow; the refund returns 40 - 2 fee = 38.
	author, err := svc.Ledger.EnsureUser("author")
	require.NoError(t, err)
	assert.Equal(t, "98.00", author.Balance.StringFixed(2))

	var revenue []models.PlatformRevenue
	require.NoError(t, db.Where("source = ?", models.RevenueSourceExpiredBountyFee).Find(&revenue).Error)
	require.Len(t, revenue, 1)
	assert.Equal(t, "2.00", revenue[0].Amount.StringFixed(2))

	// A second pass is a no-op: no double refund, no second revenue row.
	settled, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	author, err = svc.Ledger.EnsureUser("author")
	require.NoError(t, err)
	assert.Equal(t, "98.00", author.Balance.StringFixed(2))

	db.Where("source = ?", models.RevenueSourceExpiredBountyFee).Find(&revenue)
	assert.Len(t, revenue, 1)
}

func TestSweepSkipsClaimedAndCompletedBounties(t *testing.T) {
	db := setupTestDB(t)
	app, svc := newBountyTestApp(db)
	fundUser(t, svc.Ledger, "author", "100.00")

	resp, created := jsonRequest(t, app, "POST", "/bounties", "author", fiber.Map{
		"title":    "Finished in time",
		"category": "misc",
		"reward":   "40.00",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	bountyID := created["id"].(string)

	_, applied := jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/apply", "worker", nil)
	appID := applied["id"].(string)
	resp, _ = jsonRequest(t, app, "POST",
		"/bounties/"+bountyID+"/applications/"+appID+"/accept", "author", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+bountyID+"/complete", "author", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NoError(t, db.Exec(
		"UPDATE bounties SET created_at = now() - interval '10 days' WHERE id = ?", bountyID).Error)

	sweeper := NewExpirySweeper(db, svc.Ledger, DefaultFeePolicy, nil)
	settled, err := sweeper.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, settled)

	var bounty models.Bounty
	require.NoError(t, db.First(&bounty, "id = ?", bountyID).Error)
	assert.Equal(t, models.BountyStatusCompleted, bounty.Status)
}
