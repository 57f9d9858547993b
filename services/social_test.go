package services

import (
	"testing"
	"time"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSocialTestApp(db *gorm.DB) *fiber.App {
	hub := NewHub()
	messages := NewMessageService(db, hub)
	friends := NewFriendService(db)
	reviews := NewReviewService(db)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User-ID"))
		return c.Next()
	})
	app.Post("/messages/threads", messages.OpenThread)
	app.Get("/messages/threads", messages.ListThreads)
	app.Get("/messages/threads/:id", messages.GetMessages)
	app.Post("/messages/threads/:id", messages.SendMessage)
	app.Post("/friends", friends.RequestFriend)
	app.Post("/friends/:id/respond", friends.RespondFriend)
	app.Get("/friends", friends.ListFriends)
	app.Post("/bounties/:id/reviews", reviews.CreateReview)
	app.Get("/users/:userID/reviews", reviews.GetReviews)
	return app
}

func TestThreadsAreDedupedPerPair(t *testing.T) {
	db := setupTestDB(t)
	app := newSocialTestApp(db)

	resp, first := jsonRequest(t, app, "POST", "/messages/threads", "alice",
		fiber.Map{"user_id": "bob"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// Opening from the other side lands on the same thread.
	resp, second := jsonRequest(t, app, "POST", "/messages/threads", "bob",
		fiber.Map{"user_id": "alice"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, first["id"], second["id"])

	var count int64
	db.Model(&models.MessageThread{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSendMessageRequiresParticipant(t *testing.T) {
	db := setupTestDB(t)
	app := newSocialTestApp(db)

	_, thread := jsonRequest(t, app, "POST", "/messages/threads", "alice",
		fiber.Map{"user_id": "bob"})
	threadID := thread["id"].(string)

	resp, _ := jsonRequest(t, app, "POST", "/messages/threads/"+threadID, "eve",
		fiber.Map{"body": "let me in"})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = jsonRequest(t, app, "POST", "/messages/threads/"+threadID, "alice",
		fiber.Map{"body": "hi bob"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	// Reading as bob marks alice's message read.
	resp, _ = jsonRequest(t, app, "GET", "/messages/threads/"+threadID, "bob", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var unread int64
	db.Model(&models.Message{}).Where("thread_id = ? AND read = ?", threadID, false).Count(&unread)
	assert.Equal(t, int64(0), unread)
}

func TestFriendRequestLifecycle(t *testing.T) {
	db := setupTestDB(t)
	app := newSocialTestApp(db)

	resp, created := jsonRequest(t, app, "POST", "/friends", "alice",
		fiber.Map{"user_id": "bob"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	requestID := created["id"].(string)

	// The mirror request is a duplicate, whichever side sends it.
	resp, _ = jsonRequest(t, app, "POST", "/friends", "bob",
		fiber.Map{"user_id": "alice"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Only the addressee can respond.
	resp, _ = jsonRequest(t, app, "POST", "/friends/"+requestID+"/respond", "alice",
		fiber.Map{"accept": true})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = jsonRequest(t, app, "POST", "/friends/"+requestID+"/respond", "bob",
		fiber.Map{"accept": true})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var friendship models.Friendship
	require.NoError(t, db.First(&friendship, "id = ?", requestID).Error)
	assert.Equal(t, models.FriendshipStatusAccepted, friendship.Status)
}

// seedCompletedBounty writes a finished bounty straight to the DB so review
// tests don't have to walk the whole posting flow.
func seedCompletedBounty(t *testing.T, db *gorm.DB, author, worker string) string {
	t.Helper()
	now := time.Now()
	bounty := &models.Bounty{
		ID:           uuid.NewString(),
		AuthorID:     author,
		Title:        "Done deal",
		Slug:         "done-deal-" + uuid.NewString()[:8],
		Category:     "misc",
		Reward:       decimal.NewFromInt(20),
		DurationDays: 3,
		Status:       models.BountyStatusCompleted,
		ClaimedBy:    &worker,
		CompletedAt:  &now,
	}
	require.NoError(t, db.Create(bounty).Error)
	return bounty.ID
}

func TestReviewRollsRatingForward(t *testing.T) {
	db := setupTestDB(t)
	app := newSocialTestApp(db)
	ledger := NewLedgerService(db)

	_, err := ledger.EnsureUser("worker")
	require.NoError(t, err)

	first := seedCompletedBounty(t, db, "author", "worker")
	second := seedCompletedBounty(t, db, "author", "worker")

	resp, _ := jsonRequest(t, app, "POST", "/bounties/"+first+"/reviews", "author",
		fiber.Map{"stars": 5, "comment": "great work"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+second+"/reviews", "author",
		fiber.Map{"stars": 4})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	worker, err := ledger.EnsureUser("worker")
	require.NoError(t, err)
	assert.Equal(t, int64(2), worker.RatingCount)
	assert.InDelta(t, 4.5, worker.Rating, 0.001)

	// One review per reviewer per bounty.
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+first+"/reviews", "author",
		fiber.Map{"stars": 1})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	// Bystanders cannot review.
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+first+"/reviews", "eve",
		fiber.Map{"stars": 1})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	// The worker reviews the author back.
	resp, _ = jsonRequest(t, app, "POST", "/bounties/"+first+"/reviews", "worker",
		fiber.Map{"stars": 5})
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, _ = jsonRequest(t, app, "GET", "/users/worker/reviews", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}
