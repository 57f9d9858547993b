// handlers/social_routes.go
package handlers

import (
	"pocket-bounty/middleware"
	"pocket-bounty/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSocialRoutes(app *fiber.App, messageService *services.MessageService, friendService *services.FriendService, reviewService *services.ReviewService, hub *services.Hub) {
	// Reviews received by a user are public profile data.
	app.Get("/users/:userID/reviews", reviewService.GetReviews)

	userCtx := middleware.UserContextMiddleware()

	app.Post("/messages/threads", userCtx, messageService.OpenThread)
	app.Get("/messages/threads", userCtx, messageService.ListThreads)
	app.Get("/messages/threads/:id", userCtx, messageService.GetMessages)
	app.Post("/messages/threads/:id", userCtx, messageService.SendMessage)

	app.Post("/friends", userCtx, friendService.RequestFriend)
	app.Post("/friends/:id/respond", userCtx, friendService.RespondFriend)
	app.Get("/friends", userCtx, friendService.ListFriends)

	app.Post("/bounties/:id/reviews", userCtx, reviewService.CreateReview)

	// Per-user event socket: messages are delivered only to their
	// recipient, never broadcast. The Use prefix is exact, so it cannot
	// spill onto other routes.
	app.Use("/ws", userCtx, hub.UpgradeGuard())
	app.Get("/ws", hub.Handler())
}
