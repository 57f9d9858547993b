// handlers/bounty_routes.go
package handlers

import (
	"pocket-bounty/middleware"
	"pocket-bounty/services"

	"github.com/gofiber/fiber/v2"
)

func SetupBountyRoutes(app *fiber.App, bountyService *services.BountyService) {
	// Public routes — no user context, but still behind Gateway auth.
	app.Get("/bounties", bountyService.GetBounties)
	app.Get("/bounties/:id", bountyService.GetBounty)

	// User context is attached per route: a Use on "/" would also capture
	// every route registered after this call, public ones included.
	userCtx := middleware.UserContextMiddleware()

	app.Post("/bounties", userCtx, bountyService.CreateBounty)
	app.Post("/bounties/:id/apply", userCtx, bountyService.ApplyToBounty)
	app.Post("/bounties/:id/applications/:appID/accept", userCtx, bountyService.AcceptApplication)
	app.Post("/bounties/:id/complete", userCtx, bountyService.CompleteBounty)
	app.Post("/bounties/:id/attachments", userCtx, bountyService.UploadAttachment)
}
