// handlers/wallet_routes.go
package handlers

import (
	"pocket-bounty/middleware"
	"pocket-bounty/services"

	"github.com/gofiber/fiber/v2"
)

func SetupWalletRoutes(app *fiber.App, walletService *services.WalletService, pointsService *services.PointsService, statsService *services.StatsService) {
	// Point packages are public catalog data.
	app.Get("/points/packages", pointsService.GetPackages)

	userCtx := middleware.UserContextMiddleware()

	app.Get("/user/wallet", userCtx, walletService.GetWallet)
	app.Get("/user/transactions", userCtx, walletService.GetTransactions)
	app.Get("/user/activities", userCtx, walletService.GetActivities)

	app.Post("/payments/deposit", userCtx, walletService.Deposit)
	app.Post("/payments/withdraw", userCtx, walletService.Withdraw)
	app.Post("/payments/setup-intent", userCtx, walletService.CreateSetupIntent)
	app.Post("/payments/methods", userCtx, walletService.SaveMethod)
	app.Get("/payments/methods", userCtx, walletService.GetMethods)
	app.Delete("/payments/methods/:id", userCtx, walletService.DeleteMethod)

	app.Post("/points/purchase", userCtx, pointsService.PurchasePoints)
	app.Post("/points/confirm-purchase", userCtx, pointsService.ConfirmPurchase)
	app.Post("/referrals/redeem", userCtx, pointsService.RedeemReferral)

	app.Get("/creator/stats", userCtx, statsService.GetCreatorStats)
}
