package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PointPackage is a fixed bundle of the in-app currency.
type PointPackage struct {
	ID     string          `json:"id"`
	Points int64           `json:"points"`
	Price  decimal.Decimal `json:"price"`
}

var PointPackages = []PointPackage{
	{ID: "starter", Points: 100, Price: decimal.NewFromFloat(4.99)},
	{ID: "plus", Points: 250, Price: decimal.NewFromFloat(9.99)},
	{ID: "pro", Points: 600, Price: decimal.NewFromFloat(19.99)},
	{ID: "max", Points: 1400, Price: decimal.NewFromFloat(39.99)},
}

// Referral bonuses, in points.
const (
	ReferrerBonusPoints = 250
	ReferredBonusPoints = 100
)

type PointsService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Payments *PaymentsClient
}

func NewPointsService(db *gorm.DB, ledger *LedgerService, payments *PaymentsClient) *PointsService {
	return &PointsService{DB: db, Ledger: ledger, Payments: payments}
}

func findPackage(id string) *PointPackage {
	for i := range PointPackages {
		if PointPackages[i].ID == id {
			return &PointPackages[i]
		}
	}
	return nil
}

// GetPackages lists the purchasable bundles.
func (s *PointsService) GetPackages(c *fiber.Ctx) error {
	return c.JSON(PointPackages)
}

// PurchasePoints opens a provider intent for a package. Points are only
// awarded by ConfirmPurchase after the provider reports success.
func (s *PointsService) PurchasePoints(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		PackageID string `json:"package_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	pkg := findPackage(req.PackageID)
	if pkg == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Unknown point package"})
	}

	user, err := s.Ledger.EnsureUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load wallet"})
	}
	customerID := ""
	if user.ProviderCustomerID != nil {
		customerID = *user.ProviderCustomerID
	}

	intent, err := s.Payments.CreateIntent(pkg.Price, customerID, "",
		fmt.Sprintf("Pocket Bounty points: %d (%s)", pkg.Points, pkg.ID))
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": provErr.Message})
		}
		log.Printf("[points] provider intent failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment service is unavailable, try again shortly"})
	}

	payment := &models.Payment{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		ProviderIntentID: intent.ID,
		Amount:           pkg.Price,
		Purpose:          "point_purchase",
		PointPackageID:   &pkg.ID,
		Status:           models.PaymentStatusPending,
	}
	if err := s.DB.Create(payment).Error; err != nil {
		log.Printf("[points] DB error creating payment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start purchase"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_id":    payment.ID,
		"client_secret": intent.ClientSecret,
		"amount":        pkg.Price.StringFixed(2),
		"points":        pkg.Points,
	})
}

// ConfirmPurchase verifies the intent with the provider and awards points
// exactly once; the pending->succeeded flip under a row lock is the guard.
func (s *PointsService) ConfirmPurchase(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.PaymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "payment_id is required"})
	}

	var payment models.Payment
	if err := s.DB.Where("id = ? AND external_user_id = ?", req.PaymentID, userID).First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if payment.Status == models.PaymentStatusSucceeded {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Purchase already confirmed"})
	}
	pkg := findPackage(derefStr(payment.PointPackageID))
	if pkg == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Package no longer exists"})
	}

	intent, err := s.Payments.GetIntent(payment.ProviderIntentID)
	if err != nil {
		log.Printf("[points] provider lookup failed for %s: %v", payment.ProviderIntentID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment service is unavailable, try again shortly"})
	}
	if intent.Status != "succeeded" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": UserMessageForDecline(intent.DeclineCode)})
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var locked models.Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&locked, "id = ?", payment.ID).Error; err != nil {
			return err
		}
		if locked.Status == models.PaymentStatusSucceeded {
			return errAlreadyConfirmed
		}
		if err := tx.Model(&models.Payment{}).
			Where("id = ?", locked.ID).
			Update("status", models.PaymentStatusSucceeded).Error; err != nil {
			return err
		}
		_, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID: userID,
			PointsDelta:    pkg.Points,
			Type:           models.TransactionTypePointPurchase,
			Description:    fmt.Sprintf("Purchased %d points (%s)", pkg.Points, pkg.ID),
			ProviderRef:    &payment.ProviderIntentID,
			Activity: &models.Activity{
				ID:    uuid.NewString(),
				Kind:  "points_purchased",
				Title: "Points added",
				Body:  fmt.Sprintf("%d points added to your account", pkg.Points),
			},
			Revenue: &models.PlatformRevenue{
				ID:     uuid.NewString(),
				Amount: pkg.Price,
				Source: models.RevenueSourcePointPurchase,
			},
		})
		return err
	})
	if errors.Is(err, errAlreadyConfirmed) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Purchase already confirmed"})
	}
	if err != nil {
		log.Printf("[points] confirm failed for payment %s: %v", payment.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to confirm purchase"})
	}

	return c.JSON(fiber.Map{"message": "Points added", "points": pkg.Points})
}

var errAlreadyConfirmed = errors.New("purchase already confirmed")

// RedeemReferral awards the one-time signup bonus: the referrer gets 250
// points and a referral-count bump, the new user gets 100 points.
func (s *PointsService) RedeemReferral(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Code string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil || req.Code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "code is required"})
	}

	var referrer models.User
	if err := s.DB.Where("referral_code = ?", req.Code).First(&referrer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown referral code"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if referrer.ExternalUserID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot redeem your own code"})
	}

	var existing int64
	s.DB.Model(&models.Referral{}).Where("referred_id = ?", userID).Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Referral already redeemed"})
	}

	now := time.Now()
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		referral := &models.Referral{
			ID:               uuid.NewString(),
			ReferrerID:       referrer.ExternalUserID,
			ReferredID:       userID,
			ReferralCodeUsed: req.Code,
			PointsAwarded:    ReferrerBonusPoints,
			BonusAwarded:     true,
			AwardedAt:        &now,
		}
		if err := tx.Create(referral).Error; err != nil {
			return err
		}
		if _, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID: referrer.ExternalUserID,
			PointsDelta:    ReferrerBonusPoints,
			Type:           models.TransactionTypePointPurchase,
			Description:    "Referral bonus",
			Activity: &models.Activity{
				ID:    uuid.NewString(),
				Kind:  "referral_bonus",
				Title: "Referral bonus",
				Body:  fmt.Sprintf("A friend joined with your code — %d points added", ReferrerBonusPoints),
			},
		}); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("id = ?", referrer.ID).
			Update("referral_count", gorm.Expr("referral_count + 1")).Error; err != nil {
			return err
		}
		_, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID: userID,
			PointsDelta:    ReferredBonusPoints,
			Type:           models.TransactionTypePointPurchase,
			Description:    "Welcome referral bonus",
		})
		return err
	})
	if err != nil {
		log.Printf("[points] referral redeem failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to redeem referral"})
	}

	return c.JSON(fiber.Map{"message": "Referral redeemed", "points": ReferredBonusPoints})
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
