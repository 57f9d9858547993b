package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MinWithdrawal is the smallest payout the processor will carry for us.
var MinWithdrawal = decimal.NewFromInt(5)

// InstantPayoutRate is the extra fee for instant transfers (on top of the
// platform's cut structure; standard payouts carry no extra fee).
var InstantPayoutRate = decimal.NewFromFloat(0.015)

type WalletService struct {
	DB       *gorm.DB
	Ledger   *LedgerService
	Fees     FeePolicy
	Payments *PaymentsClient
}

func NewWalletService(db *gorm.DB, ledger *LedgerService, fees FeePolicy, payments *PaymentsClient) *WalletService {
	return &WalletService{DB: db, Ledger: ledger, Fees: fees, Payments: payments}
}

// GetWallet returns the caller's balance, points and profile numbers,
// creating the wallet row on first sight.
func (s *WalletService) GetWallet(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	user, err := s.Ledger.EnsureUser(userID)
	if err != nil {
		log.Printf("[wallet] DB error loading wallet for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load wallet"})
	}

	return c.JSON(fiber.Map{
		"balance":         user.Balance.StringFixed(2),
		"lifetime_earned": user.LifetimeEarned.StringFixed(2),
		"points":          user.Points,
		"rating":          user.Rating,
		"rating_count":    user.RatingCount,
		"referral_code":   user.ReferralCode,
		"referral_count":  user.ReferralCount,
	})
}

// GetTransactions lists the caller's ledger rows, newest first, with an
// optional type filter and page/limit pagination.
func (s *WalletService) GetTransactions(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.DB.Model(&models.Transaction{}).Where("external_user_id = ?", userID)
	if txType := c.Query("type"); txType != "" {
		query = query.Where("type = ?", txType)
	}

	var totalRows int64
	if err := query.Count(&totalRows).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	var transactions []models.Transaction
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&transactions).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(fiber.Map{
		"transactions": transactions,
		"page":         page,
		"limit":        limit,
		"total_rows":   totalRows,
		"total_pages":  int(math.Ceil(float64(totalRows) / float64(limit))),
	})
}

// GetActivities is the caller's notification feed.
func (s *WalletService) GetActivities(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var activities []models.Activity
	if err := s.DB.Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&activities).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(activities)
}

// Deposit charges the saved card for amount plus a service fee and credits
// the requested amount. The card is charged first; the ledger credit only
// lands after the provider confirms.
func (s *WalletService) Deposit(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Amount   string `json:"amount"`
		MethodID string `json:"method_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThan(decimal.NewFromInt(1)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Deposit amount must be at least $1.00"})
	}
	amount = amount.Round(2)

	method, err := s.resolveMethod(userID, req.MethodID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No saved payment method — add a card first"})
	}

	user, err := s.Ledger.EnsureUser(userID)
	if err != nil || user.ProviderCustomerID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "No saved payment method — add a card first"})
	}

	fee, total := s.Fees.Surcharge(amount)
	intent, err := s.Payments.CreateIntent(total, *user.ProviderCustomerID, method.ProviderMethodID,
		fmt.Sprintf("Pocket Bounty deposit $%s (+$%s fee)", amount.StringFixed(2), fee.StringFixed(2)))
	if err != nil {
		return s.providerError(c, err)
	}
	if intent.Status != "succeeded" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": UserMessageForDecline(intent.DeclineCode)})
	}

	txn, err := s.Ledger.Record(Movement{
		ExternalUserID: userID,
		Amount:         amount,
		Type:           models.TransactionTypeDeposit,
		Description:    fmt.Sprintf("Deposit of $%s ($%s service fee)", amount.StringFixed(2), fee.StringFixed(2)),
		ProviderRef:    &intent.ID,
		Activity: &models.Activity{
			ID:    uuid.NewString(),
			Kind:  "deposit",
			Title: "Deposit received",
			Body:  fmt.Sprintf("$%s added to your balance", amount.StringFixed(2)),
		},
		Revenue: &models.PlatformRevenue{
			ID:     uuid.NewString(),
			Amount: fee,
			Source: models.RevenueSourceDeposit,
		},
	})
	if err != nil {
		// The card was charged but the credit failed — surface loudly.
		log.Printf("[wallet] CRITICAL: deposit intent %s charged but credit failed for %s: %v", intent.ID, userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Deposit is being processed, contact support if it does not appear"})
	}

	if err := s.DB.Create(&models.Payment{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		ProviderIntentID: intent.ID,
		Amount:           total,
		Purpose:          "deposit",
		Status:           models.PaymentStatusSucceeded,
	}).Error; err != nil {
		log.Printf("[wallet] failed to mirror deposit intent %s: %v", intent.ID, err)
	}

	return c.JSON(fiber.Map{
		"message":        "Deposit complete",
		"amount":         amount.StringFixed(2),
		"fee":            fee.StringFixed(2),
		"total_charged":  total.StringFixed(2),
		"transaction_id": txn.ID,
	})
}

// Withdraw debits the balance immediately and opens a provider payout. The
// withdrawal transaction stays pending until the reconciliation worker sees
// the transfer land; a failed transfer gets the debit refunded there.
func (s *WalletService) Withdraw(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Amount string `json:"amount"`
		Method string `json:"method"` // standard | instant
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThan(MinWithdrawal) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Minimum withdrawal is $%s", MinWithdrawal.StringFixed(2)),
		})
	}
	amount = amount.Round(2)
	if req.Method == "" {
		req.Method = "standard"
	}
	if req.Method != "standard" && req.Method != "instant" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Method must be standard or instant"})
	}

	user, err := s.Ledger.EnsureUser(userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load wallet"})
	}
	if user.ProviderCustomerID == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Add a payout card before withdrawing"})
	}

	instantFee := decimal.Zero
	if req.Method == "instant" {
		instantFee = amount.Mul(InstantPayoutRate).Round(2)
	}
	totalDebit := amount.Add(instantFee)
	payoutAmount := amount

	txn, err := s.Ledger.Record(Movement{
		ExternalUserID: userID,
		Amount:         totalDebit.Neg(),
		Type:           models.TransactionTypeWithdrawal,
		Status:         models.TransactionStatusPending,
		Description: fmt.Sprintf("Withdrawal of $%s (%s transfer%s)", amount.StringFixed(2), req.Method,
			instantFeeSuffix(instantFee)),
	})
	if err != nil {
		var fundsErr *InsufficientFundsError
		if errors.As(err, &fundsErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":            fundsErr.Error(),
				"required_amount":  fundsErr.Required.StringFixed(2),
				"available_amount": fundsErr.Available.StringFixed(2),
			})
		}
		log.Printf("[wallet] withdrawal debit failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to start withdrawal"})
	}

	payout, err := s.Payments.CreatePayout(payoutAmount, *user.ProviderCustomerID, req.Method, txn.ID)
	if err != nil {
		// Compensate: the debit must not survive a transfer we never opened.
		if rbErr := s.Ledger.FailPendingWithdrawal(txn.ID, "provider rejected the transfer"); rbErr != nil {
			log.Printf("[wallet] CRITICAL: failed to refund rejected withdrawal %s: %v", txn.ID, rbErr)
		}
		return s.providerError(c, err)
	}

	if err := s.DB.Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Update("provider_ref", payout.ID).Error; err != nil {
		log.Printf("[wallet] failed to record payout ref for %s: %v", txn.ID, err)
	}

	return c.JSON(fiber.Map{
		"message":        "Withdrawal started",
		"amount":         amount.StringFixed(2),
		"instant_fee":    instantFee.StringFixed(2),
		"status":         "pending",
		"transaction_id": txn.ID,
	})
}

func instantFeeSuffix(fee decimal.Decimal) string {
	if fee.IsZero() {
		return ""
	}
	return fmt.Sprintf(", $%s instant fee", fee.StringFixed(2))
}

// CreateSetupIntent returns a provider client secret the app uses to
// collect card details, creating the provider customer as needed.
func (s *WalletService) CreateSetupIntent(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	customerID, err := s.ensureCustomer(userID)
	if err != nil {
		return s.providerError(c, err)
	}
	si, err := s.Payments.CreateSetupIntent(customerID)
	if err != nil {
		return s.providerError(c, err)
	}
	return c.JSON(fiber.Map{"client_secret": si.ClientSecret, "setup_intent_id": si.ID})
}

// SaveMethod mirrors a provider payment method the app just attached.
func (s *WalletService) SaveMethod(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		ProviderMethodID string `json:"provider_method_id"`
		MakeDefault      bool   `json:"make_default"`
	}
	if err := c.BodyParser(&req); err != nil || req.ProviderMethodID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "provider_method_id is required"})
	}

	remote, err := s.Payments.GetMethod(req.ProviderMethodID)
	if err != nil {
		return s.providerError(c, err)
	}

	method := &models.PaymentMethod{
		ID:               uuid.NewString(),
		ExternalUserID:   userID,
		ProviderMethodID: remote.ID,
		Brand:            remote.Brand,
		Last4:            remote.Last4,
		ExpMonth:         remote.ExpMonth,
		ExpYear:          remote.ExpYear,
		IsDefault:        req.MakeDefault,
	}
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if req.MakeDefault {
			if err := tx.Model(&models.PaymentMethod{}).
				Where("external_user_id = ?", userID).
				Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(method).Error
	})
	if err != nil {
		log.Printf("[wallet] DB error saving method: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save payment method"})
	}

	return c.Status(fiber.StatusCreated).JSON(method)
}

// GetMethods lists the caller's saved cards.
func (s *WalletService) GetMethods(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	var methods []models.PaymentMethod
	if err := s.DB.Where("external_user_id = ?", userID).
		Order("created_at DESC").
		Find(&methods).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(methods)
}

// DeleteMethod detaches a card on the provider and removes the mirror row.
func (s *WalletService) DeleteMethod(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")

	var method models.PaymentMethod
	if err := s.DB.Where("id = ? AND external_user_id = ?", id, userID).First(&method).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Payment method not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	if err := s.Payments.DetachMethod(method.ProviderMethodID); err != nil {
		log.Printf("[wallet] provider detach failed for %s: %v", method.ProviderMethodID, err)
	}
	if err := s.DB.Delete(&method).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to delete payment method"})
	}
	return c.JSON(fiber.Map{"message": "Payment method removed"})
}

// resolveMethod returns the requested saved method, or the default one when
// no id is given.
func (s *WalletService) resolveMethod(userID, methodID string) (*models.PaymentMethod, error) {
	var method models.PaymentMethod
	query := s.DB.Where("external_user_id = ?", userID)
	if methodID != "" {
		query = query.Where("id = ?", methodID)
	} else {
		query = query.Order("is_default DESC, created_at DESC")
	}
	if err := query.First(&method).Error; err != nil {
		return nil, err
	}
	return &method, nil
}

// ensureCustomer makes sure the user has a provider customer object and
// caches its id on the wallet row.
func (s *WalletService) ensureCustomer(userID string) (string, error) {
	user, err := s.Ledger.EnsureUser(userID)
	if err != nil {
		return "", err
	}
	if user.ProviderCustomerID != nil {
		return *user.ProviderCustomerID, nil
	}
	customerID, err := s.Payments.EnsureCustomer(userID)
	if err != nil {
		return "", err
	}
	if err := s.DB.Model(&models.User{}).
		Where("id = ?", user.ID).
		Update("provider_customer_id", customerID).Error; err != nil {
		return "", err
	}
	return customerID, nil
}

func (s *WalletService) providerError(c *fiber.Ctx, err error) error {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": provErr.Message, "decline_code": provErr.Code})
	}
	log.Printf("[wallet] provider call failed: %v", err)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment service is unavailable, try again shortly"})
}
