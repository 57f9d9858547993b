package services

import (
	"errors"
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pocket-bounty/models"
	"pocket-bounty/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PostingPointsCost is charged from the author's points on every posting.
const PostingPointsCost = 5

// MinBountyReward is the floor for a posted reward.
var MinBountyReward = decimal.NewFromInt(1)

type BountyService struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Fees   FeePolicy
}

func NewBountyService(db *gorm.DB, ledger *LedgerService, fees FeePolicy) *BountyService {
	return &BountyService{DB: db, Ledger: ledger, Fees: fees}
}

// CreateBounty posts a bounty: the full reward is debited into escrow and
// 5 points are charged, both in the same transaction as the bounty insert.
func (s *BountyService) CreateBounty(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		Title        string   `json:"title"`
		Description  string   `json:"description"`
		Category     string   `json:"category"`
		Reward       string   `json:"reward"`
		Tags         []string `json:"tags"`
		DurationDays int      `json:"duration_days"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Title is required"})
	}
	if req.Category == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Category is required"})
	}
	reward, err := decimal.NewFromString(req.Reward)
	if err != nil || reward.LessThan(MinBountyReward) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("Reward must be at least $%s", MinBountyReward.StringFixed(2)),
		})
	}
	reward = reward.Round(2)
	if req.DurationDays <= 0 {
		req.DurationDays = 3
	}
	if req.DurationDays > 30 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Duration cannot exceed 30 days"})
	}

	bounty := &models.Bounty{
		ID:           uuid.NewString(),
		AuthorID:     userID,
		Title:        req.Title,
		Slug:         slug.Make(req.Title),
		Description:  req.Description,
		Category:     req.Category,
		Tags:         strings.Join(req.Tags, ","),
		Reward:       reward,
		DurationDays: req.DurationDays,
		Status:       models.BountyStatusActive,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bounty).Error; err != nil {
			return fmt.Errorf("failed to create bounty: %w", err)
		}
		_, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID: userID,
			Amount:         reward.Neg(),
			PointsDelta:    -PostingPointsCost,
			Type:           models.TransactionTypeEscrowHold,
			Description: fmt.Sprintf("Escrow hold for bounty %q — auto-refunds minus the platform fee if still unclaimed after %d days",
				bounty.Title, bounty.DurationDays),
			BountyID: &bounty.ID,
		})
		return err
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
		var pointsErr *InsufficientPointsError
		if errors.As(err, &pointsErr) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": pointsErr.Error()})
		}
		log.Printf("[bounty] posting failed for %s: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to post bounty"})
	}

	return c.Status(fiber.StatusCreated).JSON(bounty)
}

// GetBounties lists bounties with category/status/search filters and
// page/limit pagination. Listing is a pure read: expiry settlement runs in
// the scheduled sweep, never here.
func (s *BountyService) GetBounties(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	query := s.DB.Model(&models.Bounty{})
	if category := c.Query("category"); category != "" {
		query = query.Where("category = ?", category)
	}
	status := c.Query("status", string(models.BountyStatusActive))
	if status != "all" {
		query = query.Where("status = ?", status)
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + search + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", like, like)
	}

	var totalRows int64
	if err := query.Count(&totalRows).Error; err != nil {
		log.Printf("[bounty] DB error counting bounties: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch bounties"})
	}

	var bounties []models.Bounty
	if err := query.Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&bounties).Error; err != nil {
		log.Printf("[bounty] DB error fetching bounties: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch bounties"})
	}

	return c.JSON(fiber.Map{
		"bounties":    bounties,
		"page":        page,
		"limit":       limit,
		"total_rows":  totalRows,
		"total_pages": int(math.Ceil(float64(totalRows) / float64(limit))),
	})
}

// GetBounty fetches one bounty by uuid or slug, with applications and
// attachments preloaded.
func (s *BountyService) GetBounty(c *fiber.Ctx) error {
	id := c.Params("id")

	query := s.DB.Preload("Applications").Preload("Attachments")
	if _, err := uuid.Parse(id); err == nil {
		query = query.Where("id = ?", id)
	} else {
		query = query.Where("slug = ?", id)
	}

	var bounty models.Bounty
	if err := query.First(&bounty).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bounty not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	return c.JSON(bounty)
}

// ApplyToBounty records an application. One per user per bounty; authors
// cannot apply to their own postings.
func (s *BountyService) ApplyToBounty(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bountyID := c.Params("id")
	if _, err := uuid.Parse(bountyID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bounty ID"})
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var bounty models.Bounty
	if err := s.DB.First(&bounty, "id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bounty not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if bounty.Status != models.BountyStatusActive {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Bounty is no longer open for applications"})
	}
	if bounty.AuthorID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot apply to your own bounty"})
	}

	app := &models.BountyApplication{
		ID:             uuid.NewString(),
		BountyID:       bountyID,
		ExternalUserID: userID,
		Message:        req.Message,
		Status:         models.ApplicationStatusPending,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(app).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			ID:             uuid.NewString(),
			ExternalUserID: bounty.AuthorID,
			Kind:           "bounty_application",
			Title:          "New application",
			Body:           fmt.Sprintf("Someone applied to %q", bounty.Title),
			Metadata:       fmt.Sprintf(`{"bounty_id":%q,"application_id":%q}`, bounty.ID, app.ID),
		}).Error
	})
	if err != nil {
		// The unique index on (bounty, user) is the duplicate guard, so a
		// concurrent double-apply lands here instead of racing a pre-check.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You already applied to this bounty"})
		}
		log.Printf("[bounty] DB error creating application: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to apply"})
	}

	return c.Status(fiber.StatusCreated).JSON(app)
}

// AcceptApplication lets the author pick a worker. Sets claimed_by and
// declines the remaining applications.
func (s *BountyService) AcceptApplication(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bountyID := c.Params("id")
	appID := c.Params("appID")
	if _, err := uuid.Parse(bountyID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bounty ID"})
	}
	if _, err := uuid.Parse(appID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid application ID"})
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&bounty, "id = ?", bountyID).Error; err != nil {
			return err
		}
		if bounty.AuthorID != userID {
			return errForbidden
		}
		if bounty.Status != models.BountyStatusActive {
			return errBountyClosed
		}
		if bounty.ClaimedBy != nil {
			return errAlreadyClaimed
		}

		var app models.BountyApplication
		if err := tx.First(&app, "id = ? AND bounty_id = ?", appID, bountyID).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.BountyApplication{}).
			Where("id = ?", app.ID).
			Update("status", models.ApplicationStatusAccepted).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.BountyApplication{}).
			Where("bounty_id = ? AND id <> ?", bountyID, app.ID).
			Update("status", models.ApplicationStatusDeclined).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Bounty{}).
			Where("id = ?", bountyID).
			Update("claimed_by", app.ExternalUserID).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			ID:             uuid.NewString(),
			ExternalUserID: app.ExternalUserID,
			Kind:           "application_accepted",
			Title:          "Application accepted",
			Body:           fmt.Sprintf("You were picked for %q", bounty.Title),
			Metadata:       fmt.Sprintf(`{"bounty_id":%q}`, bounty.ID),
		}).Error
	})
	if err != nil {
		return s.bountyTxError(c, err, "Failed to accept application")
	}

	return c.JSON(fiber.Map{"message": "Application accepted"})
}

// CompleteBounty is the author confirming delivery: the escrowed reward is
// split by the fee policy, the worker is credited the net amount and the
// fee lands in platform revenue, all in one transaction.
func (s *BountyService) CompleteBounty(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bountyID := c.Params("id")
	if _, err := uuid.Parse(bountyID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bounty ID"})
	}

	var quote FeeQuote
	var claimant string
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&bounty, "id = ?", bountyID).Error; err != nil {
			return err
		}
		if bounty.AuthorID != userID {
			return errForbidden
		}
		if bounty.Status != models.BountyStatusActive {
			return errBountyClosed
		}
		if bounty.ClaimedBy == nil {
			return errNotClaimed
		}
		claimant = *bounty.ClaimedBy
		quote = s.Fees.Quote(bounty.Reward)

		now := time.Now()
		if err := tx.Model(&models.Bounty{}).
			Where("id = ? AND status = ?", bounty.ID, models.BountyStatusActive).
			Updates(map[string]interface{}{
				"status":       models.BountyStatusCompleted,
				"completed_at": now,
			}).Error; err != nil {
			return err
		}

		if _, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID:  claimant,
			Amount:          quote.Net,
			Type:            models.TransactionTypeEarning,
			Description:     fmt.Sprintf("Payout for bounty %q", bounty.Title),
			BountyID:        &bounty.ID,
			CountsAsEarning: true,
			Activity: &models.Activity{
				ID:    uuid.NewString(),
				Kind:  "bounty_paid",
				Title: "Bounty payout",
				Body: fmt.Sprintf("You earned $%s for %q ($%s fee withheld)",
					quote.Net.StringFixed(2), bounty.Title, quote.Fee.StringFixed(2)),
				Metadata: fmt.Sprintf(`{"bounty_id":%q}`, bounty.ID),
			},
			Revenue: &models.PlatformRevenue{
				ID:       uuid.NewString(),
				Amount:   quote.Fee,
				Source:   models.RevenueSourceBountyCompletion,
				BountyID: &bounty.ID,
			},
		}); err != nil {
			return err
		}

		return tx.Create(&models.Activity{
			ID:             uuid.NewString(),
			ExternalUserID: bounty.AuthorID,
			Kind:           "bounty_completed",
			Title:          "Bounty completed",
			Body:           fmt.Sprintf("%q is done — the worker has been paid", bounty.Title),
			Metadata:       fmt.Sprintf(`{"bounty_id":%q}`, bounty.ID),
		}).Error
	})
	if err != nil {
		return s.bountyTxError(c, err, "Failed to complete bounty")
	}

	return c.JSON(fiber.Map{
		"message":      "Bounty completed",
		"gross_amount": quote.Gross.StringFixed(2),
		"net_amount":   quote.Net.StringFixed(2),
		"fee":          quote.Fee.StringFixed(2),
		"paid_to":      claimant,
	})
}

// UploadAttachment stores a brief or asset file for a bounty, on R2 when
// configured and on local disk otherwise.
func (s *BountyService) UploadAttachment(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bountyID := c.Params("id")
	if _, err := uuid.Parse(bountyID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bounty ID"})
	}

	var bounty models.Bounty
	if err := s.DB.First(&bounty, "id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bounty not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
	}
	if bounty.AuthorID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the author can attach files"})
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file field is required"})
	}
	if fileHeader.Size > 25*1024*1024 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Attachment exceeds the 25MB limit"})
	}

	key := fmt.Sprintf("attachments/%s/%s%s", bounty.ID, uuid.NewString(), filepath.Ext(fileHeader.Filename))
	var url string
	if utils.R2Enabled() {
		url, err = utils.UploadFileToR2(fileHeader, key)
	} else {
		dest := utils.GetUploadPath(key)
		if err = utils.SaveFile(fileHeader, dest); err == nil {
			url = "/" + dest
		}
	}
	if err != nil {
		log.Printf("[bounty] attachment upload failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to store attachment"})
	}

	att := &models.BountyAttachment{
		ID:        uuid.NewString(),
		BountyID:  bounty.ID,
		FileName:  fileHeader.Filename,
		URL:       url,
		SizeBytes: fileHeader.Size,
	}
	if err := s.DB.Create(att).Error; err != nil {
		log.Printf("[bounty] DB error saving attachment: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save attachment"})
	}

	return c.Status(fiber.StatusCreated).JSON(att)
}

var (
	errForbidden      = errors.New("forbidden")
	errBountyClosed   = errors.New("bounty is not active")
	errAlreadyClaimed = errors.New("bounty already has a worker")
	errNotClaimed     = errors.New("bounty has no accepted worker yet")
)

func (s *BountyService) bountyTxError(c *fiber.Ctx, err error, fallback string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Not found"})
	case errors.Is(err, errForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not the author of this bounty"})
	case errors.Is(err, errBountyClosed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Bounty is not active"})
	case errors.Is(err, errAlreadyClaimed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Bounty already has a worker"})
	case errors.Is(err, errNotClaimed):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Accept an application before completing"})
	default:
		log.Printf("[bounty] transaction failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": fallback})
	}
}
