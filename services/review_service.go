package services

import (
	"errors"
	"log"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReviewService struct {
	DB *gorm.DB
}

func NewReviewService(db *gorm.DB) *ReviewService {
	return &ReviewService{DB: db}
}

// CreateReview rates the counterparty of a completed bounty. Author reviews
// the worker, worker reviews the author; one review per reviewer per bounty.
func (s *ReviewService) CreateReview(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	bountyID := c.Params("id")
	if _, err := uuid.Parse(bountyID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid bounty ID"})
	}

	var req struct {
		Stars   int    `json:"stars"`
		Comment string `json:"comment"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Stars < 1 || req.Stars > 5 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Stars must be between 1 and 5"})
	}

	var bounty models.Bounty
	if err := s.DB.First(&bounty, "id = ?", bountyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Bounty not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if bounty.Status != models.BountyStatusCompleted || bounty.ClaimedBy == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Only completed bounties can be reviewed"})
	}

	var reviewee string
	switch userID {
	case bounty.AuthorID:
		reviewee = *bounty.ClaimedBy
	case *bounty.ClaimedBy:
		reviewee = bounty.AuthorID
	default:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the author or the worker can review"})
	}

	var existing int64
	s.DB.Model(&models.Review{}).
		Where("bounty_id = ? AND reviewer_id = ?", bountyID, userID).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "You already reviewed this bounty"})
	}

	review := &models.Review{
		ID:         uuid.NewString(),
		BountyID:   bountyID,
		ReviewerID: userID,
		RevieweeID: reviewee,
		Stars:      req.Stars,
		Comment:    req.Comment,
	}

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(review).Error; err != nil {
			return err
		}
		// Roll the reviewee's rating forward under a lock so concurrent
		// reviews don't lose an increment.
		var user models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_user_id = ?", reviewee).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// Reviewee has no wallet row yet; nothing to roll up.
				return nil
			}
			return err
		}
		newCount := user.RatingCount + 1
		newRating := (user.Rating*float64(user.RatingCount) + float64(req.Stars)) / float64(newCount)
		return tx.Model(&models.User{}).
			Where("id = ?", user.ID).
			Updates(map[string]interface{}{
				"rating":       newRating,
				"rating_count": newCount,
			}).Error
	})
	if err != nil {
		log.Printf("[reviews] DB error creating review: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save review"})
	}

	return c.Status(fiber.StatusCreated).JSON(review)
}

// GetReviews lists reviews received by a user.
func (s *ReviewService) GetReviews(c *fiber.Ctx) error {
	revieweeID := c.Params("userID")
	var reviews []models.Review
	if err := s.DB.Where("reviewee_id = ?", revieweeID).
		Order("created_at DESC").
		Limit(100).
		Find(&reviews).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(reviews)
}
