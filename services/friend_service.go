package services

import (
	"errors"
	"log"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FriendService struct {
	DB *gorm.DB
}

func NewFriendService(db *gorm.DB) *FriendService {
	return &FriendService{DB: db}
}

// RequestFriend opens a pending request toward another user.
func (s *FriendService) RequestFriend(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	if req.UserID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot friend yourself"})
	}

	var existing int64
	s.DB.Model(&models.Friendship{}).
		Where("(requester_id = ? AND addressee_id = ?) OR (requester_id = ? AND addressee_id = ?)",
			userID, req.UserID, req.UserID, userID).
		Count(&existing)
	if existing > 0 {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Friend request already exists"})
	}

	friendship := &models.Friendship{
		ID:          uuid.NewString(),
		RequesterID: userID,
		AddresseeID: req.UserID,
		Status:      models.FriendshipStatusPending,
	}
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(friendship).Error; err != nil {
			return err
		}
		return tx.Create(&models.Activity{
			ID:             uuid.NewString(),
			ExternalUserID: req.UserID,
			Kind:           "friend_request",
			Title:          "Friend request",
			Body:           "You have a new friend request",
			Metadata:       `{"friendship_id":"` + friendship.ID + `"}`,
		}).Error
	})
	if err != nil {
		log.Printf("[friends] DB error creating request: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send request"})
	}

	return c.Status(fiber.StatusCreated).JSON(friendship)
}

// RespondFriend accepts or declines a pending request. Only the addressee
// may respond, and only while the request is pending.
func (s *FriendService) RespondFriend(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)
	id := c.Params("id")

	var req struct {
		Accept bool `json:"accept"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	var friendship models.Friendship
	if err := s.DB.First(&friendship, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Friend request not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	if friendship.AddresseeID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only the recipient can respond"})
	}
	if friendship.Status != models.FriendshipStatusPending {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Request already answered"})
	}

	status := models.FriendshipStatusDeclined
	if req.Accept {
		status = models.FriendshipStatusAccepted
	}
	if err := s.DB.Model(&models.Friendship{}).
		Where("id = ? AND status = ?", friendship.ID, models.FriendshipStatusPending).
		Update("status", status).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update request"})
	}

	return c.JSON(fiber.Map{"message": "Request " + string(status)})
}

// ListFriends returns accepted friendships and pending requests aimed at
// the caller.
func (s *FriendService) ListFriends(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var accepted []models.Friendship
	if err := s.DB.Where("(requester_id = ? OR addressee_id = ?) AND status = ?",
		userID, userID, models.FriendshipStatusAccepted).
		Find(&accepted).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	var pending []models.Friendship
	if err := s.DB.Where("addressee_id = ? AND status = ?", userID, models.FriendshipStatusPending).
		Find(&pending).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	return c.JSON(fiber.Map{"friends": accepted, "pending": pending})
}
