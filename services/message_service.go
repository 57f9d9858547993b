package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageService struct {
	DB  *gorm.DB
	Hub *Hub
}

func NewMessageService(db *gorm.DB, hub *Hub) *MessageService {
	return &MessageService{DB: db, Hub: hub}
}

// pairKey normalizes a two-user pair so one thread exists per pair.
func pairKey(a, b string) (low, high string) {
	if strings.Compare(a, b) < 0 {
		return a, b
	}
	return b, a
}

// OpenThread returns the thread between the caller and another user,
// creating it on first contact.
func (s *MessageService) OpenThread(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id is required"})
	}
	if req.UserID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "You cannot message yourself"})
	}

	low, high := pairKey(userID, req.UserID)
	var thread models.MessageThread
	err := s.DB.Where("user_low_id = ? AND user_high_id = ?", low, high).First(&thread).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		thread = models.MessageThread{
			ID:         uuid.NewString(),
			UserLowID:  low,
			UserHighID: high,
		}
		err = s.DB.Create(&thread).Error
	}
	if err != nil {
		log.Printf("[messages] DB error opening thread: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to open thread"})
	}

	return c.JSON(thread)
}

// ListThreads returns the caller's conversations, most recent first.
func (s *MessageService) ListThreads(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	var threads []models.MessageThread
	if err := s.DB.Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Order("last_message_at DESC NULLS LAST").
		Find(&threads).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
	return c.JSON(threads)
}

// threadFor loads a thread and enforces that the caller is a participant.
func (s *MessageService) threadFor(c *fiber.Ctx, userID string) (*models.MessageThread, error) {
	threadID := c.Params("id")
	var thread models.MessageThread
	if err := s.DB.First(&thread, "id = ?", threadID).Error; err != nil {
		return nil, err
	}
	if thread.UserLowID != userID && thread.UserHighID != userID {
		return nil, errForbidden
	}
	return &thread, nil
}

// GetMessages lists a thread's messages for a participant and marks the
// other side's messages read.
func (s *MessageService) GetMessages(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	thread, err := s.threadFor(c, userID)
	if err != nil {
		return s.threadError(c, err)
	}

	var messages []models.Message
	if err := s.DB.Where("thread_id = ?", thread.ID).
		Order("created_at ASC").
		Find(&messages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}

	if err := s.DB.Model(&models.Message{}).
		Where("thread_id = ? AND sender_id <> ? AND read = ?", thread.ID, userID, false).
		Update("read", true).Error; err != nil {
		log.Printf("[messages] failed to mark read: %v", err)
	}

	return c.JSON(messages)
}

// SendMessage appends to a thread and pushes the message over the hub to
// the other participant only.
func (s *MessageService) SendMessage(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	thread, err := s.threadFor(c, userID)
	if err != nil {
		return s.threadError(c, err)
	}

	var req struct {
		Body string `json:"body"`
	}
	if err := c.BodyParser(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message body is required"})
	}
	if len(req.Body) > 4000 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is too long"})
	}

	msg := &models.Message{
		ID:       uuid.NewString(),
		ThreadID: thread.ID,
		SenderID: userID,
		Body:     req.Body,
	}
	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.MessageThread{}).
			Where("id = ?", thread.ID).
			Update("last_message_at", now).Error
	})
	if err != nil {
		log.Printf("[messages] DB error sending message: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to send message"})
	}

	recipient := thread.UserLowID
	if recipient == userID {
		recipient = thread.UserHighID
	}
	s.Hub.SendTo(recipient, fiber.Map{
		"type":      "message",
		"thread_id": thread.ID,
		"message":   msg,
	})

	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (s *MessageService) threadError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Thread not found"})
	case errors.Is(err, errForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You are not part of this thread"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Database error"})
	}
}
