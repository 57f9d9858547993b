package services

import (
	"log"

	"pocket-bounty/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type StatsService struct {
	DB *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{DB: db}
}

// hasRole checks the gateway-provided roles on the request context.
func hasRole(c *fiber.Ctx, role string) bool {
	roles, _ := c.Locals("user_roles").([]string)
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// GetCreatorStats is the operator dashboard: revenue by source plus user
// and bounty counts. Gated on the admin role from the gateway, not on a
// hardcoded user id.
func (s *StatsService) GetCreatorStats(c *fiber.Ctx) error {
	if !hasRole(c, "admin") {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Admin role required"})
	}

	type sourceTotal struct {
		Source string `json:"source"`
		Total  string `json:"total"`
		Count  int64  `json:"count"`
	}
	var bySource []sourceTotal
	if err := s.DB.Raw(`
		SELECT source, COALESCE(SUM(amount), 0)::text AS total, COUNT(*) AS count
		FROM platform_revenues
		GROUP BY source
		ORDER BY SUM(amount) DESC
	`).Scan(&bySource).Error; err != nil {
		log.Printf("[stats] revenue aggregate failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load stats"})
	}

	var totalRevenue struct {
		Total string `json:"total"`
	}
	if err := s.DB.Raw(`SELECT COALESCE(SUM(amount), 0)::text AS total FROM platform_revenues`).
		Scan(&totalRevenue).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load stats"})
	}

	var userCount, bountyCount, activeBounties int64
	s.DB.Model(&models.User{}).Count(&userCount)
	s.DB.Model(&models.Bounty{}).Count(&bountyCount)
	s.DB.Model(&models.Bounty{}).Where("status = ?", models.BountyStatusActive).Count(&activeBounties)

	var recent []models.PlatformRevenue
	if err := s.DB.Order("created_at DESC").Limit(20).Find(&recent).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load stats"})
	}

	return c.JSON(fiber.Map{
		"total_revenue":     totalRevenue.Total,
		"revenue_by_source": bySource,
		"user_count":        userCount,
		"bounty_count":      bountyCount,
		"active_bounties":   activeBounties,
		"recent_revenue":    recent,
	})
}
