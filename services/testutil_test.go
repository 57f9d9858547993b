package services

import (
	"fmt"
	"os"
	"testing"
	"time"

	"pocket-bounty/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a throwaway schema on the database named by
// TEST_DATABASE_URL, migrates into it, and drops it on cleanup. Tests skip
// when the variable is unset.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	schema := fmt.Sprintf("pb_test_%d", time.Now().UnixNano())
	if err := db.Exec("CREATE SCHEMA " + schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}

	// Pin the pool to one connection so SET search_path covers every query.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("SET search_path TO " + schema).Error; err != nil {
		t.Fatalf("set search_path: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Bounty{},
		&models.BountyApplication{},
		&models.BountyAttachment{},
		&models.Transaction{},
		&models.PlatformRevenue{},
		&models.Activity{},
		&models.Payment{},
		&models.PaymentMethod{},
		&models.MessageThread{},
		&models.Message{},
		&models.Friendship{},
		&models.Review{},
		&models.Referral{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Exec("DROP SCHEMA " + schema + " CASCADE").Error
		_ = sqlDB.Close()
	})
	return db
}
