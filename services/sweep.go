package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"pocket-bounty/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExpirySweeper settles bounties that outlived their duration: the author
// gets the escrowed reward back minus the platform fee, exactly once. It is
// a scheduled job, not a read-path side effect, so list latency never grows
// with backlog.
type ExpirySweeper struct {
	DB     *gorm.DB
	Ledger *LedgerService
	Fees   FeePolicy
	// Optional lease store. With multiple instances running, the SETNX
	// lease keeps two sweepers from working the same bounty; the row-level
	// status re-check below makes settlement safe even without it.
	Redis *redis.Client

	scheduler gocron.Scheduler
}

func NewExpirySweeper(db *gorm.DB, ledger *LedgerService, fees FeePolicy, rdb *redis.Client) *ExpirySweeper {
	return &ExpirySweeper{DB: db, Ledger: ledger, Fees: fees, Redis: rdb}
}

// Start runs the sweep every minute until ctx is cancelled.
func (s *ExpirySweeper) Start(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("[sweep] failed to create scheduler: %v", err)
	}
	s.scheduler = sched

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			settled, err := s.SweepOnce(ctx)
			if err != nil {
				log.Printf("[sweep] sweep failed: %v", err)
			}
			if settled > 0 {
				log.Printf("[sweep] settled %d expired bounties", settled)
			}
		}),
	)
	if err != nil {
		log.Fatalf("[sweep] failed to schedule sweep job: %v", err)
	}

	sched.Start()
	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
}

// SweepOnce settles every active bounty past its cutoff and reports how
// many were settled.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	var expired []models.Bounty
	err := s.DB.WithContext(ctx).
		Where("status = ? AND created_at + make_interval(days => duration_days) < ?",
			models.BountyStatusActive, time.Now()).
		Find(&expired).Error
	if err != nil {
		return 0, fmt.Errorf("failed to scan for expired bounties: %w", err)
	}

	settled := 0
	for _, bounty := range expired {
		if !s.claim(ctx, bounty.ID) {
			continue
		}
		if err := s.settle(ctx, bounty.ID); err != nil {
			log.Printf("[sweep] failed to settle bounty %s: %v", bounty.ID, err)
			continue
		}
		settled++
	}
	return settled, nil
}

// claim takes a short lease on the bounty so concurrent sweepers skip it.
func (s *ExpirySweeper) claim(ctx context.Context, bountyID string) bool {
	if s.Redis == nil {
		return true
	}
	ok, err := s.Redis.SetNX(ctx, "sweep:bounty:"+bountyID, "1", 5*time.Minute).Result()
	if err != nil {
		log.Printf("[sweep] redis lease failed for %s, falling back to row lock: %v", bountyID, err)
		return true
	}
	return ok
}

// settle flips one bounty to expired and refunds the author net of the fee.
// The status re-check under the row lock makes this idempotent: a second
// settle of the same bounty is a no-op.
func (s *ExpirySweeper) settle(ctx context.Context, bountyID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var bounty models.Bounty
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&bounty, "id = ?", bountyID).Error; err != nil {
			return err
		}
		if bounty.Status != models.BountyStatusActive {
			// Already settled (or completed) by someone else.
			return nil
		}

		res := tx.Model(&models.Bounty{}).
			Where("id = ? AND status = ?", bounty.ID, models.BountyStatusActive).
			Update("status", models.BountyStatusExpired)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		quote := s.Fees.Quote(bounty.Reward)
		_, err := s.Ledger.Apply(tx, Movement{
			ExternalUserID: bounty.AuthorID,
			Amount:         quote.Net,
			Type:           models.TransactionTypeRefund,
			Description: fmt.Sprintf("Refund for expired bounty %q ($%s fee withheld)",
				bounty.Title, quote.Fee.StringFixed(2)),
			BountyID: &bounty.ID,
			Activity: &models.Activity{
				ID:    uuid.NewString(),
				Kind:  "bounty_expired",
				Title: "Bounty expired",
				Body: fmt.Sprintf("%q expired unclaimed — $%s returned to your balance",
					bounty.Title, quote.Net.StringFixed(2)),
				Metadata: fmt.Sprintf(`{"bounty_id":%q}`, bounty.ID),
			},
			Revenue: &models.PlatformRevenue{
				ID:       uuid.NewString(),
				Amount:   quote.Fee,
				Source:   models.RevenueSourceExpiredBountyFee,
				BountyID: &bounty.ID,
			},
		})
		return err
	})
}
