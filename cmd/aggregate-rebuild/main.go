package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/utils"
	"github.com/givegrip/givegrip_backend/workflow"
)

func main() {
	campaignID := flag.String("campaign-id", "", "Optional: campaign id (uuid). Defaults to every campaign with paid donations.")
	dryRun := flag.Bool("dry-run", false, "Report drift without writing")
	continueOnError := flag.Bool("continue-on-error", false, "Skip failing campaigns and continue rebuilding others")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	ctx := context.Background()

	var campaignIDs []string
	if strings.TrimSpace(*campaignID) != "" {
		campaignIDs = append(campaignIDs, strings.TrimSpace(*campaignID))
	} else {
		if err := db.Model(&models.Campaign{}).Order("created_at ASC").
			Pluck("id", &campaignIDs).Error; err != nil {
			fmt.Fprintf(os.Stderr, "discover campaigns: %v\n", err)
			os.Exit(1)
		}
	}

	var drifted int
	for _, id := range campaignIDs {
		// Single-flight per campaign so two operators (or an operator plus a
		// deploy hook) don't rebuild the same ledger concurrently.
		release, err := utils.CampaignLock(ctx, id, "AggregateRebuildLock", "aggregate-rebuild", "main")
		if err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "lock failed (skipping) campaign=%s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "lock failed campaign=%s: %v\n", id, err)
			os.Exit(1)
		}

		err = rebuildOne(ctx, db, id, *dryRun, &drifted)
		release()
		if err != nil {
			if *continueOnError {
				fmt.Fprintf(os.Stderr, "rebuild failed (skipping) campaign=%s: %v\n", id, err)
				continue
			}
			fmt.Fprintf(os.Stderr, "rebuild failed campaign=%s: %v\n", id, err)
			os.Exit(1)
		}
	}

	fmt.Printf("aggregate rebuild complete: %d campaigns checked, %d drifted\n", len(campaignIDs), drifted)
}

func rebuildOne(ctx context.Context, db *gorm.DB, campaignId string, dryRun bool, drifted *int) error {

	var stored decimal.Decimal
	if err := db.Model(&models.Campaign{}).Where("id = ?", campaignId).
		Select("collected_amount").Scan(&stored).Error; err != nil {
		return err
	}

	if dryRun {
		type aggregateRow struct {
			TotalCollected decimal.Decimal
		}
		var agg aggregateRow
		if err := db.Raw(`
			SELECT COALESCE(SUM(amount), 0) AS total_collected
			FROM donations
			WHERE campaign_id = ? AND status = 'paid'
		`, campaignId).Scan(&agg).Error; err != nil {
			return err
		}
		if !agg.TotalCollected.Equal(stored) {
			*drifted++
			fmt.Printf("DRIFT campaign=%s stored=%s ledger=%s\n", campaignId, stored, agg.TotalCollected)
		}
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		collected, donorCount, err := workflow.RecomputeCampaignAggregate(tx, ctx, campaignId)
		if err != nil {
			return err
		}
		if !collected.Equal(stored) {
			*drifted++
			fmt.Printf("FIXED campaign=%s stored=%s ledger=%s donors=%d\n", campaignId, stored, collected, donorCount)
		}
		if err := models.RemoveCampaignRedis(campaignId); err != nil {
			return err
		}
		return nil
	})
}
