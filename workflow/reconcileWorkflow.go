package workflow

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/utils"
)

// Gateway outcome kinds carried by GatewayResult.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// SignatureVerifier checks the client-supplied payment signature
// (HMAC over orderId|paymentId). Implemented by the gateway client.
type SignatureVerifier interface {
	VerifyPaymentSignature(gatewayOrderId string, gatewayPaymentId string, signature string) error
}

// GatewayResult is a normalized gateway outcome, whether it arrived via a
// webhook delivery or a synchronous client confirmation.
type GatewayResult struct {
	Outcome          string
	GatewayPaymentId string
	Signature        string
	// TransportVerified is set by the webhook intake after the raw-body HMAC
	// check passed; it substitutes for the per-payment signature.
	TransportVerified bool
	PaymentMethod     string
	Bank              string
	Wallet            string
	ErrorCode         string
	ErrorDescription  string
}

type ApplyOutcome struct {
	DonationId      string
	CampaignId      string
	OrderStatus     models.PaymentOrderStatus
	DonationStatus  models.DonationStatus
	AlreadyFinal    bool
	CollectedAmount decimal.Decimal
}

// ApplyGatewayResult is the single mutator for post-creation donation state.
// It serializes on the gateway order (advisory lock + row lock), treats a
// terminal order as a committed no-op, and recomputes the campaign aggregate
// inside the same transaction as the state transition.
func ApplyGatewayResult(ctx context.Context, verifier SignatureVerifier, gatewayOrderId string, res GatewayResult) (*ApplyOutcome, error) {

	logger := config.GetLogger()

	if res.Outcome != OutcomeSuccess && res.Outcome != OutcomeFailure {
		return nil, utils.ValidationErrorf("unknown gateway outcome %q", res.Outcome)
	}
	if gatewayOrderId == "" {
		return nil, utils.ValidationErrorf("gateway order id is required")
	}

	db := config.GetDB()
	var outcome ApplyOutcome
	var campaignMutated bool

	err := db.Transaction(func(tx *gorm.DB) error {

		if err := AcquireOrderPostingLock(tx, gatewayOrderId); err != nil {
			config.LogError(logger, "reconcileWorkflow.go", "ApplyGatewayResult", "AcquireOrderPostingLock", gatewayOrderId, err)
			return err
		}
		defer ReleaseOrderPostingLock(tx, gatewayOrderId)

		var order models.PaymentOrder
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "gateway_order_id = ?", gatewayOrderId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}

		var donation models.Donation
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&donation, "id = ?", order.DonationId).Error; err != nil {
			config.LogError(logger, "reconcileWorkflow.go", "ApplyGatewayResult", "LoadDonation", order.DonationId, err)
			return err
		}

		outcome.DonationId = donation.ID
		outcome.CampaignId = donation.CampaignId

		if order.Status.IsTerminal() {
			// Committed no-op: report existing state, mutate nothing.
			outcome.AlreadyFinal = true
			outcome.OrderStatus = order.Status
			outcome.DonationStatus = donation.Status
			return tx.WithContext(ctx).Model(&models.Campaign{}).
				Where("id = ?", donation.CampaignId).
				Select("collected_amount").Scan(&outcome.CollectedAmount).Error
		}

		if res.Outcome == OutcomeSuccess {
			// Failure events from the gateway carry no payment signature;
			// success must prove authenticity one way or the other.
			if !res.TransportVerified {
				if err := verifier.VerifyPaymentSignature(gatewayOrderId, res.GatewayPaymentId, res.Signature); err != nil {
					return err
				}
			}
			return applyPaid(tx, ctx, &order, &donation, res, &outcome, &campaignMutated)
		}
		return applyFailed(tx, ctx, &order, &donation, res, &outcome)
	})
	if err != nil {
		return nil, err
	}

	if campaignMutated {
		if err := models.RemoveCampaignRedis(outcome.CampaignId); err != nil {
			config.LogError(logger, "reconcileWorkflow.go", "ApplyGatewayResult", "RemoveCampaignRedis", outcome.CampaignId, err)
		}
	}
	return &outcome, nil
}

func applyPaid(tx *gorm.DB, ctx context.Context, order *models.PaymentOrder, donation *models.Donation, res GatewayResult, outcome *ApplyOutcome, campaignMutated *bool) error {

	logger := config.GetLogger()
	now := time.Now().UTC()

	if err := tx.WithContext(ctx).Model(&models.PaymentOrder{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":             models.PaymentOrderStatusPaid,
			"gateway_payment_id": res.GatewayPaymentId,
			"gateway_signature":  res.Signature,
			"payment_method":     res.PaymentMethod,
			"bank":               res.Bank,
			"wallet":             res.Wallet,
		}).Error; err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyPaid", "UpdateOrder", order.ID, err)
		return err
	}

	if err := tx.WithContext(ctx).Model(&models.Donation{}).Where("id = ?", donation.ID).
		Updates(map[string]interface{}{
			"status":  models.DonationStatusPaid,
			"paid_at": &now,
		}).Error; err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyPaid", "UpdateDonation", donation.ID, err)
		return err
	}
	donation.Status = models.DonationStatusPaid
	donation.PaidAt = &now

	receipt, err := models.CreateDonationReceipt(tx, ctx, donation, now)
	if err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyPaid", "CreateDonationReceipt", donation.ID, err)
		return err
	}

	if err := models.AppendDonationEvent(ctx, tx, models.DonationEventPaid, donation, receipt, now); err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyPaid", "AppendDonationEvent", donation.ID, err)
		return err
	}

	collected, _, err := RecomputeCampaignAggregate(tx, ctx, donation.CampaignId)
	if err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyPaid", "RecomputeCampaignAggregate", donation.CampaignId, err)
		return err
	}

	outcome.OrderStatus = models.PaymentOrderStatusPaid
	outcome.DonationStatus = models.DonationStatusPaid
	outcome.CollectedAmount = collected
	*campaignMutated = true
	return nil
}

func applyFailed(tx *gorm.DB, ctx context.Context, order *models.PaymentOrder, donation *models.Donation, res GatewayResult, outcome *ApplyOutcome) error {

	logger := config.GetLogger()
	now := time.Now().UTC()

	if err := tx.WithContext(ctx).Model(&models.PaymentOrder{}).Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":             models.PaymentOrderStatusFailed,
			"gateway_payment_id": res.GatewayPaymentId,
			"payment_method":     res.PaymentMethod,
			"bank":               res.Bank,
			"wallet":             res.Wallet,
			"error_code":         res.ErrorCode,
			"error_description":  res.ErrorDescription,
		}).Error; err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyFailed", "UpdateOrder", order.ID, err)
		return err
	}

	if err := tx.WithContext(ctx).Model(&models.Donation{}).Where("id = ?", donation.ID).
		Update("status", models.DonationStatusFailed).Error; err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyFailed", "UpdateDonation", donation.ID, err)
		return err
	}
	donation.Status = models.DonationStatusFailed

	if err := models.AppendDonationEvent(ctx, tx, models.DonationEventFailed, donation, nil, now); err != nil {
		config.LogError(logger, "reconcileWorkflow.go", "applyFailed", "AppendDonationEvent", donation.ID, err)
		return err
	}

	// Failed donations never enter the aggregate; nothing to recompute.
	outcome.OrderStatus = models.PaymentOrderStatusFailed
	outcome.DonationStatus = models.DonationStatusFailed
	return tx.WithContext(ctx).Model(&models.Campaign{}).
		Where("id = ?", donation.CampaignId).
		Select("collected_amount").Scan(&outcome.CollectedAmount).Error
}

// RecomputeCampaignAggregate derives collected_amount and donor_count from the
// paid donation ledger. It never increments: the full recompute makes the same
// transition idempotent no matter how many times a result is applied.
func RecomputeCampaignAggregate(tx *gorm.DB, ctx context.Context, campaignId string) (decimal.Decimal, int, error) {

	type aggregateRow struct {
		TotalCollected decimal.Decimal
		DonorCount     int
	}
	var agg aggregateRow
	sql := `
SELECT
    COALESCE(SUM(amount), 0) AS total_collected,
    COUNT(DISTINCT CASE WHEN donor_id > 0 THEN donor_id ELSE id END) AS donor_count
FROM
    donations
WHERE
    campaign_id = @campaignId AND status = 'paid'
`
	if err := tx.WithContext(ctx).Raw(sql, map[string]interface{}{
		"campaignId": campaignId,
	}).Scan(&agg).Error; err != nil {
		return decimal.Zero, 0, err
	}

	if err := tx.WithContext(ctx).Model(&models.Campaign{}).Where("id = ?", campaignId).
		Updates(map[string]interface{}{
			"collected_amount": agg.TotalCollected,
			"donor_count":      agg.DonorCount,
		}).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return agg.TotalCollected, agg.DonorCount, nil
}
