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

// GatewayOrder is the gateway's view of a freshly created order.
type GatewayOrder struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// OrderCreator creates payment orders at the gateway. Implemented by the
// gateway client; a test double stands in for it in unit tests.
type OrderCreator interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, receipt string) (*GatewayOrder, error)
	KeyId() string
}

// DonationIntent is what the checkout page needs to open the gateway widget.
type DonationIntent struct {
	DonationId     string          `json:"donation_id"`
	OrderId        string          `json:"order_id"`
	GatewayOrderId string          `json:"gateway_order_id"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	KeyId          string          `json:"key_id"`
}

// CreateDonation validates the request, creates the gateway order (outside any
// DB transaction), then persists Donation(pending) + PaymentOrder(created) in
// one transaction.
func CreateDonation(ctx context.Context, orders OrderCreator, input *models.NewDonation) (*DonationIntent, error) {

	logger := config.GetLogger()

	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.ValidationErrorf("donation amount must be positive")
	}

	campaign, err := models.GetCampaign(ctx, input.CampaignId)
	if err != nil {
		return nil, err
	}
	if !campaign.IsDonatable(time.Now().UTC()) {
		return nil, utils.ValidationErrorf("campaign is not accepting donations")
	}
	currency := input.Currency
	if currency == "" {
		currency = campaign.Currency
	}
	if currency != campaign.Currency {
		return nil, utils.ValidationErrorf("currency %s does not match campaign currency %s", currency, campaign.Currency)
	}
	if input.DonorId != 0 {
		if err := utils.ValidateResourceId[models.User](ctx, input.DonorId); err != nil {
			return nil, utils.ValidationErrorf("donor not found")
		}
	}

	// Gateway call happens before the transaction: never hold a DB
	// transaction open across an external HTTP call.
	gatewayOrder, err := orders.CreateOrder(ctx, input.Amount, currency, "campaign:"+campaign.ID)
	if err != nil {
		config.LogError(logger, "donationWorkflow.go", "CreateDonation", "CreateOrder", input.CampaignId, err)
		return nil, err
	}

	donation := models.Donation{
		CampaignId:  campaign.ID,
		DonorId:     input.DonorId,
		Amount:      input.Amount,
		Currency:    currency,
		Status:      models.DonationStatusPending,
		IsAnonymous: input.IsAnonymous,
		DonorName:   input.DonorName,
		DonorEmail:  input.DonorEmail,
		Message:     input.Message,
	}
	order := models.PaymentOrder{
		GatewayOrderId: gatewayOrder.ID,
		Amount:         input.Amount,
		Currency:       currency,
		Status:         models.PaymentOrderStatusCreated,
	}

	db := config.GetDB()
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Create(&donation).Error; err != nil {
			return err
		}
		order.DonationId = donation.ID
		if err := tx.WithContext(ctx).Create(&order).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		config.LogError(logger, "donationWorkflow.go", "CreateDonation", "PersistDonation", gatewayOrder.ID, err)
		return nil, err
	}

	return &DonationIntent{
		DonationId:     donation.ID,
		OrderId:        order.ID,
		GatewayOrderId: order.GatewayOrderId,
		Amount:         order.Amount,
		Currency:       order.Currency,
		KeyId:          orders.KeyId(),
	}, nil
}

// CancelDonation is a donor-initiated abort of a pending donation. Terminal
// donations are immutable; only pending ones can be cancelled.
func CancelDonation(ctx context.Context, donationId string, donorId int) (*models.Donation, error) {

	logger := config.GetLogger()
	db := config.GetDB()
	var donation models.Donation

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&donation, "id = ?", donationId).Error; err != nil {
			return utils.ErrorRecordNotFound
		}
		if donation.DonorId != donorId && !utils.GetIsAdminFromContext(ctx) {
			return utils.ErrorRecordNotFound
		}
		if donation.Status != models.DonationStatusPending {
			return utils.ConflictErrorf("donation is already %s", donation.Status)
		}

		if err := tx.WithContext(ctx).Model(&models.Donation{}).Where("id = ?", donation.ID).
			Update("status", models.DonationStatusCancelled).Error; err != nil {
			return err
		}
		if err := tx.WithContext(ctx).Model(&models.PaymentOrder{}).
			Where("donation_id = ? AND status = ?", donation.ID, models.PaymentOrderStatusCreated).
			Update("status", models.PaymentOrderStatusCancelled).Error; err != nil {
			return err
		}
		donation.Status = models.DonationStatusCancelled
		return models.AppendDonationEvent(ctx, tx, models.DonationEventCancelled, &donation, nil, time.Now().UTC())
	})
	if err != nil {
		config.LogError(logger, "donationWorkflow.go", "CancelDonation", "Cancel", donationId, err)
		return nil, err
	}
	return &donation, nil
}
