package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/utils"
)

type Donation struct {
	ID           string          `gorm:"primary_key;size:36" json:"id"`
	CampaignId   string          `gorm:"size:36;not null;index" json:"campaign_id"`
	DonorId      int             `gorm:"index" json:"donor_id"` // 0 = anonymous / guest
	Amount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency     string          `gorm:"type:char(3);not null" json:"currency"`
	Status       DonationStatus  `gorm:"size:20;not null;default:'pending';index" json:"status"`
	IsAnonymous  bool            `gorm:"not null;default:false" json:"is_anonymous"`
	DonorName    string          `gorm:"size:100" json:"donor_name"`
	DonorEmail   string          `gorm:"size:100" json:"donor_email"`
	Message      string          `gorm:"type:text" json:"message"`
	PaidAt       *time.Time      `json:"paid_at"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	PaymentOrder *PaymentOrder   `gorm:"foreignKey:DonationId" json:"payment_order,omitempty"`
}

type NewDonation struct {
	CampaignId  string          `json:"campaign_id" binding:"required"`
	DonorId     int             `json:"donor_id"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Currency    string          `json:"currency"`
	IsAnonymous bool            `json:"is_anonymous"`
	DonorName   string          `json:"donor_name"`
	DonorEmail  string          `json:"donor_email"`
	Message     string          `json:"message"`
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func GetDonation(ctx context.Context, id string) (*Donation, error) {
	return utils.FetchSingleModel[Donation](ctx, id, "PaymentOrder")
}

func ListCampaignDonations(ctx context.Context, campaignId string, statuses ...DonationStatus) ([]*Donation, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx).Where("campaign_id = ?", campaignId)
	if len(statuses) > 0 {
		dbCtx = dbCtx.Where("status IN ?", statuses)
	}
	var results []*Donation
	if err := dbCtx.Order("created_at DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// DisplayName resolves how a donation is attributed publicly.
func (d *Donation) DisplayName() string {
	if d.IsAnonymous {
		return "Anonymous"
	}
	if d.DonorName != "" {
		return d.DonorName
	}
	return "Anonymous"
}
