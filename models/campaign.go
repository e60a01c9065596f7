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

type Campaign struct {
	ID              string          `gorm:"primary_key;size:36" json:"id"`
	Title           string          `gorm:"size:255;not null" json:"title" binding:"required"`
	Description     string          `gorm:"type:text" json:"description"`
	Category        string          `gorm:"size:100;index" json:"category"`
	GoalAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"goal_amount" binding:"required"`
	CollectedAmount decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"collected_amount"`
	Currency        string          `gorm:"type:char(3);not null;default:'INR'" json:"currency"`
	Status          CampaignStatus  `gorm:"size:20;not null;default:'draft';index" json:"status"`
	StartDate       time.Time       `gorm:"not null" json:"start_date"`
	EndDate         time.Time       `gorm:"not null" json:"end_date"`
	CreatorId       int             `gorm:"index;not null" json:"creator_id"`
	IsFeatured      bool            `gorm:"not null;default:false" json:"is_featured"`
	DonorCount      int             `gorm:"not null;default:0" json:"donor_count"`
	ViewCount       int             `gorm:"not null;default:0" json:"view_count"`
	ShareCount      int             `gorm:"not null;default:0" json:"share_count"`
	CoverImageUrl   string          `json:"cover_image_url"`
	CoverThumbUrl   string          `json:"cover_thumb_url"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCampaign struct {
	Title       string          `json:"title" binding:"required"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	GoalAmount  decimal.Decimal `json:"goal_amount" binding:"required"`
	Currency    string          `json:"currency"`
	StartDate   time.Time       `json:"start_date" binding:"required"`
	EndDate     time.Time       `json:"end_date" binding:"required"`
	CreatorId   int             `json:"creator_id"`
}

/*
caches:
	Campaign:$id
*/

func (c Campaign) RemoveInstanceRedis() error {
	if err := config.RemoveRedisKey("Campaign:" + c.ID); err != nil {
		return err
	}
	return nil
}

func RemoveCampaignRedis(campaignId string) error {
	return config.RemoveRedisKey("Campaign:" + campaignId)
}

// IsDonatable reports whether the campaign accepts donations at the given time.
func (c *Campaign) IsDonatable(now time.Time) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if now.Before(c.StartDate) {
		return false
	}
	if now.After(c.EndDate) {
		return false
	}
	return true
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func CreateCampaign(ctx context.Context, input *NewCampaign) (*Campaign, error) {

	if input.GoalAmount.LessThanOrEqual(decimal.Zero) {
		return nil, utils.ValidationErrorf("goal amount must be positive")
	}
	if !input.EndDate.After(input.StartDate) {
		return nil, utils.ValidationErrorf("end date must be after start date")
	}
	currency := input.Currency
	if currency == "" {
		currency = "INR"
	}

	campaign := Campaign{
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		GoalAmount:  input.GoalAmount,
		Currency:    currency,
		Status:      CampaignStatusDraft,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		CreatorId:   input.CreatorId,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetCampaign loads a campaign by id, redis first then db.
func GetCampaign(ctx context.Context, id string) (*Campaign, error) {

	var campaign Campaign
	exists, err := config.GetRedisObject("Campaign:"+id, &campaign)
	if err != nil {
		return nil, err
	}
	if exists {
		return &campaign, nil
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).First(&campaign, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	if err := config.SetRedisObject("Campaign:"+id, &campaign, 0); err != nil {
		return nil, err
	}
	return &campaign, nil
}

// UpdateCampaignStatus moves a campaign through its review lifecycle.
func UpdateCampaignStatus(ctx context.Context, id string, status CampaignStatus) (*Campaign, error) {

	db := config.GetDB()
	var campaign Campaign
	if err := db.WithContext(ctx).First(&campaign, "id = ?", id).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}

	if err := db.WithContext(ctx).Model(&campaign).Update("status", status).Error; err != nil {
		return nil, err
	}
	if err := campaign.RemoveInstanceRedis(); err != nil {
		return nil, err
	}
	campaign.Status = status
	return &campaign, nil
}

// SetCampaignCover records the uploaded cover image URLs.
func SetCampaignCover(ctx context.Context, id string, imageUrl string, thumbUrl string) error {

	db := config.GetDB()
	if err := utils.ValidateResourceId[Campaign](ctx, id); err != nil {
		return err
	}
	if err := db.WithContext(ctx).Model(&Campaign{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"cover_image_url": imageUrl,
			"cover_thumb_url": thumbUrl,
		}).Error; err != nil {
		return err
	}
	return RemoveCampaignRedis(id)
}

func IncrementCampaignViewCount(ctx context.Context, id string) error {
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&Campaign{}).Where("id = ?", id).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error; err != nil {
		return err
	}
	return RemoveCampaignRedis(id)
}
