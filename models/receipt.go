package models

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/utils"
)

type DonationReceipt struct {
	ID            int             `gorm:"primary_key" json:"id"`
	DonationId    string          `gorm:"size:36;not null;unique" json:"donation_id"`
	ReceiptNumber string          `gorm:"size:50;not null;unique" json:"receipt_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:char(3);not null" json:"currency"`
	IssuedAt      time.Time       `gorm:"autoCreateTime" json:"issued_at"`
}

// NextReceiptNumber mints RCPT-YYYYMMDD-NNNNNN from a redis daily counter,
// falling back to a uuid suffix when redis is unavailable.
func NextReceiptNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.UTC().Format("20060102")
	seq, err := config.GetRedisCounter(ctx, "ReceiptSeq:"+day)
	if err != nil {
		return "", err
	}
	if seq == 0 {
		suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:10]
		return "RCPT-" + day + "-" + suffix, nil
	}
	return fmt.Sprintf("RCPT-%s-%06d", day, seq), nil
}

// CreateDonationReceipt writes the receipt row inside the caller's transaction.
func CreateDonationReceipt(tx *gorm.DB, ctx context.Context, donation *Donation, now time.Time) (*DonationReceipt, error) {

	number, err := NextReceiptNumber(ctx, now)
	if err != nil {
		return nil, err
	}
	receipt := DonationReceipt{
		DonationId:    donation.ID,
		ReceiptNumber: number,
		Amount:        donation.Amount,
		Currency:      donation.Currency,
	}
	if err := tx.WithContext(ctx).Create(&receipt).Error; err != nil {
		return nil, err
	}
	return &receipt, nil
}

func GetDonationReceipt(ctx context.Context, donationId string) (*DonationReceipt, error) {

	db := config.GetDB()
	var receipt DonationReceipt
	if err := db.WithContext(ctx).
		First(&receipt, "donation_id = ?", donationId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &receipt, nil
}
