package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/utils"
)

// DonationEventRecord is the transactional outbox row: it is written inside
// the same DB transaction as the donation state change and published to
// Pub/Sub asynchronously by the outbox dispatcher after commit.
type DonationEventRecord struct {
	ID         int       `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType  string    `gorm:"size:50;not null;index" json:"event_type"`
	DonationId string    `gorm:"size:36;not null;index" json:"donation_id"`
	CampaignId string    `gorm:"size:36;not null;index" json:"campaign_id"`
	OccurredAt time.Time `gorm:"index;not null" json:"occurred_at"`
	Payload    []byte    `gorm:"type:blob" json:"payload"`

	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string     `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// donationEventPayload is what subscribers (receipt mailer etc.) consume.
type donationEventPayload struct {
	DonationId    string `json:"donation_id"`
	CampaignId    string `json:"campaign_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	DonorEmail    string `json:"donor_email,omitempty"`
	DonorName     string `json:"donor_name,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
}

// AppendDonationEvent writes the outbox record inside the caller's DB
// transaction but does NOT publish to Pub/Sub.
func AppendDonationEvent(ctx context.Context, tx *gorm.DB, eventType string, donation *Donation, receipt *DonationReceipt, occurredAt time.Time) error {

	payload := donationEventPayload{
		DonationId: donation.ID,
		CampaignId: donation.CampaignId,
		Amount:     donation.Amount.String(),
		Currency:   donation.Currency,
		Status:     string(donation.Status),
		DonorName:  donation.DisplayName(),
	}
	if !donation.IsAnonymous {
		payload.DonorEmail = donation.DonorEmail
	}
	if receipt != nil {
		payload.ReceiptNumber = receipt.ReceiptNumber
	}
	payloadInByte, err := json.Marshal(&payload)
	if err != nil {
		return err
	}

	record := DonationEventRecord{
		EventType:     eventType,
		DonationId:    donation.ID,
		CampaignId:    donation.CampaignId,
		OccurredAt:    occurredAt,
		Payload:       payloadInByte,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&record).Error; err != nil {
		return err
	}
	return nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

func ConvertToDonationEvent(record DonationEventRecord) config.DonationEvent {
	return config.DonationEvent{
		ID:            record.ID,
		EventType:     record.EventType,
		DonationId:    record.DonationId,
		CampaignId:    record.CampaignId,
		OccurredAt:    record.OccurredAt,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}
