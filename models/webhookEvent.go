package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
)

// WebhookEvent stores every delivery attempt from the payment gateway.
// GatewayEventId carries a unique index: the insert itself is the dedup
// gate for at-least-once gateway deliveries.
type WebhookEvent struct {
	ID              int        `gorm:"primary_key" json:"id"`
	GatewayEventId  string     `gorm:"size:100;not null;unique" json:"gateway_event_id"`
	EventType       string     `gorm:"size:100;not null;index" json:"event_type"`
	Payload         []byte     `gorm:"type:blob" json:"payload"`
	Processed       bool       `gorm:"not null;default:false;index" json:"processed"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	ReceivedAt      time.Time  `gorm:"autoCreateTime" json:"received_at"`
	ProcessedAt     *time.Time `json:"processed_at"`
}

func GetWebhookEventByGatewayEventId(ctx context.Context, gatewayEventId string) (*WebhookEvent, bool, error) {

	db := config.GetDB()
	var event WebhookEvent
	err := db.WithContext(ctx).First(&event, "gateway_event_id = ?", gatewayEventId).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &event, true, nil
}

// MarkProcessed flips the processed flag exactly once and clears any
// error recorded by an earlier failed attempt.
func (e *WebhookEvent) MarkProcessed(ctx context.Context) error {
	db := config.GetDB()
	now := time.Now().UTC()
	return db.WithContext(ctx).Model(&WebhookEvent{}).Where("id = ?", e.ID).
		Updates(map[string]interface{}{
			"processed":        true,
			"processing_error": "",
			"processed_at":     &now,
		}).Error
}

// MarkFailed records the failure but leaves processed=false so a
// redelivered event gets another attempt.
func (e *WebhookEvent) MarkFailed(ctx context.Context, processErr error) error {
	db := config.GetDB()
	return db.WithContext(ctx).Model(&WebhookEvent{}).Where("id = ?", e.ID).
		Update("processing_error", processErr.Error()).Error
}
