package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/utils"
	"github.com/shopspring/decimal"
)

// PaymentOrder mirrors one gateway order for one donation. GatewayOrderId is
// the reconciliation key: every gateway outcome is applied against it.
type PaymentOrder struct {
	ID               string             `gorm:"primary_key;size:36" json:"id"`
	DonationId       string             `gorm:"size:36;not null;unique" json:"donation_id"`
	GatewayOrderId   string             `gorm:"size:100;not null;unique" json:"gateway_order_id"`
	GatewayPaymentId string             `gorm:"size:100;index" json:"gateway_payment_id"`
	GatewaySignature string             `gorm:"size:255" json:"gateway_signature"`
	Amount           decimal.Decimal    `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency         string             `gorm:"type:char(3);not null" json:"currency"`
	Status           PaymentOrderStatus `gorm:"size:20;not null;default:'created';index" json:"status"`
	PaymentMethod    string             `gorm:"size:50" json:"payment_method"`
	Bank             string             `gorm:"size:100" json:"bank"`
	Wallet           string             `gorm:"size:100" json:"wallet"`
	ErrorCode        string             `gorm:"size:100" json:"error_code"`
	ErrorDescription string             `gorm:"type:text" json:"error_description"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *PaymentOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

func GetPaymentOrderByGatewayOrderId(ctx context.Context, gatewayOrderId string) (*PaymentOrder, error) {

	db := config.GetDB()
	var order PaymentOrder
	if err := db.WithContext(ctx).
		First(&order, "gateway_order_id = ?", gatewayOrderId).Error; err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	return &order, nil
}
