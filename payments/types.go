package payments

import (
	"encoding/json"

	"github.com/givegrip/givegrip_backend/utils"
	"github.com/givegrip/givegrip_backend/workflow"
)

// Gateway event types the engine acts on. Everything else is acknowledged
// and marked processed without touching donation state.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

type paymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Bank             string `json:"bank"`
	Wallet           string `json:"wallet"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity paymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

func parseWebhookEnvelope(body []byte) (*webhookEnvelope, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, utils.ValidationErrorf("malformed webhook payload: %v", err)
	}
	if envelope.Event == "" {
		return nil, utils.ValidationErrorf("webhook payload has no event type")
	}
	return &envelope, nil
}

// normalizeEvent maps a gateway event onto the engine's input. handled=false
// means the event type carries no donation state change.
func normalizeEvent(envelope *webhookEnvelope) (gatewayOrderId string, res workflow.GatewayResult, handled bool) {
	entity := envelope.Payload.Payment.Entity
	switch envelope.Event {
	case EventPaymentCaptured:
		return entity.OrderID, workflow.GatewayResult{
			Outcome:           workflow.OutcomeSuccess,
			GatewayPaymentId:  entity.ID,
			TransportVerified: true,
			PaymentMethod:     entity.Method,
			Bank:              entity.Bank,
			Wallet:            entity.Wallet,
		}, true
	case EventPaymentFailed:
		return entity.OrderID, workflow.GatewayResult{
			Outcome:          workflow.OutcomeFailure,
			GatewayPaymentId: entity.ID,
			PaymentMethod:    entity.Method,
			Bank:             entity.Bank,
			Wallet:           entity.Wallet,
			ErrorCode:        entity.ErrorCode,
			ErrorDescription: entity.ErrorDescription,
		}, true
	}
	return "", workflow.GatewayResult{}, false
}
