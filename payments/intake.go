package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/workflow"
)

var intakeTracer = otel.Tracer("payments/intake")

// Intake turns at-least-once gateway deliveries into at-most-once effective
// processing: transport verification, persistence with a unique event id,
// then dispatch to the reconciliation engine.
type Intake struct {
	Client *Client
}

func NewIntake(client *Client) *Intake {
	return &Intake{Client: client}
}

// Receive runs the full webhook pipeline for one delivery. The returned error
// is utils.ErrorAuthentication for transport verification failures (the only
// case the HTTP handler rejects); other errors are recorded on the event row
// and the delivery is still acknowledged.
func (in *Intake) Receive(ctx context.Context, body []byte, headers http.Header) error {

	ctx, span := intakeTracer.Start(ctx, "webhook.receive", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	logger := config.GetLogger()

	// Reject before persistence: unverified payloads never enter the store.
	if err := VerifyWebhookSignature(body, headers.Get("X-Razorpay-Signature"), in.Client.WebhookSecret()); err != nil {
		config.LogError(logger, "intake.go", "Receive", "VerifyWebhookSignature", nil, err)
		return err
	}

	envelope, err := parseWebhookEnvelope(body)
	if err != nil {
		return err
	}

	eventId := headers.Get("X-Razorpay-Event-Id")
	if eventId == "" {
		// Some gateway configurations omit the header; fall back to a
		// payload-derived identity so replays still collapse.
		eventId = envelope.Event + ":" + envelope.Payload.Payment.Entity.ID
	}
	span.SetAttributes(
		attribute.String("webhook.event_type", envelope.Event),
		attribute.String("webhook.event_id", eventId),
	)

	event := &models.WebhookEvent{
		GatewayEventId: eventId,
		EventType:      envelope.Event,
		Payload:        body,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(event).Error; err != nil {
		if !isDuplicateKeyErr(err) {
			config.LogError(logger, "intake.go", "Receive", "InsertWebhookEvent", eventId, err)
			return err
		}
		// Redelivery. A processed duplicate is an idempotent success; an
		// unprocessed one gets another processing attempt.
		existing, found, lookupErr := models.GetWebhookEventByGatewayEventId(ctx, eventId)
		if lookupErr != nil {
			config.LogError(logger, "intake.go", "Receive", "LookupWebhookEvent", eventId, lookupErr)
			return lookupErr
		}
		if !found {
			// The insert hit the unique index but the row is not readable;
			// do not acknowledge, the gateway will redeliver.
			return fmt.Errorf("webhook event %s exists but could not be loaded", eventId)
		}
		if existing.Processed {
			return nil
		}
		event = existing
	}

	return in.process(ctx, event)
}

func (in *Intake) process(ctx context.Context, event *models.WebhookEvent) error {

	logger := config.GetLogger()

	envelope, err := parseWebhookEnvelope(event.Payload)
	if err != nil {
		_ = event.MarkFailed(ctx, err)
		return err
	}

	gatewayOrderId, res, handled := normalizeEvent(envelope)
	if !handled {
		// Unrecognized event types are acknowledged, not retried.
		return event.MarkProcessed(ctx)
	}

	if _, err := workflow.ApplyGatewayResult(ctx, in.Client, gatewayOrderId, res); err != nil {
		config.LogError(logger, "intake.go", "process", "ApplyGatewayResult", gatewayOrderId, err)
		if markErr := event.MarkFailed(ctx, err); markErr != nil {
			config.LogError(logger, "intake.go", "process", "MarkFailed", event.GatewayEventId, markErr)
		}
		return err
	}

	return event.MarkProcessed(ctx)
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}
