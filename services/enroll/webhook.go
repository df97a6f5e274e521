package enroll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/courseloom/api/model"
	"gorm.io/datatypes"
)

// Webhook event types we act on. Anything else is logged and ignored.
const (
	EventPaymentCaptured = "payment.captured"
	EventOrderPaid       = "order.paid"
	EventPaymentFailed   = "payment.failed"
)

// webhookEnvelope mirrors the gateway's event payload shape.
type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID               string `json:"id"`
				OrderID          string `json:"order_id"`
				Method           string `json:"method"`
				ErrorDescription string `json:"error_description"`
				Card             struct {
					Network string `json:"network"`
					Last4   string `json:"last4"`
				} `json:"card"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// WebhookResult reports what a delivery did, for logging and the handler's
// acknowledgement body.
type WebhookResult struct {
	Event     string `json:"event"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Processed bool   `json:"processed"`
	Degraded  bool   `json:"-"` // signature check skipped: no secret configured
	Completed int    `json:"completed,omitempty"`
	Failed    int64  `json:"failed,omitempty"`
}

// HandleWebhook processes an asynchronous gateway callback. Signature
// failures are the only errors the handler converts to a non-200 response;
// everything past the signature check, unparsable bodies included, is logged
// and still acknowledged to stop gateway retry storms. Deliveries are
// deduplicated by provider event id, and state mutation goes through the
// same conditional-update funnel as the verify path, so replays and races
// are no-ops.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature, providerEventID string) (*WebhookResult, error) {
	if signature == "" {
		return nil, ErrMissingWebhookSignature
	}

	valid, verified := s.gateway.VerifyWebhookSignature(body, signature)
	if verified && !valid {
		return nil, ErrSignatureMismatch
	}

	var env webhookEnvelope
	parseErr := json.Unmarshal(body, &env)
	if parseErr != nil {
		parseErr = fmt.Errorf("malformed webhook payload: %w", parseErr)
	}

	result := &WebhookResult{Event: env.Event, Degraded: !verified}
	if !verified {
		log.Printf("[webhook] WARNING: no webhook secret configured, processing %s UNVERIFIED", env.Event)
	}

	var eventRowID uint
	if providerEventID != "" {
		ev := model.WebhookEvent{
			Provider:        "razorpay",
			ProviderEventID: providerEventID,
			EventType:       env.Event,
			Payload:         datatypes.JSON(body),
		}
		created, err := s.store.RecordWebhookEvent(ctx, &ev)
		if err != nil {
			log.Printf("[webhook] failed to record event %s: %v", providerEventID, err)
		} else if !created {
			log.Printf("[webhook] duplicate delivery of event %s, skipping", providerEventID)
			result.Duplicate = true
			return result, nil
		} else {
			eventRowID = ev.ID
		}
	}

	err := parseErr
	if err == nil {
		err = s.processWebhookEvent(ctx, env, result)
	}
	if eventRowID != 0 {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		if markErr := s.store.MarkWebhookProcessed(ctx, eventRowID, msg); markErr != nil {
			log.Printf("[webhook] failed to mark event %d processed: %v", eventRowID, markErr)
		}
	}
	if err != nil {
		// Acknowledged anyway; the handler answers 200 so the gateway
		// stops redelivering.
		log.Printf("[webhook] error processing %s: %v", env.Event, err)
		return result, nil
	}

	result.Processed = true
	return result, nil
}

func (s *Service) processWebhookEvent(ctx context.Context, env webhookEnvelope, result *WebhookResult) error {
	switch env.Event {
	case EventPaymentCaptured, EventOrderPaid:
		orderID := env.Payload.Payment.Entity.OrderID
		if orderID == "" {
			orderID = env.Payload.Order.Entity.ID
		}
		if orderID == "" {
			return errors.New("event carries no order id")
		}

		completion := PaymentCompletion{
			GatewayPaymentID: env.Payload.Payment.Entity.ID,
			Method:           env.Payload.Payment.Entity.Method,
			CardBrand:        env.Payload.Payment.Entity.Card.Network,
			CardLast4:        env.Payload.Payment.Entity.Card.Last4,
			CompletedAt:      s.now(),
		}

		enrollments, _, err := s.completePayments(ctx, orderID, 0, completion)
		if errors.Is(err, ErrNoPendingPayments) {
			// Already finalized by the verify path, or unknown order.
			log.Printf("[webhook] %s for order %s: nothing pending", env.Event, orderID)
			return nil
		}
		if err != nil {
			return err
		}
		result.Completed = len(enrollments)
		return nil

	case EventPaymentFailed:
		orderID := env.Payload.Payment.Entity.OrderID
		if orderID == "" {
			return errors.New("event carries no order id")
		}
		reason := env.Payload.Payment.Entity.ErrorDescription
		if reason == "" {
			reason = "Payment failed at gateway"
		}
		n, err := s.store.FailPendingPayments(ctx, orderID, 0, reason)
		if err != nil {
			return err
		}
		result.Failed = n
		log.Printf("[webhook] marked %d payment(s) failed for order %s", n, orderID)
		return nil

	default:
		log.Printf("[webhook] ignoring unrecognized event type %q", env.Event)
		return nil
	}
}
