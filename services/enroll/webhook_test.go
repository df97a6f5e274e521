package enroll

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/courseloom/api/model"
)

func capturedPayload(orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.captured",
		"payload": {
			"payment": {
				"entity": {
					"id": %q,
					"order_id": %q,
					"method": "upi"
				}
			}
		}
	}`, paymentID, orderID))
}

func failedPayload(orderID, reason string) []byte {
	return []byte(fmt.Sprintf(`{
		"event": "payment.failed",
		"payload": {
			"payment": {
				"entity": {
					"id": "pay_failed",
					"order_id": %q,
					"error_description": %q
				}
			}
		}
	}`, orderID, reason))
}

func TestHandleWebhook(t *testing.T) {
	ctx := context.Background()

	t.Run("payment captured completes pending payments", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, publisher := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		result, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_wh1"), "whsig", "evt_1")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}

		if !result.Processed || result.Completed != 1 {
			t.Errorf("result = %+v, want processed with 1 completion", result)
		}
		completed := store.paymentsByStatus(model.PaymentStatusCompleted)
		if len(completed) != 1 {
			t.Fatalf("expected 1 completed payment, got %d", len(completed))
		}
		if completed[0].GatewayPaymentID != "pay_wh1" || completed[0].PaymentMethod != "upi" {
			t.Errorf("payment missing webhook details: %+v", completed[0])
		}
		if store.enrollmentCount() != 1 {
			t.Errorf("expected 1 enrollment, got %d", store.enrollmentCount())
		}
		if store.studentCounts[1] != 1 {
			t.Errorf("student count = %d, want 1", store.studentCounts[1])
		}
		if publisher.count("payment.completed") != 1 {
			t.Errorf("expected 1 payment.completed event, got %d", publisher.count("payment.completed"))
		}
	})

	t.Run("order paid uses the order entity id", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		body := []byte(fmt.Sprintf(`{
			"event": "order.paid",
			"payload": {"order": {"entity": {"id": %q}}}
		}`, orderID))

		result, err := svc.HandleWebhook(ctx, body, "whsig", "evt_2")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if result.Completed != 1 {
			t.Errorf("expected 1 completion, got %d", result.Completed)
		}
	})

	t.Run("webhook after verify is acknowledged without side effects", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{goodSignature: "sig_ok", webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		if _, err := svc.VerifyPayment(ctx, 7, VerifyInput{OrderID: orderID, PaymentID: "pay_1", Signature: "sig_ok"}); err != nil {
			t.Fatalf("verify returned error: %v", err)
		}

		result, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_1"), "whsig", "evt_3")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if !result.Processed || result.Completed != 0 {
			t.Errorf("result = %+v, want processed with 0 completions", result)
		}
		if store.enrollmentCount() != 1 {
			t.Errorf("expected 1 enrollment, got %d", store.enrollmentCount())
		}
		if store.studentCounts[1] != 1 {
			t.Errorf("student count = %d, want 1", store.studentCounts[1])
		}
	})

	t.Run("verify after webhook finds nothing pending but user is enrolled", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{goodSignature: "sig_ok", webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		if _, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_1"), "whsig", "evt_4"); err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}

		_, err := svc.VerifyPayment(ctx, 7, VerifyInput{OrderID: orderID, PaymentID: "pay_1", Signature: "sig_ok"})
		if !errors.Is(err, ErrNoPendingPayments) {
			t.Errorf("expected ErrNoPendingPayments, got %v", err)
		}

		enrolled, err := svc.IsEnrolled(ctx, 7, 1)
		if err != nil || !enrolled {
			t.Errorf("user should be enrolled via webhook path, got (%v, %v)", enrolled, err)
		}
		if store.enrollmentCount() != 1 {
			t.Errorf("expected exactly 1 enrollment, got %d", store.enrollmentCount())
		}
	})

	t.Run("duplicate delivery is skipped", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, publisher := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		body := capturedPayload(orderID, "pay_1")
		if _, err := svc.HandleWebhook(ctx, body, "whsig", "evt_dup"); err != nil {
			t.Fatalf("first delivery returned error: %v", err)
		}

		result, err := svc.HandleWebhook(ctx, body, "whsig", "evt_dup")
		if err != nil {
			t.Fatalf("second delivery returned error: %v", err)
		}
		if !result.Duplicate {
			t.Error("expected duplicate flag on redelivery")
		}
		if publisher.count("payment.completed") != 1 {
			t.Errorf("expected 1 payment.completed event, got %d", publisher.count("payment.completed"))
		}
	})

	t.Run("payment failed marks pending rows failed", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		result, err := svc.HandleWebhook(ctx, failedPayload(orderID, "card declined"), "whsig", "evt_5")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if result.Failed != 1 {
			t.Errorf("expected 1 failed payment, got %d", result.Failed)
		}

		failed := store.paymentsByStatus(model.PaymentStatusFailed)
		if len(failed) != 1 || failed[0].FailureReason != "card declined" {
			t.Errorf("failed payments = %+v", failed)
		}
		if store.enrollmentCount() != 0 {
			t.Errorf("expected no enrollments, got %d", store.enrollmentCount())
		}
	})

	t.Run("failure event does not overwrite completed rows", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{goodSignature: "sig_ok", webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		if _, err := svc.VerifyPayment(ctx, 7, VerifyInput{OrderID: orderID, PaymentID: "pay_1", Signature: "sig_ok"}); err != nil {
			t.Fatalf("verify returned error: %v", err)
		}

		result, err := svc.HandleWebhook(ctx, failedPayload(orderID, "late failure"), "whsig", "evt_6")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if result.Failed != 0 {
			t.Errorf("expected 0 rows failed, got %d", result.Failed)
		}
		if got := len(store.paymentsByStatus(model.PaymentStatusCompleted)); got != 1 {
			t.Errorf("expected payment to stay completed, got %d completed", got)
		}
	})

	t.Run("missing signature header is rejected", func(t *testing.T) {
		svc, _, _ := newTestService(newFakeStore(), &fakeGateway{webhookValid: true, webhookVerified: true})

		if _, err := svc.HandleWebhook(ctx, capturedPayload("order_x", "pay_x"), "", "evt_7"); !errors.Is(err, ErrMissingWebhookSignature) {
			t.Errorf("expected ErrMissingWebhookSignature, got %v", err)
		}
	})

	t.Run("invalid signature is rejected", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: false, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		if _, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_1"), "bad", "evt_8"); !errors.Is(err, ErrSignatureMismatch) {
			t.Errorf("expected ErrSignatureMismatch, got %v", err)
		}
		if got := len(store.paymentsByStatus(model.PaymentStatusPending)); got != 1 {
			t.Errorf("expected payment to stay pending, got %d pending", got)
		}
	})

	t.Run("unverified delivery still processes when no secret is configured", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: false, webhookVerified: false}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		result, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_1"), "whsig", "evt_9")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if !result.Degraded || result.Completed != 1 {
			t.Errorf("result = %+v, want degraded with 1 completion", result)
		}
	})

	t.Run("unknown events are acknowledged and ignored", func(t *testing.T) {
		store := newFakeStore()
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)

		body := []byte(`{"event": "refund.created", "payload": {}}`)
		result, err := svc.HandleWebhook(ctx, body, "whsig", "evt_10")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if !result.Processed {
			t.Error("unknown events should still be acknowledged as processed")
		}
	})

	t.Run("malformed payload is acknowledged and recorded", func(t *testing.T) {
		store := newFakeStore()
		svc, _, _ := newTestService(store, &fakeGateway{webhookValid: true, webhookVerified: true})

		result, err := svc.HandleWebhook(ctx, []byte("{not json"), "whsig", "evt_11")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if result.Processed {
			t.Error("malformed delivery must not be marked processed")
		}

		ev := store.webhookEvents["evt_11"]
		if ev == nil {
			t.Fatal("expected the delivery to be recorded for dedup")
		}
		if ev.ProcessedAt == nil || ev.ProcessingError == "" {
			t.Errorf("event not stamped with a processing error: %+v", ev)
		}

		// Redelivery of the same event id is a dedup no-op.
		again, err := svc.HandleWebhook(ctx, []byte("{not json"), "whsig", "evt_11")
		if err != nil {
			t.Fatalf("redelivery returned error: %v", err)
		}
		if !again.Duplicate {
			t.Error("expected duplicate skip on redelivery")
		}
	})

	t.Run("captured event without order id is acknowledged", func(t *testing.T) {
		svc, _, _ := newTestService(newFakeStore(), &fakeGateway{webhookValid: true, webhookVerified: true})

		body := []byte(`{"event": "payment.captured", "payload": {"payment": {"entity": {"id": "pay_1"}}}}`)
		result, err := svc.HandleWebhook(ctx, body, "whsig", "evt_12")
		if err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}
		if result.Processed {
			t.Error("event without order id should not be marked processed")
		}
	})

	t.Run("processing records the event row", func(t *testing.T) {
		store := newFakeStore(publishedCourse(1, 10, 499))
		gw := &fakeGateway{webhookValid: true, webhookVerified: true}
		svc, _, _ := newTestService(store, gw)
		orderID := createPaidOrder(t, svc, store, 7, []uint{1})

		if _, err := svc.HandleWebhook(ctx, capturedPayload(orderID, "pay_1"), "whsig", "evt_13"); err != nil {
			t.Fatalf("HandleWebhook returned error: %v", err)
		}

		ev := store.webhookEvents["evt_13"]
		if ev == nil {
			t.Fatal("expected a recorded webhook event")
		}
		if ev.EventType != EventPaymentCaptured {
			t.Errorf("event type = %q", ev.EventType)
		}
		if ev.ProcessedAt == nil || ev.ProcessingError != "" {
			t.Errorf("event not marked processed cleanly: %+v", ev)
		}
	})
}
