package gateway

import "testing"

func TestComputeSignature(t *testing.T) {
	// Known vector: HMAC-SHA256("order_abc|pay_xyz", "secret")
	got := ComputeSignature([]byte("order_abc|pay_xyz"), "secret")
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(got))
	}

	// Deterministic for the same inputs
	if again := ComputeSignature([]byte("order_abc|pay_xyz"), "secret"); again != got {
		t.Error("signature is not deterministic")
	}

	// Different secret produces a different signature
	if other := ComputeSignature([]byte("order_abc|pay_xyz"), "other"); other == got {
		t.Error("different secrets must not collide")
	}
}

func TestVerifyCheckoutSignature(t *testing.T) {
	secret := "test_key_secret"
	sig := ComputeSignature([]byte("order_abc|pay_xyz"), secret)

	t.Run("accepts the correct signature", func(t *testing.T) {
		if !VerifyCheckoutSignature("order_abc", "pay_xyz", sig, secret) {
			t.Error("valid signature rejected")
		}
	})

	t.Run("rejects a forged signature", func(t *testing.T) {
		if VerifyCheckoutSignature("order_abc", "pay_xyz", "deadbeef", secret) {
			t.Error("forged signature accepted")
		}
	})

	t.Run("rejects a signature for a different order", func(t *testing.T) {
		if VerifyCheckoutSignature("order_other", "pay_xyz", sig, secret) {
			t.Error("signature bound to another order accepted")
		}
	})

	t.Run("rejects a signature under the wrong secret", func(t *testing.T) {
		if VerifyCheckoutSignature("order_abc", "pay_xyz", sig, "wrong_secret") {
			t.Error("signature accepted under wrong secret")
		}
	})
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook_secret"
	body := []byte(`{"event":"payment.captured"}`)
	sig := ComputeSignature(body, secret)

	if !VerifyWebhookSignature(body, sig, secret) {
		t.Error("valid webhook signature rejected")
	}
	if VerifyWebhookSignature([]byte(`{"event":"tampered"}`), sig, secret) {
		t.Error("signature accepted for tampered body")
	}
	if VerifyWebhookSignature(body, "", secret) {
		t.Error("empty signature accepted")
	}
}
