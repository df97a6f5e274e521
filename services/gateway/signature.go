package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeSignature returns the hex HMAC-SHA256 of payload under secret.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyCheckoutSignature checks the signature the client observes after the
// hosted checkout, computed over "{orderID}|{paymentID}". The comparison is
// constant-time.
func VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool {
	expected := ComputeSignature([]byte(fmt.Sprintf("%s|%s", orderID, paymentID)), secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the webhook signature header against the
// HMAC of the raw request body.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	expected := ComputeSignature(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
