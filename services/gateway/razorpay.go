package gateway

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"

	"github.com/courseloom/api/services/enroll"
)

// Config holds the Razorpay credentials. WebhookSecret may be empty, in
// which case webhook signature verification is skipped (dev mode).
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

// RazorpayGateway implements enroll.Gateway over the Razorpay SDK.
type RazorpayGateway struct {
	client *razorpay.Client
	config Config
}

// NewRazorpayGateway creates a gateway adapter from credentials.
func NewRazorpayGateway(config Config) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(config.KeyID, config.KeySecret),
		config: config,
	}
}

// CreateOrder creates a gateway order. The amount arrives in major units and
// is converted to the gateway's minor unit here; a total that does not land
// on a positive integer minor amount is rejected rather than truncated.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amount float64, currency, receipt string, notes map[string]interface{}) (enroll.GatewayOrder, error) {
	minor, err := MinorUnits(amount)
	if err != nil {
		return enroll.GatewayOrder{}, err
	}
	if len(receipt) > MaxReceiptLength {
		return enroll.GatewayOrder{}, fmt.Errorf("receipt exceeds %d characters", MaxReceiptLength)
	}

	data := map[string]interface{}{
		"amount":   minor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}

	body, err := g.client.Order.Create(data, nil)
	if err != nil {
		return enroll.GatewayOrder{}, fmt.Errorf("razorpay order creation failed: %w", err)
	}

	orderID, _ := body["id"].(string)
	if orderID == "" {
		return enroll.GatewayOrder{}, fmt.Errorf("razorpay returned no order id")
	}

	return enroll.GatewayOrder{
		ID:          orderID,
		AmountMinor: minor,
		Currency:    currency,
		Receipt:     receipt,
	}, nil
}

// FetchPayment fetches payment details for enrichment after completion.
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (enroll.GatewayPayment, error) {
	body, err := g.client.Payment.Fetch(paymentID, nil, nil)
	if err != nil {
		return enroll.GatewayPayment{}, fmt.Errorf("razorpay payment fetch failed: %w", err)
	}

	details := enroll.GatewayPayment{}
	details.Method, _ = body["method"].(string)
	details.Status, _ = body["status"].(string)
	if card, ok := body["card"].(map[string]interface{}); ok {
		details.CardBrand, _ = card["network"].(string)
		details.CardLast4, _ = card["last4"].(string)
	}
	return details, nil
}

// VerifyCheckoutSignature checks the client-observable signature submitted
// after the hosted checkout.
func (g *RazorpayGateway) VerifyCheckoutSignature(orderID, paymentID, signature string) bool {
	return VerifyCheckoutSignature(orderID, paymentID, signature, g.config.KeySecret)
}

// VerifyWebhookSignature checks the inbound webhook signature. When no
// webhook secret is configured the check is skipped and verified is false.
func (g *RazorpayGateway) VerifyWebhookSignature(body []byte, signature string) (valid bool, verified bool) {
	if g.config.WebhookSecret == "" {
		return true, false
	}
	return VerifyWebhookSignature(body, signature, g.config.WebhookSecret), true
}

var _ enroll.Gateway = (*RazorpayGateway)(nil)
