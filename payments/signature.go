package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/givegrip/givegrip_backend/utils"
)

func computeHMAC(message []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the signature Razorpay hands to the checkout
// page after a successful payment: HMAC-SHA256 over "orderId|paymentId".
func VerifyPaymentSignature(gatewayOrderId string, gatewayPaymentId string, signature string, keySecret string) error {
	if signature == "" {
		return utils.AuthenticationErrorf("payment signature is missing")
	}
	expected := computeHMAC([]byte(gatewayOrderId+"|"+gatewayPaymentId), keySecret)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return utils.AuthenticationErrorf("payment signature mismatch for order %s", gatewayOrderId)
	}
	return nil
}

// VerifyWebhookSignature checks the X-Razorpay-Signature header against the
// HMAC of the raw request body. Must run before anything is persisted.
func VerifyWebhookSignature(body []byte, header string, webhookSecret string) error {
	if webhookSecret == "" {
		return utils.AuthenticationErrorf("webhook secret is not configured")
	}
	if header == "" {
		return utils.AuthenticationErrorf("webhook signature header is missing")
	}
	expected := computeHMAC(body, webhookSecret)
	if !hmac.Equal([]byte(expected), []byte(header)) {
		return utils.AuthenticationErrorf("webhook signature mismatch")
	}
	return nil
}
