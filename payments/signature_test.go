package payments

import (
	"errors"
	"testing"

	"github.com/givegrip/givegrip_backend/utils"
)

func TestVerifyPaymentSignature(t *testing.T) {
	secret := "checkout-secret"
	orderId := "order_NXhd0vKdu3test"
	paymentId := "pay_NXheQGsixtest1"
	good := computeHMAC([]byte(orderId+"|"+paymentId), secret)

	if err := VerifyPaymentSignature(orderId, paymentId, good, secret); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifyPaymentSignature(orderId, paymentId, good[:len(good)-2]+"ff", secret); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("tampered signature must fail authentication; got %v", err)
	}
	if err := VerifyPaymentSignature(orderId, paymentId, "", secret); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("empty signature must fail authentication; got %v", err)
	}
	if err := VerifyPaymentSignature(orderId, "pay_other", good, secret); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("signature over different payment must fail; got %v", err)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "webhook-secret"
	body := []byte(`{"event":"payment.captured","payload":{}}`)
	good := computeHMAC(body, secret)

	if err := VerifyWebhookSignature(body, good, secret); err != nil {
		t.Fatalf("valid webhook signature rejected: %v", err)
	}
	if err := VerifyWebhookSignature([]byte(`{"event":"tampered"}`), good, secret); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("body tamper must fail authentication; got %v", err)
	}
	if err := VerifyWebhookSignature(body, "", secret); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("missing signature header must fail; got %v", err)
	}
	if err := VerifyWebhookSignature(body, good, ""); !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("unconfigured secret must reject everything; got %v", err)
	}
}
