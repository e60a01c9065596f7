package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/givegrip/givegrip_backend/utils"
	"github.com/givegrip/givegrip_backend/workflow"
)

const createOrderMaxAttempts = 3

// Client talks to the Razorpay Orders API. It implements both
// workflow.OrderCreator and workflow.SignatureVerifier.
type Client struct {
	baseURL       string
	keyId         string
	keySecret     string
	webhookSecret string
	http          *http.Client
	limiter       <-chan time.Time
}

func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("RAZORPAY_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.razorpay.com"
	}
	keyId := strings.TrimSpace(os.Getenv("RAZORPAY_KEY_ID"))
	keySecret := strings.TrimSpace(os.Getenv("RAZORPAY_KEY_SECRET"))
	if keyId == "" || keySecret == "" {
		return nil, errors.New("razorpay credentials are empty")
	}
	webhookSecret := strings.TrimSpace(os.Getenv("RAZORPAY_WEBHOOK_SECRET"))

	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("RAZORPAY_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		keyId:         keyId,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		http:          &http.Client{Timeout: 30 * time.Second},
		limiter:       time.Tick(interval),
	}, nil
}

func (c *Client) KeyId() string {
	return c.keyId
}

func (c *Client) WebhookSecret() string {
	return c.webhookSecret
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"` // minor units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type createOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder creates a gateway order. The gateway wants minor units; amounts
// are decimal major units everywhere else in the system.
func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, receipt string) (*workflow.GatewayOrder, error) {

	payload := createOrderRequest{
		Amount:   amount.Mul(decimal.NewFromInt(100)).IntPart(),
		Currency: currency,
		Receipt:  receipt,
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= createOrderMaxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, utils.TransientGatewayErrorf("order creation aborted: %v", ctx.Err())
			case <-time.After(time.Duration(attempt-1) * time.Second):
			}
		}
		parsed, retryable, err := c.postOrder(ctx, body)
		if err == nil {
			return &workflow.GatewayOrder{
				ID:       parsed.ID,
				Amount:   decimal.NewFromInt(parsed.Amount).Div(decimal.NewFromInt(100)),
				Currency: parsed.Currency,
			}, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, utils.TransientGatewayErrorf("order creation failed after %d attempts: %v", createOrderMaxAttempts, lastErr)
}

// postOrder performs one attempt; retryable reports whether the failure is
// worth another try (transport errors and gateway 5xx).
func (c *Client) postOrder(ctx context.Context, body []byte) (*createOrderResponse, bool, error) {
	<-c.limiter
	endpoint := c.baseURL + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.SetBasicAuth(c.keyId, c.keySecret)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("razorpay api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, utils.ValidationErrorf("razorpay rejected order: %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed createOrderResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, false, err
	}
	if parsed.ID == "" {
		return nil, false, errors.New("razorpay order response has no id")
	}
	return &parsed, false, nil
}

// VerifyPaymentSignature checks the checkout callback signature
// (HMAC-SHA256 of "orderId|paymentId" with the key secret).
func (c *Client) VerifyPaymentSignature(gatewayOrderId string, gatewayPaymentId string, signature string) error {
	return VerifyPaymentSignature(gatewayOrderId, gatewayPaymentId, signature, c.keySecret)
}
