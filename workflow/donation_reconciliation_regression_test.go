package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/utils"
)

// Regression coverage for the reconciliation engine against real MySQL + Redis.
//
// - Run (requires Docker): INTEGRATION_TESTS=1 go test ./workflow -run DonationReconciliation -v

type stubOrders struct {
	mu      sync.Mutex
	counter int
}

func (s *stubOrders) CreateOrder(ctx context.Context, amount decimal.Decimal, currency string, receipt string) (*GatewayOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counter++
	return &GatewayOrder{
		ID:       fmt.Sprintf("order_test%06d", s.counter),
		Amount:   amount,
		Currency: currency,
	}, nil
}

func (s *stubOrders) KeyId() string { return "rzp_test_stub" }

type stubVerifier struct {
	fail bool
}

func (v stubVerifier) VerifyPaymentSignature(gatewayOrderId, gatewayPaymentId, signature string) error {
	if v.fail {
		return utils.AuthenticationErrorf("payment signature mismatch for order %s", gatewayOrderId)
	}
	return nil
}

func setupReconciliationEnv(t *testing.T) context.Context {
	t.Helper()

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "givegrip_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx
}

func createActiveCampaign(t *testing.T, ctx context.Context, goal int64) *models.Campaign {
	t.Helper()
	campaign, err := models.CreateCampaign(ctx, &models.NewCampaign{
		Title:      "Clean Water",
		GoalAmount: decimal.NewFromInt(goal),
		Currency:   "INR",
		StartDate:  time.Now().UTC().AddDate(0, 0, -1),
		EndDate:    time.Now().UTC().AddDate(0, 1, 0),
		CreatorId:  1,
	})
	if err != nil {
		t.Fatalf("CreateCampaign: %v", err)
	}
	campaign, err = models.UpdateCampaignStatus(ctx, campaign.ID, models.CampaignStatusActive)
	if err != nil {
		t.Fatalf("UpdateCampaignStatus: %v", err)
	}
	return campaign
}

func TestDonationReconciliation_SuccessPathAndDuplicates(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupReconciliationEnv(t)
	orders := &stubOrders{}
	campaign := createActiveCampaign(t, ctx, 10000)
	db := config.GetDB()

	intent, err := CreateDonation(ctx, orders, &models.NewDonation{
		CampaignId: campaign.ID,
		Amount:     decimal.NewFromInt(500),
		DonorName:  "Mya Mya",
		DonorEmail: "mya@test.local",
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}

	// Success outcome (transport-verified webhook path).
	res := GatewayResult{
		Outcome:           OutcomeSuccess,
		GatewayPaymentId:  "pay_test0001",
		TransportVerified: true,
		PaymentMethod:     "upi",
	}
	outcome, err := ApplyGatewayResult(ctx, stubVerifier{}, intent.GatewayOrderId, res)
	if err != nil {
		t.Fatalf("ApplyGatewayResult: %v", err)
	}
	if outcome.AlreadyFinal {
		t.Fatal("first application must not be a no-op")
	}
	if outcome.DonationStatus != models.DonationStatusPaid {
		t.Fatalf("expected donation paid; got %s", outcome.DonationStatus)
	}
	if !outcome.CollectedAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("expected collected=500; got %s", outcome.CollectedAmount)
	}

	receipt, err := models.GetDonationReceipt(ctx, intent.DonationId)
	if err != nil {
		t.Fatalf("GetDonationReceipt: %v", err)
	}
	if !strings.HasPrefix(receipt.ReceiptNumber, "RCPT-") {
		t.Fatalf("unexpected receipt number %q", receipt.ReceiptNumber)
	}

	var outboxCount int64
	if err := db.Model(&models.DonationEventRecord{}).
		Where("donation_id = ? AND event_type = ?", intent.DonationId, models.DonationEventPaid).
		Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 1 {
		t.Fatalf("expected 1 outbox record; got %d", outboxCount)
	}

	// Duplicate delivery: committed no-op, nothing re-applied.
	outcome2, err := ApplyGatewayResult(ctx, stubVerifier{}, intent.GatewayOrderId, res)
	if err != nil {
		t.Fatalf("duplicate ApplyGatewayResult: %v", err)
	}
	if !outcome2.AlreadyFinal {
		t.Fatal("duplicate application must report AlreadyFinal")
	}
	if !outcome2.CollectedAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("duplicate changed aggregate: %s", outcome2.CollectedAmount)
	}

	var receiptCount int64
	if err := db.Model(&models.DonationReceipt{}).
		Where("donation_id = ?", intent.DonationId).Count(&receiptCount).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if receiptCount != 1 {
		t.Fatalf("expected 1 receipt after duplicate; got %d", receiptCount)
	}
}

func TestDonationReconciliation_UnknownOrderAndConflicts(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupReconciliationEnv(t)
	orders := &stubOrders{}
	campaign := createActiveCampaign(t, ctx, 10000)
	db := config.GetDB()

	// Unknown gateway order: NotFound, no rows written.
	_, err := ApplyGatewayResult(ctx, stubVerifier{}, "order_unknown", GatewayResult{
		Outcome:           OutcomeSuccess,
		GatewayPaymentId:  "pay_x",
		TransportVerified: true,
	})
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected record not found; got %v", err)
	}
	var outboxCount int64
	if err := db.Model(&models.DonationEventRecord{}).Count(&outboxCount).Error; err != nil {
		t.Fatalf("count outbox: %v", err)
	}
	if outboxCount != 0 {
		t.Fatalf("unknown order must not write outbox rows; got %d", outboxCount)
	}

	// Failure first, late success second: first outcome wins.
	intent, err := CreateDonation(ctx, orders, &models.NewDonation{
		CampaignId: campaign.ID,
		Amount:     decimal.NewFromInt(300),
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	if _, err := ApplyGatewayResult(ctx, stubVerifier{}, intent.GatewayOrderId, GatewayResult{
		Outcome:          OutcomeFailure,
		GatewayPaymentId: "pay_test0002",
		ErrorCode:        "BAD_REQUEST_ERROR",
		ErrorDescription: "Payment declined by bank",
	}); err != nil {
		t.Fatalf("ApplyGatewayResult(failure): %v", err)
	}
	failedOrder, err := models.GetPaymentOrderByGatewayOrderId(ctx, intent.GatewayOrderId)
	if err != nil {
		t.Fatalf("GetPaymentOrderByGatewayOrderId: %v", err)
	}
	if failedOrder.ErrorCode != "BAD_REQUEST_ERROR" || failedOrder.ErrorDescription != "Payment declined by bank" {
		t.Fatalf("failure details not persisted on order: code=%q description=%q", failedOrder.ErrorCode, failedOrder.ErrorDescription)
	}

	lateSuccess, err := ApplyGatewayResult(ctx, stubVerifier{}, intent.GatewayOrderId, GatewayResult{
		Outcome:           OutcomeSuccess,
		GatewayPaymentId:  "pay_test0002",
		TransportVerified: true,
	})
	if err != nil {
		t.Fatalf("ApplyGatewayResult(late success): %v", err)
	}
	if !lateSuccess.AlreadyFinal || lateSuccess.DonationStatus != models.DonationStatusFailed {
		t.Fatalf("late success must not override failure; outcome=%+v", lateSuccess)
	}
	if !lateSuccess.CollectedAmount.Equal(decimal.Zero) {
		t.Fatalf("failed donation counted into aggregate: %s", lateSuccess.CollectedAmount)
	}

	// Signature rejection: nothing mutated.
	intent2, err := CreateDonation(ctx, orders, &models.NewDonation{
		CampaignId: campaign.ID,
		Amount:     decimal.NewFromInt(200),
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}
	_, err = ApplyGatewayResult(ctx, stubVerifier{fail: true}, intent2.GatewayOrderId, GatewayResult{
		Outcome:          OutcomeSuccess,
		GatewayPaymentId: "pay_test0003",
		Signature:        "forged",
	})
	if !errors.Is(err, utils.ErrorAuthentication) {
		t.Fatalf("expected authentication error; got %v", err)
	}
	donation, err := models.GetDonation(ctx, intent2.DonationId)
	if err != nil {
		t.Fatalf("GetDonation: %v", err)
	}
	if donation.Status != models.DonationStatusPending {
		t.Fatalf("rejected signature mutated donation: %s", donation.Status)
	}

	// Cancel, then a success for the cancelled donation is a no-op.
	if _, err := CancelDonation(ctx, intent2.DonationId, 0); err != nil {
		t.Fatalf("CancelDonation: %v", err)
	}
	afterCancel, err := ApplyGatewayResult(ctx, stubVerifier{}, intent2.GatewayOrderId, GatewayResult{
		Outcome:           OutcomeSuccess,
		GatewayPaymentId:  "pay_test0003",
		TransportVerified: true,
	})
	if err != nil {
		t.Fatalf("ApplyGatewayResult(after cancel): %v", err)
	}
	if !afterCancel.AlreadyFinal || afterCancel.DonationStatus != models.DonationStatusCancelled {
		t.Fatalf("success after cancel must be a no-op; outcome=%+v", afterCancel)
	}
}

func TestDonationReconciliation_CancellationIsDonorScoped(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupReconciliationEnv(t)
	orders := &stubOrders{}
	campaign := createActiveCampaign(t, ctx, 10000)

	donor, err := models.CreateUser(ctx, &models.NewUser{
		Username: "aung",
		Name:     "Aung Aung",
		Password: "donor-pass",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	intent, err := CreateDonation(ctx, orders, &models.NewDonation{
		CampaignId: campaign.ID,
		DonorId:    donor.ID,
		Amount:     decimal.NewFromInt(150),
	})
	if err != nil {
		t.Fatalf("CreateDonation: %v", err)
	}

	// Someone else's id: the donation must stay hidden and untouched.
	if _, err := CancelDonation(ctx, intent.DonationId, donor.ID+1); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("foreign cancel must look like not-found; got %v", err)
	}
	donation, err := models.GetDonation(ctx, intent.DonationId)
	if err != nil {
		t.Fatalf("GetDonation: %v", err)
	}
	if donation.Status != models.DonationStatusPending {
		t.Fatalf("foreign cancel mutated donation: %s", donation.Status)
	}

	// The owning donor cancels; order and donation both move.
	cancelled, err := CancelDonation(ctx, intent.DonationId, donor.ID)
	if err != nil {
		t.Fatalf("own cancel: %v", err)
	}
	if cancelled.Status != models.DonationStatusCancelled {
		t.Fatalf("expected cancelled; got %s", cancelled.Status)
	}
	order, err := models.GetPaymentOrderByGatewayOrderId(ctx, intent.GatewayOrderId)
	if err != nil {
		t.Fatalf("GetPaymentOrderByGatewayOrderId: %v", err)
	}
	if order.Status != models.PaymentOrderStatusCancelled {
		t.Fatalf("expected order cancelled; got %s", order.Status)
	}

	// Cancelling twice conflicts instead of silently succeeding.
	if _, err := CancelDonation(ctx, intent.DonationId, donor.ID); !errors.Is(err, utils.ErrorConflict) {
		t.Fatalf("second cancel must conflict; got %v", err)
	}
}

func TestDonationReconciliation_ConcurrentDeliveriesKeepAggregateConsistent(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	ctx := setupReconciliationEnv(t)
	orders := &stubOrders{}
	campaign := createActiveCampaign(t, ctx, 100000)

	const donations = 8
	intents := make([]*DonationIntent, 0, donations)
	expected := decimal.Zero
	for i := 0; i < donations; i++ {
		amount := decimal.NewFromInt(int64(100 * (i + 1)))
		intent, err := CreateDonation(ctx, orders, &models.NewDonation{
			CampaignId: campaign.ID,
			Amount:     amount,
			DonorId:    0,
		})
		if err != nil {
			t.Fatalf("CreateDonation #%d: %v", i, err)
		}
		intents = append(intents, intent)
		expected = expected.Add(amount)
	}

	// Every delivery three times, concurrently.
	var wg sync.WaitGroup
	for _, intent := range intents {
		for rep := 0; rep < 3; rep++ {
			wg.Add(1)
			go func(gatewayOrderId string) {
				defer wg.Done()
				_, err := ApplyGatewayResult(ctx, stubVerifier{}, gatewayOrderId, GatewayResult{
					Outcome:           OutcomeSuccess,
					GatewayPaymentId:  "pay_" + gatewayOrderId,
					TransportVerified: true,
				})
				if err != nil {
					t.Errorf("ApplyGatewayResult(%s): %v", gatewayOrderId, err)
				}
			}(intent.GatewayOrderId)
		}
	}
	wg.Wait()

	var stored decimal.Decimal
	db := config.GetDB()
	if err := db.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Select("collected_amount").Scan(&stored).Error; err != nil {
		t.Fatalf("read collected_amount: %v", err)
	}
	if !stored.Equal(expected) {
		t.Fatalf("expected collected=%s; got %s", expected, stored)
	}

	var receiptCount int64
	if err := db.Model(&models.DonationReceipt{}).Count(&receiptCount).Error; err != nil {
		t.Fatalf("count receipts: %v", err)
	}
	if receiptCount != donations {
		t.Fatalf("expected %d receipts; got %d", donations, receiptCount)
	}
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("givegrip-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("givegrip-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=givegrip_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
