package payments

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/givegrip/givegrip_backend/config"
	"github.com/givegrip/givegrip_backend/models"
	"github.com/givegrip/givegrip_backend/models/reports"
	"github.com/givegrip/givegrip_backend/utils"
	"github.com/givegrip/givegrip_backend/workflow"
)

func respondError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.JSON(http.StatusBadRequest, gin.H{"errors": utils.ProcessValidationErrors(err)})
		return
	}
	switch {
	case errors.Is(err, utils.ErrorValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, utils.ErrorAuthentication):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, utils.ErrorConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, utils.ErrorTransientGateway):
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func CreateDonationHandler(client *Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewDonation
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		intent, err := workflow.CreateDonation(c.Request.Context(), client, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, intent)
	}
}

type confirmPaymentRequest struct {
	GatewayOrderId   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentId string `json:"gateway_payment_id" binding:"required"`
	Signature        string `json:"signature" binding:"required"`
}

// ConfirmPaymentHandler is the synchronous checkout callback: the browser
// reports success with the gateway's payment signature. The webhook remains
// the source of truth; both paths converge on the same engine call.
func ConfirmPaymentHandler(client *Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req confirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		outcome, err := workflow.ApplyGatewayResult(c.Request.Context(), client, req.GatewayOrderId, workflow.GatewayResult{
			Outcome:          workflow.OutcomeSuccess,
			GatewayPaymentId: req.GatewayPaymentId,
			Signature:        req.Signature,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, outcome)
	}
}

func CancelDonationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		donorId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if donorId == 0 {
			// Anonymous donations have no identity to scope a cancel by;
			// those go through an admin.
			respondError(c, utils.AuthenticationErrorf("login required"))
			return
		}
		donation, err := workflow.CancelDonation(c.Request.Context(), c.Param("id"), donorId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donation)
	}
}

func GetDonationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		donation, err := models.GetDonation(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		resp := gin.H{"donation": donation}
		if donation.Status == models.DonationStatusPaid {
			if receipt, rerr := models.GetDonationReceipt(c.Request.Context(), donation.ID); rerr == nil {
				resp["receipt"] = receipt
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}

func ListCampaignDonationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		statuses := []models.DonationStatus{models.DonationStatusPaid}
		if s := c.Query("status"); s != "" {
			statuses = []models.DonationStatus{models.DonationStatus(s)}
		}
		donations, err := models.ListCampaignDonations(c.Request.Context(), c.Param("id"), statuses...)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, donations)
	}
}

// PaymentStatusHandler is the polling endpoint the checkout page uses while
// waiting for the webhook to land.
func PaymentStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		order, err := models.GetPaymentOrderByGatewayOrderId(c.Request.Context(), c.Param("gateway_order_id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"gateway_order_id":  order.GatewayOrderId,
			"status":            order.Status,
			"error_code":        order.ErrorCode,
			"error_description": order.ErrorDescription,
		})
	}
}

// WebhookHandler accepts gateway deliveries. Everything except a transport
// verification failure is acknowledged with 200 so the gateway stops
// retrying; processing errors live on the event row, not in the response.
func WebhookHandler(intake *Intake) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		if err := intake.Receive(c.Request.Context(), body, c.Request.Header); err != nil {
			if errors.Is(err, utils.ErrorAuthentication) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "signature verification failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "accepted"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func GetCampaignHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		campaign, err := models.GetCampaign(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		_ = models.IncrementCampaignViewCount(c.Request.Context(), campaign.ID)
		c.JSON(http.StatusOK, campaign)
	}
}

func CreateCampaignHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewCampaign
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if userId == 0 {
			respondError(c, utils.AuthenticationErrorf("login required"))
			return
		}
		// Only admins may create on behalf of someone else.
		if input.CreatorId == 0 || !utils.GetIsAdminFromContext(c.Request.Context()) {
			input.CreatorId = userId
		}
		campaign, err := models.CreateCampaign(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, campaign)
	}
}

func UploadCampaignCoverHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		campaignId := c.Param("id")
		fileHeader, err := c.FormFile("cover")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cover file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			respondError(c, err)
			return
		}
		defer file.Close()

		imageUrl, thumbUrl, err := utils.UploadCoverImage(c.Request.Context(), fileHeader.Filename, file)
		if err != nil {
			respondError(c, err)
			return
		}
		if err := models.SetCampaignCover(c.Request.Context(), campaignId, imageUrl, thumbUrl); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"image_url": imageUrl, "thumbnail_url": thumbUrl})
	}
}

func ExportDonationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fromDate, toDate, err := parseReportRange(c.Query("from"), c.Query("to"))
		if err != nil {
			respondError(c, err)
			return
		}
		if err := reports.ExportDonationsByCampaignExcel(c.Request.Context(), c.Writer, fromDate, toDate); err != nil {
			respondError(c, err)
			return
		}
	}
}

func parseReportRange(from string, to string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	fromDate := now.AddDate(0, -1, 0)
	toDate := now
	var err error
	if from != "" {
		if fromDate, err = time.Parse("2006-01-02", from); err != nil {
			return time.Time{}, time.Time{}, utils.ValidationErrorf("invalid from date %q", from)
		}
	}
	if to != "" {
		if toDate, err = time.Parse("2006-01-02", to); err != nil {
			return time.Time{}, time.Time{}, utils.ValidationErrorf("invalid to date %q", to)
		}
		toDate = toDate.Add(24*time.Hour - time.Nanosecond)
	}
	return fromDate, toDate, nil
}

type pubSubPushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushHandler consumes donation events pushed back by Pub/Sub
// (receipt notification fan-out). Returning non-2xx makes Pub/Sub redeliver.
func PubSubPushHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		logger := config.GetLogger()

		var envelope pubSubPushEnvelope
		if err := c.ShouldBindJSON(&envelope); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push envelope"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
		if err != nil {
			// Undecodable messages would loop forever; ack and log.
			config.LogError(logger, "handlers.go", "PubSubPushHandler", "DecodeData", envelope.Message.MessageId, err)
			c.JSON(http.StatusOK, gin.H{"status": "discarded"})
			return
		}

		var event config.DonationEvent
		if err := json.Unmarshal(data, &event); err != nil {
			config.LogError(logger, "handlers.go", "PubSubPushHandler", "Unmarshal", envelope.Message.MessageId, err)
			c.JSON(http.StatusOK, gin.H{"status": "discarded"})
			return
		}

		logger.WithField("event_type", event.EventType).
			WithField("donation_id", event.DonationId).
			WithField("campaign_id", event.CampaignId).
			WithField("correlation_id", event.CorrelationId).
			Info("donation event received")
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

/* donor directory */

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func LoginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	}
}

func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := models.Logout(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": ok})
	}
}

func CreateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondError(c, err)
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, user)
	}
}

func CurrentUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, _ := utils.GetUserIdFromContext(c.Request.Context())
		if userId == 0 {
			respondError(c, utils.AuthenticationErrorf("login required"))
			return
		}
		user, err := models.GetUser(c.Request.Context(), userId)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func ChangePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		if _, err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

type updateCampaignStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateCampaignStatusHandler drives the review lifecycle. Admins may set
// any status; a creator may only submit their own draft for review.
func UpdateCampaignStatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateCampaignStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, err)
			return
		}
		status, ok := models.ParseCampaignStatus(req.Status)
		if !ok {
			respondError(c, utils.ValidationErrorf("unknown campaign status %q", req.Status))
			return
		}

		ctx := c.Request.Context()
		if !utils.GetIsAdminFromContext(ctx) {
			userId, _ := utils.GetUserIdFromContext(ctx)
			campaign, err := models.GetCampaign(ctx, c.Param("id"))
			if err != nil {
				respondError(c, err)
				return
			}
			if userId == 0 || campaign.CreatorId != userId || status != models.CampaignStatusPendingReview {
				respondError(c, utils.AuthenticationErrorf("not allowed to set status %s", status))
				return
			}
		}

		campaign, err := models.UpdateCampaignStatus(ctx, c.Param("id"), status)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, campaign)
	}
}
