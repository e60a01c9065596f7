package models

type CampaignStatus string

const (
	CampaignStatusDraft         CampaignStatus = "draft"
	CampaignStatusPendingReview CampaignStatus = "pending_review"
	CampaignStatusActive        CampaignStatus = "active"
	CampaignStatusPaused        CampaignStatus = "paused"
	CampaignStatusCompleted     CampaignStatus = "completed"
	CampaignStatusCancelled     CampaignStatus = "cancelled"
	CampaignStatusRejected      CampaignStatus = "rejected"
)

// ParseCampaignStatus maps client input onto a known status value.
func ParseCampaignStatus(s string) (CampaignStatus, bool) {
	switch CampaignStatus(s) {
	case CampaignStatusDraft, CampaignStatusPendingReview, CampaignStatusActive,
		CampaignStatusPaused, CampaignStatusCompleted, CampaignStatusCancelled,
		CampaignStatusRejected:
		return CampaignStatus(s), true
	}
	return "", false
}

type DonationStatus string

const (
	DonationStatusPending   DonationStatus = "pending"
	DonationStatusPaid      DonationStatus = "paid"
	DonationStatusFailed    DonationStatus = "failed"
	DonationStatusCancelled DonationStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s DonationStatus) IsTerminal() bool {
	return s == DonationStatusPaid || s == DonationStatusFailed || s == DonationStatusCancelled
}

type PaymentOrderStatus string

const (
	PaymentOrderStatusCreated   PaymentOrderStatus = "created"
	PaymentOrderStatusAttempted PaymentOrderStatus = "attempted"
	PaymentOrderStatusPaid      PaymentOrderStatus = "paid"
	PaymentOrderStatusFailed    PaymentOrderStatus = "failed"
	PaymentOrderStatusCancelled PaymentOrderStatus = "cancelled"
)

func (s PaymentOrderStatus) IsTerminal() bool {
	return s == PaymentOrderStatusPaid || s == PaymentOrderStatusFailed || s == PaymentOrderStatusCancelled
}

// Donation event types written to the outbox.
const (
	DonationEventPaid      = "donation.paid"
	DonationEventFailed    = "donation.failed"
	DonationEventCancelled = "donation.cancelled"
)

// Outbox publish statuses for DonationEventRecord.PublishStatus.
// Keep these as strings (DB values) for backwards compatibility.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)
