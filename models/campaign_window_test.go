package models

import (
	"testing"
	"time"
)

func TestCampaignIsDonatable(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		status CampaignStatus
		now    time.Time
		want   bool
	}{
		{"active inside window", CampaignStatusActive, start.AddDate(0, 0, 10), true},
		{"active at start boundary", CampaignStatusActive, start, true},
		{"active at end boundary", CampaignStatusActive, end, true},
		{"active before start", CampaignStatusActive, start.Add(-time.Second), false},
		{"active after end", CampaignStatusActive, end.Add(time.Second), false},
		{"draft inside window", CampaignStatusDraft, start.AddDate(0, 0, 10), false},
		{"paused inside window", CampaignStatusPaused, start.AddDate(0, 0, 10), false},
		{"completed inside window", CampaignStatusCompleted, start.AddDate(0, 0, 10), false},
		{"cancelled inside window", CampaignStatusCancelled, start.AddDate(0, 0, 10), false},
	}

	for _, tc := range cases {
		c := Campaign{Status: tc.status, StartDate: start, EndDate: end}
		if got := c.IsDonatable(tc.now); got != tc.want {
			t.Errorf("%s: IsDonatable = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestDonationStatusTerminal(t *testing.T) {
	if DonationStatusPending.IsTerminal() {
		t.Error("pending must not be terminal")
	}
	for _, s := range []DonationStatus{DonationStatusPaid, DonationStatusFailed, DonationStatusCancelled} {
		if !s.IsTerminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestDonationDisplayName(t *testing.T) {
	d := Donation{IsAnonymous: true, DonorName: "Aung Aung"}
	if got := d.DisplayName(); got != "Anonymous" {
		t.Errorf("anonymous donation shows %q", got)
	}
	d = Donation{DonorName: "Aung Aung"}
	if got := d.DisplayName(); got != "Aung Aung" {
		t.Errorf("named donation shows %q", got)
	}
	d = Donation{}
	if got := d.DisplayName(); got != "Anonymous" {
		t.Errorf("nameless donation shows %q", got)
	}
}
