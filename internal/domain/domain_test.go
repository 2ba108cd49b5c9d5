package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendWindowContains(t *testing.T) {
	at := func(hh, mm int) time.Time {
		return time.Date(2026, 3, 10, hh, mm, 0, 0, time.UTC)
	}

	tests := []struct {
		name   string
		window SendWindow
		at     time.Time
		want   bool
	}{
		{"open when unset", SendWindow{}, at(3, 0), true},
		{"inside day window", SendWindow{StartTime: "09:00", EndTime: "17:00"}, at(12, 30), true},
		{"start is inclusive", SendWindow{StartTime: "09:00", EndTime: "17:00"}, at(9, 0), true},
		{"end is exclusive", SendWindow{StartTime: "09:00", EndTime: "17:00"}, at(17, 0), false},
		{"before day window", SendWindow{StartTime: "09:00", EndTime: "17:00"}, at(8, 59), false},
		{"overnight late", SendWindow{StartTime: "22:00", EndTime: "06:00"}, at(23, 15), true},
		{"overnight early", SendWindow{StartTime: "22:00", EndTime: "06:00"}, at(5, 59), true},
		{"overnight midday", SendWindow{StartTime: "22:00", EndTime: "06:00"}, at(12, 0), false},
		// DST is in effect on 2026-03-10, so New York is UTC-4.
		{"evaluated in timezone", SendWindow{StartTime: "09:00", EndTime: "11:00", Timezone: "America/New_York"}, at(14, 0), true},
		{"outside in timezone", SendWindow{StartTime: "09:00", EndTime: "11:00", Timezone: "America/New_York"}, at(10, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.at))
		})
	}
}

func TestSendWindowValidate(t *testing.T) {
	assert.NoError(t, SendWindow{}.Validate())
	assert.NoError(t, SendWindow{StartTime: "08:00", EndTime: "20:00", Timezone: "Europe/Berlin", MessagesPerDay: 40}.Validate())
	assert.Error(t, SendWindow{StartTime: "08:00"}.Validate())
	assert.Error(t, SendWindow{StartTime: "8am", EndTime: "20:00"}.Validate())
	assert.Error(t, SendWindow{Timezone: "Mars/Olympus"}.Validate())
	assert.Error(t, SendWindow{MessagesPerDay: -1}.Validate())
}

func TestValidateSteps(t *testing.T) {
	ok := []CampaignStep{
		{Order: 1, Variants: []string{"hi {{name}}"}},
		{Order: 2, Variants: []string{"", "following up"}, DelayDays: 1},
	}
	require.NoError(t, ValidateSteps(ok))

	assert.Error(t, ValidateSteps(nil))
	assert.Error(t, ValidateSteps([]CampaignStep{{Order: 2, Variants: []string{"x"}}}))
	assert.Error(t, ValidateSteps([]CampaignStep{{Order: 1, Variants: []string{"x"}}, {Order: 1, Variants: []string{"y"}}}))
	assert.Error(t, ValidateSteps([]CampaignStep{{Order: 1, Variants: []string{""}}}))
	assert.Error(t, ValidateSteps([]CampaignStep{{Order: 1, Variants: []string{"x"}, DelayMinutes: -5}}))
}

func TestStepDelay(t *testing.T) {
	s := CampaignStep{DelayDays: 1, DelayMinutes: 30}
	assert.Equal(t, 24*time.Hour+30*time.Minute, s.Delay())
	assert.Equal(t, time.Duration(0), CampaignStep{}.Delay())
}

func TestJobIDRoundTrip(t *testing.T) {
	id := FormatJobID("0b6c1c5e-5f0e-4d4f-9d55-0d5f3b7b8a11", 3)
	rid, step, err := ParseJobID(id)
	require.NoError(t, err)
	assert.Equal(t, "0b6c1c5e-5f0e-4d4f-9d55-0d5f3b7b8a11", rid)
	assert.Equal(t, 3, step)

	for _, bad := range []string{"", "abc", ":1", "abc:", "abc:x", "abc:0"} {
		_, _, err := ParseJobID(bad)
		assert.Error(t, err, bad)
	}
}

func TestRecipientIsDue(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&Recipient{Status: RecipientPending}).IsDue(now))
	assert.True(t, (&Recipient{Status: RecipientInProgress, NextActionAt: &past}).IsDue(now))
	assert.True(t, (&Recipient{Status: RecipientInProgress, NextActionAt: &now}).IsDue(now))
	assert.False(t, (&Recipient{Status: RecipientInProgress, NextActionAt: &future}).IsDue(now))
	assert.False(t, (&Recipient{Status: RecipientCompleted}).IsDue(now))
	assert.False(t, (&Recipient{Status: RecipientFailed}).IsDue(now))
}

func TestDayKeyUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	assert.Equal(t, "2026-05-01", DayKey(time.Date(2026, 5, 2, 8, 0, 0, 0, loc)))
}
