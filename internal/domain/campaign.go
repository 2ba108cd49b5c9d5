package domain

import (
	"fmt"
	"time"
)

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

// Campaign is a multi-step drip messaging effort owned by a workspace.
type Campaign struct {
	ID          string         `json:"id" db:"id"`
	WorkspaceID string         `json:"workspace_id" db:"workspace_id"`
	Name        string         `json:"name" db:"name"`
	Status      CampaignStatus `json:"status" db:"status"`
	SendWindow  SendWindow     `json:"send_window"`

	// Counters maintained by outcome reporting. SentCount and FailedCount
	// count recipients that finished their sequence, so their sum never
	// exceeds TotalRecipients. MessagesSent counts every SENT step.
	TotalRecipients int `json:"total_recipients" db:"total_recipients"`
	SentCount       int `json:"sent_count" db:"sent_count"`
	FailedCount     int `json:"failed_count" db:"failed_count"`
	RepliedCount    int `json:"replied_count" db:"replied_count"`
	MessagesSent    int `json:"messages_sent" db:"messages_sent"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	StartedAt   *time.Time `json:"started_at" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted
}

// SendWindow restricts when a campaign's messages may be handed out.
// Empty StartTime/EndTime means the window is always open. A window whose
// end is before its start wraps midnight (e.g. 22:00-06:00).
type SendWindow struct {
	StartTime      string `json:"start_time" db:"send_start_time"` // "HH:MM"
	EndTime        string `json:"end_time" db:"send_end_time"`     // "HH:MM"
	Timezone       string `json:"timezone" db:"timezone"`
	MessagesPerDay int    `json:"messages_per_day" db:"messages_per_day"`
}

// Validate checks the window's clock strings and timezone.
func (w SendWindow) Validate() error {
	if (w.StartTime == "") != (w.EndTime == "") {
		return fmt.Errorf("send window needs both start_time and end_time")
	}
	if w.StartTime != "" {
		if _, err := parseClock(w.StartTime); err != nil {
			return fmt.Errorf("start_time: %w", err)
		}
		if _, err := parseClock(w.EndTime); err != nil {
			return fmt.Errorf("end_time: %w", err)
		}
	}
	if w.Timezone != "" {
		if _, err := time.LoadLocation(w.Timezone); err != nil {
			return fmt.Errorf("timezone %q: %w", w.Timezone, err)
		}
	}
	if w.MessagesPerDay < 0 {
		return fmt.Errorf("messages_per_day must not be negative")
	}
	return nil
}

// Contains reports whether t falls inside the window, evaluated in the
// window's timezone (UTC when unset or unknown).
func (w SendWindow) Contains(t time.Time) bool {
	if w.StartTime == "" || w.EndTime == "" {
		return true
	}
	start, err := parseClock(w.StartTime)
	if err != nil {
		return true
	}
	end, err := parseClock(w.EndTime)
	if err != nil {
		return true
	}

	loc := time.UTC
	if w.Timezone != "" {
		if l, err := time.LoadLocation(w.Timezone); err == nil {
			loc = l
		}
	}
	local := t.In(loc)
	minute := local.Hour()*60 + local.Minute()

	if start == end {
		return true
	}
	if start < end {
		return minute >= start && minute < end
	}
	return minute >= start || minute < end
}

// parseClock converts "HH:MM" into minutes after midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q (want HH:MM)", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// CampaignStep is one stage of a campaign's message sequence. Orders are
// 1-based and contiguous within a campaign. Steps are never modified after
// the campaign starts.
type CampaignStep struct {
	ID           string   `json:"id" db:"id"`
	CampaignID   string   `json:"campaign_id" db:"campaign_id"`
	Order        int      `json:"step_order" db:"step_order"`
	Variants     []string `json:"variants" db:"variants"`
	DelayDays    int      `json:"delay_days" db:"delay_days"`
	DelayMinutes int      `json:"delay_minutes" db:"delay_minutes"`
}

// Delay is how long after the previous step this step becomes eligible.
func (s CampaignStep) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayMinutes)*time.Minute
}

// ValidateSteps checks that orders are unique and contiguous from 1 and that
// every step carries at least one non-empty variant. steps must be sorted by
// Order.
func ValidateSteps(steps []CampaignStep) error {
	if len(steps) == 0 {
		return fmt.Errorf("campaign needs at least one step")
	}
	for i, s := range steps {
		if s.Order != i+1 {
			return fmt.Errorf("step orders must be contiguous from 1: position %d has order %d", i+1, s.Order)
		}
		if s.DelayDays < 0 || s.DelayMinutes < 0 {
			return fmt.Errorf("step %d: delay must not be negative", s.Order)
		}
		hasVariant := false
		for _, v := range s.Variants {
			if v != "" {
				hasVariant = true
				break
			}
		}
		if !hasVariant {
			return fmt.Errorf("step %d: at least one message variant is required", s.Order)
		}
	}
	return nil
}

// CampaignStats is the per-status recipient breakdown shown with a campaign.
type CampaignStats struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
