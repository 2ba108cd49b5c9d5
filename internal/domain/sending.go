package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Account is a connected Instagram sending account as seen by dispatch.
// Session material itself lives with the account registry; dispatch only
// needs to know whether one is present.
type Account struct {
	ID             string `json:"id" db:"id"`
	WorkspaceID    string `json:"workspace_id" db:"workspace_id"`
	PlatformUserID string `json:"platform_user_id" db:"platform_user_id"`
	Username       string `json:"username" db:"username"`
	DailyLimit     int    `json:"daily_limit" db:"daily_limit"`
	HasSession     bool   `json:"has_session" db:"has_session"`
}

// Ready reports whether the account can send right now.
func (a *Account) Ready() bool {
	return a.HasSession
}

// JobType identifies what the external sender should do with a job.
type JobType string

const JobTypeDM JobType = "DM"

// Job is the rendered, time-eligible unit of work handed to an external
// sender. It is never stored; the durable state lives on the Recipient.
type Job struct {
	ID                string    `json:"id"`
	CampaignID        string    `json:"campaignId"`
	CampaignName      string    `json:"campaignName"`
	LeadID            string    `json:"leadId"`
	RecipientUsername string    `json:"recipientUsername"`
	RecipientUserID   string    `json:"recipientUserId"`
	JobType           JobType   `json:"jobType"`
	Message           string    `json:"message"`
	ScheduledAt       time.Time `json:"scheduledAt"`
	StepOrder         int       `json:"stepOrder"`
}

// FormatJobID builds the opaque job ID for a recipient's step.
func FormatJobID(recipientID string, stepOrder int) string {
	return recipientID + ":" + strconv.Itoa(stepOrder)
}

// ParseJobID splits a job ID produced by FormatJobID.
func ParseJobID(id string) (recipientID string, stepOrder int, err error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("malformed job id %q", id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 1 {
		return "", 0, fmt.Errorf("malformed job id %q", id)
	}
	return id[:i], n, nil
}

// DayKey returns the calendar day (UTC) used to key daily send counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
