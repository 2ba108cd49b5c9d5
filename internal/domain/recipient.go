package domain

import "time"

// RecipientStatus enumerates a recipient's progression through a campaign.
type RecipientStatus string

const (
	RecipientPending    RecipientStatus = "PENDING"
	RecipientInProgress RecipientStatus = "IN_PROGRESS"
	RecipientCompleted  RecipientStatus = "COMPLETED"
	RecipientFailed     RecipientStatus = "FAILED"
)

// IsActive is true while the recipient still has work pending.
func (s RecipientStatus) IsActive() bool {
	return s == RecipientPending || s == RecipientInProgress
}

// Recipient is a contact's progression record through a campaign's steps.
// CurrentStepOrder is the last step delivered (0 before the first send).
type Recipient struct {
	ID               string          `json:"id" db:"id"`
	CampaignID       string          `json:"campaign_id" db:"campaign_id"`
	LeadID           string          `json:"lead_id" db:"lead_id"`
	AccountID        string          `json:"account_id" db:"account_id"`
	PlatformUserID   string          `json:"platform_user_id" db:"platform_user_id"`
	Username         string          `json:"username" db:"username"`
	FullName         string          `json:"full_name" db:"full_name"`
	CurrentStepOrder int             `json:"current_step_order" db:"current_step_order"`
	Status           RecipientStatus `json:"status" db:"status"`
	NextActionAt     *time.Time      `json:"next_action_at" db:"next_action_at"`
	LastProcessedAt  *time.Time      `json:"last_processed_at" db:"last_processed_at"`
	ErrorMessage     string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// IsDue reports whether the recipient may receive its next step at now.
// Active recipients without a scheduled time are due immediately.
func (r *Recipient) IsDue(now time.Time) bool {
	if !r.Status.IsActive() {
		return false
	}
	return r.NextActionAt == nil || !r.NextActionAt.After(now)
}

// Outcome is the result an external sender reports for a job.
type Outcome string

const (
	OutcomeSent   Outcome = "SENT"
	OutcomeFailed Outcome = "FAILED"
)

// Valid reports whether o is one of the accepted outcomes.
func (o Outcome) Valid() bool {
	return o == OutcomeSent || o == OutcomeFailed
}
