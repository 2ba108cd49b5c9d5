package progression

import "errors"

// Sentinel errors for the progression engine.
var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrCampaignNotFound  = errors.New("campaign not found")
	// ErrStaleTransition means the recipient is no longer on the expected
	// step or is already terminal. Nothing was written.
	ErrStaleTransition = errors.New("recipient is not on the expected step")
	ErrInvalidOutcome  = errors.New("outcome must be SENT or FAILED")
)
