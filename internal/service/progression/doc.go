// Package progression owns the per-recipient state machine of a DM campaign.
//
// A recipient moves PENDING → IN_PROGRESS → (IN_PROGRESS)* → COMPLETED, or
// to FAILED from any active state. Every write goes through
// Repository.ApplyTransition, which is guarded on the recipient's prior
// status and step so that concurrent or replayed reports cannot advance a
// recipient twice. Due selection is a pure read and is safe to repeat.
package progression
