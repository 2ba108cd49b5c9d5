// Package dispatch turns due recipients into rendered, rate-limited DM jobs
// for external senders, records their reported outcomes, and runs the
// periodic batch over running campaigns.
//
// Materializing jobs writes nothing: a job that is handed out but never
// executed costs no budget and is handed out again on the next pull. Sends
// are counted only when a sender reports SENT.
package dispatch
