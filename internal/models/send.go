package models

import "time"

// Send status constants
const (
	SendPending = "pending"
	SendSent    = "sent"
	SendFailed  = "failed"
)

// Send is the per-recipient-per-campaign row tracking one dispatch
// attempt. Created in pending state before the transport is invoked; the
// terminal state (sent with a message id, or failed with an error string)
// is written exactly once.
type Send struct {
	ID           string     `json:"id"`
	CampaignID   string     `json:"campaign_id"`
	SubscriberID string     `json:"subscriber_id"`
	Email        string     `json:"email"`
	Status       string     `json:"status"`
	MessageID    string     `json:"message_id,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	SentAt       *time.Time `json:"sent_at,omitempty"`
}

// SendStats holds aggregated per-campaign send counts.
type SendStats struct {
	Total   int `json:"total"`
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}
