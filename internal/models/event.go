package models

import "time"

// Email event kinds
const (
	EventOpen  = "open"
	EventClick = "click"
)

// EmailEvent records one unique open or click for a send. Deduplication
// happens before insertion, so at most one open row exists per send and
// one click row per send+URL pair.
type EmailEvent struct {
	ID           int64     `json:"id"`
	Kind         string    `json:"kind"`
	CampaignID   string    `json:"campaign_id"`
	SubscriberID string    `json:"subscriber_id"`
	SendID       string    `json:"send_id"`
	URL          string    `json:"url,omitempty"` // click target, empty for opens
	UserAgent    string    `json:"user_agent,omitempty"`
	ClientIP     string    `json:"client_ip,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
