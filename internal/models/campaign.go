package models

import "time"

// Campaign status constants
const (
	CampaignDraft     = "draft"
	CampaignScheduled = "scheduled"
	CampaignSending   = "sending"
	CampaignSent      = "sent"
)

// Schedule type constants
const (
	ScheduleImmediate = "immediate"
	ScheduleScheduled = "scheduled"
	ScheduleTimezone  = "timezone"
	ScheduleDraft     = "draft"
)

// Campaign represents one email campaign: its content (an ordered list of
// content blocks stored as JSON), sender identity, schedule, and the
// aggregate counters the dispatch loop maintains.
type Campaign struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Subject         string     `json:"subject"`
	Preheader       string     `json:"preheader,omitempty"`
	SenderName      string     `json:"sender_name"`
	SenderEmail     string     `json:"sender_email"`
	Elements        string     `json:"elements"`     // JSON array of content blocks
	AudienceIDs     string     `json:"audience_ids"` // JSON array
	ExcludedIDs     string     `json:"excluded_audience_ids"` // JSON array
	ScheduleType    string     `json:"schedule_type"`
	ScheduledAt     *time.Time `json:"scheduled_at,omitempty"`
	Status          string     `json:"status"`
	TotalRecipients int        `json:"total_recipients"`
	EmailsSent      int        `json:"emails_sent"`
	SentAt          *time.Time `json:"sent_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
