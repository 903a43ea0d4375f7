package models

import "time"

// Audience kind constants
const (
	AudienceStatic  = "static"
	AudienceDynamic = "dynamic"
)

// Audience represents a subscriber group a campaign can target.
// Static audiences carry an explicit membership list in the
// audience_subscribers junction table; dynamic audiences are computed
// on demand from their filter rules.
type Audience struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`    // static, dynamic
	Filters   string    `json:"filters"` // JSON, opaque rule definition for dynamic audiences
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
