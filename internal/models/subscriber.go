package models

import (
	"encoding/json"
	"time"
)

// Subscriber status constants
const (
	SubscriberActive       = "active"
	SubscriberUnsubscribed = "unsubscribed"
	SubscriberBounced      = "bounced"
	SubscriberPending      = "pending"
)

// Subscriber is a single email recipient. Rows are created by signup and
// import flows; the dispatch pipeline only reads them.
type Subscriber struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	Metadata  string    `json:"metadata"` // JSON
	CreatedAt time.Time `json:"created_at"`
}

// MetadataMap decodes the free-form metadata column. A missing or
// malformed value yields an empty map, never an error.
func (s *Subscriber) MetadataMap() map[string]string {
	m := make(map[string]string)
	if s.Metadata == "" {
		return m
	}
	// Values may be stored as strings, bools or numbers; decode loosely.
	var raw map[string]any
	if err := json.Unmarshal([]byte(s.Metadata), &raw); err != nil {
		return m
	}
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			m[k] = val
		case bool:
			if val {
				m[k] = "true"
			} else {
				m[k] = "false"
			}
		case float64:
			b, _ := json.Marshal(val)
			m[k] = string(b)
		}
	}
	return m
}
