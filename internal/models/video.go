package models

import "time"

// Video is a tutorial video whose duration is cached from the hosting
// platform by the duration refresher. The cache is best effort; a video
// with duration_cached = false simply has no duration shown.
type Video struct {
	ID                string     `json:"id"`
	ProviderVideoID   string     `json:"provider_video_id"`
	Title             string     `json:"title"`
	DurationSeconds   int        `json:"duration_seconds"`
	DurationCached    bool       `json:"duration_cached"`
	DurationUpdatedAt *time.Time `json:"duration_updated_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// DurationCacheStats summarizes cache coverage across all videos.
type DurationCacheStats struct {
	Total           int `json:"total"`
	Cached          int `json:"cached"`
	NotCached       int `json:"not_cached"`
	RecentlyUpdated int `json:"recently_updated"`
}
