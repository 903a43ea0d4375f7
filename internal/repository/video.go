package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/models"
)

type VideoRepository struct {
	db *sql.DB
}

func NewVideoRepository(db *sql.DB) *VideoRepository {
	return &VideoRepository{db: db}
}

// Create creates a new video row
func (r *VideoRepository) Create(v *models.Video) error {
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO videos (id, provider_video_id, title, duration_seconds, duration_cached,
			duration_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.ProviderVideoID, nullString(v.Title), v.DurationSeconds, v.DurationCached,
		v.DurationUpdatedAt, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create video: %w", err)
	}
	return nil
}

// GetByID returns a video by ID, or nil when it does not exist
func (r *VideoRepository) GetByID(id string) (*models.Video, error) {
	v := &models.Video{}
	var title sql.NullString
	var updatedAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, provider_video_id, title, duration_seconds, duration_cached,
			duration_updated_at, created_at
		FROM videos WHERE id = ?`, id,
	).Scan(&v.ID, &v.ProviderVideoID, &title, &v.DurationSeconds, &v.DurationCached,
		&updatedAt, &v.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	v.Title = title.String
	if updatedAt.Valid {
		v.DurationUpdatedAt = &updatedAt.Time
	}
	return v, nil
}

// ListNeedingRefresh returns videos whose duration has never been cached
// or whose cache entry is older than maxAge, capped at limit rows.
func (r *VideoRepository) ListNeedingRefresh(maxAge time.Duration, limit int) ([]models.Video, error) {
	cutoff := time.Now().Add(-maxAge)

	rows, err := r.db.Query(`
		SELECT id, provider_video_id, title, duration_seconds, duration_cached,
			duration_updated_at, created_at
		FROM videos
		WHERE duration_cached = 0 OR duration_updated_at IS NULL OR duration_updated_at < ?
		ORDER BY duration_updated_at ASC
		LIMIT ?`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos needing refresh: %w", err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		var v models.Video
		var title sql.NullString
		var updatedAt sql.NullTime
		if err := rows.Scan(&v.ID, &v.ProviderVideoID, &title, &v.DurationSeconds,
			&v.DurationCached, &updatedAt, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Title = title.String
		if updatedAt.Valid {
			v.DurationUpdatedAt = &updatedAt.Time
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}

// UpdateDuration stores a freshly scraped duration for a video
func (r *VideoRepository) UpdateDuration(id string, seconds int) error {
	_, err := r.db.Exec(`
		UPDATE videos SET duration_seconds = ?, duration_cached = 1, duration_updated_at = ?
		WHERE id = ?`,
		seconds, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update duration: %w", err)
	}
	return nil
}

// CacheStats reports duration cache coverage. Videos updated within the
// recent window count as recently updated.
func (r *VideoRepository) CacheStats(recentWindow time.Duration) (*models.DurationCacheStats, error) {
	stats := &models.DurationCacheStats{}
	cutoff := time.Now().Add(-recentWindow)

	err := r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN duration_cached = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN duration_updated_at IS NOT NULL AND duration_updated_at >= ? THEN 1 ELSE 0 END), 0)
		FROM videos`, cutoff,
	).Scan(&stats.Total, &stats.Cached, &stats.RecentlyUpdated)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}

	stats.NotCached = stats.Total - stats.Cached
	return stats, nil
}
