package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/models"
)

type SendRepository struct {
	db *sql.DB
}

func NewSendRepository(db *sql.DB) *SendRepository {
	return &SendRepository{db: db}
}

// Create creates a new send record in pending state
func (r *SendRepository) Create(s *models.Send) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	s.Status = models.SendPending
	s.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO sends (id, campaign_id, subscriber_id, email, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, s.CampaignID, s.SubscriberID, s.Email, s.Status, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create send: %w", err)
	}
	return nil
}

// GetByID returns a send by ID, or nil when it does not exist
func (r *SendRepository) GetByID(id string) (*models.Send, error) {
	s := &models.Send{}
	var messageID, errorMsg sql.NullString
	var sentAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, campaign_id, subscriber_id, email, status, message_id, error_message,
			created_at, sent_at
		FROM sends WHERE id = ?`, id,
	).Scan(&s.ID, &s.CampaignID, &s.SubscriberID, &s.Email, &s.Status, &messageID,
		&errorMsg, &s.CreatedAt, &sentAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.MessageID = messageID.String
	s.ErrorMessage = errorMsg.String
	if sentAt.Valid {
		s.SentAt = &sentAt.Time
	}
	return s, nil
}

// MarkSent moves a pending send to its sent terminal state
func (r *SendRepository) MarkSent(id, messageID string) error {
	_, err := r.db.Exec(`
		UPDATE sends SET status = ?, message_id = ?, sent_at = ? WHERE id = ?`,
		models.SendSent, messageID, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark send sent: %w", err)
	}
	return nil
}

// MarkFailed moves a pending send to its failed terminal state
func (r *SendRepository) MarkFailed(id, errorMsg string) error {
	_, err := r.db.Exec(`
		UPDATE sends SET status = ?, error_message = ? WHERE id = ?`,
		models.SendFailed, errorMsg, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark send failed: %w", err)
	}
	return nil
}

// GetStats returns aggregated send counts for a campaign
func (r *SendRepository) GetStats(campaignID string) (*models.SendStats, error) {
	stats := &models.SendStats{}

	err := r.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'sent' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM sends WHERE campaign_id = ?`, campaignID,
	).Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Failed)

	if err != nil {
		return nil, fmt.Errorf("failed to get send stats: %w", err)
	}
	return stats, nil
}

// ListByCampaign returns all sends for a campaign, oldest first
func (r *SendRepository) ListByCampaign(campaignID string) ([]models.Send, error) {
	rows, err := r.db.Query(`
		SELECT id, campaign_id, subscriber_id, email, status, message_id, error_message,
			created_at, sent_at
		FROM sends WHERE campaign_id = ? ORDER BY created_at ASC`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sends: %w", err)
	}
	defer rows.Close()

	sends := []models.Send{}
	for rows.Next() {
		var s models.Send
		var messageID, errorMsg sql.NullString
		var sentAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.CampaignID, &s.SubscriberID, &s.Email, &s.Status,
			&messageID, &errorMsg, &s.CreatedAt, &sentAt); err != nil {
			return nil, err
		}
		s.MessageID = messageID.String
		s.ErrorMessage = errorMsg.String
		if sentAt.Valid {
			s.SentAt = &sentAt.Time
		}
		sends = append(sends, s)
	}
	return sends, rows.Err()
}
