package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/soundpost/campaigner/internal/models"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts an email event row
func (r *EventRepository) Create(e *models.EmailEvent) error {
	e.CreatedAt = time.Now()

	res, err := r.db.Exec(`
		INSERT INTO email_events (kind, campaign_id, subscriber_id, send_id, url, user_agent, client_ip, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, e.CampaignID, e.SubscriberID, e.SendID, nullString(e.URL),
		nullString(e.UserAgent), nullString(e.ClientIP), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// CountByCampaign returns the number of events of one kind recorded for a
// campaign.
func (r *EventRepository) CountByCampaign(campaignID, kind string) (int, error) {
	var n int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM email_events WHERE campaign_id = ? AND kind = ?`,
		campaignID, kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
