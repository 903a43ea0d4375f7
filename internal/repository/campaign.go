package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/models"
)

type CampaignRepository struct {
	db *sql.DB
}

func NewCampaignRepository(db *sql.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create creates a new campaign
func (r *CampaignRepository) Create(c *models.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.CampaignDraft
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO campaigns (id, name, subject, preheader, sender_name, sender_email,
			elements, audience_ids, excluded_audience_ids, schedule_type, scheduled_at,
			status, total_recipients, emails_sent, sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.Subject, nullString(c.Preheader), nullString(c.SenderName), c.SenderEmail,
		nullString(c.Elements), nullString(c.AudienceIDs), nullString(c.ExcludedIDs),
		c.ScheduleType, c.ScheduledAt, c.Status, c.TotalRecipients,
		c.EmailsSent, c.SentAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

// GetByID returns a campaign by ID, or nil when it does not exist
func (r *CampaignRepository) GetByID(id string) (*models.Campaign, error) {
	c := &models.Campaign{}
	var preheader, senderName, elements, audienceIDs, excludedIDs sql.NullString
	var scheduledAt, sentAt sql.NullTime

	err := r.db.QueryRow(`
		SELECT id, name, subject, preheader, sender_name, sender_email, elements,
			audience_ids, excluded_audience_ids, schedule_type, scheduled_at, status,
			total_recipients, emails_sent, sent_at, created_at, updated_at
		FROM campaigns WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.Subject, &preheader, &senderName, &c.SenderEmail, &elements,
		&audienceIDs, &excludedIDs, &c.ScheduleType, &scheduledAt, &c.Status,
		&c.TotalRecipients, &c.EmailsSent, &sentAt, &c.CreatedAt, &c.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.Preheader = preheader.String
	c.SenderName = senderName.String
	c.Elements = elements.String
	c.AudienceIDs = audienceIDs.String
	c.ExcludedIDs = excludedIDs.String
	if scheduledAt.Valid {
		c.ScheduledAt = &scheduledAt.Time
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	return c, nil
}

// UpdateStatus sets a campaign's lifecycle status
func (r *CampaignRepository) UpdateStatus(id, status string) error {
	_, err := r.db.Exec(`
		UPDATE campaigns SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}
	return nil
}

// FinishDispatch records the aggregate outcome of a dispatch run: the
// counters, the terminal status, and sent_at when at least one email went
// out.
func (r *CampaignRepository) FinishDispatch(id string, sent, total int) error {
	status := models.CampaignDraft
	var sentAt *time.Time
	if sent > 0 {
		status = models.CampaignSent
		now := time.Now()
		sentAt = &now
	}

	_, err := r.db.Exec(`
		UPDATE campaigns
		SET emails_sent = ?, total_recipients = ?, status = ?, sent_at = ?, updated_at = ?
		WHERE id = ?`,
		sent, total, status, sentAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish dispatch: %w", err)
	}
	return nil
}

// GetScheduledDue returns scheduled campaigns whose scheduled_at has
// passed, oldest first.
func (r *CampaignRepository) GetScheduledDue(now time.Time) ([]models.Campaign, error) {
	rows, err := r.db.Query(`
		SELECT id, name, subject, preheader, sender_name, sender_email, elements,
			audience_ids, excluded_audience_ids, schedule_type, scheduled_at, status,
			total_recipients, emails_sent, sent_at, created_at, updated_at
		FROM campaigns
		WHERE status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?
		ORDER BY scheduled_at ASC`,
		models.CampaignScheduled, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get due campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		var preheader, senderName, elements, audienceIDs, excludedIDs sql.NullString
		var scheduledAt, sentAt sql.NullTime

		err := rows.Scan(&c.ID, &c.Name, &c.Subject, &preheader, &senderName, &c.SenderEmail,
			&elements, &audienceIDs, &excludedIDs, &c.ScheduleType, &scheduledAt, &c.Status,
			&c.TotalRecipients, &c.EmailsSent, &sentAt, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}

		c.Preheader = preheader.String
		c.SenderName = senderName.String
		c.Elements = elements.String
		c.AudienceIDs = audienceIDs.String
		c.ExcludedIDs = excludedIDs.String
		if scheduledAt.Valid {
			c.ScheduledAt = &scheduledAt.Time
		}
		if sentAt.Valid {
			c.SentAt = &sentAt.Time
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}
