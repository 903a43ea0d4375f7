package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/models"
)

type AudienceRepository struct {
	db *sql.DB
}

func NewAudienceRepository(db *sql.DB) *AudienceRepository {
	return &AudienceRepository{db: db}
}

// Create creates a new audience
func (r *AudienceRepository) Create(a *models.Audience) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Kind == "" {
		a.Kind = models.AudienceStatic
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt

	_, err := r.db.Exec(`
		INSERT INTO audiences (id, name, kind, filters, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, a.Kind, nullString(a.Filters), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audience: %w", err)
	}
	return nil
}

// GetByID returns an audience by ID, or nil when it does not exist
func (r *AudienceRepository) GetByID(id string) (*models.Audience, error) {
	a := &models.Audience{}
	var filters sql.NullString

	err := r.db.QueryRow(`
		SELECT id, name, kind, filters, created_at, updated_at
		FROM audiences WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Kind, &filters, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.Filters = filters.String
	return a, nil
}

// GetByIDs returns all audiences matching the given ids. Missing ids are
// simply absent from the result.
func (r *AudienceRepository) GetByIDs(ids []string) ([]models.Audience, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := "SELECT id, name, kind, filters, created_at, updated_at FROM audiences WHERE id IN (?" +
		repeatPlaceholder(len(ids)-1) + ")"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	audiences := []models.Audience{}
	for rows.Next() {
		var a models.Audience
		var filters sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.Kind, &filters, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Filters = filters.String
		audiences = append(audiences, a)
	}
	return audiences, rows.Err()
}

// ListMembers returns the subscribers explicitly attached to a static
// audience through the junction table.
func (r *AudienceRepository) ListMembers(audienceID string) ([]models.Subscriber, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.email, s.status, s.metadata, s.created_at
		FROM audience_subscribers m
		JOIN subscribers s ON s.id = m.subscriber_id
		WHERE m.audience_id = ?`, audienceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	subscribers := []models.Subscriber{}
	for rows.Next() {
		var s models.Subscriber
		var metadata sql.NullString
		if err := rows.Scan(&s.ID, &s.Email, &s.Status, &metadata, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Metadata = metadata.String
		subscribers = append(subscribers, s)
	}
	return subscribers, rows.Err()
}

// AddMember attaches a subscriber to a static audience. Adding the same
// pair twice is a no-op.
func (r *AudienceRepository) AddMember(audienceID, subscriberID string) error {
	_, err := r.db.Exec(`
		INSERT OR IGNORE INTO audience_subscribers (audience_id, subscriber_id, created_at)
		VALUES (?, ?, ?)`,
		audienceID, subscriberID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember detaches a subscriber from a static audience.
func (r *AudienceRepository) RemoveMember(audienceID, subscriberID string) error {
	_, err := r.db.Exec(`
		DELETE FROM audience_subscribers WHERE audience_id = ? AND subscriber_id = ?`,
		audienceID, subscriberID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

func repeatPlaceholder(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}
