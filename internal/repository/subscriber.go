package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/models"
)

type SubscriberRepository struct {
	db *sql.DB
}

func NewSubscriberRepository(db *sql.DB) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

// Create creates a new subscriber
func (r *SubscriberRepository) Create(s *models.Subscriber) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Status == "" {
		s.Status = models.SubscriberActive
	}
	s.CreatedAt = time.Now()

	_, err := r.db.Exec(`
		INSERT INTO subscribers (id, email, status, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.Email, s.Status, nullString(s.Metadata), s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	return nil
}

// GetByID returns a subscriber by ID, or nil when it does not exist
func (r *SubscriberRepository) GetByID(id string) (*models.Subscriber, error) {
	s := &models.Subscriber{}
	var metadata sql.NullString

	err := r.db.QueryRow(`
		SELECT id, email, status, metadata, created_at
		FROM subscribers WHERE id = ?`, id,
	).Scan(&s.ID, &s.Email, &s.Status, &metadata, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Metadata = metadata.String
	return s, nil
}

// GetByEmail returns a subscriber by email address, or nil when it does
// not exist
func (r *SubscriberRepository) GetByEmail(email string) (*models.Subscriber, error) {
	s := &models.Subscriber{}
	var metadata sql.NullString

	err := r.db.QueryRow(`
		SELECT id, email, status, metadata, created_at
		FROM subscribers WHERE email = ?`, email,
	).Scan(&s.ID, &s.Email, &s.Status, &metadata, &s.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.Metadata = metadata.String
	return s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
