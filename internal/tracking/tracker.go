package tracking

import (
	"log/slog"

	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/repository"
)

// Event carries the request-side details of one tracking hit.
type Event struct {
	CampaignID   string
	SubscriberID string
	SendID       string
	URL          string // click target, empty for opens
	UserAgent    string
	ClientIP     string
}

// Tracker deduplicates tracking hits against the first-seen store and
// persists one event row per unique hit. Mail clients refetch pixels and
// users click links repeatedly; only the first hit per send (per link, for
// clicks) counts.
type Tracker struct {
	events *repository.EventRepository
	store  *Store
	logger *slog.Logger
}

// NewTracker wires the tracker. A nil logger uses the default.
func NewTracker(events *repository.EventRepository, store *Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		events: events,
		store:  store,
		logger: logger.With("component", "tracking"),
	}
}

// RecordOpen records an open hit. Repeat opens are counted in metrics but
// produce no event row.
func (t *Tracker) RecordOpen(ev Event) error {
	first, err := t.store.FirstOpen(ev.SendID)
	if err != nil {
		return err
	}
	metrics.IncTrackingEvent(models.EventOpen, first)
	if !first {
		return nil
	}

	err = t.events.Create(&models.EmailEvent{
		Kind:         models.EventOpen,
		CampaignID:   ev.CampaignID,
		SubscriberID: ev.SubscriberID,
		SendID:       ev.SendID,
		UserAgent:    ev.UserAgent,
		ClientIP:     ev.ClientIP,
	})
	if err != nil {
		return err
	}

	t.logger.Debug("open recorded",
		"campaign_id", ev.CampaignID,
		"send_id", ev.SendID,
	)
	return nil
}

// RecordClick records a click hit on a specific link.
func (t *Tracker) RecordClick(ev Event) error {
	first, err := t.store.FirstClick(ev.SendID, ev.URL)
	if err != nil {
		return err
	}
	metrics.IncTrackingEvent(models.EventClick, first)
	if !first {
		return nil
	}

	err = t.events.Create(&models.EmailEvent{
		Kind:         models.EventClick,
		CampaignID:   ev.CampaignID,
		SubscriberID: ev.SubscriberID,
		SendID:       ev.SendID,
		URL:          ev.URL,
		UserAgent:    ev.UserAgent,
		ClientIP:     ev.ClientIP,
	})
	if err != nil {
		return err
	}

	t.logger.Debug("click recorded",
		"campaign_id", ev.CampaignID,
		"send_id", ev.SendID,
		"url", ev.URL,
	)
	return nil
}
