// Package dispatch runs the per-recipient send loop for a campaign.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/soundpost/campaigner/internal/mailer"
	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/render"
	"github.com/soundpost/campaigner/internal/repository"
)

// DefaultSendDelay is the pause between consecutive transport calls.
const DefaultSendDelay = 100 * time.Millisecond

// Stats summarizes one dispatch run.
type Stats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// SuccessRate returns the sent fraction in percent. Zero recipients yields
// zero.
func (s Stats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Sent) / float64(s.Total) * 100
}

// Dispatcher walks a campaign's recipient set sequentially: one pending
// send row per recipient, then the transport call, then the terminal state.
// A failed recipient never aborts the run.
type Dispatcher struct {
	sends     *repository.SendRepository
	campaigns *repository.CampaignRepository
	renderer  *render.Renderer
	person    *render.Personalizer
	transport mailer.Transport
	delay     time.Duration
	logger    *slog.Logger
}

// New creates a dispatcher. A zero delay uses DefaultSendDelay.
func New(
	sends *repository.SendRepository,
	campaigns *repository.CampaignRepository,
	renderer *render.Renderer,
	person *render.Personalizer,
	transport mailer.Transport,
	delay time.Duration,
	logger *slog.Logger,
) *Dispatcher {
	if delay == 0 {
		delay = DefaultSendDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sends:     sends,
		campaigns: campaigns,
		renderer:  renderer,
		person:    person,
		transport: transport,
		delay:     delay,
		logger:    logger.With("component", "dispatch"),
	}
}

// Run dispatches the campaign to every recipient and records the aggregate
// outcome on the campaign row. The error return covers setup problems
// only; per-recipient failures are reported through Stats.
func (d *Dispatcher) Run(ctx context.Context, campaign *models.Campaign, recipients map[string]models.Subscriber) (*Stats, error) {
	start := time.Now()

	var blocks []render.Block
	if err := json.Unmarshal([]byte(campaign.Elements), &blocks); err != nil {
		return nil, fmt.Errorf("failed to parse campaign content: %w", err)
	}

	if err := d.campaigns.UpdateStatus(campaign.ID, models.CampaignSending); err != nil {
		return nil, fmt.Errorf("failed to mark campaign sending: %w", err)
	}

	// Stable send order keeps runs reproducible and logs readable.
	subs := make([]models.Subscriber, 0, len(recipients))
	for _, sub := range recipients {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Email < subs[j].Email })

	// A started run always completes over its resolved recipient set. The
	// caller going away (client disconnect, scheduler shutdown) must not
	// strand recipients between the recorded totals and the send rows.
	runCtx := context.WithoutCancel(ctx)

	stats := &Stats{Total: len(subs)}

	for i, sub := range subs {
		d.sendOne(runCtx, campaign, blocks, sub, stats)

		if i < len(subs)-1 {
			time.Sleep(d.delay)
		}
	}

	if err := d.campaigns.FinishDispatch(campaign.ID, stats.Sent, stats.Total); err != nil {
		return stats, fmt.Errorf("failed to record dispatch outcome: %w", err)
	}

	outcome := models.CampaignDraft
	if stats.Sent > 0 {
		outcome = models.CampaignSent
	}
	metrics.IncCampaigns(outcome)
	metrics.ObserveDispatchDuration(outcome, time.Since(start).Seconds())

	d.logger.Info("campaign dispatched",
		"campaign_id", campaign.ID,
		"total", stats.Total,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"success_rate", fmt.Sprintf("%.1f%%", stats.SuccessRate()),
	)

	return stats, nil
}

// sendOne creates the pending send row, renders the recipient's message,
// and records the transport outcome.
func (d *Dispatcher) sendOne(ctx context.Context, campaign *models.Campaign, blocks []render.Block, sub models.Subscriber, stats *Stats) {
	send := &models.Send{
		ID:           uuid.New().String(),
		CampaignID:   campaign.ID,
		SubscriberID: sub.ID,
		Email:        sub.Email,
		Status:       models.SendPending,
	}
	if err := d.sends.Create(send); err != nil {
		d.logger.Error("failed to create send record",
			"campaign_id", campaign.ID,
			"subscriber_id", sub.ID,
			"error", err,
		)
		stats.Failed++
		return
	}

	tracking := &render.Tracking{
		CampaignID:   campaign.ID,
		SubscriberID: sub.ID,
		SendID:       send.ID,
	}

	html := d.person.Personalize(d.renderer.HTML(blocks, campaign.Subject, campaign.Preheader, tracking), sub)
	text := d.person.Personalize(d.renderer.Text(blocks), sub)
	subject := d.person.Personalize(campaign.Subject, sub)

	msg := &mailer.Message{
		From:     campaign.SenderEmail,
		FromName: campaign.SenderName,
		To:       sub.Email,
		Subject:  subject,
		HTML:     html,
		Text:     text,
	}

	result, err := d.transport.Send(ctx, msg)
	if err != nil {
		if mErr := d.sends.MarkFailed(send.ID, err.Error()); mErr != nil {
			d.logger.Error("failed to mark send failed", "send_id", send.ID, "error", mErr)
		}
		metrics.IncEmailsFailed(campaign.ID)
		stats.Failed++
		d.logger.Warn("send failed",
			"campaign_id", campaign.ID,
			"email", sub.Email,
			"error", err,
		)
		return
	}

	if err := d.sends.MarkSent(send.ID, result.MessageID); err != nil {
		d.logger.Error("failed to mark send sent", "send_id", send.ID, "error", err)
	}
	metrics.IncEmailsSent(campaign.ID)
	stats.Sent++
}

// SendTest delivers a single untracked preview of the campaign to one
// address. No send rows are created and campaign counters are untouched.
func (d *Dispatcher) SendTest(ctx context.Context, campaign *models.Campaign, email string) error {
	var blocks []render.Block
	if err := json.Unmarshal([]byte(campaign.Elements), &blocks); err != nil {
		return fmt.Errorf("failed to parse campaign content: %w", err)
	}

	// Personalize against a synthetic recipient so tokens still resolve.
	sub := models.Subscriber{Email: email}

	msg := &mailer.Message{
		From:     campaign.SenderEmail,
		FromName: campaign.SenderName,
		To:       email,
		Subject:  "[TEST] " + d.person.Personalize(campaign.Subject, sub),
		HTML:     d.person.Personalize(d.renderer.HTML(blocks, campaign.Subject, campaign.Preheader, nil), sub),
		Text:     d.person.Personalize(d.renderer.Text(blocks), sub),
	}

	if _, err := d.transport.Send(ctx, msg); err != nil {
		return fmt.Errorf("test send failed: %w", err)
	}

	d.logger.Info("test email sent", "campaign_id", campaign.ID, "email", email)
	return nil
}
