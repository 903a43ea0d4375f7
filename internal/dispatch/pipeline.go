package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/soundpost/campaigner/internal/audience"
	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/safety"
)

// Pipeline is the full campaign send path: load the targeted audiences,
// run the safety gate, resolve the recipient set, filter it through the
// allow-list, and hand the survivors to the dispatcher.
type Pipeline struct {
	resolver   *audience.Resolver
	execCtx    safety.ExecutionContext
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewPipeline wires the send path.
func NewPipeline(resolver *audience.Resolver, execCtx safety.ExecutionContext, dispatcher *Dispatcher, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver:   resolver,
		execCtx:    execCtx,
		dispatcher: dispatcher,
		logger:     logger.With("component", "pipeline"),
	}
}

// Execute runs the campaign against its stored audience targeting. The
// safety gate runs before any membership is resolved; a violation means
// nothing was sent and no send rows exist.
func (p *Pipeline) Execute(ctx context.Context, campaign *models.Campaign) (*Stats, error) {
	includeIDs, err := decodeIDs(campaign.AudienceIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse audience ids: %w", err)
	}
	excludeIDs, err := decodeIDs(campaign.ExcludedIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse excluded audience ids: %w", err)
	}

	audiences, err := p.resolver.Audiences(includeIDs)
	if err != nil {
		return nil, err
	}
	if err := p.execCtx.CheckAudiences(audiences); err != nil {
		metrics.IncSafetyBlocked()
		return nil, err
	}

	recipients, err := p.resolver.Resolve(ctx, includeIDs, excludeIDs)
	if err != nil {
		return nil, err
	}

	filtered := p.execCtx.FilterRecipients(recipients, p.logger)
	if dropped := len(recipients) - len(filtered); dropped > 0 {
		metrics.IncRecipientsDropped("allowlist", dropped)
		p.logger.Info("recipients filtered by allow-list",
			"campaign_id", campaign.ID,
			"dropped", dropped,
			"remaining", len(filtered),
		)
	}

	return p.dispatcher.Run(ctx, campaign, filtered)
}

// SendTest forwards a single-address preview through the dispatcher. The
// safety gate does not apply: the operator named the recipient explicitly.
func (p *Pipeline) SendTest(ctx context.Context, campaign *models.Campaign, email string) error {
	return p.dispatcher.SendTest(ctx, campaign, email)
}

func decodeIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
