// Package audience resolves campaign targeting (included and excluded
// audience ids) into a concrete recipient set.
package audience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/repository"
)

var (
	// ErrDynamicUnsupported is returned when a dynamic audience is targeted
	// and no rule evaluator is configured. Dynamic audiences are rejected
	// explicitly rather than silently resolved to zero recipients.
	ErrDynamicUnsupported = errors.New("dynamic audience targeted but no rule evaluator is configured")

	// ErrOverlappingSets is returned when the same audience id appears in
	// both the include and exclude sets.
	ErrOverlappingSets = errors.New("audience id present in both include and exclude sets")
)

// RuleEvaluator computes the membership of a dynamic audience from its
// filter rules.
type RuleEvaluator interface {
	EvaluateMembership(ctx context.Context, filters string) ([]models.Subscriber, error)
}

// Policy controls which subscriber statuses the resolver drops. Status
// filtering is an explicit decision of the caller, never an implicit rule.
type Policy struct {
	ExcludeStatuses []string
}

// DefaultPolicy drops unsubscribed and bounced recipients, matching what a
// live campaign send wants.
func DefaultPolicy() Policy {
	return Policy{ExcludeStatuses: []string{models.SubscriberUnsubscribed, models.SubscriberBounced}}
}

// Resolver turns audience id sets into a deduplicated recipient map.
type Resolver struct {
	audiences *repository.AudienceRepository
	evaluator RuleEvaluator
	policy    Policy
	logger    *slog.Logger
}

func New(audiences *repository.AudienceRepository, evaluator RuleEvaluator, policy Policy, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		audiences: audiences,
		evaluator: evaluator,
		policy:    policy,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve produces the recipient set for the given include and exclude
// audience id sets, keyed by subscriber id.
//
// Inclusions are merged first (idempotent on id, last write wins on
// metadata), then every member of every excluded audience is removed, so
// evaluation order never matters. Unknown audience ids are skipped with a
// warning. An id present in both sets is a configuration error detected
// before any membership is fetched.
func (r *Resolver) Resolve(ctx context.Context, includeIDs, excludeIDs []string) (map[string]models.Subscriber, error) {
	excluded := make(map[string]bool, len(excludeIDs))
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	for _, id := range includeIDs {
		if excluded[id] {
			return nil, fmt.Errorf("%w: %s", ErrOverlappingSets, id)
		}
	}

	recipients := make(map[string]models.Subscriber)

	for _, id := range includeIDs {
		members, err := r.membership(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, sub := range members {
			if r.dropStatus(sub.Status) {
				continue
			}
			recipients[sub.ID] = sub
		}
	}

	for _, id := range excludeIDs {
		members, err := r.membership(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, sub := range members {
			delete(recipients, sub.ID)
		}
	}

	return recipients, nil
}

// Audiences loads the audience records behind a set of ids, dropping any
// that do not exist. Used by callers that need the records themselves, for
// example the safety gate.
func (r *Resolver) Audiences(ids []string) ([]models.Audience, error) {
	audiences, err := r.audiences.GetByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load audiences: %w", err)
	}
	if len(audiences) < len(ids) {
		found := make(map[string]bool, len(audiences))
		for _, a := range audiences {
			found[a.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				r.logger.Warn("audience not found, skipping", "audience_id", id)
			}
		}
	}
	return audiences, nil
}

// membership computes one audience's member list. A missing audience is
// non-fatal: it resolves to no members with a warning.
func (r *Resolver) membership(ctx context.Context, id string) ([]models.Subscriber, error) {
	aud, err := r.audiences.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to load audience %s: %w", id, err)
	}
	if aud == nil {
		r.logger.Warn("audience not found, skipping", "audience_id", id)
		return nil, nil
	}

	switch aud.Kind {
	case models.AudienceStatic:
		members, err := r.audiences.ListMembers(id)
		if err != nil {
			return nil, fmt.Errorf("failed to load members of audience %s: %w", id, err)
		}
		return members, nil
	case models.AudienceDynamic:
		if r.evaluator == nil {
			return nil, fmt.Errorf("%w: %q", ErrDynamicUnsupported, aud.Name)
		}
		members, err := r.evaluator.EvaluateMembership(ctx, aud.Filters)
		if err != nil {
			return nil, fmt.Errorf("rule evaluation failed for audience %s: %w", id, err)
		}
		return members, nil
	default:
		r.logger.Warn("audience has unknown kind, skipping", "audience_id", id, "kind", aud.Kind)
		return nil, nil
	}
}

func (r *Resolver) dropStatus(status string) bool {
	for _, s := range r.policy.ExcludeStatuses {
		if strings.EqualFold(s, status) {
			return true
		}
	}
	return false
}
