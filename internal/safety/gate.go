// Package safety guards non-production environments against accidental
// mass sends to real users. The guard is two layered: a hard stop when any
// targeted audience is not a designated test audience, and a silent
// allow-list filter over the individually resolved recipients.
package safety

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/soundpost/campaigner/internal/models"
)

// Mode is the execution mode the gate operates under.
type Mode string

const (
	ModeProduction    Mode = "production"
	ModeNonProduction Mode = "nonproduction"
)

// ExecutionContext carries the safety configuration as an explicit value.
// Nothing in this package reads the process environment; callers build one
// from config so the gate is testable in isolation.
type ExecutionContext struct {
	Mode                Mode
	TestAudienceMarkers []string
	AllowedEmails       []string
}

// ViolationError reports an attempt to target non-test audiences outside
// production. It names every offending audience so the operator sees the
// full blast radius, not just the first hit.
type ViolationError struct {
	Audiences []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("cannot send to non-test audiences in non-production mode: %s",
		strings.Join(e.Audiences, ", "))
}

// CheckAudiences verifies that every targeted audience is a test audience
// when running outside production. A test audience is one whose name
// contains any configured marker, compared case-insensitively. In
// production mode the check always passes.
func (c ExecutionContext) CheckAudiences(audiences []models.Audience) error {
	if c.Mode == ModeProduction {
		return nil
	}

	var offending []string
	for _, a := range audiences {
		if !c.isTestAudience(a.Name) {
			offending = append(offending, a.Name)
		}
	}

	if len(offending) > 0 {
		return &ViolationError{Audiences: offending}
	}
	return nil
}

// FilterRecipients drops resolved subscribers whose email is not on the
// allow-list when running outside production. Dropping is silent: the
// subscriber simply does not receive the campaign and is not reported as a
// failure. Production mode returns the input unchanged.
func (c ExecutionContext) FilterRecipients(recipients map[string]models.Subscriber, logger *slog.Logger) map[string]models.Subscriber {
	if c.Mode == ModeProduction {
		return recipients
	}

	filtered := make(map[string]models.Subscriber, len(recipients))
	for id, sub := range recipients {
		if c.isAllowedEmail(sub.Email) {
			filtered[id] = sub
			continue
		}
		if logger != nil {
			logger.Debug("dropping recipient not on allow-list", "email", sub.Email)
		}
	}
	return filtered
}

func (c ExecutionContext) isTestAudience(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range c.TestAudienceMarkers {
		if marker != "" && strings.Contains(lower, strings.ToLower(marker)) {
			return true
		}
	}
	return false
}

func (c ExecutionContext) isAllowedEmail(email string) bool {
	for _, allowed := range c.AllowedEmails {
		if strings.EqualFold(allowed, email) {
			return true
		}
	}
	return false
}
