package safety

import (
	"errors"
	"strings"
	"testing"

	"github.com/soundpost/campaigner/internal/models"
)

func TestCheckAudiencesProduction(t *testing.T) {
	ec := ExecutionContext{Mode: ModeProduction}
	audiences := []models.Audience{
		{Name: "All Members"},
		{Name: "Newsletter"},
	}
	if err := ec.CheckAudiences(audiences); err != nil {
		t.Errorf("production mode must never block, got %v", err)
	}
}

func TestCheckAudiencesNonProduction(t *testing.T) {
	ec := ExecutionContext{
		Mode:                ModeNonProduction,
		TestAudienceMarkers: []string{"test", "qa"},
	}

	tests := []struct {
		name      string
		audiences []string
		wantErr   bool
	}{
		{"all test audiences", []string{"Test Squad", "QA Crew"}, false},
		{"marker is case-insensitive", []string{"INTERNAL TEST LIST"}, false},
		{"marker matches as substring", []string{"pre-test-cohort"}, false},
		{"one real audience", []string{"Test Squad", "All Members"}, true},
		{"all real audiences", []string{"All Members", "Newsletter"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audiences := make([]models.Audience, len(tt.audiences))
			for i, n := range tt.audiences {
				audiences[i] = models.Audience{Name: n}
			}
			err := ec.CheckAudiences(audiences)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckAudiences() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestViolationErrorNamesAllOffenders(t *testing.T) {
	ec := ExecutionContext{
		Mode:                ModeNonProduction,
		TestAudienceMarkers: []string{"test"},
	}
	err := ec.CheckAudiences([]models.Audience{
		{Name: "All Members"},
		{Name: "Test List"},
		{Name: "Newsletter"},
	})
	if err == nil {
		t.Fatal("expected a violation")
	}

	var verr *ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ViolationError, got %T", err)
	}
	if len(verr.Audiences) != 2 {
		t.Errorf("expected 2 offending audiences, got %v", verr.Audiences)
	}
	for _, name := range []string{"All Members", "Newsletter"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error message should name %q: %s", name, err)
		}
	}
	if strings.Contains(err.Error(), "Test List") {
		t.Errorf("error message should not name the test audience: %s", err)
	}
}

func TestCheckAudiencesEmptyMarkers(t *testing.T) {
	ec := ExecutionContext{Mode: ModeNonProduction, TestAudienceMarkers: []string{""}}
	err := ec.CheckAudiences([]models.Audience{{Name: "test list"}})
	if err == nil {
		t.Error("an empty marker must not match every audience")
	}
}

func TestFilterRecipients(t *testing.T) {
	ec := ExecutionContext{
		Mode:          ModeNonProduction,
		AllowedEmails: []string{"dev@soundpost.io", "QA@soundpost.io"},
	}
	recipients := map[string]models.Subscriber{
		"1": {ID: "1", Email: "dev@soundpost.io"},
		"2": {ID: "2", Email: "member@example.com"},
		"3": {ID: "3", Email: "qa@soundpost.io"}, // case-insensitive match
	}

	filtered := ec.FilterRecipients(recipients, nil)

	if len(filtered) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(filtered))
	}
	if _, ok := filtered["2"]; ok {
		t.Error("member@example.com should have been dropped")
	}
	if _, ok := filtered["3"]; !ok {
		t.Error("allow-list comparison should be case-insensitive")
	}
}

func TestFilterRecipientsProductionPassthrough(t *testing.T) {
	ec := ExecutionContext{Mode: ModeProduction}
	recipients := map[string]models.Subscriber{
		"1": {ID: "1", Email: "member@example.com"},
	}
	filtered := ec.FilterRecipients(recipients, nil)
	if len(filtered) != 1 {
		t.Error("production mode must not filter recipients")
	}
}
