package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soundpost/campaigner/internal/audience"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/safety"
	"github.com/soundpost/campaigner/internal/tracking"
)

// scheduleLeadBuffer is the minimum distance in the future a scheduled
// send must be.
const scheduleLeadBuffer = time.Minute

// SendCampaignRequest is the request body for POST /api/v1/campaigns/send.
type SendCampaignRequest struct {
	Name                string          `json:"name"`
	Subject             string          `json:"subject"`
	Preheader           string          `json:"preheader,omitempty"`
	TestEmail           string          `json:"test_email,omitempty"`
	AudienceIDs         []string        `json:"audience_ids"`
	ExcludedAudienceIDs []string        `json:"excluded_audience_ids,omitempty"`
	EmailElements       json.RawMessage `json:"email_elements"`
	ScheduleType        string          `json:"schedule_type"`
	ScheduleDate        string          `json:"schedule_date,omitempty"` // YYYY-MM-DD
	ScheduleTime        string          `json:"schedule_time,omitempty"` // HH:MM
}

// SendStatsPayload is the per-run breakdown in the send response.
type SendStatsPayload struct {
	Total       int     `json:"total"`
	Sent        int     `json:"sent"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// SendCampaignResponse is the response for POST /api/v1/campaigns/send.
type SendCampaignResponse struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	CampaignID string            `json:"campaign_id"`
	Status     string            `json:"status"`
	Stats      *SendStatsPayload `json:"stats,omitempty"`
}

// RefreshDurationsRequest is the request body for
// POST /api/v1/videos/refresh-durations.
type RefreshDurationsRequest struct {
	MaxAgeHours int `json:"max_age_hours,omitempty"`
	Limit       int `json:"limit,omitempty"`
}

// RefreshDurationsResponse reports one refresh run.
type RefreshDurationsResponse struct {
	Message   string `json:"message"`
	Processed int    `json:"processed"`
	Cached    int    `json:"cached"`
	Failed    int    `json:"failed"`
}

// VideoDurationResponse is the response for
// GET /api/v1/videos/{id}/duration.
type VideoDurationResponse struct {
	VideoID         string `json:"video_id"`
	DurationSeconds int    `json:"duration_seconds"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleCampaignSend handles POST /api/v1/campaigns/send.
func (s *Server) handleCampaignSend(w http.ResponseWriter, r *http.Request) {
	var req SendCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Subject == "" {
		s.sendError(w, http.StatusBadRequest, "subject is required")
		return
	}
	if len(req.EmailElements) == 0 || string(req.EmailElements) == "null" {
		s.sendError(w, http.StatusBadRequest, "email_elements is required")
		return
	}
	if req.TestEmail == "" && len(req.AudienceIDs) == 0 {
		s.sendError(w, http.StatusBadRequest, "audience_ids is required")
		return
	}

	campaign, err := s.buildCampaign(&req)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Test email: one preview to a named address, no audience resolution.
	if req.TestEmail != "" {
		if _, err := mail.ParseAddress(req.TestEmail); err != nil {
			s.sendError(w, http.StatusBadRequest, "test_email is not a valid address")
			return
		}
		if err := s.campaigns.Create(campaign); err != nil {
			s.serverError(w, "failed to create campaign", err)
			return
		}
		if err := s.pipeline.SendTest(r.Context(), campaign, req.TestEmail); err != nil {
			s.serverError(w, "test send failed", err)
			return
		}
		s.sendJSON(w, http.StatusOK, SendCampaignResponse{
			Success:    true,
			Message:    fmt.Sprintf("Test email sent to %s", req.TestEmail),
			CampaignID: campaign.ID,
			Status:     campaign.Status,
		})
		return
	}

	switch req.ScheduleType {
	case models.ScheduleDraft:
		if err := s.campaigns.Create(campaign); err != nil {
			s.serverError(w, "failed to create campaign", err)
			return
		}
		s.sendJSON(w, http.StatusOK, SendCampaignResponse{
			Success:    true,
			Message:    "Campaign saved as draft",
			CampaignID: campaign.ID,
			Status:     models.CampaignDraft,
		})

	case models.ScheduleScheduled, models.ScheduleTimezone:
		if err := s.campaigns.Create(campaign); err != nil {
			s.serverError(w, "failed to create campaign", err)
			return
		}
		s.sendJSON(w, http.StatusOK, SendCampaignResponse{
			Success:    true,
			Message:    fmt.Sprintf("Campaign scheduled for %s", campaign.ScheduledAt.Format(time.RFC3339)),
			CampaignID: campaign.ID,
			Status:     models.CampaignScheduled,
		})

	default: // immediate
		if err := s.campaigns.Create(campaign); err != nil {
			s.serverError(w, "failed to create campaign", err)
			return
		}
		stats, err := s.pipeline.Execute(r.Context(), campaign)
		if err != nil {
			s.dispatchError(w, campaign, err)
			return
		}

		status := models.CampaignDraft
		message := "Campaign dispatched but no emails were sent"
		if stats.Sent > 0 {
			status = models.CampaignSent
			message = fmt.Sprintf("Campaign sent to %d of %d recipients", stats.Sent, stats.Total)
		}
		s.sendJSON(w, http.StatusOK, SendCampaignResponse{
			Success:    true,
			Message:    message,
			CampaignID: campaign.ID,
			Status:     status,
			Stats: &SendStatsPayload{
				Total:       stats.Total,
				Sent:        stats.Sent,
				Failed:      stats.Failed,
				SuccessRate: stats.SuccessRate(),
			},
		})
	}
}

// buildCampaign maps the request to a campaign row, resolving the schedule.
func (s *Server) buildCampaign(req *SendCampaignRequest) (*models.Campaign, error) {
	audienceIDs, _ := json.Marshal(req.AudienceIDs)
	excludedIDs, _ := json.Marshal(req.ExcludedAudienceIDs)

	campaign := &models.Campaign{
		Name:         req.Name,
		Subject:      req.Subject,
		Preheader:    req.Preheader,
		SenderName:   s.cfg.Email.FromName,
		SenderEmail:  s.cfg.Email.FromEmail,
		Elements:     string(req.EmailElements),
		AudienceIDs:  string(audienceIDs),
		ExcludedIDs:  string(excludedIDs),
		ScheduleType: req.ScheduleType,
		Status:       models.CampaignDraft,
	}
	if campaign.ScheduleType == "" {
		campaign.ScheduleType = models.ScheduleImmediate
	}

	switch req.ScheduleType {
	case models.ScheduleScheduled, models.ScheduleTimezone:
		if req.ScheduleDate == "" || req.ScheduleTime == "" {
			return nil, errors.New("schedule_date and schedule_time are required for scheduled sends")
		}
		at, err := time.ParseInLocation("2006-01-02 15:04", req.ScheduleDate+" "+req.ScheduleTime, time.Local)
		if err != nil {
			return nil, errors.New("invalid schedule_date or schedule_time")
		}
		if at.Before(time.Now().Add(scheduleLeadBuffer)) {
			return nil, errors.New("scheduled time must be at least 1 minute in the future")
		}
		campaign.ScheduledAt = &at
		campaign.Status = models.CampaignScheduled
	}

	return campaign, nil
}

// dispatchError maps pipeline failures onto the documented status codes:
// configuration errors 400, safety violations 403, everything else a
// generic 500.
func (s *Server) dispatchError(w http.ResponseWriter, campaign *models.Campaign, err error) {
	var violation *safety.ViolationError
	switch {
	case errors.As(err, &violation):
		s.logger.Warn("send blocked by safety gate",
			"campaign_id", campaign.ID,
			"audiences", violation.Audiences,
		)
		s.sendError(w, http.StatusForbidden, violation.Error())
	case errors.Is(err, audience.ErrOverlappingSets),
		errors.Is(err, audience.ErrDynamicUnsupported):
		s.sendError(w, http.StatusBadRequest, err.Error())
	default:
		s.serverError(w, "campaign dispatch failed", err)
	}
}

// trackingPixel is the 1x1 transparent PNG served by the open endpoint.
var trackingPixel = func() []byte {
	var buf bytes.Buffer
	png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1)))
	return buf.Bytes()
}()

// handleTrackOpen handles GET /track/open. The pixel is always served;
// recording problems must never surface to the mail client.
func (s *Server) handleTrackOpen(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaignID, subscriberID, sendID := q.Get("c"), q.Get("u"), q.Get("s")

	if campaignID != "" && subscriberID != "" && sendID != "" {
		err := s.tracker.RecordOpen(tracking.Event{
			CampaignID:   campaignID,
			SubscriberID: subscriberID,
			SendID:       sendID,
			UserAgent:    r.UserAgent(),
			ClientIP:     r.RemoteAddr,
		})
		if err != nil {
			s.logger.Error("failed to record open", "send_id", sendID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Write(trackingPixel)
}

// handleTrackClick handles GET /track/click: record, then redirect.
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	campaignID, subscriberID, sendID := q.Get("c"), q.Get("u"), q.Get("s")
	target := q.Get("url")

	if campaignID != "" && subscriberID != "" && sendID != "" && target != "" {
		err := s.tracker.RecordClick(tracking.Event{
			CampaignID:   campaignID,
			SubscriberID: subscriberID,
			SendID:       sendID,
			URL:          target,
			UserAgent:    r.UserAgent(),
			ClientIP:     r.RemoteAddr,
		})
		if err != nil {
			s.logger.Error("failed to record click", "send_id", sendID, "error", err)
		}
	}

	if target == "" {
		target = s.cfg.Tracking.SiteURL
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleRefreshDurations handles POST /api/v1/videos/refresh-durations.
func (s *Server) handleRefreshDurations(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.sendError(w, http.StatusServiceUnavailable, "duration maintenance is not configured")
		return
	}

	// An empty body means defaults; a malformed one is still an error.
	req := RefreshDurationsRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	maxAge := s.cfg.Durations.MaxAge
	if req.MaxAgeHours > 0 {
		maxAge = time.Duration(req.MaxAgeHours) * time.Hour
	}
	limit := s.cfg.Durations.Limit
	if req.Limit > 0 {
		limit = req.Limit
	}

	result, err := s.refresher.Refresh(r.Context(), maxAge, limit)
	if err != nil {
		s.serverError(w, "duration refresh failed", err)
		return
	}

	s.sendJSON(w, http.StatusOK, RefreshDurationsResponse{
		Message:   fmt.Sprintf("Refreshed %d of %d videos", result.Cached, result.Processed),
		Processed: result.Processed,
		Cached:    result.Cached,
		Failed:    result.Failed,
	})
}

// handleDurationStats handles GET /api/v1/videos/duration-stats.
func (s *Server) handleDurationStats(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.sendError(w, http.StatusServiceUnavailable, "duration maintenance is not configured")
		return
	}

	stats, err := s.refresher.Stats(24 * time.Hour)
	if err != nil {
		s.serverError(w, "failed to read duration stats", err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// handleVideoDuration handles GET /api/v1/videos/{id}/duration. Lookups go
// through the refresher's read path: redis first, the videos table second.
func (s *Server) handleVideoDuration(w http.ResponseWriter, r *http.Request) {
	if s.refresher == nil {
		s.sendError(w, http.StatusServiceUnavailable, "duration maintenance is not configured")
		return
	}

	videoID := chi.URLParam(r, "id")
	seconds, ok, err := s.refresher.Duration(r.Context(), videoID)
	if err != nil {
		s.serverError(w, "failed to look up duration", err)
		return
	}
	if !ok {
		s.sendError(w, http.StatusNotFound, "no cached duration for this video")
		return
	}

	s.sendJSON(w, http.StatusOK, VideoDurationResponse{
		VideoID:         videoID,
		DurationSeconds: seconds,
	})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// sendJSON writes a JSON response.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError writes a JSON error response.
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}

// serverError logs the cause and answers with a generic 500.
func (s *Server) serverError(w http.ResponseWriter, message string, err error) {
	s.logger.Error(message, "error", err)
	s.sendError(w, http.StatusInternalServerError, "Internal server error")
}
