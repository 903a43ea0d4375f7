package repository

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/soundpost/campaigner/internal/db"
	"github.com/soundpost/campaigner/internal/models"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	for _, m := range db.Migrations {
		if _, err := conn.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}
	return conn
}

func TestAudienceCRUD(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewAudienceRepository(conn)

	a := &models.Audience{Name: "Newsletter"}
	if err := repo.Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if a.ID == "" {
		t.Fatal("Create() should assign an id")
	}
	if a.Kind != models.AudienceStatic {
		t.Errorf("default kind = %q, want static", a.Kind)
	}

	got, err := repo.GetByID(a.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got == nil || got.Name != "Newsletter" {
		t.Errorf("GetByID() = %+v", got)
	}

	missing, err := repo.GetByID("no-such-id")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if missing != nil {
		t.Error("GetByID() of a missing row should return nil, nil")
	}
}

func TestAudienceGetByIDs(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewAudienceRepository(conn)

	a := &models.Audience{Name: "A"}
	b := &models.Audience{Name: "B"}
	for _, aud := range []*models.Audience{a, b} {
		if err := repo.Create(aud); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.GetByIDs([]string{a.ID, b.ID, "no-such-id"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetByIDs() returned %d audiences, want 2", len(got))
	}

	empty, err := repo.GetByIDs(nil)
	if err != nil || empty != nil {
		t.Errorf("GetByIDs(nil) = %v, %v", empty, err)
	}
}

func TestAudienceMembership(t *testing.T) {
	conn := setupTestDB(t)
	audiences := NewAudienceRepository(conn)
	subscribers := NewSubscriberRepository(conn)

	a := &models.Audience{Name: "A"}
	if err := audiences.Create(a); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	s := &models.Subscriber{Email: "a@example.com"}
	if err := subscribers.Create(s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := audiences.AddMember(a.ID, s.ID); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	// Re-adding the same pair must not fail.
	if err := audiences.AddMember(a.ID, s.ID); err != nil {
		t.Fatalf("AddMember() twice error = %v", err)
	}

	members, err := audiences.ListMembers(a.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 1 || members[0].Email != "a@example.com" {
		t.Errorf("ListMembers() = %+v", members)
	}

	if err := audiences.RemoveMember(a.ID, s.ID); err != nil {
		t.Fatalf("RemoveMember() error = %v", err)
	}
	members, err = audiences.ListMembers(a.ID)
	if err != nil {
		t.Fatalf("ListMembers() error = %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected no members after removal, got %d", len(members))
	}
}

func TestSubscriberCreateAndLookup(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewSubscriberRepository(conn)

	s := &models.Subscriber{Email: "dana@example.com", Metadata: `{"first_name":"Dana"}`}
	if err := repo.Create(s); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Status != models.SubscriberActive {
		t.Errorf("default status = %q, want active", s.Status)
	}

	got, err := repo.GetByEmail("dana@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() error = %v", err)
	}
	if got == nil || got.ID != s.ID || got.Metadata != `{"first_name":"Dana"}` {
		t.Errorf("GetByEmail() = %+v", got)
	}

	dup := &models.Subscriber{Email: "dana@example.com"}
	if err := repo.Create(dup); err == nil {
		t.Error("duplicate email should violate the unique constraint")
	}
}

func TestCampaignLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewCampaignRepository(conn)

	c := &models.Campaign{
		Name:         "Launch",
		Subject:      "We launched",
		SenderEmail:  "hello@soundpost.io",
		Elements:     `[{"type":"text","content":"hi"}]`,
		AudienceIDs:  `["aud-1"]`,
		ScheduleType: models.ScheduleImmediate,
	}
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if c.Status != models.CampaignDraft {
		t.Errorf("default status = %q, want draft", c.Status)
	}

	got, err := repo.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.AudienceIDs != `["aud-1"]` || got.Elements != c.Elements {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.SentAt != nil {
		t.Error("SentAt should be nil before dispatch")
	}

	if err := repo.UpdateStatus(c.ID, models.CampaignSending); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	if err := repo.FinishDispatch(c.ID, 3, 4); err != nil {
		t.Fatalf("FinishDispatch() error = %v", err)
	}
	got, err = repo.GetByID(c.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != models.CampaignSent || got.EmailsSent != 3 || got.TotalRecipients != 4 {
		t.Errorf("after FinishDispatch: %+v", got)
	}
	if got.SentAt == nil {
		t.Error("SentAt should be set after a successful dispatch")
	}
}

func TestCampaignFinishDispatchAllFailed(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewCampaignRepository(conn)

	c := &models.Campaign{Name: "n", Subject: "s", SenderEmail: "e@x.io"}
	if err := repo.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := repo.FinishDispatch(c.ID, 0, 5); err != nil {
		t.Fatalf("FinishDispatch() error = %v", err)
	}
	got, _ := repo.GetByID(c.ID)
	if got.Status != models.CampaignDraft {
		t.Errorf("status = %q, want draft when nothing was sent", got.Status)
	}
	if got.SentAt != nil {
		t.Error("SentAt must stay nil when nothing was sent")
	}
}

func TestCampaignGetScheduledDue(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewCampaignRepository(conn)

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	due := &models.Campaign{Name: "due", Subject: "s", SenderEmail: "e@x.io",
		ScheduleType: models.ScheduleScheduled, ScheduledAt: &past, Status: models.CampaignScheduled}
	notYet := &models.Campaign{Name: "later", Subject: "s", SenderEmail: "e@x.io",
		ScheduleType: models.ScheduleScheduled, ScheduledAt: &future, Status: models.CampaignScheduled}
	drafted := &models.Campaign{Name: "draft", Subject: "s", SenderEmail: "e@x.io",
		ScheduleType: models.ScheduleScheduled, ScheduledAt: &past}

	for _, c := range []*models.Campaign{due, notYet, drafted} {
		if err := repo.Create(c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	got, err := repo.GetScheduledDue(time.Now())
	if err != nil {
		t.Fatalf("GetScheduledDue() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != due.ID {
		t.Errorf("GetScheduledDue() = %+v, want only %s", got, due.ID)
	}
}

func TestSendLifecycle(t *testing.T) {
	conn := setupTestDB(t)
	campaigns := NewCampaignRepository(conn)
	sends := NewSendRepository(conn)

	c := &models.Campaign{Name: "n", Subject: "s", SenderEmail: "e@x.io"}
	if err := campaigns.Create(c); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	ok := &models.Send{CampaignID: c.ID, SubscriberID: "sub-1", Email: "a@example.com"}
	bad := &models.Send{CampaignID: c.ID, SubscriberID: "sub-2", Email: "b@example.com"}
	for _, s := range []*models.Send{ok, bad} {
		if err := sends.Create(s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if s.Status != models.SendPending {
			t.Errorf("new send status = %q, want pending", s.Status)
		}
	}

	if err := sends.MarkSent(ok.ID, "<msg-1@soundpost.io>"); err != nil {
		t.Fatalf("MarkSent() error = %v", err)
	}
	if err := sends.MarkFailed(bad.ID, "mailbox full"); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	sent, err := sends.GetByID(ok.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if sent.Status != models.SendSent || sent.MessageID != "<msg-1@soundpost.io>" || sent.SentAt == nil {
		t.Errorf("sent send = %+v", sent)
	}

	failed, err := sends.GetByID(bad.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if failed.Status != models.SendFailed || failed.ErrorMessage != "mailbox full" {
		t.Errorf("failed send = %+v", failed)
	}
	if failed.SentAt != nil {
		t.Error("failed send must not get a sent_at")
	}

	stats, err := sends.GetStats(c.ID)
	if err != nil {
		t.Fatalf("GetStats() error = %v", err)
	}
	if stats.Total != 2 || stats.Sent != 1 || stats.Failed != 1 || stats.Pending != 0 {
		t.Errorf("GetStats() = %+v", stats)
	}

	list, err := sends.ListByCampaign(c.ID)
	if err != nil {
		t.Fatalf("ListByCampaign() error = %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListByCampaign() returned %d sends, want 2", len(list))
	}
}

func TestEventCreateAndCount(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewEventRepository(conn)

	for i := 0; i < 3; i++ {
		e := &models.EmailEvent{Kind: models.EventOpen, CampaignID: "c1", SubscriberID: "u1", SendID: "s1"}
		if err := repo.Create(e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if e.ID == 0 {
			t.Error("Create() should backfill the autoincrement id")
		}
	}
	click := &models.EmailEvent{Kind: models.EventClick, CampaignID: "c1", SubscriberID: "u1",
		SendID: "s1", URL: "https://soundpost.io/v/1"}
	if err := repo.Create(click); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	opens, err := repo.CountByCampaign("c1", models.EventOpen)
	if err != nil {
		t.Fatalf("CountByCampaign() error = %v", err)
	}
	if opens != 3 {
		t.Errorf("open count = %d, want 3", opens)
	}
	clicks, _ := repo.CountByCampaign("c1", models.EventClick)
	if clicks != 1 {
		t.Errorf("click count = %d, want 1", clicks)
	}
}

func TestVideoRefreshQueries(t *testing.T) {
	conn := setupTestDB(t)
	repo := NewVideoRepository(conn)

	fresh := &models.Video{ProviderVideoID: "vid-fresh", Title: "Fresh"}
	stale := &models.Video{ProviderVideoID: "vid-stale", Title: "Stale"}
	never := &models.Video{ProviderVideoID: "vid-never", Title: "Never"}
	for _, v := range []*models.Video{fresh, stale, never} {
		if err := repo.Create(v); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	if err := repo.UpdateDuration(fresh.ID, 212); err != nil {
		t.Fatalf("UpdateDuration() error = %v", err)
	}
	// Backdate the stale video past the refresh window.
	if err := repo.UpdateDuration(stale.ID, 100); err != nil {
		t.Fatalf("UpdateDuration() error = %v", err)
	}
	old := time.Now().Add(-48 * time.Hour)
	if _, err := conn.Exec(`UPDATE videos SET duration_updated_at = ? WHERE id = ?`, old, stale.ID); err != nil {
		t.Fatalf("failed to backdate: %v", err)
	}

	need, err := repo.ListNeedingRefresh(24*time.Hour, 50)
	if err != nil {
		t.Fatalf("ListNeedingRefresh() error = %v", err)
	}
	ids := make(map[string]bool, len(need))
	for _, v := range need {
		ids[v.ID] = true
	}
	if len(need) != 2 || !ids[stale.ID] || !ids[never.ID] {
		t.Errorf("ListNeedingRefresh() = %+v, want stale and never-cached", need)
	}

	limited, err := repo.ListNeedingRefresh(24*time.Hour, 1)
	if err != nil {
		t.Fatalf("ListNeedingRefresh() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d rows", len(limited))
	}

	stats, err := repo.CacheStats(24 * time.Hour)
	if err != nil {
		t.Fatalf("CacheStats() error = %v", err)
	}
	if stats.Total != 3 || stats.Cached != 2 || stats.NotCached != 1 || stats.RecentlyUpdated != 1 {
		t.Errorf("CacheStats() = %+v", stats)
	}
}
