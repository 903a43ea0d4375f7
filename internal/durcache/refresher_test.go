package durcache

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/mattn/go-sqlite3"
	"github.com/redis/go-redis/v9"

	"github.com/soundpost/campaigner/internal/db"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/repository"
)

func setupVideos(t *testing.T) *repository.VideoRepository {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	for _, m := range db.Migrations {
		if _, err := conn.Exec(m); err != nil {
			t.Fatalf("migration failed: %v", err)
		}
	}
	return repository.NewVideoRepository(conn)
}

func seedVideo(t *testing.T, videos *repository.VideoRepository, providerID string) *models.Video {
	t.Helper()
	v := &models.Video{ProviderVideoID: providerID, Title: "Lesson " + providerID}
	if err := videos.Create(v); err != nil {
		t.Fatal(err)
	}
	return v
}

func TestRefreshScrapesLengthSeconds(t *testing.T) {
	videos := setupVideos(t)
	v := seedVideo(t, videos, "abc123")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("missing browser user agent, got %q", ua)
		}
		fmt.Fprint(w, `<html>{"videoDetails":{"lengthSeconds":"245"}}</html>`)
	}))
	defer srv.Close()

	r := NewRefresher(videos, nil, srv.URL+"/watch?v=", nil)
	r.SetBatching(5, 0)

	result, err := r.Refresh(context.Background(), time.Hour, 50)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Processed != 1 || result.Cached != 1 || result.Failed != 0 {
		t.Errorf("result = %+v", result)
	}

	stale, err := videos.ListNeedingRefresh(time.Hour, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Errorf("%d videos still stale after refresh", len(stale))
	}

	stats, err := videos.CacheStats(time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Cached != 1 {
		t.Errorf("cached = %d, want 1", stats.Cached)
	}
	_ = v
}

func TestRefreshFallsBackToApproxDuration(t *testing.T) {
	videos := setupVideos(t)
	seedVideo(t, videos, "xyz")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"approxDurationMs":"185500"}`)
	}))
	defer srv.Close()

	r := NewRefresher(videos, nil, srv.URL+"/watch?v=", nil)
	r.SetBatching(5, 0)

	seconds, err := r.scrape(context.Background(), "xyz")
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if seconds != 185 {
		t.Errorf("seconds = %d, want 185", seconds)
	}
}

func TestRefreshCountsFailures(t *testing.T) {
	videos := setupVideos(t)
	seedVideo(t, videos, "good")
	seedVideo(t, videos, "bad")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "bad") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `"lengthSeconds":"60"`)
	}))
	defer srv.Close()

	r := NewRefresher(videos, nil, srv.URL+"/watch?v=", nil)
	r.SetBatching(5, 0)

	result, err := r.Refresh(context.Background(), time.Hour, 50)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Cached != 1 || result.Failed != 1 {
		t.Errorf("result = %+v, want one cached one failed", result)
	}
}

func TestRefreshBatchesConcurrency(t *testing.T) {
	videos := setupVideos(t)
	for i := 0; i < 12; i++ {
		seedVideo(t, videos, fmt.Sprintf("v%02d", i))
	}

	var inFlight, peak int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		fmt.Fprint(w, `"lengthSeconds":"30"`)
	}))
	defer srv.Close()

	r := NewRefresher(videos, nil, srv.URL+"/watch?v=", nil)
	r.SetBatching(5, 0)

	result, err := r.Refresh(context.Background(), time.Hour, 50)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if result.Cached != 12 {
		t.Errorf("cached = %d, want 12", result.Cached)
	}

	mu.Lock()
	defer mu.Unlock()
	if peak > 5 {
		t.Errorf("peak concurrency %d exceeds batch size", peak)
	}
}

func TestRefreshWritesCache(t *testing.T) {
	videos := setupVideos(t)
	v := seedVideo(t, videos, "cached1")

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(rdb, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"lengthSeconds":"300"`)
	}))
	defer srv.Close()

	r := NewRefresher(videos, cache, srv.URL+"/watch?v=", nil)
	r.SetBatching(5, 0)

	if _, err := r.Refresh(context.Background(), time.Hour, 50); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	seconds, ok, err := cache.Get(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || seconds != 300 {
		t.Errorf("cache Get = %d/%v, want 300/true", seconds, ok)
	}
}

func TestDurationReadsThroughCache(t *testing.T) {
	videos := setupVideos(t)
	v := seedVideo(t, videos, "abc123")
	if err := videos.UpdateDuration(v.ID, 212); err != nil {
		t.Fatal(err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(rdb, time.Hour)
	r := NewRefresher(videos, cache, "http://unused/watch?v=", nil)

	seconds, ok, err := r.Duration(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || seconds != 212 {
		t.Fatalf("Duration = %d/%v, want 212/true", seconds, ok)
	}
	if !mr.Exists("videodur:" + v.ID) {
		t.Error("relational hit should backfill redis")
	}

	// Redis now answers even when the row changes underneath.
	if err := videos.UpdateDuration(v.ID, 999); err != nil {
		t.Fatal(err)
	}
	seconds, ok, err = r.Duration(context.Background(), v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || seconds != 212 {
		t.Errorf("Duration after backfill = %d/%v, want 212/true", seconds, ok)
	}
}

func TestDurationUncachedVideo(t *testing.T) {
	videos := setupVideos(t)
	v := seedVideo(t, videos, "nodur")
	r := NewRefresher(videos, nil, "http://unused/watch?v=", nil)

	if _, ok, err := r.Duration(context.Background(), v.ID); err != nil || ok {
		t.Errorf("Duration for uncached video = ok=%v err=%v, want false/nil", ok, err)
	}
	if _, ok, err := r.Duration(context.Background(), "no-such-id"); err != nil || ok {
		t.Errorf("Duration for unknown video = ok=%v err=%v, want false/nil", ok, err)
	}
}

func TestCacheMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(rdb, time.Hour)

	_, ok, err := cache.Get(context.Background(), "nope")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected a miss for unknown video")
	}
}

func TestCacheTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(rdb, time.Minute)

	if err := cache.Set(context.Background(), "v1", 120); err != nil {
		t.Fatal(err)
	}

	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(context.Background(), "v1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("entry should have expired")
	}
}
