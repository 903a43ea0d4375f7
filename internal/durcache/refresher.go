package durcache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundpost/campaigner/internal/metrics"
	"github.com/soundpost/campaigner/internal/models"
	"github.com/soundpost/campaigner/internal/repository"
)

const (
	// DefaultBatchSize is how many watch pages are fetched concurrently.
	DefaultBatchSize = 5
	// DefaultBatchDelay is the pause between batches.
	DefaultBatchDelay = time.Second

	// The hosting platform serves a degraded page to obvious bots; a
	// browser user agent gets the full player payload.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var (
	lengthSecondsPattern  = regexp.MustCompile(`"lengthSeconds":"(\d+)"`)
	approxDurationPattern = regexp.MustCompile(`"approxDurationMs":"(\d+)"`)
)

// Result summarizes one refresh run.
type Result struct {
	Processed int `json:"processed"`
	Cached    int `json:"cached"`
	Failed    int `json:"failed"`
}

// Refresher walks stale videos and re-scrapes their durations. Best
// effort: a video that cannot be scraped is skipped, never retried within
// the run.
type Refresher struct {
	videos     *repository.VideoRepository
	cache      *Cache // optional
	client     *http.Client
	watchURL   string
	batchSize  int
	batchDelay time.Duration
	logger     *slog.Logger
}

// NewRefresher creates a refresher. watchURL is the watch page base; the
// provider video id is appended to it. A nil cache skips redis writes.
func NewRefresher(videos *repository.VideoRepository, cache *Cache, watchURL string, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		videos:     videos,
		cache:      cache,
		client:     &http.Client{Timeout: 15 * time.Second},
		watchURL:   watchURL,
		batchSize:  DefaultBatchSize,
		batchDelay: DefaultBatchDelay,
		logger:     logger.With("component", "durcache"),
	}
}

// SetBatching overrides batch size and inter-batch delay.
func (r *Refresher) SetBatching(size int, delay time.Duration) {
	if size > 0 {
		r.batchSize = size
	}
	r.batchDelay = delay
}

// Refresh scrapes durations for up to limit videos whose cache entry is
// missing or older than maxAge. Batches run concurrently; a started batch
// always runs to completion, cancellation is honored between batches.
func (r *Refresher) Refresh(ctx context.Context, maxAge time.Duration, limit int) (*Result, error) {
	videos, err := r.videos.ListNeedingRefresh(maxAge, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select videos: %w", err)
	}

	result := &Result{Processed: len(videos)}
	if len(videos) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	for start := 0; start < len(videos); start += r.batchSize {
		if start > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(r.batchDelay):
			}
		}

		end := start + r.batchSize
		if end > len(videos) {
			end = len(videos)
		}

		// Detach the batch from the caller's context: a started batch
		// runs to completion.
		batchCtx := context.WithoutCancel(ctx)
		var g errgroup.Group
		for _, v := range videos[start:end] {
			v := v
			g.Go(func() error {
				ok := r.refreshOne(batchCtx, v)
				mu.Lock()
				if ok {
					result.Cached++
				} else {
					result.Failed++
				}
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
	}

	r.logger.Info("duration refresh completed",
		"processed", result.Processed,
		"cached", result.Cached,
		"failed", result.Failed,
	)
	return result, nil
}

func (r *Refresher) refreshOne(ctx context.Context, v models.Video) bool {
	seconds, err := r.scrape(ctx, v.ProviderVideoID)
	if err != nil {
		metrics.IncDurationRefresh("failed")
		r.logger.Warn("duration scrape failed",
			"video_id", v.ID,
			"provider_video_id", v.ProviderVideoID,
			"error", err,
		)
		return false
	}

	if err := r.videos.UpdateDuration(v.ID, seconds); err != nil {
		metrics.IncDurationRefresh("failed")
		r.logger.Error("failed to persist duration", "video_id", v.ID, "error", err)
		return false
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, v.ID, seconds); err != nil {
			// The table is the source of truth; a cache write failure is
			// not a refresh failure.
			r.logger.Warn("duration cache write failed", "video_id", v.ID, "error", err)
		}
	}

	metrics.IncDurationRefresh("updated")
	return true
}

// scrape fetches the watch page and extracts the duration from the player
// payload embedded in it.
func (r *Refresher) scrape(ctx context.Context, providerVideoID string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.watchURL+providerVideoID, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("watch page fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("watch page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read watch page: %w", err)
	}

	if m := lengthSecondsPattern.FindSubmatch(body); m != nil {
		return strconv.Atoi(string(m[1]))
	}
	if m := approxDurationPattern.FindSubmatch(body); m != nil {
		ms, err := strconv.Atoi(string(m[1]))
		if err != nil {
			return 0, err
		}
		return ms / 1000, nil
	}

	return 0, fmt.Errorf("no duration found in watch page")
}

// Duration returns a video's cached duration, preferring redis over the
// relational row. A relational hit backfills redis so the next lookup is
// cheap. The bool reports whether any cached duration exists.
func (r *Refresher) Duration(ctx context.Context, videoID string) (int, bool, error) {
	if r.cache != nil {
		seconds, ok, err := r.cache.Get(ctx, videoID)
		if err != nil {
			r.logger.Warn("duration cache read failed", "video_id", videoID, "error", err)
		} else if ok {
			return seconds, true, nil
		}
	}

	v, err := r.videos.GetByID(videoID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load video: %w", err)
	}
	if v == nil || !v.DurationCached {
		return 0, false, nil
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, videoID, v.DurationSeconds); err != nil {
			r.logger.Warn("duration cache write failed", "video_id", videoID, "error", err)
		}
	}
	return v.DurationSeconds, true, nil
}

// Stats reports duration cache coverage from the videos table.
func (r *Refresher) Stats(recentWindow time.Duration) (*models.DurationCacheStats, error) {
	return r.videos.CacheStats(recentWindow)
}
