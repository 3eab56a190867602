package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultQuietPeriod is how long a user's meals must stay unchanged before
// suggestions are recomputed.
const DefaultQuietPeriod = 2 * time.Second

// SuggestionSource computes suggestions for a user's day.
type SuggestionSource interface {
	ForDay(ctx context.Context, userID int64, day string) (*SuggestionSet, error)
}

type pendingRefresh struct {
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

// SuggestionFeed debounces suggestion recomputes per user. Each Notify
// restarts the quiet period and cancels any pending or running recompute.
type SuggestionFeed struct {
	source SuggestionSource
	quiet  time.Duration

	mu      sync.Mutex
	gen     uint64
	pending map[int64]*pendingRefresh
	latest  map[int64]*SuggestionSet
	closed  bool
}

// NewSuggestionFeed creates a feed. A non-positive quiet period uses DefaultQuietPeriod.
func NewSuggestionFeed(source SuggestionSource, quiet time.Duration) *SuggestionFeed {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &SuggestionFeed{
		source:  source,
		quiet:   quiet,
		pending: map[int64]*pendingRefresh{},
		latest:  map[int64]*SuggestionSet{},
	}
}

// Notify schedules a recompute of the user's suggestions for day.
func (f *SuggestionFeed) Notify(userID int64, day string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	if p, ok := f.pending[userID]; ok {
		p.timer.Stop()
		p.cancel()
	}
	delete(f.latest, userID)

	f.gen++
	gen := f.gen
	ctx, cancel := context.WithCancel(context.Background())
	p := &pendingRefresh{gen: gen, cancel: cancel}
	p.timer = time.AfterFunc(f.quiet, func() { f.refresh(ctx, userID, day, gen) })
	f.pending[userID] = p
}

func (f *SuggestionFeed) refresh(ctx context.Context, userID int64, day string, gen uint64) {
	set, err := f.source.ForDay(ctx, userID, day)

	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pending[userID]
	if !ok || p.gen != gen {
		return
	}
	delete(f.pending, userID)
	p.cancel()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Int64("user_id", userID).Str("day", day).Msg("suggestion refresh failed")
		}
		return
	}
	f.latest[userID] = set
}

// Latest returns the last computed set for the user's day, if it is current.
func (f *SuggestionFeed) Latest(userID int64, day string) (*SuggestionSet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set, ok := f.latest[userID]
	if !ok || set.Date != day {
		return nil, false
	}
	return set, true
}

// Store records a set computed outside the feed, e.g. on an explicit request.
func (f *SuggestionFeed) Store(userID int64, set *SuggestionSet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.pending[userID]; busy {
		return
	}
	f.latest[userID] = set
}

// Pending reports whether a recompute is scheduled or running for the user.
func (f *SuggestionFeed) Pending(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[userID]
	return ok
}

// Close cancels all pending recomputes.
func (f *SuggestionFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for id, p := range f.pending {
		p.timer.Stop()
		p.cancel()
		delete(f.pending, id)
	}
}
