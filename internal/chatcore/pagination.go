package chatcore

import (
	"context"
	"fmt"
	"sync"

	"gigchat/client/internal/config"
)

// Paginator manages backward cursor pagination for one room: fetch-older-on-
// scroll-up with an exclusive in-flight lock and scroll compensation on
// prepend. The cursor is opaque to the client; an empty cursor requests the
// newest page.
type Paginator struct {
	fetcher HistoryFetcher
	store   *Store
	view    Viewport // optional; nil disables scroll compensation

	mu       sync.Mutex
	cursor   string
	hasMore  bool
	inFlight bool
}

// NewPaginator creates a controller positioned at the newest page. view may
// be nil when no rendering layer is attached (tests, headless use).
func NewPaginator(fetcher HistoryFetcher, store *Store, view Viewport) *Paginator {
	return &Paginator{
		fetcher: fetcher,
		store:   store,
		view:    view,
		hasMore: true,
	}
}

// FetchPage fetches and merges one history page. The initial call replaces
// the store with the newest page; later calls prepend older pages. Returns
// whether any messages were actually inserted.
//
// Fails fast (no-op, nil error) when a fetch is already in flight, or when
// history is exhausted and this is not the initial fetch. A second trigger
// while one is outstanding is dropped, never queued.
func (p *Paginator) FetchPage(ctx context.Context, initial bool) (bool, error) {
	p.mu.Lock()
	if p.inFlight || (!initial && !p.hasMore) {
		p.mu.Unlock()
		return false, nil
	}
	p.inFlight = true
	cursor := p.cursor
	p.mu.Unlock()

	// A stuck lock would permanently disable pagination, so release on
	// every exit path.
	defer func() {
		p.mu.Lock()
		p.inFlight = false
		p.mu.Unlock()
	}()

	if initial {
		cursor = ""
	}
	page, err := p.fetcher.History(ctx, p.store.RoomID(), cursor)
	if err != nil {
		// Cursor and hasMore stay untouched so a retry is possible.
		return false, fmt.Errorf("fetch history page for room %s: %w", p.store.RoomID(), err)
	}

	var inserted bool
	if initial {
		p.store.LoadNewest(page.Messages)
		inserted = len(page.Messages) > 0
	} else {
		before := 0.0
		if p.view != nil {
			before = p.view.ContentHeight()
		}
		inserted = p.store.LoadOlder(page.Messages)
		if inserted && p.view != nil {
			// Shift the reading position by exactly the height the
			// prepend added, so the visible content does not jump.
			p.view.AdjustScroll(p.view.ContentHeight() - before)
		}
	}

	p.mu.Lock()
	p.cursor = page.NextCursor
	p.hasMore = page.HasMore
	p.mu.Unlock()
	return inserted, nil
}

// ShouldFetchMore implements the scroll trigger policy: request the next
// older page once the offset from the top of the list falls under the fixed
// threshold, provided more history exists and no fetch is outstanding.
func (p *Paginator) ShouldFetchMore(offsetFromTop float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return offsetFromTop < config.TopFetchThresholdPx && p.hasMore && !p.inFlight
}

// HasMore reports whether older history remains.
func (p *Paginator) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// InFlight reports whether a fetch is outstanding.
func (p *Paginator) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}
