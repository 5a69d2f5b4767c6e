package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mercantile/chatkit/internal/api"
	"github.com/mercantile/chatkit/internal/log"
)

// Sentinel errors for LoadMore. Both leave the pager state untouched.
var (
	// ErrLoadInFlight indicates a page request is already outstanding.
	ErrLoadInFlight = errors.New("history load already in flight")

	// ErrThrottled indicates LoadMore was called again before the debounce
	// window elapsed. Callers normally ignore it.
	ErrThrottled = errors.New("history load throttled")
)

const defaultDebounce = 250 * time.Millisecond

// HistorySource fetches one page of persisted history.
// *api.Client satisfies this.
type HistorySource interface {
	FetchHistory(ctx context.Context, page, pageSize int) (api.HistoryPage, error)
}

// PrependInfo describes the outcome of one LoadMore so the caller can keep
// its scroll position anchored on the content that was already visible.
type PrependInfo struct {
	// Added is the number of messages the page returned.
	Added int

	// AnchorDelta is the number of messages actually prepended after
	// de-duplication. The viewport offset shifts by this many entries.
	AnchorDelta int
}

// HistoryPager loads older messages page by page, prepending each page in
// front of the ones already loaded.
//
// Page 1 is the most recent; within a page items arrive oldest first, so a
// fetched page prepends as a block and the transcript stays in chronological
// order. Requests are strictly sequential: a LoadMore while one is outstanding
// fails with ErrLoadInFlight, and a rate limiter absorbs the burst a single
// scroll gesture produces.
type HistoryPager struct {
	source   HistorySource
	logger   log.Logger
	pageSize int
	limiter  *rate.Limiter

	mu       sync.Mutex
	messages []Message
	seen     map[string]struct{}
	nextPage int
	hasMore  bool
	inFlight bool
	epoch    int // bumped by Reset to discard stale in-flight results
}

// PagerOption configures a HistoryPager.
type PagerOption func(*HistoryPager)

// WithDebounce overrides the minimum interval between page requests.
// Zero disables throttling.
func WithDebounce(d time.Duration) PagerOption {
	return func(p *HistoryPager) {
		if d <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// NewHistoryPager creates a HistoryPager.
//
// Parameters:
//   - source: history transport (required)
//   - pageSize: messages per page, must be positive
//   - logger: logger for debugging (nil = discard)
func NewHistoryPager(source HistorySource, pageSize int, logger log.Logger, opts ...PagerOption) (*HistoryPager, error) {
	if source == nil {
		return nil, fmt.Errorf("chat.NewHistoryPager: source is required")
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("chat.NewHistoryPager: page size must be positive, got %d", pageSize)
	}
	if logger == nil {
		logger = log.NewNop()
	}

	p := &HistoryPager{
		source:   source,
		logger:   logger,
		pageSize: pageSize,
		limiter:  rate.NewLimiter(rate.Every(defaultDebounce), 1),
		seen:     make(map[string]struct{}),
		nextPage: 1,
		hasMore:  true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// LoadMore fetches the next older page and prepends it.
//
// When the history is exhausted it is a no-op returning a zero PrependInfo.
// A failed fetch leaves the pager exactly as it was: the same page is
// retried on the next call.
func (p *HistoryPager) LoadMore(ctx context.Context) (PrependInfo, error) {
	p.mu.Lock()
	if !p.hasMore {
		p.mu.Unlock()
		return PrependInfo{}, nil
	}
	if p.inFlight {
		p.mu.Unlock()
		return PrependInfo{}, ErrLoadInFlight
	}
	if !p.limiter.Allow() {
		p.mu.Unlock()
		return PrependInfo{}, ErrThrottled
	}
	p.inFlight = true
	page, size, epoch := p.nextPage, p.pageSize, p.epoch
	p.mu.Unlock()

	resp, err := p.source.FetchHistory(ctx, page, size)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = false

	if err != nil {
		return PrependInfo{}, fmt.Errorf("fetch history page %d: %w", page, err)
	}
	if epoch != p.epoch {
		// Reset raced the fetch; the page belongs to the old view.
		return PrependInfo{}, nil
	}

	block := make([]Message, 0, len(resp.Items))
	for _, it := range resp.Items {
		if _, dup := p.seen[it.ID]; dup {
			continue
		}
		p.seen[it.ID] = struct{}{}
		block = append(block, fromHistory(it))
	}
	p.messages = append(block, p.messages...)
	p.nextPage++
	if !resp.HasMore || len(resp.Items) < size {
		p.hasMore = false
	}

	p.logger.Debug("loaded history page", "page", page, "items", len(resp.Items), "has_more", p.hasMore)
	return PrependInfo{Added: len(resp.Items), AnchorDelta: len(block)}, nil
}

// HasMore reports whether older pages remain. It starts true and latches
// false once the server signals the end of history; only Reset re-arms it.
func (p *HistoryPager) HasMore() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasMore
}

// Messages returns a snapshot of the loaded history, oldest first.
func (p *HistoryPager) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Reset discards all loaded history and starts over from the most recent
// page. A fetch in flight at reset time is discarded when it lands.
func (p *HistoryPager) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.messages = nil
	p.seen = make(map[string]struct{})
	p.nextPage = 1
	p.hasMore = true
	p.epoch++
}
