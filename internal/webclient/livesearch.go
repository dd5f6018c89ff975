package webclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultDebounce is the quiet period after the last keystroke before a
// search is sent.
const DefaultDebounce = 1000 * time.Millisecond

// Referral remembers the page a visitor was on when they were sent to the
// login page. It is safe for concurrent use.
type Referral struct {
	mu   sync.Mutex
	path string
}

// Set records path, replacing any earlier value.
func (r *Referral) Set(path string) {
	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
}

// Take returns the recorded path and clears it.
func (r *Referral) Take() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.path
	r.path = ""
	return p
}

// Searcher runs one search request.
type Searcher interface {
	Search(ctx context.Context, text string) ([]SearchResult, error)
}

// LiveSearchOptions configure a LiveSearch. Every hook may be nil.
//
// Hooks run with the coordinator's lock held, so the values they observe are
// never overtaken by a newer query. They must not call Type or Close.
type LiveSearchOptions struct {
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// Context is passed to Searcher; defaults to context.Background().
	Context context.Context

	OnLoading func(loading bool)
	OnResults func(results []SearchResult)
	OnError   func(err error)

	// Referral receives CurrentPath() when the endpoint answers with a
	// login redirect.
	Referral    *Referral
	CurrentPath func() string
}

// LiveSearch turns keystrokes into debounced searches and shows only the
// response to the latest query. Every Type bumps an epoch; a timer or a
// response whose epoch is no longer current is discarded.
type LiveSearch struct {
	searcher Searcher
	opts     LiveSearchOptions

	mu     sync.Mutex
	epoch  uint64
	timer  *time.Timer
	closed bool
	stale  uint64
}

// NewLiveSearch returns a coordinator over s.
func NewLiveSearch(s Searcher, opts LiveSearchOptions) *LiveSearch {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return &LiveSearch{searcher: s, opts: opts}
}

// Type records the current input text. Blank text clears results at once;
// anything else (re)starts the debounce timer.
func (l *LiveSearch) Type(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}

	if strings.TrimSpace(text) == "" {
		l.results(nil)
		l.loading(false)
		return
	}

	epoch := l.epoch
	l.timer = time.AfterFunc(l.opts.Debounce, func() { l.fire(epoch, text) })
}

// Close stops any pending timer and invalidates in-flight responses.
func (l *LiveSearch) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.epoch++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// Stale returns how many responses were discarded because a newer query
// had been typed.
func (l *LiveSearch) Stale() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stale
}

func (l *LiveSearch) fire(epoch uint64, text string) {
	l.mu.Lock()
	if l.closed || epoch != l.epoch {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	l.loading(true)
	l.mu.Unlock()

	res, err := l.searcher.Search(l.opts.Context, text)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || epoch != l.epoch {
		l.stale++
		log.Debug().Uint64("epoch", epoch).Str("text", text).Msg("livesearch: discarding stale response")
		return
	}
	if err != nil {
		if _, ok := IsRedirect(err); ok && l.opts.Referral != nil && l.opts.CurrentPath != nil {
			l.opts.Referral.Set(l.opts.CurrentPath())
		}
		if l.opts.OnError != nil {
			l.opts.OnError(err)
		}
		l.loading(false)
		return
	}
	if res == nil {
		res = []SearchResult{}
	}
	l.results(res)
	l.loading(false)
}

func (l *LiveSearch) loading(v bool) {
	if l.opts.OnLoading != nil {
		l.opts.OnLoading(v)
	}
}

func (l *LiveSearch) results(r []SearchResult) {
	if l.opts.OnResults != nil {
		l.opts.OnResults(r)
	}
}
