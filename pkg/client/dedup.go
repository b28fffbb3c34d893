package client

import (
	"context"
	"sync"
	"time"

	command "github.com/goliatone/go-command"

	"github.com/lightningsats/go-realtime/pkg/interfaces/logger"
)

const (
	// DefaultDedupWindow suppresses an identical notice fired again within
	// this interval.
	DefaultDedupWindow = 2000 * time.Millisecond

	// DefaultDedupMaxAge bounds the dedup map: entries older than this are
	// swept.
	DefaultDedupMaxAge = 5000 * time.Millisecond

	// DefaultDisplayFor is how long each notice stays visible before the
	// next one is dequeued.
	DefaultDisplayFor = 3 * time.Second

	defaultNoticeQueue = 16
	sweepEvery         = time.Second
)

// Notice is one user-visible notification request.
type Notice struct {
	Text string
	Kind string
}

type noticeKey struct {
	text string
	kind string
}

// DeduperOptions configures a Deduper; Show is the UI hook executed for
// each visible notice.
type DeduperOptions struct {
	Window     time.Duration
	MaxAge     time.Duration
	DisplayFor time.Duration
	QueueSize  int
	Show       command.Commander[Notice]
	Clock      Clock
	Logger     logger.Logger
}

// Deduper suppresses redundant identical notices fired within a short
// window and serializes the survivors through a single visible slot.
type Deduper struct {
	window     time.Duration
	maxAge     time.Duration
	displayFor time.Duration
	show       command.Commander[Notice]
	clock      Clock
	logger     logger.Logger

	mu        sync.Mutex
	lastShown map[noticeKey]time.Time
	queue     chan Notice
}

// NewDeduper builds a Deduper. A nil Show hook drops notices after dedup
// bookkeeping, which suits headless tests.
func NewDeduper(opts DeduperOptions) *Deduper {
	if opts.Window <= 0 {
		opts.Window = DefaultDedupWindow
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultDedupMaxAge
	}
	if opts.DisplayFor <= 0 {
		opts.DisplayFor = DefaultDisplayFor
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultNoticeQueue
	}
	if opts.Clock == nil {
		opts.Clock = RealClock()
	}
	if opts.Logger == nil {
		opts.Logger = &logger.Nop{}
	}

	d := &Deduper{
		window:     opts.Window,
		maxAge:     opts.MaxAge,
		displayFor: opts.DisplayFor,
		show:       opts.Show,
		clock:      opts.Clock,
		logger:     opts.Logger,
		lastShown:  make(map[noticeKey]time.Time),
		queue:      make(chan Notice, opts.QueueSize),
	}
	return d
}

// Offer requests a notification. It reports whether the notice was accepted
// or suppressed as a duplicate inside the window. Accepted notices are
// queued; a full queue drops the notice rather than blocking the router.
func (d *Deduper) Offer(n Notice) bool {
	key := noticeKey{text: n.Text, kind: n.Kind}
	now := d.clock.Now()

	d.mu.Lock()
	last, seen := d.lastShown[key]
	if seen && now.Sub(last) < d.window {
		d.mu.Unlock()
		return false
	}
	d.lastShown[key] = now
	d.mu.Unlock()

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notice queue full, dropping",
			logger.F("kind", n.Kind))
	}
	return true
}

// Sweep removes dedup entries older than the max age, bounding the map.
func (d *Deduper) Sweep() {
	now := d.clock.Now()
	d.mu.Lock()
	for key, shown := range d.lastShown {
		if now.Sub(shown) > d.maxAge {
			delete(d.lastShown, key)
		}
	}
	d.mu.Unlock()
}

// Pending reports how many accepted notices await display.
func (d *Deduper) Pending() int {
	return len(d.queue)
}

// Run owns the visible slot: it dequeues one notice at a time, executes the
// Show hook, holds the slot for the display duration, then moves on. It also
// sweeps the dedup map periodically. Returns when ctx ends.
func (d *Deduper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.clock.After(sweepEvery):
			d.Sweep()
		case n := <-d.queue:
			d.display(ctx, n)
		}
	}
}

func (d *Deduper) display(ctx context.Context, n Notice) {
	if d.show != nil {
		if err := d.show.Execute(ctx, n); err != nil {
			d.logger.Warn("notice hook failed", logger.F("error", err))
		}
	}
	select {
	case <-ctx.Done():
	case <-d.clock.After(d.displayFor):
	}
}
