package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTickInterval is how often the countdown is recomputed for display
const DefaultTickInterval = time.Second

// State of an auction as seen from the local clock
type State int

const (
	Open State = iota
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Closed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Tick is one countdown update
type Tick struct {
	State     State
	Remaining time.Duration
}

// Tracker follows an auction's deadline on the local clock. Its verdict is a
// hint for display and for the submission gate: the ledger's own clock decides
// closure, and MarkClosed applies that decision. Closed is terminal.
type Tracker struct {
	clock    clock.Clock
	interval time.Duration

	mu       sync.Mutex
	deadline time.Time
	closed   bool

	closedCh  chan struct{}
	closeOnce sync.Once
	ticks     chan Tick
}

// New creates a tracker for deadline. A non-positive interval uses DefaultTickInterval.
func New(c clock.Clock, deadline time.Time, interval time.Duration) *Tracker {
	if c == nil {
		c = clock.New()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	t := &Tracker{
		clock:    c,
		interval: interval,
		deadline: deadline,
		closedCh: make(chan struct{}),
		ticks:    make(chan Tick, 1),
	}
	t.State()
	return t
}

// State recomputes the state from the clock
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

func (t *Tracker) stateLocked() State {
	if !t.closed && !t.clock.Now().Before(t.deadline) {
		t.closeLocked()
	}
	if t.closed {
		return Closed
	}
	return Open
}

func (t *Tracker) closeLocked() {
	t.closed = true
	t.closeOnce.Do(func() { close(t.closedCh) })
}

// Remaining is the time left until the deadline, zero once closed
func (t *Tracker) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Tracker) remainingLocked() time.Duration {
	if t.stateLocked() == Closed {
		return 0
	}
	return t.deadline.Sub(t.clock.Now())
}

func (t *Tracker) Deadline() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline
}

// SetDeadline moves the deadline after a refresh from the ledger. It reports
// false and changes nothing once the auction is closed.
func (t *Tracker) SetDeadline(deadline time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return false
	}
	t.deadline = deadline
	t.stateLocked()
	return true
}

// MarkClosed applies the ledger's AuctionClosed verdict regardless of the local clock
func (t *Tracker) MarkClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeLocked()
}

// Closed is closed once the auction transitions to Closed
func (t *Tracker) Closed() <-chan struct{} {
	return t.closedCh
}

// Ticks delivers the latest countdown update. Unread ticks are replaced.
func (t *Tracker) Ticks() <-chan Tick {
	return t.ticks
}

// Run recomputes the countdown every interval until ctx is done or the
// auction closes. The final tick reports Closed.
func (t *Tracker) Run(ctx context.Context) error {
	ticker := t.clock.Ticker(t.interval)
	defer ticker.Stop()

	t.emit()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.closedCh:
			t.emit()
			return nil
		case <-ticker.C:
			if t.emit().State == Closed {
				return nil
			}
		}
	}
}

func (t *Tracker) emit() Tick {
	t.mu.Lock()
	tick := Tick{State: t.stateLocked(), Remaining: t.remainingLocked()}
	t.mu.Unlock()

	// latest wins
	select {
	case <-t.ticks:
	default:
	}
	select {
	case t.ticks <- tick:
	default:
	}
	return tick
}

// FormatRemaining renders a countdown as "HH:mm:ss", prefixed with "Dd " when
// at least a day is left. Negative durations render as zero.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60

	if days > 0 {
		return fmt.Sprintf("%dd %02d:%02d:%02d", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
