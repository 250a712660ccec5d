package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize      = 5
	DefaultPendingWindow = time.Minute
)

// FetchKind says which end of the history a fetch targets
type FetchKind int

const (
	// FetchHead loads the newest page: the initial load and resyncs after a reconnect
	FetchHead FetchKind = iota
	// FetchOlder loads the page below the oldest held bid
	FetchOlder
	// FetchGap loads bids missing between two held ones, e.g. those accepted
	// while the live stream was down
	FetchGap
)

func (k FetchKind) String() string {
	switch k {
	case FetchOlder:
		return "older"
	case FetchGap:
		return "gap"
	default:
		return "head"
	}
}

// Ticket identifies one history fetch. Results are applied only if the ticket
// is still current when they arrive.
type Ticket struct {
	Kind   FetchKind
	Cursor models.HistoryCursor
	id     uint64
	epoch  uint64
}

// Pending is a bid shown before the ledger has confirmed it
type Pending struct {
	Key    uint64
	Bidder string
	Amount decimal.Decimal
	At     time.Time
}

// Snapshot is a copy of the merged view
type Snapshot struct {
	Bids         []models.Bid // newest first
	Pending      []Pending
	HasMore      bool
	Loaded       bool
	LoadingOlder bool
}

// Head returns the newest confirmed bid
func (s Snapshot) Head() (models.Bid, bool) {
	if len(s.Bids) == 0 {
		return models.Bid{}, false
	}
	return s.Bids[0], true
}

type Options struct {
	PageSize      int
	PendingWindow time.Duration
	Clock         clock.Clock
}

// Reconciler owns one auction's merged bid list. Every mutation runs on the
// goroutine started by Run, so history pages, live events, and optimistic
// entries never interleave. Order is by sequence only.
type Reconciler struct {
	auctionID string
	pageSize  int
	window    time.Duration
	clock     clock.Clock

	ops     chan func(*state)
	updates chan Snapshot
	quit    chan struct{}
	done    chan struct{}

	started   atomic.Bool
	closeOnce sync.Once
}

type state struct {
	bids    []models.Bid // descending by sequence
	ids     map[string]struct{}
	pending []Pending

	epoch       uint64
	lastTicket  uint64
	lastPending uint64
	olderTicket uint64 // 0 when no older fetch is in flight

	loaded  bool
	hasMore bool
	waiters []chan struct{} // released once loaded or the first head fetch fails
}

func New(auctionID string, opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.PendingWindow <= 0 {
		opts.PendingWindow = DefaultPendingWindow
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Reconciler{
		auctionID: auctionID,
		pageSize:  opts.PageSize,
		window:    opts.PendingWindow,
		clock:     opts.Clock,
		ops:       make(chan func(*state)),
		updates:   make(chan Snapshot, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Run processes messages until ctx is done or Close is called
func (r *Reconciler) Run(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("reconciler: already running")
	}
	defer close(r.done)

	s := &state{ids: make(map[string]struct{})}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.quit:
			return nil
		case op := <-r.ops:
			select {
			case <-r.quit:
				return nil
			default:
			}
			op(s)
		}
	}
}

// Close stops the actor. Results delivered afterwards are discarded with ErrClosed.
func (r *Reconciler) Close() {
	r.closeOnce.Do(func() { close(r.quit) })
	if r.started.Load() {
		<-r.done
	}
}

// Updates delivers the latest snapshot after every change. Unread snapshots are replaced.
func (r *Reconciler) Updates() <-chan Snapshot {
	return r.updates
}

// do runs fn on the actor and waits for it
func (r *Reconciler) do(fn func(*state)) error {
	reply := make(chan struct{})
	op := func(s *state) {
		fn(s)
		close(reply)
	}

	select {
	case r.ops <- op:
	case <-r.quit:
		return biddingerrors.ErrClosed
	case <-r.done:
		return biddingerrors.ErrClosed
	}
	select {
	case <-reply:
		return nil
	case <-r.done:
		return biddingerrors.ErrClosed
	}
}

// ApplyLive merges one live event. It reports whether the bid was new.
func (r *Reconciler) ApplyLive(bid models.Bid) (bool, error) {
	var inserted bool
	err := r.do(func(s *state) {
		if bid.AuctionItem != r.auctionID {
			utils.Warn("Ignoring bid for another auction", map[string]any{
				"auction_item": r.auctionID,
				"bid_item":     bid.AuctionItem,
				"sequence":     bid.Sequence,
			})
			return
		}
		inserted = r.merge(s, bid)
		if inserted {
			r.publish(s)
		}
	})
	return inserted, err
}

// BeginFetch issues a ticket for the next history fetch. Only one FetchOlder
// may be outstanding; its cursor is the oldest held sequence, so the page
// does not shift while live bids arrive.
func (r *Reconciler) BeginFetch(kind FetchKind) (Ticket, error) {
	var (
		t      Ticket
		errOut error
	)
	err := r.do(func(s *state) {
		s.lastTicket++
		t = Ticket{Kind: kind, id: s.lastTicket, epoch: s.epoch, Cursor: models.HistoryCursor{Page: 1}}

		if kind == FetchOlder {
			if s.olderTicket != 0 {
				errOut = fmt.Errorf("reconciler: %w", biddingerrors.ErrLoadInFlight)
				return
			}
			if n := len(s.bids); n > 0 {
				t.Cursor = models.HistoryCursor{BeforeSequence: s.bids[n-1].Sequence}
			}
			s.olderTicket = t.id
			r.publish(s)
		}
	})
	if err != nil {
		return Ticket{}, err
	}
	return t, errOut
}

// BeginGapFetch issues a ticket for the newest hole in the held sequences.
// ok is false when the held bids are contiguous.
func (r *Reconciler) BeginGapFetch() (Ticket, bool, error) {
	var (
		t  Ticket
		ok bool
	)
	err := r.do(func(s *state) {
		for i := 0; i+1 < len(s.bids); i++ {
			if s.bids[i].Sequence-s.bids[i+1].Sequence > 1 {
				s.lastTicket++
				t = Ticket{
					Kind:   FetchGap,
					Cursor: models.HistoryCursor{BeforeSequence: s.bids[i].Sequence},
					id:     s.lastTicket,
					epoch:  s.epoch,
				}
				ok = true
				return
			}
		}
	})
	if err != nil {
		return Ticket{}, false, err
	}
	return t, ok, nil
}

// WaitLoaded blocks until the first page has been applied or the first head
// fetch has failed.
func (r *Reconciler) WaitLoaded(ctx context.Context) error {
	ready := make(chan struct{})
	err := r.do(func(s *state) {
		if s.loaded {
			close(ready)
			return
		}
		s.waiters = append(s.waiters, ready)
	})
	if err != nil {
		return err
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		return biddingerrors.ErrClosed
	case <-r.done:
		return biddingerrors.ErrClosed
	}
}

// ApplyPage merges a fetched history page. It reports false when the ticket
// is stale and the page was discarded.
func (r *Reconciler) ApplyPage(t Ticket, page []models.Bid) (bool, error) {
	var applied bool
	err := r.do(func(s *state) {
		if t.epoch != s.epoch {
			utils.Debug("Discarding stale history page", map[string]any{
				"auction_item": r.auctionID,
				"cursor":       t.Cursor.String(),
			})
			return
		}
		applied = true

		for _, bid := range page {
			if bid.AuctionItem != "" && bid.AuctionItem != r.auctionID {
				continue
			}
			r.merge(s, bid)
		}

		// a full page suggests more; an exact multiple of the page size costs one empty fetch
		full := len(page) >= r.pageSize
		switch t.Kind {
		case FetchOlder:
			if s.olderTicket == t.id {
				s.olderTicket = 0
			}
			s.hasMore = full
		case FetchHead:
			if !s.loaded {
				s.hasMore = full
			}
		}
		s.loaded = true
		s.release()
		r.publish(s)
	})
	return applied, err
}

// FailFetch releases t after its fetch failed. Held bids are left as they are.
func (r *Reconciler) FailFetch(t Ticket, cause error) error {
	return r.do(func(s *state) {
		if t.epoch != s.epoch {
			return
		}
		utils.Warn("History fetch failed", map[string]any{
			"auction_item": r.auctionID,
			"cursor":       t.Cursor.String(),
			"error":        fmt.Sprint(cause),
		})
		switch {
		case t.Kind == FetchOlder && s.olderTicket == t.id:
			s.olderTicket = 0
			r.publish(s)
		case t.Kind == FetchHead && !s.loaded:
			s.release()
		}
	})
}

// AddPending shows bidder's amount until the matching confirmed bid arrives
// or DropPending is called.
func (r *Reconciler) AddPending(bidder string, amount decimal.Decimal) (uint64, error) {
	var key uint64
	err := r.do(func(s *state) {
		s.lastPending++
		key = s.lastPending
		s.pending = append(s.pending, Pending{Key: key, Bidder: bidder, Amount: amount, At: r.clock.Now()})
		r.publish(s)
	})
	return key, err
}

// DropPending removes an optimistic entry, e.g. after a rejection
func (r *Reconciler) DropPending(key uint64) error {
	return r.do(func(s *state) {
		for i, p := range s.pending {
			if p.Key == key {
				s.pending = append(s.pending[:i], s.pending[i+1:]...)
				r.publish(s)
				return
			}
		}
	})
}

func (r *Reconciler) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := r.do(func(s *state) {
		snap = s.snapshot()
	})
	return snap, err
}

// Reset clears the view and invalidates every outstanding ticket
func (r *Reconciler) Reset() error {
	return r.do(func(s *state) {
		*s = state{
			ids:         make(map[string]struct{}),
			epoch:       s.epoch + 1,
			lastTicket:  s.lastTicket,
			lastPending: s.lastPending,
			waiters:     s.waiters,
		}
		r.publish(s)
	})
}

// merge inserts bid at its sequence position unless it is already held.
// It also retires the optimistic entry the bid confirms.
func (r *Reconciler) merge(s *state, bid models.Bid) bool {
	if _, ok := s.ids[bid.ID]; ok {
		return false
	}

	// first index holding an older bid
	idx := sort.Search(len(s.bids), func(i int) bool {
		return s.bids[i].Sequence <= bid.Sequence
	})
	if idx < len(s.bids) && s.bids[idx].Sequence == bid.Sequence {
		utils.Warn("Conflicting bid for held sequence", map[string]any{
			"auction_item": r.auctionID,
			"sequence":     bid.Sequence,
			"held_id":      s.bids[idx].ID,
			"bid_id":       bid.ID,
		})
		return false
	}

	s.bids = append(s.bids, models.Bid{})
	copy(s.bids[idx+1:], s.bids[idx:])
	s.bids[idx] = bid
	s.ids[bid.ID] = struct{}{}

	r.resolvePending(s, bid)
	return true
}

func (r *Reconciler) resolvePending(s *state, bid models.Bid) {
	for i, p := range s.pending {
		if p.Bidder != bid.Bidder || !p.Amount.Equal(bid.Amount) {
			continue
		}
		gap := bid.CreatedAt.Sub(p.At)
		if gap < 0 {
			gap = -gap
		}
		if gap > r.window {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		return
	}
}

func (s *state) release() {
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (s *state) snapshot() Snapshot {
	return Snapshot{
		Bids:         append([]models.Bid(nil), s.bids...),
		Pending:      append([]Pending(nil), s.pending...),
		HasMore:      s.hasMore,
		Loaded:       s.loaded,
		LoadingOlder: s.olderTicket != 0,
	}
}

func (r *Reconciler) publish(s *state) {
	snap := s.snapshot()
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- snap:
	default:
	}
}
