package auctionview

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/ledger"
	"auction-sync/internal/lifecycle"
	"auction-sync/internal/models"
	"auction-sync/internal/names"
	"auction-sync/internal/repository"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

// droppableStream forwards a ledger stream until Drop cuts it like a lost connection
type droppableStream struct {
	inner    models.BidStream
	events   chan models.Bid
	drop     chan struct{}
	dropOnce sync.Once
	done     chan struct{}

	mu  sync.Mutex
	err error
}

func newDroppable(inner models.BidStream) *droppableStream {
	s := &droppableStream{
		inner:  inner,
		events: make(chan models.Bid, 64),
		drop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *droppableStream) forward() {
	defer close(s.done)
	defer close(s.events)
	for {
		select {
		case <-s.drop:
			s.setErr(biddingerrors.ErrSubscriptionLost)
			return
		case bid, ok := <-s.inner.Events():
			if !ok {
				s.setErr(s.inner.Err())
				return
			}
			select {
			case s.events <- bid:
			case <-s.drop:
				s.setErr(biddingerrors.ErrSubscriptionLost)
				return
			}
		}
	}
}

func (s *droppableStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *droppableStream) Events() <-chan models.Bid { return s.events }

func (s *droppableStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *droppableStream) Close() error {
	_ = s.inner.Close()
	<-s.done
	return nil
}

func (s *droppableStream) Drop() {
	s.dropOnce.Do(func() { close(s.drop) })
	<-s.done
	_ = s.inner.Close()
}

// hookedLedger is a LocalClient whose streams, fetches and submissions tests can interfere with
type hookedLedger struct {
	*ledger.LocalClient

	mu        sync.Mutex
	streams   []*droppableStream
	failFetch error
	holdFetch chan struct{} // fetches wait until it is closed

	submitEntered chan struct{}
	submitRelease chan struct{}
}

func (h *hookedLedger) Subscribe(ctx context.Context, auctionID string) (models.BidStream, error) {
	inner, err := h.LocalClient.Subscribe(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	s := newDroppable(inner)
	h.mu.Lock()
	h.streams = append(h.streams, s)
	h.mu.Unlock()
	return s, nil
}

func (h *hookedLedger) FetchHistory(ctx context.Context, auctionID string, cursor models.HistoryCursor, pageSize int) ([]models.Bid, error) {
	h.mu.Lock()
	err, hold := h.failFetch, h.holdFetch
	h.mu.Unlock()
	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return h.LocalClient.FetchHistory(ctx, auctionID, cursor, pageSize)
}

func (h *hookedLedger) SubmitBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.SubmitResult, error) {
	if h.submitRelease != nil {
		h.submitEntered <- struct{}{}
		<-h.submitRelease
	}
	return h.LocalClient.SubmitBid(ctx, auctionID, amount)
}

func (h *hookedLedger) subscribes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.streams)
}

func (h *hookedLedger) dropLatest() {
	h.mu.Lock()
	s := h.streams[len(h.streams)-1]
	h.mu.Unlock()
	s.Drop()
}

func (h *hookedLedger) setFailFetch(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failFetch = err
}

type fixture struct {
	ledger      *ledger.Ledger
	ledgerClock *clock.Mock
	viewClock   *clock.Mock
	alice       *hookedLedger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledgerClock := clock.NewMock()
	ledgerClock.Set(start)
	viewClock := clock.NewMock()
	viewClock.Set(start)

	repo := repository.NewMemoryRepo()
	repo.AddUser(models.User{UserID: "alice", FirstName: "Alice", LastName: "Smith"})
	repo.AddUser(models.User{UserID: "bob", FirstName: "Bob", LastName: "Jones"})
	repo.AddItem(models.AuctionItem{
		ID:              "item1",
		SellerID:        "carol",
		Title:           "Lamp",
		StartingPrice:   decimal.NewFromInt(90),
		MinBidIncrement: decimal.NewFromInt(5),
		HighestBid:      decimal.NewFromInt(90),
		EndTime:         start.Add(time.Hour),
		CreatedAt:       start,
	})

	l := ledger.New(repo, ledger.Options{Clock: ledgerClock})
	t.Cleanup(l.Shutdown)

	return &fixture{
		ledger:      l,
		ledgerClock: ledgerClock,
		viewClock:   viewClock,
		alice:       &hookedLedger{LocalClient: ledger.NewLocalClient(l, "alice")},
	}
}

// bid places a bid directly on the ledger, bypassing the view
func (f *fixture) bid(t *testing.T, userID string, amount int64) models.Bid {
	t.Helper()
	res, err := f.ledger.SubmitBid(context.Background(), "item1", userID, decimal.NewFromInt(amount))
	require.NoError(t, err)
	require.True(t, res.IsAccepted(), "bid %d by %s rejected: %+v", amount, userID, res.Rejected)
	return res.Accepted.Bid
}

func (f *fixture) open(t *testing.T, opts Options) *View {
	t.Helper()
	if opts.Clock == nil {
		opts.Clock = f.viewClock
	}
	if opts.ReconnectInitial == 0 {
		opts.ReconnectInitial = 10 * time.Millisecond
	}
	v, err := Open(context.Background(), f.alice, "alice", "item1", opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

// waitState polls the view until cond holds and returns that state
func waitState(t *testing.T, v *View, cond func(State) bool) State {
	t.Helper()
	var last State
	require.Eventually(t, func() bool {
		st, err := v.Snapshot(context.Background())
		if err != nil {
			return false
		}
		last = st
		return cond(st)
	}, waitFor, 5*time.Millisecond)
	return last
}

func seqs(bids []models.Bid) []int64 {
	out := make([]int64, 0, len(bids))
	for _, b := range bids {
		out = append(out, b.Sequence)
	}
	return out
}

func loaded(st State) bool { return st.Loaded }

func hasSeqs(want ...int64) func(State) bool {
	return func(st State) bool {
		got := seqs(st.Bids)
		if len(got) != len(want) {
			return false
		}
		for i := range got {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
}

func nextSoftError(t *testing.T, v *View) error {
	t.Helper()
	select {
	case err := <-v.Errors():
		return err
	case <-time.After(waitFor):
		t.Fatal("no soft error reported")
		return nil
	}
}

func TestView_OpenLoadsHistory(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 7; i++ {
		f.bid(t, "bob", 100+5*i)
	}

	v := f.open(t, Options{PageSize: 5})
	st := waitState(t, v, loaded)
	require.Equal(t, []int64{7, 6, 5, 4, 3}, seqs(st.Bids))
	require.True(t, st.HasMore)
	require.Equal(t, lifecycle.Open, st.Lifecycle)
	require.Equal(t, time.Hour, st.Remaining)
	require.Equal(t, "bob", st.Item.HighestBidUser)
	require.True(t, st.Item.HighestBid.Equal(decimal.NewFromInt(130)))

	require.NoError(t, v.LoadMore(context.Background()))
	st = waitState(t, v, hasSeqs(7, 6, 5, 4, 3, 2, 1))
	require.False(t, st.HasMore)

	// history exhausted: nothing to fetch
	require.NoError(t, v.LoadMore(context.Background()))
	st = waitState(t, v, hasSeqs(7, 6, 5, 4, 3, 2, 1))
	require.False(t, st.LoadingOlder)
}

func TestView_OpenUnknownItem(t *testing.T) {
	f := newFixture(t)
	_, err := Open(context.Background(), f.alice, "alice", "nope", Options{Clock: f.viewClock})
	require.ErrorIs(t, err, biddingerrors.ErrItemNotFound)
}

func TestView_LiveBids(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{})
	waitState(t, v, loaded)

	f.bid(t, "bob", 100)
	f.bid(t, "bob", 110)

	st := waitState(t, v, func(st State) bool {
		return hasSeqs(2, 1)(st) && st.Item.LastSequence == 2
	})
	require.Equal(t, "bob", st.Item.HighestBidUser)
	require.True(t, st.Item.MinimumNextBid().Equal(decimal.NewFromInt(115)))
}

func TestView_SubmitShowsOnce(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{})
	waitState(t, v, loaded)

	res, err := v.Submit(context.Background(), "100")
	require.NoError(t, err)
	require.True(t, res.IsAccepted())
	require.Equal(t, int64(1), res.Accepted.Bid.Sequence)

	// bob's later bid arrives on the same stream after alice's echo
	f.bid(t, "bob", 110)
	st := waitState(t, v, hasSeqs(2, 1))
	require.Empty(t, st.Pending)

	// the ledger pins the item for its bidders
	waitState(t, v, func(st State) bool { return st.Pinned && st.Item.LastSequence == 2 })

	_, err = v.Submit(context.Background(), "112")
	require.ErrorIs(t, err, biddingerrors.ErrBidTooLow)
	_, err = v.Submit(context.Background(), "lots")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAmount)
}

func TestView_LedgerClosedClosesGate(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{})
	waitState(t, v, loaded)

	// the ledger's clock is ahead of ours
	f.ledgerClock.Add(2 * time.Hour)

	res, err := v.Submit(context.Background(), "100")
	require.NoError(t, err)
	require.NotNil(t, res.Rejected)
	require.Equal(t, biddingerrors.ReasonAuctionClosed, res.Rejected.Reason)

	st := waitState(t, v, func(st State) bool { return st.Lifecycle == lifecycle.Closed })
	require.Empty(t, st.Pending)
	require.Empty(t, st.Bids)

	_, err = v.Submit(context.Background(), "100")
	require.ErrorIs(t, err, biddingerrors.ErrAuctionClosed)
}

func TestView_SubmissionInFlight(t *testing.T) {
	f := newFixture(t)
	f.alice.submitEntered = make(chan struct{})
	f.alice.submitRelease = make(chan struct{})
	v := f.open(t, Options{})
	waitState(t, v, loaded)

	type result struct {
		res models.SubmitResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := v.Submit(context.Background(), "100")
		done <- result{res, err}
	}()
	<-f.alice.submitEntered

	st := waitState(t, v, func(st State) bool { return len(st.Pending) == 1 })
	require.True(t, st.Submitting)
	require.Equal(t, "alice", st.Pending[0].Bidder)

	_, err := v.Submit(context.Background(), "200")
	require.ErrorIs(t, err, biddingerrors.ErrSubmissionInFlight)

	close(f.alice.submitRelease)
	r := <-done
	require.NoError(t, r.err)
	require.True(t, r.res.IsAccepted())

	st = waitState(t, v, hasSeqs(1))
	require.Empty(t, st.Pending)
	require.False(t, st.Submitting)
}

func TestView_TogglePin(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{})

	pinned, err := v.TogglePin(context.Background())
	require.NoError(t, err)
	require.True(t, pinned)

	item, err := f.ledger.GetItem(context.Background(), "item1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, item.PinnedBy)

	pinned, err = v.TogglePin(context.Background())
	require.NoError(t, err)
	require.False(t, pinned)

	st := waitState(t, v, loaded)
	require.False(t, st.Pinned)
}

func TestView_Reconnect(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{})
	waitState(t, v, loaded)

	f.bid(t, "bob", 100)
	waitState(t, v, hasSeqs(1))

	f.alice.dropLatest()
	require.ErrorIs(t, nextSoftError(t, v), biddingerrors.ErrSubscriptionLost)

	// accepted while the view may be resubscribing
	f.bid(t, "bob", 105)
	f.bid(t, "bob", 110)

	require.Eventually(t, func() bool { return f.alice.subscribes() == 2 }, waitFor, 5*time.Millisecond)
	waitState(t, v, hasSeqs(3, 2, 1))

	f.bid(t, "bob", 115)
	waitState(t, v, hasSeqs(4, 3, 2, 1))
}

func TestView_ResyncFillsGap(t *testing.T) {
	tests := []struct {
		name   string
		opts   Options
		resync func(t *testing.T, f *fixture, v *View)
	}{
		{
			name: "reconnect",
			opts: Options{PageSize: 5},
			resync: func(t *testing.T, f *fixture, v *View) {
				require.Eventually(t, func() bool { return f.alice.subscribes() == 2 }, waitFor, 5*time.Millisecond)
			},
		},
		{
			name: "refresh",
			opts: Options{PageSize: 5, DisableReconnect: true},
			resync: func(t *testing.T, f *fixture, v *View) {
				require.NoError(t, v.Refresh(context.Background()))
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			v := f.open(t, tc.opts)
			waitState(t, v, loaded)

			f.bid(t, "bob", 100)
			waitState(t, v, hasSeqs(1))

			f.alice.dropLatest()
			require.ErrorIs(t, nextSoftError(t, v), biddingerrors.ErrSubscriptionLost)

			// more than a page accepted while the stream is down
			for i := int64(1); i <= 8; i++ {
				f.bid(t, "bob", 100+5*i)
			}
			tc.resync(t, f, v)

			all := hasSeqs(9, 8, 7, 6, 5, 4, 3, 2, 1)
			st := waitState(t, v, func(st State) bool { return all(st) && st.Item.LastSequence == 9 })
			require.False(t, st.HasMore)
			require.True(t, st.Item.HighestBid.Equal(decimal.NewFromInt(140)))

			require.NoError(t, v.LoadMore(context.Background()))
			waitState(t, v, all)
		})
	}
}

func TestView_LoadMoreBeforeFirstPage(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 7; i++ {
		f.bid(t, "bob", 100+5*i)
	}
	f.alice.holdFetch = make(chan struct{})
	v := f.open(t, Options{PageSize: 5})

	done := make(chan error, 1)
	go func() { done <- v.LoadMore(context.Background()) }()
	require.Never(t, func() bool { return len(done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	f.alice.mu.Lock()
	close(f.alice.holdFetch)
	f.alice.mu.Unlock()
	require.NoError(t, <-done)

	st := waitState(t, v, hasSeqs(7, 6, 5, 4, 3, 2, 1))
	require.False(t, st.HasMore)
}

func TestView_ReconnectDisabled(t *testing.T) {
	f := newFixture(t)
	v := f.open(t, Options{DisableReconnect: true})
	waitState(t, v, loaded)

	f.alice.dropLatest()
	require.ErrorIs(t, nextSoftError(t, v), biddingerrors.ErrSubscriptionLost)

	require.Never(t, func() bool { return f.alice.subscribes() > 1 }, 100*time.Millisecond, 10*time.Millisecond)

	// a manual refresh still catches up
	f.bid(t, "bob", 100)
	require.NoError(t, v.Refresh(context.Background()))
	waitState(t, v, hasSeqs(1))
}

func TestView_FetchFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 3; i++ {
		f.bid(t, "bob", 100+5*i)
	}
	v := f.open(t, Options{})
	waitState(t, v, hasSeqs(3, 2, 1))

	f.alice.setFailFetch(biddingerrors.ErrTransport)
	err := v.Refresh(context.Background())
	require.ErrorIs(t, err, biddingerrors.ErrTransport)
	require.ErrorIs(t, nextSoftError(t, v), biddingerrors.ErrTransport)

	st := waitState(t, v, hasSeqs(3, 2, 1))
	require.False(t, st.LoadingOlder)

	f.alice.setFailFetch(nil)
	require.NoError(t, v.Refresh(context.Background()))
}

func TestView_Reload(t *testing.T) {
	f := newFixture(t)
	for i := int64(0); i < 7; i++ {
		f.bid(t, "bob", 100+5*i)
	}
	v := f.open(t, Options{PageSize: 5})
	waitState(t, v, loaded)
	require.NoError(t, v.LoadMore(context.Background()))
	waitState(t, v, hasSeqs(7, 6, 5, 4, 3, 2, 1))

	require.NoError(t, v.Reload(context.Background()))
	st := waitState(t, v, hasSeqs(7, 6, 5, 4, 3))
	require.True(t, st.HasMore)
}

func TestView_Names(t *testing.T) {
	f := newFixture(t)
	f.bid(t, "bob", 100)

	v := f.open(t, Options{Names: names.New(f.alice, 1, time.Minute)})
	st := waitState(t, v, hasSeqs(1))
	require.Equal(t, "Bob J.", st.Names["bob"])
}

func TestView_Close(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	f := newFixture(t)

	v, err := Open(context.Background(), f.alice, "alice", "item1", Options{Clock: f.viewClock})
	require.NoError(t, err)
	waitState(t, v, loaded)
	require.Equal(t, 1, f.ledger.SubscriberCount("item1"))

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	require.Eventually(t, func() bool { return f.ledger.SubscriberCount("item1") == 0 }, waitFor, 5*time.Millisecond)

	_, err = v.Submit(context.Background(), "100")
	require.ErrorIs(t, err, biddingerrors.ErrClosed)
	require.ErrorIs(t, v.LoadMore(context.Background()), biddingerrors.ErrClosed)
	require.ErrorIs(t, v.Refresh(context.Background()), biddingerrors.ErrClosed)
	_, err = v.TogglePin(context.Background())
	require.ErrorIs(t, err, biddingerrors.ErrClosed)
	_, err = v.Snapshot(context.Background())
	require.True(t, errors.Is(err, biddingerrors.ErrClosed))
}

func TestView_ParentContextEndsView(t *testing.T) {
	t.Cleanup(leaktest.Check(t))
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	v, err := Open(ctx, f.alice, "alice", "item1", Options{Clock: f.viewClock})
	require.NoError(t, err)

	cancel()
	require.NoError(t, v.Close())
	_, err = v.Submit(context.Background(), "100")
	require.ErrorIs(t, err, biddingerrors.ErrClosed)
}
