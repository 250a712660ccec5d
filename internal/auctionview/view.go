package auctionview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/client"
	"auction-sync/internal/lifecycle"
	"auction-sync/internal/models"
	"auction-sync/internal/names"
	"auction-sync/internal/pins"
	"auction-sync/internal/reconciler"
	"auction-sync/internal/validator"
	"auction-sync/utils"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultReconnectInitial    = 250 * time.Millisecond
	DefaultReconnectMaxElapsed = time.Minute
	softErrorBuffer            = 16
)

// Options tune a View. Zero values fall back to each component's default.
type Options struct {
	PageSize            int
	TickInterval        time.Duration
	PendingWindow       time.Duration
	DisableReconnect    bool
	ReconnectInitial    time.Duration
	ReconnectMaxElapsed time.Duration
	Clock               clock.Clock

	// Pins is shared by every view of the same user; a private registry is used when nil
	Pins *pins.Registry
	// Names resolves bidder names for State; names are left out when nil
	Names *names.Resolver
}

// State is a point-in-time copy of everything a view shows
type State struct {
	Item         models.AuctionItem
	Lifecycle    lifecycle.State
	Remaining    time.Duration
	Bids         []models.Bid // newest first
	Pending      []reconciler.Pending
	Names        map[string]string
	HasMore      bool
	Loaded       bool
	LoadingOlder bool
	Pinned       bool
	Submitting   bool
}

// View is one user's live window on one auction. It owns a lifecycle tracker,
// a reconciler and the live subscription, and runs them until Close.
type View struct {
	ledger    client.Ledger
	userID    string
	auctionID string
	opts      Options

	tracker   *lifecycle.Tracker
	recon     *reconciler.Reconciler
	validator *validator.Validator
	pins      *pins.Registry

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	item   models.AuctionItem
	stream models.BidStream

	spawnMu  sync.Mutex
	stopping bool

	submitting atomic.Bool
	errs       chan error
	closeOnce  sync.Once
	closeErr   error
}

// Open loads the auction and starts following it. The view lives until Close
// is called or ctx is done.
func Open(ctx context.Context, ledger client.Ledger, userID, auctionID string, opts Options) (*View, error) {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = DefaultReconnectInitial
	}
	if opts.ReconnectMaxElapsed <= 0 {
		opts.ReconnectMaxElapsed = DefaultReconnectMaxElapsed
	}
	if opts.Pins == nil {
		opts.Pins = pins.New(ledger, userID)
	}

	item, err := ledger.GetItem(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("auctionview: failed to load auction %s: %w", auctionID, err)
	}

	vctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(vctx)

	v := &View{
		ledger:    ledger,
		userID:    userID,
		auctionID: auctionID,
		opts:      opts,
		tracker:   lifecycle.New(opts.Clock, item.EndTime, opts.TickInterval),
		recon: reconciler.New(auctionID, reconciler.Options{
			PageSize:      opts.PageSize,
			PendingWindow: opts.PendingWindow,
			Clock:         opts.Clock,
		}),
		validator: validator.New(ledger),
		pins:      opts.Pins,
		ctx:       gctx,
		cancel:    cancel,
		group:     group,
		item:      item,
		errs:      make(chan error, softErrorBuffer),
	}

	group.Go(func() error { return v.tracker.Run(gctx) })
	group.Go(func() error { return v.recon.Run(gctx) })
	v.pins.Apply(item)

	// subscribe before the first page so nothing falls between them
	stream, err := ledger.Subscribe(gctx, auctionID)
	if err != nil {
		_ = v.Close()
		return nil, fmt.Errorf("auctionview: failed to subscribe to auction %s: %w", auctionID, err)
	}
	v.stream = stream

	v.spawn(func() { _ = v.fetchHead(gctx) })
	group.Go(func() error { return v.pump(gctx, stream) })

	utils.Info("Auction view opened", map[string]any{
		"auction_item": auctionID,
		"user":         userID,
		"end_time":     item.EndTime,
	})
	return v, nil
}

func (v *View) AuctionID() string {
	return v.auctionID
}

// Item is the latest known projection of the auction
func (v *View) Item() models.AuctionItem {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.item
}

// Errors delivers soft errors: transport failures and subscription loss.
// The view keeps its last good state when they happen.
func (v *View) Errors() <-chan error {
	return v.errs
}

// Updates delivers the merged bid list after every change
func (v *View) Updates() <-chan reconciler.Snapshot {
	return v.recon.Updates()
}

// Ticks delivers countdown updates
func (v *View) Ticks() <-chan lifecycle.Tick {
	return v.tracker.Ticks()
}

func (v *View) closed() bool {
	return v.ctx.Err() != nil
}

// Snapshot returns the current state of the view
func (v *View) Snapshot(ctx context.Context) (State, error) {
	if v.closed() {
		return State{}, biddingerrors.ErrClosed
	}
	snap, err := v.recon.Snapshot()
	if err != nil {
		return State{}, err
	}

	st := State{
		Item:         v.Item(),
		Lifecycle:    v.tracker.State(),
		Remaining:    v.tracker.Remaining(),
		Bids:         snap.Bids,
		Pending:      snap.Pending,
		HasMore:      snap.HasMore,
		Loaded:       snap.Loaded,
		LoadingOlder: snap.LoadingOlder,
		Pinned:       v.pins.IsPinned(v.auctionID, v.userID),
		Submitting:   v.submitting.Load(),
	}
	if v.opts.Names != nil {
		ids := make([]string, 0, len(st.Bids)+1)
		for _, b := range st.Bids {
			ids = append(ids, b.Bidder)
		}
		if st.Item.HighestBidUser != "" {
			ids = append(ids, st.Item.HighestBidUser)
		}
		st.Names = v.opts.Names.Resolve(ctx, ids)
	}
	return st, nil
}

// Submit validates raw locally and sends it to the ledger. Only one
// submission may be outstanding. The accepted bid enters the list through
// the same merge as live events, so it shows once.
func (v *View) Submit(ctx context.Context, raw string) (models.SubmitResult, error) {
	if v.closed() {
		return models.SubmitResult{}, biddingerrors.ErrClosed
	}
	if !v.submitting.CompareAndSwap(false, true) {
		return models.SubmitResult{}, fmt.Errorf("auctionview: %w", biddingerrors.ErrSubmissionInFlight)
	}
	defer v.submitting.Store(false)

	amount, err := validator.Check(raw, v.Item(), v.tracker)
	if err != nil {
		return models.SubmitResult{}, err
	}

	key, err := v.recon.AddPending(v.userID, amount)
	if err != nil {
		return models.SubmitResult{}, err
	}

	res, err := v.validator.Send(ctx, v.auctionID, amount, v.tracker)
	if err != nil {
		_ = v.recon.DropPending(key)
		v.softError(err)
		return models.SubmitResult{}, err
	}

	if res.Rejected != nil {
		_ = v.recon.DropPending(key)
		if res.Rejected.Reason == biddingerrors.ReasonInsufficientAmount {
			// our projection is behind the ledger
			v.goRefresh()
		}
		return res, nil
	}

	v.applyLive(res.Accepted.Bid)
	_ = v.recon.DropPending(key)
	// the ledger pins the item for its bidders
	v.goRefresh()
	return res, nil
}

// LoadMore fetches the page below the oldest held bid. Called before the
// first page has landed it waits for that page. Holes left by a failed resync
// are filled first. It returns ErrLoadInFlight while another older page is
// outstanding and does nothing once history is exhausted.
func (v *View) LoadMore(ctx context.Context) error {
	if v.closed() {
		return biddingerrors.ErrClosed
	}
	if err := v.recon.WaitLoaded(ctx); err != nil {
		return err
	}
	if err := v.fillGaps(ctx); err != nil {
		return err
	}

	snap, err := v.recon.Snapshot()
	if err != nil {
		return err
	}
	if snap.Loaded && !snap.HasMore {
		return nil
	}

	ticket, err := v.recon.BeginFetch(reconciler.FetchOlder)
	if err != nil {
		return err
	}
	return v.fetch(ctx, ticket)
}

// TogglePin flips the user's pin on this auction
func (v *View) TogglePin(ctx context.Context) (bool, error) {
	if v.closed() {
		return false, biddingerrors.ErrClosed
	}
	pinned, err := v.pins.Toggle(ctx, v.auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrToggleInFlight) {
		v.softError(err)
	}
	return pinned, err
}

// Refresh reloads the item and the newest page, then fetches any bids
// missing between that page and what was already held. On failure the last
// good state is kept.
func (v *View) Refresh(ctx context.Context) error {
	if v.closed() {
		return biddingerrors.ErrClosed
	}
	if err := v.refreshItem(ctx); err != nil {
		return err
	}
	return v.fetchHead(ctx)
}

// Reload drops everything held and starts again from the newest page.
// Fetches still in flight are discarded.
func (v *View) Reload(ctx context.Context) error {
	if v.closed() {
		return biddingerrors.ErrClosed
	}
	if err := v.recon.Reset(); err != nil {
		return err
	}
	return v.Refresh(ctx)
}

// Close stops the countdown, ends the subscription and discards fetches
// still in flight. It is safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.spawnMu.Lock()
		v.stopping = true
		v.spawnMu.Unlock()

		v.cancel()
		v.recon.Close()

		v.mu.Lock()
		stream := v.stream
		v.mu.Unlock()
		if stream != nil {
			_ = stream.Close()
		}

		v.closeErr = v.group.Wait()
		utils.Info("Auction view closed", map[string]any{"auction_item": v.auctionID, "user": v.userID})
	})
	return v.closeErr
}

func (v *View) refreshItem(ctx context.Context) error {
	item, err := v.ledger.GetItem(ctx, v.auctionID)
	if err != nil {
		err = fmt.Errorf("auctionview: failed to refresh auction %s: %w", v.auctionID, err)
		v.softError(err)
		return err
	}

	v.mu.Lock()
	if item.LastSequence < v.item.LastSequence {
		// a live bid overtook this fetch
		item.HighestBid = v.item.HighestBid
		item.HighestBidUser = v.item.HighestBidUser
		item.LastSequence = v.item.LastSequence
	}
	v.item = item
	v.mu.Unlock()

	v.pins.Apply(item)
	v.tracker.SetDeadline(item.EndTime)
	return nil
}

func (v *View) goRefresh() {
	v.spawn(func() { _ = v.refreshItem(v.ctx) })
}

// spawn runs fn in the view's group unless Close has begun
func (v *View) spawn(fn func()) {
	v.spawnMu.Lock()
	defer v.spawnMu.Unlock()
	if v.stopping {
		return
	}
	v.group.Go(func() error {
		fn()
		return nil
	})
}

func (v *View) fetchHead(ctx context.Context) error {
	ticket, err := v.recon.BeginFetch(reconciler.FetchHead)
	if err != nil {
		return err
	}
	if err := v.fetch(ctx, ticket); err != nil {
		return err
	}
	return v.fillGaps(ctx)
}

// fillGaps walks down from the newest hole in the held sequences until they
// are contiguous again. A page that closes nothing ends the walk.
func (v *View) fillGaps(ctx context.Context) error {
	var last models.HistoryCursor
	for {
		ticket, ok, err := v.recon.BeginGapFetch()
		if err != nil || !ok {
			return err
		}
		if ticket.Cursor == last {
			return nil
		}
		last = ticket.Cursor
		if err := v.fetch(ctx, ticket); err != nil {
			return err
		}
	}
}

func (v *View) fetch(ctx context.Context, ticket reconciler.Ticket) error {
	page, err := v.ledger.FetchHistory(ctx, v.auctionID, ticket.Cursor, v.opts.PageSize)
	if err != nil {
		_ = v.recon.FailFetch(ticket, err)
		if v.closed() {
			return biddingerrors.ErrClosed
		}
		err = fmt.Errorf("auctionview: failed to fetch history %s of %s: %w", ticket.Cursor, v.auctionID, err)
		v.softError(err)
		return err
	}

	if _, err := v.recon.ApplyPage(ticket, page); err != nil {
		return err
	}
	if ticket.Kind == reconciler.FetchHead && len(page) > 0 {
		v.advanceItem(page[0])
	}
	return nil
}

func (v *View) applyLive(bid models.Bid) {
	if _, err := v.recon.ApplyLive(bid); err != nil {
		return
	}
	v.advanceItem(bid)
}

func (v *View) advanceItem(bid models.Bid) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.item = v.item.WithBid(bid)
}

// pump feeds live events to the reconciler and resubscribes when the stream drops
func (v *View) pump(ctx context.Context, stream models.BidStream) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case bid, ok := <-stream.Events():
			if ok {
				v.applyLive(bid)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}

			cause := stream.Err()
			if !errors.Is(cause, biddingerrors.ErrSubscriptionLost) {
				cause = fmt.Errorf("auctionview: %w - %v", biddingerrors.ErrSubscriptionLost, cause)
			}
			v.softError(cause)
			if v.opts.DisableReconnect {
				return nil
			}

			stream = v.resubscribe(ctx)
			if stream == nil {
				return nil
			}
			v.mu.Lock()
			v.stream = stream
			v.mu.Unlock()
			if ctx.Err() != nil {
				_ = stream.Close()
				return nil
			}

			// bids accepted while we were away, down to the last one held
			v.spawn(func() { _ = v.fetchHead(ctx) })
		}
	}
}

// resubscribe retries Subscribe with exponential backoff. It returns nil when
// ctx ends or the retries run out.
func (v *View) resubscribe(ctx context.Context) models.BidStream {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.opts.ReconnectInitial
	b.MaxElapsedTime = v.opts.ReconnectMaxElapsed

	var stream models.BidStream
	op := func() error {
		s, err := v.ledger.Subscribe(ctx, v.auctionID)
		if err != nil {
			if errors.Is(err, biddingerrors.ErrItemNotFound) {
				return backoff.Permanent(err)
			}
			return err
		}
		stream = s
		return nil
	}
	notify := func(err error, next time.Duration) {
		utils.Warn("Resubscribe failed, retrying", map[string]any{
			"auction_item": v.auctionID,
			"error":        err.Error(),
			"retry_in":     next.String(),
		})
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		if ctx.Err() == nil {
			v.softError(fmt.Errorf("auctionview: gave up resubscribing to %s: %w", v.auctionID, err))
		}
		return nil
	}
	utils.Info("Resubscribed to auction", map[string]any{"auction_item": v.auctionID, "user": v.userID})
	return stream
}

// softError reports err without blocking. The oldest report is dropped when nobody reads.
func (v *View) softError(err error) {
	for {
		select {
		case v.errs <- err:
			return
		default:
		}
		select {
		case <-v.errs:
		default:
		}
	}
}
