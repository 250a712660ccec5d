package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/broker"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/utils"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
)

const (
	DefaultPageSize         = 5
	DefaultMaxPageSize      = 100
	DefaultSubscriberBuffer = 64
	DefaultDuration         = 7 * 24 * time.Hour
)

// Options tune a Ledger. Zero values fall back to the defaults above.
type Options struct {
	Clock            clock.Clock
	Metrics          *Metrics
	SubscriberBuffer int
	PageSize         int
	MaxPageSize      int
	DefaultDuration  time.Duration
}

// Ledger is the single authority for bids: it orders competing submissions
// per item, decides acceptance, and fans accepted bids out to subscribers.
type Ledger struct {
	repo    repository.AuctionDB
	broker  *broker.Broker
	clock   clock.Clock
	metrics *Metrics
	opts    Options

	locks sync.Map // key: itemID -> value: *sync.Mutex
}

// New creates a Ledger on top of repo
func New(repo repository.AuctionDB, opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.SubscriberBuffer <= 0 {
		opts.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.PageSize > opts.MaxPageSize {
		opts.PageSize = opts.MaxPageSize
	}
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = DefaultDuration
	}
	return &Ledger{
		repo:    repo,
		broker:  broker.New(opts.Metrics.Subscribers),
		clock:   opts.Clock,
		metrics: opts.Metrics,
		opts:    opts,
	}
}

// Clock returns the clock that decides auction closure
func (l *Ledger) Clock() clock.Clock {
	return l.clock
}

// Shutdown ends every live subscription
func (l *Ledger) Shutdown() {
	l.broker.Shutdown()
}

// SubscriberCount is the number of live subscriptions for itemID
func (l *Ledger) SubscriberCount(itemID string) int {
	return l.broker.Count(itemID)
}

func (l *Ledger) lockFor(itemID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(itemID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// SubmitBid decides a bid. Refusals come back as a Rejected result; the error
// return is reserved for storage failures and a cancelled ctx.
func (l *Ledger) SubmitBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (models.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return models.SubmitResult{}, err
	}

	if bidderID == "" {
		return l.reject(itemID, bidderID, biddingerrors.ReasonUnauthenticated), nil
	}
	if _, err := l.repo.GetUser(bidderID); err != nil {
		if errors.Is(err, biddingerrors.ErrUserNotFound) {
			return l.reject(itemID, bidderID, biddingerrors.ReasonUnauthenticated), nil
		}
		return models.SubmitResult{}, fmt.Errorf("ledger: failed to look up bidder %s: %w", bidderID, err)
	}

	bid, prev, reason, err := l.commit(itemID, bidderID, amount)
	if err != nil {
		return models.SubmitResult{}, err
	}
	if reason != "" {
		return l.reject(itemID, bidderID, reason), nil
	}

	l.metrics.BidsAccepted.Inc()
	utils.Info("Bid accepted", map[string]any{
		"auction_item": itemID,
		"bidder":       bidderID,
		"amount":       amount.String(),
		"sequence":     bid.Sequence,
	})
	l.afterAccept(prev, bid)

	return models.AcceptedResult(bid), nil
}

// commit runs the acceptance checks and records the bid under the item's lock.
// The accepted bid is published before the lock is released so subscribers
// observe sequence order.
func (l *Ledger) commit(itemID, bidderID string, amount decimal.Decimal) (models.Bid, models.AuctionItem, biddingerrors.RejectReason, error) {
	mu := l.lockFor(itemID)
	mu.Lock()
	defer mu.Unlock()

	item, err := l.repo.GetItem(itemID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrItemNotFound) {
			return models.Bid{}, models.AuctionItem{}, biddingerrors.ReasonNotFound, nil
		}
		return models.Bid{}, models.AuctionItem{}, "", fmt.Errorf("ledger: failed to load item %s: %w", itemID, err)
	}

	now := l.clock.Now()
	if !now.Before(item.EndTime) {
		return models.Bid{}, models.AuctionItem{}, biddingerrors.ReasonAuctionClosed, nil
	}
	if !amount.IsPositive() || amount.LessThan(item.MinimumNextBid()) {
		return models.Bid{}, models.AuctionItem{}, biddingerrors.ReasonInsufficientAmount, nil
	}

	bid := models.Bid{
		ID:          utils.GenerateID(),
		Bidder:      bidderID,
		AuctionItem: itemID,
		Amount:      amount,
		Sequence:    item.LastSequence + 1,
		CreatedAt:   now.UTC(),
	}
	prev, err := l.repo.RecordBidForItem(bid)
	if err != nil {
		return models.Bid{}, models.AuctionItem{}, "", fmt.Errorf("ledger: failed to record bid for item %s by user %s: %w", itemID, bidderID, err)
	}

	l.broker.Publish(bid)
	return bid, prev, "", nil
}

func (l *Ledger) reject(itemID, bidderID string, reason biddingerrors.RejectReason) models.SubmitResult {
	l.metrics.rejected(reason)
	utils.Info("Bid rejected", map[string]any{
		"auction_item": itemID,
		"bidder":       bidderID,
		"reason":       string(reason),
	})
	return models.RejectedResult(reason)
}

// afterAccept pins the item for the bidder and tells the previous leader they
// were outbid. Failures here never undo an accepted bid.
func (l *Ledger) afterAccept(prev models.AuctionItem, bid models.Bid) {
	if err := l.repo.SetPinned(bid.AuctionItem, bid.Bidder, true); err != nil {
		utils.Warn("Failed to auto-pin item for bidder", map[string]any{
			"auction_item": bid.AuctionItem,
			"bidder":       bid.Bidder,
			"error":        err.Error(),
		})
	}

	if prev.HighestBidUser == "" || prev.HighestBidUser == bid.Bidder {
		return
	}
	msg := models.InboxMessage{
		ID:        utils.GenerateID(),
		UserID:    prev.HighestBidUser,
		Content:   fmt.Sprintf("You were outbid on %s!", prev.Title),
		Redirect:  "/auction-items/" + prev.ID,
		CreatedAt: l.clock.Now().UTC(),
	}
	if err := l.repo.AddInboxMessage(msg); err != nil {
		utils.Warn("Failed to deliver outbid message", map[string]any{
			"auction_item": bid.AuctionItem,
			"user":         prev.HighestBidUser,
			"error":        err.Error(),
		})
	}
}

// Subscribe opens a live feed of accepted bids for itemID
func (l *Ledger) Subscribe(ctx context.Context, itemID string) (models.BidStream, error) {
	if _, err := l.repo.GetItem(itemID); err != nil {
		return nil, fmt.Errorf("ledger: failed to subscribe to item %s: %w", itemID, err)
	}
	sub, err := l.broker.Subscribe(ctx, itemID, l.opts.SubscriberBuffer)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to subscribe to item %s: %w", itemID, err)
	}
	utils.Debug("Subscriber joined", map[string]any{"auction_item": itemID, "subscribers": l.broker.Count(itemID)})
	return sub, nil
}

// FetchHistory returns page (1-based) of accepted bids, newest first. A page
// past the end is empty.
func (l *Ledger) FetchHistory(ctx context.Context, itemID string, page, pageSize int) ([]models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	size := l.pageSize(pageSize)

	bids, err := l.repo.GetBidPage(itemID, 0, (page-1)*size, size)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to fetch history page %d for item %s: %w", page, itemID, err)
	}
	return bids, nil
}

// FetchHistoryBefore returns up to pageSize bids with sequence below beforeSeq,
// newest first. The cursor is stable while new bids arrive.
func (l *Ledger) FetchHistoryBefore(ctx context.Context, itemID string, beforeSeq int64, pageSize int) ([]models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if beforeSeq <= 0 {
		return nil, fmt.Errorf("ledger: %w - history cursor must be positive, got %d", biddingerrors.ErrInvalidBid, beforeSeq)
	}

	bids, err := l.repo.GetBidPage(itemID, beforeSeq, 0, l.pageSize(pageSize))
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to fetch history before %d for item %s: %w", beforeSeq, itemID, err)
	}
	return bids, nil
}

func (l *Ledger) pageSize(requested int) int {
	switch {
	case requested <= 0:
		return l.opts.PageSize
	case requested > l.opts.MaxPageSize:
		return l.opts.MaxPageSize
	default:
		return requested
	}
}

// CreateItem lists a new auction for sellerID
func (l *Ledger) CreateItem(ctx context.Context, sellerID string, in models.NewAuctionItem) (models.AuctionItem, error) {
	if err := ctx.Err(); err != nil {
		return models.AuctionItem{}, err
	}
	if _, err := l.repo.GetUser(sellerID); err != nil {
		return models.AuctionItem{}, fmt.Errorf("ledger: %w - unknown seller %s", biddingerrors.ErrUnauthenticated, sellerID)
	}
	if strings.TrimSpace(in.Title) == "" {
		return models.AuctionItem{}, fmt.Errorf("ledger: %w - empty title", biddingerrors.ErrInvalidItem)
	}
	if in.StartingPrice.IsNegative() {
		return models.AuctionItem{}, fmt.Errorf("ledger: %w - negative starting price", biddingerrors.ErrInvalidItem)
	}
	if !in.MinBidIncrement.IsPositive() {
		return models.AuctionItem{}, fmt.Errorf("ledger: %w - minimum increment must be positive", biddingerrors.ErrInvalidItem)
	}

	duration := in.Duration
	if duration <= 0 {
		duration = l.opts.DefaultDuration
	}
	now := l.clock.Now().UTC()
	item := models.AuctionItem{
		ID:              utils.GenerateID(),
		SellerID:        sellerID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		StartingPrice:   in.StartingPrice,
		MinBidIncrement: in.MinBidIncrement,
		HighestBid:      in.StartingPrice,
		EndTime:         now.Add(duration),
		CreatedAt:       now,
		PinnedBy:        []string{},
	}
	if err := l.repo.CreateItem(item); err != nil {
		return models.AuctionItem{}, fmt.Errorf("ledger: failed to create item: %w", err)
	}
	utils.Info("Auction item created", map[string]any{"auction_item": item.ID, "seller": sellerID, "end_time": item.EndTime})
	return item, nil
}

// GetItem returns the authoritative state of an item
func (l *Ledger) GetItem(ctx context.Context, itemID string) (models.AuctionItem, error) {
	if err := ctx.Err(); err != nil {
		return models.AuctionItem{}, err
	}
	item, err := l.repo.GetItem(itemID)
	if err != nil {
		return models.AuctionItem{}, fmt.Errorf("ledger: failed to get item %s: %w", itemID, err)
	}
	return item, nil
}

// ListItems returns items whose title contains titleFilter
func (l *Ledger) ListItems(ctx context.Context, titleFilter string) ([]models.AuctionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := l.repo.ListItems(titleFilter)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to list items: %w", err)
	}
	return items, nil
}

// WinningBid returns the accepted bid with the greatest sequence
func (l *Ledger) WinningBid(ctx context.Context, itemID string) (models.Bid, error) {
	if err := ctx.Err(); err != nil {
		return models.Bid{}, err
	}
	if itemID == "" {
		return models.Bid{}, fmt.Errorf("ledger: %w - empty item ID", biddingerrors.ErrInvalidBid)
	}
	bid, err := l.repo.GetWinningBid(itemID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("ledger: failed to get winning bid for item %s: %w", itemID, err)
	}
	return bid, nil
}

// ItemsByUser returns the items userID has bid on
func (l *Ledger) ItemsByUser(ctx context.Context, userID string) ([]models.AuctionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("ledger: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}
	items, err := l.repo.GetItemsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to get items for user %s: %w", userID, err)
	}
	return items, nil
}

// Pin adds itemID to userID's pinned set. Pinning twice is a no-op.
func (l *Ledger) Pin(ctx context.Context, itemID, userID string) error {
	return l.setPinned(ctx, itemID, userID, true)
}

// Unpin removes itemID from userID's pinned set. Unpinning twice is a no-op.
func (l *Ledger) Unpin(ctx context.Context, itemID, userID string) error {
	return l.setPinned(ctx, itemID, userID, false)
}

func (l *Ledger) setPinned(ctx context.Context, itemID, userID string, pinned bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.repo.GetUser(userID); err != nil {
		return fmt.Errorf("ledger: %w - unknown user %q", biddingerrors.ErrUnauthenticated, userID)
	}
	if err := l.repo.SetPinned(itemID, userID, pinned); err != nil {
		return fmt.Errorf("ledger: failed to set pinned=%t for item %s: %w", pinned, itemID, err)
	}
	return nil
}

// PinnedItems returns the items userID has pinned
func (l *Ledger) PinnedItems(ctx context.Context, userID string) ([]models.AuctionItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := l.repo.GetPinnedItems(userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to get pinned items for user %s: %w", userID, err)
	}
	return items, nil
}

// GetUser returns a registered user
func (l *Ledger) GetUser(ctx context.Context, userID string) (models.User, error) {
	if err := ctx.Err(); err != nil {
		return models.User{}, err
	}
	user, err := l.repo.GetUser(userID)
	if err != nil {
		return models.User{}, fmt.Errorf("ledger: failed to get user %s: %w", userID, err)
	}
	return user, nil
}

// Inbox returns userID's notifications, oldest first
func (l *Ledger) Inbox(ctx context.Context, userID string) ([]models.InboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msgs, err := l.repo.GetInbox(userID)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to get inbox for user %s: %w", userID, err)
	}
	return msgs, nil
}
