package repository

import (
	"auction-sync/internal/biddingerrors"
	model "auction-sync/internal/models"
	"fmt"
	"sort"
	"strings"
	"sync"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// AuctionDB defines the ledger's storage interface for the auction system
type AuctionDB interface {
	GetUser(userID string) (model.User, error)
	CreateItem(item model.AuctionItem) error
	GetItem(itemID string) (model.AuctionItem, error)
	ListItems(titleFilter string) ([]model.AuctionItem, error)
	RecordBidForItem(bid model.Bid) (model.AuctionItem, error)
	GetBidsByItem(itemID string) ([]model.Bid, error)
	GetBidPage(itemID string, beforeSeq int64, offset, limit int) ([]model.Bid, error)
	GetWinningBid(itemID string) (model.Bid, error)
	GetItemsByUser(userID string) ([]model.AuctionItem, error)
	SetPinned(itemID, userID string, pinned bool) error
	GetPinnedItems(userID string) ([]model.AuctionItem, error)
	AddInboxMessage(msg model.InboxMessage) error
	GetInbox(userID string) ([]model.InboxMessage, error)
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB
type MemoryRepo struct {
	mu        sync.RWMutex
	users     map[string]model.User           // key: userID -> value: user
	items     map[string]model.AuctionItem    // key: itemID -> value: item
	itemOrder []string                        // listing order
	bids      map[string][]model.Bid          // key: itemID -> value: bids, ascending by sequence
	userItems map[string][]string             // key: userID -> value: list of itemIDs user has bid on
	pins      map[string]map[string]struct{}  // key: itemID -> value: set of userIDs
	inbox     map[string][]model.InboxMessage // key: userID -> value: messages, oldest first
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		users:     make(map[string]model.User),
		items:     make(map[string]model.AuctionItem),
		bids:      make(map[string][]model.Bid),
		userItems: make(map[string][]string),
		pins:      make(map[string]map[string]struct{}),
		inbox:     make(map[string][]model.InboxMessage),
	}
}

// AddUser registers a user. Bids and pins from unknown users are refused by the ledger.
func (r *MemoryRepo) AddUser(user model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.UserID] = user
}

// AddItem adds an item to the repository, replacing any previous copy. Intended for seeding and tests.
func (r *MemoryRepo) AddItem(item model.AuctionItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		r.itemOrder = append(r.itemOrder, item.ID)
	}
	r.items[item.ID] = item
}

// GetUser returns a registered user
func (r *MemoryRepo) GetUser(userID string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[userID]
	if !ok {
		return model.User{}, fmt.Errorf("get user %s: %w", userID, biddingerrors.ErrUserNotFound)
	}
	return user, nil
}

// CreateItem stores a new listing
func (r *MemoryRepo) CreateItem(item model.AuctionItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if item.ID == "" {
		return fmt.Errorf("create item: %w - empty item ID", biddingerrors.ErrInvalidItem)
	}
	if _, ok := r.items[item.ID]; ok {
		return fmt.Errorf("create item %s: %w - duplicate item ID", item.ID, biddingerrors.ErrInvalidItem)
	}
	r.items[item.ID] = item
	r.itemOrder = append(r.itemOrder, item.ID)
	return nil
}

// GetItem returns an item with its pinned-by set materialized
func (r *MemoryRepo) GetItem(itemID string) (model.AuctionItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return model.AuctionItem{}, fmt.Errorf("get item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return r.withPins(item), nil
}

// ListItems returns items whose title contains titleFilter, case-insensitively
func (r *MemoryRepo) ListItems(titleFilter string) ([]model.AuctionItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	needle := strings.ToLower(titleFilter)
	items := make([]model.AuctionItem, 0, len(r.itemOrder))
	for _, id := range r.itemOrder {
		item := r.items[id]
		if needle != "" && !strings.Contains(strings.ToLower(item.Title), needle) {
			continue
		}
		items = append(items, r.withPins(item))
	}
	return items, nil
}

// RecordBidForItem appends an accepted bid and moves the item's highest bid
// to it. The bid's sequence must directly follow the item's last sequence.
// It returns the item as it was before the bid.
func (r *MemoryRepo) RecordBidForItem(bid model.Bid) (model.AuctionItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[bid.AuctionItem]
	if !ok {
		return model.AuctionItem{}, fmt.Errorf("record bid for item %s: %w", bid.AuctionItem, biddingerrors.ErrItemNotFound)
	}
	if bid.Sequence != item.LastSequence+1 {
		return model.AuctionItem{}, fmt.Errorf("record bid for item %s: %w - got %d after %d",
			bid.AuctionItem, biddingerrors.ErrSequenceConflict, bid.Sequence, item.LastSequence)
	}

	r.bids[bid.AuctionItem] = append(r.bids[bid.AuctionItem], bid)
	r.items[bid.AuctionItem] = item.WithBid(bid)

	for _, id := range r.userItems[bid.Bidder] {
		if id == bid.AuctionItem {
			return item, nil
		}
	}
	r.userItems[bid.Bidder] = append(r.userItems[bid.Bidder], bid.AuctionItem)

	return item, nil
}

// GetBidsByItem returns all bids for an item, ascending by sequence
func (r *MemoryRepo) GetBidsByItem(itemID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.items[itemID]; !ok {
		return nil, fmt.Errorf("get bids for item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	return append([]model.Bid{}, r.bids[itemID]...), nil
}

// GetBidPage returns up to limit bids in descending sequence order. Only bids
// below beforeSeq are considered when it is positive; offset skips that many
// of the remaining newest bids.
func (r *MemoryRepo) GetBidPage(itemID string, beforeSeq int64, offset, limit int) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.items[itemID]; !ok {
		return nil, fmt.Errorf("get bid page for item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}
	if offset < 0 || limit <= 0 {
		return nil, fmt.Errorf("get bid page for item %s: %w - offset %d limit %d", itemID, biddingerrors.ErrInvalidBid, offset, limit)
	}

	bids := r.bids[itemID]
	// sequences are 1..n in slice order, so index = sequence-1
	top := len(bids)
	if beforeSeq > 0 && int(beforeSeq-1) < top {
		top = int(beforeSeq - 1)
	}
	top -= offset

	page := make([]model.Bid, 0, limit)
	for i := top - 1; i >= 0 && len(page) < limit; i-- {
		page = append(page, bids[i])
	}
	return page, nil
}

// GetWinningBid returns the accepted bid with the greatest sequence
func (r *MemoryRepo) GetWinningBid(itemID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bids, ok := r.bids[itemID]
	if !ok || len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for item %s: %w", itemID, biddingerrors.ErrNoBids)
	}
	return bids[len(bids)-1], nil
}

// GetItemsByUser returns all items a user has bid on
func (r *MemoryRepo) GetItemsByUser(userID string) ([]model.AuctionItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	itemIDs, ok := r.userItems[userID]
	if !ok || len(itemIDs) == 0 {
		return nil, fmt.Errorf("get items for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	items := make([]model.AuctionItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if item, exists := r.items[id]; exists {
			items = append(items, r.withPins(item))
		}
	}
	return items, nil
}

// SetPinned adds or removes userID from the item's pinned-by set. Both directions are idempotent.
func (r *MemoryRepo) SetPinned(itemID, userID string, pinned bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[itemID]; !ok {
		return fmt.Errorf("set pinned for item %s: %w", itemID, biddingerrors.ErrItemNotFound)
	}

	set := r.pins[itemID]
	if pinned {
		if set == nil {
			set = make(map[string]struct{})
			r.pins[itemID] = set
		}
		set[userID] = struct{}{}
		return nil
	}
	delete(set, userID)
	return nil
}

// GetPinnedItems returns every item userID has pinned, in listing order
func (r *MemoryRepo) GetPinnedItems(userID string) ([]model.AuctionItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []model.AuctionItem{}
	for _, id := range r.itemOrder {
		if _, ok := r.pins[id][userID]; ok {
			items = append(items, r.withPins(r.items[id]))
		}
	}
	return items, nil
}

// AddInboxMessage stores a notification for msg.UserID
func (r *MemoryRepo) AddInboxMessage(msg model.InboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.UserID == "" {
		return fmt.Errorf("add inbox message: %w", biddingerrors.ErrUserNotFound)
	}
	r.inbox[msg.UserID] = append(r.inbox[msg.UserID], msg)
	return nil
}

// GetInbox returns a user's notifications, oldest first
func (r *MemoryRepo) GetInbox(userID string) ([]model.InboxMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]model.InboxMessage{}, r.inbox[userID]...), nil
}

// withPins copies item and fills PinnedBy. Callers must hold r.mu.
func (r *MemoryRepo) withPins(item model.AuctionItem) model.AuctionItem {
	set := r.pins[item.ID]
	pinned := make([]string, 0, len(set))
	for id := range set {
		pinned = append(pinned, id)
	}
	sort.Strings(pinned)
	item.PinnedBy = pinned
	return item
}
