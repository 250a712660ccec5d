package pins

import (
	"context"
	"fmt"
	"sync"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/utils"
)

//go:generate mockgen -source=pins.go -destination=mock_pins.go -package=pins

// PinAPI issues the ledger's idempotent pin and unpin requests for the signed-in user
type PinAPI interface {
	Pin(ctx context.Context, auctionID string) error
	Unpin(ctx context.Context, auctionID string) error
}

// Registry tracks which auctions are pinned. The pinned-by set from the
// latest item fetch is authoritative; the owner's toggles are shown
// optimistically until the ledger answers or a newer fetch replaces them.
type Registry struct {
	api    PinAPI
	userID string

	mu       sync.Mutex
	server   map[string]map[string]struct{} // key: auctionID -> value: pinned-by set
	override map[string]bool                // key: auctionID -> value: optimistic state for userID
	gen      map[string]uint64              // key: auctionID -> value: bumped by every toggle and refresh
	inFlight map[string]bool
}

// New creates a registry acting for userID
func New(api PinAPI, userID string) *Registry {
	return &Registry{
		api:      api,
		userID:   userID,
		server:   make(map[string]map[string]struct{}),
		override: make(map[string]bool),
		gen:      make(map[string]uint64),
		inFlight: make(map[string]bool),
	}
}

// IsPinned answers from the last known server state, plus the owner's
// unconfirmed toggle.
func (r *Registry) IsPinned(auctionID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPinnedLocked(auctionID, userID)
}

func (r *Registry) isPinnedLocked(auctionID, userID string) bool {
	if userID == r.userID {
		if v, ok := r.override[auctionID]; ok {
			return v
		}
	}
	_, ok := r.server[auctionID][userID]
	return ok
}

// Apply replaces the known state with item's pinned-by set and drops any
// optimistic toggle. The last fetched item wins.
func (r *Registry) Apply(item models.AuctionItem) {
	set := make(map[string]struct{}, len(item.PinnedBy))
	for _, id := range item.PinnedBy {
		set[id] = struct{}{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.server[item.ID] = set
	delete(r.override, item.ID)
	r.gen[item.ID]++
}

// Toggle flips the owner's pin optimistically and asks the ledger to match.
// On failure the previous state comes back unless a newer toggle or refresh
// already replaced it. It returns the state now shown.
func (r *Registry) Toggle(ctx context.Context, auctionID string) (bool, error) {
	r.mu.Lock()
	if r.inFlight[auctionID] {
		r.mu.Unlock()
		return r.IsPinned(auctionID, r.userID), fmt.Errorf("pins: %w - %s", biddingerrors.ErrToggleInFlight, auctionID)
	}
	prevOverride, hadOverride := r.override[auctionID]
	want := !r.isPinnedLocked(auctionID, r.userID)
	r.override[auctionID] = want
	r.gen[auctionID]++
	g := r.gen[auctionID]
	r.inFlight[auctionID] = true
	r.mu.Unlock()

	var err error
	if want {
		err = r.api.Pin(ctx, auctionID)
	} else {
		err = r.api.Unpin(ctx, auctionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, auctionID)

	if r.gen[auctionID] != g {
		// a refresh landed while the request was out; it is newer
		if err != nil {
			return r.isPinnedLocked(auctionID, r.userID), fmt.Errorf("pins: failed to toggle %s: %w", auctionID, err)
		}
		return r.isPinnedLocked(auctionID, r.userID), nil
	}

	if err != nil {
		if hadOverride {
			r.override[auctionID] = prevOverride
		} else {
			delete(r.override, auctionID)
		}
		utils.Warn("Pin toggle failed, reverted", map[string]any{
			"auction_item": auctionID,
			"user":         r.userID,
			"error":        err.Error(),
		})
		return r.isPinnedLocked(auctionID, r.userID), fmt.Errorf("pins: failed to toggle %s: %w", auctionID, err)
	}

	set := r.server[auctionID]
	if set == nil {
		set = make(map[string]struct{})
		r.server[auctionID] = set
	}
	if want {
		set[r.userID] = struct{}{}
	} else {
		delete(set, r.userID)
	}
	delete(r.override, auctionID)
	return want, nil
}
