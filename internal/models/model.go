package models

import (
	"fmt"
	"strings"
	"time"

	"auction-sync/internal/biddingerrors"

	"github.com/shopspring/decimal"
)

// User represents a participant in the auction
type User struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// DisplayName renders "First L." and falls back to the id when no name is known.
func (u User) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first == "" && last == "":
		return u.UserID
	case last == "":
		return first
	default:
		return fmt.Sprintf("%s %s.", first, strings.ToUpper(last[:1]))
	}
}

// AuctionItem is the ledger-owned auction listing. Clients only ever hold
// read-only projections of it.
type AuctionItem struct {
	ID              string          `json:"id"`
	SellerID        string          `json:"seller"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	MinBidIncrement decimal.Decimal `json:"min_bid_increment"`
	HighestBid      decimal.Decimal `json:"highest_bid"`
	HighestBidUser  string          `json:"highest_bid_user"`
	LastSequence    int64           `json:"last_sequence"`
	EndTime         time.Time       `json:"end_time"`
	CreatedAt       time.Time       `json:"created_at"`
	PinnedBy        []string        `json:"pinned_by"`
}

// MinimumNextBid is the smallest amount the ledger will accept next. Before the
// first bid the starting price acts as the floor.
func (i AuctionItem) MinimumNextBid() decimal.Decimal {
	if i.LastSequence == 0 {
		return i.StartingPrice.Add(i.MinBidIncrement)
	}
	return i.HighestBid.Add(i.MinBidIncrement)
}

// WithBid advances the projection with b if b is newer than what it reflects.
func (i AuctionItem) WithBid(b Bid) AuctionItem {
	if b.Sequence <= i.LastSequence {
		return i
	}
	i.HighestBid = b.Amount
	i.HighestBidUser = b.Bidder
	i.LastSequence = b.Sequence
	return i
}

// IsPinnedBy reports whether userID is in the authoritative pinned-by set.
func (i AuctionItem) IsPinnedBy(userID string) bool {
	for _, id := range i.PinnedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// NewAuctionItem carries the fields a seller supplies at listing time.
type NewAuctionItem struct {
	SellerID        string
	Title           string
	Description     string
	StartingPrice   decimal.Decimal
	MinBidIncrement decimal.Decimal
	Duration        time.Duration
}

// Bid is an accepted bid. Sequence is assigned by the ledger and never changes.
type Bid struct {
	ID          string          `json:"id"`
	Bidder      string          `json:"bidder"`
	AuctionItem string          `json:"auction_item"`
	Amount      decimal.Decimal `json:"bid_amount"`
	Sequence    int64           `json:"sequence"`
	CreatedAt   time.Time       `json:"created_at"`
}

// InboxMessage is a notification left for a user, e.g. when they were outbid.
type InboxMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Redirect  string    `json:"redirect"`
	CreatedAt time.Time `json:"created_at"`
}

// Accepted is the ledger's acknowledgement of a submission.
type Accepted struct {
	Bid Bid
}

// Rejected carries the ledger's reason for refusing a submission.
type Rejected struct {
	Reason biddingerrors.RejectReason
}

func (r Rejected) Error() string {
	return fmt.Sprintf("bid rejected: %s", r.Reason)
}

// Unwrap lets errors.Is match the reason's sentinel.
func (r Rejected) Unwrap() error {
	return r.Reason.Err()
}

// SubmitResult is exactly one of Accepted or Rejected.
type SubmitResult struct {
	Accepted *Accepted
	Rejected *Rejected
}

func AcceptedResult(b Bid) SubmitResult {
	return SubmitResult{Accepted: &Accepted{Bid: b}}
}

func RejectedResult(reason biddingerrors.RejectReason) SubmitResult {
	return SubmitResult{Rejected: &Rejected{Reason: reason}}
}

func (r SubmitResult) IsAccepted() bool {
	return r.Accepted != nil
}

// HistoryCursor selects a history page. A positive BeforeSequence takes
// precedence over Page.
type HistoryCursor struct {
	Page           int
	BeforeSequence int64
}

func (c HistoryCursor) String() string {
	if c.BeforeSequence > 0 {
		return fmt.Sprintf("before=%d", c.BeforeSequence)
	}
	return fmt.Sprintf("page=%d", c.Page)
}

// BidStream is a live feed of accepted bids for one auction, in ledger order.
// Events is closed when the stream ends; Err then explains why (nil after Close).
type BidStream interface {
	Events() <-chan Bid
	Err() error
	Close() error
}
