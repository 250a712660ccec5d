package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrItemNotFound     = errors.New("item not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrNoBids           = errors.New("no bids found for item")
	ErrUserNoBids       = errors.New("user has not placed any bids")
	ErrSequenceConflict = errors.New("bid sequence out of order")
)

// business logic errors
var (
	ErrInvalidBid      = errors.New("invalid bid")
	ErrInvalidItem     = errors.New("invalid auction item")
	ErrBidTooLow       = errors.New("bid amount too low")
	ErrAuctionClosed   = errors.New("auction closed")
	ErrUnauthenticated = errors.New("unauthenticated")
)

// client-side errors
var (
	ErrInvalidAmount      = errors.New("invalid bid amount")
	ErrSubmissionInFlight = errors.New("a bid submission is already in flight")
	ErrLoadInFlight       = errors.New("an older history page is already being fetched")
	ErrToggleInFlight     = errors.New("a pin toggle is already in flight")
	ErrTransport          = errors.New("transport failure")
	ErrSubscriptionLost   = errors.New("live subscription lost")
	ErrSlowSubscriber     = errors.New("subscriber too slow, dropped")
	ErrClosed             = errors.New("view closed")
)

// RejectReason is the ledger's verdict on a refused submission.
type RejectReason string

const (
	ReasonInsufficientAmount RejectReason = "InsufficientAmount"
	ReasonAuctionClosed      RejectReason = "AuctionClosed"
	ReasonUnauthenticated    RejectReason = "Unauthenticated"
	ReasonNotFound           RejectReason = "NotFound"
)

// Err maps a reject reason onto its sentinel so callers can use errors.Is.
func (r RejectReason) Err() error {
	switch r {
	case ReasonInsufficientAmount:
		return ErrBidTooLow
	case ReasonAuctionClosed:
		return ErrAuctionClosed
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonNotFound:
		return ErrItemNotFound
	default:
		return ErrInvalidBid
	}
}

// Valid reports whether r is one of the known reasons.
func (r RejectReason) Valid() bool {
	switch r {
	case ReasonInsufficientAmount, ReasonAuctionClosed, ReasonUnauthenticated, ReasonNotFound:
		return true
	}
	return false
}
