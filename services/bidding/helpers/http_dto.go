package helpers

import (
	"time"

	"auction-sync/internal/models"

	"github.com/shopspring/decimal"
)

// UserHeader carries the caller's identity. It stands in for the session cookie.
const UserHeader = "X-User-ID"

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionItem string          `json:"auction_item"`
	Amount      decimal.Decimal `json:"bid_amount"`
}

type BidResponse struct {
	ID          string          `json:"id"`
	Bidder      string          `json:"bidder"`
	AuctionItem string          `json:"auction_item"`
	Amount      decimal.Decimal `json:"bid_amount"`
	Sequence    int64           `json:"sequence"`
	CreatedAt   string          `json:"created_at"`
}

// HistoryResponse is the payload of a bid history page
type HistoryResponse struct {
	Results []BidResponse `json:"results"`
}

// BidMessage is one frame on the live websocket
type BidMessage struct {
	Bid BidResponse `json:"bid"`
}

type CreateItemRequest struct {
	Title           string          `json:"title" binding:"required"`
	Description     string          `json:"description"`
	StartingPrice   decimal.Decimal `json:"starting_price"`
	MinBidIncrement decimal.Decimal `json:"min_bid_increment"`
	Duration        string          `json:"duration"`
}

func ToBidResponse(b models.Bid) BidResponse {
	return BidResponse{
		ID:          b.ID,
		Bidder:      b.Bidder,
		AuctionItem: b.AuctionItem,
		Amount:      b.Amount,
		Sequence:    b.Sequence,
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToBidResponses(bids []models.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

// ToBid converts a wire bid back into the domain type
func (r BidResponse) ToBid() (models.Bid, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return models.Bid{}, err
	}
	return models.Bid{
		ID:          r.ID,
		Bidder:      r.Bidder,
		AuctionItem: r.AuctionItem,
		Amount:      r.Amount,
		Sequence:    r.Sequence,
		CreatedAt:   createdAt,
	}, nil
}

// HistoryQuery selects a history page. A positive Before takes precedence over Page.
type HistoryQuery struct {
	Page     int   `form:"page" binding:"gte=0"`
	PageSize int   `form:"page_size" binding:"gte=0"`
	Before   int64 `form:"before" binding:"gte=0"`
}
