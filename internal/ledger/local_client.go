package ledger

import (
	"context"

	"auction-sync/internal/models"

	"github.com/shopspring/decimal"
)

// LocalClient is an in-process ledger connection acting as UserID. It has the
// same method set as the HTTP client, so views can run against either.
type LocalClient struct {
	Ledger *Ledger
	UserID string
}

func NewLocalClient(l *Ledger, userID string) *LocalClient {
	return &LocalClient{Ledger: l, UserID: userID}
}

func (c *LocalClient) GetItem(ctx context.Context, auctionID string) (models.AuctionItem, error) {
	return c.Ledger.GetItem(ctx, auctionID)
}

func (c *LocalClient) SubmitBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.SubmitResult, error) {
	return c.Ledger.SubmitBid(ctx, auctionID, c.UserID, amount)
}

func (c *LocalClient) FetchHistory(ctx context.Context, auctionID string, cursor models.HistoryCursor, pageSize int) ([]models.Bid, error) {
	if cursor.BeforeSequence > 0 {
		return c.Ledger.FetchHistoryBefore(ctx, auctionID, cursor.BeforeSequence, pageSize)
	}
	return c.Ledger.FetchHistory(ctx, auctionID, cursor.Page, pageSize)
}

func (c *LocalClient) Subscribe(ctx context.Context, auctionID string) (models.BidStream, error) {
	return c.Ledger.Subscribe(ctx, auctionID)
}

func (c *LocalClient) Pin(ctx context.Context, auctionID string) error {
	return c.Ledger.Pin(ctx, auctionID, c.UserID)
}

func (c *LocalClient) Unpin(ctx context.Context, auctionID string) error {
	return c.Ledger.Unpin(ctx, auctionID, c.UserID)
}

func (c *LocalClient) GetUser(ctx context.Context, userID string) (models.User, error) {
	return c.Ledger.GetUser(ctx, userID)
}
