package validator

import (
	"context"
	"fmt"
	"strings"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/lifecycle"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=validator.go -destination=mock_validator.go -package=validator

// Submitter is the part of the ledger the validator talks to
type Submitter interface {
	SubmitBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.SubmitResult, error)
}

// Gate is the local lifecycle state consulted before a submission
type Gate interface {
	State() lifecycle.State
	MarkClosed()
}

// Validator runs the local pre-submission checks and forwards passing bids to the ledger
type Validator struct {
	ledger Submitter
}

func New(ledger Submitter) *Validator {
	return &Validator{ledger: ledger}
}

// ParseAmount parses a user-entered amount. It must be a well-formed, positive decimal.
func ParseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("validator: %w - empty amount", biddingerrors.ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("validator: %w - %q is not a number", biddingerrors.ErrInvalidAmount, raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("validator: %w - %s is not positive", biddingerrors.ErrInvalidAmount, amount)
	}
	return amount, nil
}

// Check applies the local rules in order: well-formed positive amount, at
// least the item's minimum next bid, auction locally open. No network call
// is made.
func Check(raw string, item models.AuctionItem, gate Gate) (decimal.Decimal, error) {
	amount, err := ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}

	minimum := item.MinimumNextBid()
	if amount.LessThan(minimum) {
		return decimal.Decimal{}, fmt.Errorf("validator: %w - %s is below the minimum of %s", biddingerrors.ErrBidTooLow, amount, minimum)
	}

	if gate != nil && gate.State() != lifecycle.Open {
		return decimal.Decimal{}, fmt.Errorf("validator: %w - auction %s ended locally", biddingerrors.ErrAuctionClosed, item.ID)
	}
	return amount, nil
}

// Send submits amount without local checks. A Rejected result is returned as
// is and never retried; an AuctionClosed rejection also closes gate.
func (v *Validator) Send(ctx context.Context, auctionID string, amount decimal.Decimal, gate Gate) (models.SubmitResult, error) {
	res, err := v.ledger.SubmitBid(ctx, auctionID, amount)
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("validator: failed to submit bid on %s: %w", auctionID, err)
	}

	if res.Rejected != nil {
		utils.Info("Bid rejected by ledger", map[string]any{
			"auction_item": auctionID,
			"amount":       amount.String(),
			"reason":       string(res.Rejected.Reason),
		})
		if res.Rejected.Reason == biddingerrors.ReasonAuctionClosed && gate != nil {
			gate.MarkClosed()
		}
	}
	return res, nil
}

// Submit is Check followed by Send
func (v *Validator) Submit(ctx context.Context, raw string, item models.AuctionItem, gate Gate) (models.SubmitResult, error) {
	amount, err := Check(raw, item, gate)
	if err != nil {
		return models.SubmitResult{}, err
	}
	return v.Send(ctx, item.ID, amount, gate)
}
