package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

type BiddingService interface {
	SubmitBid(ctx context.Context, itemID, bidderID string, amount decimal.Decimal) (models.SubmitResult, error)
	FetchHistory(ctx context.Context, itemID string, page, pageSize int) ([]models.Bid, error)
	FetchHistoryBefore(ctx context.Context, itemID string, beforeSeq int64, pageSize int) ([]models.Bid, error)
	WinningBid(ctx context.Context, itemID string) (models.Bid, error)
	ItemsByUser(ctx context.Context, userID string) ([]models.AuctionItem, error)
	Subscribe(ctx context.Context, itemID string) (models.BidStream, error)
}

type BiddingHandler struct {
	service  BiddingService
	upgrader websocket.Upgrader
}

func NewBiddingHandler(service BiddingService) *BiddingHandler {
	return &BiddingHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// RecordBidHandler handles POST /auction-items/:id/bids
func (h *BiddingHandler) RecordBidHandler(c *gin.Context) {
	itemID := c.Param("id")
	userID := c.GetHeader(helpers.UserHeader)

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "RecordBidHandler", err)
		return
	}
	if req.AuctionItem != "" && req.AuctionItem != itemID {
		helpers.HandleBindError(c, "RecordBidHandler",
			fmt.Errorf("%w - auction_item %q does not match path %q", biddingerrors.ErrInvalidBid, req.AuctionItem, itemID))
		return
	}

	res, err := h.service.SubmitBid(c.Request.Context(), itemID, userID, req.Amount)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Error("RecordBidHandler: failed to record bid", map[string]any{
			"handler": "RecordBidHandler",
			"item_id": itemID,
			"user_id": userID,
			"error":   err.Error(),
		})
		return
	}

	if !res.IsAccepted() {
		status, message := helpers.MapRejectionToHTTP(res.Rejected.Reason)
		utils.JSONRejection(c, status, res.Rejected.Reason, message)
		utils.Info("RecordBidHandler: bid rejected", map[string]any{
			"item_id": itemID,
			"user_id": userID,
			"reason":  string(res.Rejected.Reason),
		})
		return
	}

	bid := res.Accepted.Bid
	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(bid), "bid recorded successfully")
	helpers.LogSuccess("RecordBidHandler", "bid recorded successfully", map[string]any{
		"bid_id":   bid.ID,
		"item_id":  bid.AuctionItem,
		"user_id":  userID,
		"amount":   bid.Amount.String(),
		"sequence": bid.Sequence,
	})
}

// GetBidsByItemHandler handles GET /auction-items/:id/bids?page=N[&page_size=M][&before=SEQ]
func (h *BiddingHandler) GetBidsByItemHandler(c *gin.Context) {
	itemID := c.Param("id")

	var q helpers.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "GetBidsByItemHandler", err)
		return
	}

	var (
		bids []models.Bid
		err  error
	)
	if q.Before > 0 {
		bids, err = h.service.FetchHistoryBefore(c.Request.Context(), itemID, q.Before, q.PageSize)
	} else {
		bids, err = h.service.FetchHistory(c.Request.Context(), itemID, q.Page, q.PageSize)
	}
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByItemHandler: error retrieving bids", map[string]any{"item_id": itemID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.HistoryResponse{Results: helpers.ToBidResponses(bids)}, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByItemHandler", "bids retrieved successfully", map[string]any{
		"item_id": itemID,
		"page":    q.Page,
		"before":  q.Before,
		"count":   len(bids),
	})
}

// GetWinningBidHandler handles GET /auction-items/:id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	itemID := c.Param("id")
	bid, err := h.service.WinningBid(c.Request.Context(), itemID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		// For auction, winning bid not found -> 404
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"item_id": itemID})
			return
		}
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"item_id": itemID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":  bid.ID,
		"item_id": bid.AuctionItem,
		"user_id": bid.Bidder,
		"amount":  bid.Amount.String(),
	})
}

// GetItemsByUserHandler handles GET /users/:user_id/items
func (h *BiddingHandler) GetItemsByUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	items, err := h.service.ItemsByUser(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetItemsByUserHandler: error retrieving items", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	if items == nil {
		items = []models.AuctionItem{}
	}

	utils.JSONResponse(c, http.StatusOK, items, "items retrieved successfully")
	helpers.LogSuccess("GetItemsByUserHandler", "items retrieved successfully", map[string]any{
		"user_id":     userID,
		"items_count": len(items),
	})
}

// SubscribeHandler handles GET /ws/auction/:id. Every accepted bid is pushed
// as {"bid": ...} in ledger order until either side goes away.
func (h *BiddingHandler) SubscribeHandler(c *gin.Context) {
	itemID := c.Param("id")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := h.service.Subscribe(ctx, itemID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("SubscribeHandler: subscribe failed", map[string]any{"item_id": itemID, "error": err.Error()})
		return
	}
	defer stream.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader has already replied
		utils.Warn("SubscribeHandler: failed to upgrade connection", map[string]any{"item_id": itemID, "error": err.Error()})
		return
	}
	defer conn.Close()

	utils.Info("SubscribeHandler: subscriber connected", map[string]any{"item_id": itemID, "remote": conn.RemoteAddr().String()})

	// the client never sends anything; reading only surfaces its disconnect
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case bid, ok := <-stream.Events():
			if !ok {
				reason := "subscription ended"
				if err := stream.Err(); err != nil {
					reason = err.Error()
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), time.Now().Add(writeWait))
				utils.Info("SubscribeHandler: subscription ended", map[string]any{"item_id": itemID, "reason": reason})
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(helpers.BidMessage{Bid: helpers.ToBidResponse(bid)}); err != nil {
				utils.Warn("SubscribeHandler: failed to write bid", map[string]any{"item_id": itemID, "error": err.Error()})
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
