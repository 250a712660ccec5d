package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"
	"auction-sync/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=item_handler.go -destination=mock_item_handler.go -package=handler

type ItemService interface {
	GetItem(ctx context.Context, itemID string) (models.AuctionItem, error)
	ListItems(ctx context.Context, titleFilter string) ([]models.AuctionItem, error)
	CreateItem(ctx context.Context, sellerID string, in models.NewAuctionItem) (models.AuctionItem, error)
	Pin(ctx context.Context, itemID, userID string) error
	Unpin(ctx context.Context, itemID, userID string) error
	PinnedItems(ctx context.Context, userID string) ([]models.AuctionItem, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	Inbox(ctx context.Context, userID string) ([]models.InboxMessage, error)
}

type ItemHandler struct {
	service ItemService
}

func NewItemHandler(service ItemService) *ItemHandler {
	return &ItemHandler{service: service}
}

func (h *ItemHandler) fail(c *gin.Context, handlerName string, err error, fields map[string]any) {
	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	fields["error"] = err.Error()
	utils.Warn(handlerName+": request failed", fields)
}

// GetItemHandler handles GET /auction-items/:id
func (h *ItemHandler) GetItemHandler(c *gin.Context) {
	itemID := c.Param("id")
	item, err := h.service.GetItem(c.Request.Context(), itemID)
	if err != nil {
		h.fail(c, "GetItemHandler", err, map[string]any{"item_id": itemID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, item, "item retrieved successfully")
}

// ListItemsHandler handles GET /auction-items?title=
func (h *ItemHandler) ListItemsHandler(c *gin.Context) {
	title := c.Query("title")
	items, err := h.service.ListItems(c.Request.Context(), title)
	if err != nil {
		h.fail(c, "ListItemsHandler", err, map[string]any{"title": title})
		return
	}
	utils.JSONResponse(c, http.StatusOK, items, "items retrieved successfully")
	helpers.LogSuccess("ListItemsHandler", "items retrieved successfully", map[string]any{"title": title, "count": len(items)})
}

// CreateItemHandler handles POST /auction-items. The caller becomes the seller.
func (h *ItemHandler) CreateItemHandler(c *gin.Context) {
	sellerID := c.GetHeader(helpers.UserHeader)

	var req helpers.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateItemHandler", err)
		return
	}

	var duration time.Duration
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil || d <= 0 {
			helpers.HandleBindError(c, "CreateItemHandler", fmt.Errorf("%w - bad duration %q", biddingerrors.ErrInvalidItem, req.Duration))
			return
		}
		duration = d
	}

	item, err := h.service.CreateItem(c.Request.Context(), sellerID, models.NewAuctionItem{
		SellerID:        sellerID,
		Title:           req.Title,
		Description:     req.Description,
		StartingPrice:   req.StartingPrice,
		MinBidIncrement: req.MinBidIncrement,
		Duration:        duration,
	})
	if err != nil {
		h.fail(c, "CreateItemHandler", err, map[string]any{"seller": sellerID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, item, "item created successfully")
	helpers.LogSuccess("CreateItemHandler", "item created successfully", map[string]any{"item_id": item.ID, "seller": sellerID})
}

// PinHandler handles POST /auction-items/:id/pin
func (h *ItemHandler) PinHandler(c *gin.Context) {
	h.setPinned(c, "PinHandler", true)
}

// UnpinHandler handles POST /auction-items/:id/unpin
func (h *ItemHandler) UnpinHandler(c *gin.Context) {
	h.setPinned(c, "UnpinHandler", false)
}

func (h *ItemHandler) setPinned(c *gin.Context, handlerName string, pinned bool) {
	itemID := c.Param("id")
	userID := c.GetHeader(helpers.UserHeader)

	var err error
	if pinned {
		err = h.service.Pin(c.Request.Context(), itemID, userID)
	} else {
		err = h.service.Unpin(c.Request.Context(), itemID, userID)
	}
	if err != nil {
		h.fail(c, handlerName, err, map[string]any{"item_id": itemID, "user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"pinned": pinned}, "pin updated successfully")
	helpers.LogSuccess(handlerName, "pin updated successfully", map[string]any{"item_id": itemID, "user_id": userID, "pinned": pinned})
}

// GetUserHandler handles GET /users/:user_id
func (h *ItemHandler) GetUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "GetUserHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, user, "user retrieved successfully")
}

// GetPinnedItemsHandler handles GET /users/:user_id/pinned
func (h *ItemHandler) GetPinnedItemsHandler(c *gin.Context) {
	userID := c.Param("user_id")
	items, err := h.service.PinnedItems(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "GetPinnedItemsHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, items, "pinned items retrieved successfully")
}

// GetInboxHandler handles GET /users/:user_id/inbox. Only the owner may read it.
func (h *ItemHandler) GetInboxHandler(c *gin.Context) {
	userID := c.Param("user_id")
	if caller := c.GetHeader(helpers.UserHeader); caller == "" || caller != userID {
		h.fail(c, "GetInboxHandler", fmt.Errorf("%w - caller %q may not read inbox of %q", biddingerrors.ErrUnauthenticated, caller, userID),
			map[string]any{"user_id": userID})
		return
	}

	msgs, err := h.service.Inbox(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "GetInboxHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, msgs, "inbox retrieved successfully")
}
