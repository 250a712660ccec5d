package integrationtests

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"auction-sync/internal/models"

	"github.com/stretchr/testify/require"
)

type seedBid struct {
	userID string
	amount string
}

// RecordBidHandler Tests
func TestRecordBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		itemID     string
		request    any
		advance    time.Duration
		wantStatus int
		wantReason string
	}{
		{
			name:       "Valid_Bid",
			userID:     "user1",
			itemID:     "item1",
			request:    `{"auction_item":"item1","bid_amount":"100"}`,
			wantStatus: http.StatusCreated,
		},
		{
			name:       "Invalid_JSON",
			userID:     "user1",
			itemID:     "item1",
			request:    "{auction_item: 'missing quotes', bid_amount: 100}",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Below_Increment",
			userID:     "user1",
			itemID:     "item1",
			request:    `{"bid_amount":"50.5"}`,
			wantStatus: http.StatusConflict,
			wantReason: "InsufficientAmount",
		},
		{
			name:       "Unknown_Bidder",
			userID:     "mallory",
			itemID:     "item1",
			request:    `{"bid_amount":"100"}`,
			wantStatus: http.StatusUnauthorized,
			wantReason: "Unauthenticated",
		},
		{
			name:       "Unknown_Item",
			userID:     "user1",
			itemID:     "nonexistent",
			request:    `{"bid_amount":"100"}`,
			wantStatus: http.StatusNotFound,
			wantReason: "NotFound",
		},
		{
			name:       "Auction_Closed",
			userID:     "user1",
			itemID:     "item1",
			request:    `{"bid_amount":"100"}`,
			advance:    2 * time.Hour,
			wantStatus: http.StatusBadRequest,
			wantReason: "AuctionClosed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mock := SetupTestRouterWithItems(t, newItem("item1", "title1"))
			mock.Add(tt.advance)

			resp, w := ExecuteRequestAndParse(t, router, http.MethodPost, "/auction-items/"+tt.itemID+"/bids", tt.userID, tt.request)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantReason != "" {
				require.Equal(t, tt.wantReason, resp["reason"])
			}
			if tt.wantStatus == http.StatusCreated {
				data := resp["data"].(map[string]any)
				require.Equal(t, "item1", data["auction_item"])
				require.Equal(t, "user1", data["bidder"])
				require.Equal(t, "100", data["bid_amount"])
				require.Equal(t, 1.0, data["sequence"])
				require.NotEmpty(t, data["id"])

				_, err := time.Parse(time.RFC3339, data["created_at"].(string))
				require.NoError(t, err)
			}
		})
	}
}

// GetBidsByItemHandler Tests
func TestGetBidsByItemHandler(t *testing.T) {
	tests := []struct {
		name       string
		items      []models.AuctionItem
		seedBids   []seedBid
		itemID     string
		query      string
		wantSeqs   []float64
		wantStatus int
	}{
		{
			name:       "With_Bids",
			items:      []models.AuctionItem{newItem("item1", "title1")},
			seedBids:   []seedBid{{"user1", "100"}},
			itemID:     "item1",
			wantSeqs:   []float64{1},
			wantStatus: http.StatusOK,
		},
		{
			name:       "No_Bids",
			items:      []models.AuctionItem{newItem("item2", "title2")},
			itemID:     "item2",
			wantSeqs:   []float64{},
			wantStatus: http.StatusOK,
		},
		{
			name:  "Second_Page",
			items: []models.AuctionItem{newItem("item1", "title1")},
			seedBids: []seedBid{
				{"user1", "60"}, {"user2", "61"}, {"user1", "62"}, {"user2", "63"},
				{"user1", "64"}, {"user2", "65"}, {"user1", "66"},
			},
			itemID:     "item1",
			query:      "?page=2",
			wantSeqs:   []float64{2, 1},
			wantStatus: http.StatusOK,
		},
		{
			name:  "Before_Cursor",
			items: []models.AuctionItem{newItem("item1", "title1")},
			seedBids: []seedBid{
				{"user1", "60"}, {"user2", "61"}, {"user1", "62"},
			},
			itemID:     "item1",
			query:      "?before=3&page_size=1",
			wantSeqs:   []float64{2},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Item_Not_Found",
			items:      []models.AuctionItem{},
			itemID:     "nonexistent",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := SetupTestRouterWithItems(t, tt.items...)
			for _, bid := range tt.seedBids {
				_, w := placeBid(t, router, tt.itemID, bid.userID, bid.amount)
				require.Equal(t, http.StatusCreated, w.Code)
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auction-items/"+tt.itemID+"/bids"+tt.query, "", nil)
			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus != http.StatusOK {
				return
			}

			results := resp["data"].(map[string]any)["results"].([]any)
			seqs := make([]float64, 0, len(results))
			for _, r := range results {
				seqs = append(seqs, r.(map[string]any)["sequence"].(float64))
			}
			require.Equal(t, tt.wantSeqs, seqs)
		})
	}
}

// GetWinningBidHandler Tests
func TestGetWinningBidHandler(t *testing.T) {
	tests := []struct {
		name       string
		items      []models.AuctionItem
		seedBids   []seedBid
		itemID     string
		wantUser   string
		wantAmount string
		wantStatus int
	}{
		{
			name:  "With_Bids",
			items: []models.AuctionItem{newItem("item1", "title1")},
			seedBids: []seedBid{
				{"user1", "100"},
				{"user3", "120"},
				{"user2", "150"},
			},
			itemID:     "item1",
			wantUser:   "user2",
			wantAmount: "150",
			wantStatus: http.StatusOK,
		},
		{
			name:       "No_Bids",
			items:      []models.AuctionItem{newItem("item2", "title2")},
			itemID:     "item2",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "Item_Not_Found",
			items:      []models.AuctionItem{},
			itemID:     "nonexistent",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := SetupTestRouterWithItems(t, tt.items...)
			for _, bid := range tt.seedBids {
				_, w := placeBid(t, router, tt.itemID, bid.userID, bid.amount)
				require.Equal(t, http.StatusCreated, w.Code)
			}

			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/auction-items/"+tt.itemID+"/winning", "", nil)
			require.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusOK {
				data := resp["data"].(map[string]any)
				require.Equal(t, tt.itemID, data["auction_item"])
				require.Equal(t, tt.wantUser, data["bidder"])
				require.Equal(t, tt.wantAmount, data["bid_amount"])
				require.Equal(t, float64(len(tt.seedBids)), data["sequence"])
			}
		})
	}
}

// GetItemsByUserHandler Tests
func TestGetItemsByUserHandler(t *testing.T) {
	router, _ := SetupTestRouterWithItems(t, newItem("item1", "title1"), newItem("item2", "title2"))

	for _, itemID := range []string{"item1", "item2"} {
		_, w := placeBid(t, router, itemID, "user1", "100")
		require.Equal(t, http.StatusCreated, w.Code)
	}

	tests := []struct {
		name            string
		userID          string
		expectedItemIDs []string
	}{
		{
			name:            "User_With_Items",
			userID:          "user1",
			expectedItemIDs: []string{"item1", "item2"},
		},
		{
			name:            "UserWithNoItems",
			userID:          "user2",
			expectedItemIDs: []string{},
		},
		{
			name:            "NonexistentUser",
			userID:          "nonexistent",
			expectedItemIDs: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/users/"+tt.userID+"/items", "", nil)
			require.Equal(t, http.StatusOK, w.Code)

			items := resp["data"].([]any)
			require.Len(t, items, len(tt.expectedItemIDs))

			itemIDs := map[string]bool{}
			for _, i := range items {
				itemIDs[i.(map[string]any)["id"].(string)] = true
			}
			for _, id := range tt.expectedItemIDs {
				require.True(t, itemIDs[id])
			}
		})
	}
}

// Outbid notifications and auto-pinning, end to end through the API
func TestOutbidFlow(t *testing.T) {
	router, _ := SetupTestRouterWithItems(t, newItem("item1", "Lamp"))

	_, w := placeBid(t, router, "item1", "user1", "60")
	require.Equal(t, http.StatusCreated, w.Code)
	_, w = placeBid(t, router, "item1", "user2", "70")
	require.Equal(t, http.StatusCreated, w.Code)

	resp, w := ExecuteRequestAndParse(t, router, http.MethodGet, "/users/user1/inbox", "user1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := resp["data"].([]any)
	require.Len(t, msgs, 1)
	require.Equal(t, "You were outbid on Lamp!", msgs[0].(map[string]any)["content"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/users/user2/inbox", "user2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, resp["data"])

	resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, "/auction-items/item1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	item := resp["data"].(map[string]any)
	require.Equal(t, "70", item["highest_bid"])
	require.Equal(t, "user2", item["highest_bid_user"])
	require.ElementsMatch(t, []any{"user1", "user2"}, item["pinned_by"])

	for i := 0; i < 3; i++ {
		resp, w = ExecuteRequestAndParse(t, router, http.MethodGet, fmt.Sprintf("/users/user%d/pinned", i+1), "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		if i == 2 {
			require.Empty(t, resp["data"])
		} else {
			require.Len(t, resp["data"], 1)
		}
	}
}
