package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"auction-sync/internal/ledger"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"
	"auction-sync/services/bidding/helpers"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var testUsers = []models.User{
	{UserID: "user1", FirstName: "Ada", LastName: "Lovelace"},
	{UserID: "user2", FirstName: "Alan", LastName: "Turing"},
	{UserID: "user3", FirstName: "Grace"},
}

// newItem lists an auction with starting price 50, increment 1 and an hour to run
func newItem(id, title string) models.AuctionItem {
	return models.AuctionItem{
		ID:              id,
		SellerID:        "user3",
		Title:           title,
		Description:     "description of " + title,
		StartingPrice:   decimal.NewFromInt(50),
		MinBidIncrement: decimal.NewFromInt(1),
		HighestBid:      decimal.NewFromInt(50),
		EndTime:         start.Add(time.Hour),
		CreatedAt:       start,
	}
}

// SetupTestRouterWithItems initializes the router over a seeded in-memory ledger.
func SetupTestRouterWithItems(t *testing.T, items ...models.AuctionItem) (*gin.Engine, *clock.Mock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mock := clock.NewMock()
	mock.Set(start)

	repo := repository.NewMemoryRepo()
	for _, u := range testUsers {
		repo.AddUser(u)
	}
	for _, item := range items {
		repo.AddItem(item)
	}

	l := ledger.New(repo, ledger.Options{Clock: mock})
	t.Cleanup(l.Shutdown)
	return server.SetupRouter(l, nil), mock
}

// ExecuteRequestAndParse executes an HTTP request as userID on the given router and parses the response
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, userID string, body any) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	var err error

	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		reqBody, err = json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set(helpers.UserHeader, userID)
	}
	router.ServeHTTP(w, req)

	var resp map[string]any
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to unmarshal response: %v", err)
		}
	}
	return resp, w
}

// placeBid submits amount on itemID as userID
func placeBid(t *testing.T, router *gin.Engine, itemID, userID, amount string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()
	return ExecuteRequestAndParse(t, router, "POST", "/auction-items/"+itemID+"/bids", userID,
		helpers.PlaceBidRequest{AuctionItem: itemID, Amount: decimal.RequireFromString(amount)})
}
