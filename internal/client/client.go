package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const defaultTimeout = 10 * time.Second

// Ledger is the ledger as seen by one signed-in user.
type Ledger interface {
	GetItem(ctx context.Context, auctionID string) (models.AuctionItem, error)
	SubmitBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.SubmitResult, error)
	FetchHistory(ctx context.Context, auctionID string, cursor models.HistoryCursor, pageSize int) ([]models.Bid, error)
	Subscribe(ctx context.Context, auctionID string) (models.BidStream, error)
	Pin(ctx context.Context, auctionID string) error
	Unpin(ctx context.Context, auctionID string) error
	GetUser(ctx context.Context, userID string) (models.User, error)
}

var _ Ledger = (*HTTPClient)(nil)

// HTTPClient talks to a ledger server over HTTP and its websocket feed.
type HTTPClient struct {
	base    *url.URL
	userID  string
	client  *http.Client
	dialer  *websocket.Dialer
	timeout time.Duration
}

type Option func(*HTTPClient)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) { h.client = c }
}

// WithTimeout bounds every request except the websocket stream
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) { h.timeout = d }
}

// New creates a client for the server at baseURL acting as userID
func New(baseURL, userID string, opts ...Option) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid server url %q: %w", baseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("client: server url %q must be http or https", baseURL)
	}

	h := &HTTPClient{
		base:    base,
		userID:  userID,
		client:  &http.Client{},
		dialer:  websocket.DefaultDialer,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// UserID is the identity sent with every request
func (h *HTTPClient) UserID() string {
	return h.userID
}

// APIError is a non-2xx reply from the ledger server
type APIError struct {
	Status  int
	Message string
	Reason  biddingerrors.RejectReason
	err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("client: ledger replied %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.err
}

type envelope struct {
	Status  int                        `json:"status"`
	Message string                     `json:"message"`
	Data    json.RawMessage            `json:"data"`
	Error   string                     `json:"error"`
	Reason  biddingerrors.RejectReason `json:"reason"`
}

func errForStatus(status int, message string, reason biddingerrors.RejectReason) error {
	if reason.Valid() {
		return reason.Err()
	}
	switch status {
	case http.StatusBadRequest:
		if message == "invalid item details" {
			return biddingerrors.ErrInvalidItem
		}
		return biddingerrors.ErrInvalidBid
	case http.StatusUnauthorized:
		return biddingerrors.ErrUnauthenticated
	case http.StatusNotFound:
		if message == "user not found" {
			return biddingerrors.ErrUserNotFound
		}
		return biddingerrors.ErrItemNotFound
	case http.StatusConflict:
		return biddingerrors.ErrBidTooLow
	default:
		return biddingerrors.ErrTransport
	}
}

func (h *HTTPClient) endpoint(path string, query url.Values) string {
	u := *h.base
	u.Path = h.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends one request and decodes the envelope's data into out when out is not nil
func (h *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.userID != "" {
		req.Header.Set(helpers.UserHeader, h.userID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: %w - %s %s: %v", biddingerrors.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: %w - %s %s: undecodable %d reply: %v", biddingerrors.ErrTransport, method, path, resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{
			Status:  resp.StatusCode,
			Message: env.Message,
			Reason:  env.Reason,
			err:     errForStatus(resp.StatusCode, env.Message, env.Reason),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: %w - %s %s: undecodable data: %v", biddingerrors.ErrTransport, method, path, err)
	}
	return nil
}

func itemPath(auctionID string, suffix string) string {
	return "/auction-items/" + url.PathEscape(auctionID) + suffix
}

func (h *HTTPClient) GetItem(ctx context.Context, auctionID string) (models.AuctionItem, error) {
	var item models.AuctionItem
	if err := h.do(ctx, http.MethodGet, itemPath(auctionID, ""), nil, nil, &item); err != nil {
		return models.AuctionItem{}, err
	}
	return item, nil
}

// ListItems returns the listings whose title contains title
func (h *HTTPClient) ListItems(ctx context.Context, title string) ([]models.AuctionItem, error) {
	query := url.Values{}
	if title != "" {
		query.Set("title", title)
	}
	var items []models.AuctionItem
	if err := h.do(ctx, http.MethodGet, "/auction-items", query, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SubmitBid places a bid. A ledger refusal is a Rejected result, not an error.
func (h *HTTPClient) SubmitBid(ctx context.Context, auctionID string, amount decimal.Decimal) (models.SubmitResult, error) {
	req := helpers.PlaceBidRequest{AuctionItem: auctionID, Amount: amount}

	var resp helpers.BidResponse
	err := h.do(ctx, http.MethodPost, itemPath(auctionID, "/bids"), nil, req, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Reason.Valid() {
			return models.RejectedResult(apiErr.Reason), nil
		}
		return models.SubmitResult{}, err
	}

	bid, err := resp.ToBid()
	if err != nil {
		return models.SubmitResult{}, fmt.Errorf("client: %w - bad bid timestamp: %v", biddingerrors.ErrTransport, err)
	}
	return models.AcceptedResult(bid), nil
}

func (h *HTTPClient) FetchHistory(ctx context.Context, auctionID string, cursor models.HistoryCursor, pageSize int) ([]models.Bid, error) {
	query := url.Values{}
	if cursor.BeforeSequence > 0 {
		query.Set("before", strconv.FormatInt(cursor.BeforeSequence, 10))
	} else {
		query.Set("page", strconv.Itoa(cursor.Page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}

	var page helpers.HistoryResponse
	if err := h.do(ctx, http.MethodGet, itemPath(auctionID, "/bids"), query, nil, &page); err != nil {
		return nil, err
	}

	bids := make([]models.Bid, 0, len(page.Results))
	for _, r := range page.Results {
		b, err := r.ToBid()
		if err != nil {
			return nil, fmt.Errorf("client: %w - bad bid timestamp: %v", biddingerrors.ErrTransport, err)
		}
		bids = append(bids, b)
	}
	return bids, nil
}

func (h *HTTPClient) Pin(ctx context.Context, auctionID string) error {
	return h.do(ctx, http.MethodPost, itemPath(auctionID, "/pin"), nil, nil, nil)
}

func (h *HTTPClient) Unpin(ctx context.Context, auctionID string) error {
	return h.do(ctx, http.MethodPost, itemPath(auctionID, "/unpin"), nil, nil, nil)
}

func (h *HTTPClient) GetUser(ctx context.Context, userID string) (models.User, error) {
	var user models.User
	if err := h.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// Inbox returns the caller's notifications
func (h *HTTPClient) Inbox(ctx context.Context) ([]models.InboxMessage, error) {
	var msgs []models.InboxMessage
	if err := h.do(ctx, http.MethodGet, "/users/"+url.PathEscape(h.userID)+"/inbox", nil, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}
