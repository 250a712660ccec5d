package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/services/bidding/helpers"
	"auction-sync/utils"

	"github.com/gorilla/websocket"
)

const (
	streamBuffer = 64
	closeWait    = time.Second
)

// Subscribe opens the auction's websocket feed. The stream ends when ctx is
// done, when Close is called, or when the connection drops.
func (h *HTTPClient) Subscribe(ctx context.Context, auctionID string) (models.BidStream, error) {
	u := *h.base
	switch h.base.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = h.base.Path + "/ws/auction/" + url.PathEscape(auctionID)

	header := http.Header{}
	if h.userID != "" {
		header.Set(helpers.UserHeader, h.userID)
	}

	dialCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	conn, resp, err := h.dialer.DialContext(dialCtx, u.String(), header)
	if err != nil {
		if errors.Is(err, websocket.ErrBadHandshake) && resp != nil {
			return nil, &APIError{
				Status:  resp.StatusCode,
				Message: resp.Status,
				err:     errForStatus(resp.StatusCode, "", ""),
			}
		}
		return nil, fmt.Errorf("client: %w - subscribe %s: %v", biddingerrors.ErrTransport, auctionID, err)
	}

	s := &wsStream{
		auctionID: auctionID,
		conn:      conn,
		events:    make(chan models.Bid, streamBuffer),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
	go s.readLoop()
	s.stop = context.AfterFunc(ctx, func() { _ = s.Close() })
	return s, nil
}

// wsStream adapts a websocket connection to models.BidStream
type wsStream struct {
	auctionID string
	conn      *websocket.Conn
	events    chan models.Bid
	stop      func() bool

	mu  sync.Mutex
	err error

	closeOnce sync.Once
	closing   chan struct{}
	done      chan struct{}
}

func (s *wsStream) Events() <-chan models.Bid {
	return s.events
}

func (s *wsStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the stream and waits for the reader to exit. It is safe to call more than once.
func (s *wsStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
		if s.stop != nil {
			s.stop()
		}
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeWait))
		_ = s.conn.Close()
	})
	<-s.done
	return nil
}

func (s *wsStream) readLoop() {
	defer close(s.done)
	defer close(s.events)

	for {
		var msg helpers.BidMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.fail(err)
			return
		}
		bid, err := msg.Bid.ToBid()
		if err != nil {
			s.fail(err)
			_ = s.conn.Close()
			return
		}
		select {
		case s.events <- bid:
		case <-s.closing:
			return
		}
	}
}

// fail records why the stream ended unless the caller closed it
func (s *wsStream) fail(err error) {
	select {
	case <-s.closing:
		return
	default:
	}
	utils.Warn("Live subscription lost", map[string]any{
		"auction_item": s.auctionID,
		"error":        err.Error(),
	})
	s.mu.Lock()
	s.err = fmt.Errorf("client: %w - %v", biddingerrors.ErrSubscriptionLost, err)
	s.mu.Unlock()
}
