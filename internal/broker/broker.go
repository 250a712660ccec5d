package broker

import (
	"context"
	"sync"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/models"
	"auction-sync/utils"

	"github.com/prometheus/client_golang/prometheus"
)

// Broker fans accepted bids out to every live subscription of an auction.
// Publish never blocks: a subscriber whose buffer is full is dropped and its
// stream ends with ErrSlowSubscriber.
type Broker struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{} // key: auctionID -> value: live subscriptions
	closed bool
	gauge  prometheus.Gauge
}

// New creates a broker. gauge tracks the number of live subscriptions and may be nil.
func New(gauge prometheus.Gauge) *Broker {
	return &Broker{
		subs:  make(map[string]map[*Subscription]struct{}),
		gauge: gauge,
	}
}

// Subscribe registers a subscription for auctionID with the given channel
// capacity. The subscription ends when ctx is done or Close is called.
func (b *Broker) Subscribe(ctx context.Context, auctionID string, buffer int) (*Subscription, error) {
	if buffer <= 0 {
		buffer = 1
	}
	s := &Subscription{
		auctionID: auctionID,
		out:       make(chan models.Bid, buffer),
		broker:    b,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, biddingerrors.ErrClosed
	}
	set := b.subs[auctionID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		b.subs[auctionID] = set
	}
	set[s] = struct{}{}
	if b.gauge != nil {
		b.gauge.Inc()
	}
	b.mu.Unlock()

	s.stop = context.AfterFunc(ctx, func() {
		b.remove(s, ctx.Err())
	})
	return s, nil
}

// Publish delivers bid to every subscription of bid.AuctionItem. Callers
// serialize publishes per auction so subscribers observe ledger order.
func (b *Broker) Publish(bid models.Bid) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs[bid.AuctionItem] {
		select {
		case s.out <- bid:
		default:
			utils.Warn("Dropping slow subscriber", map[string]any{
				"auction_item": bid.AuctionItem,
				"sequence":     bid.Sequence,
			})
			b.removeLocked(s, biddingerrors.ErrSlowSubscriber)
		}
	}
}

// Count returns the number of live subscriptions for auctionID.
func (b *Broker) Count(auctionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[auctionID])
}

// Shutdown ends every subscription with ErrSubscriptionLost and refuses new ones.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, set := range b.subs {
		for s := range set {
			b.removeLocked(s, biddingerrors.ErrSubscriptionLost)
		}
	}
}

func (b *Broker) remove(s *Subscription, reason error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(s, reason)
}

// removeLocked ends s once. Callers must hold b.mu, which also guards s.out.
func (b *Broker) removeLocked(s *Subscription, reason error) {
	set, ok := b.subs[s.auctionID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, s.auctionID)
	}
	if b.gauge != nil {
		b.gauge.Dec()
	}

	s.mu.Lock()
	s.err = reason
	s.mu.Unlock()
	close(s.out)
}

// Subscription is a broker-backed models.BidStream.
type Subscription struct {
	auctionID string
	out       chan models.Bid
	broker    *Broker
	stop      func() bool

	mu  sync.Mutex
	err error
}

var _ models.BidStream = (*Subscription)(nil)

func (s *Subscription) Events() <-chan models.Bid { return s.out }

// Err is nil while the stream is live and after a plain Close.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.broker.remove(s, nil)
	return nil
}
