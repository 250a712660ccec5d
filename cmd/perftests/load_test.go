package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"auction-sync/internal/biddingerrors"
	"auction-sync/internal/ledger"
	"auction-sync/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
)

// auctionLoad shapes one run: bidders race on items that watchers follow live
type auctionLoad struct {
	name        string
	items       int
	watchers    int // live subscribers per item
	readPercent int // share of operations that page history instead of bidding
	burst       bool
}

// watcher follows one item and checks that bids arrive in ledger order
type watcher struct {
	itemID  string
	stream  models.BidStream
	seen    atomic.Int64
	gaps    atomic.Int64
	dropped atomic.Bool
	done    chan struct{}
}

func watch(ctx context.Context, b *testing.B, l *ledger.Ledger, itemID string) *watcher {
	b.Helper()
	stream, err := l.Subscribe(ctx, itemID)
	if err != nil {
		b.Fatalf("failed to subscribe to %s: %v", itemID, err)
	}
	w := &watcher{itemID: itemID, stream: stream, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		var last int64
		for bid := range stream.Events() {
			if bid.Sequence != last+1 {
				w.gaps.Add(1)
			}
			last = bid.Sequence
			w.seen.Add(1)
		}
		if errors.Is(stream.Err(), biddingerrors.ErrSlowSubscriber) {
			w.dropped.Store(true)
		}
	}()
	return w
}

func Benchmark_Load_Auctions(b *testing.B) {
	scenarios := []auctionLoad{
		{name: "Spread-Bidding", items: 200, watchers: 1},
		{name: "Bidding-War", items: 5, watchers: 4},
		{name: "Watched-Lots", items: 50, watchers: 16, readPercent: 70},
		{name: "Browsing", items: 50, watchers: 2, readPercent: 90},
		{name: "Closing-Minute-Burst", items: 1, watchers: 32, readPercent: 20, burst: true},
	}

	for _, s := range scenarios {
		b.Run(s.name, func(b *testing.B) {
			runAuctionLoad(b, s)
		})
	}
}

func runAuctionLoad(b *testing.B, s auctionLoad) {
	l := newBenchLedger(b, s.items, "item")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchers := make([]*watcher, 0, s.items*s.watchers)
	for i := 0; i < s.items; i++ {
		for j := 0; j < s.watchers; j++ {
			watchers = append(watchers, watch(ctx, b, l, fmt.Sprintf("item_%d", i)))
		}
	}

	latency := prometheus.NewSummary(prometheus.SummaryOpts{
		Name:       "bench_op_seconds",
		Help:       "Latency of one benchmark operation.",
		Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.005, 0.99: 0.001},
	})
	var accepted, outbid, reads atomic.Int64

	b.ReportAllocs()
	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			itemID := fmt.Sprintf("item_%d", rnd.Intn(s.items))
			began := time.Now()

			if rnd.Intn(100) < s.readPercent {
				if _, err := l.FetchHistory(ctx, itemID, 1, 5); err != nil {
					b.Errorf("history of %s: %v", itemID, err)
				}
				reads.Add(1)
			} else {
				// read the price, then bid on it; a rival may get in between
				item, err := l.GetItem(ctx, itemID)
				if err != nil {
					b.Errorf("get %s: %v", itemID, err)
					continue
				}
				amount := item.MinimumNextBid().Add(decimal.NewFromInt(int64(rnd.Intn(3))))
				res, err := l.SubmitBid(ctx, itemID, bidder(rnd.Int()), amount)
				switch {
				case err != nil:
					b.Errorf("bid on %s: %v", itemID, err)
				case res.IsAccepted():
					accepted.Add(1)
				case res.Rejected.Reason == biddingerrors.ReasonInsufficientAmount:
					outbid.Add(1)
				default:
					b.Errorf("bid on %s rejected: %s", itemID, res.Rejected.Reason)
				}
			}

			latency.Observe(time.Since(began).Seconds())
			if !s.burst {
				time.Sleep(time.Millisecond)
			}
		}
	})

	b.StopTimer()

	var delivered, dropped int64
	for _, w := range watchers {
		item, err := l.GetItem(ctx, w.itemID)
		if err != nil {
			b.Fatalf("get %s: %v", w.itemID, err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for w.seen.Load() < item.LastSequence && !w.dropped.Load() && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		_ = w.stream.Close()
		<-w.done

		if w.gaps.Load() > 0 {
			b.Errorf("watcher of %s saw %d out-of-order bids", w.itemID, w.gaps.Load())
		}
		if w.dropped.Load() {
			dropped++
			continue
		}
		if w.seen.Load() != item.LastSequence {
			b.Errorf("watcher of %s saw %d of %d bids", w.itemID, w.seen.Load(), item.LastSequence)
		}
		delivered += w.seen.Load()
	}

	var m dto.Metric
	if err := latency.Write(&m); err != nil {
		b.Fatalf("read latency summary: %v", err)
	}
	for _, q := range m.GetSummary().GetQuantile() {
		b.ReportMetric(q.GetValue()*1e6, fmt.Sprintf("p%02.0f-us", q.GetQuantile()*100))
	}
	b.ReportMetric(float64(accepted.Load()), "accepted")
	b.ReportMetric(float64(outbid.Load()), "outbid")
	b.ReportMetric(float64(reads.Load()), "reads")
	b.ReportMetric(float64(delivered), "fanout-events")
	b.ReportMetric(float64(dropped), "slow-watchers")
}
