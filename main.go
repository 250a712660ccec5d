package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-sync/internal/config"
	"auction-sync/internal/ledger"
	"auction-sync/internal/models"
	"auction-sync/internal/repository"
	"auction-sync/internal/server"
	"auction-sync/utils"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("AUCTION_CONFIG"))
	if err != nil {
		utils.Fatal("Failed to load configuration", map[string]any{"error": err.Error()})
	}
	if err := utils.SetLevel(cfg.LogLevel); err != nil {
		utils.Fatal("Invalid log level", map[string]any{"error": err.Error()})
	}

	clk := clock.New()
	repo := repository.NewMemoryRepo()
	prepopulate(repo, clk.Now())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	l := ledger.New(repo, ledger.Options{
		Clock:            clk,
		Metrics:          ledger.NewMetrics(reg),
		SubscriberBuffer: cfg.SubscriberBuffer,
		PageSize:         cfg.HistoryPageSize,
		MaxPageSize:      cfg.MaxPageSize,
		DefaultDuration:  cfg.DefaultDuration,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.SetupRouter(l, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		utils.Info("Starting auction server", map[string]any{"addr": srv.Addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			utils.Fatal("Failed to start server", map[string]any{"error": err.Error()})
		}
	case <-ctx.Done():
	}

	utils.Info("Shutting down auction server", nil)
	// end live streams first; hijacked websocket connections are not tracked by Shutdown
	l.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("Graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

// prepopulate adds sample users and items to the in-memory repo
func prepopulate(repo *repository.MemoryRepo, now time.Time) {
	users := []models.User{
		{UserID: "user1", FirstName: "Alice", LastName: "Smith"},
		{UserID: "user2", FirstName: "Bob", LastName: "Jones"},
		{UserID: "user3", FirstName: "Carol", LastName: "White"},
	}
	for _, u := range users {
		repo.AddUser(u)
	}

	items := []models.AuctionItem{
		{ID: "item1", SellerID: "user3", Title: "Brass desk lamp", Description: "Working, rewired in 2019", StartingPrice: decimal.NewFromInt(100), MinBidIncrement: decimal.NewFromInt(5), EndTime: now.Add(24 * time.Hour)},
		{ID: "item2", SellerID: "user3", Title: "Oak writing desk", Description: "Minor scratches on the top", StartingPrice: decimal.NewFromInt(200), MinBidIncrement: decimal.NewFromInt(10), EndTime: now.Add(72 * time.Hour)},
		{ID: "item3", SellerID: "user1", Title: "Vintage road bike", Description: "56cm frame", StartingPrice: decimal.NewFromInt(150), MinBidIncrement: decimal.RequireFromString("2.50"), EndTime: now.Add(time.Hour)},
	}
	for _, item := range items {
		item.HighestBid = item.StartingPrice
		item.CreatedAt = now
		repo.AddItem(item)
	}
}
