package server

import (
	"auction-sync/internal/ledger"
	handler "auction-sync/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter configures all Gin routes for the application. gatherer backs
// /metrics and may be nil to leave the endpoint out.
func SetupRouter(l *ledger.Ledger, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging

	biddingHandler := handler.NewBiddingHandler(l)
	itemHandler := handler.NewItemHandler(l)

	items := router.Group("/auction-items")
	{
		items.GET("", itemHandler.ListItemsHandler)
		items.POST("", itemHandler.CreateItemHandler)
		items.GET("/:id", itemHandler.GetItemHandler)
		items.POST("/:id/pin", itemHandler.PinHandler)
		items.POST("/:id/unpin", itemHandler.UnpinHandler)
		items.POST("/:id/bids", biddingHandler.RecordBidHandler)
		items.GET("/:id/bids", biddingHandler.GetBidsByItemHandler)
		items.GET("/:id/winning", biddingHandler.GetWinningBidHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id", itemHandler.GetUserHandler)
		users.GET("/:user_id/items", biddingHandler.GetItemsByUserHandler)
		users.GET("/:user_id/pinned", itemHandler.GetPinnedItemsHandler)
		users.GET("/:user_id/inbox", itemHandler.GetInboxHandler)
	}

	router.GET("/ws/auction/:id", biddingHandler.SubscribeHandler)

	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return router
}
