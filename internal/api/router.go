package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	webhookHandler *WebhookHandler,
	accountHandler *AccountHandler,
	jwtSecret string,
	audience string,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Push notifications arrive with a bearer token minted by the pub/sub
	// relay; everything else on this surface is internal.
	webhook := r.Group("/webhook")
	webhook.Use(WebhookAuthMiddleware(jwtSecret, audience))
	{
		webhook.POST("/gmail", webhookHandler.HandlePush)
	}

	accounts := r.Group("/accounts")
	{
		accounts.POST("/:id/sync", accountHandler.SyncNow)
		accounts.POST("/:id/resync", accountHandler.ResyncNow)
		accounts.POST("/:id/backfill", accountHandler.BackfillNow)
		accounts.GET("/:id/status", accountHandler.Status)
	}

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(port)
}
