package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes bundles the handlers mounted by Register.
type Routes struct {
	Donations *DonationHandler
	Sites     *SiteHandler
	Sessions  *SessionHandler
	Sockets   *WebSocketHandler
	Identity  gin.HandlerFunc
}

// Register mounts every route on r.
func (rt Routes) Register(r gin.IRouter) {
	// Simple liveness route
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	if rt.Sockets != nil {
		r.GET("/ws", rt.Sockets.ServeWs)
	}

	// All API routes under /api
	api := r.Group("/api")
	{
		api.POST("/webhook/donation", rt.Donations.HandleDonationNotification)
		api.POST("/session", rt.Sessions.CreateSession)

		// Identity-gated endpoints
		protected := api.Group("/")
		protected.Use(rt.Identity)
		{
			protected.GET("/usage", rt.Sites.GetUsage)
			protected.GET("/deployments", rt.Sites.ListDeployments)
			protected.POST("/deployments", rt.Sites.Publish)
		}
	}
}
