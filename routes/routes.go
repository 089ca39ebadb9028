package routes

import (
	"grant-review-api/controllers"
	"grant-review-api/middleware"
	"grant-review-api/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(router *gin.Engine, h *controllers.Handlers) {
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Public routes
		public := v1.Group("")
		{
			public.POST("/login", h.Login)

			// Health check
			public.GET("/health", func(c *gin.Context) {
				c.JSON(200, gin.H{
					"status":  "ok",
					"message": "Grant Review API is running",
				})
			})
		}

		// Protected routes (require authentication)
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(h.DB, h.JWTSecret))
		{
			protected.GET("/profile", h.GetProfile)

			grants := protected.Group("/grants")
			{
				grants.GET("", h.ListGrants)
				grants.GET("/:id", h.GetGrant)
				grants.POST("", adminOnly, h.CreateGrant)
				grants.POST("/:id/close", adminOnly, h.CloseGrant)
			}

			proposals := protected.Group("/proposals")
			{
				proposals.GET("", h.ListProposals)
				proposals.GET("/:id", h.GetProposal)
				proposals.POST("", middleware.RequireRole(models.RoleResearcher), h.CreateProposal)
				proposals.PUT("/:id", middleware.RequireRole(models.RoleResearcher), h.UpdateProposal)
				proposals.POST("/:id/submit", h.SubmitProposal)

				// Admin workflow steps
				proposals.GET("/:id/suggested-reviewer", adminOnly, h.SuggestReviewer)
				proposals.POST("/:id/assign", adminOnly, h.AssignReviewer)
				proposals.POST("/:id/decide", adminOnly, h.DecideProposal)
			}

			reviews := protected.Group("/reviews")
			{
				reviews.GET("", h.ListReviews)
				reviews.POST("/:id/complete", h.CompleteReview)
				reviews.POST("/:id/revise", h.ReviseReview)
			}

			notifications := protected.Group("/notifications")
			{
				notifications.GET("", h.ListNotifications)
				notifications.GET("/unread-count", h.UnreadNotificationCount)
				notifications.PUT("/mark-all-read", h.MarkAllNotificationsRead)
				notifications.PUT("/:id/read", h.MarkNotificationRead)
				notifications.DELETE("/:id", h.DeleteNotification)
			}

			dashboard := protected.Group("/dashboard")
			{
				dashboard.GET("/stats", h.DashboardStats)
				dashboard.GET("/export", adminOnly, h.ExportProposals)
			}

			admin := protected.Group("/admin", adminOnly)
			{
				admin.GET("/notification-templates", h.ListNotificationTemplates)
				admin.PUT("/notification-templates", h.UpsertNotificationTemplate)
			}
		}
	}

	// 404 handler
	router.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{
			"error":   "Endpoint not found",
			"path":    c.Request.URL.Path,
			"method":  c.Request.Method,
			"message": "The requested API endpoint does not exist",
		})
	})
}
