package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grant-review-api/models"
	"grant-review-api/services"
	"grant-review-api/utils"
)

/* ==========================
   Handlers: notifications
   ========================== */

// GET /api/v1/notifications?userId=&read=&priority=&limit=&offset=
func (h *Handlers) ListNotifications(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	read, valid := utils.ParseOptionalBool(c.Query("read"))
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read must be true or false", "code": services.KindInvalidInput})
		return
	}
	priority := models.Priority(c.Query("priority"))
	if priority != "" && !priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown priority", "code": services.KindInvalidInput})
		return
	}

	limit, offset := utils.ParsePage(c.Query("limit"), c.Query("offset"))
	page, err := h.Notifications.List(c.Request.Context(), actor, services.NotificationFilter{
		UserID:   c.Query("userId"),
		Read:     read,
		Priority: priority,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GET /api/v1/notifications/unread-count
func (h *Handlers) UnreadNotificationCount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	n, err := h.Notifications.UnreadCount(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// PUT /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	n, err := h.Notifications.MarkRead(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// PUT /api/v1/notifications/mark-all-read
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated})
}

// DELETE /api/v1/notifications/:id
func (h *Handlers) DeleteNotification(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.Notifications.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
