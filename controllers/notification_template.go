package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grant-review-api/models"
	"grant-review-api/services"
)

type templateReq struct {
	EventKey      models.EventType `json:"event_key" binding:"required"`
	SendTo        models.Role      `json:"send_to" binding:"required"`
	TitleTemplate string           `json:"title_template" binding:"required"`
	BodyTemplate  string           `json:"body_template" binding:"required"`
	IsActive      *bool            `json:"is_active"`
}

// GET /api/v1/admin/notification-templates
func (h *Handlers) ListNotificationTemplates(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	rows, err := h.Templates.ListTemplates(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows, "total": len(rows)})
}

// PUT /api/v1/admin/notification-templates
func (h *Handlers) UpsertNotificationTemplate(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req templateReq
	if !bindJSON(c, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	row, err := h.Templates.UpsertTemplate(c.Request.Context(), actor, services.TemplateInput{
		EventKey:      req.EventKey,
		SendTo:        req.SendTo,
		TitleTemplate: req.TitleTemplate,
		BodyTemplate:  req.BodyTemplate,
		IsActive:      active,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, row)
}
