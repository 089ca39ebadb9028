package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"grant-review-api/models"
	"grant-review-api/services"
)

type createGrantReq struct {
	Title         string    `json:"title" binding:"required"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	FundingAmount int64     `json:"funding_amount" binding:"required"`
	Deadline      time.Time `json:"deadline" binding:"required"`
}

// GET /api/v1/grants?status=&category=
func (h *Handlers) ListGrants(c *gin.Context) {
	grants, err := h.Grants.ListGrants(c.Request.Context(), services.GrantFilter{
		Status:   models.GrantStatus(c.Query("status")),
		Category: c.Query("category"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": grants, "total": len(grants)})
}

// GET /api/v1/grants/:id
func (h *Handlers) GetGrant(c *gin.Context) {
	grant, err := h.Grants.GetGrant(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}

// POST /api/v1/grants (admin)
func (h *Handlers) CreateGrant(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createGrantReq
	if !bindJSON(c, &req) {
		return
	}

	grant, err := h.Grants.CreateGrant(c.Request.Context(), actor, services.GrantInput{
		Title:         req.Title,
		Description:   req.Description,
		Category:      req.Category,
		FundingAmount: req.FundingAmount,
		Deadline:      req.Deadline,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// POST /api/v1/grants/:id/close (admin)
func (h *Handlers) CloseGrant(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	grant, err := h.Grants.CloseGrant(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, grant)
}
