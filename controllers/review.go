package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"grant-review-api/models"
	"grant-review-api/services"
)

type reviewReq struct {
	Score    *float64              `json:"score" binding:"required"`
	Decision models.ReviewDecision `json:"decision" binding:"required"`
	Comments string                `json:"comments"`
}

func (r reviewReq) input() services.ReviewInput {
	return services.ReviewInput{Score: *r.Score, Decision: r.Decision, Comments: r.Comments}
}

// GET /api/v1/reviews?reviewerId=
func (h *Handlers) ListReviews(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	reviews, err := h.Queries.ListReviewsForReviewer(c.Request.Context(), actor, c.Query("reviewerId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": reviews, "total": len(reviews)})
}

// POST /api/v1/reviews/:id/complete { score, decision, comments }
func (h *Handlers) CompleteReview(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req reviewReq
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.Workflow.CompleteReview(c.Request.Context(), actor, c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}

// POST /api/v1/reviews/:id/revise { score, decision, comments }
func (h *Handlers) ReviseReview(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req reviewReq
	if !bindJSON(c, &req) {
		return
	}
	review, err := h.Workflow.ReviseReview(c.Request.Context(), actor, c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, review)
}
