package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"grant-review-api/models"
	"grant-review-api/services"
	"grant-review-api/utils"
)

type proposalReq struct {
	GrantID          string `json:"grant_id"`
	Title            string `json:"title" binding:"required"`
	Abstract         string `json:"abstract"`
	RequestedFunding int64  `json:"requested_funding" binding:"required"`
	Category         string `json:"category"`
}

func (r proposalReq) input() services.ProposalInput {
	return services.ProposalInput{
		GrantID:          r.GrantID,
		Title:            r.Title,
		Abstract:         r.Abstract,
		RequestedFunding: r.RequestedFunding,
		Category:         r.Category,
	}
}

type assignReq struct {
	ReviewerID string `json:"reviewerId"`
}

type decideReq struct {
	Decision models.ReviewDecision `json:"decision" binding:"required"`
}

// GET /api/v1/proposals?status=&grantId=&researcherId=&reviewerId=&category=&limit=&offset=
func (h *Handlers) ListProposals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	limit, offset := utils.ParsePage(c.Query("limit"), c.Query("offset"))
	page, err := h.Queries.ListProposals(c.Request.Context(), actor, proposalFilter(c, limit, offset))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func proposalFilter(c *gin.Context, limit, offset int) services.ProposalFilter {
	return services.ProposalFilter{
		Status:       models.ProposalStatus(strings.TrimSpace(c.Query("status"))),
		GrantID:      c.Query("grantId"),
		ResearcherID: c.Query("researcherId"),
		ReviewerID:   c.Query("reviewerId"),
		Category:     c.Query("category"),
		Limit:        limit,
		Offset:       offset,
	}
}

// GET /api/v1/proposals/:id
func (h *Handlers) GetProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p, err := h.Proposals.GetProposal(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/v1/proposals (researcher)
func (h *Handlers) CreateProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req proposalReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Proposals.CreateProposal(c.Request.Context(), actor, req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// PUT /api/v1/proposals/:id (owner, Draft only)
func (h *Handlers) UpdateProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req proposalReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Proposals.UpdateDraft(c.Request.Context(), actor, c.Param("id"), req.input())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/v1/proposals/:id/submit
func (h *Handlers) SubmitProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	p, err := h.Workflow.Submit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// POST /api/v1/proposals/:id/assign { reviewerId? } (admin)
func (h *Handlers) AssignReviewer(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req assignReq
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}
	p, _, err := h.Workflow.AssignReviewer(c.Request.Context(), actor, c.Param("id"), req.ReviewerID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GET /api/v1/proposals/:id/suggested-reviewer (admin)
func (h *Handlers) SuggestReviewer(c *gin.Context) {
	reviewerID, err := h.Assignments.SuggestReviewer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reviewerId": reviewerID})
}

// POST /api/v1/proposals/:id/decide { decision } (admin)
func (h *Handlers) DecideProposal(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req decideReq
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Workflow.Decide(c.Request.Context(), actor, c.Param("id"), req.Decision)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
