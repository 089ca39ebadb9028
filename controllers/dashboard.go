package controllers

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GET /api/v1/dashboard/stats?scope=own|all
func (h *Handlers) DashboardStats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.Queries.DashboardStats(c.Request.Context(), actor, c.Query("scope"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /api/v1/dashboard/export (admin) streams the filtered proposals as xlsx.
func (h *Handlers) ExportProposals(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	f := proposalFilter(c, 0, 0)
	book, err := h.Queries.ExportProposals(c.Request.Context(), actor, f)
	if err != nil {
		respondError(c, err)
		return
	}
	defer book.Close()

	filename := fmt.Sprintf("proposals_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := book.Write(c.Writer); err != nil {
		log.Printf("export proposals: %v", err)
	}
}
