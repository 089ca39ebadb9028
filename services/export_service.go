package services

import (
	"context"

	"github.com/xuri/excelize/v2"

	"grant-review-api/models"
	"grant-review-api/utils"
)

const (
	exportSheet   = "Proposals"
	maxExportRows = 10000
)

type proposalExportRow struct {
	ID               string `excel:"Proposal ID"`
	Title            string `excel:"Title"`
	Grant            string `excel:"Grant"`
	Category         string `excel:"Category"`
	Status           string `excel:"Status"`
	RequestedFunding int64  `excel:"Requested Funding"`
	ResearcherID     string `excel:"Researcher"`
	ReviewerID       string `excel:"Reviewer"`
	DateSubmitted    string `excel:"Submitted"`
	DecidedAt        string `excel:"Decided"`
}

// ExportProposals renders the proposals matching f as a workbook. Admin only.
func (s *QueryService) ExportProposals(ctx context.Context, actor models.Actor, f ProposalFilter) (*excelize.File, error) {
	if !actor.IsAdmin() {
		return nil, newError(KindForbidden, "only admins can export proposals")
	}
	q, err := s.filteredProposals(ctx, actor, f)
	if err != nil {
		return nil, err
	}

	var proposals []models.Proposal
	if err := q.Preload("Grant").Order("created_at ASC").Limit(maxExportRows).Find(&proposals).Error; err != nil {
		return nil, storageError(err, "export proposals")
	}

	rows := make([]proposalExportRow, 0, len(proposals))
	for _, p := range proposals {
		row := proposalExportRow{
			ID:               p.ID,
			Title:            p.Title,
			Category:         p.Category,
			Status:           string(p.Status),
			RequestedFunding: p.RequestedFunding,
			ResearcherID:     p.ResearcherID,
		}
		if p.Grant != nil {
			row.Grant = p.Grant.Title
		}
		if p.ReviewerID != nil {
			row.ReviewerID = *p.ReviewerID
		}
		if p.DateSubmitted != nil {
			row.DateSubmitted = p.DateSubmitted.Format("2006-01-02 15:04")
		}
		if p.DecidedAt != nil {
			row.DecidedAt = p.DecidedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}

	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	if err := utils.WriteSheet(book, exportSheet, rows); err != nil {
		return nil, err
	}
	return book, nil
}
