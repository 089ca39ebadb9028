package controllers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"grant-review-api/middleware"
	"grant-review-api/models"
	"grant-review-api/services"
)

// Handlers binds the HTTP surface to the services.
type Handlers struct {
	DB            *gorm.DB
	JWTSecret     []byte
	TokenTTL      time.Duration
	Grants        *services.GrantService
	Proposals     *services.ProposalService
	Workflow      *services.WorkflowEngine
	Assignments   *services.AssignmentService
	Notifications *services.NotificationService
	Templates     *services.TemplateService
	Queries       *services.QueryService
}

var errorStatus = map[services.ErrorKind]int{
	services.KindInvalidTransition:  http.StatusConflict,
	services.KindNotOwner:           http.StatusForbidden,
	services.KindForbidden:          http.StatusForbidden,
	services.KindDeadlinePassed:     http.StatusGone,
	services.KindNoEligibleReviewer: http.StatusUnprocessableEntity,
	services.KindNoCompletedReview:  http.StatusUnprocessableEntity,
	services.KindScoreOutOfRange:    http.StatusBadRequest,
	services.KindInvalidInput:       http.StatusBadRequest,
	services.KindNotFound:           http.StatusNotFound,
	services.KindStorageUnavailable: http.StatusServiceUnavailable,
}

// respondError writes the status for err's kind. Storage faults are logged
// and reported without internal detail.
func respondError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, ok := errorStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	var svcErr *services.Error
	if errors.As(err, &svcErr) && svcErr.Message != "" {
		message = svcErr.Message
	}
	if kind == services.KindStorageUnavailable {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		message = "storage unavailable, please retry"
	}

	c.JSON(status, gin.H{"error": message, "code": kind})
}

func currentActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return models.Actor{}, false
	}
	return actor, true
}

func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error(), "code": services.KindInvalidInput})
		return false
	}
	return true
}
