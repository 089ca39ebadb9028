package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"grant-review-api/middleware"
	"grant-review-api/models"
	"grant-review-api/services"
)

func TestRespondErrorStatusByKind(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		err  error
		want int
	}{
		{services.ErrInvalidTransition, http.StatusConflict},
		{services.ErrNotOwner, http.StatusForbidden},
		{services.ErrForbidden, http.StatusForbidden},
		{services.ErrDeadlinePassed, http.StatusGone},
		{services.ErrNoEligibleReviewer, http.StatusUnprocessableEntity},
		{services.ErrNoCompletedReview, http.StatusUnprocessableEntity},
		{services.ErrScoreOutOfRange, http.StatusBadRequest},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrNotFound, http.StatusNotFound},
		{errors.New("driver: bad connection"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		respondError(c, tc.err)
		if w.Code != tc.want {
			t.Fatalf("%v: status %d, want %d", tc.err, w.Code, tc.want)
		}

		var body map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["code"] != string(services.KindOf(tc.err)) {
			t.Fatalf("%v: code %q", tc.err, body["code"])
		}
	}
}

func TestStorageFaultsHideDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	respondError(c, errors.New("dial tcp 10.0.0.5:3306: connection refused"))

	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "storage unavailable, please retry" {
		t.Fatalf("error = %q", body["error"])
	}
}

func TestHandlersRequireActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	h.SubmitProposal(c)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", w.Code)
	}
}

func TestBindJSONRejectsBadPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handlers{}

	r := gin.New()
	r.POST("/reviews/:id/complete", func(c *gin.Context) {
		middleware.SetActor(c, models.Actor{UserID: "rev", Role: models.RoleReviewer})
	}, h.CompleteReview)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reviews/r1/complete", nil)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
}
