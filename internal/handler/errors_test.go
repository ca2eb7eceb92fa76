package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fundledger/internal/domain"

	"github.com/gin-gonic/gin"
)

func TestRespondError_Statuses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err       error
		status    int
		retryable bool
	}{
		{domain.Invalid("amount_cents", "must be positive"), http.StatusBadRequest, false},
		{&domain.InvalidDonationError{Reason: "project closed"}, http.StatusBadRequest, false},
		{fmt.Errorf("loading: %w", domain.NotFound("project", 7)), http.StatusNotFound, false},
		{&domain.InvalidTransitionError{Entity: "milestone", ID: 1, From: "PENDING", To: "RELEASED", Precondition: "not approved"}, http.StatusConflict, false},
		{&domain.ConcurrencyError{Entity: "project", ID: 1, Detail: "version moved"}, http.StatusConflict, true},
		{errors.New("disk on fire"), http.StatusInternalServerError, false},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		respondError(c, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: got %d, want %d", tc.err, w.Code, tc.status)
		}
		var body map[string]any
		json.Unmarshal(w.Body.Bytes(), &body)
		if got, _ := body["retryable"].(bool); got != tc.retryable {
			t.Fatalf("%v: retryable = %v", tc.err, got)
		}
		if tc.status == http.StatusInternalServerError && body["error"] != "internal error" {
			t.Fatalf("internal errors must not leak detail: %v", body)
		}
	}
}
