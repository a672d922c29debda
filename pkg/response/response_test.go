package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/gym-platform/pkg/apperror"
)

func TestWrap_JSONFormat(t *testing.T) {
	jsonBytes, err := json.Marshal(Wrap(map[string]string{"id": "123"}))
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(jsonBytes, &parsed); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	data, ok := parsed["data"].(map[string]interface{})
	if !ok || data["id"] != "123" {
		t.Errorf("Expected data.id=123, got %v", parsed)
	}
	if _, ok := parsed["meta"]; ok {
		t.Error("Expected meta field to be omitted")
	}
}

func TestError_JSONFormat(t *testing.T) {
	jsonBytes, _ := json.Marshal(Error("Tenant not found"))
	if string(jsonBytes) != `{"error":"Tenant not found"}` {
		t.Errorf("unexpected error body: %s", jsonBytes)
	}
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{"scope", apperror.ScopeViolation("Branch is outside your scope"), http.StatusForbidden, "Branch is outside your scope"},
		{"internal hides detail", apperror.Internal(errors.New("dial tcp refused")), http.StatusInternalServerError, "Internal server error"},
		{"unclassified", errors.New("oops"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := FromError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("message = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestNewMeta(t *testing.T) {
	tests := []struct {
		total     int64
		perPage   int
		wantPages int
	}{
		{0, 20, 0},
		{20, 20, 1},
		{21, 20, 2},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := NewMeta(1, tt.perPage, tt.total); got.TotalPages != tt.wantPages {
			t.Errorf("NewMeta(total=%d, perPage=%d).TotalPages = %d, want %d", tt.total, tt.perPage, got.TotalPages, tt.wantPages)
		}
	}
}

func TestPaginationNormalize(t *testing.T) {
	p := PaginationParams{Page: 0, PerPage: 500}.Normalize()
	if p.Page != 1 || p.PerPage != 100 {
		t.Errorf("Normalize() = %+v", p)
	}
	if off := (PaginationParams{Page: 3, PerPage: 10}).Offset(); off != 20 {
		t.Errorf("Offset() = %d, want 20", off)
	}
}

func TestGinHelpers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	AbortWithError(c, apperror.Authentication("Missing bearer token"))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	if !c.IsAborted() {
		t.Error("context should be aborted")
	}
	if w.Body.String() != `{"error":"Missing bearer token"}` {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Data(c, http.StatusCreated, gin.H{"id": "t1"})
	if w.Code != http.StatusCreated || w.Body.String() != `{"data":{"id":"t1"}}` {
		t.Errorf("Data() wrote %d %s", w.Code, w.Body.String())
	}
}
