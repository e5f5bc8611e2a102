package get

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/a-h/caseassist/models"
	"github.com/google/go-cmp/cmp"
)

func TestHandler(t *testing.T) {
	tests := []struct {
		name             string
		searchConfigured bool
	}{
		{name: "search configured", searchConfigured: true},
		{name: "search not configured", searchConfigured: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(tt.searchConfigured)
			h.now = func() time.Time {
				return time.Date(2024, 11, 5, 9, 30, 0, 123000000, time.FixedZone("EST", -5*60*60))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("expected status 200, got %d", w.Code)
			}
			var actual models.HealthGetResponse
			if err := json.Unmarshal(w.Body.Bytes(), &actual); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			expected := models.HealthGetResponse{
				Status:           "OK",
				Timestamp:        "2024-11-05T14:30:00.123Z",
				SearchConfigured: tt.searchConfigured,
			}
			if diff := cmp.Diff(expected, actual); diff != "" {
				t.Error(diff)
			}
		})
	}
}
