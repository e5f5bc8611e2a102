package get

import (
	"net/http"
	"time"

	"github.com/a-h/caseassist/models"
	"github.com/a-h/respond"
)

// TimestampFormat is ISO-8601 with milliseconds.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

func New(searchConfigured bool) Handler {
	return Handler{
		searchConfigured: searchConfigured,
		now:              time.Now,
	}
}

type Handler struct {
	searchConfigured bool
	now              func() time.Time
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	respond.WithJSON(w, models.HealthGetResponse{
		Status:           "OK",
		Timestamp:        h.now().UTC().Format(TimestampFormat),
		SearchConfigured: h.searchConfigured,
	}, http.StatusOK)
}
