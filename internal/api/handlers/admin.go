package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/audit"
)

// UsageReader is implemented by *audit.Service.
type UsageReader interface {
	GetUsageSummary(ctx context.Context, startDate, endDate *time.Time) ([]audit.UsageSummary, error)
}

type AdminHandler struct {
	usage UsageReader
}

// NewAdminHandler accepts a nil reader when no database is configured.
func NewAdminHandler(usage UsageReader) *AdminHandler {
	return &AdminHandler{usage: usage}
}

// Usage handles GET /v1/admin/usage?start_date=&end_date= (RFC 3339).
func (h *AdminHandler) Usage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		writeError(w, http.StatusServiceUnavailable, "usage reporting requires DATABASE_URL")
		return
	}

	startDate, err := parseTimeParam(r, "start_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	endDate, err := parseTimeParam(r, "end_date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summary, err := h.usage.GetUsageSummary(r.Context(), startDate, endDate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"usage": summary})
}

func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: expected RFC 3339", name, s)
	}
	return &t, nil
}
