package reporter

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Status      string    `json:"status"`
	Details     string    `json:"details,omitempty"`
	LastRefresh time.Time `json:"lastRefresh,omitempty"`
}

// readinessHandler reports ready once a report has been generated. A failed
// refresh after that leaves the reporter ready with the error in details.
func (rep *Reporter) readinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	lastAttempt, lastErr := rep.lastRefresh()
	resp := statusResponse{Status: "ok", LastRefresh: lastAttempt}
	if lastErr != nil {
		resp.Details = lastErr.Error()
	}
	if rep.Report() == nil {
		resp.Status = "not ready"
		if resp.Details == "" {
			resp.Details = errNoReport.Error()
		}
		writeResponseAsJSON(logger, w, http.StatusServiceUnavailable, resp)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, resp)
}

func (rep *Reporter) healthinessHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	writeResponseAsJSON(logger, w, http.StatusOK, statusResponse{Status: "ok"})
}
