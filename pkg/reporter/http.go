package reporter

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/kiro-usage/usage-reporter/pkg/engagement"
	"github.com/kiro-usage/usage-reporter/pkg/export"
	"github.com/kiro-usage/usage-reporter/pkg/usage"
)

// Output formats accepted by the format query parameter.
const (
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatTabular = "tabular"
)

type requestLogger struct {
	log.FieldLogger
}

func (l *requestLogger) Print(v ...interface{}) {
	l.FieldLogger.Info(v...)
}

// Handler is the HTTP API, including the health endpoints.
func (rep *Reporter) Handler() http.Handler {
	return rep.newRouter()
}

func (rep *Reporter) newRouter() http.Handler {
	router := chi.NewRouter()
	logger := rep.logger.WithField("component", "api")
	router.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &requestLogger{logger}}))

	router.Get("/ready", rep.readinessHandler)
	router.Get("/healthy", rep.healthinessHandler)

	router.Get("/api/v1/report", rep.getReportHandler)
	router.Get("/api/v1/users", rep.getUsersHandler)
	router.Get("/api/v1/users/{userID}", rep.getUserHandler)
	router.Get("/api/v1/segments", rep.getSegmentsHandler)
	router.Get("/api/v1/funnel", rep.getFunnelHandler)
	router.Get("/api/v1/breakdown/{kind}", rep.getBreakdownHandler)
	router.Get("/api/v1/quality", rep.getQualityHandler)
	router.Post("/api/v1/refresh", rep.refreshHandler)
	router.Get("/api/v1/exports", rep.listExportsHandler)
	router.Get("/api/v1/exports/{generatedAt}", rep.getExportHandler)

	return promhttp.InstrumentHandlerDuration(apiRequestDurationHistogram,
		promhttp.InstrumentHandlerCounter(apiRequestsCounter, router))
}

// currentReport writes a 503 and returns nil when no report exists yet.
func (rep *Reporter) currentReport(logger log.FieldLogger, w http.ResponseWriter, r *http.Request) *engagement.Report {
	report := rep.Report()
	if report == nil {
		writeErrorResponse(logger, w, r, http.StatusServiceUnavailable, errNoReport.Error())
	}
	return report
}

func (rep *Reporter) getReportHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, report)
}

func (rep *Reporter) getUsersHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	if err := r.ParseForm(); err != nil {
		writeErrorResponse(logger, w, r, http.StatusBadRequest, "unable to parse form: %v", err)
		return
	}
	filter, err := ParseUserFilter(r.Form)
	if err != nil {
		writeErrorResponse(logger, w, r, http.StatusBadRequest, err.Error())
		return
	}
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	users := filter.Apply(report.Users)
	writeTableResponse(logger, r.Form.Get("format"), UsersTable(users), users, w, r)
}

func (rep *Reporter) getUserHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	id := chi.URLParam(r, "userID")
	member, ok := report.User(id)
	if !ok {
		writeErrorResponse(logger, w, r, http.StatusNotFound, "user %s not found", id)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, member)
}

func (rep *Reporter) getSegmentsHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	writeTableResponse(logger, r.FormValue("format"), SegmentsTable(report.Segments), report.Segments, w, r)
}

func (rep *Reporter) getFunnelHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	writeTableResponse(logger, r.FormValue("format"), FunnelTable(report.Funnel), report.Funnel, w, r)
}

func (rep *Reporter) getBreakdownHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	table, value, err := BreakdownTable(report.Breakdown, chi.URLParam(r, "kind"))
	if err != nil {
		writeErrorResponse(logger, w, r, http.StatusNotFound, err.Error())
		return
	}
	writeTableResponse(logger, r.FormValue("format"), table, value, w, r)
}

func (rep *Reporter) getQualityHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report := rep.currentReport(logger, w, r)
	if report == nil {
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, report.Quality)
}

func (rep *Reporter) refreshHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	report, err := rep.Refresh(r.Context())
	if err != nil {
		writeErrorResponse(logger, w, r, http.StatusInternalServerError, "refresh failed: %v", err)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, refreshResponse{
		GeneratedAt: report.GeneratedAt,
		Window:      report.Window,
		Users:       len(report.Users),
		Quality:     report.Quality,
	})
}

type refreshResponse struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Window      engagement.Window `json:"window"`
	Users       int               `json:"users"`
	Quality     usage.DataQuality `json:"quality"`
}

type exportsResponse struct {
	Exports []time.Time `json:"exports"`
}

func (rep *Reporter) listExportsHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	if rep.store == nil {
		writeErrorResponse(logger, w, r, http.StatusNotFound, "report export is not configured")
		return
	}
	times, err := rep.store.List(r.Context())
	if err != nil {
		writeErrorResponse(logger, w, r, http.StatusInternalServerError, "unable to list exported reports: %v", err)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, exportsResponse{Exports: times})
}

func (rep *Reporter) getExportHandler(w http.ResponseWriter, r *http.Request) {
	logger := rep.newRequestLogger(r)
	if rep.store == nil {
		writeErrorResponse(logger, w, r, http.StatusNotFound, "report export is not configured")
		return
	}
	param := chi.URLParam(r, "generatedAt")
	generatedAt, ok := export.ParseName(param + ".json")
	if !ok {
		if t, err := time.Parse(time.RFC3339, param); err == nil {
			generatedAt, ok = t.UTC(), true
		}
	}
	if !ok {
		writeErrorResponse(logger, w, r, http.StatusBadRequest, "invalid export time %q", param)
		return
	}
	report, err := rep.store.Read(r.Context(), generatedAt)
	if err != nil {
		writeErrorResponse(logger, w, r, http.StatusNotFound, "unable to read exported report: %v", err)
		return
	}
	writeResponseAsJSON(logger, w, http.StatusOK, report)
}

func writeTableResponse(logger log.FieldLogger, format string, table Table, value interface{}, w http.ResponseWriter, r *http.Request) {
	switch format {
	case "", FormatJSON:
		writeResponseAsJSON(logger, w, http.StatusOK, value)
	case FormatCSV:
		writeTableResponseAsCSV(logger, table, w, r)
	case FormatTabular:
		writeTableResponseAsTabular(logger, table, w, r)
	default:
		writeErrorResponse(logger, w, r, http.StatusBadRequest, "format must be one of: %s, %s or %s", FormatJSON, FormatCSV, FormatTabular)
	}
}

func writeTableResponseAsCSV(logger log.FieldLogger, table Table, w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s.csv", table.Name))
	if err := table.Write(w, ','); err != nil {
		logger.WithError(err).Error("failed writing csv response")
	}
}

func writeTableResponseAsTabular(logger log.FieldLogger, table Table, w http.ResponseWriter, r *http.Request) {
	padding := 2
	if paddingStr := r.FormValue("padding"); paddingStr != "" {
		var err error
		padding, err = strconv.Atoi(paddingStr)
		if err != nil || padding < 0 {
			writeErrorResponse(logger, w, r, http.StatusBadRequest, "invalid padding value %s", paddingStr)
			return
		}
	}
	w.Header().Set("Content-Type", "text/tab-separated-values")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=%s.tsv", table.Name))
	if err := table.WriteTabular(w, padding); err != nil {
		logger.WithError(err).Error("failed writing tabular response")
	}
}
