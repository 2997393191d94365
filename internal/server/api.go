package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teemow/calmux/internal/calendar"
	"github.com/teemow/calmux/internal/export"
	"github.com/teemow/calmux/internal/instrumentation"
	"github.com/teemow/calmux/internal/logging"
	"github.com/teemow/calmux/internal/operations"
)

// APIPath is where the REST API is mounted.
const APIPath = "/api/calendar"

// maxRequestBody bounds POST bodies.
const maxRequestBody = 1 << 20

// CommitBody is the POST body of the REST API.
type CommitBody struct {
	Account         string                     `json:"account,omitempty"`
	Calendar        string                     `json:"calendar,omitempty"`
	ProposedEvents  []operations.ProposedEvent `json:"proposedEvents"`
	AllowDuplicates bool                       `json:"allowDuplicates,omitempty"`
}

// errorBody is returned for every failed request.
type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// API serves calendar events over plain HTTP for the scheduling frontend.
type API struct {
	sc      *ServerContext
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewAPI creates the REST API backed by sc.
func NewAPI(sc *ServerContext, metrics *instrumentation.Metrics) *API {
	return &API{sc: sc, metrics: metrics, logger: logging.WithService(sc.Logger(), "api")}
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

	switch r.Method {
	case http.MethodGet:
		a.handleGet(rec, r)
	case http.MethodPost:
		a.handlePost(rec, r)
	default:
		rec.Header().Set("Allow", "GET, POST")
		writeError(rec, http.StatusMethodNotAllowed, &operations.ValidationError{Message: "method not allowed"})
	}

	a.metrics.RecordHTTPRequest(r.Context(), r.Method, APIPath, rec.status, time.Since(start))
}

// handleGet lists events between start and end. account and calendar may be
// repeated or comma separated; format=ics returns an iCalendar document.
func (a *API) handleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	timeMin, err := parseBoundary("start", q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	timeMax, err := parseBoundary("end", q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req := operations.ListRequest{
		Accounts:  splitValues(q["account"]),
		Calendars: splitValues(q["calendar"]),
		TimeMin:   timeMin,
		TimeMax:   timeMax,
	}
	resp, err := a.sc.Operations().List(r.Context(), req)
	if err != nil {
		a.fail(w, "list events", err)
		return
	}
	for _, warning := range resp.Warnings {
		w.Header().Add("Warning", fmt.Sprintf("199 calmux %q", warning))
	}

	switch q.Get("format") {
	case "", "json":
		writeJSON(w, http.StatusOK, resp.Events)
	case "ics":
		w.Header().Set("Content-Type", export.ContentType)
		w.WriteHeader(http.StatusOK)
		if err := export.Write(w, resp.Events, export.Options{Name: "calmux"}); err != nil {
			a.logger.Warn("failed to write calendar export", logging.Err(err))
		}
	default:
		writeError(w, http.StatusBadRequest, &operations.ValidationError{Field: "format", Message: "must be json or ics"})
	}
}

// handlePost commits proposed events.
func (a *API) handlePost(w http.ResponseWriter, r *http.Request) {
	var body CommitBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, &operations.ValidationError{Message: "invalid request body: " + err.Error()})
		return
	}

	resp, err := a.sc.Operations().CommitProposed(r.Context(), operations.CommitRequest{
		Account:         body.Account,
		Calendar:        body.Calendar,
		ProposedEvents:  body.ProposedEvents,
		AllowDuplicates: body.AllowDuplicates,
	})
	if err != nil {
		a.fail(w, "commit proposed events", err)
		return
	}
	if resp.CreatedEvents == nil {
		resp.CreatedEvents = []calendar.Event{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("api request failed", logging.Operation(op), logging.Err(err))
	}
	writeError(w, status, err)
}

// statusFor maps the operation error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		validation *operations.ValidationError
		resolution *operations.ResolutionError
		duplicate  *operations.DuplicateError
		external   *operations.ExternalError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &resolution):
		return http.StatusNotFound
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.As(err, &external):
		if calendar.IsNotFound(external.Err) {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func parseBoundary(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, &operations.ValidationError{Field: field, Message: "is required"}
	}
	et, err := calendar.ParseEventTime(value, "UTC")
	if err != nil {
		return time.Time{}, &operations.ValidationError{Field: field, Message: err.Error(), Err: err}
	}
	t, _ := et.Instant()
	return t, nil
}

// splitValues flattens repeated and comma separated query values.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := errorBody{Error: err.Error()}
	var validation *operations.ValidationError
	if errors.As(err, &validation) {
		body.Field = validation.Field
	}
	writeJSON(w, status, body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps streaming responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
