package calendar

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCalendarAPI serves a tiny subset of the Calendar v3 REST API and its
// batch endpoint from canned pages keyed by calendar ID and page token.
type fakeCalendarAPI struct {
	mu       sync.Mutex
	pages    map[string]map[string]string // calendarID -> pageToken -> JSON body
	missing  map[string]bool
	batches  int
	direct   []string
	inserted []map[string]any
}

func newFakeCalendarAPI() *fakeCalendarAPI {
	return &fakeCalendarAPI{
		pages:   map[string]map[string]string{},
		missing: map[string]bool{},
	}
}

func (f *fakeCalendarAPI) addPage(calendarID, token, body string) {
	if f.pages[calendarID] == nil {
		f.pages[calendarID] = map[string]string{}
	}
	f.pages[calendarID][token] = body
}

// respond returns the status line and body for an Events.list request path.
func (f *fakeCalendarAPI) respond(target string) (int, string) {
	u, err := url.Parse(target)
	if err != nil {
		return http.StatusBadRequest, `{"error":{"code":400,"message":"bad path"}}`
	}
	rest := strings.TrimPrefix(u.Path, "/calendar/v3/calendars/")
	calendarID, _, _ := strings.Cut(rest, "/")
	calendarID, _ = url.PathUnescape(calendarID)
	if f.missing[calendarID] {
		return http.StatusNotFound, `{"error":{"code":404,"message":"Not Found"}}`
	}
	body, ok := f.pages[calendarID][u.Query().Get("pageToken")]
	if !ok {
		return http.StatusOK, `{"items":[]}`
	}
	return http.StatusOK, body
}

func (f *fakeCalendarAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/batch/calendar/v3":
		f.batches++
		f.serveBatch(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/events"):
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.inserted = append(f.inserted, body)
		body["id"] = "created1"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	default:
		f.direct = append(f.direct, r.URL.String())
		status, body := f.respond(r.URL.String())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func (f *fakeCalendarAPI) serveBatch(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	out := multipart.NewWriter(w)
	w.Header().Set("Content-Type", "multipart/mixed; boundary="+out.Boundary())

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return
		}
		line, _ := bufio.NewReader(part).ReadString('\n')
		fields := strings.Fields(line)
		status, body := f.respond(fields[1])

		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-ID", "<response-"+strings.Trim(part.Header.Get("Content-ID"), "<>")+">")
		pw, _ := out.CreatePart(header)
		fmt.Fprintf(pw, "HTTP/1.1 %d %s\r\nContent-Type: application/json\r\nContent-Length: %d\r\n\r\n%s",
			status, http.StatusText(status), len(body), body)
	}
	_ = out.Close()
}

func newTestClient(t *testing.T, api *fakeCalendarAPI, opts ...ClientOption) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts = append([]ClientOption{WithEndpoint(srv.URL + "/calendar/v3/")}, opts...)
	c, err := NewClientWithHTTPClient(context.Background(), "work", srv.Client(), opts...)
	require.NoError(t, err)
	return c
}

const standupPage = `{"items":[{"id":"ev1","summary":"Standup","status":"confirmed",
"start":{"dateTime":"2025-01-15T10:00:00Z"},"end":{"dateTime":"2025-01-15T10:30:00Z"}}]}`

func TestClient_ListEvents_Paginates(t *testing.T) {
	api := newFakeCalendarAPI()
	api.addPage("primary", "", `{"items":[{"id":"a1","summary":"One","start":{"date":"2025-01-15"},"end":{"date":"2025-01-16"}}],"nextPageToken":"p2"}`)
	api.addPage("primary", "p2", standupPage)

	c := newTestClient(t, api)
	events, err := c.ListEvents(context.Background(), "primary", EventQuery{
		TimeMin: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
		TimeMax: time.Date(2025, 1, 16, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "a1", events[0].ID)
	assert.True(t, events[0].IsAllDay())
	assert.Equal(t, "ev1", events[1].ID)
	assert.Equal(t, "work", events[1].AccountID)
	assert.Equal(t, "primary", events[1].CalendarID)
	assert.Equal(t, 30*time.Minute, events[1].Duration())
}

func TestClient_ListEvents_MaxResults(t *testing.T) {
	api := newFakeCalendarAPI()
	api.addPage("primary", "", `{"items":[{"id":"a1"},{"id":"a2"},{"id":"a3"}],"nextPageToken":"p2"}`)

	c := newTestClient(t, api)
	events, err := c.ListEvents(context.Background(), "primary", EventQuery{MaxResults: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Len(t, api.direct, 1, "no second page once the cap is reached")
}

func TestClient_ListEvents_InvalidQuery(t *testing.T) {
	c := newTestClient(t, newFakeCalendarAPI())
	now := time.Now()
	_, err := c.ListEvents(context.Background(), "primary", EventQuery{TimeMin: now, TimeMax: now.Add(-time.Hour)})
	assert.Error(t, err)
}

func TestClient_ListEvents_NotFound(t *testing.T) {
	api := newFakeCalendarAPI()
	api.missing["gone"] = true

	c := newTestClient(t, api)
	_, err := c.ListEvents(context.Background(), "gone", EventQuery{})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Not Found", Reason(err))
}

func TestClient_BatchListEvents(t *testing.T) {
	api := newFakeCalendarAPI()
	api.addPage("team@group.calendar.google.com", "", standupPage)
	api.addPage("big", "", `{"items":[{"id":"b1"}],"nextPageToken":"p2"}`)
	api.addPage("big", "p2", `{"items":[{"id":"b2"}]}`)
	api.missing["gone"] = true

	c := newTestClient(t, api)
	ids := []string{"team@group.calendar.google.com", "gone", "big", "empty"}
	results, err := c.BatchListEvents(context.Background(), ids, EventQuery{ExpandRecurring: true})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, 1, api.batches)
	for i, id := range ids {
		assert.Equal(t, id, results[i].CalendarID, "results keep input order")
	}

	require.NoError(t, results[0].Err)
	require.Len(t, results[0].Events, 1)
	assert.Equal(t, "Standup", results[0].Events[0].Title)
	assert.Equal(t, "team@group.calendar.google.com", results[0].Events[0].CalendarID)

	require.Error(t, results[1].Err)
	assert.True(t, IsNotFound(results[1].Err))

	require.NoError(t, results[2].Err)
	require.Len(t, results[2].Events, 2, "second page fetched directly")
	assert.Equal(t, "b2", results[2].Events[1].ID)

	require.NoError(t, results[3].Err)
	assert.Empty(t, results[3].Events)
}

func TestClient_BatchListEvents_Chunks(t *testing.T) {
	api := newFakeCalendarAPI()
	c := newTestClient(t, api, WithBatchSize(2))

	results, err := c.BatchListEvents(context.Background(), []string{"a", "b", "c", "d", "e"}, EventQuery{})
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Equal(t, 3, api.batches)
}

func TestClient_InsertEvent_Conference(t *testing.T) {
	api := newFakeCalendarAPI()
	c := newTestClient(t, api)

	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	ev := &Event{
		Title: "Planning",
		Start: EventTime{DateTime: start, TimeZone: "UTC"},
		End:   EventTime{DateTime: start.Add(time.Hour), TimeZone: "UTC"},
	}
	created, err := c.InsertEvent(context.Background(), "primary", ev, InsertOptions{ConferenceRequestID: "req-1"})
	require.NoError(t, err)
	assert.Equal(t, "created1", created.ID)
	assert.Equal(t, "Planning", created.Title)

	require.Len(t, api.inserted, 1)
	conf, ok := api.inserted[0]["conferenceData"].(map[string]any)
	require.True(t, ok)
	req := conf["createRequest"].(map[string]any)
	assert.Equal(t, "req-1", req["requestId"])
}

func TestPartIndex(t *testing.T) {
	tests := []struct {
		in     string
		wantOK bool
		want   int
	}{
		{"<response-item3>", true, 3},
		{"response-item0", true, 0},
		{"<item1>", true, 1},
		{"<response-item9>", false, 0},
		{"<other>", false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := partIndex(tt.in, 5)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
