package calendar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/teemow/calmux/internal/instrumentation"
)

// batchConcurrency bounds how many batch requests of one account run at once.
const batchConcurrency = 4

// BatchListEvents lists several calendars through the Google batch endpoint.
// Calendars are grouped into requests of at most batchSize parts. A calendar
// whose first page carries a nextPageToken is completed with regular paged
// requests. Only transport failures of a whole batch are returned as error;
// per calendar failures end up in ListResult.Err.
func (c *Client) BatchListEvents(ctx context.Context, calendarIDs []string, q EventQuery) ([]ListResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	results := make([]ListResult, len(calendarIDs))
	for i, id := range calendarIDs {
		results[i].CalendarID = id
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for start := 0; start < len(calendarIDs); start += c.batchSize {
		end := min(start+c.batchSize, len(calendarIDs))
		chunk := results[start:end]
		g.Go(func() error {
			return c.observe(gctx, instrumentation.OperationBatchList, func(ctx context.Context) error {
				return c.runBatch(ctx, chunk, q)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to batch list events: %w", err)
	}
	return results, nil
}

// runBatch sends one multipart request for chunk and fills in each entry.
func (c *Client) runBatch(ctx context.Context, chunk []ListResult, q EventQuery) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, r := range chunk {
		header := textproto.MIMEHeader{}
		header.Set("Content-Type", "application/http")
		header.Set("Content-ID", fmt.Sprintf("<item%d>", i))
		part, err := mw.CreatePart(header)
		if err != nil {
			return err
		}
		fmt.Fprintf(part, "GET %s HTTP/1.1\r\n\r\n", c.eventsPath(r.CalendarID, q))
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.batchURL, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "multipart/mixed; boundary="+mw.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return fmt.Errorf("unexpected batch response content type %q", resp.Header.Get("Content-Type"))
	}

	seen := make([]bool, len(chunk))
	mr := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read batch response: %w", err)
		}
		idx, ok := partIndex(part.Header.Get("Content-ID"), len(chunk))
		if !ok {
			continue
		}
		seen[idx] = true
		events, token, err := readBatchPart(part)
		if err != nil {
			chunk[idx].Err = err
			continue
		}
		r := &chunk[idx]
		for _, item := range events {
			r.Events = append(r.Events, fromAPIEvent(item, c.account, r.CalendarID))
		}
		if q.MaxResults > 0 && int64(len(r.Events)) >= q.MaxResults {
			r.Events = r.Events[:q.MaxResults]
			continue
		}
		if token != "" {
			r.Events, r.Err = c.listEventsFrom(ctx, r.CalendarID, q, token, r.Events)
		}
	}

	for i, ok := range seen {
		if !ok {
			chunk[i].Err = fmt.Errorf("no response for calendar %s in batch", chunk[i].CalendarID)
		}
	}
	return nil
}

// eventsPath renders the relative Events.list request line for one calendar.
func (c *Client) eventsPath(calendarID string, q EventQuery) string {
	v := url.Values{}
	if !q.TimeMin.IsZero() {
		v.Set("timeMin", q.TimeMin.Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		v.Set("timeMax", q.TimeMax.Format(time.RFC3339))
	}
	if q.ExpandRecurring {
		v.Set("singleEvents", "true")
		v.Set("orderBy", "startTime")
	}
	if q.Query != "" {
		v.Set("q", q.Query)
	}
	for _, p := range q.PrivateExtendedProperty {
		v.Add("privateExtendedProperty", p)
	}
	for _, p := range q.SharedExtendedProperty {
		v.Add("sharedExtendedProperty", p)
	}
	if q.MaxResults > 0 {
		v.Set("maxResults", strconv.FormatInt(min(q.MaxResults, maxPageSize), 10))
	}
	if q.Fields != "" {
		v.Set("fields", withPageToken(q.Fields))
	}
	path := c.apiPath + "calendars/" + url.PathEscape(calendarID) + "/events"
	if enc := v.Encode(); enc != "" {
		path += "?" + enc
	}
	return path
}

// partIndex maps a response Content-ID such as "<response-item3>" back to
// the index of the request part.
func partIndex(contentID string, n int) (int, bool) {
	id := strings.Trim(contentID, "<>")
	id = strings.TrimPrefix(id, "response-")
	id, ok := strings.CutPrefix(id, "item")
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// readBatchPart decodes the embedded HTTP response of one batch part.
func readBatchPart(part io.Reader) ([]*gcal.Event, string, error) {
	resp, err := http.ReadResponse(bufio.NewReader(part), nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse batch part: %w", err)
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, "", err
	}

	var page gcal.Events
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, "", fmt.Errorf("failed to decode batch part: %w", err)
	}
	return page.Items, page.NextPageToken, nil
}
