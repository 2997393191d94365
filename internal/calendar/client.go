package calendar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/teemow/calmux/internal/google"
	"github.com/teemow/calmux/internal/instrumentation"
)

const (
	defaultBatchURL = "https://www.googleapis.com/batch/calendar/v3"
	defaultAPIPath  = "/calendar/v3/"

	// maxPageSize is the largest page Events.list accepts.
	maxPageSize = 2500
)

// Client wraps the Google Calendar service for one account.
type Client struct {
	svc        *gcal.Service
	httpClient *http.Client
	account    string
	batchURL   string
	apiPath    string
	batchSize  int
	metrics    *instrumentation.Metrics
}

var _ Service = (*Client)(nil)
var _ BatchEventLister = (*Client)(nil)

// ClientOption customises a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	endpoint  string
	batchURL  string
	batchSize int
	metrics   *instrumentation.Metrics
}

// WithEndpoint points the client at a different API root, e.g. a test server.
// The batch endpoint is derived from it unless WithBatchURL is also given.
func WithEndpoint(endpoint string) ClientOption {
	return func(o *clientOptions) { o.endpoint = endpoint }
}

// WithBatchURL overrides the batch endpoint.
func WithBatchURL(batchURL string) ClientOption {
	return func(o *clientOptions) { o.batchURL = batchURL }
}

// WithBatchSize sets how many calendars are listed per batch request.
func WithBatchSize(n int) ClientOption {
	return func(o *clientOptions) { o.batchSize = n }
}

// WithMetrics records Google API operation metrics on every call.
func WithMetrics(m *instrumentation.Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// Account returns the account name this client is associated with
func (c *Client) Account() string {
	return c.account
}

// HasTokenForAccountWithProvider checks if a valid OAuth token exists for the specified account
func HasTokenForAccountWithProvider(account string, provider google.TokenProvider) bool {
	if provider == nil {
		return false
	}
	return provider.HasTokenForAccount(account)
}

// NewClientForAccountWithProvider creates a new Calendar client with OAuth2 authentication for a specific account.
// The OAuth token is retrieved from the provided token provider and refreshed through the configured OAuth client.
func NewClientForAccountWithProvider(ctx context.Context, account string, tokenProvider google.TokenProvider, opts ...ClientOption) (*Client, error) {
	if tokenProvider == nil {
		return nil, fmt.Errorf("token provider cannot be nil")
	}

	token, err := tokenProvider.GetTokenForAccount(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("failed to get Google OAuth token for account %s: %w", account, err)
	}

	conf := google.GetOAuthConfig()
	tokenSource := conf.TokenSource(ctx, token)
	httpClient := oauth2.NewClient(ctx, tokenSource)

	// Force HTTP/1.1 by disabling HTTP/2
	if transport, ok := httpClient.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{ForceAttemptHTTP2: false}
	}

	return NewClientWithHTTPClient(ctx, account, httpClient, opts...)
}

// NewClientWithHTTPClient creates a Calendar client that sends requests with
// an already authenticated HTTP client.
func NewClientWithHTTPClient(ctx context.Context, account string, httpClient *http.Client, opts ...ClientOption) (*Client, error) {
	o := clientOptions{batchURL: defaultBatchURL, batchSize: 50}
	for _, opt := range opts {
		opt(&o)
	}

	svcOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	apiPath := defaultAPIPath
	if o.endpoint != "" {
		svcOpts = append(svcOpts, option.WithEndpoint(o.endpoint))
		u, err := url.Parse(o.endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", o.endpoint, err)
		}
		apiPath = u.Path
		if !strings.HasSuffix(apiPath, "/") {
			apiPath += "/"
		}
		if o.batchURL == defaultBatchURL {
			o.batchURL = u.Scheme + "://" + u.Host + "/batch/calendar/v3"
		}
	}
	if o.batchSize <= 0 {
		o.batchSize = 50
	}

	svc, err := gcal.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}

	return &Client{
		svc:        svc,
		httpClient: httpClient,
		account:    account,
		batchURL:   o.batchURL,
		apiPath:    apiPath,
		batchSize:  o.batchSize,
		metrics:    o.metrics,
	}, nil
}

// observe wraps a Google API call in a span and records its outcome.
func (c *Client) observe(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, operation,
		instrumentation.TargetAttributes(c.account, "")...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	instrumentation.SetSpanStatus(span, err)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, operation, status, time.Since(start))
	return err
}

// ListCalendars lists all calendars in the account's calendar list
func (c *Client) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var calendars []CalendarInfo
	err := c.observe(ctx, instrumentation.OperationListCalendars, func(ctx context.Context) error {
		return c.svc.CalendarList.List().ShowHidden(true).Context(ctx).Pages(ctx, func(list *gcal.CalendarList) error {
			for _, entry := range list.Items {
				calendars = append(calendars, fromAPICalendar(entry, c.account))
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	return calendars, nil
}

// ListEvents lists events in a calendar matching the query
func (c *Client) ListEvents(ctx context.Context, calendarID string, q EventQuery) ([]Event, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	var events []Event
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		var err error
		events, err = c.listEventsFrom(ctx, calendarID, q, "", nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// listEventsFrom pages through Events.list starting at pageToken and appends
// to events, honouring q.MaxResults across pages.
func (c *Client) listEventsFrom(ctx context.Context, calendarID string, q EventQuery, pageToken string, events []Event) ([]Event, error) {
	call := c.svc.Events.List(calendarID).Context(ctx)
	if !q.TimeMin.IsZero() {
		call = call.TimeMin(q.TimeMin.Format(time.RFC3339))
	}
	if !q.TimeMax.IsZero() {
		call = call.TimeMax(q.TimeMax.Format(time.RFC3339))
	}
	if q.ExpandRecurring {
		call = call.SingleEvents(true).OrderBy("startTime")
	}
	if q.Query != "" {
		call = call.Q(q.Query)
	}
	if len(q.PrivateExtendedProperty) > 0 {
		call = call.PrivateExtendedProperty(q.PrivateExtendedProperty...)
	}
	if len(q.SharedExtendedProperty) > 0 {
		call = call.SharedExtendedProperty(q.SharedExtendedProperty...)
	}
	if q.MaxResults > 0 {
		call = call.MaxResults(min(q.MaxResults, maxPageSize))
	}
	if q.Fields != "" {
		call = call.Fields(googleapi.Field(withPageToken(q.Fields)))
	}

	for {
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		page, err := call.Do()
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			events = append(events, fromAPIEvent(item, c.account, calendarID))
			if q.MaxResults > 0 && int64(len(events)) >= q.MaxResults {
				return events, nil
			}
		}
		if page.NextPageToken == "" {
			return events, nil
		}
		pageToken = page.NextPageToken
	}
}

// withPageToken makes sure a partial response selector keeps pagination working.
func withPageToken(fields string) string {
	if strings.Contains(fields, "nextPageToken") {
		return fields
	}
	return fields + ",nextPageToken"
}

// GetEvent retrieves a specific event by ID
func (c *Client) GetEvent(ctx context.Context, calendarID, eventID string) (*Event, error) {
	var event *gcal.Event
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		event, err = c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	ev := fromAPIEvent(event, c.account, calendarID)
	return &ev, nil
}

// InsertEvent creates a new calendar event
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev *Event, opts InsertOptions) (*Event, error) {
	body := toAPIEvent(ev)
	call := c.svc.Events.Insert(calendarID, body)
	if opts.ConferenceRequestID != "" {
		body.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId: opts.ConferenceRequestID,
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{
					Type: "hangoutsMeet",
				},
			},
		}
		call = call.ConferenceDataVersion(1)
	}
	if opts.SendUpdates != "" {
		call = call.SendUpdates(opts.SendUpdates)
	}

	var created *gcal.Event
	err := c.observe(ctx, instrumentation.OperationCreate, func(ctx context.Context) error {
		var err error
		created, err = call.Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	out := fromAPIEvent(created, c.account, calendarID)
	return &out, nil
}

// PatchEvent applies a partial update to an event
func (c *Client) PatchEvent(ctx context.Context, calendarID, eventID string, patch *EventPatch) (*Event, error) {
	var updated *gcal.Event
	err := c.observe(ctx, instrumentation.OperationUpdate, func(ctx context.Context) error {
		var err error
		updated, err = c.svc.Events.Patch(calendarID, eventID, toAPIPatch(patch)).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	out := fromAPIEvent(updated, c.account, calendarID)
	return &out, nil
}
