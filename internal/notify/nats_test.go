package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calmux/internal/calendar"
)

type message struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published  []message
	publishErr error
	closed     bool
	connected  bool
	flushed    bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, message{subject: subject, data: data})
	return nil
}

func (c *fakeConn) FlushTimeout(time.Duration) error {
	c.flushed = true
	return nil
}

func (c *fakeConn) IsClosed() bool { return c.closed }
func (c *fakeConn) IsConnected() bool { return c.connected && !c.closed }
func (c *fakeConn) Close() { c.closed = true }

func TestDefaultConfig(t *testing.T) {
	cfg := Config{URL: "nats://broker:4222"}.withDefaults()
	assert.Equal(t, "nats://broker:4222", cfg.URL)
	assert.Equal(t, "calmux.events", cfg.Subject)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10, cfg.MaxReconnects)
	assert.Equal(t, "nats://127.0.0.1:4222", DefaultConfig().URL)
}

func TestPublish(t *testing.T) {
	c := &fakeConn{connected: true}
	p := newNATSPublisher(c, "calmux.events", slog.Default())

	ev := calendar.Event{ID: "abc123", Title: "Team Sync", CalendarID: "primary", AccountID: "work"}
	require.NoError(t, p.Publish(context.Background(), NewChange(KindCreated, ev)))

	require.Len(t, c.published, 1)
	assert.Equal(t, "calmux.events.created", c.published[0].subject)

	var got Change
	require.NoError(t, json.Unmarshal(c.published[0].data, &got))
	assert.Equal(t, KindCreated, got.Kind)
	assert.Equal(t, "work", got.AccountID)
	assert.Equal(t, "primary", got.CalendarID)
	assert.Equal(t, "Team Sync", got.Event.Title)
	assert.False(t, got.At.IsZero())
}

func TestPublish_Failures(t *testing.T) {
	ev := calendar.Event{ID: "abc123"}

	disconnected := newNATSPublisher(&fakeConn{}, "calmux.events", slog.Default())
	assert.Error(t, disconnected.Publish(context.Background(), NewChange(KindUpdated, ev)))

	failing := newNATSPublisher(&fakeConn{connected: true, publishErr: errors.New("slow consumer")}, "calmux.events", slog.Default())
	assert.ErrorContains(t, failing.Publish(context.Background(), NewChange(KindUpdated, ev)), "slow consumer")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeConn{connected: true}
	assert.ErrorIs(t, newNATSPublisher(c, "calmux.events", slog.Default()).Publish(ctx, NewChange(KindSplit, ev)), context.Canceled)
	assert.Empty(t, c.published)
}

func TestClose(t *testing.T) {
	c := &fakeConn{connected: true}
	p := newNATSPublisher(c, "calmux.events", slog.Default())
	require.NoError(t, p.Close())
	assert.True(t, c.flushed)
	assert.True(t, c.closed)
	assert.Error(t, p.Healthy())
	require.NoError(t, p.Close())
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Change{}))
}
