package websocket

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjiri1684/mentor_payouts/models"
)

type fakeConn struct {
	mu       sync.Mutex
	received []interface{}
	fail     bool
	closed   bool
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("broken pipe")
	}
	c.received = append(c.received, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newRunningHub(t *testing.T) *Hub {
	t.Helper()
	logger, _ := test.NewNullLogger()
	h := NewHub(logger)
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func TestHubBroadcastsToAllClients(t *testing.T) {
	h := newRunningHub(t)
	a, b := &fakeConn{}, &fakeConn{}
	h.Register(&Client{ID: uuid.New(), UserID: "admin-a", Conn: a})
	h.Register(&Client{ID: uuid.New(), UserID: "admin-b", Conn: b})

	require.NoError(t, h.Append(context.Background(), models.AuditEvent{ID: "e1", Title: "Payout Processed"}))

	require.Eventually(t, func() bool { return a.count() == 1 && b.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "e1", a.received[0].(models.AuditEvent).ID)
}

func TestHubDropsBrokenClients(t *testing.T) {
	h := newRunningHub(t)
	broken := &fakeConn{fail: true}
	h.Register(&Client{ID: uuid.New(), UserID: "admin", Conn: broken})
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Append(context.Background(), models.AuditEvent{ID: "e1"}))

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, broken.isClosed())
}

func TestHubUnregister(t *testing.T) {
	h := newRunningHub(t)
	conn := &fakeConn{}
	c := &Client{ID: uuid.New(), UserID: "admin", Conn: conn}
	h.Register(c)
	h.Unregister(c)

	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, conn.isClosed())
}

func TestHubAppendAfterStopDoesNotBlock(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewHub(logger)
	h.Stop()
	for i := 0; i < 100; i++ {
		assert.NoError(t, h.Append(context.Background(), models.AuditEvent{ID: "e"}))
	}
}
