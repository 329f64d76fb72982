//go:build integration

package natsclient

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/busmux/pubsub"
	"github.com/c360/busmux/transport"
)

type received struct {
	mu   sync.Mutex
	msgs []string
}

func (r *received) handle(topic, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, topic+"="+message)
}

func (r *received) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.msgs...)
}

func newIntegrationManager(t *testing.T, tc *TestClient) *pubsub.Manager {
	t.Helper()

	dialer, err := NewDialer(WithDrainTimeout(2 * time.Second))
	require.NoError(t, err)

	m, err := pubsub.NewManager(tc.Config(), dialer, pubsub.WithName("it"))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.Close(ctx)
	})
	return m
}

func TestIntegration_PublishSubscribeWildcards(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	m := newIntegrationManager(t, tc)

	single := &received{}
	multi := &received{}
	m.Subscribe("sensors/+/temp", single.handle)
	m.Subscribe("sensors/#", multi.handle)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))
	require.NoError(t, m.Flush(ctx))

	m.Publish("sensors/kitchen/temp", "21.5")
	m.Publish("sensors/kitchen/humidity/raw", map[string]int{"v": 40})

	assert.Eventually(t, func() bool { return len(multi.all()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"sensors/kitchen/temp=21.5"}, single.all())
	assert.Contains(t, multi.all(), `sensors/kitchen/humidity/raw={"v":40}`)
}

func TestIntegration_Unsubscribe(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	m := newIntegrationManager(t, tc)

	got := &received{}
	sub := m.Subscribe("alerts/#", got.handle)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))
	require.NoError(t, m.Flush(ctx))

	m.Publish("alerts/fire", "1")
	assert.Eventually(t, func() bool { return len(got.all()) == 1 }, 5*time.Second, 20*time.Millisecond)

	sub.Unsubscribe()
	require.NoError(t, m.Flush(ctx))

	m.Publish("alerts/fire", "2")
	require.NoError(t, m.Flush(ctx))
	time.Sleep(200 * time.Millisecond)
	assert.Len(t, got.all(), 1)
}

func TestIntegration_Health(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())
	m := newIntegrationManager(t, tc)

	m.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, m.WaitForConnection(ctx))

	assert.True(t, m.Health().Healthy)
	assert.Equal(t, pubsub.StateConnected, m.State())
}

func TestIntegration_CloseIsNotReportedAsError(t *testing.T) {
	tc := NewTestClient(t, WithFastStartup())

	dialer, err := NewDialer(WithDrainTimeout(2 * time.Second))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []transport.Event
	)
	conn, err := dialer.Dial(context.Background(), tc.Config(), func(ev transport.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Close(ctx))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for _, ev := range events {
		assert.NotEqual(t, transport.EventError, ev.Type, "unexpected error event: %v", ev.Err)
	}
}
