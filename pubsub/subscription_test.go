package pubsub

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/c360/busmux/testutil"
)

func TestSubscription_Pattern(t *testing.T) {
	m, _ := newTestManager(t)

	sub := m.Subscribe("sensors/+/temp", func(_, _ string) {})
	assert.Equal(t, "sensors/+/temp", sub.Pattern())
	require.NoError(t, sub.Close())
}

func TestScope_ReleasesOnReturn(t *testing.T) {
	m, dialer := newTestManager(t)
	conn := connect(t, m, dialer)

	errDone := stderrors.New("done")
	err := Scope(context.Background(), m, "scoped", func(_, _ string) {}, func(context.Context) error {
		flush(t, m)
		assert.Equal(t, []string{"scoped"}, m.Patterns())
		return errDone
	})
	assert.ErrorIs(t, err, errDone)

	flush(t, m)
	assert.Empty(t, m.Patterns())
	assert.Equal(t, []string{"scoped"}, conn.Unsubscribes())
}

func TestScope_ReleasesOnPanic(t *testing.T) {
	m, _ := newTestManager(t)

	assert.PanicsWithValue(t, "boom", func() {
		_ = Scope(context.Background(), m, "scoped", func(_, _ string) {}, func(context.Context) error {
			panic("boom")
		})
	})

	flush(t, m)
	assert.Empty(t, m.Patterns())
}

func TestSubscribeContext_ReleasesWhenDone(t *testing.T) {
	m, _ := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	sub := m.SubscribeContext(ctx, "ctx/+", func(_, _ string) {})
	flush(t, m)
	assert.Equal(t, []string{"ctx/+"}, m.Patterns())

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not released after context cancel")
	}

	flush(t, m)
	assert.Empty(t, m.Patterns())
}

func TestSubscribeContext_ManualRelease(t *testing.T) {
	m, _ := newTestManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := m.SubscribeContext(ctx, "manual", func(_, _ string) {})
	sub.Unsubscribe()
	flush(t, m)
	assert.Empty(t, m.Patterns())
}

func TestSubscribeContext_EndsWithManager(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	dialer := testutil.NewMockDialer()
	m, err := NewManager(testConfig(), dialer, WithLogger(discardLogger()))
	require.NoError(t, err)

	sub := m.SubscribeContext(context.Background(), "ctx/#", func(_, _ string) {})
	flush(t, m)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Close(ctx))

	assert.Equal(t, "ctx/#", sub.Pattern())
}

func TestContext(t *testing.T) {
	m, _ := newTestManager(t)

	ctx := NewContext(context.Background(), m)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, m, got)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)

	_, ok = FromContext(NewContext(context.Background(), nil))
	assert.False(t, ok)
}
