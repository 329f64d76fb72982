package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddReplacesSamePattern(t *testing.T) {
	r := NewRegistry()

	var got []string
	first, replaced := r.Add("a/b", func(_, _ string) { got = append(got, "first") })
	assert.False(t, replaced)

	second, replaced := r.Add("a/b", func(_, _ string) { got = append(got, "second") })
	assert.True(t, replaced)
	assert.NotEqual(t, first, second)

	entries := r.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, second, entries[0].ID)

	entries[0].Handler("a/b", "")
	assert.Equal(t, []string{"second"}, got)
}

func TestRegistry_ReplacementKeepsOrder(t *testing.T) {
	r := NewRegistry()
	noop := func(_, _ string) {}

	r.Add("x", noop)
	r.Add("y/+", noop)
	r.Add("z/#", noop)
	r.Add("x", noop)

	assert.Equal(t, []string{"x", "y/+", "z/#"}, r.Patterns())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	noop := func(_, _ string) {}

	r.Add("a", noop)
	r.Add("b", noop)
	r.Add("c", noop)

	assert.True(t, r.Remove("b"))
	assert.False(t, r.Remove("b"), "second remove is a no-op")
	assert.False(t, r.Remove("never"), "unknown pattern is a no-op")
	assert.Equal(t, []string{"a", "c"}, r.Patterns())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_RemoveIf(t *testing.T) {
	r := NewRegistry()
	noop := func(_, _ string) {}

	stale, _ := r.Add("a", noop)
	current, _ := r.Add("a", noop)

	assert.False(t, r.RemoveIf("a", stale), "stale id must not remove the replacement")
	assert.Equal(t, []string{"a"}, r.Patterns())

	assert.True(t, r.RemoveIf("a", current))
	assert.Zero(t, r.Len())
	assert.False(t, r.RemoveIf("a", current))
}

func TestRegistry_EntriesIsSnapshot(t *testing.T) {
	r := NewRegistry()
	noop := func(_, _ string) {}

	r.Add("a", noop)
	r.Add("b", noop)

	snapshot := r.Entries()
	patterns := r.Patterns()

	r.Remove("a")
	r.Add("c", noop)

	require.Len(t, snapshot, 2)
	assert.Equal(t, "a", snapshot[0].Pattern)
	assert.Equal(t, "b", snapshot[1].Pattern)
	assert.Equal(t, []string{"a", "b"}, patterns)
	assert.Equal(t, []string{"b", "c"}, r.Patterns())
}
