package version_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartekus/lockstep/internal/testutil/fakehistory"
	"github.com/bartekus/lockstep/internal/version"
)

func TestParseMarker(t *testing.T) {
	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"release: 1.2.3", "1.2.3", true},
		{"release: v1.2.3", "1.2.3", true},
		{"Release v2.0.0", "2.0.0", true},
		{"chore: release v1.4.0", "1.4.0", true},
		{"chore: release 1.4.0 (#42)", "1.4.0", true},
		{"chore(release): 3.0.0-rc.1", "3.0.0-rc.1", true},
		{"chore(release): release v0.9.1", "0.9.1", true},
		{"chore: 1.2.3", "", false},
		{"feat: release 1.2.3 of the widget", "", false},
		{"release: 1.2", "", false},
		{"release: v01.2.3", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := version.ParseMarker(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMarkerMessageRoundTrips(t *testing.T) {
	msg := version.MarkerMessage("v1.5.0")
	assert.Equal(t, "chore: release v1.5.0", msg)
	got, ok := version.ParseMarker(msg)
	require.True(t, ok)
	assert.Equal(t, "1.5.0", got)
}

func TestGreatest(t *testing.T) {
	tags := []string{"v1.9.0", "v1.10.0", "1.2.0", "v2.0.0-rc.1", "latest", "v1.10", "tools/cli/v9.0.0"}
	got, ok := version.Greatest(tags, "")
	require.True(t, ok)
	assert.Equal(t, "2.0.0-rc.1", got)

	got, ok = version.Greatest([]string{"v1.9.0", "v1.10.0", "v1.2.0"}, "")
	require.True(t, ok)
	assert.Equal(t, "1.10.0", got, "comparison must be semantic, not lexicographic")

	got, ok = version.Greatest(tags, "tools/cli/")
	require.True(t, ok)
	assert.Equal(t, "9.0.0", got)

	_, ok = version.Greatest([]string{"nightly", "v1"}, "")
	assert.False(t, ok)
}

func TestResolver_MarkerWins(t *testing.T) {
	h := fakehistory.Messages(
		"feat: one",
		"chore: release v1.3.0",
		"fix: two",
	)
	h.TagList = []string{"v9.9.9"}

	r := &version.Resolver{History: h}
	got, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", got)
}

func TestResolver_MostRecentMarker(t *testing.T) {
	h := fakehistory.Messages(
		"release: 1.0.0",
		"feat: x",
		"release: 1.1.0",
		"fix: y",
	)
	got, err := (&version.Resolver{History: h}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", got)
}

func TestResolver_FallsBackToTags(t *testing.T) {
	h := fakehistory.Messages("feat: x", "fix: y")
	h.TagList = []string{"v0.9.0", "v0.10.0", "junk"}

	got, err := (&version.Resolver{History: h}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.10.0", got)
}

func TestResolver_ZeroWhenNothingFound(t *testing.T) {
	got, err := (&version.Resolver{History: fakehistory.Messages()}).Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, version.Zero, got)
}

func TestResolver_Idempotent(t *testing.T) {
	h := fakehistory.Messages("feat: x", "release: 2.1.0", "fix: y")
	r := &version.Resolver{History: h}
	a, err := r.Resolve(context.Background())
	require.NoError(t, err)
	b, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSearchMarker_WidensProgressively(t *testing.T) {
	msgs := []string{"release: 0.1.0"}
	for i := 0; i < 30; i++ {
		msgs = append(msgs, fmt.Sprintf("fix: change %d", i))
	}
	h := fakehistory.Messages(msgs...)

	commits, marker, err := version.SearchMarker(context.Background(), h, []int{20, 10})
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "0.1.0", marker.Version)
	assert.Equal(t, 30, marker.Index)
	assert.Len(t, commits, 31)
	assert.Equal(t, []int{10, 20, 0}, h.CommitsCalls)
}

func TestSearchMarker_StopsEarlyOnShortHistory(t *testing.T) {
	h := fakehistory.Messages("feat: a", "fix: b")

	commits, marker, err := version.SearchMarker(context.Background(), h, version.DefaultSearchDepths)
	require.NoError(t, err)
	assert.Nil(t, marker)
	assert.Len(t, commits, 2)
	assert.Equal(t, []int{100}, h.CommitsCalls, "a window that is not full means history is exhausted")
}

func TestCompareAndValid(t *testing.T) {
	assert.True(t, version.Valid("1.2.3"))
	assert.True(t, version.Valid("v1.2.3-beta.1+build.5"))
	assert.False(t, version.Valid("1.2"))
	assert.Less(t, version.Compare("1.2.3", "v1.10.0"), 0)
	assert.Greater(t, version.Compare("1.0.0", "1.0.0-rc.1"), 0)
}
