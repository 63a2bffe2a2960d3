package event_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzedge/academy/core/event"
	sqlxrepos "github.com/jazzedge/academy/storage/database/sqlx"
	"github.com/jazzedge/academy/testutil"
)

func setup(t *testing.T) event.Service {
	db := testutil.PrepareDB(t)
	return event.NewService(db, sqlxrepos.NewEventRepository(db))
}

func TestService_CopyEvent(t *testing.T) {
	svc := setup(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	src, err := svc.Create(ctx, event.NewEvent{
		Title:    "Weekly Jam",
		Content:  "Bring your horn.",
		Status:   event.StatusDraft,
		StartsAt: start,
		EndsAt:   start.Add(2 * time.Hour),
		Meta:     map[string]string{"room": "B", "replay_video_id": "abc", "replay_cdn_url": "https://cdn.test/abc.mp4"},
		Terms:    []event.Term{{Taxonomy: "event_category", Term: "jam"}},
	})
	require.NoError(t, err)

	_, err = svc.CopyEvent(ctx, 999, event.Recurrence{Every: 1, Unit: event.UnitWeeks, Count: 3})
	assert.Equal(t, event.ErrNotFound, errors.Cause(err))

	copies, err := svc.CopyEvent(ctx, src.ID, event.Recurrence{Every: 1, Unit: event.UnitWeeks, Count: 3})
	require.NoError(t, err)
	require.Len(t, copies, 3)

	for i, c := range copies {
		wantStart := start.AddDate(0, 0, 7*i)
		got, err := svc.Get(ctx, c.ID)
		require.NoError(t, err)

		assert.True(t, wantStart.Equal(got.StartsAt), "copy %d starts %v", i, got.StartsAt)
		assert.True(t, wantStart.Add(time.Hour).Equal(got.EndsAt), "copy %d ends %v", i, got.EndsAt)
		assert.Equal(t, src.Title, got.Title)
		assert.Equal(t, src.Content, got.Content)
		assert.Equal(t, event.StatusDraft, got.Status)
		assert.Equal(t, map[string]string{"room": "B"}, got.Meta)
		assert.Equal(t, src.Terms, got.Terms)
		assert.EqualValues(t, src.ID, got.SourceID.Int)
		assert.Equal(t, copies[0].CopyGroup, got.CopyGroup)
	}

	// every run gets its own group
	more, err := svc.CopyEvent(ctx, src.ID, event.Recurrence{Every: 1, Unit: event.UnitDays, Count: 1})
	require.NoError(t, err)
	assert.NotEqual(t, copies[0].CopyGroup.String, more[0].CopyGroup.String)

	// the source is untouched
	got, err := svc.Get(ctx, src.ID)
	require.NoError(t, err)
	assert.Len(t, got.Meta, 3)
	assert.False(t, got.CopyGroup.Valid)

	all, err := svc.Query(ctx, event.QueryFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
