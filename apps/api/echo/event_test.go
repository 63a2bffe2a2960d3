package echoapi_test

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jazzedge/academy/core/event"
	"github.com/jazzedge/academy/core/user"
	"github.com/jazzedge/academy/testutil"
)

func newEvent(t *testing.T, title string, start time.Time, meta map[string]string) []byte {
	return marchallObj(t, event.NewEvent{
		Title:    title,
		Content:  "Bring your horn.",
		StartsAt: start,
		EndsAt:   start.Add(90 * time.Minute),
		Meta:     meta,
		Terms:    []event.Term{{Taxonomy: "event_category", Term: "jam"}},
	})
}

func Test_eventApi_create(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, false)
	adminToken := env.getToken(t, admin)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	runHTTPTests(t, env, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/events", body: newEvent(t, "Jam", start, nil), wantCode: http.StatusUnauthorized},
		{
			name: "admin required", method: http.MethodPost, path: "/v1/events", token: env.getToken(t, teacher),
			body: newEvent(t, "Jam", start, nil), wantCode: http.StatusForbidden,
		},
		{
			name: "blank title", method: http.MethodPost, path: "/v1/events", token: adminToken,
			body: newEvent(t, "  ", start, nil), wantCode: http.StatusBadRequest,
		},
		{
			name: "ends before start", method: http.MethodPost, path: "/v1/events", token: adminToken,
			body: marchallObj(t, event.NewEvent{Title: "Jam", StartsAt: start, EndsAt: start.Add(-time.Hour)}),
			wantCode: http.StatusBadRequest,
		},
	})

	rec := env.do(http.MethodPost, "/v1/events", adminToken, newEvent(t, " Jam ", start, map[string]string{"room": "B"}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var e event.Event
	unmarshal(t, rec, &e)
	assert.NotZero(t, e.ID)
	assert.Equal(t, "Jam", e.Title)
	assert.Equal(t, event.StatusPublish, e.Status)
	assert.True(t, start.Equal(e.StartsAt))
	assert.Equal(t, map[string]string{"room": "B"}, e.Meta)
	assert.False(t, e.SourceID.Valid)

	rec = env.do(http.MethodGet, "/v1/events/"+strconv.Itoa(e.ID), adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got event.Event
	unmarshal(t, rec, &got)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, []event.Term{{Taxonomy: "event_category", Term: "jam"}}, got.Terms)

	runHTTPTests(t, env, []httpTest{
		{
			name: "unknown", path: "/v1/events/999", token: adminToken, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: event.ErrNotFound.Error()}),
		},
		{name: "invalid id", path: "/v1/events/x", token: adminToken, wantCode: http.StatusBadRequest},
	})
}

func Test_eventApi_query(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, false)
	token := env.getToken(t, admin)

	rec := env.do(http.MethodGet, "/v1/events", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	for _, d := range []int{3, 1, 2} {
		start := time.Date(2024, 1, d, 18, 0, 0, 0, time.UTC)
		rec = env.do(http.MethodPost, "/v1/events", token, newEvent(t, "Jam "+strconv.Itoa(d), start, nil))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	titles := func(path string) []string {
		rec := env.do(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var events []event.Event
		unmarshal(t, rec, &events)
		out := make([]string, 0, len(events))
		for _, e := range events {
			out = append(out, e.Title)
		}
		return out
	}

	assert.Equal(t, []string{"Jam 1", "Jam 2", "Jam 3"}, titles("/v1/events"))
	assert.Equal(t, []string{"Jam 2", "Jam 3"}, titles("/v1/events?from=2024-01-02"))
	assert.Equal(t, []string{"Jam 1"}, titles("/v1/events?to=2024-01-02"))
	assert.Equal(t, []string{"Jam 2"}, titles("/v1/events?from=2024-01-02T00:00:00Z&to=2024-01-03"))

	rec = env.do(http.MethodGet, "/v1/events?from=yesterday", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), marchallObj(t, map[string]string{"from": event.ErrInvalidDate.Error()}))
	require.NoError(t, err)
	assert.True(t, ok, rec.Body.String())
}

func Test_eventApi_copy(t *testing.T) {
	env := setup(t)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, false)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, true)
	token := env.getToken(t, admin)

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	rec := env.do(http.MethodPost, "/v1/events", token, newEvent(t, "Weekly Jam", start, map[string]string{
		"room":            "B",
		"replay_video_id": "abc",
		"replay_cdn_url":  "https://cdn.test/abc.mp4",
	}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var src event.Event
	unmarshal(t, rec, &src)
	path := "/v1/events/" + strconv.Itoa(src.ID) + "/copies"

	runHTTPTests(t, env, []httpTest{
		{
			name: "admin required", method: http.MethodPost, path: path, token: env.getToken(t, student),
			body: marchallObj(t, event.Recurrence{Unit: event.UnitWeeks, Count: 3}), wantCode: http.StatusForbidden,
		},
		{
			name: "too many copies", method: http.MethodPost, path: path, token: token,
			body:     marchallObj(t, event.Recurrence{Unit: event.UnitWeeks, Count: 101}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"count": event.ErrTooManyCopies.Error()}),
		},
		{
			name: "bad unit", method: http.MethodPost, path: path, token: token,
			body:     marchallObj(t, event.Recurrence{Unit: "years", Count: 3}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"unit": "unit must be one of: days, weeks, months"}),
		},
		{
			name: "unknown source", method: http.MethodPost, path: "/v1/events/999/copies", token: token,
			body: marchallObj(t, event.Recurrence{Unit: event.UnitWeeks, Count: 3}), wantCode: http.StatusNotFound,
		},
	})

	rec = env.do(http.MethodPost, path, token, marchallObj(t, event.Recurrence{Unit: " Weeks", Count: 3}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var copies []event.Event
	unmarshal(t, rec, &copies)
	require.Len(t, copies, 3)

	wantStarts := []time.Time{
		start,
		time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	for i, c := range copies {
		assert.True(t, wantStarts[i].Equal(c.StartsAt), "copy %d starts %v", i, c.StartsAt)
		assert.True(t, c.StartsAt.Add(time.Hour).Equal(c.EndsAt), "copy %d ends %v", i, c.EndsAt)
		assert.Equal(t, "Weekly Jam", c.Title)
		assert.Equal(t, map[string]string{"room": "B"}, c.Meta)
		require.True(t, c.SourceID.Valid)
		assert.EqualValues(t, src.ID, c.SourceID.Int)
		require.True(t, c.CopyGroup.Valid)
		assert.Equal(t, copies[0].CopyGroup.String, c.CopyGroup.String)
		assert.NotEqual(t, src.ID, c.ID)
	}

	// the source keeps its recording meta
	rec = env.do(http.MethodGet, "/v1/events/"+strconv.Itoa(src.ID), token)
	require.Equal(t, http.StatusOK, rec.Code)
	unmarshal(t, rec, &src)
	assert.Equal(t, "abc", src.Meta["replay_video_id"])
}
