package echoapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/jazzedge/academy/apps/api/echo"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/user"
	emailsvc "github.com/jazzedge/academy/services/email"
	"github.com/jazzedge/academy/testutil"
)

const videoURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"

func Test_home(t *testing.T) {
	env := setup(t)
	req, rec := newRequest(http.MethodGet, "/")
	env.app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), env.conf.AppName)
}

func Test_curriculumApi_assignment(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 2)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, false)
	token := env.getToken(t, student)

	rec := env.do(http.MethodGet, "/v1/jpc/assignment", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// first load bootstraps and redirects
	rec = env.do(http.MethodGet, "/v1/jpc/assignment", token)
	require.Equal(t, http.StatusSeeOther, rec.Code, rec.Body.String())
	assert.Equal(t, "/v1/jpc/assignment", rec.Header().Get("Location"))

	// later loads find the row
	for i := 0; i < 3; i++ {
		rec = env.do(http.MethodGet, "/v1/jpc/assignment", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var a curriculum.Assignment
		unmarshal(t, rec, &a)
		assert.Equal(t, curriculum.BootstrapStepID, a.StepID)
		assert.Equal(t, curriculum.BootstrapCurriculumID, a.CurriculumID)
		assert.Equal(t, student.ID, a.UserID)
	}

	var rows int
	require.NoError(t, env.db.Get(&rows, "SELECT COUNT(*) FROM jpc_student_assignments WHERE user_id = ?", student.ID))
	assert.Equal(t, 1, rows)
}

func Test_curriculumApi_gating(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 3)
	free := testutil.CreateUser(t, env.usrRepo, "Free", "free", "free@test.cd", "", []string{user.RoleStudent}, true, false)
	member := testutil.CreateUser(t, env.usrRepo, "Member", "member", "member@test.cd", "", []string{user.RoleStudent}, true, true)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, false)
	testutil.CompleteUnit(t, env.jpcRepo, free.ID, 2)

	freeToken := env.getToken(t, free)
	memberToken := env.getToken(t, member)
	complete := func(unit, key int) []byte {
		return marchallObj(t, curriculum.CompleteStep{CurriculumID: unit, StepID: testutil.StepID(unit, key)})
	}
	locked := marchallObj(t, httpErr{Error: curriculum.ErrUnitLocked.Error()})

	runHTTPTests(t, env, []httpTest{
		{name: "free unit", method: http.MethodPost, path: "/v1/jpc/completed", token: freeToken, body: complete(1, 1), wantCode: http.StatusOK},
		{
			name: "complete locked unit", method: http.MethodPost, path: "/v1/jpc/completed", token: freeToken,
			body: complete(2, 1), wantCode: http.StatusForbidden, wantData: locked,
		},
		{
			name: "submit locked unit", method: http.MethodPost, path: "/v1/jpc/milestones", token: freeToken,
			body: marchallObj(t, curriculum.NewSubmission{CurriculumID: 2, VideoURL: videoURL}),
			wantCode: http.StatusForbidden, wantData: locked,
		},
		{name: "view locked unit", path: "/v1/jpc/units/2", token: freeToken, wantCode: http.StatusForbidden, wantData: locked},
		{
			name: "view locked step", method: http.MethodPost, path: "/v1/jpc/steps/" + strconv.Itoa(testutil.StepID(2, 1)) + "/views",
			token: freeToken, wantCode: http.StatusForbidden, wantData: locked,
		},
		{name: "member", method: http.MethodPost, path: "/v1/jpc/completed", token: memberToken, body: complete(2, 1), wantCode: http.StatusOK},
		{
			name: "teacher bypass", method: http.MethodPost, path: "/v1/jpc/completed", token: env.getToken(t, teacher),
			body: complete(3, 1), wantCode: http.StatusOK,
		},
		{
			name: "step from another unit", method: http.MethodPost, path: "/v1/jpc/completed", token: memberToken,
			body: marchallObj(t, curriculum.CompleteStep{CurriculumID: 1, StepID: testutil.StepID(2, 2)}),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: curriculum.ErrStepNotInUnit.Error()}),
		},
		{
			name: "unknown step", method: http.MethodPost, path: "/v1/jpc/completed", token: memberToken,
			body: marchallObj(t, curriculum.CompleteStep{CurriculumID: 1, StepID: 9999}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: curriculum.ErrStepNotFound.Error()}),
		},
	})

	t.Run("unit states", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/jpc/units", freeToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var units []curriculum.UnitSummary
		unmarshal(t, rec, &units)
		require.Len(t, units, 3)
		assert.Equal(t, curriculum.StateInProgress, units[0].State)
		assert.Equal(t, 1, units[0].CompletedSteps)
		// progress on a locked unit is kept but not shown as usable
		assert.Equal(t, curriculum.StateLocked, units[1].State)
		assert.Equal(t, curriculum.StateLocked, units[2].State)
	})
}

func Test_curriculumApi_unitDetail(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 2)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, true)
	testutil.CompleteSteps(t, env.jpcRepo, student.ID, 1, 1, 5, 12)
	token := env.getToken(t, student)

	rec := env.do(http.MethodGet, "/v1/jpc/units/1", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var detail curriculum.UnitDetail
	unmarshal(t, rec, &detail)

	assert.Equal(t, "Focus A", detail.FocusTitle)
	assert.Equal(t, curriculum.StateInProgress, detail.State)
	assert.Equal(t, 3, detail.CompletedSteps)
	assert.Equal(t, curriculum.NumKeys, detail.TotalSteps)
	assert.False(t, detail.CanSubmitMilestone)
	require.Len(t, detail.Steps, curriculum.NumKeys)
	for _, s := range detail.Steps {
		assert.Equal(t, s.KeySig == 1 || s.KeySig == 5 || s.KeySig == 12, s.Completed, "key %d", s.KeySig)
		assert.Equal(t, "https://player.vimeo.com/video/"+strconv.Itoa(1000+s.ID), s.EmbedURL)
	}

	runHTTPTests(t, env, []httpTest{
		{name: "unknown unit", path: "/v1/jpc/units/99", token: token, wantCode: http.StatusNotFound},
		{name: "invalid id", path: "/v1/jpc/units/lol", token: token, wantCode: http.StatusBadRequest},
	})
}

func Test_curriculumApi_milestones(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 2)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, false)
	studentToken := env.getToken(t, student)
	teacherToken := env.getToken(t, teacher)

	submit := func(url string) *httptest.ResponseRecorder {
		return env.do(http.MethodPost, "/v1/jpc/milestones", studentToken,
			marchallObj(t, curriculum.NewSubmission{CurriculumID: 1, VideoURL: url}))
	}
	grade := func(id int, g, notes, token string) *httptest.ResponseRecorder {
		return env.do(http.MethodPut, "/v1/jpc/admin/milestones/"+strconv.Itoa(id)+"/grade", token,
			marchallObj(t, curriculum.Grade{Grade: g, TeacherNotes: notes}))
	}
	unitState := func() curriculum.State {
		rec := env.do(http.MethodGet, "/v1/jpc/units/1", studentToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var detail curriculum.UnitDetail
		unmarshal(t, rec, &detail)
		return detail.State
	}

	// incomplete unit
	testutil.CompleteSteps(t, env.jpcRepo, student.ID, 1, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11)
	rec := submit(videoURL)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	assert.Equal(t, curriculum.StateInProgress, unitState())

	testutil.CompleteSteps(t, env.jpcRepo, student.ID, 1, 12)
	assert.Equal(t, curriculum.StateAllStepsComplete, unitState())

	// video URL is validated per field
	for url, msg := range map[string]string{
		"":                         "this field is required",
		"https://vimeo.com/123456": "please enter a valid YouTube URL",
	} {
		rec = submit(url)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		ok, err := jsonBytesEqual(rec.Body.Bytes(), marchallObj(t, map[string]string{"video_url": msg}))
		require.NoError(t, err)
		assert.True(t, ok, rec.Body.String())
	}

	rec = submit(videoURL)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var first curriculum.Submission
	unmarshal(t, rec, &first)
	assert.True(t, first.IsPending())
	assert.Equal(t, curriculum.StateMilestonePending, unitState())

	// no second submission while pending
	rec = submit(videoURL)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// grading is for staff only
	rec = grade(first.ID, curriculum.GradeRedo, "", studentToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = grade(first.ID, "maybe", "", teacherToken)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = grade(first.ID, curriculum.GradeRedo, "Watch the tempo", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, curriculum.StateMilestoneRedo, unitState())

	sent := emailsvc.GetSentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Watch the tempo")

	// an already graded row cannot be graded again
	rec = grade(first.ID, curriculum.GradePass, "", teacherToken)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// redo allows exactly one resubmission
	rec = submit(videoURL)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var second curriculum.Submission
	unmarshal(t, rec, &second)
	rec = submit(videoURL)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = grade(second.ID, curriculum.GradePass, "", teacherToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, curriculum.StateMilestonePassed, unitState())
	rec = submit(videoURL)
	assert.Equal(t, http.StatusConflict, rec.Code)

	t.Run("own submissions", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/jpc/milestones", studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var subs []curriculum.Submission
		unmarshal(t, rec, &subs)
		require.Len(t, subs, 2)
		assert.Equal(t, second.ID, subs[0].ID)
		assert.Equal(t, first.ID, subs[1].ID)
	})

	t.Run("completed units", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/jpc/units", studentToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var units []curriculum.UnitSummary
		unmarshal(t, rec, &units)
		require.Len(t, units, 2)
		assert.Equal(t, curriculum.StateMilestonePassed, units[0].State)
		require.NotNil(t, units[0].Milestone)
		assert.Equal(t, curriculum.GradePass, units[0].Milestone.Grade.String)
	})

	t.Run("grading queue", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/v1/jpc/admin/milestones?status=graded", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var subs []curriculum.Submission
		unmarshal(t, rec, &subs)
		assert.Len(t, subs, 2)

		rec = env.do(http.MethodGet, "/v1/jpc/admin/milestones?status=pending", teacherToken)
		require.Equal(t, http.StatusOK, rec.Code)
		unmarshal(t, rec, &subs)
		assert.Empty(t, subs)

		rec = env.do(http.MethodGet, "/v1/jpc/admin/milestones", studentToken)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_curriculumApi_resetProgress(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 4)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true, true)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, false)
	for _, id := range []int{1, 2, 3, 4} {
		testutil.CompleteSteps(t, env.jpcRepo, student.ID, id, 1, 2)
		testutil.CompleteSteps(t, env.jpcRepo, other.ID, id, 1)
	}
	studentToken := env.getToken(t, student)
	path := "/v1/jpc/progress/reset"
	reset := func(userID, unit int) []byte {
		return marchallObj(t, echoapi.ResetProgressRequest{UserID: userID, CurriculumID: unit})
	}

	// without a CSRF token
	rec := env.do(http.MethodPost, path, studentToken, reset(0, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// with a token that does not match the cookie
	csrf, cookie := env.csrf(t, studentToken)
	rec = env.doCSRF(http.MethodPost, path, studentToken, csrf+"x", cookie, reset(0, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// students may not reset others
	rec = env.doCSRF(http.MethodPost, path, studentToken, csrf, cookie, reset(other.ID, 2))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.doCSRF(http.MethodPost, path, studentToken, csrf, cookie, reset(0, 2))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp echoapi.ResetProgressResponse
	unmarshal(t, rec, &resp)
	assert.EqualValues(t, 3, resp.Deleted)

	ctx := context.Background()
	ledgers, err := env.jpcRepo.QueryProgress(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, ledgers, 1)
	assert.Equal(t, 1, ledgers[0].CurriculumID)
	assert.Equal(t, 2, ledgers[0].CompletedCount())

	// admins reset anyone
	adminToken := env.getToken(t, admin)
	csrf, cookie = env.csrf(t, adminToken)
	rec = env.doCSRF(http.MethodPost, path, adminToken, csrf, cookie, reset(other.ID, 4))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	unmarshal(t, rec, &resp)
	assert.EqualValues(t, 1, resp.Deleted)

	ledgers, err = env.jpcRepo.QueryProgress(ctx, other.ID)
	require.NoError(t, err)
	assert.Len(t, ledgers, 3)
}

func Test_curriculumApi_deleteSubmission(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 1)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, false)
	admin := testutil.CreateUser(t, env.usrRepo, "Admin", "admin", "admin@test.cd", "", []string{user.RoleAdmin}, true, false)
	testutil.CompleteUnit(t, env.jpcRepo, student.ID, 1)

	rec := env.do(http.MethodPost, "/v1/jpc/milestones", env.getToken(t, student),
		marchallObj(t, curriculum.NewSubmission{CurriculumID: 1, VideoURL: videoURL}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sub curriculum.Submission
	unmarshal(t, rec, &sub)
	path := "/v1/jpc/admin/milestones/" + strconv.Itoa(sub.ID)

	teacherToken := env.getToken(t, teacher)
	csrf, cookie := env.csrf(t, teacherToken)
	rec = env.doCSRF(http.MethodDelete, path, teacherToken, csrf, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken := env.getToken(t, admin)
	rec = env.do(http.MethodDelete, path, adminToken)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	csrf, cookie = env.csrf(t, adminToken)
	rec = env.doCSRF(http.MethodDelete, path, adminToken, csrf, cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = env.doCSRF(http.MethodDelete, path, adminToken, csrf, cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_curriculumApi_stepViews(t *testing.T) {
	env := setup(t)
	testutil.SeedCurriculum(t, env.jpcRepo, 1)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true, false)
	teacher := testutil.CreateUser(t, env.usrRepo, "Teacher", "teacher", "teacher@test.cd", "", []string{user.RoleTeacher}, true, false)
	token := env.getToken(t, student)

	view := func(key int) string {
		return "/v1/jpc/steps/" + strconv.Itoa(testutil.StepID(1, key)) + "/views"
	}
	for _, key := range []int{1, 1, 3} {
		rec := env.do(http.MethodPost, view(key), token)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}

	runHTTPTests(t, env, []httpTest{
		{name: "student", path: "/v1/jpc/admin/units/1/views", token: token, wantCode: http.StatusForbidden},
		{
			name: "teacher", path: "/v1/jpc/admin/units/1/views", token: env.getToken(t, teacher), wantCode: http.StatusOK,
			wantData: marchallList(t,
				curriculum.StepViewCount{StepID: testutil.StepID(1, 1), Views: 2},
				curriculum.StepViewCount{StepID: testutil.StepID(1, 3), Views: 1},
			),
		},
		{name: "unknown unit", path: "/v1/jpc/admin/units/9/views", token: env.getToken(t, teacher), wantCode: http.StatusNotFound},
	})
}
