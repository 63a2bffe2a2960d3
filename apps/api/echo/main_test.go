package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/jazzedge/academy/apps/api/echo"
	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/event"
	"github.com/jazzedge/academy/core/user"
	emailsvc "github.com/jazzedge/academy/services/email"
	sqlxrepos "github.com/jazzedge/academy/storage/database/sqlx"
	"github.com/jazzedge/academy/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testEnv struct {
	app     *echoapi.Server
	conf    *core.Config
	db      *sqlx.DB
	usrRepo user.Repository
	jpcRepo curriculum.Repository
	evtRepo event.Repository
}

func setup(t *testing.T) *testEnv {
	conf := testutil.Config(t)
	conf.JPC.FreeUnitLimit = 2
	conf.Events.MaxCopies = 100
	db := testutil.PrepareDB(t, conf)
	logger := testutil.Logger(conf)

	require.NoError(t, core.ParseEmailTemplates())
	emailsvc.ResetSentMessages()

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	curriculum.InitValidators(validate, translator)
	event.InitValidators(validate, translator)

	// set up repos & services
	env := &testEnv{
		conf:    conf,
		db:      db,
		usrRepo: sqlxrepos.NewUserRepository(db),
		jpcRepo: sqlxrepos.NewCurriculumRepository(db),
		evtRepo: sqlxrepos.NewEventRepository(db),
	}
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(env.usrRepo)

	// set up server
	env.app = echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:           conf,
			Logger:         logger,
			Validate:       validate,
			Translator:     translator,
			UserSvc:        usrSvc,
			CurriculumSvc:  curriculum.NewService(db, env.jpcRepo, usrSvc, mailSvc, logger, conf),
			EventSvc:       event.NewService(db, env.evtRepo),
			DisableReqLogs: true,
		},
	)
	return env
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (env *testEnv) getToken(t *testing.T, usr user.User) string {
	token, err := env.app.TokenFor(usr)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves one request and returns the recorder.
func (env *testEnv) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	env.app.ServeHTTP(rec, req)
	return rec
}

// csrf fetches a CSRF token and returns it with the cookie that must accompany it.
func (env *testEnv) csrf(t *testing.T, token string) (string, *http.Cookie) {
	rec := env.do(http.MethodGet, "/v1/csrf", token)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp echoapi.CSRFResponse
	unmarshal(t, rec, &resp)
	require.NotEmpty(t, resp.CSRF)

	for _, c := range rec.Result().Cookies() {
		if c.Name == "_csrf" {
			return resp.CSRF, c
		}
	}
	t.Fatalf("csrf() failed: no _csrf cookie")
	return "", nil
}

// doCSRF serves an unsafe request carrying the CSRF header and cookie.
func (env *testEnv) doCSRF(method, path, token, csrf string, cookie *http.Cookie, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	req.Header.Set("X-CSRF-Token", csrf)
	req.AddCookie(cookie)
	env.app.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, env *testEnv, tests []httpTest) {
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			checkCodeAndData(t, tt, env.do(method, tt.path, tt.token, tt.body))
		})
	}
}
