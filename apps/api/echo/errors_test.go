package echoapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/event"
)

func TestAppHTTPErrorHandler(t *testing.T) {
	handler := newAppHTTPErrorHandler(nil, core.NewTranslator())

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{"assignment exists", curriculum.ErrAssignmentExists, http.StatusConflict, `{"error":"` + curriculum.ErrAssignmentExists.Error() + `"}`},
		{"wrapped sentinel", errors.Wrap(curriculum.ErrUnitLocked, "unit 3"), http.StatusForbidden, `{"error":"` + curriculum.ErrUnitLocked.Error() + `"}`},
		{"field error", core.NewFieldError("count", event.ErrTooManyCopies), http.StatusBadRequest, `{"count":"` + event.ErrTooManyCopies.Error() + `"}`},
		{"http error", errHttpNotFound, http.StatusNotFound, `{"error":"not found"}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			ctx := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tc.err, ctx)

			if rec.Code != tc.wantCode {
				t.Errorf("code = %d; want %d", rec.Code, tc.wantCode)
			}
			var got, want interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("invalid response body %q: %v", rec.Body.String(), err)
			}
			_ = json.Unmarshal([]byte(tc.wantBody), &want)
			if gotS, wantS := mustJSON(got), mustJSON(want); gotS != wantS {
				t.Errorf("body = %s; want %s", gotS, wantS)
			}
		})
	}
}

func mustJSON(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}
