package event

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
)

func TestRecurrence_Start(t *testing.T) {
	src := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		r    Recurrence
		i    int
		want time.Time
	}{
		{name: "first copy starts with the source", r: Recurrence{Every: 2, Unit: UnitWeeks}, i: 0, want: src},
		{name: "days", r: Recurrence{Every: 3, Unit: UnitDays}, i: 2, want: time.Date(2024, 2, 6, 10, 0, 0, 0, time.UTC)},
		{name: "weeks", r: Recurrence{Every: 1, Unit: UnitWeeks}, i: 2, want: time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)},
		{name: "biweekly", r: Recurrence{Every: 2, Unit: UnitWeeks}, i: 1, want: time.Date(2024, 2, 14, 10, 0, 0, 0, time.UTC)},
		{name: "month overflow", r: Recurrence{Every: 1, Unit: UnitMonths}, i: 1, want: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)},
		{name: "months do not accumulate", r: Recurrence{Every: 1, Unit: UnitMonths}, i: 2, want: time.Date(2024, 3, 31, 10, 0, 0, 0, time.UTC)},
		{name: "yearly via months", r: Recurrence{Every: 12, Unit: UnitMonths}, i: 1, want: time.Date(2025, 1, 31, 10, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Start(src, tt.i); !got.Equal(tt.want) {
				t.Errorf("Start() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecurrence_Validate(t *testing.T) {
	validate := validator.New()
	_ = validate.RegisterValidation(intervalUnitTag, intervalUnitValidation)

	r := Recurrence{Unit: " WEEKS ", Count: 3}
	if err := r.Validate(validate, 5); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
	if r.Every != 1 || r.Unit != UnitWeeks {
		t.Errorf("Validate() did not clean: %+v", r)
	}

	tests := []struct {
		name string
		r    Recurrence
	}{
		{name: "no unit", r: Recurrence{Count: 1}},
		{name: "bad unit", r: Recurrence{Unit: "years", Count: 1}},
		{name: "no count", r: Recurrence{Unit: UnitDays}},
		{name: "negative every", r: Recurrence{Every: -1, Unit: UnitDays, Count: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.r.Validate(validate, 5); err == nil {
				t.Error("Validate() expected an error")
			}
		})
	}

	r = Recurrence{Unit: UnitDays, Count: 6}
	err := r.Validate(validate, 5)
	vErr, ok := errors.Cause(err).(*core.ValidationError)
	if !ok || vErr.Err != ErrTooManyCopies || vErr.Fields[0].Field != "count" {
		t.Errorf("Validate() error = %v, want ErrTooManyCopies on count", err)
	}
}

func TestQueryFilter_Range(t *testing.T) {
	tests := []struct {
		name     string
		qf       QueryFilter
		wantFrom time.Time
		wantTo   time.Time
		wantErr  bool
	}{
		{name: "open"},
		{name: "dates", qf: QueryFilter{From: "2024-01-02", To: " 2024-02-01 "},
			wantFrom: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), wantTo: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{name: "rfc3339 is stored in UTC", qf: QueryFilter{From: "2024-01-02T10:00:00+02:00"},
			wantFrom: time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)},
		{name: "bad from", qf: QueryFilter{From: "tomorrow"}, wantErr: true},
		{name: "bad to", qf: QueryFilter{To: "01/02/2024"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := tt.qf.Range()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Range() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !from.Equal(tt.wantFrom) || !to.Equal(tt.wantTo) {
				t.Errorf("Range() = (%v, %v), want (%v, %v)", from, to, tt.wantFrom, tt.wantTo)
			}
		})
	}
}
