package event

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
)

// Interval units
const (
	UnitDays   = "days"
	UnitWeeks  = "weeks"
	UnitMonths = "months"
)

const (
	StatusPublish = "publish"
	StatusDraft   = "draft"

	// copies always last exactly one hour
	copyDuration = time.Hour
)

// ExcludedMeta lists the per-recording meta keys that are never copied to sibling events.
var ExcludedMeta = map[string]bool{
	"replay_video_id": true,
	"replay_cdn_url":  true,
}

type Event struct {
	ID        int               `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Status    string            `json:"status"`
	StartsAt  time.Time         `json:"starts_at"` // UTC
	EndsAt    time.Time         `json:"ends_at"`   // UTC
	SourceID  null.Int          `json:"source_id"`
	CopyGroup null.String       `json:"copy_group"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta"`
	Terms     []Term            `json:"terms"`
}

type Term struct {
	Taxonomy string `json:"taxonomy" validate:"required"`
	Term     string `json:"term" validate:"required"`
}

// NewEvent contains information needed to create an Event.
type NewEvent struct {
	Title    string            `json:"title" validate:"required,notblank"`
	Content  string            `json:"content"`
	Status   string            `json:"status" validate:"omitempty,oneof=publish draft"`
	StartsAt time.Time         `json:"starts_at" validate:"required"`
	EndsAt   time.Time         `json:"ends_at" validate:"required,gtefield=StartsAt"`
	Meta     map[string]string `json:"meta"`
	Terms    []Term            `json:"terms" validate:"dive"`
}

func (ne *NewEvent) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.Status = core.CleanString(ne.Status, true /* lower */)
	if ne.Status == "" {
		ne.Status = StatusPublish
	}
	return validate.Struct(ne)
}

// Recurrence describes how a source event is repeated.
type Recurrence struct {
	Every int    `json:"every" validate:"omitempty,min=1"`
	Unit  string `json:"unit" validate:"required,interval_unit"`
	Count int    `json:"count" validate:"required,min=1"`
}

func (r *Recurrence) Validate(validate *validator.Validate, maxCopies int) error {
	r.Unit = core.CleanString(r.Unit, true /* lower */)
	if r.Every == 0 {
		r.Every = 1
	}
	if err := validate.Struct(r); err != nil {
		return err
	}
	if r.Count > maxCopies {
		return core.NewFieldError("count", ErrTooManyCopies)
	}
	return nil
}

// Start returns the start of the i-th copy (0-based). Months are added to the
// source start in one step, so day overflow never accumulates across copies.
func (r Recurrence) Start(source time.Time, i int) time.Time {
	n := i * r.Every
	switch r.Unit {
	case UnitWeeks:
		return source.AddDate(0, 0, 7*n)
	case UnitMonths:
		return source.AddDate(0, n, 0)
	default:
		return source.AddDate(0, 0, n)
	}
}

type QueryFilter struct {
	From string `query:"from"`
	To   string `query:"to"`
}

// Range parses the filter bounds (RFC3339 or YYYY-MM-DD). Missing bounds are zero.
func (qf QueryFilter) Range() (from, to time.Time, err error) {
	parse := func(field, v string) (time.Time, error) {
		v = core.CleanString(v)
		if v == "" {
			return time.Time{}, nil
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, core.NewFieldError(field, ErrInvalidDate)
	}
	if from, err = parse("from", qf.From); err != nil {
		return
	}
	to, err = parse("to", qf.To)
	return
}

type Repository interface {
	// CreateEvent inserts e with its meta and terms.
	CreateEvent(ctx context.Context, e Event, exec ...core.DBExecutor) (Event, error)
	GetEventByID(ctx context.Context, id int, exec ...core.DBExecutor) (Event, error)
	// QueryEvents returns events starting within [from, to). Zero bounds are open.
	QueryEvents(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) ([]Event, error)
}
