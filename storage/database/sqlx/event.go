package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/event"
)

const eventColumns = "id, title, content, status, starts_at, ends_at, source_id, copy_group, created_at"

type (
	eventRow struct {
		ID        int         `db:"id"`
		Title     string      `db:"title"`
		Content   string      `db:"content"`
		Status    string      `db:"status"`
		StartsAt  time.Time   `db:"starts_at"`
		EndsAt    time.Time   `db:"ends_at"`
		SourceID  null.Int    `db:"source_id"`
		CopyGroup null.String `db:"copy_group"`
		CreatedAt time.Time   `db:"created_at"`
	}

	eventMetaRow struct {
		EventID int    `db:"event_id"`
		Key     string `db:"meta_key"`
		Value   string `db:"meta_value"`
	}

	eventTermRow struct {
		EventID  int    `db:"event_id"`
		Taxonomy string `db:"taxonomy"`
		Term     string `db:"term"`
	}
)

func (r eventRow) event() event.Event {
	return event.Event{
		ID:        r.ID,
		Title:     r.Title,
		Content:   r.Content,
		Status:    r.Status,
		StartsAt:  r.StartsAt.UTC(),
		EndsAt:    r.EndsAt.UTC(),
		SourceID:  r.SourceID,
		CopyGroup: r.CopyGroup,
		CreatedAt: r.CreatedAt.UTC(),
		Meta:      make(map[string]string),
		Terms:     make([]event.Term, 0),
	}
}

type eventRepository struct {
	repository
}

var _ event.Repository = (*eventRepository)(nil) // interface compliance check

func NewEventRepository(exec core.DBExecutor) *eventRepository {
	return &eventRepository{repository{exec: exec}}
}

func (repo eventRepository) CreateEvent(ctx context.Context, e event.Event, exec ...core.DBExecutor) (event.Event, error) {
	exe := repo.getExec(exec)
	e.StartsAt, e.EndsAt, e.CreatedAt = e.StartsAt.UTC(), e.EndsAt.UTC(), e.CreatedAt.UTC()

	id, err := insertReturningID(ctx, exe, `
		INSERT INTO events (title, content, status, starts_at, ends_at, source_id, copy_group, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		e.Title, e.Content, e.Status, e.StartsAt, e.EndsAt, e.SourceID, e.CopyGroup, e.CreatedAt,
	)
	if err != nil {
		return event.Event{}, errors.Wrap(err, "inserting event")
	}
	e.ID = id

	metaQ := exe.Rebind("INSERT INTO event_meta (event_id, meta_key, meta_value) VALUES (?, ?, ?)")
	for k, v := range e.Meta {
		if _, err = exe.ExecContext(ctx, metaQ, id, k, v); err != nil {
			return event.Event{}, errors.Wrapf(err, "inserting event meta %s", k)
		}
	}
	termQ := exe.Rebind("INSERT INTO event_terms (event_id, taxonomy, term) VALUES (?, ?, ?)")
	for _, t := range e.Terms {
		if _, err = exe.ExecContext(ctx, termQ, id, t.Taxonomy, t.Term); err != nil {
			return event.Event{}, errors.Wrapf(err, "inserting event term %s:%s", t.Taxonomy, t.Term)
		}
	}

	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	if e.Terms == nil {
		e.Terms = make([]event.Term, 0)
	}
	return e, nil
}

func (repo eventRepository) GetEventByID(ctx context.Context, id int, exec ...core.DBExecutor) (event.Event, error) {
	exe := repo.getExec(exec)
	var r eventRow
	if err := sqlx.GetContext(ctx, exe, &r, exe.Rebind("SELECT "+eventColumns+" FROM events WHERE id = ?"), id); err != nil {
		return event.Event{}, trapNoRowsErr(err, event.ErrNotFound, "finding event")
	}
	events := []event.Event{r.event()}
	if err := repo.loadRelations(ctx, exe, events); err != nil {
		return event.Event{}, err
	}
	return events[0], nil
}

func (repo eventRepository) QueryEvents(ctx context.Context, from, to time.Time, exec ...core.DBExecutor) ([]event.Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if !from.IsZero() {
		where = append(where, "starts_at >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where = append(where, "starts_at < ?")
		args = append(args, to.UTC())
	}
	query := "SELECT " + eventColumns + " FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY starts_at, id"

	exe := repo.getExec(exec)
	var rows []eventRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	if err := repo.loadRelations(ctx, exe, events); err != nil {
		return nil, err
	}
	return events, nil
}

// loadRelations fills the meta and terms of events in two queries.
func (repo eventRepository) loadRelations(ctx context.Context, exe core.DBExecutor, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]int, 0, len(events))
	index := make(map[int]int, len(events))
	for i, e := range events {
		ids = append(ids, e.ID)
		index[e.ID] = i
	}

	q, args, err := in(exe, "SELECT event_id, meta_key, meta_value FROM event_meta WHERE event_id IN (?) ORDER BY meta_key", ids)
	if err != nil {
		return errors.Wrap(err, "building meta query")
	}
	var metas []eventMetaRow
	if err = sqlx.SelectContext(ctx, exe, &metas, q, args...); err != nil {
		return errors.Wrap(err, "querying event meta")
	}
	for _, m := range metas {
		events[index[m.EventID]].Meta[m.Key] = m.Value
	}

	q, args, err = in(exe, "SELECT event_id, taxonomy, term FROM event_terms WHERE event_id IN (?) ORDER BY taxonomy, term", ids)
	if err != nil {
		return errors.Wrap(err, "building terms query")
	}
	var terms []eventTermRow
	if err = sqlx.SelectContext(ctx, exe, &terms, q, args...); err != nil {
		return errors.Wrap(err, "querying event terms")
	}
	for _, t := range terms {
		i := index[t.EventID]
		events[i].Terms = append(events[i].Terms, event.Term{Taxonomy: t.Taxonomy, Term: t.Term})
	}
	return nil
}
