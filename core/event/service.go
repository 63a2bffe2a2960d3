package event

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
)

var (
	// errors
	ErrNotFound      = errors.New("event not found")
	ErrTooManyCopies = errors.New("too many copies requested")
	ErrInvalidDate   = errors.New("invalid date, expected YYYY-MM-DD or RFC3339")
)

type (
	Service interface {
		Create(ctx context.Context, ne NewEvent) (Event, error)
		Get(ctx context.Context, id int) (Event, error)
		Query(ctx context.Context, filter QueryFilter) ([]Event, error)
		// CopyEvent creates r.Count copies of the source event, all in one copy group.
		CopyEvent(ctx context.Context, sourceID int, r Recurrence) ([]Event, error)
	}

	service struct {
		db   core.DB
		repo Repository
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository) Service {
	return &service{db: db, repo: repo}
}

func (svc *service) Create(ctx context.Context, ne NewEvent) (Event, error) {
	var e Event
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		e, err = svc.repo.CreateEvent(ctx, Event{
			Title:     ne.Title,
			Content:   ne.Content,
			Status:    ne.Status,
			StartsAt:  ne.StartsAt.UTC(),
			EndsAt:    ne.EndsAt.UTC(),
			CreatedAt: core.Now(),
			Meta:      ne.Meta,
			Terms:     ne.Terms,
		}, tx)
		return err
	})
	return e, err
}

func (svc *service) Get(ctx context.Context, id int) (Event, error) {
	return svc.repo.GetEventByID(ctx, id)
}

func (svc *service) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	from, to, err := filter.Range()
	if err != nil {
		return nil, err
	}
	return svc.repo.QueryEvents(ctx, from, to)
}

func (svc *service) CopyEvent(ctx context.Context, sourceID int, r Recurrence) ([]Event, error) {
	src, err := svc.repo.GetEventByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string, len(src.Meta))
	for k, v := range src.Meta {
		if !ExcludedMeta[k] {
			meta[k] = v
		}
	}
	group := null.StringFrom(uuid.New().String())
	now := core.Now()

	copies := make([]Event, 0, r.Count)
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		for i := 0; i < r.Count; i++ {
			start := r.Start(src.StartsAt, i)
			e, err := svc.repo.CreateEvent(ctx, Event{
				Title:     src.Title,
				Content:   src.Content,
				Status:    src.Status,
				StartsAt:  start,
				EndsAt:    start.Add(copyDuration),
				SourceID:  null.IntFrom(src.ID),
				CopyGroup: group,
				CreatedAt: now,
				Meta:      meta,
				Terms:     src.Terms,
			}, tx)
			if err != nil {
				return errors.Wrapf(err, "creating copy %d", i)
			}
			copies = append(copies, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return copies, nil
}
