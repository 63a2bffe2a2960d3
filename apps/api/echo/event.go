package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core/event"
)

type eventApi struct {
	svc       event.Service
	validate  *validator.Validate
	maxCopies int
}

func registerEventAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc event.Service,
	validate *validator.Validate,
	maxCopies int,
) {
	api := eventApi{
		svc:       svc,
		validate:  validate,
		maxCopies: maxCopies,
	}

	eg := g.Group("/events", jwt, adminMiddleware())
	eg.POST("", api.create)
	eg.GET("", api.query)
	eg.GET("/:id", api.retrieve)
	eg.POST("/:id/copies", api.copy)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	e, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, e)
}

func (api *eventApi) query(ctx echo.Context) error {
	var filter event.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	events, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) retrieve(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	e, err := api.svc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting event")
	}
	return ctx.JSON(http.StatusOK, e)
}

func (api *eventApi) copy(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	var data event.Recurrence
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Recurrence")
	}
	if err = data.Validate(api.validate, api.maxCopies); err != nil {
		return err
	}
	copies, err := api.svc.CopyEvent(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "copying event")
	}
	return ctx.JSON(http.StatusCreated, copies)
}
