package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core/curriculum"
)

type curriculumApi struct {
	auth     *authenticator
	svc      curriculum.Service
	validate *validator.Validate
}

func registerCurriculumAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	csrf echo.MiddlewareFunc,
	auth *authenticator,
	svc curriculum.Service,
	validate *validator.Validate,
) {
	api := curriculumApi{
		auth:     auth,
		svc:      svc,
		validate: validate,
	}

	jg := g.Group("/jpc", jwt)
	jg.GET("/assignment", api.assignment)
	jg.GET("/units", api.units)
	jg.GET("/units/:id", api.unit)
	jg.POST("/completed", api.completeStep)
	jg.POST("/steps/:id/views", api.recordView)
	jg.GET("/milestones", api.ownSubmissions)
	jg.POST("/milestones", api.submitMilestone)
	jg.POST("/progress/reset", api.resetProgress, csrf)

	// grading
	ag := jg.Group("/admin", staffMiddleware)
	ag.GET("/milestones", api.submissions)
	ag.PUT("/milestones/:id/grade", api.grade)
	ag.DELETE("/milestones/:id", api.deleteSubmission, adminMiddleware(), csrf)
	ag.GET("/units/:id/views", api.viewCounts)
}

// Handlers

// assignment answers a freshly bootstrapped pointer with a redirect to itself.
func (api *curriculumApi) assignment(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, created, err := api.svc.ResolveAssignment(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "resolving assignment")
	}
	if created {
		return ctx.Redirect(http.StatusSeeOther, ctx.Request().URL.RequestURI())
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *curriculumApi) units(ctx echo.Context) error {
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	summaries, err := api.svc.UnitStates(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "getting unit states")
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *curriculumApi) unit(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	detail, err := api.svc.UnitDetail(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting unit detail")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *curriculumApi) completeStep(ctx echo.Context) error {
	var data curriculum.CompleteStep
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteStep")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	a, err := api.svc.MarkStepComplete(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "marking step complete")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *curriculumApi) recordView(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.RecordStepView(ctx.Request().Context(), usr, id); err != nil {
		return errors.Wrap(err, "recording step view")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *curriculumApi) ownSubmissions(ctx echo.Context) error {
	var filter curriculum.SubmissionFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to SubmissionFilter")
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter.UserID = usr.ID

	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *curriculumApi) submitMilestone(ctx echo.Context) error {
	var data curriculum.NewSubmission
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSubmission")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.SubmitMilestone(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "submitting milestone")
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *curriculumApi) resetProgress(ctx echo.Context) error {
	var data ResetProgressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetProgressRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	// students reset themselves, admins anyone
	userID := usr.ID
	if data.UserID != 0 && data.UserID != usr.ID {
		if !usr.IsAdmin() {
			return errHttpForbidden
		}
		userID = data.UserID
	}

	deleted, err := api.svc.ResetProgress(ctx.Request().Context(), userID, data.CurriculumID)
	if err != nil {
		return errors.Wrap(err, "resetting progress")
	}
	return ctx.JSON(http.StatusOK, ResetProgressResponse{Deleted: deleted})
}

func (api *curriculumApi) submissions(ctx echo.Context) error {
	var filter curriculum.SubmissionFilter
	if err := ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to SubmissionFilter")
	}
	subs, err := api.svc.ListSubmissions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *curriculumApi) grade(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	var data curriculum.Grade
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Grade")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	grader, err := api.auth.contextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	sub, err := api.svc.GradeMilestone(ctx.Request().Context(), grader, id, data)
	if err != nil {
		return errors.Wrap(err, "grading milestone")
	}
	return ctx.JSON(http.StatusOK, sub)
}

func (api *curriculumApi) deleteSubmission(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSubmission(ctx.Request().Context(), id); err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *curriculumApi) viewCounts(ctx echo.Context) error {
	id, err := bindID(ctx, "id")
	if err != nil {
		return err
	}
	counts, err := api.svc.StepViewCounts(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "counting step views")
	}
	return ctx.JSON(http.StatusOK, counts)
}

type (
	ResetProgressRequest struct {
		UserID       int `json:"user_id" validate:"omitempty,min=1"`
		CurriculumID int `json:"curriculum_id" validate:"required,min=1"`
	}

	ResetProgressResponse struct {
		Deleted int64 `json:"deleted"`
	}
)
