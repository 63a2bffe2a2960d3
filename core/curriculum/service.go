package curriculum

import (
	"context"
	"fmt"
	"net/mail"
	"sort"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/user"
)

var (
	// errors
	ErrUnitNotFound       = errors.New("unit not found")
	ErrStepNotFound       = errors.New("step not found")
	ErrSubmissionNotFound = errors.New("milestone submission not found")
	ErrNoAssignment       = errors.New("no current assignment")
	ErrAssignmentExists   = errors.New("a current assignment already exists")
	ErrUnitLocked         = errors.New("this unit is reserved to active members")
	ErrStepNotInUnit      = errors.New("step does not belong to this unit")
	ErrStepsIncomplete    = errors.New("all 12 keys must be completed before submitting a milestone")
	ErrMilestonePending   = errors.New("a milestone submission for this unit is awaiting grading")
	ErrMilestonePassed    = errors.New("the milestone for this unit was already passed")
	ErrAlreadyGraded      = errors.New("this milestone submission was already graded")
	ErrNotStaff           = errors.New("only teachers and admins may grade milestones")
)

const (
	gradedTemplate = "milestone_graded"
	digestTemplate = "milestone_digest"
)

type (
	Service interface {
		// ResolveAssignment returns the user's live pointer, creating it on the first step when missing.
		// created is true when the pointer was just bootstrapped.
		ResolveAssignment(ctx context.Context, usr user.User) (a Assignment, created bool, err error)
		MarkStepComplete(ctx context.Context, usr user.User, cs CompleteStep) (Assignment, error)
		UnitStates(ctx context.Context, usr user.User) ([]UnitSummary, error)
		UnitDetail(ctx context.Context, usr user.User, curriculumID int) (UnitDetail, error)
		CompletedUnits(ctx context.Context, usr user.User) ([]UnitSummary, error)
		RecordStepView(ctx context.Context, usr user.User, stepID int) error
		StepViewCounts(ctx context.Context, curriculumID int) ([]StepViewCount, error)

		SubmitMilestone(ctx context.Context, usr user.User, ns NewSubmission) (Submission, error)
		GradeMilestone(ctx context.Context, grader user.User, id int, g Grade) (Submission, error)
		ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error)
		DeleteSubmission(ctx context.Context, id int) error
		SendPendingDigest(ctx context.Context) error

		// ResetProgress deletes the user's progress for curriculumID and every unit after it.
		ResetProgress(ctx context.Context, userID, curriculumID int) (int64, error)
		ImportCurriculum(ctx context.Context, units []Unit, steps []Step) error
	}

	service struct {
		db      core.DB
		repo    Repository
		usrSvc  user.Service
		mailSvc core.EmailService
		logger  core.Logger
		gate    Gate
	}
)

var _ Service = (*service)(nil)

func NewService(db core.DB, repo Repository, usrSvc user.Service, mailSvc core.EmailService, logger core.Logger, conf *core.Config) Service {
	return &service{
		db:      db,
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
		gate:    Gate{FreeUnitLimit: conf.JPC.FreeUnitLimit},
	}
}

func (svc *service) ResolveAssignment(ctx context.Context, usr user.User) (Assignment, bool, error) {
	a, err := svc.repo.GetCurrentAssignment(ctx, usr.ID)
	if err == nil {
		return a, false, nil
	} else if errors.Cause(err) != ErrNoAssignment {
		return Assignment{}, false, errors.Wrap(err, "getting current assignment")
	}

	a, err = svc.repo.CreateAssignment(ctx, Assignment{
		UserID:       usr.ID,
		StepID:       BootstrapStepID,
		CurriculumID: BootstrapCurriculumID,
		Date:         core.Now(),
	})
	if errors.Cause(err) == ErrAssignmentExists {
		// a concurrent request bootstrapped it first
		a, err = svc.repo.GetCurrentAssignment(ctx, usr.ID)
		return a, false, errors.Wrap(err, "getting current assignment")
	} else if err != nil {
		return Assignment{}, false, errors.Wrap(err, "bootstrapping assignment")
	}
	return a, true, nil
}

func (svc *service) MarkStepComplete(ctx context.Context, usr user.User, cs CompleteStep) (Assignment, error) {
	if !svc.gate.CanAccess(usr, cs.CurriculumID) {
		return Assignment{}, ErrUnitLocked
	}
	step, err := svc.repo.GetStep(ctx, cs.StepID)
	if err != nil {
		return Assignment{}, err
	}
	if step.CurriculumID != cs.CurriculumID {
		return Assignment{}, ErrStepNotInUnit
	}

	var current Assignment
	err = core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		progress, err := svc.repo.GetProgress(ctx, usr.ID, step.CurriculumID, tx)
		if err != nil {
			return errors.Wrap(err, "getting progress")
		}
		current, err = svc.repo.GetCurrentAssignment(ctx, usr.ID, tx)
		hasPointer := err == nil
		if err != nil && errors.Cause(err) != ErrNoAssignment {
			return errors.Wrap(err, "getting current assignment")
		}
		// re-marking a done key changes nothing
		if progress.StepDone(step.KeySig) {
			return nil
		}
		if err = svc.repo.SetStepComplete(ctx, usr.ID, step.CurriculumID, step.KeySig, step.ID, tx); err != nil {
			return errors.Wrap(err, "setting step complete")
		}

		units, err := svc.repo.QueryUnits(ctx, tx)
		if err != nil {
			return errors.Wrap(err, "querying units")
		}
		pos := make(map[int]int, len(units))
		for i, u := range units {
			pos[u.ID] = i
		}
		// the pointer never moves back to an earlier unit
		if hasPointer && pos[step.CurriculumID] < pos[current.CurriculumID] {
			return nil
		}

		next, ok, err := svc.nextStep(ctx, usr.ID, units[pos[step.CurriculumID]:], tx)
		if err != nil {
			return err
		}
		if !ok || (hasPointer && current.StepID == next.ID) {
			return nil
		}
		current, err = svc.moveAssignment(ctx, usr.ID, next, tx)
		return err
	})
	return current, err
}

// nextStep returns the first incomplete key of units, in order. ok is false when they are all complete.
func (svc *service) nextStep(ctx context.Context, userID int, units []Unit, tx core.DBExecutor) (Step, bool, error) {
	for _, u := range units {
		progress, err := svc.repo.GetProgress(ctx, userID, u.ID, tx)
		if err != nil {
			return Step{}, false, errors.Wrap(err, "getting progress")
		}
		if progress.IsComplete() {
			continue
		}
		steps, err := svc.repo.QuerySteps(ctx, u.ID, tx)
		if err != nil {
			return Step{}, false, errors.Wrap(err, "querying steps")
		}
		for _, s := range steps {
			if !progress.StepDone(s.KeySig) {
				return s, true, nil
			}
		}
	}
	return Step{}, false, nil
}

// moveAssignment retires the user's live pointer and points it at step.
func (svc *service) moveAssignment(ctx context.Context, userID int, step Step, tx core.DBExecutor) (Assignment, error) {
	now := core.Now()
	if err := svc.repo.SoftDeleteAssignments(ctx, userID, now, tx); err != nil {
		return Assignment{}, errors.Wrap(err, "retiring assignment")
	}
	a, err := svc.repo.CreateAssignment(ctx, Assignment{
		UserID:       userID,
		StepID:       step.ID,
		CurriculumID: step.CurriculumID,
		Date:         now,
	}, tx)
	return a, errors.Wrap(err, "creating assignment")
}

// latestSubmissions maps curriculum IDs to the user's most recent submission.
func (svc *service) latestSubmissions(ctx context.Context, userID int) (map[int]*Submission, error) {
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{UserID: userID, Status: StatusAll})
	if err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	latest := make(map[int]*Submission)
	for i := range subs {
		// subs are sorted newest first
		if _, ok := latest[subs[i].CurriculumID]; !ok {
			latest[subs[i].CurriculumID] = &subs[i]
		}
	}
	return latest, nil
}

func (svc *service) UnitStates(ctx context.Context, usr user.User) ([]UnitSummary, error) {
	units, err := svc.repo.QueryUnits(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying units")
	}
	ledgers, err := svc.repo.QueryProgress(ctx, usr.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	progress := make(map[int]Progress, len(ledgers))
	for _, p := range ledgers {
		progress[p.CurriculumID] = p
	}
	latest, err := svc.latestSubmissions(ctx, usr.ID)
	if err != nil {
		return nil, err
	}

	summaries := make([]UnitSummary, 0, len(units))
	for _, u := range units {
		p, ok := progress[u.ID]
		if !ok {
			p = Progress{UserID: usr.ID, CurriculumID: u.ID}
		}
		summaries = append(summaries, summarize(u, svc.gate.CanAccess(usr, u.ID), p, latest[u.ID]))
	}
	return summaries, nil
}

func (svc *service) CompletedUnits(ctx context.Context, usr user.User) ([]UnitSummary, error) {
	all, err := svc.UnitStates(ctx, usr)
	if err != nil {
		return nil, err
	}
	done := make([]UnitSummary, 0)
	for _, s := range all {
		if s.State == StateMilestonePassed {
			done = append(done, s)
		}
	}
	return done, nil
}

func (svc *service) UnitDetail(ctx context.Context, usr user.User, curriculumID int) (UnitDetail, error) {
	unit, err := svc.repo.GetUnit(ctx, curriculumID)
	if err != nil {
		return UnitDetail{}, err
	}
	if !svc.gate.CanAccess(usr, unit.ID) {
		return UnitDetail{}, ErrUnitLocked
	}
	steps, err := svc.repo.QuerySteps(ctx, unit.ID)
	if err != nil {
		return UnitDetail{}, errors.Wrap(err, "querying steps")
	}
	progress, err := svc.repo.GetProgress(ctx, usr.ID, unit.ID)
	if err != nil {
		return UnitDetail{}, errors.Wrap(err, "getting progress")
	}
	subs, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{UserID: usr.ID, CurriculumID: unit.ID, Status: StatusAll})
	if err != nil {
		return UnitDetail{}, errors.Wrap(err, "querying submissions")
	}
	var latest *Submission
	if len(subs) > 0 {
		latest = &subs[0]
	}

	detail := UnitDetail{
		UnitSummary: summarize(unit, true, progress, latest),
		Steps:       make([]StepState, 0, len(steps)),
		Submissions: subs,
	}
	detail.CanSubmitMilestone = detail.State.CanSubmitMilestone()
	for _, s := range steps {
		detail.Steps = append(detail.Steps, StepState{
			Step:      s,
			EmbedURL:  s.EmbedURL(),
			Completed: progress.StepDone(s.KeySig),
		})
	}
	return detail, nil
}

func (svc *service) RecordStepView(ctx context.Context, usr user.User, stepID int) error {
	step, err := svc.repo.GetStep(ctx, stepID)
	if err != nil {
		return err
	}
	if !svc.gate.CanAccess(usr, step.CurriculumID) {
		return ErrUnitLocked
	}
	return svc.repo.CreateStepView(ctx, StepView{
		UserID:       usr.ID,
		StepID:       step.ID,
		CurriculumID: step.CurriculumID,
		ViewedAt:     core.Now(),
	})
}

func (svc *service) StepViewCounts(ctx context.Context, curriculumID int) ([]StepViewCount, error) {
	if _, err := svc.repo.GetUnit(ctx, curriculumID); err != nil {
		return nil, err
	}
	return svc.repo.CountStepViews(ctx, curriculumID)
}

func (svc *service) SubmitMilestone(ctx context.Context, usr user.User, ns NewSubmission) (Submission, error) {
	if !svc.gate.CanAccess(usr, ns.CurriculumID) {
		return Submission{}, ErrUnitLocked
	}
	if _, err := svc.repo.GetUnit(ctx, ns.CurriculumID); err != nil {
		return Submission{}, err
	}

	var sub Submission
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		progress, err := svc.repo.GetProgress(ctx, usr.ID, ns.CurriculumID, tx)
		if err != nil {
			return errors.Wrap(err, "getting progress")
		}
		if !progress.IsComplete() {
			return ErrStepsIncomplete
		}

		latest, err := svc.repo.LatestSubmission(ctx, usr.ID, ns.CurriculumID, tx)
		switch {
		case err == nil && latest.IsPending():
			return ErrMilestonePending
		case err == nil && latest.Grade.String == GradePass:
			return ErrMilestonePassed
		case err != nil && errors.Cause(err) != ErrSubmissionNotFound:
			return errors.Wrap(err, "getting latest submission")
		}

		// the pending index rejects a concurrent duplicate with ErrMilestonePending
		sub, err = svc.repo.CreateSubmission(ctx, Submission{
			UserID:         usr.ID,
			CurriculumID:   ns.CurriculumID,
			VideoURL:       ns.VideoURL,
			SubmissionDate: core.Now(),
		}, tx)
		return err
	})
	return sub, err
}

func (svc *service) GradeMilestone(ctx context.Context, grader user.User, id int, g Grade) (Submission, error) {
	if !grader.IsStaff() {
		return Submission{}, ErrNotStaff
	}
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if !sub.IsPending() {
		return Submission{}, ErrAlreadyGraded
	}

	sub.Grade = null.StringFrom(g.Grade)
	sub.GradedOn = null.TimeFrom(core.Now())
	sub.TeacherNotes = null.NewString(g.TeacherNotes, g.TeacherNotes != "")
	if sub, err = svc.repo.GradeSubmission(ctx, sub); err != nil {
		return Submission{}, err
	}

	svc.notifyGraded(ctx, grader, sub)
	return sub, nil
}

type gradedMailData struct {
	StudentName  string
	FocusTitle   string
	CurriculumID int
	Grade        string
	TeacherNotes string
}

// notifyGraded emails the student their grade. Failures are logged, the grade stands.
func (svc *service) notifyGraded(ctx context.Context, grader user.User, sub Submission) {
	student, err := svc.usrSvc.GetByID(ctx, sub.UserID)
	if err != nil {
		svc.logger.Error("getting graded student", err, grader)
		return
	}
	if student.Email == "" {
		return
	}
	unit, err := svc.repo.GetUnit(ctx, sub.CurriculumID)
	if err != nil {
		svc.logger.Error("getting graded unit", err, grader)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      fmt.Sprintf("Your milestone for %q was graded", unit.FocusTitle),
		TemplateName: gradedTemplate,
		TemplateData: gradedMailData{
			StudentName:  student.Name,
			FocusTitle:   unit.FocusTitle,
			CurriculumID: unit.ID,
			Grade:        sub.Grade.String,
			TeacherNotes: sub.TeacherNotes.String,
		},
	})
}

func (svc *service) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	filter.Clean()
	return svc.repo.QuerySubmissions(ctx, filter)
}

func (svc *service) DeleteSubmission(ctx context.Context, id int) error {
	return svc.repo.DeleteSubmission(ctx, id)
}

type digestMailData struct {
	GraderName  string
	Submissions []Submission
}

// SendPendingDigest emails every teacher the list of submissions awaiting a grade.
func (svc *service) SendPendingDigest(ctx context.Context) error {
	pending, err := svc.repo.QuerySubmissions(ctx, SubmissionFilter{Status: StatusPending})
	if err != nil {
		return errors.Wrap(err, "querying pending submissions")
	}
	if len(pending) == 0 {
		return nil
	}
	// oldest first
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].SubmissionDate.Before(pending[j].SubmissionDate)
	})

	active := true
	graders, err := svc.usrSvc.Query(ctx, &user.QueryFilter{Roles: user.TeacherRoles, IsActive: &active}, nil)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	messages := make([]*core.EmailMessage, 0, len(graders))
	for _, g := range graders {
		if g.Email == "" {
			continue
		}
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: g.Name, Address: g.Email}},
			Subject:      fmt.Sprintf("%d milestone submission(s) awaiting grading", len(pending)),
			TemplateName: digestTemplate,
			TemplateData: digestMailData{GraderName: g.Name, Submissions: pending},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
	return nil
}

func (svc *service) ResetProgress(ctx context.Context, userID, curriculumID int) (int64, error) {
	if curriculumID < 1 {
		return 0, ErrUnitNotFound
	}
	if _, err := svc.usrSvc.GetByID(ctx, userID); err != nil {
		return 0, err
	}

	var deleted int64
	err := core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		var err error
		if deleted, err = svc.repo.DeleteProgressFrom(ctx, userID, curriculumID, tx); err != nil {
			return errors.Wrap(err, "deleting progress")
		}

		current, err := svc.repo.GetCurrentAssignment(ctx, userID, tx)
		if errors.Cause(err) == ErrNoAssignment {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "getting current assignment")
		}
		if current.CurriculumID < curriculumID {
			return nil
		}
		steps, err := svc.repo.QuerySteps(ctx, curriculumID, tx)
		if err != nil {
			return errors.Wrap(err, "querying steps")
		}
		if len(steps) == 0 || steps[0].ID == current.StepID {
			return nil
		}
		_, err = svc.moveAssignment(ctx, userID, steps[0], tx)
		return err
	})
	return deleted, err
}

func (svc *service) ImportCurriculum(ctx context.Context, units []Unit, steps []Step) error {
	return core.RunInTx(ctx, svc.db, func(tx core.DBExecutor) error {
		if err := svc.repo.UpsertUnits(ctx, units, tx); err != nil {
			return errors.Wrap(err, "upserting units")
		}
		return errors.Wrap(svc.repo.UpsertSteps(ctx, steps, tx), "upserting steps")
	})
}
