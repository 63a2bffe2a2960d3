package sqlxrepos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/storage/database"
)

const (
	unitColumns       = "id, focus_title, focus_order, tempo, resource_pdf, resource_ireal, resource_mp3"
	stepColumns       = "step_id, curriculum_id, key_sig, key_sig_name, vimeo_id"
	assignmentColumns = "id, user_id, step_id, curriculum_id, date, deleted_at"
	progressColumns   = "user_id, curriculum_id, step_1, step_2, step_3, step_4, step_5, step_6, step_7, step_8, step_9, step_10, step_11, step_12"
	submissionColumns = "id, user_id, curriculum_id, video_url, submission_date, grade, graded_on, teacher_notes"
)

type (
	unitRow struct {
		ID            int    `db:"id"`
		FocusTitle    string `db:"focus_title"`
		FocusOrder    int    `db:"focus_order"`
		Tempo         string `db:"tempo"`
		ResourcePDF   string `db:"resource_pdf"`
		ResourceIReal string `db:"resource_ireal"`
		ResourceMP3   string `db:"resource_mp3"`
	}

	stepRow struct {
		ID           int    `db:"step_id"`
		CurriculumID int    `db:"curriculum_id"`
		KeySig       int    `db:"key_sig"`
		KeySigName   string `db:"key_sig_name"`
		VimeoID      string `db:"vimeo_id"`
	}

	assignmentRow struct {
		ID           int       `db:"id"`
		UserID       int       `db:"user_id"`
		StepID       int       `db:"step_id"`
		CurriculumID int       `db:"curriculum_id"`
		Date         time.Time `db:"date"`
		DeletedAt    null.Time `db:"deleted_at"`
	}

	progressRow struct {
		UserID       int      `db:"user_id"`
		CurriculumID int      `db:"curriculum_id"`
		Step1        null.Int `db:"step_1"`
		Step2        null.Int `db:"step_2"`
		Step3        null.Int `db:"step_3"`
		Step4        null.Int `db:"step_4"`
		Step5        null.Int `db:"step_5"`
		Step6        null.Int `db:"step_6"`
		Step7        null.Int `db:"step_7"`
		Step8        null.Int `db:"step_8"`
		Step9        null.Int `db:"step_9"`
		Step10       null.Int `db:"step_10"`
		Step11       null.Int `db:"step_11"`
		Step12       null.Int `db:"step_12"`
	}

	submissionRow struct {
		ID             int         `db:"id"`
		UserID         int         `db:"user_id"`
		CurriculumID   int         `db:"curriculum_id"`
		VideoURL       string      `db:"video_url"`
		SubmissionDate time.Time   `db:"submission_date"`
		Grade          null.String `db:"grade"`
		GradedOn       null.Time   `db:"graded_on"`
		TeacherNotes   null.String `db:"teacher_notes"`
	}
)

func (r unitRow) unit() curriculum.Unit {
	return curriculum.Unit(r)
}

func (r stepRow) step() curriculum.Step {
	return curriculum.Step(r)
}

func (r assignmentRow) assignment() curriculum.Assignment {
	return curriculum.Assignment{
		ID:           r.ID,
		UserID:       r.UserID,
		StepID:       r.StepID,
		CurriculumID: r.CurriculumID,
		Date:         r.Date.UTC(),
		DeletedAt:    r.DeletedAt,
	}
}

func (r progressRow) progress() curriculum.Progress {
	return curriculum.Progress{
		UserID:       r.UserID,
		CurriculumID: r.CurriculumID,
		Steps: [curriculum.NumKeys]null.Int{
			r.Step1, r.Step2, r.Step3, r.Step4, r.Step5, r.Step6,
			r.Step7, r.Step8, r.Step9, r.Step10, r.Step11, r.Step12,
		},
	}
}

func (r submissionRow) submission() curriculum.Submission {
	s := curriculum.Submission{
		ID:             r.ID,
		UserID:         r.UserID,
		CurriculumID:   r.CurriculumID,
		VideoURL:       r.VideoURL,
		SubmissionDate: r.SubmissionDate.UTC(),
		Grade:          r.Grade,
		GradedOn:       r.GradedOn,
		TeacherNotes:   r.TeacherNotes,
	}
	if s.GradedOn.Valid {
		s.GradedOn.Time = s.GradedOn.Time.UTC()
	}
	return s
}

type curriculumRepository struct {
	repository
}

var _ curriculum.Repository = (*curriculumRepository)(nil) // interface compliance check

func NewCurriculumRepository(exec core.DBExecutor) *curriculumRepository {
	return &curriculumRepository{repository{exec: exec}}
}

// Units & Steps

func (repo curriculumRepository) QueryUnits(ctx context.Context, exec ...core.DBExecutor) ([]curriculum.Unit, error) {
	var rows []unitRow
	q := "SELECT " + unitColumns + " FROM je_practice_curriculum ORDER BY focus_order, id"
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying units")
	}
	units := make([]curriculum.Unit, 0, len(rows))
	for _, r := range rows {
		units = append(units, r.unit())
	}
	return units, nil
}

func (repo curriculumRepository) GetUnit(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Unit, error) {
	exe := repo.getExec(exec)
	var r unitRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind("SELECT "+unitColumns+" FROM je_practice_curriculum WHERE id = ?"), id)
	if err != nil {
		return curriculum.Unit{}, trapNoRowsErr(err, curriculum.ErrUnitNotFound, "finding unit")
	}
	return r.unit(), nil
}

func (repo curriculumRepository) UpsertUnits(ctx context.Context, units []curriculum.Unit, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(`
		INSERT INTO je_practice_curriculum (` + unitColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET focus_title = excluded.focus_title, focus_order = excluded.focus_order,
			tempo = excluded.tempo, resource_pdf = excluded.resource_pdf, resource_ireal = excluded.resource_ireal,
			resource_mp3 = excluded.resource_mp3`)
	for _, u := range units {
		if _, err := exe.ExecContext(ctx, q, u.ID, u.FocusTitle, u.FocusOrder, u.Tempo, u.ResourcePDF, u.ResourceIReal, u.ResourceMP3); err != nil {
			return errors.Wrapf(err, "upserting unit %d", u.ID)
		}
	}
	return nil
}

func (repo curriculumRepository) QuerySteps(ctx context.Context, curriculumID int, exec ...core.DBExecutor) ([]curriculum.Step, error) {
	exe := repo.getExec(exec)
	var rows []stepRow
	q := exe.Rebind("SELECT " + stepColumns + " FROM je_practice_curriculum_steps WHERE curriculum_id = ? ORDER BY key_sig")
	if err := sqlx.SelectContext(ctx, exe, &rows, q, curriculumID); err != nil {
		return nil, errors.Wrap(err, "querying steps")
	}
	steps := make([]curriculum.Step, 0, len(rows))
	for _, r := range rows {
		steps = append(steps, r.step())
	}
	return steps, nil
}

func (repo curriculumRepository) GetStep(ctx context.Context, stepID int, exec ...core.DBExecutor) (curriculum.Step, error) {
	exe := repo.getExec(exec)
	var r stepRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind("SELECT "+stepColumns+" FROM je_practice_curriculum_steps WHERE step_id = ?"), stepID)
	if err != nil {
		return curriculum.Step{}, trapNoRowsErr(err, curriculum.ErrStepNotFound, "finding step")
	}
	return r.step(), nil
}

func (repo curriculumRepository) UpsertSteps(ctx context.Context, steps []curriculum.Step, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)
	q := exe.Rebind(`
		INSERT INTO je_practice_curriculum_steps (` + stepColumns + `) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (step_id) DO UPDATE SET curriculum_id = excluded.curriculum_id, key_sig = excluded.key_sig,
			key_sig_name = excluded.key_sig_name, vimeo_id = excluded.vimeo_id`)
	for _, s := range steps {
		if _, err := exe.ExecContext(ctx, q, s.ID, s.CurriculumID, s.KeySig, s.KeySigName, s.VimeoID); err != nil {
			return errors.Wrapf(err, "upserting step %d", s.ID)
		}
	}
	return nil
}

// Assignments

func (repo curriculumRepository) GetCurrentAssignment(ctx context.Context, userID int, exec ...core.DBExecutor) (curriculum.Assignment, error) {
	exe := repo.getExec(exec)
	var r assignmentRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind(`
		SELECT `+assignmentColumns+` FROM jpc_student_assignments
		WHERE user_id = ? AND deleted_at IS NULL
		ORDER BY date DESC, id DESC LIMIT 1`), userID)
	if err != nil {
		return curriculum.Assignment{}, trapNoRowsErr(err, curriculum.ErrNoAssignment, "finding current assignment")
	}
	return r.assignment(), nil
}

func (repo curriculumRepository) CreateAssignment(ctx context.Context, a curriculum.Assignment, exec ...core.DBExecutor) (curriculum.Assignment, error) {
	a.Date = a.Date.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec), `
		INSERT INTO jpc_student_assignments (user_id, step_id, curriculum_id, date) VALUES (?, ?, ?, ?) RETURNING id`,
		a.UserID, a.StepID, a.CurriculumID, a.Date,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return curriculum.Assignment{}, curriculum.ErrAssignmentExists
		}
		return curriculum.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	a.ID = id
	return a, nil
}

func (repo curriculumRepository) SoftDeleteAssignments(ctx context.Context, userID int, at time.Time, exec ...core.DBExecutor) error {
	_, err := execAffecting(ctx, repo.getExec(exec),
		"UPDATE jpc_student_assignments SET deleted_at = ? WHERE user_id = ? AND deleted_at IS NULL", at.UTC(), userID)
	return errors.Wrap(err, "soft deleting assignments")
}

// Progress

func (repo curriculumRepository) QueryProgress(ctx context.Context, userID int, exec ...core.DBExecutor) ([]curriculum.Progress, error) {
	exe := repo.getExec(exec)
	var rows []progressRow
	q := exe.Rebind("SELECT " + progressColumns + " FROM jpc_student_progress WHERE user_id = ? ORDER BY curriculum_id")
	if err := sqlx.SelectContext(ctx, exe, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "querying progress")
	}
	ledgers := make([]curriculum.Progress, 0, len(rows))
	for _, r := range rows {
		ledgers = append(ledgers, r.progress())
	}
	return ledgers, nil
}

func (repo curriculumRepository) GetProgress(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (curriculum.Progress, error) {
	exe := repo.getExec(exec)
	var r progressRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind(
		"SELECT "+progressColumns+" FROM jpc_student_progress WHERE user_id = ? AND curriculum_id = ?"), userID, curriculumID)
	if err != nil {
		// not started yet: empty ledger
		err = trapNoRowsErr(err, nil, "finding progress")
		return curriculum.Progress{UserID: userID, CurriculumID: curriculumID}, err
	}
	return r.progress(), nil
}

func (repo curriculumRepository) SetStepComplete(ctx context.Context, userID, curriculumID, keySig, stepID int, exec ...core.DBExecutor) error {
	if keySig < 1 || keySig > curriculum.NumKeys {
		return errors.Errorf("invalid key signature %d", keySig)
	}
	col := fmt.Sprintf("step_%d", keySig)
	_, err := execAffecting(ctx, repo.getExec(exec), `
		INSERT INTO jpc_student_progress (user_id, curriculum_id, `+col+`) VALUES (?, ?, ?)
		ON CONFLICT (user_id, curriculum_id) DO UPDATE SET `+col+` = excluded.`+col,
		userID, curriculumID, stepID,
	)
	return errors.Wrap(err, "upserting progress")
}

func (repo curriculumRepository) DeleteProgressFrom(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (int64, error) {
	n, err := execAffecting(ctx, repo.getExec(exec),
		"DELETE FROM jpc_student_progress WHERE user_id = ? AND curriculum_id >= ?", userID, curriculumID)
	if err != nil {
		return 0, errors.Wrap(err, "deleting progress")
	}
	return n, nil
}

// Milestones

func (repo curriculumRepository) CreateSubmission(ctx context.Context, s curriculum.Submission, exec ...core.DBExecutor) (curriculum.Submission, error) {
	s.SubmissionDate = s.SubmissionDate.UTC()
	id, err := insertReturningID(ctx, repo.getExec(exec), `
		INSERT INTO jpc_milestone_submissions (user_id, curriculum_id, video_url, submission_date, grade, graded_on, teacher_notes)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		s.UserID, s.CurriculumID, s.VideoURL, s.SubmissionDate, s.Grade, s.GradedOn, s.TeacherNotes,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return curriculum.Submission{}, curriculum.ErrMilestonePending
		}
		return curriculum.Submission{}, errors.Wrap(err, "inserting submission")
	}
	s.ID = id
	return s, nil
}

func (repo curriculumRepository) GetSubmission(ctx context.Context, id int, exec ...core.DBExecutor) (curriculum.Submission, error) {
	exe := repo.getExec(exec)
	var r submissionRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind("SELECT "+submissionColumns+" FROM jpc_milestone_submissions WHERE id = ?"), id)
	if err != nil {
		return curriculum.Submission{}, trapNoRowsErr(err, curriculum.ErrSubmissionNotFound, "finding submission")
	}
	return r.submission(), nil
}

func (repo curriculumRepository) LatestSubmission(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (curriculum.Submission, error) {
	exe := repo.getExec(exec)
	var r submissionRow
	err := sqlx.GetContext(ctx, exe, &r, exe.Rebind(`
		SELECT `+submissionColumns+` FROM jpc_milestone_submissions
		WHERE user_id = ? AND curriculum_id = ?
		ORDER BY submission_date DESC, id DESC LIMIT 1`), userID, curriculumID)
	if err != nil {
		return curriculum.Submission{}, trapNoRowsErr(err, curriculum.ErrSubmissionNotFound, "finding latest submission")
	}
	return r.submission(), nil
}

// QuerySubmissions returns matching submissions, newest first.
func (repo curriculumRepository) QuerySubmissions(ctx context.Context, filter curriculum.SubmissionFilter, exec ...core.DBExecutor) ([]curriculum.Submission, error) {
	var (
		where []string
		args  []interface{}
	)
	switch filter.Status {
	case curriculum.StatusPending:
		where = append(where, "grade IS NULL")
	case curriculum.StatusGraded:
		where = append(where, "grade IS NOT NULL")
	}
	if filter.UserID > 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.CurriculumID > 0 {
		where = append(where, "curriculum_id = ?")
		args = append(args, filter.CurriculumID)
	}

	query := "SELECT " + submissionColumns + " FROM jpc_milestone_submissions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submission_date DESC, id DESC"

	exe := repo.getExec(exec)
	var rows []submissionRow
	if err := sqlx.SelectContext(ctx, exe, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying submissions")
	}
	subs := make([]curriculum.Submission, 0, len(rows))
	for _, r := range rows {
		subs = append(subs, r.submission())
	}
	return subs, nil
}

func (repo curriculumRepository) GradeSubmission(ctx context.Context, s curriculum.Submission, exec ...core.DBExecutor) (curriculum.Submission, error) {
	n, err := execAffecting(ctx, repo.getExec(exec), `
		UPDATE jpc_milestone_submissions SET grade = ?, graded_on = ?, teacher_notes = ?
		WHERE id = ? AND grade IS NULL`,
		s.Grade, s.GradedOn, s.TeacherNotes, s.ID,
	)
	if err != nil {
		return curriculum.Submission{}, errors.Wrap(err, "grading submission")
	}
	if n == 0 {
		return curriculum.Submission{}, curriculum.ErrAlreadyGraded
	}
	return s, nil
}

func (repo curriculumRepository) DeleteSubmission(ctx context.Context, id int, exec ...core.DBExecutor) error {
	n, err := execAffecting(ctx, repo.getExec(exec), "DELETE FROM jpc_milestone_submissions WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting submission")
	}
	if n == 0 {
		return curriculum.ErrSubmissionNotFound
	}
	return nil
}

// Views

func (repo curriculumRepository) CreateStepView(ctx context.Context, v curriculum.StepView, exec ...core.DBExecutor) error {
	_, err := execAffecting(ctx, repo.getExec(exec),
		"INSERT INTO jpc_step_views (user_id, step_id, curriculum_id, viewed_at) VALUES (?, ?, ?, ?)",
		v.UserID, v.StepID, v.CurriculumID, v.ViewedAt.UTC(),
	)
	return errors.Wrap(err, "inserting step view")
}

func (repo curriculumRepository) CountStepViews(ctx context.Context, curriculumID int, exec ...core.DBExecutor) ([]curriculum.StepViewCount, error) {
	exe := repo.getExec(exec)
	counts := make([]curriculum.StepViewCount, 0)
	rows, err := exe.QueryxContext(ctx, exe.Rebind(`
		SELECT step_id, COUNT(*) FROM jpc_step_views WHERE curriculum_id = ?
		GROUP BY step_id ORDER BY step_id`), curriculumID)
	if err != nil {
		return nil, errors.Wrap(err, "counting step views")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var c curriculum.StepViewCount
		if err = rows.Scan(&c.StepID, &c.Views); err != nil {
			return nil, errors.Wrap(err, "scanning step views")
		}
		counts = append(counts, c)
	}
	return counts, errors.Wrap(rows.Err(), "counting step views")
}
