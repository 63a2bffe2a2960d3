package curriculum

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/jazzedge/academy/core"
)

// NumKeys is the number of musical keys, hence steps, in every unit.
const NumKeys = 12

const (
	GradePass = "pass"
	GradeRedo = "redo"

	// every new student starts on the first key of the first unit
	BootstrapStepID       = 1
	BootstrapCurriculumID = 1

	vimeoPlayerURL = "https://player.vimeo.com/video/"
)

// KeySigNames names the twelve keys in practice order (around the circle of fourths).
var KeySigNames = [NumKeys]string{"C", "F", "Bb", "Eb", "Ab", "Db", "Gb", "B", "E", "A", "D", "G"}

// Unit is one focus drilled across all twelve keys.
type Unit struct {
	ID            int    `json:"id"`
	FocusTitle    string `json:"focus_title"`
	FocusOrder    int    `json:"focus_order"`
	Tempo         string `json:"tempo"`
	ResourcePDF   string `json:"resource_pdf"`
	ResourceIReal string `json:"resource_ireal"`
	ResourceMP3   string `json:"resource_mp3"`
}

// Step is one (unit, key) pair.
type Step struct {
	ID           int    `json:"step_id"`
	CurriculumID int    `json:"curriculum_id"`
	KeySig       int    `json:"key_sig"` // 1..12
	KeySigName   string `json:"key_sig_name"`
	VimeoID      string `json:"vimeo_id"`
}

func (s Step) EmbedURL() string {
	if s.VimeoID == "" {
		return ""
	}
	return vimeoPlayerURL + s.VimeoID
}

// Assignment points at the step a user is currently working on.
type Assignment struct {
	ID           int       `json:"id"`
	UserID       int       `json:"user_id"`
	StepID       int       `json:"step_id"`
	CurriculumID int       `json:"curriculum_id"`
	Date         time.Time `json:"date"`
	DeletedAt    null.Time `json:"-"`
}

// Progress is a user's completion ledger for one unit.
// Steps[k-1] holds the step ID completed for key k, or is null.
type Progress struct {
	UserID       int
	CurriculumID int
	Steps        [NumKeys]null.Int
}

func (p Progress) StepDone(keySig int) bool {
	if keySig < 1 || keySig > NumKeys {
		return false
	}
	return p.Steps[keySig-1].Valid
}

func (p Progress) CompletedCount() int {
	var n int
	for _, s := range p.Steps {
		if s.Valid {
			n++
		}
	}
	return n
}

// IsComplete reports whether all twelve keys are done.
func (p Progress) IsComplete() bool {
	return p.CompletedCount() == NumKeys
}

type Submission struct {
	ID             int         `json:"id"`
	UserID         int         `json:"user_id"`
	CurriculumID   int         `json:"curriculum_id"`
	VideoURL       string      `json:"video_url"`
	SubmissionDate time.Time   `json:"submission_date"`
	Grade          null.String `json:"grade"`
	GradedOn       null.Time   `json:"graded_on"`
	TeacherNotes   null.String `json:"teacher_notes"`
}

func (s Submission) IsPending() bool { return !s.Grade.Valid }

type StepView struct {
	ID           int
	UserID       int
	StepID       int
	CurriculumID int
	ViewedAt     time.Time
}

type StepViewCount struct {
	StepID int `json:"step_id"`
	Views  int `json:"views"`
}

// NewSubmission contains information needed to submit a milestone video.
type NewSubmission struct {
	CurriculumID int    `json:"curriculum_id" validate:"required,min=1"`
	VideoURL     string `json:"video_url" validate:"required,youtube_url"`
}

func (ns *NewSubmission) Validate(validate *validator.Validate) error {
	ns.VideoURL = core.CleanString(ns.VideoURL)
	return validate.Struct(ns)
}

// CompleteStep marks one key of a unit as done.
type CompleteStep struct {
	CurriculumID int `json:"curriculum_id" validate:"required,min=1"`
	StepID       int `json:"step_id" validate:"required,min=1"`
}

func (cs *CompleteStep) Validate(validate *validator.Validate) error {
	return validate.Struct(cs)
}

// Grade is what a teacher sets on a pending submission.
type Grade struct {
	Grade        string `json:"grade" validate:"required,grade"`
	TeacherNotes string `json:"teacher_notes"`
}

func (g *Grade) Validate(validate *validator.Validate) error {
	g.Grade = core.CleanString(g.Grade, true /* lower */)
	g.TeacherNotes = core.CleanString(g.TeacherNotes)
	return validate.Struct(g)
}

// Submission filter statuses
const (
	StatusPending = "pending"
	StatusGraded  = "graded"
	StatusAll     = "all"
)

type SubmissionFilter struct {
	Status       string `query:"status"`
	UserID       int    `query:"user_id"`
	CurriculumID int    `query:"curriculum_id"`
}

func (sf *SubmissionFilter) Clean() {
	sf.Status = core.CleanString(sf.Status, true /* lower */)
	switch sf.Status {
	case StatusPending, StatusGraded:
	default:
		sf.Status = StatusAll
	}
}

// Repository persists curriculum reference data and student progress.
// Every method runs on the optional exec (a transaction) when provided.
type Repository interface {
	QueryUnits(ctx context.Context, exec ...core.DBExecutor) ([]Unit, error)
	GetUnit(ctx context.Context, id int, exec ...core.DBExecutor) (Unit, error)
	UpsertUnits(ctx context.Context, units []Unit, exec ...core.DBExecutor) error
	QuerySteps(ctx context.Context, curriculumID int, exec ...core.DBExecutor) ([]Step, error)
	GetStep(ctx context.Context, stepID int, exec ...core.DBExecutor) (Step, error)
	UpsertSteps(ctx context.Context, steps []Step, exec ...core.DBExecutor) error

	// GetCurrentAssignment returns ErrNoAssignment when the user has no live pointer.
	GetCurrentAssignment(ctx context.Context, userID int, exec ...core.DBExecutor) (Assignment, error)
	// CreateAssignment returns ErrAssignmentExists when a live pointer already exists.
	CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
	SoftDeleteAssignments(ctx context.Context, userID int, at time.Time, exec ...core.DBExecutor) error

	QueryProgress(ctx context.Context, userID int, exec ...core.DBExecutor) ([]Progress, error)
	// GetProgress returns an empty ledger when the user has not started the unit.
	GetProgress(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (Progress, error)
	SetStepComplete(ctx context.Context, userID, curriculumID, keySig, stepID int, exec ...core.DBExecutor) error
	// DeleteProgressFrom deletes the user's progress for curriculumID and every greater ID.
	DeleteProgressFrom(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (int64, error)

	// CreateSubmission returns ErrMilestonePending when an ungraded submission already exists.
	CreateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
	GetSubmission(ctx context.Context, id int, exec ...core.DBExecutor) (Submission, error)
	// LatestSubmission returns ErrSubmissionNotFound when nothing was submitted yet.
	LatestSubmission(ctx context.Context, userID, curriculumID int, exec ...core.DBExecutor) (Submission, error)
	QuerySubmissions(ctx context.Context, filter SubmissionFilter, exec ...core.DBExecutor) ([]Submission, error)
	// GradeSubmission only updates ungraded rows and returns ErrAlreadyGraded otherwise.
	GradeSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
	DeleteSubmission(ctx context.Context, id int, exec ...core.DBExecutor) error

	CreateStepView(ctx context.Context, v StepView, exec ...core.DBExecutor) error
	CountStepViews(ctx context.Context, curriculumID int, exec ...core.DBExecutor) ([]StepViewCount, error)
}
