package curriculum

import "github.com/jazzedge/academy/core/user"

// State is the derived, never persisted, status of a unit for one user.
type State string

const (
	StateLocked           State = "locked"
	StateInProgress       State = "in_progress"
	StateAllStepsComplete State = "all_steps_complete"
	StateMilestonePending State = "milestone_pending"
	StateMilestonePassed  State = "milestone_passed"
	StateMilestoneRedo    State = "milestone_redo"
)

// Gate decides which units a user may view and interact with.
type Gate struct {
	// units with an ID below FreeUnitLimit are free samples
	FreeUnitLimit int
}

func (g Gate) CanAccess(usr user.User, curriculumID int) bool {
	return curriculumID < g.FreeUnitLimit || usr.IsActiveMember || usr.IsStaff()
}

// DeriveState computes a unit's state from its ledger and latest milestone submission (nil if none).
func DeriveState(accessible bool, p Progress, latest *Submission) State {
	if !accessible {
		return StateLocked
	}
	if !p.IsComplete() {
		return StateInProgress
	}
	if latest == nil {
		return StateAllStepsComplete
	}
	switch latest.Grade.String {
	case GradePass:
		if latest.Grade.Valid {
			return StateMilestonePassed
		}
	case GradeRedo:
		if latest.Grade.Valid {
			return StateMilestoneRedo
		}
	}
	return StateMilestonePending
}

// CanSubmitMilestone reports whether a fresh submission is accepted in state s.
func (s State) CanSubmitMilestone() bool {
	return s == StateAllStepsComplete || s == StateMilestoneRedo
}

type UnitSummary struct {
	Unit
	State          State       `json:"state"`
	CompletedSteps int         `json:"completed_steps"`
	TotalSteps     int         `json:"total_steps"`
	Milestone      *Submission `json:"milestone"`
}

type StepState struct {
	Step
	EmbedURL  string `json:"embed_url"`
	Completed bool   `json:"completed"`
}

type UnitDetail struct {
	UnitSummary
	CanSubmitMilestone bool         `json:"can_submit_milestone"`
	Steps              []StepState  `json:"steps"`
	Submissions        []Submission `json:"submissions"`
}

func summarize(u Unit, accessible bool, p Progress, latest *Submission) UnitSummary {
	return UnitSummary{
		Unit:           u,
		State:          DeriveState(accessible, p, latest),
		CompletedSteps: p.CompletedCount(),
		TotalSteps:     NumKeys,
		Milestone:      latest,
	}
}
