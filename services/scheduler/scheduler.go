package schedsvc

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
)

const digestTimeout = time.Minute

// Digester sends the pending milestones digest to graders.
type Digester interface {
	SendPendingDigest(ctx context.Context) error
}

// Scheduler runs the periodic jobs of the academy.
type Scheduler struct {
	scheduler *gocron.Scheduler
	digester  Digester
	logger    core.Logger
	digestAt  string
}

func New(digester Digester, logger core.Logger, conf *core.Config) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	return &Scheduler{
		scheduler: s,
		digester:  digester,
		logger:    logger,
		digestAt:  conf.JPC.DigestAt,
	}
}

// Start schedules the jobs and runs them in the background.
func (s *Scheduler) Start() error {
	if _, err := s.scheduler.Every(1).Day().At(s.digestAt).Tag("milestone-digest").Do(s.RunDigest); err != nil {
		return errors.Wrapf(err, "scheduling milestone digest at %q", s.digestAt)
	}
	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

// NextDigest returns when the digest runs next.
func (s *Scheduler) NextDigest() (time.Time, bool) {
	jobs, err := s.scheduler.FindJobsByTag("milestone-digest")
	if err != nil || len(jobs) == 0 {
		return time.Time{}, false
	}
	return jobs[0].NextRun(), true
}

func (s *Scheduler) RunDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), digestTimeout)
	defer cancel()
	if err := s.digester.SendPendingDigest(ctx); err != nil {
		s.logger.Error("sending milestone digest", err)
	}
}
