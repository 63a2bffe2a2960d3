package testutil

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/user"
	logsvc "github.com/jazzedge/academy/services/logger"
	"github.com/jazzedge/academy/storage/database"
)

// Config returns the test configuration pointing at a fresh sqlite file.
func Config(t *testing.T) *core.Config {
	conf := core.NewTestConfig()
	conf.Database.Path = filepath.Join(t.TempDir(), "test.db")
	return conf
}

// Logger returns a silent logger. Rollbar stays disabled in test mode.
func Logger(conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "TEST : ", log.LstdFlags), conf)
}

// PrepareDB opens a migrated sqlite database that is closed when the test ends.
func PrepareDB(t *testing.T, conf ...*core.Config) *sqlx.DB {
	var c *core.Config
	if len(conf) > 0 {
		c = conf[0]
	} else {
		c = Config(t)
	}
	db, err := database.Open(c)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err = database.Migrate(db); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive, isMember bool,
	createdAt ...time.Time,
) user.User {
	tstamp := core.Now()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	usr := user.User{
		Name:           name,
		Username:       uname,
		Email:          email,
		Roles:          roles,
		IsActive:       isActive,
		IsActiveMember: isMember,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// StepID returns the ID SeedCurriculum gives to key keySig of unit curriculumID.
func StepID(curriculumID, keySig int) int {
	return (curriculumID-1)*curriculum.NumKeys + keySig
}

// SeedCurriculum inserts units 1..n with twelve steps each. Unit i has focus order i*10.
func SeedCurriculum(t *testing.T, repo curriculum.Repository, n int) []curriculum.Unit {
	units := make([]curriculum.Unit, 0, n)
	steps := make([]curriculum.Step, 0, n*curriculum.NumKeys)
	for id := 1; id <= n; id++ {
		units = append(units, curriculum.Unit{
			ID:         id,
			FocusTitle: "Focus " + string(rune('A'+id-1)),
			FocusOrder: id * 10,
			Tempo:      "80-120 bpm",
		})
		for k := 1; k <= curriculum.NumKeys; k++ {
			steps = append(steps, curriculum.Step{
				ID:           StepID(id, k),
				CurriculumID: id,
				KeySig:       k,
				KeySigName:   curriculum.KeySigNames[k-1],
				VimeoID:      strconv.Itoa(1000 + StepID(id, k)),
			})
		}
	}
	ctx := context.Background()
	if err := repo.UpsertUnits(ctx, units); err != nil {
		t.Fatalf("SeedCurriculum() failed: %v", err)
	}
	if err := repo.UpsertSteps(ctx, steps); err != nil {
		t.Fatalf("SeedCurriculum() failed: %v", err)
	}
	return units
}

// CompleteSteps marks the given keys of a unit complete, straight through the repository.
func CompleteSteps(t *testing.T, repo curriculum.Repository, userID, curriculumID int, keySigs ...int) {
	for _, k := range keySigs {
		if err := repo.SetStepComplete(context.Background(), userID, curriculumID, k, StepID(curriculumID, k)); err != nil {
			t.Fatalf("CompleteSteps() failed: %v", err)
		}
	}
}

// CompleteUnit marks all twelve keys of a unit complete.
func CompleteUnit(t *testing.T, repo curriculum.Repository, userID, curriculumID int) {
	keys := make([]int, 0, curriculum.NumKeys)
	for k := 1; k <= curriculum.NumKeys; k++ {
		keys = append(keys, k)
	}
	CompleteSteps(t, repo, userID, curriculumID, keys...)
}
