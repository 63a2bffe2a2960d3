package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/jazzedge/academy/core"
	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/event"
	"github.com/jazzedge/academy/core/user"
	emailsvc "github.com/jazzedge/academy/services/email"
	logsvc "github.com/jazzedge/academy/services/logger"
	"github.com/jazzedge/academy/storage/database"
	sqlxrepos "github.com/jazzedge/academy/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up DB
	if err := database.CreateIfNotExist(conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Connect(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("connecting to database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	event.InitValidators(validate, translator)
	if err = core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("parsing email templates: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	jpcRepo := sqlxrepos.NewCurriculumRepository(db)

	// start CLI
	cli := commandLine{
		db:        db,
		usrRepo:   usrRepo,
		jpcRepo:   jpcRepo,
		jpcSvc:    curriculum.NewService(db, jpcRepo, user.NewService(usrRepo), mailSvc, logger, conf),
		evtSvc:    event.NewService(db, sqlxrepos.NewEventRepository(db)),
		validate:  validate,
		maxCopies: conf.Events.MaxCopies,
		out:       os.Stdout,
	}
	err = cli.run(os.Args)
	mailSvc.Wait()
	if err != nil && err != errHelp {
		logger.Error(fmt.Sprintf("error: %s", err), err)
	}
	_ = db.Close()
	logger.Close()
	if err != nil {
		os.Exit(1)
	}
}
