package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/jazzedge/academy/core/curriculum"
	"github.com/jazzedge/academy/core/event"
	"github.com/jazzedge/academy/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sqlx.DB
	usrRepo   user.Repository
	jpcRepo   curriculum.Repository
	jpcSvc    curriculum.Service
	evtSvc    event.Service
	validate  *validator.Validate
	maxCopies int
	out       io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, version...)")
	fmt.Fprintln(cli.out, "  adduser -name NAME -username USERNAME -email EMAIL [-role ROLE,...] - create or update a user")
	fmt.Fprintln(cli.out, "  resetpassword -username USERNAME|EMAIL - reset user's password")
	fmt.Fprintln(cli.out, "  importcurriculum -file PATH.xlsx - load units and steps from a workbook")
	fmt.Fprintln(cli.out, "  exportcurriculum -file PATH.xlsx - write units and steps to a workbook")
	fmt.Fprintln(cli.out, "  resetprogress -username USERNAME|EMAIL -unit N - delete progress on unit N and after")
	fmt.Fprintln(cli.out, "  digest - email the pending milestones digest now")
	fmt.Fprintln(cli.out, "  copyevent -id ID -unit days|weeks|months [-every N] -count N - repeat an event")
}

// promptPassword reads a password from the terminal without echoing it.
func (cli *commandLine) promptPassword() (string, error) {
	fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		cmd := cli.newFlagSet("adduser")
		name := cmd.String("name", "", "The user's full name.")
		uname := cmd.String("username", "", "The user's username.")
		email := cmd.String("email", "", "The user's email.")
		roles := cmd.String("role", "", "Comma separated roles (e.g. admin:,teacher:). The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *uname == "" && *email == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.addUser(*name, *uname, *email, pwd, splitRoles(*roles))

	case "resetpassword":
		cmd := cli.newFlagSet("resetpassword")
		uname := cmd.String("username", "", "The user's username or email. The password will be prompted next.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *uname == "" {
			cmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			cmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*uname, pwd)

	case "importcurriculum", "exportcurriculum":
		cmd := cli.newFlagSet(args[1])
		file := cmd.String("file", "", "Path of the xlsx workbook.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *file == "" {
			cmd.Usage()
			return errHelp
		}
		if args[1] == "importcurriculum" {
			return cli.importCurriculum(*file)
		}
		return cli.exportCurriculum(*file)

	case "resetprogress":
		cmd := cli.newFlagSet("resetprogress")
		uname := cmd.String("username", "", "The student's username or email.")
		unit := cmd.Int("unit", 0, "The first unit to reset. Every later unit is reset too.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *uname == "" || *unit < 1 {
			cmd.Usage()
			return errHelp
		}
		return cli.resetProgress(*uname, *unit)

	case "digest":
		return cli.sendDigest()

	case "copyevent":
		cmd := cli.newFlagSet("copyevent")
		id := cmd.Int("id", 0, "The source event ID.")
		every := cmd.Int("every", 1, "Interval between copies, in units.")
		unit := cmd.String("unit", event.UnitWeeks, "Interval unit: days, weeks or months.")
		count := cmd.Int("count", 0, "Number of copies to create.")
		if err := cmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *id < 1 || *count < 1 {
			cmd.Usage()
			return errHelp
		}
		return cli.copyEvent(*id, event.Recurrence{Every: *every, Unit: *unit, Count: *count})

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
