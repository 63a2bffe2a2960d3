package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/jazzedge/academy/core"
	sheetsvc "github.com/jazzedge/academy/services/sheets"
)

func (cli *commandLine) importCurriculum(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening workbook")
	}
	defer func() { _ = f.Close() }()

	wb, err := sheetsvc.ParseCurriculum(f)
	if err != nil {
		return err
	}
	if err = cli.jpcSvc.ImportCurriculum(context.Background(), wb.Units, wb.Steps); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "imported %d units, %d steps\n", len(wb.Units), len(wb.Steps))
	return nil
}

func (cli *commandLine) exportCurriculum(path string) error {
	ctx := context.Background()
	units, err := cli.jpcRepo.QueryUnits(ctx)
	if err != nil {
		return err
	}
	wb := sheetsvc.Workbook{Units: units}
	for _, u := range units {
		steps, err := cli.jpcRepo.QuerySteps(ctx, u.ID)
		if err != nil {
			return err
		}
		wb.Steps = append(wb.Steps, steps...)
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "creating workbook")
	}
	if err = sheetsvc.WriteCurriculum(f, wb); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return errors.Wrap(err, "closing workbook")
	}
	fmt.Fprintf(cli.out, "exported %d units, %d steps\n", len(wb.Units), len(wb.Steps))
	return nil
}

func (cli *commandLine) resetProgress(uname string, unit int) error {
	ctx := context.Background()
	usr, err := cli.usrRepo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
	if err != nil {
		return err
	}
	deleted, err := cli.jpcSvc.ResetProgress(ctx, usr.ID, unit)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "deleted %d progress rows of %q from unit %d\n", deleted, usr.Username, unit)
	return nil
}

func (cli *commandLine) sendDigest() error {
	return cli.jpcSvc.SendPendingDigest(context.Background())
}
