package main

import (
	"context"
	"fmt"

	"github.com/jazzedge/academy/core/event"
)

func (cli *commandLine) copyEvent(id int, r event.Recurrence) error {
	if err := r.Validate(cli.validate, cli.maxCopies); err != nil {
		return err
	}
	copies, err := cli.evtSvc.CopyEvent(context.Background(), id, r)
	if err != nil {
		return err
	}
	for _, c := range copies {
		fmt.Fprintf(cli.out, "%d\t%s\t%s\n", c.ID, c.StartsAt.Format("2006-01-02 15:04 MST"), c.CopyGroup.String)
	}
	return nil
}
