package main

import (
	"errors"
	"fmt"
	"os"

	"curator/pkg/eventlog"
)

func runEvents(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: curator events tail [flags]")
	}
	if args[0] != "tail" {
		return fmt.Errorf("unknown events subcommand %q", args[0])
	}

	fs, workDir := newFlagSet("curator events tail")
	n := fs.Int("n", 20, "Number of events to show (0 for all)")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	path := a.events.CurrentLogFile()
	events, err := eventlog.ReadEvents(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Println("No events today.")
			return nil
		}
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events today.")
		return nil
	}

	if *n > 0 && len(events) > *n {
		events = events[len(events)-*n:]
	}
	for _, evt := range events {
		line := fmt.Sprintf("%s  %s", displayTime(evt.Timestamp), evt.Event)
		if evt.JobID != "" {
			line += " job=" + evt.JobID
		}
		if evt.ItemID != "" {
			line += " item=" + evt.ItemID
		}
		if evt.Detail != "" {
			line += "  " + evt.Detail
		}
		fmt.Println(line)
	}
	return nil
}
