package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/friday-ai/friday/internal/ui"
)

func runSessions(args []string, stdout, stderr io.Writer) error {
	var configPath, remove string
	flagSet := pflag.NewFlagSet("sessions", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "config file path")
	flagSet.StringVar(&remove, "delete", "", "delete the session with this id")
	if helped, err := parseFlags(flagSet, args, "friday sessions [--config path] [--delete id]", stderr); helped || err != nil {
		return err
	}

	cfg, err := loadConfig(replayOptions{configPath: configPath})
	if err != nil {
		return err
	}
	store, err := openStore(cfg, nil)
	if err != nil {
		return err
	}

	out := ui.NewOutput(stdout, stderr)
	if remove != "" {
		if err := store.Delete(remove); err != nil {
			return err
		}
		out.Success(fmt.Sprintf("deleted session %s", remove))
		return nil
	}

	infos, err := store.List()
	if err != nil {
		return err
	}
	out.Sessions(infos, time.Now())
	return nil
}
