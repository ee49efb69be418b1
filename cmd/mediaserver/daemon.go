package main

import (
	"os"

	daemon "github.com/sevlyar/go-daemon"
)

// daemonize forks the process into the background and exits the parent
// (spec §6 CLI --daemon). The child inherits the same argv/env, so the
// already-parsed flag values carry over once cobra's RunE resumes in it.
func daemonize() error {
	ctx := &daemon.Context{
		LogFileName: "mediaserver.log",
		WorkDir:     ".",
	}
	child, err := ctx.Reborn()
	if err != nil {
		return err
	}
	if child != nil {
		os.Exit(0)
	}
	return nil
}
