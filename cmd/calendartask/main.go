package main

import (
	"fmt"
	"os"

	"calendartask/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// @title                       Calendar Task API
// @version                     1.0
// @description                 Tasks, calendar views and recurring-task expansion.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
func main() {
	commands.SetVersion(version, commit, date)
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
