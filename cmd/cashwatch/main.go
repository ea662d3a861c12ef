// Command cashwatch watches a Gmail inbox for card transaction
// notifications and records per-merchant cashback, asking over Telegram
// whenever it meets a merchant with no known rate.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cashwatch/cashwatch/pkg/logging"
)

const configFile = "config.json"

func main() {
	logger := logging.Setup(logging.DefaultConfig())

	command := "run"
	args := os.Args[1:]
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	var err error
	switch command {
	case "run":
		err = runDaemon(logger)
	case "setup":
		fs := flag.NewFlagSet("setup", flag.ExitOnError)
		force := fs.Bool("force", false, "re-authenticate even if a token exists")
		if err = fs.Parse(args); err == nil {
			err = runSetup(logger, *force)
		}
	case "status":
		err = runStatus()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", command)
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: cashwatch [command]

Commands:
  run     start the watcher daemon (default)
  setup   run the Google OAuth flow
  status  check configuration and authentication`)
}
