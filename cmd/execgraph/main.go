// Command execgraph validates, runs, debugs and replays dataflow graphs.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/execgraph/internal/cli"
)

func main() {
	// Commands build their own loggers; this one covers anything before them.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	os.Exit(run(os.Stdout, os.Stderr, os.Args[1:]))
}

// run executes the command tree and maps its error to an exit code.
func run(stdout, stderr io.Writer, args []string) int {
	cmd := cli.NewRootCommand()
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return cli.ExitSuccess
	}

	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) || exitErr.Err == nil {
		fmt.Fprintln(stderr, err)
	}
	return cli.GetExitCode(err)
}
