package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/releasetrain/internal/cmd"
	"github.com/Iron-Ham/releasetrain/internal/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()
	if err != nil && !cmd.IsReported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.IsConfigurationError(err) {
			fmt.Fprintln(os.Stderr, "Check your settings with 'releasetrain config show'.")
		}
	}
	os.Exit(cmd.ExitCode(err))
}
