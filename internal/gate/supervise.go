// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package gate

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
)

// shutdownGracePeriod is how long a supervised child gets after SIGTERM
// before it is killed.
const shutdownGracePeriod = 10 * time.Second

// Supervise hands control to the request-serving process once the gate has
// passed. The child inherits stdio; SIGINT and SIGTERM are forwarded to it
// so shutdown semantics match an exec-style takeover. Returns the child's
// exit code.
func Supervise(ctx context.Context, argv []string, logger *slog.Logger) (int, error) {
	if len(argv) == 0 {
		return 0, oops.Code("HANDOFF_INVALID").Errorf("handoff command is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return 0, oops.Code("HANDOFF_START_FAILED").
			With("command", argv[0]).
			Wrap(err)
	}

	logger.Info("handed off to server process", "command", argv[0], "pid", cmd.Process.Pid)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	waitChan := make(chan error, 1)
	go func() { waitChan <- cmd.Wait() }()

	for {
		select {
		case sig := <-sigChan:
			logger.Info("forwarding signal to server process", "signal", sig.String())
			_ = cmd.Process.Signal(sig) //nolint:errcheck // child may have already exited
		case <-ctx.Done():
			logger.Info("context cancelled, terminating server process")
			_ = cmd.Process.Signal(syscall.SIGTERM) //nolint:errcheck // child may have already exited
			select {
			case err := <-waitChan:
				return exitCode(err), nil
			case <-time.After(shutdownGracePeriod):
				_ = cmd.Process.Kill() //nolint:errcheck // last resort
				return exitCode(<-waitChan), nil
			}
		case err := <-waitChan:
			return exitCode(err), nil
		}
	}
}

// exitCode derives a process exit code from a wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
