// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CareDesk Contributors

package bootstrap

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"regexp"

	"github.com/samber/oops"
)

// packagePattern restricts package names to what the system package
// manager accepts, keeping shell metacharacters out of the install command.
var packagePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]*$`)

// commandRunner executes a system command and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// PackageInstaller ensures OS packages are present before startup.
// Installation requires a privileged principal; a non-root invocation
// fails rather than silently skipping.
type PackageInstaller struct {
	run     commandRunner
	geteuid func() int
	logger  *slog.Logger
}

// NewPackageInstaller creates a PackageInstaller using the system package
// manager and a no-op logger.
func NewPackageInstaller() *PackageInstaller {
	return &PackageInstaller{
		run: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
		geteuid: os.Geteuid,
		logger:  slog.New(slog.DiscardHandler),
	}
}

// WithLogger sets the installer's logger and returns the installer.
func (i *PackageInstaller) WithLogger(logger *slog.Logger) *PackageInstaller {
	if logger != nil {
		i.logger = logger
	}
	return i
}

// EnsureAll installs the named packages. An empty list is a no-op.
func (i *PackageInstaller) EnsureAll(ctx context.Context, packages []string) error {
	if len(packages) == 0 {
		return nil
	}

	if uid := i.geteuid(); uid != 0 {
		return oops.Code("PACKAGE_PRIVILEGE").
			With("euid", uid).
			Errorf("package installation requires a privileged principal")
	}

	for _, pkg := range packages {
		if !packagePattern.MatchString(pkg) {
			return oops.Code("PACKAGE_INVALID_NAME").
				With("package", pkg).
				Errorf("invalid package name")
		}
	}

	args := append([]string{"install", "-y", "--no-install-recommends"}, packages...)
	out, err := i.run(ctx, "apt-get", args...)
	if err != nil {
		return oops.Code("PACKAGE_INSTALL_FAILED").
			With("packages", packages).
			With("output", string(out)).
			Wrap(err)
	}

	i.logger.Info("packages installed", "packages", packages)
	return nil
}
