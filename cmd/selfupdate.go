package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"
)

const githubRepoSlug = "wsruntime/wsctl"

// latestRelease is the part of a detected release the update flow needs.
type latestRelease interface {
	LessOrEqual(version string) bool
	Version() string
}

// For mocking in tests
var (
	detectLatest = func(ctx context.Context, slug string) (latestRelease, bool, error) {
		rel, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(slug))
		if err != nil || !found {
			return nil, found, err
		}
		return rel, true, nil
	}
	executablePath = selfupdate.ExecutablePath
	applyUpdate    = func(ctx context.Context, rel latestRelease, exe string) error {
		r, ok := rel.(*selfupdate.Release)
		if !ok {
			return fmt.Errorf("unsupported release type %T", rel)
		}
		return selfupdate.UpdateTo(ctx, r.AssetURL, r.AssetName, exe)
	}
)

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update wsctl to the latest version",
		Long: `Checks for the latest release of wsctl on GitHub and
replaces the running binary with it if a newer version exists.`,
		Args: cobra.NoArgs,
		RunE: runSelfUpdate,
	}
}

func runSelfUpdate(cmd *cobra.Command, args []string) error {
	currentVersion := rootCmd.Version
	if currentVersion == "" || currentVersion == "dev" {
		return fmt.Errorf("cannot self-update a development version")
	}

	ctx := context.Background()
	var out io.Writer = os.Stderr
	if cmd != nil {
		out = cmd.ErrOrStderr()
		if cmd.Context() != nil {
			ctx = cmd.Context()
		}
	}

	fmt.Fprintf(out, "Current version: %s\n", currentVersion)
	fmt.Fprintln(out, "Checking for updates...")

	latest, found, err := detectLatest(ctx, githubRepoSlug)
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest release for %s could not be found", githubRepoSlug)
	}

	if latest.LessOrEqual(currentVersion) {
		fmt.Fprintf(out, "Current version (%s) is the latest.\n", currentVersion)
		return nil
	}

	exe, err := executablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}

	fmt.Fprintf(out, "Updating to version %s...\n", latest.Version())
	if err := applyUpdate(ctx, latest, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Fprintf(out, "Successfully updated to version %s\n", latest.Version())
	return nil
}
