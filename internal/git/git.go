package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// TagPatterns are the glob patterns for the two release tag families.
var TagPatterns = []string{"stable-v*", "beta-v*"}

func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FetchTags runs git fetch --tags --force in dir so remote tags (including moved ones) are visible.
func FetchTags(ctx context.Context, dir string) error {
	_, err := run(ctx, dir, "fetch", "--tags", "--force")
	return err
}

// ListTags returns the local tags matching any of patterns (all tags when none are given).
func ListTags(ctx context.Context, dir string, patterns ...string) ([]string, error) {
	args := append([]string{"tag", "-l"}, patterns...)
	out, err := run(ctx, dir, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	var tags []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tags = append(tags, line)
		}
	}
	return tags, nil
}

// HeadSHA returns the commit HEAD points at in dir.
func HeadSHA(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, "rev-parse", "HEAD")
}

// CurrentBranch returns the short name of the checked-out branch, or "HEAD" when detached.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	return run(ctx, dir, "rev-parse", "--abbrev-ref", "HEAD")
}
