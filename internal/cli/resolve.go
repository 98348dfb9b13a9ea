package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ankittk/releasekit/internal/actions"
	"github.com/ankittk/releasekit/internal/config"
	"github.com/ankittk/releasekit/internal/git"
	"github.com/ankittk/releasekit/internal/history"
	"github.com/ankittk/releasekit/internal/version"
	"github.com/spf13/cobra"
)

// fetchBackoff is the delay unit between tag fetch attempts (attempt n waits n units).
var fetchBackoff = 2 * time.Second

func newResolveCmd() *cobra.Command {
	var (
		branch         string
		initialVersion string
		repoDir        string
		noFetch        bool
		fetchAttempts  int
		tags           []string
	)
	cmd := &cobra.Command{
		Use:     "resolve",
		Aliases: []string{"next-version"},
		Short:   "Compute the next release version for a branch from existing tags",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			ctx := cmd.Context()
			policy := st.settings.Policy
			policy.SourceBranch = config.FirstNonEmpty(branch, config.Input("source_branch"), policy.SourceBranch)
			policy.DefaultVersion = config.FirstNonEmpty(initialVersion, config.Input("initial_version"), policy.DefaultVersion)
			if policy.SourceBranch == "" {
				b, err := git.CurrentBranch(ctx, repoDir)
				if err != nil {
					return fmt.Errorf("source branch required (--branch or INPUT_SOURCE_BRANCH): %w", err)
				}
				st.log.Debug("using checked-out branch", "branch", b)
				policy.SourceBranch = b
			}
			// Reject the branch before touching git.
			b, err := version.NormalizeBranch(policy.SourceBranch)
			if err != nil {
				return err
			}
			policy.SourceBranch = b

			known := tags
			if !cmd.Flags().Changed("tag") {
				if !noFetch {
					if err := fetchTagsWithRetry(ctx, st, repoDir, fetchAttempts); err != nil {
						return err
					}
				}
				listed, err := git.ListTags(ctx, repoDir, git.TagPatterns...)
				if err != nil {
					return fmt.Errorf("list tags: %w", err)
				}
				known = listed
			}
			st.log.Debug("known release tags", "count", len(known), "tags", known)

			res, err := version.Resolve(policy, known)
			if err != nil {
				return err
			}
			st.log.Info("determined next version", "branch", policy.SourceBranch, "version", res.Version, "prerelease", res.IsPrerelease, "rule", res.Rule)
			st.metrics.RecordResolution(ctx, res.Tag.Channel.String(), string(res.Rule))
			if st.history != nil {
				if err := st.history.RecordResolution(ctx, history.Resolution{
					Branch:       policy.SourceBranch,
					Version:      res.Version,
					IsPrerelease: res.IsPrerelease,
					Rule:         string(res.Rule),
				}); err != nil {
					st.log.Warn("could not record resolution", "err", err)
				}
			}

			pre := strconv.FormatBool(res.IsPrerelease)
			if err := actions.FromEnv(cmd.OutOrStdout()).SetAll("version", res.Version, "is_beta", pre, "is_prerelease", pre); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), res.Version)
			return nil
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Source branch: main or beta (env: INPUT_SOURCE_BRANCH; default: checked-out branch)")
	cmd.Flags().StringVar(&initialVersion, "initial-version", "", "Version used when no release tags exist (env: INPUT_INITIAL_VERSION)")
	cmd.Flags().StringVar(&repoDir, "repo", ".", "Git repository to read tags from")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "Skip git fetch --tags")
	cmd.Flags().IntVar(&fetchAttempts, "fetch-attempts", 3, "Attempts for git fetch --tags before giving up")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Known tags; skips git entirely when given (repeatable)")
	return cmd
}

func fetchTagsWithRetry(ctx context.Context, st *state, dir string, attempts int) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 1; i <= attempts; i++ {
		if err = git.FetchTags(ctx, dir); err == nil {
			st.metrics.RecordTagFetch(ctx, "ok")
			return nil
		}
		st.metrics.RecordTagFetch(ctx, "error")
		st.log.Warn("tag fetch failed", "attempt", i, "of", attempts, "err", err)
		if i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i) * fetchBackoff):
		}
	}
	return fmt.Errorf("fetch tags: %w", err)
}
