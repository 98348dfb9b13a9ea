package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ankittk/releasekit/internal/actions"
	"github.com/ankittk/releasekit/internal/config"
	"github.com/ankittk/releasekit/internal/git"
	"github.com/ankittk/releasekit/internal/history"
	"github.com/ankittk/releasekit/internal/queue"
	"github.com/ankittk/releasekit/internal/version"
	"github.com/spf13/cobra"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Manage the per-branch release queue",
	}
	cmd.AddCommand(newQueueAddCmd())
	cmd.AddCommand(newQueueClearCmd())
	cmd.AddCommand(newQueueStatusCmd())
	cmd.AddCommand(newQueueListCmd())
	cmd.AddCommand(newQueuePositionCmd())
	return cmd
}

// branchFlag resolves --branch (or INPUT_BRANCH) and rejects anything but main or beta.
func branchFlag(flag string) (string, error) {
	branch := config.FirstNonEmpty(flag, config.Input("branch"))
	if branch == "" {
		return "", errors.New("branch required (--branch or INPUT_BRANCH)")
	}
	return version.NormalizeBranch(branch)
}

func openQueue(st *state, branch string) *queue.Queue {
	path := config.QueueFile(st.queueDir, st.settings.Queue.Layout, branch)
	return queue.New(path, queue.Options{
		SlotMinutes: st.settings.Queue.SlotMinutes,
		Logger:      st.log,
	})
}

func recordDepth(st *state, q *queue.Queue, branch string) {
	if st.metrics == nil {
		return
	}
	if s, err := q.Status(); err == nil {
		st.metrics.SetQueueDepth(branch, s.Count)
	}
}

// prNumber parses --pr (or INPUT_PR_NUMBER). An empty value means no PR.
func prNumber(flag string) (*int64, error) {
	raw := config.FirstNonEmpty(flag, config.Input("pr_number"))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid pull request number %q", raw)
	}
	return &n, nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func newQueueAddCmd() *cobra.Command {
	var branch, sha, repoDir, prFlag string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a commit for release",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			ctx := cmd.Context()
			b, err := branchFlag(branch)
			if err != nil {
				return err
			}
			sha = config.FirstNonEmpty(sha, config.Input("sha"), os.Getenv("GITHUB_SHA"))
			if sha == "" {
				if sha, err = git.HeadSHA(ctx, repoDir); err != nil {
					return fmt.Errorf("resolve commit: %w", err)
				}
			}

			pr, err := prNumber(prFlag)
			if err != nil {
				return err
			}

			q := openQueue(st, b)
			placement, err := q.EnqueuePR(ctx, sha, b, pr)
			st.metrics.RecordQueueOp(ctx, "add", b, result(err))
			if err != nil {
				return err
			}
			recordDepth(st, q, b)

			if err := actions.FromEnv(cmd.OutOrStdout()).SetAll(
				"queue_position", strconv.Itoa(placement.Position),
				"estimated_time", placement.EstimatedWait,
			); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "position %d: %s\n", placement.Position, placement.EstimatedWait)
			return nil
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Release branch: main or beta (env: INPUT_BRANCH)")
	cmd.Flags().StringVar(&sha, "sha", "", "Commit to queue (env: INPUT_SHA, GITHUB_SHA; default: HEAD)")
	cmd.Flags().StringVar(&repoDir, "repo", ".", "Git repository used to resolve HEAD")
	cmd.Flags().StringVar(&prFlag, "pr", "", "Pull request number that produced the commit (env: INPUT_PR_NUMBER)")
	return cmd
}

func newQueueClearCmd() *cobra.Command {
	var branch, sha string
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop a processed commit and everything queued before it",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			ctx := cmd.Context()
			b, err := branchFlag(branch)
			if err != nil {
				return err
			}
			sha = config.FirstNonEmpty(sha, config.Input("processed_sha"))
			if sha == "" {
				return errors.New("processed sha required (--processed-sha or INPUT_PROCESSED_SHA)")
			}

			q := openQueue(st, b)
			removed, err := q.ClearUpTo(ctx, sha)
			if errors.Is(err, queue.ErrSHANotFound) {
				// Already cleared by an earlier run; the queue is untouched.
				st.metrics.RecordQueueOp(ctx, "clear", b, "not_found")
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s not queued, nothing cleared\n", sha)
				return nil
			}
			st.metrics.RecordQueueOp(ctx, "clear", b, result(err))
			if err != nil {
				return err
			}
			recordDepth(st, q, b)

			if st.history != nil {
				processed := make([]history.Processed, 0, len(removed))
				for _, e := range removed {
					processed = append(processed, history.Processed{SHA: e.SHA, Branch: e.Branch, EnqueuedAt: e.Timestamp.Time})
				}
				if err := st.history.RecordProcessed(ctx, processed); err != nil {
					st.log.Warn("could not record processed releases", "err", err)
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d entries\n", len(removed))
			return nil
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Release branch: main or beta (env: INPUT_BRANCH)")
	cmd.Flags().StringVar(&sha, "processed-sha", "", "Commit whose release finished (env: INPUT_PROCESSED_SHA)")
	return cmd
}

func newQueueStatusCmd() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue length and the oldest entry",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			b, err := branchFlag(branch)
			if err != nil {
				return err
			}
			q := openQueue(st, b)
			s, err := q.Status()
			st.metrics.RecordQueueOp(cmd.Context(), "status", b, result(err))
			if err != nil {
				return err
			}
			st.metrics.SetQueueDepth(b, s.Count)
			if err := actions.FromEnv(cmd.OutOrStdout()).SetAll(
				"count", strconv.Itoa(s.Count),
				"oldest", s.Oldest,
			); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d queued, oldest %s\n", s.Count, config.FirstNonEmpty(s.Oldest, "-"))
			return nil
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Release branch: main or beta (env: INPUT_BRANCH)")
	return cmd
}

func newQueueListCmd() *cobra.Command {
	var branch string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued commits in release order",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			b, err := branchFlag(branch)
			if err != nil {
				return err
			}
			entries, err := openQueue(st, b).Load()
			if err != nil {
				return err
			}
			if asJSON {
				if entries == nil {
					entries = []queue.Entry{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "POS\tSHA\tBRANCH\tQUEUED\tESTIMATE")
			for i, e := range entries {
				_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, e.SHA, e.Branch, e.Timestamp, e.EstimatedTime)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Release branch: main or beta (env: INPUT_BRANCH)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func newQueuePositionCmd() *cobra.Command {
	var branch, sha string
	cmd := &cobra.Command{
		Use:   "position",
		Short: "Show where a commit sits in the queue",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			b, err := branchFlag(branch)
			if err != nil {
				return err
			}
			sha = config.FirstNonEmpty(sha, config.Input("sha"), os.Getenv("GITHUB_SHA"))
			if sha == "" {
				return errors.New("sha required (--sha, INPUT_SHA or GITHUB_SHA)")
			}
			p, err := openQueue(st, b).Position(sha)
			if err != nil {
				return err
			}
			if err := actions.FromEnv(cmd.OutOrStdout()).SetAll(
				"queue_position", strconv.Itoa(p.Position),
				"estimated_time", p.EstimatedWait,
			); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "position %d: %s\n", p.Position, p.EstimatedWait)
			return nil
		}),
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Release branch: main or beta (env: INPUT_BRANCH)")
	cmd.Flags().StringVar(&sha, "sha", "", "Commit to look up (env: INPUT_SHA, GITHUB_SHA)")
	return cmd
}
