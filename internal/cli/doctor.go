package cli

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ankittk/releasekit/internal/config"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify runtime dependencies and the release policy",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			var problems []string

			// git is required to fetch and list release tags.
			if _, err := exec.LookPath("git"); err != nil {
				problems = append(problems, "missing dependency: git (not found on PATH)")
			}
			if err := config.MustSettingsFrom(cmd.Context()).Validate(); err != nil {
				problems = append(problems, "invalid policy: "+err.Error())
			}
			if fi, err := os.Stat(st.queueDir); err == nil && !fi.IsDir() {
				problems = append(problems, "queue dir is not a directory: "+st.queueDir)
			} else if err == nil {
				// The lock and temp files are created next to the queue files.
				probe, err := os.CreateTemp(st.queueDir, ".doctor-*")
				if err != nil {
					problems = append(problems, "queue dir not writable: "+err.Error())
				} else {
					_ = probe.Close()
					_ = os.Remove(filepath.Clean(probe.Name()))
				}
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		}),
	}
	return cmd
}
