package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/ankittk/releasekit/internal/config"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var path string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a policy file with the default settings",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return fmt.Errorf("write policy: %w", err)
			}
			st.log.Info("wrote policy file", "path", path)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		}),
	}
	cmd.Flags().StringVar(&path, "path", config.DefaultPath, "Where to write the policy file")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}
