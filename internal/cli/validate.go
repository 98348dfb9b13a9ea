package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/ankittk/releasekit/internal/actions"
	"github.com/ankittk/releasekit/internal/config"
	"github.com/ankittk/releasekit/internal/version"
	"github.com/spf13/cobra"
)

var errInvalidVersion = errors.New("invalid version format")

func newValidateCmd() *cobra.Command {
	var raw, initial string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Normalize and check a user-supplied release version",
		RunE: withState(func(cmd *cobra.Command, st *state, args []string) error {
			raw = config.FirstNonEmpty(raw, config.Input("version"))
			if raw == "" {
				initial = config.FirstNonEmpty(initial, os.Getenv("INITIAL_VERSION"), config.Input("initial_version"), st.settings.DefaultVersion)
				if initial == "" {
					return errors.New("no version given and no initial version configured")
				}
				st.log.Info("no version provided, using initial version", "version", initial)
				raw = initial
			}

			v := version.Validate(raw)
			if !v.Valid {
				st.log.Warn("version must look like v1.2.3 or v1.2.3-beta.1", "version", v.Raw)
				return fmt.Errorf("%w: %q", errInvalidVersion, v.Raw)
			}
			st.log.Info("version is valid", "version", v.Normalized, "prerelease", v.IsPrerelease)

			if err := actions.FromEnv(cmd.OutOrStdout()).SetAll(
				"VALIDATED_VERSION", v.Normalized,
				"VERSION_VALID", strconv.FormatBool(v.Valid),
				"IS_PRERELEASE", strconv.FormatBool(v.IsPrerelease),
			); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), v.Normalized)
			return nil
		}),
	}
	cmd.Flags().StringVar(&raw, "version", "", "Version to check (env: INPUT_VERSION)")
	cmd.Flags().StringVar(&initial, "initial-version", "", "Used when --version is empty (env: INITIAL_VERSION, INPUT_INITIAL_VERSION)")
	return cmd
}
