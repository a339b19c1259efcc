package commands

import (
	"encoding/json"
	"fmt"

	"github.com/google/shlex"
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/adapters/shell" //nolint:depguard // quoting only
	"go.trai.ch/zerr"
)

func (c *CLI) newEntrypointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entrypoint [-- args...]",
		Short: "Print the command a container start runs",
		Long: "Print the command a container started from the image runs. Arguments given\n" +
			"with --args or after -- are appended to the fixed interpreter invocation.",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("args")
			extra, err := shlex.Split(raw)
			if err != nil {
				return zerr.With(zerr.Wrap(err, "invalid --args"), "args", raw)
			}

			argv, err := c.app.Invocation(cmd.Context(), options(cmd), append(extra, args...))
			if err != nil {
				return err
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if asJSON {
				data, err := json.Marshal(argv)
				if err != nil {
					return zerr.Wrap(err, "failed to encode command")
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}

			line, err := shell.Line(argv)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), line)
			return err
		},
	}
	cmd.Flags().String("args", "", "Override arguments, split like a shell would")
	cmd.Flags().Bool("json", false, "Print the command as a JSON array")
	return cmd
}
