package commands

import (
	"bytes"

	"github.com/moby/sys/atomicwriter"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

func (c *CLI) newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the equivalent Dockerfile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" || output == "-" {
				return c.app.Render(cmd.Context(), recipeOptions(cmd), cmd.OutOrStdout())
			}

			var buf bytes.Buffer
			if err := c.app.Render(cmd.Context(), recipeOptions(cmd), &buf); err != nil {
				return err
			}
			if err := atomicwriter.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return zerr.With(zerr.Wrap(err, "failed to write Dockerfile"), "path", output)
			}
			return nil
		},
	}
	addRecipeFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Write the Dockerfile to a file instead of stdout")
	return cmd
}
