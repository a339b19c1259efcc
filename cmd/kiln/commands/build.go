package commands

import (
	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
)

func (c *CLI) newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the image, reusing cached layers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			noLayerCache, _ := cmd.Flags().GetBool("no-layer-cache")
			backend, _ := cmd.Flags().GetString("backend")

			_, err := c.app.Build(cmd.Context(), app.BuildOptions{
				Options:      recipeOptions(cmd),
				NoLayerCache: noLayerCache,
				Backend:      app.Backend(backend),
			})
			return err
		},
	}
	addRecipeFlags(cmd)
	cmd.Flags().Bool("no-layer-cache", false, "Rebuild every stage, ignoring cached layers")
	cmd.Flags().String("backend", string(app.BackendEngine), "Build backend: engine or cli")
	return cmd
}
