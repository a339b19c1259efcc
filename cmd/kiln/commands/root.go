// Package commands implements the CLI commands for kiln.
package commands

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// New creates a new CLI instance with the given app.
func New(a *app.App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "Reproducible, layer-cached images for Python bots",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the recipe file (default: nearest kiln.yaml)")
	rootCmd.PersistentFlags().StringP("dir", "C", ".", "Build context directory to search for the recipe")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}

	rootCmd.AddCommand(c.newBuildCmd())
	rootCmd.AddCommand(c.newPlanCmd())
	rootCmd.AddCommand(c.newRenderCmd())
	rootCmd.AddCommand(c.newEntrypointCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

// options reads the recipe selection shared by every command. A relative
// --config is taken relative to --dir.
func options(cmd *cobra.Command) app.Options {
	dir, _ := cmd.Flags().GetString("dir")
	config, _ := cmd.Flags().GetString("config")

	path := dir
	if config != "" {
		path = config
		if !filepath.IsAbs(config) {
			path = filepath.Join(dir, config)
		}
	}
	return app.Options{Path: path}
}

// addRecipeFlags registers the recipe overrides shared by build, plan and render.
func addRecipeFlags(cmd *cobra.Command) {
	cmd.Flags().String("tag", "", "Tag applied to the final image (overrides image.tag)")
	cmd.Flags().Bool("no-cache", false, "Keep the resolver from writing a package cache into the image")
	cmd.Flags().Bool("no-virtualenv", false, "Install dependencies into the interpreter instead of a virtualenv")
}

func recipeOptions(cmd *cobra.Command) app.Options {
	opts := options(cmd)
	opts.Tag, _ = cmd.Flags().GetString("tag")
	opts.NoCache, _ = cmd.Flags().GetBool("no-cache")
	opts.NoVirtualenv, _ = cmd.Flags().GetBool("no-virtualenv")
	return opts
}
