package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ValentinNM/appbundler/pkg"
	"github.com/ValentinNM/appbundler/pkg/bundler"
	"github.com/ValentinNM/appbundler/pkg/manifest"
)

var bundleCmd = &cobra.Command{
	Use:   "bundle [option=value...]",
	Short: "Runs the full packaging pipeline",
	Long: `Parses the first bundle.star manifest found in the current directory or any
parent directory and runs the packaging pipeline it describes: tool
resolution, resource collection, payload archive, launcher assembly,
directory collection and application-bundle assembly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		options := make(map[string]string)
		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos == -1 {
				return eris.Errorf("expected option=value but got %s", part)
			}
			options[part[:pos]] = part[pos+1:]
		}

		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return err
		}

		dryHooks, err := cmd.Flags().GetBool("dry-hooks")
		if err != nil {
			return err
		}

		skipBundle, err := cmd.Flags().GetBool("skip-bundle")
		if err != nil {
			return err
		}

		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		logger := zerolog.New(NewConsoleWriter()).Level(zerolog.InfoLevel)
		if verbose {
			logger = logger.Level(zerolog.DebugLevel)
		}

		ctx := bundler.WithLogger(cmd.Context(), &logger)
		ctx = manifest.WithLogger(ctx, &logger)

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, err := pkg.FindProjectRoot(wd)
		if err != nil {
			return err
		}

		m, err := manifest.Parse(ctx, filepath.Join(root, pkg.ManifestName), root, options)
		if err != nil {
			return err
		}

		opts := bundler.Options{
			OutputDir:  output,
			Bootloader: m.Bootloader,
			VendorDirs: m.VendorDirs(),
			Tools:      m.ToolNames(),
			SkipBundle: skipBundle,
		}

		hooks := bundler.Hooks{}
		for _, stage := range []string{"pre-bundle", "post-bundle"} {
			stage := stage
			hooks[stage] = func(ctx context.Context) error {
				return manifest.RunHooks(ctx, m, stage, root, dryHooks)
			}
		}

		_, err = bundler.Run(ctx, root, m.App, m.Collects, opts, hooks)
		return err
	},
}

func init() {
	rootCmd.AddCommand(bundleCmd)
	bundleCmd.Flags().BoolP("verbose", "v", false, "enable debug output")
	bundleCmd.Flags().Bool("dry-hooks", false, "only print hook commands, don't execute them")
	bundleCmd.Flags().Bool("skip-bundle", false, "stop after the collect stage, don't assemble the .app bundle")
	bundleCmd.Flags().StringP("output", "o", "", "output directory (defaults to dist)")
}
