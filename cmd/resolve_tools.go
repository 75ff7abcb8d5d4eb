package cmd

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ValentinNM/appbundler/pkg"
	"github.com/ValentinNM/appbundler/pkg/bundler"
	"github.com/ValentinNM/appbundler/pkg/manifest"
	"github.com/ValentinNM/appbundler/pkg/tools"
)

var resolveToolsCmd = &cobra.Command{
	Use:   "resolve-tools",
	Short: "Resolves the required external binaries and reports their locations",
	Long: `Checks the vendored tool directories and PATH for every external binary the
manifest requires. Exits with status 2 if any tool is missing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := tools.NewResolver(filepath.Join("vendor", "fftools"))

		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, err := pkg.FindProjectRoot(wd)
		if err == nil {
			logger := zerolog.New(NewConsoleWriter())
			ctx := manifest.WithLogger(bundler.WithLogger(cmd.Context(), &logger), &logger)

			m, err := manifest.Parse(ctx, filepath.Join(root, pkg.ManifestName), root, nil)
			if err != nil {
				return err
			}

			if len(m.Tools) > 0 {
				resolver.Tools = m.ToolNames()
				resolver.VendorDirs = m.VendorDirs()
			}

			for idx, dir := range resolver.VendorDirs {
				if !filepath.IsAbs(dir) {
					resolver.VendorDirs[idx] = filepath.Join(root, dir)
				}
			}
		}

		pkg.PrintTask("Resolving external tools")
		resolved, err := resolver.Resolve()
		for _, name := range resolver.Tools {
			path, ok := resolved[name]
			if !ok {
				pkg.PrintError(name + ": not found")
				continue
			}

			pkg.PrintSubtask(name + ":  " + path)
		}
		if err != nil {
			return err
		}

		if ffmpeg, ok := resolved["ffmpeg"]; ok {
			version, err := tools.ProbeVersion(cmd.Context(), ffmpeg)
			if err != nil {
				pkg.PrintError("version probe failed")
			} else {
				pkg.PrintSubtask(version)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(resolveToolsCmd)
}
