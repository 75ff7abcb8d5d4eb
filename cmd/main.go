package cmd

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ValentinNM/appbundler/pkg/tools"
)

var rootCmd = &cobra.Command{
	Use:   "appbundler",
	Short: "Packaging tools for desktop applications",
	Long: `This command bundles the tools used to package a desktop application into a
distributable directory and a macOS application bundle. This includes tools to
download & vendor external binaries, to pack payload archives, ...`,
	SilenceUsage: true,
}

// Execute runs the CLI. Missing external tools are a distinct failure mode:
// a build without its prerequisites must not proceed, so they get their own
// exit status.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if eris.Is(err, tools.ErrMissingTools) {
		os.Exit(2)
	}
	os.Exit(1)
}
