package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ValentinNM/appbundler/pkg"
	"github.com/ValentinNM/appbundler/pkg/tools"
)

var fetchToolsCmd = &cobra.Command{
	Use:   "fetch-tools",
	Short: "Downloads and unpacks the vendored external tools",
	Long: `Downloads and unpacks the tool archives listed in TOOLS.yml next to the
project manifest. Entries whose URL and checksum didn't change since the last
run are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pkg.PrintTask("Loading config")
		wd, err := os.Getwd()
		if err != nil {
			return err
		}

		root, err := pkg.FindProjectRoot(wd)
		if err != nil {
			return err
		}

		cfg, stamps, err := tools.LoadConfig(root)
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading tools")
		err = tools.FetchAll(root, cfg, stamps)

		sErr := tools.SaveStamps(root, stamps)
		if sErr != nil {
			pkg.PrintError(sErr.Error())
		}

		if err == nil {
			pkg.PrintTask("Done")
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(fetchToolsCmd)
}
