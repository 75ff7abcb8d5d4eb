package cmd

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ValentinNM/appbundler/pkg/bundler"
)

var packCmd = &cobra.Command{
	Use:   "pack archive_name content_directory",
	Short: "Recursively packs the content of the passed directory into a payload archive",
	Long: `Pass the name of the payload archive that should be generated and a directory
with the intended contents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 2 {
			return eris.New("Expected 2 arguments!")
		}

		writer, err := bundler.NewPayloadWriter(args[0])
		if err != nil {
			return err
		}

		err = writer.AddTree(args[1])
		if err != nil {
			return err
		}

		return writer.Close()
	},
}

func init() {
	rootCmd.AddCommand(packCmd)
}
