package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var (
	dumpClear      bool
	dumpNoPristine bool
)

var dumpCmd = &cobra.Command{
	Use:     "dump <dir>",
	Aliases: []string{"d"},
	Short:   "Write entry-point assets to a directory",
	Long: `Dump processes the configured roots and writes every entry-point
asset's final content under the target directory at its versioned path
(unversioned for pristine paths). It refuses to write anything when the
scan left errors.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newPipeline()
		if err != nil {
			return err
		}

		if _, err := p.ProcessStrict(); err != nil {
			return err
		}

		if err := p.Dump(args[0], pipeline.DumpOptions{
			Clear:        dumpClear,
			SkipPristine: dumpNoPristine,
		}); err != nil {
			return err
		}

		fmt.Printf("dumped to %s\n", args[0])
		return nil
	},
}

func init() {
	dumpCmd.Flags().BoolVar(&dumpClear, "clear", false, "empty the target directory first")
	dumpCmd.Flags().BoolVar(&dumpNoPristine, "no-pristine", false, "skip pristine-marked assets")
	rootCmd.AddCommand(dumpCmd)
}
